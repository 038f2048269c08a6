package agent

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Query length bounds. Below the minimum is usually single-word nonsense;
// above the maximum is prompt bloat or abuse.
const (
	MinQueryLength = 10
	MaxQueryLength = 500
)

// lookupIP is swappable in tests so guardrail tests never hit real DNS.
var lookupIP = net.LookupIP

// ValidateQuery checks and trims a research question before the pipeline
// spends anything. Returns the cleaned question or ErrInvalidInput.
func ValidateQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	length := utf8.RuneCountInString(q)
	if length < MinQueryLength {
		return "", fmt.Errorf("%w: question too short (%d chars, minimum %d)", ErrInvalidInput, length, MinQueryLength)
	}
	if length > MaxQueryLength {
		return "", fmt.Errorf("%w: question too long (%d chars, maximum %d)", ErrInvalidInput, length, MaxQueryLength)
	}
	return q, nil
}

// IsSafeURL reports whether a URL may be handed to the fetcher. It fails
// closed: only http/https, no loopback, private, link-local or unspecified
// targets. Hostnames are resolved first; a public-looking name pointing
// at 127.0.0.1 is still rejected (SSRF defense).
func IsSafeURL(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := u.Hostname()
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return false
	}

	// Literal IP: check directly, no DNS involved.
	if ip := net.ParseIP(host); ip != nil {
		return isPublicIP(ip)
	}

	ips, err := lookupIP(host)
	if err != nil || len(ips) == 0 {
		return false
	}
	// Every resolved address must be public. One private A record is
	// enough to reject the whole host.
	for _, ip := range ips {
		if !isPublicIP(ip) {
			return false
		}
	}
	return true
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified())
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// DeduplicateQueries removes duplicate subqueries, comparing case- and
// whitespace-insensitively, preserving first-seen order. Idempotent.
func DeduplicateQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	result := make([]string, 0, len(queries))
	for _, q := range queries {
		trimmed := strings.TrimSpace(q)
		if trimmed == "" {
			continue
		}
		key := normalizeQuery(trimmed)
		if !seen[key] {
			seen[key] = true
			result = append(result, trimmed)
		}
	}
	return result
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// CheckCitationBounds scans report for [N] markers and returns the sorted
// set of indices outside 1..nSources. Empty means every citation resolves.
// With no sources, every marker found is out of range.
func CheckCitationBounds(report string, nSources int) []int {
	if report == "" {
		return nil
	}
	if nSources < 0 {
		nSources = 0
	}
	found := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(report, -1) {
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n < 1 || n > nSources {
			found[n] = true
		}
	}
	if len(found) == 0 {
		return nil
	}
	out := make([]int, 0, len(found))
	for n := range found {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// StripCitations removes the given citation markers from a report. Used
// when the model hallucinated an out-of-range reference: a missing marker
// is better than a broken one.
func StripCitations(report string, bad []int) string {
	for _, n := range bad {
		report = strings.ReplaceAll(report, fmt.Sprintf("[%d]", n), "")
	}
	return report
}
