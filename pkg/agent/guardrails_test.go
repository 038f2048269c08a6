package agent

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"testing"
)

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "valid question", input: "How do heat pumps compare to gas boilers?", want: "How do heat pumps compare to gas boilers?"},
		{name: "trims whitespace", input: "   What drives lithium battery prices?   ", want: "What drives lithium battery prices?"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   \t\n  ", wantErr: true},
		{name: "too short", input: "why sky", wantErr: true},
		{name: "too long", input: strings.Repeat("a", MaxQueryLength+1), wantErr: true},
		{name: "exactly minimum", input: strings.Repeat("q", MinQueryLength), want: strings.Repeat("q", MinQueryLength)},
		{name: "multibyte counted in runes not bytes", input: strings.Repeat("ä", MinQueryLength-1), wantErr: true},
		{name: "multibyte at maximum length", input: strings.Repeat("ä", MaxQueryLength), want: strings.Repeat("ä", MaxQueryLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateQuery(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("error %v is not ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsSafeURL(t *testing.T) {
	// Stub DNS so tests never resolve real hostnames.
	orig := lookupIP
	lookupIP = func(host string) ([]net.IP, error) {
		switch host {
		case "example.com", "public.example.org":
			return []net.IP{net.ParseIP("93.184.216.34")}, nil
		case "internal.corp":
			return []net.IP{net.ParseIP("10.0.0.8")}, nil
		case "split-horizon.example.com":
			// One private A record poisons the host.
			return []net.IP{net.ParseIP("93.184.216.34"), net.ParseIP("192.168.1.5")}, nil
		default:
			return nil, fmt.Errorf("no such host: %s", host)
		}
	}
	defer func() { lookupIP = orig }()

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "public https", url: "https://example.com/page", want: true},
		{name: "public http", url: "http://public.example.org/a?b=c", want: true},
		{name: "empty", url: "", want: false},
		{name: "non-http scheme", url: "ftp://example.com/file", want: false},
		{name: "file scheme", url: "file:///etc/passwd", want: false},
		{name: "localhost", url: "http://localhost:8080/admin", want: false},
		{name: "localhost mixed case", url: "http://LocalHost/", want: false},
		{name: "loopback literal", url: "http://127.0.0.1/admin", want: false},
		{name: "ipv6 loopback", url: "http://[::1]/", want: false},
		{name: "private literal", url: "https://10.0.0.8/internal", want: false},
		{name: "link local literal", url: "http://169.254.169.254/latest/meta-data", want: false},
		{name: "unspecified literal", url: "http://0.0.0.0/", want: false},
		{name: "public literal", url: "https://93.184.216.34/", want: true},
		{name: "hostname resolving private", url: "https://internal.corp/secrets", want: false},
		{name: "one private record rejects host", url: "https://split-horizon.example.com/", want: false},
		{name: "unresolvable host", url: "https://does-not-exist.invalid/", want: false},
		{name: "no host", url: "https:///path", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSafeURL(tt.url); got != tt.want {
				t.Errorf("IsSafeURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestDeduplicateQueries(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "exact duplicates",
			input: []string{"solar costs", "wind costs", "solar costs"},
			want:  []string{"solar costs", "wind costs"},
		},
		{
			name:  "case and whitespace insensitive",
			input: []string{"Solar  Costs", "solar costs", "  SOLAR COSTS  "},
			want:  []string{"Solar  Costs"},
		},
		{
			name:  "drops blanks",
			input: []string{"", "  ", "grid storage"},
			want:  []string{"grid storage"},
		},
		{
			name:  "preserves first-seen order",
			input: []string{"c query", "a query", "b query", "a query"},
			want:  []string{"c query", "a query", "b query"},
		},
		{
			name:  "empty input",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeduplicateQueries(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			// Idempotence: a second pass changes nothing.
			again := DeduplicateQueries(got)
			if !reflect.DeepEqual(again, got) {
				t.Errorf("not idempotent: second pass %v, first pass %v", again, got)
			}
		})
	}
}

func TestCheckCitationBounds(t *testing.T) {
	tests := []struct {
		name     string
		report   string
		nSources int
		want     []int
	}{
		{name: "all in range", report: "Solar grew [1], wind too [2].", nSources: 2, want: nil},
		{name: "one out of range", report: "Claim [3].", nSources: 2, want: []int{3}},
		{name: "zero index", report: "Bad [0] and fine [1].", nSources: 2, want: []int{0}},
		{name: "sorted and deduplicated", report: "[9] then [5] then [9] again, [2] ok.", nSources: 3, want: []int{5, 9}},
		{name: "empty report", report: "", nSources: 5, want: nil},
		{name: "no sources makes every citation invalid", report: "Claim [1] and [3].", nSources: 0, want: []int{1, 3}},
		{name: "no sources and no citations", report: "Plain prose.", nSources: 0, want: nil},
		{name: "no citations", report: "Plain prose with no markers.", nSources: 3, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckCitationBounds(tt.report, tt.nSources)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripCitations(t *testing.T) {
	report := "Solar grew 40% [1], storage lagged [7], wind held [2]."
	got := StripCitations(report, []int{7})

	if strings.Contains(got, "[7]") {
		t.Errorf("marker [7] not stripped: %q", got)
	}
	for _, keep := range []string{"[1]", "[2]"} {
		if !strings.Contains(got, keep) {
			t.Errorf("valid marker %s was removed: %q", keep, got)
		}
	}
}
