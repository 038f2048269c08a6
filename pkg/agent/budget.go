package agent

import (
	"fmt"
	"sync"
	"time"
)

// Budget accumulates spend and elapsed time for one run and answers a
// single question: may we keep going? Charges are recorded after each
// completed external call, never estimated in advance, so an overrun is
// caught at the next checkpoint rather than predicted.
type Budget struct {
	mu sync.Mutex

	costCeilingUSD float64
	timeCeiling    time.Duration
	started        time.Time

	costUSD      float64
	inputTokens  int
	outputTokens int
}

// NewBudget starts the clock for one run.
func NewBudget(costCeilingUSD float64, timeCeiling time.Duration) *Budget {
	return &Budget{
		costCeilingUSD: costCeilingUSD,
		timeCeiling:    timeCeiling,
		started:        time.Now(),
	}
}

// Charge records token usage at the given per-1K rates and returns the
// dollar cost of this call. Safe for concurrent researchers.
func (b *Budget) Charge(inputTokens, outputTokens int, inRatePer1K, outRatePer1K float64) float64 {
	cost := float64(inputTokens)/1000*inRatePer1K + float64(outputTokens)/1000*outRatePer1K

	b.mu.Lock()
	b.inputTokens += inputTokens
	b.outputTokens += outputTokens
	b.costUSD += cost
	b.mu.Unlock()

	return cost
}

// Exceeded reports whether either ceiling has been crossed, with a
// human-readable reason for the state's StopReason field.
func (b *Budget) Exceeded() (bool, string) {
	b.mu.Lock()
	cost := b.costUSD
	b.mu.Unlock()

	if b.costCeilingUSD > 0 && cost >= b.costCeilingUSD {
		return true, fmt.Sprintf("cost ceiling $%.2f reached (spent $%.4f)", b.costCeilingUSD, cost)
	}
	if b.timeCeiling > 0 {
		if elapsed := time.Since(b.started); elapsed >= b.timeCeiling {
			return true, fmt.Sprintf("time ceiling %s reached (elapsed %s)", b.timeCeiling, elapsed.Round(time.Second))
		}
	}
	return false, ""
}

// CostUSD returns the total spend so far.
func (b *Budget) CostUSD() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.costUSD
}

// Tokens returns total input and output token counts.
func (b *Budget) Tokens() (in, out int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputTokens, b.outputTokens
}

// Elapsed returns wall-clock time since the run started.
func (b *Budget) Elapsed() time.Duration {
	return time.Since(b.started)
}
