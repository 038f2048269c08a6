package agent

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestBudgetCharge(t *testing.T) {
	b := NewBudget(10.0, time.Hour)

	cost := b.Charge(1000, 1000, 0.005, 0.015)
	if math.Abs(cost-0.02) > 1e-9 {
		t.Errorf("call cost = %f, want 0.02", cost)
	}

	b.Charge(2000, 500, 0.00015, 0.0006)

	in, out := b.Tokens()
	if in != 3000 || out != 1500 {
		t.Errorf("tokens = (%d, %d), want (3000, 1500)", in, out)
	}

	want := 0.02 + 2.0*0.00015 + 0.5*0.0006
	if math.Abs(b.CostUSD()-want) > 1e-9 {
		t.Errorf("total cost = %f, want %f", b.CostUSD(), want)
	}
}

func TestBudgetChargeConcurrent(t *testing.T) {
	b := NewBudget(0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Charge(10, 5, 0.001, 0.002)
		}()
	}
	wg.Wait()

	in, out := b.Tokens()
	if in != 500 || out != 250 {
		t.Errorf("tokens = (%d, %d), want (500, 250)", in, out)
	}
}

func TestBudgetExceededCost(t *testing.T) {
	b := NewBudget(0.01, time.Hour)

	if exceeded, _ := b.Exceeded(); exceeded {
		t.Fatal("fresh budget reported exceeded")
	}

	b.Charge(1000, 1000, 0.005, 0.015)

	exceeded, reason := b.Exceeded()
	if !exceeded {
		t.Fatal("cost ceiling not detected")
	}
	if !strings.Contains(reason, "cost ceiling") {
		t.Errorf("reason %q does not mention cost ceiling", reason)
	}
}

func TestBudgetExceededTime(t *testing.T) {
	b := NewBudget(100.0, time.Nanosecond)
	time.Sleep(2 * time.Millisecond)

	exceeded, reason := b.Exceeded()
	if !exceeded {
		t.Fatal("time ceiling not detected")
	}
	if !strings.Contains(reason, "time ceiling") {
		t.Errorf("reason %q does not mention time ceiling", reason)
	}
}

func TestBudgetNoCeilings(t *testing.T) {
	// Zero ceilings disable the checks entirely.
	b := NewBudget(0, 0)
	b.Charge(1_000_000, 1_000_000, 1.0, 1.0)

	if exceeded, reason := b.Exceeded(); exceeded {
		t.Errorf("budget with no ceilings reported exceeded: %s", reason)
	}
}
