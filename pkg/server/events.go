package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mikeboe/deep-research/pkg/agent"
)

// eventBroker fans progress events out to SSE subscribers. Publish never
// blocks: a subscriber that stops draining loses events rather than
// stalling the research worker.
type eventBroker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan agent.ProgressEvent]struct{}
}

func newEventBroker() *eventBroker {
	return &eventBroker{subs: make(map[uuid.UUID]map[chan agent.ProgressEvent]struct{})}
}

// subscribe returns a channel of live events for one job and a cancel
// function the subscriber must call.
func (b *eventBroker) subscribe(jobID uuid.UUID) (<-chan agent.ProgressEvent, func()) {
	ch := make(chan agent.ProgressEvent, 64)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan agent.ProgressEvent]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[jobID]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, jobID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *eventBroker) publish(jobID uuid.UUID, ev agent.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[jobID] {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
}

// finish closes every subscriber channel for a job once it is terminal.
func (b *eventBroker) finish(jobID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[jobID] {
		close(ch)
	}
	delete(b.subs, jobID)
}
