package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps the most recent runs in a fixed-size ring.
type Memory struct {
	mu   sync.Mutex
	runs []Run
	next int
	full bool
}

// NewMemory returns a ring holding up to size runs (minimum 1).
func NewMemory(size int) *Memory {
	return &Memory{runs: make([]Run, max(size, 1))}
}

// Record stores run, evicting the oldest when full.
func (m *Memory) Record(_ context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[m.next] = run
	m.next = (m.next + 1) % len(m.runs)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.runs)
	}
	limit = min(limit, n)

	out := make([]Run, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.runs)) % len(m.runs)
		out = append(out, m.runs[idx])
	}
	return out, nil
}

// Prune drops runs that started before cutoff.
func (m *Memory) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.runs)
	}

	// Keep survivors oldest first, then rebuild the ring.
	kept := make([]Run, 0, n)
	for i := n; i >= 1; i-- {
		run := m.runs[(m.next-i+len(m.runs))%len(m.runs)]
		if !run.StartedAt.Before(cutoff) {
			kept = append(kept, run)
		}
	}

	clear(m.runs)
	copy(m.runs, kept)
	m.next = len(kept) % len(m.runs)
	m.full = len(kept) == len(m.runs)
	return int64(n - len(kept)), nil
}
