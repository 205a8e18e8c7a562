package progress

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Tracker.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Snapshot
	now     func() time.Time
}

// NewMemory returns an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Snapshot), now: time.Now}
}

func (m *Memory) Begin(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[id]
	if ok && (current.State == StateRendering || current.State == StateDone) {
		return false, nil
	}
	m.records[id] = Snapshot{State: StateRendering, UpdatedAt: m.now()}
	return true, nil
}

func (m *Memory) Report(_ context.Context, id string, percent float64) error {
	value := clampPercent(percent)
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[id]
	if !ok || current.State != StateRendering || value <= current.Percent {
		return nil
	}
	current.Percent = value
	current.UpdatedAt = m.now()
	m.records[id] = current
	return nil
}

func (m *Memory) Complete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = Snapshot{State: StateDone, Percent: 100, UpdatedAt: m.now()}
	return nil
}

func (m *Memory) Fail(_ context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.records[id]
	m.records[id] = Snapshot{State: StateFailed, Percent: current.Percent, Reason: reason, UpdatedAt: m.now()}
	return nil
}

func (m *Memory) Query(_ context.Context, id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if snap, ok := m.records[id]; ok {
		return snap, nil
	}
	return Snapshot{State: StateOpen}, nil
}

func (m *Memory) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *Memory) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, snap := range m.records {
		if snap.UpdatedAt.Before(cutoff) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) ResetStuck(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset := 0
	for id, snap := range m.records {
		if snap.State != StateRendering {
			continue
		}
		snap.State = StateFailed
		snap.Reason = InterruptedReason
		snap.UpdatedAt = m.now()
		m.records[id] = snap
		reset++
	}
	return reset, nil
}

func (m *Memory) Close() error { return nil }

var _ Tracker = (*Memory)(nil)
