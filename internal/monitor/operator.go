package monitor

import (
	"context"
	"sort"
	"time"

	"cvewatch/internal/seen"
)

// Snapshot is a point-in-time view of the loop for status reporting.
type Snapshot struct {
	State     State
	Paused    bool
	Uptime    time.Duration
	Ticks     int
	Announced int
	LastTick  time.Time
	LastSweep time.Time
	NextSweep time.Time
}

// Pause toggles the pause flag and reports the new value. A pause takes
// effect at the start of the next tick; a tick already in flight finishes.
func (m *Monitor) Pause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = !m.paused
	return m.paused
}

// Resume clears the pause flag regardless of its current value.
func (m *Monitor) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
}

func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// ForceTick runs one cycle immediately, even while paused. The serialization
// guard still applies, so a forced tick queues behind an active one.
func (m *Monitor) ForceTick(ctx context.Context) error {
	if m.Paused() {
		m.Resume()
		defer func() {
			m.mu.Lock()
			m.paused = true
			m.mu.Unlock()
		}()
	}
	return m.Tick(ctx)
}

// ForceSweep runs retention immediately, resetting the sweep marker.
func (m *Monitor) ForceSweep(ctx context.Context) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.runSweep(ctx)
}

// CriticalList returns every tracked critical entry, newest first.
func (m *Monitor) CriticalList() []seen.Entry {
	entries := m.store.Critical()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PublishedAt.After(entries[j].PublishedAt)
	})
	return entries
}

func (m *Monitor) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.startedAt)
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:     m.state,
		Paused:    m.paused,
		Uptime:    m.now().Sub(m.startedAt),
		Ticks:     m.ticks,
		Announced: m.announced,
		LastTick:  m.lastTick,
		LastSweep: m.lastSweep,
		NextSweep: m.lastSweep.Add(m.cfg.SweepInterval),
	}
}
