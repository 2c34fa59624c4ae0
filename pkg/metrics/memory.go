package metrics

import "sync"

// MemoryObserver keeps recorded events in memory, bounded to the most
// recent limit entries when limit > 0.
type MemoryObserver struct {
	mu     sync.Mutex
	limit  int
	events []MetricsEvent
}

func NewMemoryObserver(limit int) *MemoryObserver {
	return &MemoryObserver{limit: limit}
}

func (m *MemoryObserver) RecordEvent(ev MetricsEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = append([]MetricsEvent(nil), m.events[len(m.events)-m.limit:]...)
	}
	m.mu.Unlock()
}

// Events returns a copy of the recorded events in arrival order.
func (m *MemoryObserver) Events() []MetricsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MetricsEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many recorded events carry name.
func (m *MemoryObserver) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}
