package loot

import "hemoclast.online/internal/protocol"

// Member is a joined party member (player or encounter bot).
type Member struct {
	ID    string
	Name  string
	Class string
	Level int

	// ResumeToken is a transport-level token used for reconnects.
	ResumeToken string

	Events      []protocol.Event
	EventCursor uint64

	// Rate limiting windows (per instant type).
	rl map[string]*rateWindow
}

type rateWindow struct {
	StartTick uint64
	Count     int
	Window    uint64
	Max       int
}

func (m *Member) initDefaults() {
	if m.rl == nil {
		m.rl = map[string]*rateWindow{}
	}
	if m.Level <= 0 {
		m.Level = 1
	}
	if m.Class == "" {
		m.Class = "ADVENTURER"
	}
}

func (m *Member) AddEvent(e protocol.Event) {
	m.Events = append(m.Events, e)
}

func (m *Member) TakeEvents() []protocol.Event {
	ev := m.Events
	m.Events = nil
	return ev
}

// RateLimitAllow reports whether another instant of the given kind fits in
// the current window; on denial it also returns the cooldown in ticks.
func (m *Member) RateLimitAllow(kind string, nowTick uint64, window uint64, max int) (bool, uint64) {
	w, ok := m.rl[kind]
	if !ok {
		w = &rateWindow{StartTick: nowTick, Window: window, Max: max}
		m.rl[kind] = w
	}
	w.Window = window
	w.Max = max
	// Treat invalid windows as "allow" rather than diverging.
	if w.Window == 0 || w.Max <= 0 {
		return true, 0
	}
	if nowTick-w.StartTick >= w.Window {
		w.StartTick = nowTick
		w.Count = 0
	}
	w.Count++
	if w.Count <= w.Max {
		return true, 0
	}
	return false, w.StartTick + w.Window - nowTick
}
