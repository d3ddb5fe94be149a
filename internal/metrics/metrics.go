package metrics

import "sync/atomic"

// Registry counts what the rooms and connections are doing. The zero value
// is ready to use and a nil *Registry ignores every call.
type Registry struct {
	RoomsOpen        int64
	Connections      int64
	MessagesIn       int64
	RateLimited      int64
	Malformed        int64
	Denied           int64
	StaleDropped     int64
	Broadcasts       int64
	ThrottledUpdates int64
	SlowClients      int64
	RacesFinished    int64
	ArchiveDropped   int64
}

func (m *Registry) add(field *int64, n int64) {
	atomic.AddInt64(field, n)
}

func (m *Registry) RoomOpened() {
	if m != nil {
		m.add(&m.RoomsOpen, 1)
	}
}

func (m *Registry) RoomClosed() {
	if m != nil {
		m.add(&m.RoomsOpen, -1)
	}
}

func (m *Registry) ConnOpened() {
	if m != nil {
		m.add(&m.Connections, 1)
	}
}

func (m *Registry) ConnClosed() {
	if m != nil {
		m.add(&m.Connections, -1)
	}
}

func (m *Registry) IncMessagesIn() {
	if m != nil {
		m.add(&m.MessagesIn, 1)
	}
}

func (m *Registry) IncRateLimited() {
	if m != nil {
		m.add(&m.RateLimited, 1)
	}
}

func (m *Registry) IncMalformed() {
	if m != nil {
		m.add(&m.Malformed, 1)
	}
}

func (m *Registry) IncDenied() {
	if m != nil {
		m.add(&m.Denied, 1)
	}
}

func (m *Registry) IncStaleDropped() {
	if m != nil {
		m.add(&m.StaleDropped, 1)
	}
}

func (m *Registry) IncBroadcasts() {
	if m != nil {
		m.add(&m.Broadcasts, 1)
	}
}

func (m *Registry) IncThrottled() {
	if m != nil {
		m.add(&m.ThrottledUpdates, 1)
	}
}

func (m *Registry) IncSlowClients() {
	if m != nil {
		m.add(&m.SlowClients, 1)
	}
}

func (m *Registry) IncRacesFinished() {
	if m != nil {
		m.add(&m.RacesFinished, 1)
	}
}

func (m *Registry) IncArchiveDropped() {
	if m != nil {
		m.add(&m.ArchiveDropped, 1)
	}
}

// Snapshot returns a read-only copy for the HTTP endpoint.
func (m *Registry) Snapshot() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return map[string]int64{
		"rooms_open":        atomic.LoadInt64(&m.RoomsOpen),
		"connections":       atomic.LoadInt64(&m.Connections),
		"messages_in":       atomic.LoadInt64(&m.MessagesIn),
		"rate_limited":      atomic.LoadInt64(&m.RateLimited),
		"malformed":         atomic.LoadInt64(&m.Malformed),
		"denied":            atomic.LoadInt64(&m.Denied),
		"stale_dropped":     atomic.LoadInt64(&m.StaleDropped),
		"broadcasts":        atomic.LoadInt64(&m.Broadcasts),
		"throttled_updates": atomic.LoadInt64(&m.ThrottledUpdates),
		"slow_clients":      atomic.LoadInt64(&m.SlowClients),
		"races_finished":    atomic.LoadInt64(&m.RacesFinished),
		"archive_dropped":   atomic.LoadInt64(&m.ArchiveDropped),
	}
}
