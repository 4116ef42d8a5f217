package spp

import "github.com/puzpuzpuz/xsync/v3"

// Stats holds the link counters of a role.
// The counters are updated from the stack's callback context.
type Stats struct {
	received *xsync.Counter
	dropped  *xsync.Counter
	written  *xsync.Counter
	rejected *xsync.Counter
	illegal  *xsync.Counter
}

// StatsSnapshot is a point-in-time copy of the link counters.
type StatsSnapshot struct {
	BytesReceived      int64 `json:"bytes_received"`
	BytesDropped       int64 `json:"bytes_dropped"`
	PayloadsWritten    int64 `json:"payloads_written"`
	PayloadsRejected   int64 `json:"payloads_rejected"`
	IllegalTransitions int64 `json:"illegal_transitions"`
}

func newStats() *Stats {
	return &Stats{
		received: xsync.NewCounter(),
		dropped:  xsync.NewCounter(),
		written:  xsync.NewCounter(),
		rejected: xsync.NewCounter(),
		illegal:  xsync.NewCounter(),
	}
}

// Snapshot returns the current value of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		BytesReceived:      s.received.Value(),
		BytesDropped:       s.dropped.Value(),
		PayloadsWritten:    s.written.Value(),
		PayloadsRejected:   s.rejected.Value(),
		IllegalTransitions: s.illegal.Value(),
	}
}
