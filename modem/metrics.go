package modem

import "go.uber.org/atomic"

// Metrics counts channel activity. All counters are safe for concurrent
// use.
type Metrics struct {
	CommandsSent     atomic.Int64
	CommandFailures  atomic.Int64
	Timeouts         atomic.Int64
	UnsolicitedLines atomic.Int64
	PDUsWritten      atomic.Int64
	LinesDropped     atomic.Int64
	BytesWritten     atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	CommandsSent     int64 `json:"commands_sent"`
	CommandFailures  int64 `json:"command_failures"`
	Timeouts         int64 `json:"timeouts"`
	UnsolicitedLines int64 `json:"unsolicited_lines"`
	PDUsWritten      int64 `json:"pdus_written"`
	LinesDropped     int64 `json:"lines_dropped"`
	BytesWritten     int64 `json:"bytes_written"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CommandsSent:     m.CommandsSent.Load(),
		CommandFailures:  m.CommandFailures.Load(),
		Timeouts:         m.Timeouts.Load(),
		UnsolicitedLines: m.UnsolicitedLines.Load(),
		PDUsWritten:      m.PDUsWritten.Load(),
		LinesDropped:     m.LinesDropped.Load(),
		BytesWritten:     m.BytesWritten.Load(),
	}
}
