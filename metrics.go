package vcnet

import "sync/atomic"

// Metrics holds the monotonic counters of the networking core. All
// fields are updated atomically and may be read at any time.
type Metrics struct {
	PacketsSent     atomic.Uint64
	PacketsReceived atomic.Uint64
	BytesSent       atomic.Uint64
	BytesReceived   atomic.Uint64

	ChecksumFailures atomic.Uint64
	ProtocolErrors   atomic.Uint64
	FragmentsExpired atomic.Uint64

	Retransmits  atomic.Uint64
	Duplicates   atomic.Uint64
	StaleDropped atomic.Uint64

	SnapshotsSent    atomic.Uint64
	SnapshotsApplied atomic.Uint64
	SnapshotsStale   atomic.Uint64
	FullSnapshotReqs atomic.Uint64

	Reconciliations atomic.Uint64

	// PredictionErrorMilli accumulates reconciliation divergence in
	// thousandths of a world unit.
	PredictionErrorMilli atomic.Uint64
}

// RecordPredictionError accounts a reconciliation divergence of dist
// world units.
func (m *Metrics) RecordPredictionError(dist float32) {
	m.PredictionErrorMilli.Add(uint64(dist * 1000))
}

// Snapshot returns a point-in-time copy of all counters keyed by
// name, for the status endpoint and the console.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"packets_sent":           m.PacketsSent.Load(),
		"packets_received":       m.PacketsReceived.Load(),
		"bytes_sent":             m.BytesSent.Load(),
		"bytes_received":         m.BytesReceived.Load(),
		"checksum_failures":      m.ChecksumFailures.Load(),
		"protocol_errors":        m.ProtocolErrors.Load(),
		"fragments_expired":      m.FragmentsExpired.Load(),
		"retransmits":            m.Retransmits.Load(),
		"duplicates":             m.Duplicates.Load(),
		"stale_dropped":          m.StaleDropped.Load(),
		"snapshots_sent":         m.SnapshotsSent.Load(),
		"snapshots_applied":      m.SnapshotsApplied.Load(),
		"snapshots_stale":        m.SnapshotsStale.Load(),
		"full_snapshot_reqs":     m.FullSnapshotReqs.Load(),
		"reconciliations":        m.Reconciliations.Load(),
		"prediction_error_milli": m.PredictionErrorMilli.Load(),
	}
}
