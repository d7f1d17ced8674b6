package avs

import "sync"

// Sentinel values for MediaStats latency fields.
const (
	StatNotYet = -1
	StatError  = -2
)

// MediaStats is a read-only snapshot of a session's establishment
// latencies and DTLS packet counters.
type MediaStats struct {
	TurnAllocMs int64
	NatEstabMs  int64
	DtlsEstabMs int64

	DtlsPacketsSent     uint64
	DtlsPacketsReceived uint64
}

// statsTracker holds the mutable counters a session updates as it
// establishes; snapshot returns an immutable copy for callers.
type statsTracker struct {
	mu    sync.Mutex
	stats MediaStats
}

func newStatsTracker() *statsTracker {
	return &statsTracker{
		stats: MediaStats{
			TurnAllocMs: StatNotYet,
			NatEstabMs:  StatNotYet,
			DtlsEstabMs: StatNotYet,
		},
	}
}

func (t *statsTracker) snapshot() MediaStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *statsTracker) setNatEstab(ms int64) {
	t.mu.Lock()
	t.stats.NatEstabMs = ms
	t.mu.Unlock()
}

func (t *statsTracker) setTurnAlloc(ms int64) {
	t.mu.Lock()
	t.stats.TurnAllocMs = ms
	t.mu.Unlock()
}

func (t *statsTracker) setDtlsEstab(ms int64) {
	t.mu.Lock()
	t.stats.DtlsEstabMs = ms
	t.mu.Unlock()
}

func (t *statsTracker) addDtlsSent(n uint64) {
	t.mu.Lock()
	t.stats.DtlsPacketsSent += n
	t.mu.Unlock()
}

func (t *statsTracker) addDtlsReceived(n uint64) {
	t.mu.Lock()
	t.stats.DtlsPacketsReceived += n
	t.mu.Unlock()
}
