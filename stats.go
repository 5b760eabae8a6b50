package rnet

import (
	"fmt"
	"sync/atomic"
)

// hostStats is a per-Host traffic counter set, in the shape of
// 1ureka-roj1's process-wide stats singleton but scoped to one Host rather
// than kept as global state (spec §5: the host, not a global, owns its
// counters).
type hostStats struct {
	packetsSent     atomic.Int64
	packetsReceived atomic.Int64
	bytesSent       atomic.Int64
	bytesReceived   atomic.Int64
}

func (s *hostStats) addSent(bytes int) {
	s.packetsSent.Add(1)
	s.bytesSent.Add(int64(bytes))
}

func (s *hostStats) addReceived(bytes int) {
	s.packetsReceived.Add(1)
	s.bytesReceived.Add(int64(bytes))
}

var byteUnits = []string{"B", "KiB", "MiB", "GiB"}

func formatBytes(b float64) string {
	unitIdx := 0
	for b > 999 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}
	return fmt.Sprintf("%.1f %s", b, byteUnits[unitIdx])
}

// Summary renders a human-readable snapshot of the host's traffic counters,
// suitable for periodic logging by a caller.
func (s *hostStats) Summary() string {
	return fmt.Sprintf("sent %s (%d pkts), recv %s (%d pkts)",
		formatBytes(float64(s.bytesSent.Load())), s.packetsSent.Load(),
		formatBytes(float64(s.bytesReceived.Load())), s.packetsReceived.Load())
}
