package rnet

// throttleBandwidth implements spec §4.7: a periodic fixed-point pass that
// apportions each connected peer's outgoing packetThrottleLimit from the
// host's outgoing bandwidth cap (weighted by how much each peer has
// actually been sending), then, if the host's own bandwidth limits were
// just changed, recomputes and announces each peer's incoming-bandwidth
// share via BANDWIDTH_LIMIT (ported from host_bandwidth_throttle,
// original_source/src/host.cpp:315-500).
func (h *Host) throttleBandwidth() {
	elapsed := h.serviceTime - h.bandwidthThrottleEpoch
	h.bandwidthThrottleEpoch = h.serviceTime

	connected := h.connectedPeerList()
	if len(connected) == 0 {
		return
	}

	var dataTotal, bandwidth uint32
	dataTotal = ^uint32(0)
	bandwidth = ^uint32(0)

	if h.outgoingBandwidth != 0 {
		dataTotal = 0
		bandwidth = (h.outgoingBandwidth * elapsed) / 1000
		for _, p := range connected {
			dataTotal += p.outgoingDataTotal
		}
	}

	peersRemaining := uint32(len(connected))
	bandwidthLimited := 0
	for _, p := range connected {
		if p.incomingBandwidth != 0 {
			bandwidthLimited++
		}
	}
	needsAdjustment := bandwidthLimited > 0

	for peersRemaining > 0 && needsAdjustment {
		needsAdjustment = false

		var throttle uint32
		if dataTotal <= bandwidth {
			throttle = peerPacketThrottleScale
		} else {
			throttle = (bandwidth * peerPacketThrottleScale) / dataTotal
		}

		for _, p := range connected {
			if p.incomingBandwidth == 0 || p.outgoingBandwidthThrottleEpoch == h.serviceTime {
				continue
			}

			peerBandwidth := (p.incomingBandwidth * elapsed) / 1000
			if (throttle*p.outgoingDataTotal)/peerPacketThrottleScale <= peerBandwidth {
				continue
			}

			p.packetThrottleLimit = (peerBandwidth * peerPacketThrottleScale) / p.outgoingDataTotal
			if p.packetThrottleLimit == 0 {
				p.packetThrottleLimit = 1
			}
			if p.packetThrottle > p.packetThrottleLimit {
				p.packetThrottle = p.packetThrottleLimit
			}

			p.outgoingBandwidthThrottleEpoch = h.serviceTime
			p.incomingDataTotal = 0
			p.outgoingDataTotal = 0

			needsAdjustment = true
			peersRemaining--
			if peerBandwidth > bandwidth {
				bandwidth = 0
			} else {
				bandwidth -= peerBandwidth
			}
			if peerBandwidth > dataTotal {
				dataTotal = 0
			} else {
				dataTotal -= peerBandwidth
			}
		}
	}

	if peersRemaining > 0 {
		var throttle uint32
		if dataTotal <= bandwidth {
			throttle = peerPacketThrottleScale
		} else {
			throttle = (bandwidth * peerPacketThrottleScale) / dataTotal
		}

		for _, p := range connected {
			if p.outgoingBandwidthThrottleEpoch == h.serviceTime {
				continue
			}
			p.packetThrottleLimit = throttle
			if p.packetThrottle > p.packetThrottleLimit {
				p.packetThrottle = p.packetThrottleLimit
			}
			p.incomingDataTotal = 0
			p.outgoingDataTotal = 0
		}
	}

	if !h.recalculateBandwidthLimits {
		return
	}
	h.recalculateBandwidthLimits = false

	peersRemaining = uint32(len(connected))
	bandwidth = h.incomingBandwidth
	var bandwidthLimit uint32
	needsAdjustment = true

	if bandwidth != 0 {
		for peersRemaining > 0 && needsAdjustment {
			needsAdjustment = false
			bandwidthLimit = bandwidth / peersRemaining

			for _, p := range connected {
				if p.incomingBandwidthThrottleEpoch == h.serviceTime {
					continue
				}
				if p.outgoingBandwidth > 0 && p.outgoingBandwidth >= bandwidthLimit {
					continue
				}

				p.incomingBandwidthThrottleEpoch = h.serviceTime
				needsAdjustment = true
				peersRemaining--
				if p.outgoingBandwidth > bandwidth {
					bandwidth = 0
				} else {
					bandwidth -= p.outgoingBandwidth
				}
			}
		}
	}

	for _, p := range connected {
		incoming := bandwidthLimit
		if p.incomingBandwidthThrottleEpoch == h.serviceTime {
			incoming = p.outgoingBandwidth
		}
		_ = p.queueControlCommand(
			commandHeader{Command: cmdBandwidthLimit | commandFlagAcknowledge, ChannelID: channelIDControl},
			bandwidthLimitCommand{IncomingBandwidth: incoming, OutgoingBandwidth: h.outgoingBandwidth},
		)
	}
}

// connectedPeerList returns every peer currently counted as connected for
// bandwidth-accounting purposes (CONNECTED or DISCONNECT_LATER), recomputed
// on demand rather than trusted from h.connectedPeers, whose incremental
// maintenance does not cover every state-transition call site (see
// DESIGN.md).
func (h *Host) connectedPeerList() []*Peer {
	out := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		if p.connectedOrDisconnectLater() {
			out = append(out, p)
		}
	}
	return out
}
