package rnet

import "net"

// handleConnect implements the server side of spec §4.8's handshake.
func (h *Host) handleConnect(cc connectCommand, header commandHeader, addr net.Addr) error {
	if cc.ChannelCount < MinimumChannelCount || cc.ChannelCount > MaximumChannelCount {
		return errInvalidChannelCount
	}

	var free *Peer
	duplicates := 0
	for _, p := range h.peers {
		if p.state == StateDisconnected {
			if free == nil {
				free = p
			}
			continue
		}
		if p.state == StateConnecting {
			continue
		}
		if sameHost(p.address, addr) {
			if p.connectID == cc.ConnectID {
				return nil // already connected, drop the retransmitted CONNECT
			}
			duplicates++
		}
	}

	if free == nil {
		return errNoFreePeerSlot
	}
	if duplicates >= h.duplicatePeers {
		return errDuplicatePeer
	}

	p := free
	p.address = addr
	p.resetChannels(int(cc.ChannelCount))
	p.state = StateAcknowledgingConnect
	p.connectID = cc.ConnectID
	p.outgoingPeerID = cc.OutgoingPeerID
	p.incomingBandwidth = cc.IncomingBandwidth
	p.outgoingBandwidth = cc.OutgoingBandwidth
	p.packetThrottleInterval = cc.ThrottleInterval
	p.packetThrottleAcceleration = cc.ThrottleAcceleration
	p.packetThrottleDeceleration = cc.ThrottleDeceleration
	p.eventData = cc.Data

	h.negotiateSessions(p, cc)

	mtu := cc.MTU
	if mtu < MinimumMTU {
		mtu = MinimumMTU
	}
	if mtu > MaximumMTU {
		mtu = MaximumMTU
	}
	if mtu > p.mtu {
		mtu = p.mtu
	}
	p.mtu = mtu

	windowSize := peerWindowSizeFromBandwidth(h.outgoingBandwidth, p.incomingBandwidth)
	if cc.WindowSize < windowSize {
		windowSize = cc.WindowSize
	}
	p.windowSize = windowSize

	p.lastReceiveTime = h.serviceTime
	p.lastSendTime = h.serviceTime
	p.earliestTimeout = 0

	return p.queueControlCommand(commandHeader{Command: cmdVerifyConnect | commandFlagAcknowledge, ChannelID: channelIDControl},
		verifyConnectCommand{
			OutgoingPeerID:       p.incomingPeerID,
			IncomingSession:      p.incomingSessionID,
			OutgoingSession:      p.outgoingSessionID,
			MTU:                  p.mtu,
			WindowSize:           p.windowSize,
			ChannelCount:         uint32(p.channelCount),
			IncomingBandwidth:    p.incomingBandwidth,
			OutgoingBandwidth:    p.outgoingBandwidth,
			ThrottleInterval:     p.packetThrottleInterval,
			ThrottleAcceleration: p.packetThrottleAcceleration,
			ThrottleDeceleration: p.packetThrottleDeceleration,
			ConnectID:            p.connectID,
		})
}

// negotiateSessions derives fresh session ids for both directions,
// ported from original_source/src/protocol.cpp's
// enet_protocol_handle_connect (spec §4.8 step 4). 0xFF in the command
// means "pick one for me".
func (h *Host) negotiateSessions(p *Peer, cc connectCommand) {
	const mask = headerSessionMask

	in := cc.IncomingSession
	if in == 0xFF {
		in = p.outgoingSessionID
	}
	in = (in + 1) & uint8(mask)
	if in == p.outgoingSessionID {
		in = (in + 1) & uint8(mask)
	}
	p.outgoingSessionID = in

	out := cc.OutgoingSession
	if out == 0xFF {
		out = p.incomingSessionID
	}
	out = (out + 1) & uint8(mask)
	if out == p.incomingSessionID {
		out = (out + 1) & uint8(mask)
	}
	p.incomingSessionID = out
}

// peerWindowSizeFromBandwidth computes the negotiated window size from
// the host's outgoing bandwidth and the peer's advertised incoming
// bandwidth (spec §4.8 step 6).
func peerWindowSizeFromBandwidth(hostOutgoing, peerIncoming uint32) uint32 {
	if hostOutgoing == 0 || peerIncoming == 0 {
		return MaximumWindowSize
	}
	limit := hostOutgoing
	if peerIncoming < limit {
		limit = peerIncoming
	}
	w := (limit / peerWindowSizeScale) * MinimumWindowSize
	if w < MinimumWindowSize {
		w = MinimumWindowSize
	}
	if w > MaximumWindowSize {
		w = MaximumWindowSize
	}
	return w
}
