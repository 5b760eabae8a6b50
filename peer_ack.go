package rnet

// queueAcknowledgement records that header's command (reliable, flagged
// ACKNOWLEDGE) was received and must be acked in the next outgoing
// datagram (spec §4.5). While ACKNOWLEDGING_DISCONNECT, only a DISCONNECT
// ack is accepted.
func (p *Peer) queueAcknowledgement(header commandHeader, sentTime uint16) {
	if p.state == StateAcknowledgingDisconnect && header.Command&commandNumberMask != cmdDisconnect {
		return
	}
	p.outgoingDataTotal += uint32(commandRecordSize[cmdAcknowledge])
	p.acknowledgements.pushBack(&acknowledgement{sentTime: sentTime, command: header})
}

// findAndRetireReliableCommand searches sentReliableCommands, then
// outgoingCommands, then outgoingSendReliableCommands for the reliable
// command matching channelID/reliableSeq, unlinks it, and returns it
// (spec §4.5 step 7).
func (p *Peer) findAndRetireReliableCommand(channelID uint8, reliableSeq uint16) (*outgoingCommand, bool) {
	for _, lst := range [...]*list[*outgoingCommand]{p.sentReliableCommands, p.outgoingCommands, p.outgoingSendReliableCommands} {
		for n := lst.front(); n != nil; n = n.next {
			cmd := n.value
			if cmd.header.ChannelID == channelID && cmd.reliableSequenceNumber == reliableSeq && cmd.header.Command&commandFlagAcknowledge != 0 {
				lst.remove(n)
				return cmd, true
			}
		}
	}
	return nil, false
}

// reconstructSentTime stitches the 16-bit ACKNOWLEDGE sent-time field back
// onto the host's 32-bit service clock (spec §4.5 step 1).
func reconstructSentTime(serviceTime uint32, lower16 uint16) uint32 {
	t := (serviceTime & 0xFFFF0000) | uint32(lower16)
	switch {
	case t > serviceTime && t-serviceTime >= 0x8000:
		t -= 0x10000
	case t < serviceTime && serviceTime-t >= 0x8000:
		t += 0x10000
	}
	return t
}

func absDiffU32(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// handleAcknowledge implements spec §4.5's ACKNOWLEDGE receipt steps 1-8.
// channelID is the channel of the *acked* command, carried in the wire
// header of the ACKNOWLEDGE command itself (original_source/src/protocol.cpp:
// enet_protocol_handle_acknowledge reuses the acked command's channelID).
func (p *Peer) handleAcknowledge(ac acknowledgeCommand, channelID uint8) error {
	h := p.host

	receivedSentTime := reconstructSentTime(h.serviceTime, ac.ReceivedSentTime)
	if timeGreater(receivedSentTime, h.serviceTime) {
		return nil
	}

	rtt := h.serviceTime - receivedSentTime
	if rtt < 1 {
		rtt = 1
	}

	if !p.rttInitialized {
		p.roundTripTime = rtt
		p.roundTripTimeVariance = (rtt + 1) / 2
		p.rttInitialized = true
	} else {
		diff := absDiffU32(rtt, p.roundTripTime)
		p.roundTripTimeVariance -= p.roundTripTimeVariance / 4
		p.roundTripTimeVariance += diff / 4
		if rtt >= p.roundTripTime {
			p.roundTripTime += diff / 8
		} else {
			p.roundTripTime -= diff / 8
		}
	}

	if p.lowestRoundTripTime == 0 || rtt < p.lowestRoundTripTime {
		p.lowestRoundTripTime = rtt
	}
	if p.roundTripTimeVariance > p.highestRTTVariance {
		p.highestRTTVariance = p.roundTripTimeVariance
	}

	if p.packetThrottleEpoch == 0 {
		p.packetThrottleEpoch = h.serviceTime
	}

	p.throttle(rtt)

	if timeDifference(h.serviceTime, p.packetThrottleEpoch) >= p.packetThrottleInterval {
		p.lastRoundTripTime = p.lowestRoundTripTime
		p.lastRTTVariance = p.highestRTTVariance
		if p.lastRTTVariance < 1 {
			p.lastRTTVariance = 1
		}
		p.packetThrottleEpoch = h.serviceTime
		p.lowestRoundTripTime = p.roundTripTime
		p.highestRTTVariance = p.roundTripTimeVariance
	}

	if h.serviceTime > 1 {
		p.lastReceiveTime = h.serviceTime
	} else {
		p.lastReceiveTime = 1
	}
	p.earliestTimeout = 0

	cmd, ok := p.findAndRetireReliableCommand(channelID, ac.ReceivedReliableSequenceNumber)
	if !ok {
		return nil
	}

	if cmd.packet != nil {
		if cmd.fragmentLength > p.reliableDataInTransit {
			p.reliableDataInTransit = 0
		} else {
			p.reliableDataInTransit -= cmd.fragmentLength
		}
	}

	if channelID != channelIDControl && int(channelID) < p.channelCount {
		ch := p.channels[channelID]
		ch.decrementWindow(int(cmd.reliableSequenceNumber) / peerReliableWindowSize)
	}

	number := cmd.number()
	pktLen := uint32(0)
	if cmd.packet != nil {
		pktLen = uint32(len(cmd.packet.Data))
	}
	if p.releaseOutgoing(cmd) && pktLen > 0 {
		if pktLen > p.totalWaitingData {
			p.totalWaitingData = 0
		} else {
			p.totalWaitingData -= pktLen
		}
	}

	switch {
	case p.state == StateAcknowledgingConnect && number == cmdVerifyConnect:
		h.notifyConnect(p)
	case p.state == StateDisconnecting && number == cmdDisconnect:
		h.notifyDisconnect(p)
	case p.state == StateDisconnectLater && p.outgoingCommands.empty() &&
		p.outgoingSendReliableCommands.empty() && p.sentReliableCommands.empty():
		p.disconnect(p.eventData)
	}

	return nil
}

// handleVerifyConnect implements spec §4.8's client-side VERIFY_CONNECT
// handling. A VERIFY_CONNECT received outside StateConnecting is stale
// and ignored silently (decided open question, see DESIGN.md).
func (p *Peer) handleVerifyConnect(vc verifyConnectCommand) error {
	if p.state != StateConnecting {
		return nil
	}

	if vc.ThrottleInterval != p.packetThrottleInterval ||
		vc.ThrottleAcceleration != p.packetThrottleAcceleration ||
		vc.ThrottleDeceleration != p.packetThrottleDeceleration ||
		vc.ConnectID != p.connectID {
		p.state = StateZombie
		p.host.queueDispatch(p)
		return errVerifyConnectMismatch
	}

	p.findAndRetireReliableCommand(channelIDControl, 1)

	if vc.ChannelCount < uint32(p.channelCount) {
		p.channelCount = int(vc.ChannelCount)
		p.channels = p.channels[:p.channelCount]
	}

	p.outgoingPeerID = vc.OutgoingPeerID
	p.incomingSessionID = vc.IncomingSession
	p.outgoingSessionID = vc.OutgoingSession

	mtu := vc.MTU
	if mtu < MinimumMTU {
		mtu = MinimumMTU
	}
	if mtu > MaximumMTU {
		mtu = MaximumMTU
	}
	p.mtu = mtu
	p.windowSize = vc.WindowSize
	p.incomingBandwidth = vc.IncomingBandwidth
	p.outgoingBandwidth = vc.OutgoingBandwidth
	p.packetThrottleInterval = vc.ThrottleInterval
	p.packetThrottleAcceleration = vc.ThrottleAcceleration
	p.packetThrottleDeceleration = vc.ThrottleDeceleration

	p.host.notifyConnect(p)
	return nil
}

// handleDisconnect implements spec §4.9's DISCONNECT receipt handling.
func (p *Peer) handleDisconnect(dc disconnectCommand, header commandHeader) error {
	if p.state == StateDisconnected || p.state == StateZombie || p.state == StateAcknowledgingDisconnect {
		return nil
	}

	p.resetQueues()

	switch p.state {
	case StateConnectionSucceeded, StateDisconnecting, StateConnecting:
		p.state = StateZombie
		p.host.queueDispatch(p)
	case StateConnected, StateDisconnectLater:
		if header.Command&commandFlagAcknowledge != 0 {
			p.state = StateAcknowledgingDisconnect
		} else {
			p.state = StateZombie
			p.host.queueDispatch(p)
		}
	default:
		if p.state == StateConnectionPending {
			p.host.recalculateBandwidthLimits = true
		}
		p.reset()
	}

	p.eventData = dc.Data
	return nil
}
