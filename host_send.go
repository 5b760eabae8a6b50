package rnet

import "time"

// maxSendPasses bounds the CONTINUE_SENDING repeat loop (spec §4.14 step
// 8): a peer whose queues still overflow one datagram after a pass asks
// for another immediately, the way enet_protocol_send_outgoing_commands's
// sendPass/continueSending loop does, but capped here so a pathological
// backlog across many peers can't starve the caller of sendOutgoingCommands.
const maxSendPasses = 64

// sendOutgoingCommands drains every connected peer's send queues into at
// most one datagram per peer per pass, repeating while any peer still has
// data queued after filling a datagram to its MTU (ported from
// enet_protocol_send_outgoing_commands, original_source/src/protocol.cpp,
// spec §4.14/§4.15). State transitions it triggers (CONNECT completion via
// an ack, a peer reaching ZOMBIE from a timeout) are surfaced later through
// the normal dispatch queue rather than returned directly, so this always
// returns EventNone on success.
func (h *Host) sendOutgoingCommands(checkForTimeouts bool) (Event, error) {
	continueSending := 0
	for sendPass := 0; sendPass <= continueSending && sendPass < maxSendPasses; sendPass++ {
		for _, p := range h.peers {
			if p.state == StateDisconnected || p.state == StateZombie {
				continue
			}
			if sendPass > 0 && p.flags&peerFlagContinueSending == 0 {
				continue
			}
			p.flags &^= peerFlagContinueSending

			if checkForTimeouts && !p.sentReliableCommands.empty() && timeGreaterEqual(h.serviceTime, p.nextTimeout) {
				if h.checkPeerTimeouts(p) {
					continue
				}
			}

			more, err := h.sendToPeer(p)
			if err != nil {
				return Event{}, err
			}
			if more {
				continueSending = sendPass + 1
			}
		}
	}
	return Event{Type: EventNone}, nil
}

// checkPeerTimeouts walks p.sentReliableCommands looking for entries whose
// round-trip timeout has elapsed, backing off (doubling roundTripTimeout)
// and requeuing each for retransmission, or disconnecting the peer outright
// once the absolute or attempt-count timeout bound is exceeded (ported from
// enet_protocol_check_timeouts). Returns true if the peer was disconnected,
// in which case the caller must not attempt to send to it this pass.
func (h *Host) checkPeerTimeouts(p *Peer) bool {
	reliableInsertPos := p.outgoingSendReliableCommands.front()
	if reliableInsertPos == nil {
		reliableInsertPos = p.outgoingSendReliableCommands.end()
	}

	for n := p.sentReliableCommands.front(); n != nil; {
		cmd := n.value
		next := n.next

		if timeDifference(h.serviceTime, cmd.sentTime) < cmd.roundTripTimeout {
			n = next
			continue
		}

		if p.earliestTimeout == 0 || timeLess(cmd.sentTime, p.earliestTimeout) {
			p.earliestTimeout = cmd.sentTime
		}

		if p.earliestTimeout != 0 &&
			(timeDifference(h.serviceTime, p.earliestTimeout) >= p.timeoutMaximum ||
				(uint32(1<<(cmd.sendAttempts-1)) >= p.timeoutLimit &&
					timeDifference(h.serviceTime, p.earliestTimeout) >= p.timeoutMinimum)) {
			reliableWindows, unseqSlots := p.windowDiagnostics()
			logDebug("rnet: peer %s timed out (reliable windows in use=%d, unsequenced slots in use=%d)",
				p.address, reliableWindows, unseqSlots)
			h.notifyDisconnect(p)
			return true
		}

		p.packetsLost++
		cmd.roundTripTimeout *= 2

		p.sentReliableCommands.remove(n)
		if cmd.packet != nil {
			if cmd.fragmentLength > p.reliableDataInTransit {
				p.reliableDataInTransit = 0
			} else {
				p.reliableDataInTransit -= cmd.fragmentLength
			}
		}
		p.outgoingSendReliableCommands.insertBefore(reliableInsertPos, cmd)

		n = next
	}

	if front := p.sentReliableCommands.front(); front != nil {
		p.nextTimeout = front.value.sentTime + front.value.roundTripTimeout
	}
	return false
}

// sendToPeer assembles and transmits at most one datagram for p, draining
// acknowledgements first and then interleaving p.outgoingCommands and
// p.outgoingSendReliableCommands by queueTime (ported from
// enet_protocol_send_acknowledgements + enet_protocol_check_outgoing_commands).
// It reports whether p still has more queued than fit in this datagram.
func (h *Host) sendToPeer(p *Peer) (bool, error) {
	if h.outgoingLimiter != nil && !h.outgoingLimiter.AllowN(time.Now(), int(p.mtu)) {
		return true, nil
	}

	body := make([]byte, 0, p.mtu)
	packetSize := protocolHeaderSize
	commandCount := 0
	hasReliable := false
	continueSending := false

	for n := p.acknowledgements.front(); n != nil; {
		if commandCount >= MaximumPacketCommands || int(p.mtu)-packetSize < commandRecordSize[cmdAcknowledge] {
			continueSending = true
			break
		}
		next := n.next
		ack := n.value

		header := commandHeader{Command: cmdAcknowledge, ChannelID: ack.command.ChannelID, ReliableSequenceNumber: ack.command.ReliableSequenceNumber}
		body = writeAcknowledge(body, header, acknowledgeCommand{
			ReceivedReliableSequenceNumber: ack.command.ReliableSequenceNumber,
			ReceivedSentTime:               ack.sentTime,
		})
		packetSize += commandRecordSize[cmdAcknowledge]
		commandCount++

		if ack.command.Command&commandNumberMask == cmdDisconnect && p.state == StateAcknowledgingDisconnect {
			p.state = StateZombie
			h.queueDispatch(p)
		}

		p.acknowledgements.remove(n)
		n = next
	}

	curPlain := p.outgoingCommands.front()
	curReliable := p.outgoingSendReliableCommands.front()

	for curPlain != nil || curReliable != nil {
		fromReliable := curReliable != nil && (curPlain == nil || timeLess(curReliable.value.queueTime, curPlain.value.queueTime))

		var cmd *outgoingCommand
		if fromReliable {
			cmd = curReliable.value
		} else {
			cmd = curPlain.value
		}

		if cmd == nil {
			panic("DEBUG cmd nil fromReliable=" + boolToStr(fromReliable))
		}
		if fromReliable && cmd.packet != nil {
			throttledWindow := p.packetThrottle * p.windowSize / peerPacketThrottleScale
			budget := throttledWindow
			if p.mtu > budget {
				budget = p.mtu
			}
			if p.reliableDataInTransit+cmd.fragmentLength > budget {
				// Flow-control: in-flight reliable bytes already saturate this
				// peer's throttled window; stop pulling reliable commands this
				// pass but keep draining unreliable ones (original_source
				// src/protocol.cpp:1723-1732).
				curReliable = nil
				continue
			}
		}

		fixedSize := commandRecordSize[cmd.header.Command&commandNumberMask]
		remaining := int(p.mtu) - packetSize
		if commandCount >= MaximumPacketCommands || remaining < fixedSize ||
			(cmd.packet != nil && remaining < fixedSize+int(cmd.fragmentLength)) {
			continueSending = true
			break
		}

		if fromReliable {
			var ch *channel
			if cmd.header.ChannelID != channelIDControl && int(cmd.header.ChannelID) < p.channelCount {
				ch = p.channels[cmd.header.ChannelID]
			}
			if ch != nil && cmd.sendAttempts < 1 {
				ch.incrementWindow(int(cmd.reliableSequenceNumber) / peerReliableWindowSize)
			}
			cmd.sendAttempts++
			if cmd.roundTripTimeout == 0 {
				cmd.roundTripTimeout = p.roundTripTime + 4*p.roundTripTimeVariance
			}
			if p.sentReliableCommands.empty() {
				p.nextTimeout = h.serviceTime + cmd.roundTripTimeout
			}

			next := curReliable.next
			p.outgoingSendReliableCommands.remove(curReliable)
			p.sentReliableCommands.pushBack(cmd)
			curReliable = next

			cmd.sentTime = h.serviceTime
			hasReliable = true
			p.reliableDataInTransit += cmd.fragmentLength
		} else {
			if cmd.packet != nil && cmd.fragmentOffset == 0 {
				p.packetThrottleCounter += peerPacketThrottleCounter
				p.packetThrottleCounter %= peerPacketThrottleScale

				if p.packetThrottleCounter > p.packetThrottle {
					reliableSeq, unreliableSeq := cmd.reliableSequenceNumber, cmd.unreliableSequenceNumber
					n := curPlain
					for n != nil && n.value.reliableSequenceNumber == reliableSeq && n.value.unreliableSequenceNumber == unreliableSeq {
						c := n.value
						next := n.next
						p.outgoingCommands.remove(n)
						p.releaseOutgoing(c)
						n = next
					}
					curPlain = n
					continue
				}
			}

			next := curPlain.next
			p.outgoingCommands.remove(curPlain)
			curPlain = next
		}

		body = encodeOutgoingCommand(body, cmd)
		packetSize += fixedSize
		if cmd.packet != nil {
			packetSize += int(cmd.fragmentLength)
		}
		commandCount++
		p.packetsSent++

		if !fromReliable {
			freed := p.releaseOutgoing(cmd)
			_ = freed
		}
	}

	canPing := !hasReliable && p.sentReliableCommands.empty() &&
		timeDifference(h.serviceTime, p.lastReceiveTime) >= p.pingInterval &&
		int(p.mtu)-packetSize >= commandRecordSize[cmdPing]
	if canPing {
		cmd := &outgoingCommand{header: commandHeader{Command: cmdPing | commandFlagAcknowledge, ChannelID: channelIDControl}}
		p.setupOutgoingCommand(cmd)
		cmd.sendAttempts++
		cmd.roundTripTimeout = p.roundTripTime + 4*p.roundTripTimeVariance
		p.nextTimeout = h.serviceTime + cmd.roundTripTimeout
		cmd.sentTime = h.serviceTime
		p.sentReliableCommands.pushBack(cmd)

		body = writePing(body, cmd.header)
		packetSize += commandRecordSize[cmdPing]
		commandCount++
		p.packetsSent++
		hasReliable = true
	}

	if commandCount == 0 {
		h.finishDisconnectLater(p)
		return continueSending, nil
	}

	if p.packetLossEpoch == 0 {
		p.packetLossEpoch = h.serviceTime
	} else if timeDifference(h.serviceTime, p.packetLossEpoch) >= peerPacketLossInterval && p.packetsSent > 0 {
		loss := p.packetsLost * peerPacketLossScale / p.packetsSent
		p.packetLossVariance = (p.packetLossVariance*3 + absDiffU32(loss, p.packetLoss)) / 4
		p.packetLoss = (p.packetLoss*7 + loss) / 8
		p.packetLossEpoch = h.serviceTime
		p.packetsSent = 0
		p.packetsLost = 0
	}

	datagram := h.assembleDatagram(p, body, hasReliable)
	n, err := h.socket.SendTo(datagram, p.address)
	if err != nil {
		return false, err
	}
	p.lastSendTime = h.serviceTime
	h.stats.addSent(n)

	h.finishDisconnectLater(p)
	return continueSending, nil
}

// finishDisconnectLater completes a DisconnectLater teardown once every
// outgoing queue has drained (spec §4.9 peer_disconnect_later, checked
// after every send attempt the way enet_protocol_check_outgoing_commands
// does at its tail).
func (h *Host) finishDisconnectLater(p *Peer) {
	if p.state == StateDisconnectLater &&
		p.outgoingCommands.empty() && p.outgoingSendReliableCommands.empty() && p.sentReliableCommands.empty() {
		p.disconnect(p.eventData)
	}
}

// encodeOutgoingCommand appends cmd's wire bytes to buf, dispatching on
// its command number the way codec.go's write* functions are individually
// shaped per record (spec §6.1).
func encodeOutgoingCommand(buf []byte, cmd *outgoingCommand) []byte {
	switch cmd.header.Command & commandNumberMask {
	case cmdPing:
		return writePing(buf, cmd.header)
	case cmdConnect:
		return writeConnect(buf, cmd.header, cmd.extra.(connectCommand))
	case cmdVerifyConnect:
		return writeVerifyConnect(buf, cmd.header, cmd.extra.(verifyConnectCommand))
	case cmdDisconnect:
		return writeDisconnect(buf, cmd.header, cmd.extra.(disconnectCommand))
	case cmdBandwidthLimit:
		return writeBandwidthLimit(buf, cmd.header, cmd.extra.(bandwidthLimitCommand))
	case cmdThrottleConfigure:
		return writeThrottleConfigure(buf, cmd.header, cmd.extra.(throttleConfigureCommand))
	case cmdSendReliable:
		payload := cmd.packet.Data[cmd.fragmentOffset : cmd.fragmentOffset+cmd.fragmentLength]
		return writeSendReliable(buf, cmd.header, uint16(cmd.fragmentLength), payload)
	case cmdSendUnreliable:
		payload := cmd.packet.Data[cmd.fragmentOffset : cmd.fragmentOffset+cmd.fragmentLength]
		return writeSendUnreliable(buf, cmd.header, sendUnreliableCommand{
			UnreliableSequenceNumber: cmd.unreliableSequenceNumber,
			DataLength:               uint16(cmd.fragmentLength),
		}, payload)
	case cmdSendFragment, cmdSendUnreliableFragment:
		payload := cmd.packet.Data[cmd.fragmentOffset : cmd.fragmentOffset+cmd.fragmentLength]
		return writeSendFragment(buf, cmd.header, sendFragmentCommand{
			StartSequenceNumber: cmd.startSequenceNumber,
			DataLength:          uint16(cmd.fragmentLength),
			FragmentCount:       cmd.fragmentCount,
			FragmentNumber:      cmd.fragmentNumber,
			TotalLength:         cmd.totalLength,
			FragmentOffset:      cmd.fragmentOffset,
		}, payload)
	case cmdSendUnsequenced:
		payload := cmd.packet.Data[cmd.fragmentOffset : cmd.fragmentOffset+cmd.fragmentLength]
		return writeSendUnsequenced(buf, cmd.header, sendUnsequencedCommand{
			UnsequencedGroup: cmd.unsequencedGroup,
			DataLength:       uint16(cmd.fragmentLength),
		}, payload)
	default:
		return buf
	}
}

// assembleDatagram builds the final header+body+checksum(+compression)
// bytes for one outgoing datagram (spec §4.14 steps 6-7). The checksum, if
// any, is computed over the uncompressed body against a header whose
// COMPRESSED bit is always masked off, so compression never affects
// whether the checksum later validates on receipt.
func (h *Host) assembleDatagram(p *Peer, body []byte, hasReliable bool) []byte {
	hdr := datagramHeader{PeerID: p.outgoingPeerID}
	if p.outgoingPeerID < MaximumPeerID {
		hdr.SessionID = p.outgoingSessionID
	}
	if hasReliable {
		hdr.Flags |= headerFlagSentTime
		hdr.hasSentTime = true
		hdr.SentTime = uint16(h.serviceTime & 0xFFFF)
	}

	if h.checksum != nil {
		var connectID uint32
		if p.outgoingPeerID < MaximumPeerID {
			connectID = p.connectID
		}
		body = putUint32(body, connectID)
		maskedHeader := maskChecksumHeaderBytes(writeDatagramHeader(nil, hdr))
		sum := h.checksum.Sum([][]byte{maskedHeader, body})
		be.PutUint32(body[len(body)-4:], sum)
	}

	payload := body
	if compressed := h.compressor.Compress(make([]byte, 0, len(body)), body); len(compressed) > 0 && len(compressed) < len(body) {
		hdr.Flags |= headerFlagCompressed
		payload = compressed
	}

	datagram := writeDatagramHeader(make([]byte, 0, hdr.size()+len(payload)), hdr)
	return append(datagram, payload...)
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
