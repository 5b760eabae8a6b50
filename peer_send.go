package rnet

// setupOutgoingCommand assigns cmd's sequence numbers and queue/timing
// bookkeeping, ported from enet_peer_setup_outgoing_command
// (original_source/src/peer.cpp, spec §4.14). Control commands (channel
// 0xFF) draw from the peer-wide reliable counter; reliable sends draw from
// their channel's reliable counter and reset that channel's unreliable
// baseline; unsequenced sends draw from the peer-wide unsequenced group;
// plain unreliable sends draw from the channel's unreliable counter.
func (p *Peer) setupOutgoingCommand(cmd *outgoingCommand) {
	cmd.sendAttempts = 0
	cmd.sentTime = 0
	cmd.roundTripTimeout = 0
	cmd.queueTime = p.host.nextQueueTime()

	p.outgoingDataTotal += uint32(commandRecordSize[cmd.header.Command&commandNumberMask]) + cmd.fragmentLength

	switch {
	case cmd.header.ChannelID == channelIDControl:
		p.outgoingReliableSequenceNumber++
		cmd.reliableSequenceNumber = p.outgoingReliableSequenceNumber
	case cmd.header.Command&commandFlagAcknowledge != 0:
		ch := p.channels[cmd.header.ChannelID]
		ch.outgoingReliableSequenceNumber++
		ch.outgoingUnreliableSequenceNumber = 0
		cmd.reliableSequenceNumber = ch.outgoingReliableSequenceNumber
		cmd.unreliableSequenceNumber = 0
	case cmd.header.Command&commandFlagUnsequenced != 0:
		p.outgoingUnsequencedGroup++
		cmd.unreliableSequenceNumber = 0
		cmd.unsequencedGroup = p.outgoingUnsequencedGroup
	default:
		ch := p.channels[cmd.header.ChannelID]
		ch.outgoingUnreliableSequenceNumber++
		cmd.reliableSequenceNumber = ch.outgoingReliableSequenceNumber
		cmd.unreliableSequenceNumber = ch.outgoingUnreliableSequenceNumber
	}
	cmd.header.ReliableSequenceNumber = cmd.reliableSequenceNumber
}

// queueOutgoingCommand queues a send-family (or bare PING) command carrying
// packet[offset:offset+length] and files it onto the queue matching its
// ACK flag (spec §4.14: ACK-flagged commands are retransmission candidates
// and live in outgoingSendReliableCommands; everything else is fire-and-
// forget and lives in outgoingCommands).
func (p *Peer) queueOutgoingCommand(header commandHeader, packet *Packet, offset, length uint32) error {
	cmd := &outgoingCommand{
		header:         header,
		packet:         packet,
		fragmentOffset: offset,
		fragmentLength: length,
	}
	p.setupOutgoingCommand(cmd)
	if packet != nil {
		packet.incref()
	}

	if header.Command&commandFlagAcknowledge != 0 {
		p.outgoingSendReliableCommands.pushBack(cmd)
	} else {
		p.outgoingCommands.pushBack(cmd)
	}
	return nil
}

// queueControlCommand queues a fixed-body control command (CONNECT,
// VERIFY_CONNECT, DISCONNECT, THROTTLE_CONFIGURE, BANDWIDTH_LIMIT). extra
// carries the command's record fields for host_send.go to encode; there is
// no associated Packet.
func (p *Peer) queueControlCommand(header commandHeader, extra any) error {
	cmd := &outgoingCommand{header: header, extra: extra}
	p.setupOutgoingCommand(cmd)

	if header.Command&commandFlagAcknowledge != 0 {
		p.outgoingSendReliableCommands.pushBack(cmd)
	} else {
		p.outgoingCommands.pushBack(cmd)
	}
	return nil
}

// fragmentLength returns the maximum payload bytes a single reliable
// fragment record can carry at the peer's current MTU (spec §4.4).
func (p *Peer) fragmentLength(checksum bool) uint32 {
	overhead := protocolHeaderSize + commandHeaderSize + sendFragmentRecordSize
	if checksum {
		overhead += 4
	}
	if uint32(overhead) >= p.mtu {
		return 1
	}
	return p.mtu - uint32(overhead)
}

const sendFragmentRecordSize = 20 // commandRecordSize[cmdSendFragment] - commandHeaderSize

// Send queues packet for delivery on channelID, choosing among plain
// reliable/unreliable/unsequenced framing and, if the payload exceeds one
// datagram's worth of room, fragmenting it (spec §4.4, §4.10, §4.12).
// Fragmentation triggers purely on size: the packet's flags only steer
// which fragment command queueFragmented picks, never whether to fragment
// at all. A single command carrying more than one datagram's worth of
// payload would never shrink below sendToPeer's remaining-room check and
// would sit at the head of the queue forever, blocking everything queued
// behind it.
func (p *Peer) Send(channelID uint8, packet *Packet) error {
	if !p.connectedOrDisconnectLater() {
		return errNotConnected
	}
	if int(channelID) >= p.channelCount {
		return errInvalidChannel
	}
	if uint32(len(packet.Data)) > p.host.maximumPacketSize {
		return errPacketTooLarge
	}

	reliable := packet.Flags&PacketReliable != 0
	unsequenced := packet.Flags&PacketUnsequenced != 0

	maxFrag := p.fragmentLength(p.host.checksum != nil)
	if uint32(len(packet.Data)) <= maxFrag {
		return p.queueSingle(channelID, packet, reliable, unsequenced)
	}
	return p.queueFragmented(channelID, packet, reliable, unsequenced, maxFrag)
}

func (p *Peer) queueSingle(channelID uint8, packet *Packet, reliable, unsequenced bool) error {
	switch {
	case unsequenced:
		header := commandHeader{Command: cmdSendUnsequenced | commandFlagUnsequenced, ChannelID: channelID}
		return p.queueOutgoingCommand(header, packet, 0, uint32(len(packet.Data)))
	case reliable:
		if p.totalWaitingData+uint32(len(packet.Data)) > p.host.maximumWaitingData {
			return errWaitingDataExceeded
		}
		if ch := p.channels[channelID]; ch.windowFull(int(ch.outgoingReliableSequenceNumber+1) / peerReliableWindowSize) {
			return errReliableWindowFull
		}
		header := commandHeader{Command: cmdSendReliable | commandFlagAcknowledge, ChannelID: channelID}
		p.totalWaitingData += uint32(len(packet.Data))
		return p.queueOutgoingCommand(header, packet, 0, uint32(len(packet.Data)))
	default:
		header := commandHeader{Command: cmdSendUnreliable, ChannelID: channelID}
		return p.queueOutgoingCommand(header, packet, 0, uint32(len(packet.Data)))
	}
}

// queueFragmented splits packet into ceil(len/maxFrag) fragments, each
// queued as its own outgoingCommand sharing startSequenceNumber /
// totalLength / fragmentCount (spec §4.4, §4.10). Reliable fragments each
// consume one reliable sequence slot; unreliable fragments share a single
// reliable-sequence tag (the channel's current baseline) the way a plain
// unreliable send does.
//
// Only a packet flagged exactly PacketUnreliableFragment (not reliable, not
// unsequenced), with room left in the channel's unreliable sequence space,
// is fragmented unreliably. Everything else - an explicit reliable send, an
// unsequenced send, a plain unreliable send with no UnreliableFragment
// flag, or a channel that has run out of unreliable sequence numbers - is
// forced onto the reliable fragment path instead, matching enet_peer_send's
// fragment-command selection (original_source/src/peer.cpp).
func (p *Peer) queueFragmented(channelID uint8, packet *Packet, reliable, unsequenced bool, maxFrag uint32) error {
	total := uint32(len(packet.Data))
	fragmentCount := (total + maxFrag - 1) / maxFrag
	if fragmentCount > MaximumFragmentCount {
		return errTooManyFragments
	}

	ch := p.channels[channelID]

	useUnreliableFragment := !reliable && !unsequenced &&
		packet.Flags&PacketUnreliableFragment != 0 &&
		ch.outgoingUnreliableSequenceNumber < 0xFFFF
	if !useUnreliableFragment {
		reliable = true
	}

	if reliable && p.totalWaitingData+total > p.host.maximumWaitingData {
		return errWaitingDataExceeded
	}

	var startSeq uint16
	cmdNumber := cmdSendUnreliableFragment
	if reliable {
		if ch.windowFull(int(ch.outgoingReliableSequenceNumber+1) / peerReliableWindowSize) {
			return errReliableWindowFull
		}
		cmdNumber = cmdSendFragment
		startSeq = ch.outgoingReliableSequenceNumber + 1
	} else {
		startSeq = ch.outgoingReliableSequenceNumber
	}

	if reliable {
		p.totalWaitingData += total
	}

	for i := uint32(0); i < fragmentCount; i++ {
		offset := i * maxFrag
		length := maxFrag
		if offset+length > total {
			length = total - offset
		}

		flag := uint8(0)
		if reliable {
			flag = commandFlagAcknowledge
		}
		header := commandHeader{Command: cmdNumber | flag, ChannelID: channelID}

		cmd := &outgoingCommand{
			header:              header,
			packet:              packet,
			fragmentOffset:      offset,
			fragmentLength:      length,
			startSequenceNumber: startSeq,
			fragmentCount:       fragmentCount,
			fragmentNumber:      i,
			totalLength:         total,
		}
		p.setupOutgoingCommand(cmd)
		packet.incref()

		if reliable {
			p.outgoingSendReliableCommands.pushBack(cmd)
		} else {
			p.outgoingCommands.pushBack(cmd)
		}
	}
	return nil
}
