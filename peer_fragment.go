package rnet

// channelFor validates a wire channel id against the peer's negotiated
// channel count.
func (p *Peer) channelFor(id uint8) (*channel, error) {
	if int(id) >= p.channelCount {
		return nil, errInvalidChannel
	}
	return p.channels[id], nil
}

func (p *Peer) acceptsIncoming() bool {
	return p.state == StateConnected || p.state == StateDisconnectLater
}

// insertIncomingReliable performs the backward-scan sorted insert spec
// §4.10 describes for both plain reliable sends and the anchor command of
// a reliable fragment run, keyed by reliableSequenceNumber (which for a
// fragmented message is the run's shared startSequenceNumber). Returns
// false if an entry with the same key already exists.
func (p *Peer) insertIncomingReliable(ch *channel, cmd *incomingCommand) bool {
	insertPos := ch.incomingReliableCommands.end()
	for n := ch.incomingReliableCommands.back(); n != nil && n != ch.incomingReliableCommands.end(); n = n.prev {
		existing := n.value
		if cmd.reliableSequenceNumber == existing.reliableSequenceNumber {
			return false
		}
		if sequenceGreater(cmd.reliableSequenceNumber, existing.reliableSequenceNumber) {
			break
		}
		insertPos = n
	}
	ch.incomingReliableCommands.insertBefore(insertPos, cmd)
	return true
}

// handleSendReliable implements the non-fragmented half of spec §4.4/§4.10.
func (p *Peer) handleSendReliable(header commandHeader, payload []byte) error {
	if !p.acceptsIncoming() {
		return nil
	}
	ch, err := p.channelFor(header.ChannelID)
	if err != nil {
		return err
	}

	windowIdx := sequenceWindow(header.ReliableSequenceNumber, ch.incomingReliableSequenceNumber)
	if !ch.reliableWindowInRange(windowIdx) {
		return nil
	}

	pkt := NewPacket(append([]byte(nil), payload...), 0)
	pkt.incref()
	cmd := &incomingCommand{
		header:                 header,
		reliableSequenceNumber: header.ReliableSequenceNumber,
		fragmentCount:          1,
		totalLength:            uint32(len(payload)),
		packet:                 pkt,
	}

	if !p.insertIncomingReliable(ch, cmd) {
		pkt.decref()
		return nil
	}

	p.dispatchIncomingReliableCommands(ch)
	return nil
}

// handleSendUnreliable implements the non-fragmented half of unreliable
// delivery.
func (p *Peer) handleSendUnreliable(header commandHeader, sc sendUnreliableCommand, payload []byte) error {
	if !p.acceptsIncoming() {
		return nil
	}
	ch, err := p.channelFor(header.ChannelID)
	if err != nil {
		return err
	}
	if sequenceLess(header.ReliableSequenceNumber, ch.incomingReliableSequenceNumber) {
		return nil
	}

	pkt := NewPacket(append([]byte(nil), payload...), 0)
	pkt.incref()
	cmd := &incomingCommand{
		header:                   header,
		reliableSequenceNumber:   header.ReliableSequenceNumber,
		unreliableSequenceNumber: sc.UnreliableSequenceNumber,
		fragmentCount:            1,
		totalLength:              uint32(len(payload)),
		packet:                   pkt,
	}
	ch.incomingUnreliableCommands.pushBack(cmd)
	p.dispatchIncomingUnreliableCommands(ch)
	return nil
}

// handleSendUnsequenced implements spec §4.12. Delivered commands bypass
// the ordering lists entirely and go straight to dispatchedCommands,
// since by definition they carry no ordering relationship to anything
// else.
func (p *Peer) handleSendUnsequenced(header commandHeader, sc sendUnsequencedCommand, payload []byte) error {
	if !p.acceptsIncoming() {
		return nil
	}
	if _, err := p.channelFor(header.ChannelID); err != nil {
		return err
	}

	group := uint32(sc.UnsequencedGroup)
	if group < uint32(p.incomingUnsequencedGroup) {
		group += 0x10000
	}
	if group >= uint32(p.incomingUnsequencedGroup)+peerFreeUnsequencedWindows*peerUnsequencedWindowSize {
		return nil
	}

	index := group % peerUnsequencedWindowSize
	base := group - index
	if uint16(base) != p.incomingUnsequencedGroup {
		p.incomingUnsequencedGroup = uint16(base)
		for i := range p.unsequencedWindow {
			p.unsequencedWindow[i] = 0
		}
	}

	word := index / 32
	bit := uint32(1) << (index % 32)
	if p.unsequencedWindow[word]&bit != 0 {
		return nil
	}
	p.unsequencedWindow[word] |= bit

	pkt := NewPacket(append([]byte(nil), payload...), PacketUnsequenced)
	pkt.incref()
	p.dispatchedCommands.pushBack(&incomingCommand{
		header:      header,
		unsequenced: true,
		totalLength: uint32(len(payload)),
		packet:      pkt,
	})
	p.host.queueDispatch(p)
	return nil
}

// handleSendFragment implements spec §4.10's shared validation for both
// reliable and unreliable fragment variants, then dispatches to the
// variant-specific reassembly path.
func (p *Peer) handleSendFragment(header commandHeader, fc sendFragmentCommand, payload []byte, unreliable bool) error {
	if !p.acceptsIncoming() {
		return nil
	}
	ch, err := p.channelFor(header.ChannelID)
	if err != nil {
		return err
	}

	if fc.FragmentCount == 0 || fc.FragmentCount > MaximumFragmentCount || fc.FragmentNumber >= fc.FragmentCount {
		return errTooManyFragments
	}
	if fc.TotalLength > p.host.maximumPacketSize || fc.TotalLength < fc.FragmentCount {
		return errPacketTooLarge
	}
	if fc.FragmentOffset >= fc.TotalLength || fc.FragmentOffset+uint32(len(payload)) > fc.TotalLength {
		return errMalformedCommand
	}

	if unreliable {
		return p.handleUnreliableFragment(ch, header, fc, payload)
	}
	return p.handleReliableFragment(ch, header, fc, payload)
}

func (p *Peer) handleReliableFragment(ch *channel, header commandHeader, fc sendFragmentCommand, payload []byte) error {
	windowIdx := sequenceWindow(fc.StartSequenceNumber, ch.incomingReliableSequenceNumber)
	if !ch.reliableWindowInRange(windowIdx) {
		return nil
	}

	var existing *incomingCommand
	for n := ch.incomingReliableCommands.back(); n != nil && n != ch.incomingReliableCommands.end(); n = n.prev {
		c := n.value
		if c.reliableSequenceNumber == fc.StartSequenceNumber {
			existing = c
			break
		}
		if sequenceLess(c.reliableSequenceNumber, fc.StartSequenceNumber) {
			break
		}
	}

	if existing != nil {
		if existing.totalLength != fc.TotalLength || existing.fragmentCount != fc.FragmentCount {
			return errMalformedCommand
		}
	} else {
		pkt := newReassemblyPacket(fc.TotalLength, 0)
		pkt.incref()
		existing = &incomingCommand{
			header:                 header,
			reliableSequenceNumber: fc.StartSequenceNumber,
			startSequenceNumber:    fc.StartSequenceNumber,
			fragmentCount:          fc.FragmentCount,
			fragmentsRemaining:     fc.FragmentCount,
			fragmentsReceived:      make([]bool, fc.FragmentCount),
			totalLength:            fc.TotalLength,
			packet:                 pkt,
		}
		if !p.insertIncomingReliable(ch, existing) {
			return nil
		}
	}

	return p.applyFragment(existing, fc, payload, func() { p.dispatchIncomingReliableCommands(ch) })
}

func (p *Peer) handleUnreliableFragment(ch *channel, header commandHeader, fc sendFragmentCommand, payload []byte) error {
	if sequenceLess(header.ReliableSequenceNumber, ch.incomingReliableSequenceNumber) {
		return nil
	}

	var existing *incomingCommand
	for n := ch.incomingUnreliableCommands.back(); n != nil && n != ch.incomingUnreliableCommands.end(); n = n.prev {
		c := n.value
		if c.unsequenced {
			continue
		}
		if c.reliableSequenceNumber == header.ReliableSequenceNumber && c.startSequenceNumber == fc.StartSequenceNumber {
			existing = c
			break
		}
		if sequenceLess(c.reliableSequenceNumber, header.ReliableSequenceNumber) {
			break
		}
	}

	if existing != nil {
		if existing.totalLength != fc.TotalLength || existing.fragmentCount != fc.FragmentCount {
			return errMalformedCommand
		}
	} else {
		pkt := newReassemblyPacket(fc.TotalLength, 0)
		pkt.incref()
		existing = &incomingCommand{
			header:                 header,
			reliableSequenceNumber: header.ReliableSequenceNumber,
			startSequenceNumber:    fc.StartSequenceNumber,
			fragmentCount:          fc.FragmentCount,
			fragmentsRemaining:     fc.FragmentCount,
			fragmentsReceived:      make([]bool, fc.FragmentCount),
			totalLength:            fc.TotalLength,
			packet:                 pkt,
		}
		ch.incomingUnreliableCommands.pushBack(existing)
	}

	return p.applyFragment(existing, fc, payload, func() { p.dispatchIncomingUnreliableCommands(ch) })
}

// applyFragment copies one fragment's bytes into the reassembly buffer
// and, once every fragment has arrived, invokes onComplete.
func (p *Peer) applyFragment(cmd *incomingCommand, fc sendFragmentCommand, payload []byte, onComplete func()) error {
	if fc.FragmentNumber >= uint32(len(cmd.fragmentsReceived)) {
		return errMalformedCommand
	}
	if cmd.fragmentsReceived[fc.FragmentNumber] {
		return nil
	}
	cmd.fragmentsReceived[fc.FragmentNumber] = true
	cmd.fragmentsRemaining--

	fragLen := uint32(len(payload))
	if fc.FragmentOffset+fragLen > cmd.totalLength {
		fragLen = cmd.totalLength - fc.FragmentOffset
	}
	copy(cmd.packet.Data[fc.FragmentOffset:fc.FragmentOffset+fragLen], payload[:fragLen])

	if cmd.fragmentsRemaining == 0 {
		onComplete()
	}
	return nil
}
