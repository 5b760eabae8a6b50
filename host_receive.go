package rnet

import (
	"net"
	"time"
)

// hostReceiveBudget bounds how many datagrams one receive pass drains
// before yielding back to the send path (spec §4.15 step c: "receive up
// to 256 datagrams").
const hostReceiveBudget = 256

// receiveIncomingCommands drains up to hostReceiveBudget ready datagrams
// without blocking.
func (h *Host) receiveIncomingCommands() error {
	for i := 0; i < hostReceiveBudget; i++ {
		got, err := h.receiveOne(time.Now())
		if err != nil {
			return err
		}
		if !got {
			return nil
		}
	}
	return nil
}

// receiveOne reads and processes a single datagram, waiting until
// deadline. It reports false (no error) on a read timeout.
func (h *Host) receiveOne(deadline time.Time) (bool, error) {
	buf := make([]byte, h.mtu+64)
	n, addr, err := h.socket.ReceiveFrom(buf, deadline)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return false, nil
		}
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	h.stats.addReceived(n)
	if err := h.handleDatagram(buf[:n], addr); err != nil {
		logDebug("rnet: drop datagram from %s: %v", addr, err)
	}
	return true, nil
}

// handleDatagram implements spec §4.13.
func (h *Host) handleDatagram(data []byte, addr net.Addr) error {
	hdr, offset, err := readDatagramHeader(data)
	if err != nil {
		return err
	}
	body := data[offset:]

	var peer *Peer
	if hdr.PeerID != MaximumPeerID {
		if int(hdr.PeerID) >= len(h.peers) {
			return errUnknownPeer
		}
		peer = h.peers[hdr.PeerID]
		if peer.state == StateDisconnected || peer.state == StateZombie {
			return nil
		}
		if peer.address != nil && !sameHost(peer.address, addr) {
			return nil
		}
		if peer.outgoingPeerID != MaximumPeerID && hdr.SessionID != peer.incomingSessionID {
			return nil
		}
		peer.lastReceiveTime = h.serviceTime
		peer.earliestTimeout = 0
		peer.incomingDataTotal += uint32(len(data))
	}

	if hdr.Flags&headerFlagCompressed != 0 {
		out, err := h.compressor.Decompress(make([]byte, 0, len(body)*4), body)
		if err != nil {
			return err
		}
		body = out
	}

	if h.checksum != nil {
		if len(body) < 4 {
			return errShortDatagram
		}
		tail := len(body) - 4
		saved := be.Uint32(body[tail:])
		var connectID uint32
		if peer != nil {
			connectID = peer.connectID
		}
		be.PutUint32(body[tail:], connectID)
		sum := h.checksum.Sum([][]byte{maskChecksumHeaderBytes(data[:offset]), body})
		be.PutUint32(body[tail:], saved)
		if sum != saved {
			return errChecksumMismatch
		}
		body = body[:tail]
	}

	return h.walkCommands(peer, hdr, body, addr)
}

func (h *Host) walkCommands(peer *Peer, hdr datagramHeader, body []byte, addr net.Addr) error {
	pos := 0
	for pos < len(body) {
		ch, err := readCommandHeader(body[pos:])
		if err != nil {
			return err
		}

		number := ch.Command & commandNumberMask
		if number == cmdNone || number >= commandCount {
			return errMalformedCommand
		}

		recSize := commandRecordSize[number]
		if recSize == 0 && number != cmdPing {
			return errMalformedCommand
		}
		if pos+recSize > len(body) {
			return errMalformedCommand
		}
		rec := body[pos+commandHeaderSize : pos+recSize]
		cursor := pos + recSize

		var payload []byte
		if commandHasPayload(number) {
			dataLen, err := sendPayloadLength(number, rec)
			if err != nil {
				return err
			}
			if cursor+int(dataLen) > len(body) {
				return errMalformedCommand
			}
			payload = body[cursor : cursor+int(dataLen)]
			cursor += int(dataLen)
		}

		if number != cmdConnect && peer == nil {
			return errUnknownPeer
		}

		if err := h.dispatchCommand(peer, ch, number, rec, payload, hdr, addr); err != nil {
			return err
		}

		if peer != nil && ch.Command&commandFlagAcknowledge != 0 && hdr.hasSentTime {
			peer.queueAcknowledgement(ch, hdr.SentTime)
		}

		pos = cursor
	}
	return nil
}

// sendPayloadLength extracts the DataLength field embedded in a send*
// command's fixed record, whose offset varies by command shape.
func sendPayloadLength(number uint8, rec []byte) (uint16, error) {
	switch number {
	case cmdSendReliable:
		if len(rec) < 2 {
			return 0, errShortDatagram
		}
		return be.Uint16(rec[0:2]), nil
	case cmdSendUnreliable, cmdSendUnsequenced:
		if len(rec) < 4 {
			return 0, errShortDatagram
		}
		return be.Uint16(rec[2:4]), nil
	case cmdSendFragment, cmdSendUnreliableFragment:
		if len(rec) < 4 {
			return 0, errShortDatagram
		}
		return be.Uint16(rec[2:4]), nil
	default:
		return 0, nil
	}
}

func (h *Host) dispatchCommand(peer *Peer, ch commandHeader, number uint8, rec, payload []byte, hdr datagramHeader, addr net.Addr) error {
	switch number {
	case cmdConnect:
		cc, err := readConnect(rec)
		if err != nil {
			return err
		}
		return h.handleConnect(cc, ch, addr)
	case cmdVerifyConnect:
		vc, err := readVerifyConnect(rec)
		if err != nil {
			return err
		}
		return peer.handleVerifyConnect(vc)
	case cmdDisconnect:
		dc, err := readDisconnect(rec)
		if err != nil {
			return err
		}
		return peer.handleDisconnect(dc, ch)
	case cmdPing:
		return nil
	case cmdAcknowledge:
		ac, err := readAcknowledge(rec)
		if err != nil {
			return err
		}
		return peer.handleAcknowledge(ac, ch.ChannelID)
	case cmdBandwidthLimit:
		bl, err := readBandwidthLimit(rec)
		if err != nil {
			return err
		}
		peer.incomingBandwidth = bl.IncomingBandwidth
		peer.outgoingBandwidth = bl.OutgoingBandwidth
		return nil
	case cmdThrottleConfigure:
		tc, err := readThrottleConfigure(rec)
		if err != nil {
			return err
		}
		peer.packetThrottleInterval = tc.Interval
		peer.packetThrottleAcceleration = tc.Acceleration
		peer.packetThrottleDeceleration = tc.Deceleration
		return nil
	case cmdSendReliable:
		return peer.handleSendReliable(ch, payload)
	case cmdSendUnreliable:
		sc, err := readSendUnreliable(rec)
		if err != nil {
			return err
		}
		return peer.handleSendUnreliable(ch, sc, payload)
	case cmdSendUnsequenced:
		sc, err := readSendUnsequenced(rec)
		if err != nil {
			return err
		}
		return peer.handleSendUnsequenced(ch, sc, payload)
	case cmdSendFragment, cmdSendUnreliableFragment:
		fc, err := readSendFragment(rec)
		if err != nil {
			return err
		}
		return peer.handleSendFragment(ch, fc, payload, number == cmdSendUnreliableFragment)
	default:
		return nil
	}
}
