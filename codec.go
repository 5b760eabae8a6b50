package rnet

import "encoding/binary"

var be = binary.BigEndian

// writeCommandHeader appends a 4-byte command header to buf.
func writeCommandHeader(buf []byte, h commandHeader) []byte {
	buf = append(buf, h.Command, h.ChannelID)
	var seq [2]byte
	be.PutUint16(seq[:], h.ReliableSequenceNumber)
	return append(buf, seq[:]...)
}

func readCommandHeader(data []byte) (commandHeader, error) {
	if len(data) < commandHeaderSize {
		return commandHeader{}, errShortDatagram
	}
	return commandHeader{
		Command:                data[0],
		ChannelID:              data[1],
		ReliableSequenceNumber: be.Uint16(data[2:4]),
	}, nil
}

func putUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	be.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func putUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	be.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func writeConnect(buf []byte, h commandHeader, c connectCommand) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint16(buf, c.OutgoingPeerID)
	buf = append(buf, c.IncomingSession, c.OutgoingSession)
	buf = putUint32(buf, c.MTU)
	buf = putUint32(buf, c.WindowSize)
	buf = putUint32(buf, c.ChannelCount)
	buf = putUint32(buf, c.IncomingBandwidth)
	buf = putUint32(buf, c.OutgoingBandwidth)
	buf = putUint32(buf, c.ThrottleInterval)
	buf = putUint32(buf, c.ThrottleAcceleration)
	buf = putUint32(buf, c.ThrottleDeceleration)
	buf = putUint32(buf, c.ConnectID)
	buf = putUint32(buf, c.Data)
	return buf
}

func readConnect(data []byte) (connectCommand, error) {
	if len(data) < commandRecordSize[cmdConnect]-commandHeaderSize {
		return connectCommand{}, errShortDatagram
	}
	return connectCommand{
		OutgoingPeerID:       be.Uint16(data[0:2]),
		IncomingSession:      data[2],
		OutgoingSession:      data[3],
		MTU:                  be.Uint32(data[4:8]),
		WindowSize:           be.Uint32(data[8:12]),
		ChannelCount:         be.Uint32(data[12:16]),
		IncomingBandwidth:    be.Uint32(data[16:20]),
		OutgoingBandwidth:    be.Uint32(data[20:24]),
		ThrottleInterval:     be.Uint32(data[24:28]),
		ThrottleAcceleration: be.Uint32(data[28:32]),
		ThrottleDeceleration: be.Uint32(data[32:36]),
		ConnectID:            be.Uint32(data[36:40]),
		Data:                 be.Uint32(data[40:44]),
	}, nil
}

func writeVerifyConnect(buf []byte, h commandHeader, c verifyConnectCommand) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint16(buf, c.OutgoingPeerID)
	buf = append(buf, c.IncomingSession, c.OutgoingSession)
	buf = putUint32(buf, c.MTU)
	buf = putUint32(buf, c.WindowSize)
	buf = putUint32(buf, c.ChannelCount)
	buf = putUint32(buf, c.IncomingBandwidth)
	buf = putUint32(buf, c.OutgoingBandwidth)
	buf = putUint32(buf, c.ThrottleInterval)
	buf = putUint32(buf, c.ThrottleAcceleration)
	buf = putUint32(buf, c.ThrottleDeceleration)
	buf = putUint32(buf, c.ConnectID)
	return buf
}

func readVerifyConnect(data []byte) (verifyConnectCommand, error) {
	if len(data) < commandRecordSize[cmdVerifyConnect]-commandHeaderSize {
		return verifyConnectCommand{}, errShortDatagram
	}
	return verifyConnectCommand{
		OutgoingPeerID:       be.Uint16(data[0:2]),
		IncomingSession:      data[2],
		OutgoingSession:      data[3],
		MTU:                  be.Uint32(data[4:8]),
		WindowSize:           be.Uint32(data[8:12]),
		ChannelCount:         be.Uint32(data[12:16]),
		IncomingBandwidth:    be.Uint32(data[16:20]),
		OutgoingBandwidth:    be.Uint32(data[20:24]),
		ThrottleInterval:     be.Uint32(data[24:28]),
		ThrottleAcceleration: be.Uint32(data[28:32]),
		ThrottleDeceleration: be.Uint32(data[32:36]),
		ConnectID:            be.Uint32(data[36:40]),
	}, nil
}

func writeDisconnect(buf []byte, h commandHeader, c disconnectCommand) []byte {
	buf = writeCommandHeader(buf, h)
	return putUint32(buf, c.Data)
}

func readDisconnect(data []byte) (disconnectCommand, error) {
	if len(data) < 4 {
		return disconnectCommand{}, errShortDatagram
	}
	return disconnectCommand{Data: be.Uint32(data[0:4])}, nil
}

func writeAcknowledge(buf []byte, h commandHeader, c acknowledgeCommand) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint16(buf, c.ReceivedReliableSequenceNumber)
	return putUint16(buf, c.ReceivedSentTime)
}

func readAcknowledge(data []byte) (acknowledgeCommand, error) {
	if len(data) < 4 {
		return acknowledgeCommand{}, errShortDatagram
	}
	return acknowledgeCommand{
		ReceivedReliableSequenceNumber: be.Uint16(data[0:2]),
		ReceivedSentTime:               be.Uint16(data[2:4]),
	}, nil
}

func writePing(buf []byte, h commandHeader) []byte {
	return writeCommandHeader(buf, h)
}

func writeSendReliable(buf []byte, h commandHeader, dataLength uint16, payload []byte) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint16(buf, dataLength)
	return append(buf, payload...)
}

func readSendReliable(data []byte) (sendReliableCommand, error) {
	if len(data) < 2 {
		return sendReliableCommand{}, errShortDatagram
	}
	return sendReliableCommand{DataLength: be.Uint16(data[0:2])}, nil
}

func writeSendUnreliable(buf []byte, h commandHeader, c sendUnreliableCommand, payload []byte) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint16(buf, c.UnreliableSequenceNumber)
	buf = putUint16(buf, c.DataLength)
	return append(buf, payload...)
}

func readSendUnreliable(data []byte) (sendUnreliableCommand, error) {
	if len(data) < 4 {
		return sendUnreliableCommand{}, errShortDatagram
	}
	return sendUnreliableCommand{
		UnreliableSequenceNumber: be.Uint16(data[0:2]),
		DataLength:               be.Uint16(data[2:4]),
	}, nil
}

func writeSendFragment(buf []byte, h commandHeader, c sendFragmentCommand, payload []byte) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint16(buf, c.StartSequenceNumber)
	buf = putUint16(buf, c.DataLength)
	buf = putUint32(buf, c.FragmentCount)
	buf = putUint32(buf, c.FragmentNumber)
	buf = putUint32(buf, c.TotalLength)
	buf = putUint32(buf, c.FragmentOffset)
	return append(buf, payload...)
}

func readSendFragment(data []byte) (sendFragmentCommand, error) {
	if len(data) < 20 {
		return sendFragmentCommand{}, errShortDatagram
	}
	return sendFragmentCommand{
		StartSequenceNumber: be.Uint16(data[0:2]),
		DataLength:          be.Uint16(data[2:4]),
		FragmentCount:       be.Uint32(data[4:8]),
		FragmentNumber:      be.Uint32(data[8:12]),
		TotalLength:         be.Uint32(data[12:16]),
		FragmentOffset:      be.Uint32(data[16:20]),
	}, nil
}

func writeSendUnsequenced(buf []byte, h commandHeader, c sendUnsequencedCommand, payload []byte) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint16(buf, c.UnsequencedGroup)
	buf = putUint16(buf, c.DataLength)
	return append(buf, payload...)
}

func readSendUnsequenced(data []byte) (sendUnsequencedCommand, error) {
	if len(data) < 4 {
		return sendUnsequencedCommand{}, errShortDatagram
	}
	return sendUnsequencedCommand{
		UnsequencedGroup: be.Uint16(data[0:2]),
		DataLength:       be.Uint16(data[2:4]),
	}, nil
}

func writeBandwidthLimit(buf []byte, h commandHeader, c bandwidthLimitCommand) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint32(buf, c.IncomingBandwidth)
	return putUint32(buf, c.OutgoingBandwidth)
}

func readBandwidthLimit(data []byte) (bandwidthLimitCommand, error) {
	if len(data) < 8 {
		return bandwidthLimitCommand{}, errShortDatagram
	}
	return bandwidthLimitCommand{
		IncomingBandwidth: be.Uint32(data[0:4]),
		OutgoingBandwidth: be.Uint32(data[4:8]),
	}, nil
}

func writeThrottleConfigure(buf []byte, h commandHeader, c throttleConfigureCommand) []byte {
	buf = writeCommandHeader(buf, h)
	buf = putUint32(buf, c.Interval)
	buf = putUint32(buf, c.Acceleration)
	return putUint32(buf, c.Deceleration)
}

func readThrottleConfigure(data []byte) (throttleConfigureCommand, error) {
	if len(data) < 12 {
		return throttleConfigureCommand{}, errShortDatagram
	}
	return throttleConfigureCommand{
		Interval:     be.Uint32(data[0:4]),
		Acceleration: be.Uint32(data[4:8]),
		Deceleration: be.Uint32(data[8:12]),
	}, nil
}

// datagramHeader is the per-datagram prefix (spec §6.1).
type datagramHeader struct {
	PeerID      uint16
	Flags       uint16
	SessionID   uint8
	SentTime    uint16
	hasSentTime bool
}

func (h datagramHeader) size() int {
	n := 2
	if h.hasSentTime {
		n += 2
	}
	return n
}

func writeDatagramHeader(buf []byte, h datagramHeader) []byte {
	word := h.PeerID&headerPeerIDMask | h.Flags | (uint16(h.SessionID)&headerSessionMask)<<headerSessionShift
	buf = putUint16(buf, word)
	if h.hasSentTime {
		buf = putUint16(buf, h.SentTime)
	}
	return buf
}

// maskChecksumHeaderBytes clears the COMPRESSED bit from a raw header
// word before it is fed to Checksum.Sum, so the choice to compress a
// datagram never changes whether its checksum validates (spec §4.14 step
// 7 pairs with §4.13 step 3's decompress-before-verify order).
func maskChecksumHeaderBytes(raw []byte) []byte {
	out := append([]byte(nil), raw...)
	if len(out) > 0 {
		out[0] &^= byte(headerFlagCompressed >> 8)
	}
	return out
}

func readDatagramHeader(data []byte) (datagramHeader, int, error) {
	if len(data) < 2 {
		return datagramHeader{}, 0, errShortDatagram
	}
	word := be.Uint16(data[0:2])
	h := datagramHeader{
		PeerID:    word & headerPeerIDMask,
		Flags:     word & (headerFlagSentTime | headerFlagCompressed),
		SessionID: uint8((word >> headerSessionShift) & headerSessionMask),
	}
	offset := 2
	if h.Flags&headerFlagSentTime != 0 {
		if len(data) < 4 {
			return datagramHeader{}, 0, errShortDatagram
		}
		h.SentTime = be.Uint16(data[2:4])
		h.hasSentTime = true
		offset = 4
	}
	return h, offset, nil
}
