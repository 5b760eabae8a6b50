package rnet

import (
	"bytes"
	"testing"
)

func TestCommandHeaderRoundTrip(t *testing.T) {
	h := commandHeader{Command: cmdSendReliable | commandFlagAcknowledge, ChannelID: 3, ReliableSequenceNumber: 0xBEEF}
	buf := writeCommandHeader(nil, h)
	if len(buf) != commandHeaderSize {
		t.Fatalf("writeCommandHeader produced %d bytes, want %d", len(buf), commandHeaderSize)
	}
	got, err := readCommandHeader(buf)
	if err != nil {
		t.Fatalf("readCommandHeader: %v", err)
	}
	if got != h {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, h)
	}
}

func TestReadCommandHeaderShort(t *testing.T) {
	if _, err := readCommandHeader([]byte{1, 2}); err != errShortDatagram {
		t.Errorf("readCommandHeader on short buffer: got %v, want errShortDatagram", err)
	}
}

func TestConnectCommandRoundTrip(t *testing.T) {
	h := commandHeader{Command: cmdConnect | commandFlagAcknowledge, ChannelID: channelIDControl}
	c := connectCommand{
		OutgoingPeerID:       7,
		IncomingSession:      1,
		OutgoingSession:      2,
		MTU:                  1400,
		WindowSize:           65536,
		ChannelCount:         4,
		IncomingBandwidth:    1000,
		OutgoingBandwidth:    2000,
		ThrottleInterval:     5000,
		ThrottleAcceleration: 2,
		ThrottleDeceleration: 2,
		ConnectID:            0xDEADBEEF,
		Data:                 42,
	}

	buf := writeConnect(nil, h, c)
	if len(buf) != commandRecordSize[cmdConnect] {
		t.Fatalf("writeConnect produced %d bytes, want %d", len(buf), commandRecordSize[cmdConnect])
	}

	got, err := readConnect(buf[commandHeaderSize:])
	if err != nil {
		t.Fatalf("readConnect: %v", err)
	}
	if got != c {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, c)
	}
}

func TestSendFragmentCommandRoundTrip(t *testing.T) {
	h := commandHeader{Command: cmdSendFragment | commandFlagAcknowledge, ChannelID: 1}
	fc := sendFragmentCommand{
		StartSequenceNumber: 10,
		DataLength:          200,
		FragmentCount:       5,
		FragmentNumber:      2,
		TotalLength:         1000,
		FragmentOffset:      400,
	}
	payload := []byte("fragment payload bytes")

	buf := writeSendFragment(nil, h, fc, payload)
	rec := buf[commandHeaderSize : commandHeaderSize+20]
	got, err := readSendFragment(rec)
	if err != nil {
		t.Fatalf("readSendFragment: %v", err)
	}
	if got != fc {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, fc)
	}
	gotPayload := buf[commandHeaderSize+20:]
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("payload mismatch: got %q, want %q", gotPayload, payload)
	}
}

func TestAcknowledgeCommandRoundTrip(t *testing.T) {
	h := commandHeader{Command: cmdAcknowledge, ChannelID: 0, ReliableSequenceNumber: 99}
	ac := acknowledgeCommand{ReceivedReliableSequenceNumber: 99, ReceivedSentTime: 0x1234}
	buf := writeAcknowledge(nil, h, ac)
	got, err := readAcknowledge(buf[commandHeaderSize:])
	if err != nil {
		t.Fatalf("readAcknowledge: %v", err)
	}
	if got != ac {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, ac)
	}
}

func TestDatagramHeaderRoundTripWithSentTime(t *testing.T) {
	h := datagramHeader{PeerID: 0x0AB, Flags: headerFlagSentTime, SessionID: 2, SentTime: 0xBEEF, hasSentTime: true}
	buf := writeDatagramHeader(nil, h)
	if len(buf) != 4 {
		t.Fatalf("writeDatagramHeader with sent time produced %d bytes, want 4", len(buf))
	}

	got, offset, err := readDatagramHeader(buf)
	if err != nil {
		t.Fatalf("readDatagramHeader: %v", err)
	}
	if offset != 4 {
		t.Errorf("offset = %d, want 4", offset)
	}
	if got.PeerID != h.PeerID || got.SessionID != h.SessionID || got.SentTime != h.SentTime || !got.hasSentTime {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, h)
	}
}

func TestDatagramHeaderRoundTripWithoutSentTime(t *testing.T) {
	h := datagramHeader{PeerID: 0x0CD, SessionID: 1}
	buf := writeDatagramHeader(nil, h)
	if len(buf) != 2 {
		t.Fatalf("writeDatagramHeader without sent time produced %d bytes, want 2", len(buf))
	}

	got, offset, err := readDatagramHeader(buf)
	if err != nil {
		t.Fatalf("readDatagramHeader: %v", err)
	}
	if offset != 2 {
		t.Errorf("offset = %d, want 2", offset)
	}
	if got.hasSentTime {
		t.Error("hasSentTime should be false when the flag bit is unset")
	}
	if got.PeerID != h.PeerID || got.SessionID != h.SessionID {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, h)
	}
}

func TestMaskChecksumHeaderBytesClearsCompressedBit(t *testing.T) {
	h := datagramHeader{PeerID: 1, Flags: headerFlagCompressed}
	raw := writeDatagramHeader(nil, h)

	masked := maskChecksumHeaderBytes(raw)
	if masked[0]&byte(headerFlagCompressed>>8) != 0 {
		t.Error("maskChecksumHeaderBytes should clear the COMPRESSED bit")
	}
	// raw itself must be untouched: masking operates on a copy.
	if raw[0]&byte(headerFlagCompressed>>8) == 0 {
		t.Error("maskChecksumHeaderBytes must not mutate its input")
	}

	// Masking the same header with and without COMPRESSED set must agree,
	// which is the whole point: checksum validity is independent of the
	// compression decision.
	plain := datagramHeader{PeerID: 1}
	rawPlain := writeDatagramHeader(nil, plain)
	maskedPlain := maskChecksumHeaderBytes(rawPlain)
	if !bytes.Equal(masked, maskedPlain) {
		t.Errorf("masked compressed/uncompressed headers differ: %x vs %x", masked, maskedPlain)
	}
}
