package rnet

import "testing"

func TestNewPacketCopiesByDefault(t *testing.T) {
	src := []byte("hello")
	p := NewPacket(src, 0)
	src[0] = 'H'
	if p.Data[0] != 'h' {
		t.Error("NewPacket should copy the buffer unless PacketNoAllocate is set")
	}
}

func TestNewPacketNoAllocateSharesBuffer(t *testing.T) {
	src := []byte("hello")
	p := NewPacket(src, PacketNoAllocate)
	src[0] = 'H'
	if p.Data[0] != 'H' {
		t.Error("NewPacket with PacketNoAllocate should use the caller's buffer directly")
	}
}

func TestPacketRefcounting(t *testing.T) {
	p := NewPacket([]byte("data"), 0)
	p.incref()
	p.incref()

	if p.decref() {
		t.Error("decref should report false while references remain")
	}
	if !p.decref() {
		t.Error("decref should report true on the last reference")
	}
}
