package rnet

import "github.com/tmthrgd/go-popcount"

// channel is a per (peer x channel-id) ordering context (spec §3 Channel).
type channel struct {
	outgoingReliableSequenceNumber   uint16
	outgoingUnreliableSequenceNumber uint16
	incomingReliableSequenceNumber   uint16
	incomingUnreliableSequenceNumber uint16

	reliableWindows     [peerReliableWindows]uint16
	usedReliableWindows uint16 // bitmap, bit w set iff reliableWindows[w] > 0

	incomingReliableCommands   *list[*incomingCommand]
	incomingUnreliableCommands *list[*incomingCommand]
}

func newChannel() *channel {
	return &channel{
		incomingReliableCommands:   newList[*incomingCommand](),
		incomingUnreliableCommands: newList[*incomingCommand](),
	}
}

// reset restores a channel to its just-connected state (spec §4.3).
func (c *channel) reset() {
	c.outgoingReliableSequenceNumber = 0
	c.outgoingUnreliableSequenceNumber = 0
	c.incomingReliableSequenceNumber = 0
	c.incomingUnreliableSequenceNumber = 0
	c.reliableWindows = [peerReliableWindows]uint16{}
	c.usedReliableWindows = 0
	c.incomingReliableCommands.clear()
	c.incomingUnreliableCommands.clear()
}

// incrementWindow records that a reliable command now occupies window w
// (spec §4.3, invariant 1).
func (c *channel) incrementWindow(w int) {
	idx := w % peerReliableWindows
	c.reliableWindows[idx]++
	c.usedReliableWindows |= 1 << uint(idx)
}

// decrementWindow retires one reliable command from window w, clearing the
// used-bit once the slot count returns to zero.
func (c *channel) decrementWindow(w int) {
	idx := w % peerReliableWindows
	if c.reliableWindows[idx] > 0 {
		c.reliableWindows[idx]--
	}
	if c.reliableWindows[idx] == 0 {
		c.usedReliableWindows &^= 1 << uint(idx)
	}
}

// windowFull reports whether window w cannot accept another reliable
// command without exceeding the free-window horizon (spec invariant 2): a
// sender may not have more than peerFreeReliableWindows-1 windows occupied
// ahead of w on the circular 16-window bitmap. Ported directly from ENet's
// windowWrap mask construction in peer.cpp.
func (c *channel) windowFull(w int) bool {
	const freeMask = uint32(1)<<(peerFreeReliableWindows+2) - 1
	shift := uint(w) % peerReliableWindows
	mask := (freeMask << shift) | (freeMask >> (peerReliableWindows - shift))
	// Commands already in flight in window w itself do not count against
	// the horizon.
	mask &^= 1 << shift
	return uint32(c.usedReliableWindows)&mask != 0
}

// reliableWindowInRange reports whether startWindow is an acceptable window
// for an incoming reliable (or reliable-fragment) command's start sequence,
// relative to this channel's current incoming baseline (spec §4.10,
// ported from enet_protocol_handle_send_fragment's startWindow/
// currentWindow bound check in original_source/src/protocol.cpp). Unlike
// windowFull, this never consults the bitmap: the bitmap tracks this
// peer's own in-flight outgoing windows, not what it has accepted from the
// remote side.
func (c *channel) reliableWindowInRange(startWindow int) bool {
	currentWindow := int(c.incomingReliableSequenceNumber) / peerReliableWindowSize
	return startWindow >= currentWindow && startWindow < currentWindow+peerFreeReliableWindows-1
}

// usedWindowCount returns how many of the 16 reliable windows currently
// have at least one in-flight command, via a popcount over the bitmap.
// Used by Peer.windowDiagnostics for the timeout-disconnect debug log in
// host_send.go.
func (c *channel) usedWindowCount() int {
	var b [2]byte
	b[0] = byte(c.usedReliableWindows)
	b[1] = byte(c.usedReliableWindows >> 8)
	return int(popcount.CountBytes(b[:]))
}
