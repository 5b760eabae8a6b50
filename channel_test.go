package rnet

import "testing"

func TestChannelWindowIncrementDecrement(t *testing.T) {
	ch := newChannel()

	ch.incrementWindow(0)
	ch.incrementWindow(0)
	if ch.reliableWindows[0] != 2 {
		t.Errorf("reliableWindows[0] = %d, want 2", ch.reliableWindows[0])
	}
	if ch.usedReliableWindows&1 == 0 {
		t.Error("usedReliableWindows bit 0 should be set")
	}

	ch.decrementWindow(0)
	if ch.reliableWindows[0] != 1 {
		t.Errorf("reliableWindows[0] = %d, want 1", ch.reliableWindows[0])
	}
	if ch.usedReliableWindows&1 == 0 {
		t.Error("usedReliableWindows bit 0 should still be set with one command outstanding")
	}

	ch.decrementWindow(0)
	if ch.usedReliableWindows&1 != 0 {
		t.Error("usedReliableWindows bit 0 should clear once the window empties")
	}
}

func TestChannelWindowWrapsModuloWindowCount(t *testing.T) {
	ch := newChannel()
	ch.incrementWindow(peerReliableWindows + 2)
	if ch.reliableWindows[2] != 1 {
		t.Errorf("incrementWindow(peerReliableWindows+2) should land on index 2, got reliableWindows[2]=%d", ch.reliableWindows[2])
	}
}

func TestChannelWindowFull(t *testing.T) {
	ch := newChannel()
	if ch.windowFull(0) {
		t.Error("a fresh channel should not report any window as full")
	}

	// Occupy peerFreeReliableWindows-1 windows ahead of window 0; the next
	// one should trip windowFull.
	for w := 1; w < peerFreeReliableWindows; w++ {
		ch.incrementWindow(w)
	}
	if !ch.windowFull(0) {
		t.Error("windowFull(0) should be true once peerFreeReliableWindows-1 windows ahead are occupied")
	}
}

func TestChannelReliableWindowInRange(t *testing.T) {
	ch := newChannel()
	ch.incomingReliableSequenceNumber = 0

	if !ch.reliableWindowInRange(0) {
		t.Error("the current window should be in range")
	}
	if ch.reliableWindowInRange(peerFreeReliableWindows) {
		t.Error("a window peerFreeReliableWindows ahead of current should be out of range")
	}
	if ch.reliableWindowInRange(-1) {
		t.Error("a window behind current should be out of range")
	}
}

func TestChannelReset(t *testing.T) {
	ch := newChannel()
	ch.incomingReliableSequenceNumber = 5
	ch.incrementWindow(1)
	ch.incomingReliableCommands.pushBack(&incomingCommand{})

	ch.reset()

	if ch.incomingReliableSequenceNumber != 0 {
		t.Error("reset should zero incomingReliableSequenceNumber")
	}
	if ch.usedReliableWindows != 0 {
		t.Error("reset should clear the window bitmap")
	}
	if !ch.incomingReliableCommands.empty() {
		t.Error("reset should clear queued incoming commands")
	}
}
