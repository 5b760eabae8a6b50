package rnet

import "testing"

func TestTimeWrapComparisons(t *testing.T) {
	cases := []struct {
		name    string
		a, b    uint32
		less    bool
		greater bool
	}{
		{"equal", 100, 100, false, false},
		{"simple less", 100, 200, true, false},
		{"simple greater", 200, 100, false, true},
		{"wrap: a just after wrap, b near max", 10, 0xFFFFFFF0, false, true},
		{"wrap: a near max, b just after wrap", 0xFFFFFFF0, 10, true, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := timeLess(c.a, c.b); got != c.less {
				t.Errorf("timeLess(%d, %d) = %v, want %v", c.a, c.b, got, c.less)
			}
			if got := timeGreater(c.a, c.b); got != c.greater {
				t.Errorf("timeGreater(%d, %d) = %v, want %v", c.a, c.b, got, c.greater)
			}
			if got := timeLessEqual(c.a, c.b); got != (c.less || c.a == c.b) {
				t.Errorf("timeLessEqual(%d, %d) = %v", c.a, c.b, got)
			}
			if got := timeGreaterEqual(c.a, c.b); got != (c.greater || c.a == c.b) {
				t.Errorf("timeGreaterEqual(%d, %d) = %v", c.a, c.b, got)
			}
		})
	}
}

func TestTimeDifference(t *testing.T) {
	if d := timeDifference(200, 100); d != 100 {
		t.Errorf("timeDifference(200, 100) = %d, want 100", d)
	}
	if d := timeDifference(100, 200); d != 100 {
		t.Errorf("timeDifference(100, 200) = %d, want 100", d)
	}
	if d := timeDifference(5, 5); d != 0 {
		t.Errorf("timeDifference(5, 5) = %d, want 0", d)
	}
}

func TestSequenceWrapComparisons(t *testing.T) {
	if !sequenceLess(10, 20) {
		t.Error("sequenceLess(10, 20) should be true")
	}
	if sequenceGreater(10, 20) {
		t.Error("sequenceGreater(10, 20) should be false")
	}
	// Wraparound: 65530 is "before" 5 modulo 2^16.
	if !sequenceLess(65530, 5) {
		t.Error("sequenceLess(65530, 5) should be true across the 16-bit wrap")
	}
	if !sequenceGreater(5, 65530) {
		t.Error("sequenceGreater(5, 65530) should be true across the 16-bit wrap")
	}
	if !sequenceLessEqual(10, 10) {
		t.Error("sequenceLessEqual(10, 10) should be true")
	}
	if !sequenceGreaterEqual(10, 10) {
		t.Error("sequenceGreaterEqual(10, 10) should be true")
	}
}

func TestSequenceWindow(t *testing.T) {
	// Within the same wrap, window is just seq / windowSize.
	if w := sequenceWindow(peerReliableWindowSize*3+5, 0); w != 3 {
		t.Errorf("sequenceWindow(3*windowSize+5, 0) = %d, want 3", w)
	}
	// seq numerically behind base is folded into the next wrap.
	base := uint16(peerReliableWindowSize * (peerReliableWindows - 1))
	seq := uint16(5)
	got := sequenceWindow(seq, base)
	want := 0 + peerReliableWindows
	if got != want {
		t.Errorf("sequenceWindow(%d, %d) = %d, want %d", seq, base, got, want)
	}
}
