package rnet

import "testing"

func TestListPushAndIterate(t *testing.T) {
	l := newList[int]()
	if !l.empty() {
		t.Fatal("freshly created list should be empty")
	}

	l.pushBack(1)
	l.pushBack(2)
	l.pushBack(3)

	var got []int
	for n := l.front(); n != nil && n != l.end(); n = n.next {
		got = append(got, n.value)
	}
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if l.size() != 3 {
		t.Errorf("size() = %d, want 3", l.size())
	}
}

func TestListRemove(t *testing.T) {
	l := newList[string]()
	a := l.pushBack("a")
	b := l.pushBack("b")
	l.pushBack("c")

	if v := l.remove(b); v != "b" {
		t.Errorf("remove(b) = %q, want %q", v, "b")
	}

	var got []string
	for n := l.front(); n != nil && n != l.end(); n = n.next {
		got = append(got, n.value)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("after remove: got %v, want [a c]", got)
	}

	l.remove(a)
	if l.front().value != "c" {
		t.Errorf("front after removing a = %q, want c", l.front().value)
	}
}

func TestListInsertBefore(t *testing.T) {
	l := newList[int]()
	n3 := l.pushBack(3)
	l.insertBefore(n3, 1)
	l.insertBefore(n3, 2)

	var got []int
	for n := l.front(); n != nil && n != l.end(); n = n.next {
		got = append(got, n.value)
	}
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestListMoveSplicesRangeInOrder(t *testing.T) {
	src := newList[int]()
	n1 := src.pushBack(1)
	src.pushBack(2)
	n3 := src.pushBack(3)
	src.pushBack(4)

	dst := newList[int]()
	dst.pushBack(100)

	// Move [n1, n3] (values 1,2,3) to the end of dst.
	dst.move(dst.end(), n1, n3)

	var got []int
	for n := dst.sentinel.next; n != &dst.sentinel; n = n.next {
		got = append(got, n.value)
	}
	want := []int{100, 1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}

	// src should now contain only the node that wasn't moved (value 4).
	var remaining []int
	for n := src.sentinel.next; n != &src.sentinel; n = n.next {
		remaining = append(remaining, n.value)
	}
	if len(remaining) != 1 || remaining[0] != 4 {
		t.Errorf("src after move: got %v, want [4]", remaining)
	}
}

func TestListClear(t *testing.T) {
	l := newList[int]()
	l.pushBack(1)
	l.pushBack(2)
	l.clear()
	if !l.empty() {
		t.Error("list should be empty after clear")
	}
	if l.front() != nil {
		t.Error("front() should be nil after clear")
	}
}
