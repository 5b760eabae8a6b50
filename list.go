package rnet

// list is a doubly-linked list with a sentinel node, mirroring the O(1)
// insert/remove/splice contract of ENet's intrusive list (original_source
// include/enetcpp/list.h) without embedding raw pointers in the payload
// type: each element is independently heap-allocated and linked through a
// *node[T], so callers hold a *node[T] handle for O(1) remove-by-handle.
type node[T any] struct {
	prev, next *node[T]
	value      T
}

type list[T any] struct {
	sentinel node[T]
	length   int
}

func newList[T any]() *list[T] {
	l := &list[T]{}
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
	return l
}

func (l *list[T]) clear() {
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
	l.length = 0
}

func (l *list[T]) empty() bool {
	return l.sentinel.next == &l.sentinel
}

func (l *list[T]) front() *node[T] {
	if l.empty() {
		return nil
	}
	return l.sentinel.next
}

func (l *list[T]) back() *node[T] {
	if l.empty() {
		return nil
	}
	return l.sentinel.prev
}

func (l *list[T]) end() *node[T] {
	return &l.sentinel
}

// insertBefore inserts a freshly-allocated node holding v immediately before
// pos (pos == l.end() appends) and returns the new node.
func (l *list[T]) insertBefore(pos *node[T], v T) *node[T] {
	n := &node[T]{value: v, prev: pos.prev, next: pos}
	pos.prev.next = n
	pos.prev = n
	l.length++
	return n
}

func (l *list[T]) pushBack(v T) *node[T] {
	return l.insertBefore(l.end(), v)
}

// remove unlinks n from whichever list it is currently part of. n must not
// be the sentinel of any list.
func (l *list[T]) remove(n *node[T]) T {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
	l.length--
	return n.value
}

// move splices the inclusive range [first, last] out of its current list
// and reinserts it immediately before pos in l, in O(1). The caller is
// responsible for keeping length accounting consistent if first/last came
// from another *list[T] (callers in this package always move within the
// same peer's queues, so length here is advisory/diagnostic only, matching
// spec §4.2's note that size() is diagnostic-only).
func (l *list[T]) move(pos, first, last *node[T]) {
	if first == nil || last == nil {
		return
	}

	oldPrev, oldNext := first.prev, last.next
	oldPrev.next = oldNext
	oldNext.prev = oldPrev

	first.prev = pos.prev
	last.next = pos
	pos.prev.next = first
	pos.prev = last
}

func (l *list[T]) size() int {
	n := 0
	for cur := l.sentinel.next; cur != &l.sentinel; cur = cur.next {
		n++
	}
	return n
}
