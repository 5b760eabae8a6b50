package rnet

import (
	"net"
	"sync"
	"time"
)

// memNetwork and memSocket give the Host end-to-end tests a deterministic,
// in-process stand-in for newUDPSocket, the way Socket's doc comment
// anticipates ("tests can substitute an in-memory pair"). Addresses are
// plain strings matching what net.ResolveUDPAddr produces for numeric
// "host:port" strings, so Host.Connect's real resolve call still works
// unmodified against them.
type memNetwork struct {
	mu      sync.Mutex
	sockets map[string]*memSocket
}

func newMemNetwork() *memNetwork {
	return &memNetwork{sockets: make(map[string]*memSocket)}
}

func (n *memNetwork) bind(addr string) *memSocket {
	s := &memSocket{addr: addr, net: n, inbox: make(chan memPacket, 256)}
	n.mu.Lock()
	n.sockets[addr] = s
	n.mu.Unlock()
	return s
}

type memPacket struct {
	data []byte
	from net.Addr
}

type memSocket struct {
	addr  string
	net   *memNetwork
	inbox chan memPacket
}

func (s *memSocket) SendTo(b []byte, addr net.Addr) (int, error) {
	s.net.mu.Lock()
	dst := s.net.sockets[addr.String()]
	s.net.mu.Unlock()
	if dst == nil {
		return len(b), nil // no listener at that address: drop silently, like UDP to a closed port
	}
	cp := append([]byte(nil), b...)
	select {
	case dst.inbox <- memPacket{data: cp, from: s.LocalAddr()}:
	default:
		// full inbox: drop, matching a real socket buffer overrun
	}
	return len(b), nil
}

func (s *memSocket) ReceiveFrom(b []byte, deadline time.Time) (int, net.Addr, error) {
	var timeoutCh <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case pkt := <-s.inbox:
		n := copy(b, pkt.data)
		return n, pkt.from, nil
	case <-timeoutCh:
		return 0, nil, &timeoutError{op: "read"}
	}
}

func (s *memSocket) LocalAddr() net.Addr {
	addr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		panic(err)
	}
	return addr
}

func (s *memSocket) Close() error { return nil }
