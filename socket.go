package rnet

import (
	"net"
	"time"
)

// Socket is the OS transport collaborator a Host is driven by (spec §6.3):
// a non-blocking-ish UDP endpoint the engine reads and writes fixed-size
// datagrams through. Only this interface separates the engine from a real
// kernel socket, so tests can substitute an in-memory pair.
type Socket interface {
	SendTo(b []byte, addr net.Addr) (int, error)
	// ReceiveFrom blocks until a datagram arrives or deadline elapses, then
	// returns it. A zero deadline means block forever.
	ReceiveFrom(b []byte, deadline time.Time) (int, net.Addr, error)
	LocalAddr() net.Addr
	Close() error
}

// packetConnSocket adapts a net.PacketConn (the same UDP primitive
// go-utp's Listen/Dial dial up) to Socket.
type packetConnSocket struct {
	pconn net.PacketConn
}

// newUDPSocket opens a UDP socket bound to address, following the
// net.ListenPacket("udp", ...) pattern used throughout go-utp's api.go.
func newUDPSocket(address string) (Socket, error) {
	pconn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, wrapf(err, "rnet: listen udp %q", address)
	}
	return &packetConnSocket{pconn: pconn}, nil
}

func (s *packetConnSocket) SendTo(b []byte, addr net.Addr) (int, error) {
	return s.pconn.WriteTo(b, addr)
}

func (s *packetConnSocket) ReceiveFrom(b []byte, deadline time.Time) (int, net.Addr, error) {
	if deadline.IsZero() {
		_ = s.pconn.SetReadDeadline(time.Time{})
	} else if err := s.pconn.SetReadDeadline(deadline); err != nil {
		return 0, nil, err
	}
	n, addr, err := s.pconn.ReadFrom(b)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, &timeoutError{op: "read"}
		}
		return 0, nil, err
	}
	return n, addr, nil
}

func (s *packetConnSocket) LocalAddr() net.Addr { return s.pconn.LocalAddr() }
func (s *packetConnSocket) Close() error        { return s.pconn.Close() }
