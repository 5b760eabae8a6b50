package rnet

import (
	"math/rand"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// Host is the top-level transport endpoint (spec §3 Host): it owns a
// Socket, a fixed-size peer table, and the single-threaded service loop
// that drains sends and receives. A Host is driven by one goroutine
// calling Service (or CheckEvents/Flush) in a loop; there is no internal
// locking (spec §5).
type Host struct {
	socket Socket
	addr   net.Addr

	peers        []*Peer
	channelLimit int

	incomingBandwidth uint32
	outgoingBandwidth uint32

	bandwidthThrottleEpoch     uint32
	recalculateBandwidthLimits bool

	mtu                uint32
	maximumPacketSize  uint32
	maximumWaitingData uint32
	duplicatePeers     int

	checksum   Checksum
	compressor Compressor

	// outgoingLimiter is a hard byte-budget ceiling beneath the analytic
	// packetThrottleLimit allocation throttleBandwidth computes per peer
	// (spec §4.7): even a peer whose own throttle would allow a send is
	// held back once the host's aggregate outgoing rate is exhausted. nil
	// when outgoingBandwidth is unset (unlimited).
	outgoingLimiter *rate.Limiter

	serviceTime uint32
	totalQueued uint32

	dispatchQueue []*Peer

	connectedPeers        int
	bandwidthLimitedPeers int

	rng *rand.Rand

	stats hostStats
}

// HostOption customizes NewHost beyond HostConfig's wire-relevant fields,
// the way go-utp's api.go keeps Dial/Listen's signature small and pushes
// everything else onto the returned value.
type HostOption func(*Host)

// WithChecksum installs a Checksum collaborator.
func WithChecksum(c Checksum) HostOption { return func(h *Host) { h.checksum = c } }

// WithCompressor installs a Compressor collaborator.
func WithCompressor(c Compressor) HostOption { return func(h *Host) { h.compressor = c } }

// WithSocket overrides the default UDP socket, mainly for tests that want
// an in-memory Socket pair instead of a real kernel one.
func WithSocket(s Socket) HostOption { return func(h *Host) { h.socket = s } }

// NewHost creates a Host bound to cfg.Address (empty to bind an ephemeral
// port) with cfg.PeerCount peer slots.
func NewHost(cfg *HostConfig, opts ...HostOption) (*Host, error) {
	applyHostConfigDefaults(cfg)

	h := &Host{
		peers:              make([]*Peer, cfg.PeerCount),
		channelLimit:       cfg.ChannelLimit,
		incomingBandwidth:  cfg.IncomingBandwidth,
		outgoingBandwidth:  cfg.OutgoingBandwidth,
		mtu:                cfg.MTU,
		maximumPacketSize:  cfg.MaximumPacketSize,
		maximumWaitingData: cfg.MaximumWaitingData,
		duplicatePeers:     cfg.DuplicatePeers,
		compressor:         NoopCompressor{},
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if h.outgoingBandwidth > 0 {
		h.outgoingLimiter = rate.NewLimiter(rate.Limit(h.outgoingBandwidth), int(2*h.mtu))
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.socket == nil {
		sock, err := newUDPSocket(cfg.Address)
		if err != nil {
			return nil, err
		}
		h.socket = sock
	}
	h.addr = h.socket.LocalAddr()

	for i := range h.peers {
		p := newPeer(h)
		p.incomingPeerID = uint16(i)
		p.reset()
		h.peers[i] = p
	}

	logInfo("rnet: host %s ready, %d peer slots", h.addr, len(h.peers))
	return h, nil
}

// Destroy releases the host's socket. Connected peers are not notified;
// callers that want a clean handshake teardown should Disconnect every
// peer first and Flush.
func (h *Host) Destroy() error {
	return h.socket.Close()
}

// Addr returns the host's local socket address.
func (h *Host) Addr() net.Addr { return h.addr }

// Stats returns the host's traffic counters.
func (h *Host) Stats() *hostStats { return &h.stats }

func (h *Host) nextQueueTime() uint32 {
	h.totalQueued++
	return h.totalQueued
}

// allocatePeer finds the first StateDisconnected slot, counting existing
// non-CONNECTING peers sharing addr along the way (spec §4.8 step 2).
func (h *Host) allocatePeer(addr net.Addr) (*Peer, error) {
	var free *Peer
	duplicates := 0

	for _, p := range h.peers {
		if p.state == StateDisconnected {
			if free == nil {
				free = p
			}
			continue
		}
		if p.state == StateConnecting {
			continue
		}
		if sameHost(p.address, addr) {
			duplicates++
		}
	}

	if free == nil {
		return nil, errNoFreePeerSlot
	}
	if duplicates >= h.duplicatePeers {
		return nil, errDuplicatePeer
	}
	return free, nil
}

func sameHost(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	ua, ok1 := a.(*net.UDPAddr)
	ub, ok2 := b.(*net.UDPAddr)
	if ok1 && ok2 {
		return ua.IP.Equal(ub.IP)
	}
	return a.String() == b.String()
}

// Connect allocates a peer slot and begins the client side of the
// handshake (spec §4.8). The peer is returned immediately in
// StateConnecting; a CONNECT event surfaces from Service once the
// VERIFY_CONNECT reply is processed.
func (h *Host) Connect(address string, channelCount int, data uint32) (*Peer, error) {
	if channelCount < MinimumChannelCount {
		channelCount = MinimumChannelCount
	}
	if channelCount > MaximumChannelCount {
		channelCount = MaximumChannelCount
	}

	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, wrapf(err, "rnet: resolve %q", address)
	}

	p, err := h.allocatePeer(addr)
	if err != nil {
		return nil, err
	}

	p.address = addr
	p.resetChannels(channelCount)
	p.connectID = h.rng.Uint32()
	p.state = StateConnecting
	p.mtu = h.mtu
	p.incomingBandwidth = h.incomingBandwidth
	p.outgoingBandwidth = h.outgoingBandwidth
	p.windowSize = MaximumWindowSize
	p.lastReceiveTime = h.serviceTime
	p.lastSendTime = h.serviceTime
	p.earliestTimeout = 0

	err = p.queueOutgoingCommand(commandHeader{Command: cmdConnect | commandFlagAcknowledge, ChannelID: channelIDControl},
		nil, 0, 0)
	if err != nil {
		return nil, err
	}
	// stash the handshake parameters on the queued command's extra slot so
	// the send path can encode the full ConnectCommand body.
	if n := p.outgoingSendReliableCommands.back(); n != nil {
		n.value.extra = connectCommand{
			OutgoingPeerID:       p.incomingPeerID,
			IncomingSession:      p.incomingSessionID,
			OutgoingSession:      p.outgoingSessionID,
			MTU:                  p.mtu,
			WindowSize:           p.windowSize,
			ChannelCount:         uint32(channelCount),
			IncomingBandwidth:    p.incomingBandwidth,
			OutgoingBandwidth:    p.outgoingBandwidth,
			ThrottleInterval:     p.packetThrottleInterval,
			ThrottleAcceleration: p.packetThrottleAcceleration,
			ThrottleDeceleration: p.packetThrottleDeceleration,
			ConnectID:            p.connectID,
			Data:                 data,
		}
	}

	logInfo("rnet: connecting to %s (%d channels)", address, channelCount)
	return p, nil
}

// Broadcast queues packet for send on channelID to every connected peer.
func (h *Host) Broadcast(channelID uint8, packet *Packet) {
	for _, p := range h.peers {
		if p.state != StateConnected {
			continue
		}
		packet.incref()
		_ = p.Send(channelID, packet)
	}
	packet.decref()
}

func (h *Host) queueDispatch(p *Peer) {
	if p.flags&peerFlagNeedsDispatch != 0 {
		return
	}
	p.flags |= peerFlagNeedsDispatch
	h.dispatchQueue = append(h.dispatchQueue, p)
}

// drainDispatchQueue surfaces one pending CONNECT/DISCONNECT/RECEIVE event,
// or EventNone if nothing is queued (spec §4.15 step 1).
func (h *Host) drainDispatchQueue() Event {
	for len(h.dispatchQueue) > 0 {
		p := h.dispatchQueue[0]
		h.dispatchQueue = h.dispatchQueue[1:]
		p.flags &^= peerFlagNeedsDispatch

		switch p.state {
		case StateConnectionPending, StateConnectionSucceeded:
			p.state = StateConnected
			return Event{Type: EventConnect, Peer: p, Data: p.eventData}
		case StateZombie:
			p.reset()
			return Event{Type: EventDisconnect, Peer: p, Data: p.eventData}
		default:
			if ev, ok := p.popDispatchedPacket(); ok {
				if !p.dispatchedCommands.empty() {
					h.queueDispatch(p)
				}
				return ev
			}
		}
	}
	return Event{Type: EventNone}
}

// notifyConnect dispatches a just-negotiated peer, mirroring
// enet_protocol_notify_connect's two branches (spec §4.8).
func (h *Host) notifyConnect(p *Peer) {
	if !p.connectedOrDisconnectLater() {
		if p.incomingBandwidth != 0 {
			h.bandwidthLimitedPeers++
		}
		h.connectedPeers++
	}
	if p.state == StateConnecting {
		p.state = StateConnectionSucceeded
	} else {
		p.state = StateConnectionPending
	}
	h.queueDispatch(p)
}

// notifyDisconnect dispatches a torn-down peer to ZOMBIE so the next
// dispatch surfaces a DISCONNECT event, then resets its slot (spec §4.9).
func (h *Host) notifyDisconnect(p *Peer) {
	if p.state == StateConnecting {
		// never finished connecting; no event, just free the slot.
		p.reset()
		return
	}
	if p.connectedOrDisconnectLater() {
		if p.incomingBandwidth != 0 {
			h.bandwidthLimitedPeers--
		}
		h.connectedPeers--
	}
	p.state = StateZombie
	h.queueDispatch(p)
}

// CheckEvents runs step 1 of the service loop without touching the
// network (spec §4.15 "host_check_events").
func (h *Host) CheckEvents() Event {
	return h.drainDispatchQueue()
}

// Flush performs a single non-blocking send pass across every peer
// (spec §4.15 "host_flush").
func (h *Host) Flush() {
	h.serviceTime = nowMillis()
	h.sendOutgoingCommands(false)
}

// Service drives the host for up to timeout, returning the first event it
// produces or EventNone at the deadline (spec §4.15).
func (h *Host) Service(timeout time.Duration) (Event, error) {
	if ev := h.drainDispatchQueue(); ev.Type != EventNone {
		return ev, nil
	}

	h.serviceTime = nowMillis()
	deadline := h.serviceTime + uint32(timeout/time.Millisecond)

	for {
		if h.bandwidthThrottleEpoch == 0 || timeGreaterEqual(h.serviceTime, h.bandwidthThrottleEpoch+hostBandwidthThrottleInterval) {
			h.throttleBandwidth()
		}

		if ev, err := h.sendOutgoingCommands(true); err != nil {
			return Event{}, err
		} else if ev.Type != EventNone {
			return ev, nil
		}

		if err := h.receiveIncomingCommands(); err != nil {
			return Event{}, err
		}

		if ev, err := h.sendOutgoingCommands(true); err != nil {
			return Event{}, err
		} else if ev.Type != EventNone {
			return ev, nil
		}

		if ev := h.drainDispatchQueue(); ev.Type != EventNone {
			return ev, nil
		}

		h.serviceTime = nowMillis()
		if timeGreaterEqual(h.serviceTime, deadline) {
			return Event{Type: EventNone}, nil
		}

		wait := time.Duration(deadline-h.serviceTime) * time.Millisecond
		_, _ = h.receiveOne(time.Now().Add(wait))
		h.serviceTime = nowMillis()
	}
}

// nowMillis returns the host's service clock, a free-running millisecond
// counter (spec §4.1 treats it as opaque and wrapping, never wall-clock
// arithmetic directly).
func nowMillis() uint32 {
	return uint32(time.Now().UnixMilli())
}
