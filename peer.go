package rnet

import (
	"encoding/binary"
	"net"

	"github.com/tmthrgd/go-popcount"
)

// Peer is one connection endpoint (spec §3 Peer).
type Peer struct {
	host *Host

	incomingPeerID uint16
	outgoingPeerID uint16

	incomingSessionID uint8
	outgoingSessionID uint8

	connectID uint32

	state PeerState

	address net.Addr

	channels     []*channel
	channelCount int

	packetThrottle             uint32
	packetThrottleLimit        uint32
	packetThrottleCounter      uint32
	packetThrottleEpoch        uint32
	packetThrottleAcceleration uint32
	packetThrottleDeceleration uint32
	packetThrottleInterval     uint32

	// roundTripTime and friends are all in the host's service-time
	// millisecond space (spec §4.1), matching every other timestamp in
	// the engine rather than time.Duration.
	roundTripTime         uint32
	roundTripTimeVariance uint32
	lowestRoundTripTime   uint32
	highestRTTVariance    uint32
	lastRoundTripTime     uint32
	lastRTTVariance       uint32
	rttInitialized        bool

	packetLossEpoch    uint32
	packetsSent        uint32
	packetsLost        uint32
	packetLoss         uint32 // scaled peerPacketLossScale
	packetLossVariance uint32

	lastSendTime    uint32 // ms, service_time space
	lastReceiveTime uint32
	nextTimeout     uint32
	earliestTimeout uint32

	pingInterval   uint32
	timeoutLimit   uint32
	timeoutMinimum uint32
	timeoutMaximum uint32

	mtu                   uint32
	windowSize            uint32
	reliableDataInTransit uint32

	incomingBandwidth uint32
	outgoingBandwidth uint32

	incomingBandwidthThrottleEpoch uint32
	outgoingBandwidthThrottleEpoch uint32
	incomingDataTotal              uint32
	outgoingDataTotal              uint32

	acknowledgements             *list[*acknowledgement]
	sentReliableCommands         *list[*outgoingCommand]
	outgoingCommands             *list[*outgoingCommand]
	outgoingSendReliableCommands *list[*outgoingCommand]
	dispatchedCommands           *list[*incomingCommand]

	flags peerFlag

	incomingUnsequencedGroup uint16
	outgoingUnsequencedGroup uint16
	unsequencedWindow        [peerUnsequencedWindowSize / 32]uint32

	outgoingReliableSequenceNumber uint16 // for channelIDControl commands

	totalWaitingData uint32

	eventData uint32 // last DISCONNECT/CONNECT data, surfaced in the next Event

	// UserData is caller-owned bookkeeping, passed through untouched
	// (mirrors enet_peer_t::data; spec.md is silent on it, carried over
	// from original_source per SPEC_FULL §4).
	UserData any
}

func newPeer(h *Host) *Peer {
	p := &Peer{
		host:                         h,
		state:                        StateDisconnected,
		acknowledgements:             newList[*acknowledgement](),
		sentReliableCommands:         newList[*outgoingCommand](),
		outgoingCommands:             newList[*outgoingCommand](),
		outgoingSendReliableCommands: newList[*outgoingCommand](),
		dispatchedCommands:           newList[*incomingCommand](),
		pingInterval:                 peerPingInterval,
		timeoutLimit:                 peerTimeoutLimit,
		timeoutMinimum:               peerTimeoutMinimum,
		timeoutMaximum:               peerTimeoutMaximum,
	}
	return p
}

// Address returns the peer's remote address.
func (p *Peer) Address() net.Addr { return p.address }

// State returns the peer's current connection state.
func (p *Peer) State() PeerState { return p.state }

// RoundTripTime returns the current smoothed RTT estimate, in milliseconds.
func (p *Peer) RoundTripTime() uint32 { return p.roundTripTime }

func (p *Peer) connectedOrDisconnectLater() bool {
	return p.state == StateConnected || p.state == StateDisconnectLater
}

// reset returns the peer slot to StateDisconnected with no network effect
// (spec §5: peerReset is the sole forced-teardown mechanism).
func (p *Peer) reset() {
	p.outgoingPeerID = MaximumPeerID
	p.connectID = 0
	p.state = StateDisconnected

	p.incomingBandwidth = 0
	p.outgoingBandwidth = 0
	p.incomingBandwidthThrottleEpoch = 0
	p.outgoingBandwidthThrottleEpoch = 0
	p.incomingDataTotal = 0
	p.outgoingDataTotal = 0
	p.incomingSessionID = 0xFF
	p.outgoingSessionID = 0xFF

	p.totalWaitingData = 0
	p.flags = 0

	p.reliableDataInTransit = 0
	p.packetThrottle = peerPacketThrottleScale
	p.packetThrottleLimit = peerPacketThrottleScale
	p.packetThrottleCounter = 0
	p.packetThrottleEpoch = 0
	p.packetThrottleAcceleration = 2
	p.packetThrottleDeceleration = 2
	p.packetThrottleInterval = peerPacketThrottleInterval

	p.pingInterval = peerPingInterval
	p.timeoutLimit = peerTimeoutLimit
	p.timeoutMinimum = peerTimeoutMinimum
	p.timeoutMaximum = peerTimeoutMaximum

	p.lastRoundTripTime = peerDefaultRoundTripTime
	p.lowestRoundTripTime = peerDefaultRoundTripTime
	p.lastRTTVariance = 0
	p.highestRTTVariance = 0
	p.roundTripTime = peerDefaultRoundTripTime
	p.roundTripTimeVariance = 0
	p.rttInitialized = false

	p.mtu = DefaultMTU
	p.windowSize = MaximumWindowSize

	p.packetLossEpoch = 0
	p.packetsSent = 0
	p.packetsLost = 0
	p.packetLoss = 0
	p.packetLossVariance = 0

	for i := range p.unsequencedWindow {
		p.unsequencedWindow[i] = 0
	}
	p.incomingUnsequencedGroup = 0
	p.outgoingUnsequencedGroup = 0

	p.resetQueues()
	p.channels = nil
	p.channelCount = 0
}

// resetQueues drops all queued commands and releases every packet
// reference they held (spec §5).
func (p *Peer) resetQueues() {
	for n := p.acknowledgements.front(); n != nil; n = p.acknowledgements.front() {
		p.acknowledgements.remove(n)
	}
	for n := p.sentReliableCommands.front(); n != nil; n = p.sentReliableCommands.front() {
		cmd := p.sentReliableCommands.remove(n)
		p.releaseOutgoing(cmd)
	}
	for n := p.outgoingCommands.front(); n != nil; n = p.outgoingCommands.front() {
		cmd := p.outgoingCommands.remove(n)
		p.releaseOutgoing(cmd)
	}
	for n := p.outgoingSendReliableCommands.front(); n != nil; n = p.outgoingSendReliableCommands.front() {
		cmd := p.outgoingSendReliableCommands.remove(n)
		p.releaseOutgoing(cmd)
	}
	for n := p.dispatchedCommands.front(); n != nil; n = p.dispatchedCommands.front() {
		cmd := p.dispatchedCommands.remove(n)
		p.releaseIncoming(cmd)
	}
	for _, ch := range p.channels {
		for n := ch.incomingReliableCommands.front(); n != nil; n = ch.incomingReliableCommands.front() {
			p.releaseIncoming(ch.incomingReliableCommands.remove(n))
		}
		for n := ch.incomingUnreliableCommands.front(); n != nil; n = ch.incomingUnreliableCommands.front() {
			p.releaseIncoming(ch.incomingUnreliableCommands.remove(n))
		}
		ch.reset()
	}
}

// releaseOutgoing drops cmd's packet reference, if any, and reports
// whether that was the last reference (i.e. every fragment of the
// original Send has now been retired or discarded).
func (p *Peer) releaseOutgoing(cmd *outgoingCommand) bool {
	if cmd.packet == nil {
		return false
	}
	freed := cmd.packet.decref()
	if freed {
		cmd.packet = nil
	}
	return freed
}

func (p *Peer) releaseIncoming(cmd *incomingCommand) {
	if cmd.packet != nil && cmd.packet.decref() {
		cmd.packet = nil
	}
}

func (p *Peer) resetChannels(count int) {
	p.channelCount = count
	p.channels = make([]*channel, count)
	for i := range p.channels {
		p.channels[i] = newChannel()
	}
}

// usedUnsequencedSlotCount returns how many of the 1024 unsequenced replay
// slots are currently marked seen, via a popcount over unsequencedWindow
// (scales channel.usedWindowCount's diagnostic use of go-popcount from the
// 16-bit reliable-window bitmap up to the 1024-bit unsequenced one).
func (p *Peer) usedUnsequencedSlotCount() int {
	b := make([]byte, len(p.unsequencedWindow)*4)
	for i, w := range p.unsequencedWindow {
		binary.BigEndian.PutUint32(b[i*4:], w)
	}
	return int(popcount.CountBytes(b))
}

// windowDiagnostics reports how many reliable-window slots (summed across
// every channel) and unsequenced replay slots are currently occupied.
// Surfaced in the timeout-disconnect debug log (host_send.go) so a caller
// chasing a disconnect can see how saturated the peer's windows were.
func (p *Peer) windowDiagnostics() (reliableWindows, unsequencedSlots int) {
	for _, ch := range p.channels {
		reliableWindows += ch.usedWindowCount()
	}
	return reliableWindows, p.usedUnsequencedSlotCount()
}

// throttle recomputes packet_throttle from a fresh RTT sample, in
// milliseconds (spec §4.6). Returns +1 if the throttle increased, -1 if it
// decreased, 0 otherwise.
func (p *Peer) throttle(rtt uint32) int {
	switch {
	case p.lastRoundTripTime <= p.lastRTTVariance:
		p.packetThrottle = p.packetThrottleLimit
		return 0
	case rtt <= p.lastRoundTripTime:
		p.packetThrottle += p.packetThrottleAcceleration
		if p.packetThrottle > p.packetThrottleLimit {
			p.packetThrottle = p.packetThrottleLimit
		}
		return 1
	case rtt > p.lastRoundTripTime+2*p.lastRTTVariance:
		if p.packetThrottleDeceleration < p.packetThrottle {
			p.packetThrottle -= p.packetThrottleDeceleration
		} else {
			p.packetThrottle = 0
		}
		return -1
	default:
		return 0
	}
}

// ConfigureThrottle configures the peer's RTT-throttle parameters and
// queues a THROTTLE_CONFIGURE command to the remote side (SPEC_FULL §4,
// mirrors enet_peer_throttle_configure). interval, acceleration and
// deceleration are all in milliseconds / throttle units.
func (p *Peer) ConfigureThrottle(interval, acceleration, deceleration uint32) error {
	p.packetThrottleInterval = interval
	p.packetThrottleAcceleration = acceleration
	p.packetThrottleDeceleration = deceleration

	return p.queueControlCommand(commandHeader{Command: cmdThrottleConfigure | commandFlagAcknowledge, ChannelID: channelIDControl},
		throttleConfigureCommand{
			Interval:     interval,
			Acceleration: acceleration,
			Deceleration: deceleration,
		})
}

// SetTimeout configures the peer's disconnect-timeout parameters (mirrors
// enet_peer_timeout; local only, no wire effect). limit is compared against
// a timed-out command's back-off factor 1<<(sendAttempts-1), not a time;
// minimum and maximum are in milliseconds.
func (p *Peer) SetTimeout(limit, minimum, maximum uint32) {
	p.timeoutLimit = limit
	p.timeoutMinimum = minimum
	p.timeoutMaximum = maximum
}

// Ping forces an immediate PING to be queued regardless of idle time
// (mirrors enet_peer_ping; SPEC_FULL §4).
func (p *Peer) Ping() error {
	if p.state != StateConnected {
		return errNotConnected
	}
	return p.queueOutgoingCommand(commandHeader{Command: cmdPing | commandFlagAcknowledge, ChannelID: channelIDControl}, nil, 0, 0)
}
