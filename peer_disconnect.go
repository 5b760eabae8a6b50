package rnet

// Disconnect requests a graceful teardown (spec §4.9 peer_disconnect).
func (p *Peer) Disconnect(data uint32) error {
	switch p.state {
	case StateConnected, StateConnectionPending, StateConnectionSucceeded, StateDisconnectLater, StateAcknowledgingConnect:
	default:
		return errNotConnected
	}
	p.disconnect(data)
	return nil
}

// disconnect is the shared teardown path used by Disconnect and by the
// DISCONNECT_LATER completion check in handleAcknowledge.
func (p *Peer) disconnect(data uint32) {
	if p.state == StateDisconnecting || p.state == StateDisconnected || p.state == StateZombie {
		return
	}

	p.resetQueues()

	header := commandHeader{Command: cmdDisconnect, ChannelID: channelIDControl}
	if p.state == StateConnected || p.state == StateDisconnectLater {
		header.Command |= commandFlagAcknowledge
	} else {
		header.Command |= commandFlagUnsequenced
	}
	_ = p.queueControlCommand(header, disconnectCommand{Data: data})

	if header.Command&commandFlagAcknowledge != 0 {
		p.state = StateDisconnecting
	} else {
		p.host.Flush()
		p.reset()
	}
}

// DisconnectNow tears down immediately, firing a single best-effort
// DISCONNECT and resetting the slot without waiting for an ack (spec §4.9
// peer_disconnect_now).
func (p *Peer) DisconnectNow(data uint32) error {
	if p.state == StateDisconnected {
		return nil
	}
	if p.state != StateZombie {
		p.resetQueues()
		header := commandHeader{Command: cmdDisconnect | commandFlagUnsequenced, ChannelID: channelIDControl}
		_ = p.queueControlCommand(header, disconnectCommand{Data: data})
		p.host.Flush()
	}
	p.reset()
	return nil
}

// DisconnectLater defers teardown until every outgoing command currently
// queued has drained (spec §4.9 peer_disconnect_later).
func (p *Peer) DisconnectLater(data uint32) error {
	if (p.state == StateConnected || p.state == StateDisconnectLater) &&
		!(p.outgoingCommands.empty() && p.outgoingSendReliableCommands.empty() && p.sentReliableCommands.empty()) {
		p.state = StateDisconnectLater
		p.eventData = data
		return nil
	}
	return p.Disconnect(data)
}
