package rnet

import "github.com/pkg/errors"

// Sentinel errors surfaced across the package boundary (spec §7).
var (
	errShortDatagram         = errors.New("rnet: datagram too short to decode")
	errMalformedCommand      = errors.New("rnet: malformed command")
	errUnknownPeer           = errors.New("rnet: no peer for datagram")
	errChecksumMismatch      = errors.New("rnet: checksum mismatch")
	errNotConnected          = errors.New("rnet: peer is not connected")
	errInvalidChannel        = errors.New("rnet: channel id out of range")
	errPacketTooLarge        = errors.New("rnet: packet exceeds maximum packet size")
	errTooManyFragments      = errors.New("rnet: fragment count exceeds MaximumFragmentCount")
	errNoFreePeerSlot        = errors.New("rnet: host has no free peer slot")
	errDuplicatePeer         = errors.New("rnet: duplicate peer rejected")
	errInvalidChannelCount   = errors.New("rnet: channel count out of range")
	errWaitingDataExceeded   = errors.New("rnet: peer waiting-data limit exceeded")
	errVerifyConnectMismatch = errors.New("rnet: verify-connect parameters do not match")
	errReliableWindowFull    = errors.New("rnet: too many reliable commands in flight on channel")
)

// wrapf annotates err with a call-site message, following the
// github.com/pkg/errors idiom used for terminal (per-peer/per-host) errors;
// transient per-datagram errors are returned bare and absorbed by the
// caller instead (spec §7).
func wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}
