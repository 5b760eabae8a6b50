// Package rnet implements a reliable, sequenced, multi-channel transport
// over UDP: connection-oriented peers, per-packet delivery semantics
// (reliable, unreliable, unsequenced, and fragmented variants), independent
// per-channel ordering, fragmentation and reassembly above the path MTU,
// RTT-driven throttling, bandwidth-aware admission control, and
// timeout-driven disconnection.
//
// The package is single-threaded and cooperative: a Host is driven by one
// goroutine calling Service in a loop. There is no internal locking: a Host
// shared across goroutines needs external synchronization.
package rnet
