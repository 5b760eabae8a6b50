package rnet

import "hash/crc32"

// Checksum is the optional wire-integrity collaborator (spec §6.3). A Host
// has none unless one is passed with WithChecksum. When set on a Host, every outgoing datagram's trailing
// word is replaced by Sum(buffers) and every incoming datagram is
// verified the same way, with the connect id substituted for the
// checksum field before hashing (spec §4.13 step 4).
type Checksum interface {
	Sum(buffers [][]byte) uint32
}

// CRC32Checksum is a ready-made IEEE CRC-32 Checksum for callers that want
// integrity checking without bringing their own algorithm; NewHost does not
// install it by itself.
type CRC32Checksum struct{}

func (CRC32Checksum) Sum(buffers [][]byte) uint32 {
	h := crc32.NewIEEE()
	for _, b := range buffers {
		_, _ = h.Write(b)
	}
	return h.Sum32()
}
