package rnet

// Compressor is the optional range-coder collaborator (spec §6.3,
// Non-goals: the codec itself is out of scope). A Host with a Compressor
// set tries it on every outgoing datagram body and keeps the compressed
// form only if it is strictly smaller (spec §4.14 step 7); incoming
// datagrams flagged COMPRESSED are run through Decompress before command
// parsing (spec §4.13 step 3).
type Compressor interface {
	Compress(dst, src []byte) []byte
	Decompress(dst, src []byte) ([]byte, error)
}

// NoopCompressor never shrinks anything; Compress returns src unchanged
// so the caller's "strictly smaller" check always fails and the
// uncompressed body is kept. It exists so Host can always have a non-nil
// Compressor without forcing every caller to bring a real codec.
type NoopCompressor struct{}

func (NoopCompressor) Compress(dst, src []byte) []byte { return append(dst, src...) }

func (NoopCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return append(dst, src...), nil
}
