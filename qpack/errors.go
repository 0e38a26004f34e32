package qpack

import "errors"

var (
	// ErrDecompressionFailed is returned when a header block cannot be
	// parsed against the (possibly still-updating) dynamic table, or
	// references an index the table never had.
	ErrDecompressionFailed = errors.New("qpack: decompression failed")
	// ErrDecoderInvalid is returned once a malformed encoder-stream
	// instruction has been observed; the whole QPACK instance is poisoned
	// from that point on, matching the connection-level failure RFC 9204
	// mandates for encoder-stream corruption.
	ErrDecoderInvalid = errors.New("qpack: decoder instance invalidated by a prior malformed instruction")
	// ErrTooManyBlockedStreams is returned when decoding a header block
	// would block and the configured blocked-streams budget is already
	// exhausted.
	ErrTooManyBlockedStreams = errors.New("qpack: too many blocked streams")
)
