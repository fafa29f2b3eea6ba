package mux

import "sync"

// Connection is the boundary to the owning connection. The engine never
// touches the wire itself: every outbound operation delegates here, and the
// connection's I/O loop feeds inbound signals back through the Stream's
// On* methods.
//
// The connection exclusively owns the registry of its streams; a Stream
// holds a non-owning back-reference through this interface.
//
// Write methods return an error only for immediate failures (frame could
// not be queued). Delivery confirmation, where offered, arrives through the
// per-call completion callback, which implementations must run on the
// stream's dispatch context (use Stream.Dispatch).
type Connection interface {
	// StateLock returns the mutex guarding the small per-stream state that
	// crosses the connection/stream boundary: the writable flag, the
	// priority triple, the trailers and the byte counters. The connection's
	// I/O path flips writability asynchronously relative to application
	// writes, so both sides must take this same lock.
	StateLock() *sync.Mutex

	// StreamWritable reports whether outbound flow-control credit is
	// currently available for the given bound stream id. Read once at bind
	// time; afterwards the engine tracks the flag through
	// OnWritabilityChanged toggles.
	StreamWritable(streamID uint32) bool

	// WriteHeaders emits a header block tagged with the stream's current
	// priority. endStream half-closes the local direction.
	WriteHeaders(s *Stream, headers Headers, endStream bool, priority StreamPriority, cb func(error)) error

	// WriteData emits a data chunk. The engine has already accounted the
	// chunk in bytesWritten when this is called.
	WriteData(s *Stream, chunk []byte, endStream bool, cb func(error)) error

	// WriteReset requests immediate termination of the stream.
	WriteReset(streamID uint32, code ErrorCode) error

	// WritePriority emits a priority update for a bound stream.
	WritePriority(s *Stream, priority StreamPriority) error

	// WriteExtensionFrame emits a raw frame, bypassing flow control.
	WriteExtensionFrame(s *Stream, frame ExtensionFrame) error

	// Flush asks the connection to flush any frames buffered for the
	// stream. There is no acknowledgement.
	Flush(s *Stream)

	// ConsumeCredits reports n consumed inbound bytes so the connection can
	// replenish its receive window. Called exactly once per delivered
	// chunk, synchronously with delivery.
	ConsumeCredits(s *Stream, n int)

	// ReportBytesRead delivers the stream's final inbound byte total at
	// end-of-stream. Metrics only; distinct from per-chunk credits.
	ReportBytesRead(n int64)

	// ReportBytesWritten delivers the stream's outbound byte total when the
	// stream closes. Metrics only.
	ReportBytesWritten(n int64)
}
