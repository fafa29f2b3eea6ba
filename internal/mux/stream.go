// Package mux implements the per-stream engine of a multiplexed, framed
// transport. It turns raw, interleaved connection-level frame events into an
// ordered, backpressure-aware, per-stream API: inbound signals are marshaled
// onto a single logical execution context per stream, data flows through a
// demand-driven queue, consumed bytes are reported back to the connection's
// credit system, and outbound operations delegate wire work to the owning
// connection while tracking byte counts.
//
// The connection-wide concerns (frame codec, socket I/O, connection window,
// stream registry) live behind the Connection interface.
package mux

import (
	"fmt"

	"example.com/muxstream/v2/internal/config"
	"example.com/muxstream/v2/internal/logger"
)

// Stream is one multiplexed logical channel bound to one connection.
//
// Three sources of concurrency meet here: the connection's I/O path (the
// On* inbound signals), the connection-wide multiplexer (writability and
// close), and application code (the Write* outbound operations). Inbound
// signals are re-dispatched onto the stream's serial execution context;
// outbound operations must be invoked from that same context (marshal
// through Dispatch from anywhere else). The few fields both sides touch —
// writable, priority, trailers, the byte counters — are guarded by the lock
// the connection shares via Connection.StateLock.
type Stream struct {
	conn    Connection
	log     *logger.Logger
	metrics *EngineMetrics

	loop    *dispatchLoop
	pending *inboundQueue

	// Guarded by conn.StateLock().
	id              uint32 // 0 until bound
	state           StreamState
	writable        bool
	priority        StreamPriority
	priorityPending bool    // priority changed before bind; emit at bind time
	trailers        Headers // nil until the end signal arrives; set exactly once
	bytesRead       int64
	bytesWritten    int64
	closeReported   bool

	// Handlers run on the dispatch context. Set them before traffic starts.
	dataHandler      func([]byte)
	endHandler       func(Headers)
	resetHandler     func(ErrorCode)
	priorityHandler  func(StreamPriority)
	frameHandler     func(ExtensionFrame)
	interestHandler  func()
	exceptionHandler func(error)
	closeHandler     func()
}

// Option configures a Stream at construction.
type Option func(*streamOptions)

type streamOptions struct {
	metrics   *EngineMetrics
	highWater int
	priority  StreamPriority
}

// WithMetrics attaches engine counters to the stream.
func WithMetrics(m *EngineMetrics) Option {
	return func(o *streamOptions) { o.metrics = m }
}

// WithQueueHighWatermark overrides the inbound queue's high watermark.
func WithQueueHighWatermark(n int) Option {
	return func(o *streamOptions) { o.highWater = n }
}

// WithDefaultPriority overrides the baseline priority.
func WithDefaultPriority(p StreamPriority) Option {
	return func(o *streamOptions) { o.priority = p }
}

// WithEngineConfig applies the tuning section of a loaded configuration.
func WithEngineConfig(cfg *config.EngineConfig) Option {
	return func(o *streamOptions) {
		if cfg == nil {
			return
		}
		if cfg.QueueHighWatermark != nil {
			o.highWater = *cfg.QueueHighWatermark
		}
		if cfg.DefaultPriorityWeight != nil {
			o.priority.Weight = uint8(*cfg.DefaultPriorityWeight)
		}
	}
}

// NewStream creates a stream in the created state (no transport id yet),
// owned by the given connection. The inbound queue starts resumed with
// unbounded demand; call Pause/Fetch to throttle delivery.
func NewStream(conn Connection, lg *logger.Logger, opts ...Option) *Stream {
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	o := streamOptions{
		highWater: config.DefaultQueueHighWatermark,
		priority:  DefaultStreamPriority,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Stream{
		conn:     conn,
		log:      lg,
		metrics:  o.metrics,
		pending:  newInboundQueue(o.highWater),
		state:    StreamStateCreated,
		priority: o.priority,
	}
	s.loop = newDispatchLoop(func(recovered interface{}) {
		s.handleException(fmt.Errorf("panic on stream dispatch context: %v", recovered))
	})
	s.pending.SetHandler(s.deliver)
	s.pending.SetErrorHandler(s.handleException)
	return s
}

// deliver is the queue drain callback. It runs on the dispatch context for
// every dequeued entry, in production order, the end entry last.
func (s *Stream) deliver(e inboundEntry) {
	mu := s.conn.StateLock()
	if e.end {
		mu.Lock()
		total := s.bytesRead
		trailers := s.trailers
		h := s.endHandler
		mu.Unlock()
		if trailers == nil {
			trailers = emptyTrailers
		}
		// The final bytesRead total is reported exactly once, distinct from
		// the per-chunk credit replenishment below.
		s.conn.ReportBytesRead(total)
		if h != nil {
			h(trailers)
		}
		return
	}

	n := len(e.data)
	// Credit is returned synchronously with delivery, once per chunk, so the
	// connection can replenish its receive window.
	s.conn.ConsumeCredits(s, n)
	mu.Lock()
	s.bytesRead += int64(n)
	h := s.dataHandler
	mu.Unlock()
	s.metrics.addBytesRead(n)
	if h != nil {
		h(e.data)
	}
}

// Bind assigns the connection-scoped transport id, opening the stream. The
// initial writability is snapshotted from the connection, and any priority
// update recorded before binding is emitted now.
func (s *Stream) Bind(id uint32) error {
	if id == 0 {
		return NewStreamError(0, ErrCodeInternalError, "transport id must be non-zero")
	}
	writable := s.conn.StreamWritable(id)

	mu := s.conn.StateLock()
	mu.Lock()
	if s.state != StreamStateCreated {
		state := s.state
		mu.Unlock()
		return NewStreamError(s.id, ErrCodeInternalError,
			fmt.Sprintf("bind on stream in state %s", state))
	}
	s.id = id
	s.state = StreamStateOpen
	s.writable = writable
	flushPriority := s.priorityPending
	s.priorityPending = false
	prio := s.priority
	mu.Unlock()

	s.metrics.streamOpened()
	s.log.Debug("stream bound", logger.LogFields{"stream_id": id, "writable": writable})

	if flushPriority {
		if err := s.conn.WritePriority(s, prio); err != nil {
			return err
		}
	}
	return nil
}

// ID returns the transport id, 0 if the stream is not bound yet.
func (s *Stream) ID() uint32 {
	mu := s.conn.StateLock()
	mu.Lock()
	defer mu.Unlock()
	return s.id
}

// State returns the current lifecycle state.
func (s *Stream) State() StreamState {
	mu := s.conn.StateLock()
	mu.Lock()
	defer mu.Unlock()
	return s.state
}

// Priority returns the current priority triple.
func (s *Stream) Priority() StreamPriority {
	mu := s.conn.StateLock()
	mu.Lock()
	defer mu.Unlock()
	return s.priority
}

// IsNotWritable reports whether outbound flow-control credit is exhausted.
func (s *Stream) IsNotWritable() bool {
	mu := s.conn.StateLock()
	mu.Lock()
	defer mu.Unlock()
	return !s.writable
}

// BytesRead returns the cumulative inbound payload bytes delivered so far.
// The total is only reported upstream at end-of-stream.
func (s *Stream) BytesRead() int64 {
	mu := s.conn.StateLock()
	mu.Lock()
	defer mu.Unlock()
	return s.bytesRead
}

// BytesWritten returns the cumulative outbound payload bytes accepted for
// writing. It reflects attempted writes, not confirmed flushes.
func (s *Stream) BytesWritten() int64 {
	mu := s.conn.StateLock()
	mu.Lock()
	defer mu.Unlock()
	return s.bytesWritten
}

// Dispatch marshals fn onto the stream's execution context. Callers outside
// that context must route outbound operations through here. Returns false
// if the stream has closed and its context has stopped; fn will never run.
func (s *Stream) Dispatch(fn func()) bool {
	return s.loop.Dispatch(fn)
}

// Pause suspends inbound delivery. Chunks accumulate in the queue until
// Fetch grants permits. Must be invoked on the dispatch context.
func (s *Stream) Pause() {
	s.pending.Pause()
}

// Fetch grants up to n more inbound delivery permits (FetchUnbounded for no
// limit), resuming delivery of anything pending. Must be invoked on the
// dispatch context.
func (s *Stream) Fetch(n int64) {
	s.pending.Fetch(n)
}

// --- Handler registration -------------------------------------------------

// SetDataHandler installs the callback for delivered data chunks.
func (s *Stream) SetDataHandler(h func([]byte)) {
	mu := s.conn.StateLock()
	mu.Lock()
	s.dataHandler = h
	mu.Unlock()
}

// SetEndHandler installs the end-of-stream callback. It receives the
// trailers (an empty mapping when the peer sent none) exactly once.
func (s *Stream) SetEndHandler(h func(Headers)) {
	mu := s.conn.StateLock()
	mu.Lock()
	s.endHandler = h
	mu.Unlock()
}

// SetResetHandler installs the callback for a remote reset.
func (s *Stream) SetResetHandler(h func(ErrorCode)) {
	mu := s.conn.StateLock()
	mu.Lock()
	s.resetHandler = h
	mu.Unlock()
}

// SetPriorityChangeHandler installs the callback for effective (changed)
// priority updates from the peer.
func (s *Stream) SetPriorityChangeHandler(h func(StreamPriority)) {
	mu := s.conn.StateLock()
	mu.Lock()
	s.priorityHandler = h
	mu.Unlock()
}

// SetExtensionFrameHandler installs the callback for unknown/extension
// frames.
func (s *Stream) SetExtensionFrameHandler(h func(ExtensionFrame)) {
	mu := s.conn.StateLock()
	mu.Lock()
	s.frameHandler = h
	mu.Unlock()
}

// SetInterestChangeHandler installs the callback fired after each
// writability toggle.
func (s *Stream) SetInterestChangeHandler(h func()) {
	mu := s.conn.StateLock()
	mu.Lock()
	s.interestHandler = h
	mu.Unlock()
}

// SetExceptionHandler installs the sink for local faults: consumer panics,
// dispatch panics, and errors surfaced via OnError. Faults do not close the
// stream.
func (s *Stream) SetExceptionHandler(h func(error)) {
	mu := s.conn.StateLock()
	mu.Lock()
	s.exceptionHandler = h
	mu.Unlock()
}

// SetCloseHandler installs the callback fired once when the stream reaches
// its terminal state.
func (s *Stream) SetCloseHandler(h func()) {
	mu := s.conn.StateLock()
	mu.Lock()
	s.closeHandler = h
	mu.Unlock()
}

// --- Inbound signals (called from the connection) -------------------------

// OnData ingests an inbound data chunk. The chunk is queued verbatim; no
// size limit is imposed at this layer, the connection-level window already
// bounded how much could arrive.
func (s *Stream) OnData(chunk []byte) {
	ok := s.loop.Dispatch(func() {
		if s.isClosed() {
			s.dropLateSignal("data")
			return
		}
		if !s.pending.Push(chunk) {
			// Producer-side hint only; the transport feeding this stream
			// should throttle its reads.
			s.log.Debug("inbound queue at high watermark", logger.LogFields{
				"stream_id": s.ID(),
				"pending":   s.pending.Pending(),
			})
		}
	})
	if !ok {
		s.dropLateSignal("data")
	}
}

// OnEnd ingests the peer's end-of-stream marker with optional trailers
// (nil means none). No data signal may follow.
func (s *Stream) OnEnd(trailers Headers) {
	if trailers == nil {
		trailers = emptyTrailers
	}
	mu := s.conn.StateLock()
	mu.Lock()
	if s.trailers == nil {
		s.trailers = trailers
	}
	mu.Unlock()

	ok := s.loop.Dispatch(func() {
		if s.isClosed() {
			s.dropLateSignal("end")
			return
		}
		s.remoteEnded()
		s.pending.PushEnd()
	})
	if !ok {
		s.dropLateSignal("end")
	}
}

// OnReset ingests a remote reset. Terminal; the reset callback fires
// exactly once and the stream transitions to closed.
func (s *Stream) OnReset(code ErrorCode) {
	ok := s.loop.Dispatch(func() {
		mu := s.conn.StateLock()
		mu.Lock()
		if s.state == StreamStateClosed {
			mu.Unlock()
			s.dropLateSignal("reset")
			return
		}
		s.state = StreamStateClosed
		h := s.resetHandler
		mu.Unlock()

		s.metrics.streamReset()
		s.log.Debug("stream reset by peer", logger.LogFields{
			"stream_id": s.ID(), "code": code.String(),
		})
		if h != nil {
			h(code)
		}
	})
	if !ok {
		s.dropLateSignal("reset")
	}
}

// OnPriorityChange ingests a peer priority update. Edge-triggered: an
// unchanged value is a silent no-op, guarding against duplicate PRIORITY
// frames.
func (s *Stream) OnPriorityChange(p StreamPriority) {
	ok := s.loop.Dispatch(func() {
		if s.isClosed() {
			s.dropLateSignal("priority")
			return
		}
		mu := s.conn.StateLock()
		mu.Lock()
		if s.priority.Equal(p) {
			mu.Unlock()
			return
		}
		s.priority = p
		h := s.priorityHandler
		mu.Unlock()
		if h != nil {
			h(p)
		}
	})
	if !ok {
		s.dropLateSignal("priority")
	}
}

// OnExtensionFrame ingests an unknown/extension frame. Passed through
// verbatim; not queued, not flow-controlled.
func (s *Stream) OnExtensionFrame(f ExtensionFrame) {
	ok := s.loop.Dispatch(func() {
		if s.isClosed() {
			s.dropLateSignal("extension frame")
			return
		}
		mu := s.conn.StateLock()
		mu.Lock()
		h := s.frameHandler
		mu.Unlock()
		if h != nil {
			h(f)
		}
	})
	if !ok {
		s.dropLateSignal("extension frame")
	}
}

// OnWritabilityChanged toggles the writable flag. The toggle happens
// immediately under the connection lock — outbound callers must observe the
// current value before the interest callback has run — and is edge
// triggered: two consecutive toggles restore the original state.
func (s *Stream) OnWritabilityChanged() {
	mu := s.conn.StateLock()
	mu.Lock()
	s.writable = !s.writable
	mu.Unlock()

	s.loop.Dispatch(func() {
		mu.Lock()
		h := s.interestHandler
		mu.Unlock()
		if h != nil {
			h()
		}
	})
}

// OnError routes a local fault (an error raised while the connection
// processed this stream's traffic) to the exception handler. The stream is
// not closed.
func (s *Stream) OnError(err error) {
	if !s.loop.Dispatch(func() { s.handleException(err) }) {
		s.log.Warn("error signal after stream close", logger.LogFields{
			"stream_id": s.ID(), "error": err.Error(),
		})
	}
}

// OnClose is the connection's teardown signal. It reports the final
// bytesWritten total upstream, fires the close callback, and stops the
// stream's execution context. Idempotent.
func (s *Stream) OnClose() {
	mu := s.conn.StateLock()
	mu.Lock()
	if s.closeReported {
		mu.Unlock()
		return
	}
	s.closeReported = true
	s.state = StreamStateClosed
	written := s.bytesWritten
	mu.Unlock()

	s.conn.ReportBytesWritten(written)
	s.metrics.streamClosed()
	s.log.Debug("stream closed", logger.LogFields{
		"stream_id": s.ID(), "bytes_written": written,
	})

	s.loop.Dispatch(func() {
		mu.Lock()
		h := s.closeHandler
		mu.Unlock()
		if h != nil {
			h()
		}
		s.loop.Stop()
	})
}

// --- Outbound operations (invoke on the dispatch context) -----------------

// WriteHeaders sends a header block tagged with the stream's current
// priority. If endStream is set the local direction half-closes. cb, if
// non-nil, fires on the dispatch context when the connection confirms the
// write.
func (s *Stream) WriteHeaders(headers Headers, endStream bool, cb func(error)) error {
	mu := s.conn.StateLock()
	mu.Lock()
	if err := s.checkSendableLocked("headers"); err != nil {
		mu.Unlock()
		return err
	}
	prio := s.priority
	mu.Unlock()

	if err := s.conn.WriteHeaders(s, headers, endStream, prio, cb); err != nil {
		return err
	}
	if endStream {
		s.localEnded()
	}
	return nil
}

// WriteData sends a data chunk. bytesWritten is incremented before
// delegating, so the counter reflects attempted writes whether or not the
// connection has confirmed them yet.
func (s *Stream) WriteData(chunk []byte, endStream bool, cb func(error)) error {
	mu := s.conn.StateLock()
	mu.Lock()
	if err := s.checkSendableLocked("data"); err != nil {
		mu.Unlock()
		return err
	}
	s.bytesWritten += int64(len(chunk))
	mu.Unlock()
	s.metrics.addBytesWritten(len(chunk))

	if err := s.conn.WriteData(s, chunk, endStream, cb); err != nil {
		return err
	}
	if endStream {
		s.localEnded()
	}
	return nil
}

// WriteReset immediately requests stream termination with the given error
// code. No further outbound writes are meaningful afterwards; issuing one
// is a caller error and fails fast.
func (s *Stream) WriteReset(code ErrorCode) error {
	mu := s.conn.StateLock()
	mu.Lock()
	if s.state == StreamStateCreated {
		mu.Unlock()
		return NewStreamError(0, ErrCodeInternalError, "reset on unbound stream")
	}
	if s.state == StreamStateClosed {
		id := s.id
		mu.Unlock()
		return NewStreamError(id, ErrCodeStreamClosed, "reset on closed stream")
	}
	s.state = StreamStateClosed
	id := s.id
	mu.Unlock()

	s.metrics.streamReset()
	s.log.Debug("stream reset locally", logger.LogFields{
		"stream_id": id, "code": code.String(),
	})
	return s.conn.WriteReset(id, code)
}

// WriteExtensionFrame sends a raw frame, bypassing flow control.
func (s *Stream) WriteExtensionFrame(typ, flags uint8, payload []byte) error {
	mu := s.conn.StateLock()
	mu.Lock()
	if s.state == StreamStateCreated {
		mu.Unlock()
		return NewStreamError(0, ErrCodeInternalError, "extension frame on unbound stream")
	}
	if s.state == StreamStateClosed {
		id := s.id
		mu.Unlock()
		return NewStreamError(id, ErrCodeStreamClosed, "extension frame on closed stream")
	}
	mu.Unlock()

	return s.conn.WriteExtensionFrame(s, ExtensionFrame{Type: typ, Flags: flags, Payload: payload})
}

// UpdatePriority changes the stream's priority. Edge-triggered: an
// unchanged value does nothing. On an unbound stream the value is recorded
// and the wire update is deferred until Bind assigns a transport id.
func (s *Stream) UpdatePriority(p StreamPriority) error {
	mu := s.conn.StateLock()
	mu.Lock()
	if s.priority.Equal(p) {
		mu.Unlock()
		return nil
	}
	s.priority = p
	if s.id == 0 {
		s.priorityPending = true
		mu.Unlock()
		return nil
	}
	mu.Unlock()

	return s.conn.WritePriority(s, p)
}

// Flush requests the connection flush any buffered frames for this stream.
// Fire and forget.
func (s *Stream) Flush() {
	mu := s.conn.StateLock()
	mu.Lock()
	bound := s.id != 0
	mu.Unlock()
	if bound {
		s.conn.Flush(s)
	}
}

// --- internal -------------------------------------------------------------

// checkSendableLocked validates that an outbound write is legal in the
// current state. Caller holds the connection state lock.
func (s *Stream) checkSendableLocked(what string) error {
	switch s.state {
	case StreamStateCreated:
		return NewStreamError(0, ErrCodeInternalError,
			fmt.Sprintf("write %s on unbound stream", what))
	case StreamStateClosed:
		return NewStreamError(s.id, ErrCodeStreamClosed,
			fmt.Sprintf("write %s on closed stream", what))
	case StreamStateHalfClosedLocal:
		return NewStreamError(s.id, ErrCodeStreamClosed,
			fmt.Sprintf("write %s after local end of stream", what))
	}
	return nil
}

// localEnded records that this endpoint sent its end-of-stream marker.
func (s *Stream) localEnded() {
	mu := s.conn.StateLock()
	mu.Lock()
	switch s.state {
	case StreamStateOpen:
		s.state = StreamStateHalfClosedLocal
	case StreamStateHalfClosedRemote:
		s.state = StreamStateClosed
	}
	mu.Unlock()
}

// remoteEnded records that the peer sent its end-of-stream marker.
func (s *Stream) remoteEnded() {
	mu := s.conn.StateLock()
	mu.Lock()
	switch s.state {
	case StreamStateOpen:
		s.state = StreamStateHalfClosedRemote
	case StreamStateHalfClosedLocal:
		s.state = StreamStateClosed
	}
	mu.Unlock()
}

func (s *Stream) isClosed() bool {
	mu := s.conn.StateLock()
	mu.Lock()
	defer mu.Unlock()
	return s.state == StreamStateClosed
}

// dropLateSignal logs an inbound signal discarded because the stream
// already closed. Legal race: a local reset can cross in-flight remote
// frames, so this is noise, not a protocol violation.
func (s *Stream) dropLateSignal(kind string) {
	s.log.Debug("dropping late inbound signal", logger.LogFields{
		"stream_id": s.ID(), "signal": kind,
	})
}

func (s *Stream) handleException(err error) {
	mu := s.conn.StateLock()
	mu.Lock()
	h := s.exceptionHandler
	mu.Unlock()
	if h != nil {
		h(err)
		return
	}
	s.log.Error("unhandled stream exception", logger.LogFields{
		"stream_id": s.ID(), "error": err.Error(),
	})
}
