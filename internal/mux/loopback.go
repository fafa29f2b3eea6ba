package mux

import (
	"strconv"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	"example.com/muxstream/v2/internal/logger"
)

// FrameKind tags a frame recorded by the loopback connection.
type FrameKind uint8

const (
	FrameKindHeaders FrameKind = iota
	FrameKindData
	FrameKindReset
	FrameKindPriority
	FrameKindExtension
	FrameKindFlush
)

// RecordedFrame is one outbound operation as observed at the Connection
// boundary.
type RecordedFrame struct {
	StreamID  uint32
	Kind      FrameKind
	Headers   Headers
	Data      []byte
	EndStream bool
	Code      ErrorCode
	Priority  StreamPriority
	Extension ExtensionFrame
}

// streamKey adapts a transport id to the concurrent map's Stringer
// constraint.
type streamKey uint32

func (k streamKey) String() string {
	return strconv.FormatUint(uint64(k), 10)
}

// LoopbackConnection is an in-process Connection: it keeps the stream
// registry, records every outbound frame, confirms writes immediately on
// the stream's dispatch context, and tallies the credit and byte reports.
// It backs the demo binary and the engine tests; nothing touches a socket.
type LoopbackConnection struct {
	log *logger.Logger

	stateMu sync.Mutex // the lock shared with streams (StateLock)

	streams cmap.ConcurrentMap[streamKey, *Stream]
	nextID  atomic.Uint32

	writable atomic.Bool

	framesMu sync.Mutex
	frames   []RecordedFrame

	creditsConsumed    atomic.Int64
	bytesReadReported  atomic.Int64
	bytesWriteReported atomic.Int64
}

// NewLoopbackConnection creates an empty loopback connection. Streams start
// writable.
func NewLoopbackConnection(lg *logger.Logger) *LoopbackConnection {
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	c := &LoopbackConnection{
		log:     lg,
		streams: cmap.NewStringer[streamKey, *Stream](),
	}
	c.writable.Store(true)
	return c
}

// OpenStream creates a stream on this connection and binds it to the next
// free id.
func (c *LoopbackConnection) OpenStream(opts ...Option) (*Stream, error) {
	s := NewStream(c, c.log, opts...)
	id := c.nextID.Add(1)
	if err := s.Bind(id); err != nil {
		return nil, err
	}
	c.streams.Set(streamKey(id), s)
	return s, nil
}

// Stream returns the registered stream for id, if any.
func (c *LoopbackConnection) Stream(id uint32) (*Stream, bool) {
	return c.streams.Get(streamKey(id))
}

// CloseStream tears a stream down and removes it from the registry.
func (c *LoopbackConnection) CloseStream(id uint32) {
	if s, ok := c.streams.Get(streamKey(id)); ok {
		c.streams.Remove(streamKey(id))
		s.OnClose()
	}
}

// CloseAll tears down every registered stream, as on connection shutdown.
func (c *LoopbackConnection) CloseAll() {
	for item := range c.streams.IterBuffered() {
		item.Val.OnClose()
	}
	c.streams.Clear()
}

// SetWritable flips the baseline writability reported at bind time. It does
// not toggle already-bound streams; use Stream.OnWritabilityChanged for
// that.
func (c *LoopbackConnection) SetWritable(w bool) {
	c.writable.Store(w)
}

// Frames returns a copy of every recorded outbound frame, in order.
func (c *LoopbackConnection) Frames() []RecordedFrame {
	c.framesMu.Lock()
	defer c.framesMu.Unlock()
	out := make([]RecordedFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

// CreditsConsumed returns the total bytes returned through ConsumeCredits.
func (c *LoopbackConnection) CreditsConsumed() int64 {
	return c.creditsConsumed.Load()
}

// BytesReadReported returns the total reported via ReportBytesRead.
func (c *LoopbackConnection) BytesReadReported() int64 {
	return c.bytesReadReported.Load()
}

// BytesWrittenReported returns the total reported via ReportBytesWritten.
func (c *LoopbackConnection) BytesWrittenReported() int64 {
	return c.bytesWriteReported.Load()
}

func (c *LoopbackConnection) record(f RecordedFrame) {
	c.framesMu.Lock()
	c.frames = append(c.frames, f)
	c.framesMu.Unlock()
}

// confirm runs a completion callback on the stream's dispatch context.
func (c *LoopbackConnection) confirm(s *Stream, cb func(error)) {
	if cb == nil {
		return
	}
	s.Dispatch(func() { cb(nil) })
}

// --- Connection -----------------------------------------------------------

func (c *LoopbackConnection) StateLock() *sync.Mutex {
	return &c.stateMu
}

func (c *LoopbackConnection) StreamWritable(streamID uint32) bool {
	return c.writable.Load()
}

func (c *LoopbackConnection) WriteHeaders(s *Stream, headers Headers, endStream bool, priority StreamPriority, cb func(error)) error {
	c.record(RecordedFrame{
		StreamID:  s.ID(),
		Kind:      FrameKindHeaders,
		Headers:   headers,
		EndStream: endStream,
		Priority:  priority,
	})
	c.confirm(s, cb)
	return nil
}

func (c *LoopbackConnection) WriteData(s *Stream, chunk []byte, endStream bool, cb func(error)) error {
	data := make([]byte, len(chunk))
	copy(data, chunk)
	c.record(RecordedFrame{
		StreamID:  s.ID(),
		Kind:      FrameKindData,
		Data:      data,
		EndStream: endStream,
	})
	c.confirm(s, cb)
	return nil
}

func (c *LoopbackConnection) WriteReset(streamID uint32, code ErrorCode) error {
	c.record(RecordedFrame{
		StreamID: streamID,
		Kind:     FrameKindReset,
		Code:     code,
	})
	// A locally reset stream is torn down by its connection.
	c.CloseStream(streamID)
	return nil
}

func (c *LoopbackConnection) WritePriority(s *Stream, priority StreamPriority) error {
	c.record(RecordedFrame{
		StreamID: s.ID(),
		Kind:     FrameKindPriority,
		Priority: priority,
	})
	return nil
}

func (c *LoopbackConnection) WriteExtensionFrame(s *Stream, frame ExtensionFrame) error {
	c.record(RecordedFrame{
		StreamID:  s.ID(),
		Kind:      FrameKindExtension,
		Extension: frame,
	})
	return nil
}

func (c *LoopbackConnection) Flush(s *Stream) {
	c.record(RecordedFrame{StreamID: s.ID(), Kind: FrameKindFlush})
}

func (c *LoopbackConnection) ConsumeCredits(s *Stream, n int) {
	c.creditsConsumed.Add(int64(n))
}

func (c *LoopbackConnection) ReportBytesRead(n int64) {
	c.bytesReadReported.Add(n)
}

func (c *LoopbackConnection) ReportBytesWritten(n int64) {
	c.bytesWriteReported.Add(n)
}
