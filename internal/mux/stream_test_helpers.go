package mux

import (
	"testing"
	"time"

	"golang.org/x/net/http2/hpack"
)

// newTestStream opens a bound stream on conn and tears it (and its dispatch
// goroutine) down at test cleanup.
func newTestStream(t *testing.T, conn *LoopbackConnection, opts ...Option) *Stream {
	t.Helper()
	s, err := conn.OpenStream(opts...)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	t.Cleanup(func() {
		s.OnClose()
		s.loop.Wait()
	})
	return s
}

// newUnboundTestStream creates a stream in the created state (no transport
// id) with the same cleanup guarantees.
func newUnboundTestStream(t *testing.T, conn *LoopbackConnection, opts ...Option) *Stream {
	t.Helper()
	s := NewStream(conn, nil, opts...)
	t.Cleanup(func() {
		s.OnClose()
		s.loop.Wait()
	})
	return s
}

// waitSignal fails the test if ch does not receive within two seconds.
func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// settle runs a no-op job on the stream's dispatch context and waits for
// it, guaranteeing every previously dispatched job has finished.
func settle(t *testing.T, s *Stream) {
	t.Helper()
	done := make(chan struct{})
	if !s.Dispatch(func() { close(done) }) {
		return // context already stopped; nothing left to wait for
	}
	waitSignal(t, done, "dispatch context to settle")
}

// makeHeaders builds an ordered header list from name/value pairs.
func makeHeaders(kv ...string) Headers {
	if len(kv)%2 != 0 {
		panic("makeHeaders: odd number of kv args")
	}
	hfs := make(Headers, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		hfs = append(hfs, hpack.HeaderField{Name: kv[i], Value: kv[i+1]})
	}
	return hfs
}

// framesOfKind filters the loopback connection's record.
func framesOfKind(frames []RecordedFrame, kind FrameKind) []RecordedFrame {
	var out []RecordedFrame
	for _, f := range frames {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
