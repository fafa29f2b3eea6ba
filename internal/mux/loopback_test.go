package mux

import (
	"bytes"
	"fmt"
	"testing"
)

func TestLoopbackConnectionAssignsSequentialIDs(t *testing.T) {
	conn := NewLoopbackConnection(nil)
	for want := uint32(1); want <= 3; want++ {
		s := newTestStream(t, conn)
		if s.ID() != want {
			t.Fatalf("stream id = %d, want %d", s.ID(), want)
		}
		got, ok := conn.Stream(want)
		if !ok || got != s {
			t.Fatalf("registry lookup for id %d failed", want)
		}
	}
}

func TestLoopbackConnectionEchoRoundTrip(t *testing.T) {
	conn := NewLoopbackConnection(nil)
	s := newTestStream(t, conn)

	// Echo every inbound chunk back out, end with the end signal.
	s.SetDataHandler(func(chunk []byte) {
		if err := s.WriteData(chunk, false, nil); err != nil {
			t.Errorf("echo write failed: %v", err)
		}
	})
	done := make(chan struct{})
	s.SetEndHandler(func(Headers) {
		if err := s.WriteData(nil, true, nil); err != nil {
			t.Errorf("end write failed: %v", err)
		}
		close(done)
	})

	var sent []byte
	for i := 0; i < 5; i++ {
		chunk := []byte(fmt.Sprintf("chunk %d payload", i))
		sent = append(sent, chunk...)
		s.OnData(chunk)
	}
	s.OnEnd(nil)
	waitSignal(t, done, "echo to finish")
	settle(t, s)

	var echoed []byte
	frames := framesOfKind(conn.Frames(), FrameKindData)
	for _, f := range frames {
		echoed = append(echoed, f.Data...)
	}
	if !bytes.Equal(echoed, sent) {
		t.Fatalf("echoed %d bytes, sent %d bytes", len(echoed), len(sent))
	}
	if !frames[len(frames)-1].EndStream {
		t.Errorf("echo did not end the stream")
	}

	// Both directions account the same byte total.
	if s.BytesRead() != s.BytesWritten() {
		t.Errorf("read %d bytes but wrote %d", s.BytesRead(), s.BytesWritten())
	}
	if conn.CreditsConsumed() != int64(len(sent)) {
		t.Errorf("credits consumed = %d, want %d", conn.CreditsConsumed(), len(sent))
	}
	if conn.BytesReadReported() != int64(len(sent)) {
		t.Errorf("bytes-read reported = %d, want %d", conn.BytesReadReported(), len(sent))
	}
}

func TestLoopbackConnectionCloseStream(t *testing.T) {
	conn := NewLoopbackConnection(nil)
	s := newTestStream(t, conn)

	closed := make(chan struct{})
	s.SetCloseHandler(func() { close(closed) })

	conn.CloseStream(s.ID())
	waitSignal(t, closed, "close handler")

	if _, ok := conn.Stream(s.ID()); ok {
		t.Errorf("closed stream still registered")
	}
	if s.State() != StreamStateClosed {
		t.Errorf("state after connection close = %s", s.State())
	}
}

func TestLoopbackConnectionCloseAll(t *testing.T) {
	conn := NewLoopbackConnection(nil)

	var streams []*Stream
	for i := 0; i < 3; i++ {
		streams = append(streams, newTestStream(t, conn))
	}
	conn.CloseAll()

	for _, s := range streams {
		s.loop.Wait()
		if s.State() != StreamStateClosed {
			t.Errorf("stream %d not closed after CloseAll", s.ID())
		}
	}
	if _, ok := conn.Stream(1); ok {
		t.Errorf("registry not cleared by CloseAll")
	}
}

func TestLoopbackConnectionWritableBaseline(t *testing.T) {
	conn := NewLoopbackConnection(nil)
	conn.SetWritable(false)

	s := newTestStream(t, conn)
	if !s.IsNotWritable() {
		t.Errorf("stream bound on a non-writable connection reports writable")
	}
}
