package mux

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path, data
}

func TestResolveFileClampsToFileSize(t *testing.T) {
	path, _ := writeTempFile(t, 1000)

	region, err := ResolveFile(path, 900, 500)
	if err != nil {
		t.Fatalf("ResolveFile failed: %v", err)
	}
	defer region.Close()

	if region.Len() != 100 {
		t.Errorf("Len = %d, want 100 (clamped to remaining bytes)", region.Len())
	}
	if region.Offset() != 900 {
		t.Errorf("Offset = %d, want 900", region.Offset())
	}
}

func TestResolveFileLengthToEOF(t *testing.T) {
	path, data := writeTempFile(t, 4096)

	region, err := ResolveFile(path, 1024, LengthToEOF)
	if err != nil {
		t.Fatalf("ResolveFile failed: %v", err)
	}
	defer region.Close()

	if region.Len() != 3072 {
		t.Fatalf("Len = %d, want 3072", region.Len())
	}
	got, err := io.ReadAll(region)
	if err != nil {
		t.Fatalf("reading region: %v", err)
	}
	if !bytes.Equal(got, data[1024:]) {
		t.Errorf("region content does not match file tail")
	}
}

func TestResolveFileExactRange(t *testing.T) {
	path, data := writeTempFile(t, 1000)

	region, err := ResolveFile(path, 100, 200)
	if err != nil {
		t.Fatalf("ResolveFile failed: %v", err)
	}
	defer region.Close()

	got, err := io.ReadAll(region)
	if err != nil {
		t.Fatalf("reading region: %v", err)
	}
	if !bytes.Equal(got, data[100:300]) {
		t.Errorf("region content does not match requested range")
	}
}

func TestResolveFileOffsetBeyondEOF(t *testing.T) {
	path, _ := writeTempFile(t, 100)

	region, err := ResolveFile(path, 500, LengthToEOF)
	if err != nil {
		t.Fatalf("ResolveFile failed: %v", err)
	}
	defer region.Close()

	if region.Len() != 0 {
		t.Errorf("Len = %d for offset past EOF, want 0", region.Len())
	}
}

func TestResolveFileErrors(t *testing.T) {
	path, _ := writeTempFile(t, 10)

	t.Run("missing path", func(t *testing.T) {
		region, err := ResolveFile(filepath.Join(t.TempDir(), "nope.bin"), 0, LengthToEOF)
		if region != nil {
			t.Errorf("got a region for a missing file")
		}
		if !errors.Is(err, ErrFileNotFound) {
			t.Errorf("err = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		if _, err := ResolveFile(t.TempDir(), 0, LengthToEOF); err == nil {
			t.Errorf("resolving a directory succeeded")
		}
	})

	t.Run("negative offset", func(t *testing.T) {
		if _, err := ResolveFile(path, -1, LengthToEOF); err == nil {
			t.Errorf("negative offset accepted")
		}
	})

	t.Run("invalid length", func(t *testing.T) {
		if _, err := ResolveFile(path, 0, -7); err == nil {
			t.Errorf("invalid length accepted")
		}
	})
}

func TestFileRegionZeroCopyEligibility(t *testing.T) {
	path, _ := writeTempFile(t, 10)
	region, err := ResolveFile(path, 0, LengthToEOF)
	if err != nil {
		t.Fatalf("ResolveFile failed: %v", err)
	}
	defer region.Close()

	if !region.ZeroCopyEligible(false) {
		t.Errorf("plaintext transport should be eligible for kernel transfer")
	}
	if region.ZeroCopyEligible(true) {
		t.Errorf("encrypted transport must take the user-space read path")
	}
	if region.File() == nil {
		t.Errorf("File() returned nil for an open region")
	}
}

func TestStreamWriteFileChunksAndEnds(t *testing.T) {
	path, data := writeTempFile(t, 10_000)
	conn := NewLoopbackConnection(nil)
	s := newTestStream(t, conn)

	region, err := ResolveFile(path, 0, LengthToEOF)
	if err != nil {
		t.Fatalf("ResolveFile failed: %v", err)
	}

	confirmed := make(chan struct{}, 1)
	runOn(t, s, func() {
		if err := s.WriteFile(region, 4096, func(error) { confirmed <- struct{}{} }); err != nil {
			t.Errorf("WriteFile failed: %v", err)
		}
	})
	settle(t, s)

	frames := framesOfKind(conn.Frames(), FrameKindData)
	if len(frames) != 3 {
		t.Fatalf("recorded %d data frames, want 3 (4096+4096+1808)", len(frames))
	}
	var rebuilt []byte
	for i, f := range frames {
		rebuilt = append(rebuilt, f.Data...)
		if wantEnd := i == len(frames)-1; f.EndStream != wantEnd {
			t.Errorf("frame %d EndStream = %v, want %v", i, f.EndStream, wantEnd)
		}
		if len(f.Data) > 4096 {
			t.Errorf("frame %d exceeds chunk size: %d bytes", i, len(f.Data))
		}
	}
	if !bytes.Equal(rebuilt, data) {
		t.Errorf("reassembled payload does not match file content")
	}
	if got := s.BytesWritten(); got != int64(len(data)) {
		t.Errorf("BytesWritten = %d, want %d", got, len(data))
	}
	waitSignal(t, confirmed, "final write confirmation")

	// WriteFile closed the region.
	if _, err := region.Read(make([]byte, 1)); err == nil {
		t.Errorf("region still readable after transfer")
	}
}

func TestStreamWriteFileEmptyRegionEndsStream(t *testing.T) {
	path, _ := writeTempFile(t, 100)
	conn := NewLoopbackConnection(nil)
	s := newTestStream(t, conn)

	region, err := ResolveFile(path, 100, LengthToEOF)
	if err != nil {
		t.Fatalf("ResolveFile failed: %v", err)
	}

	runOn(t, s, func() {
		if err := s.WriteFile(region, 0, nil); err != nil {
			t.Errorf("WriteFile failed: %v", err)
		}
	})

	frames := framesOfKind(conn.Frames(), FrameKindData)
	if len(frames) != 1 {
		t.Fatalf("recorded %d data frames, want 1", len(frames))
	}
	if !frames[0].EndStream || len(frames[0].Data) != 0 {
		t.Errorf("empty region did not produce a bare end frame: %+v", frames[0])
	}
	if s.State() != StreamStateHalfClosedLocal {
		t.Errorf("state after transfer = %s", s.State())
	}
}
