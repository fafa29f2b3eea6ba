package mux

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// ErrFileNotFound marks a ResolveFile failure caused by a missing path.
// Test with errors.Is.
var ErrFileNotFound = errors.New("file not found")

// LengthToEOF, passed as the length argument of ResolveFile, requests the
// range from offset to the end of the file.
const LengthToEOF = int64(-1)

// FileRegion is a bounded readable handle over exactly one byte range of an
// open file, produced by ResolveFile and consumed by the outbound write
// path (WriteFile) or by a kernel-level transfer where eligible.
type FileRegion struct {
	f      *os.File
	sr     *io.SectionReader
	offset int64
	length int64
}

// Read reads from the bounded range.
func (r *FileRegion) Read(p []byte) (int, error) {
	return r.sr.Read(p)
}

// Len returns the effective transfer length of the region.
func (r *FileRegion) Len() int64 {
	return r.length
}

// Offset returns the starting offset within the file.
func (r *FileRegion) Offset() int64 {
	return r.offset
}

// File exposes the underlying descriptor for kernel-level (sendfile style)
// transfer. Check ZeroCopyEligible first.
func (r *FileRegion) File() *os.File {
	return r.f
}

// ZeroCopyEligible reports whether the region may be handed to a
// kernel-level transfer. Encrypted transports cannot: their payload must
// pass through user space to be sealed, so they take the Read path instead.
func (r *FileRegion) ZeroCopyEligible(encryptedTransport bool) bool {
	return !encryptedTransport
}

// Close releases the underlying file.
func (r *FileRegion) Close() error {
	return r.f.Close()
}

// ResolveFile resolves a filesystem path to a bounded byte range and
// returns a readable handle scoped to exactly that range.
//
// The effective length is min(length, fileSize-offset), clamping against a
// file shorter than requested; LengthToEOF means "to end of file". A
// missing path fails with ErrFileNotFound; any other probe or open failure
// is returned as a wrapped error. Failures never panic and never leak a
// handle.
func ResolveFile(path string, offset, length int64) (*FileRegion, error) {
	if offset < 0 {
		return nil, errors.Errorf("resolve %s: negative offset %d", path, offset)
	}
	if length < 0 && length != LengthToEOF {
		return nil, errors.Errorf("resolve %s: invalid length %d", path, length)
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrFileNotFound, "resolve %s", path)
		}
		return nil, errors.Wrapf(err, "probing %s", path)
	}
	if fi.IsDir() {
		return nil, errors.Errorf("resolve %s: is a directory", path)
	}

	effective := fi.Size() - offset
	if effective < 0 {
		effective = 0
	}
	if length != LengthToEOF && length < effective {
		effective = length
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	return &FileRegion{
		f:      f,
		sr:     io.NewSectionReader(f, offset, effective),
		offset: offset,
		length: effective,
	}, nil
}

// WriteFile streams a resolved region through the ordinary data write path
// in chunks of at most chunkSize bytes, ending the stream with the last
// chunk. The region is closed when the transfer finishes or fails. Must be
// invoked on the dispatch context, like WriteData.
func (s *Stream) WriteFile(region *FileRegion, chunkSize int, cb func(error)) error {
	if chunkSize <= 0 {
		chunkSize = 16 * 1024
	}
	defer region.Close()

	if region.Len() == 0 {
		return s.WriteData(nil, true, cb)
	}

	buf := make([]byte, chunkSize)
	var sent int64
	for {
		n, err := region.Read(buf)
		if n > 0 {
			sent += int64(n)
			last := sent == region.Len()
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			var chunkCB func(error)
			if last {
				chunkCB = cb
			}
			if werr := s.WriteData(chunk, last, chunkCB); werr != nil {
				return werr
			}
			if last {
				return nil
			}
		}
		if err == io.EOF {
			// Region shorter than Len promised; end the stream anyway.
			return s.WriteData(nil, true, cb)
		}
		if err != nil {
			return errors.Wrap(err, "reading file region")
		}
	}
}
