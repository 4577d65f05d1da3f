package astiavplayer

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/asticode/go-astiav"
)

const (
	byteSourceMaxBufferSize = 64 * 1024
	byteSourceMinBufferSize = 4096
	// Asks for the stream size without moving the cursor
	seekWhenceSize = 0x10000
	// Hint that may be OR-ed with the whence
	seekWhenceForce = 0x20000
)

// byteSource exposes an in-memory buffer to the demuxer
type byteSource struct {
	b      []byte
	closed bool
	m      sync.Mutex // Locks closed and pos
	pos    int64
}

func newByteSource(b []byte) (*byteSource, error) {
	if len(b) == 0 {
		return nil, ErrEmptyBuffer
	}
	return &byteSource{b: b}, nil
}

func (s *byteSource) bufferSize() int {
	size := len(s.b) / 10
	if size < byteSourceMinBufferSize {
		size = byteSourceMinBufferSize
	}
	if size > byteSourceMaxBufferSize {
		size = byteSourceMaxBufferSize
	}
	return size
}

func (s *byteSource) Read(p []byte) (int, error) {
	// Lock
	s.m.Lock()
	defer s.m.Unlock()

	// Nothing to read
	if s.closed || len(p) == 0 || s.pos >= int64(len(s.b)) {
		return 0, io.EOF
	}

	// Copy
	n := copy(p, s.b[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *byteSource) Seek(offset int64, whence int) (int64, error) {
	// Lock
	s.m.Lock()
	defer s.m.Unlock()

	// Closed
	if s.closed {
		return 0, errors.New("astiavplayer: byte source is closed")
	}

	// Size
	if whence&seekWhenceSize > 0 {
		return int64(len(s.b)), nil
	}

	// Get position
	var pos int64
	switch whence &^ seekWhenceForce {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = int64(len(s.b)) + offset
	default:
		return 0, fmt.Errorf("astiavplayer: invalid whence %d", whence)
	}

	// Clamp
	if pos < 0 {
		pos = 0
	} else if pos > int64(len(s.b)) {
		pos = int64(len(s.b))
	}
	s.pos = pos
	return pos, nil
}

func (s *byteSource) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	s.closed = true
	return nil
}

// libav expects its own eof error
func (s *byteSource) readFunc(b []byte) (int, error) {
	n, err := s.Read(b)
	if errors.Is(err, io.EOF) {
		return n, astiav.ErrEof
	}
	return n, err
}

func (s *byteSource) newIOContext() (*astiav.IOContext, error) {
	return astiav.AllocIOContext(s.bufferSize(), false, s.readFunc, s.Seek, nil)
}
