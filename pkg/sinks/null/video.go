package nullsink

import (
	"sync"
	"time"

	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

var _ astiplayer.VideoSink = (*VideoSink)(nil)

// VideoSink counts presented frames and drops them
type VideoSink struct {
	count uint64
	last  time.Duration
	m     sync.Mutex
}

func NewVideoSink() *VideoSink {
	return &VideoSink{}
}

func (s *VideoSink) Present(f astiplayer.VideoFrame) {
	s.m.Lock()
	defer s.m.Unlock()
	s.count++
	s.last = f.Time
}

func (s *VideoSink) Count() uint64 {
	s.m.Lock()
	defer s.m.Unlock()
	return s.count
}

// Time of the last presented frame
func (s *VideoSink) LastTime() time.Duration {
	s.m.Lock()
	defer s.m.Unlock()
	return s.last
}
