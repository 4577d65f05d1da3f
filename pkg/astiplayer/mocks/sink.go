package mocks

import (
	"sync"
	"time"

	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

// MockedAudioSink buffers up to Capacity stereo frames, Play consumes them
type MockedAudioSink struct {
	buffered   int
	Capacity   int
	Clears     int
	m          sync.Mutex
	Pushed     int
	SampleRate int
	Volume     float64
}

var _ astiplayer.AudioSink = (*MockedAudioSink)(nil)

func NewMockedAudioSink() *MockedAudioSink {
	return &MockedAudioSink{
		Capacity:   4096,
		SampleRate: MockedAudioSampleRate,
		Volume:     1,
	}
}

func (s *MockedAudioSink) Backlog() time.Duration {
	s.m.Lock()
	defer s.m.Unlock()
	return time.Duration(int64(s.buffered) * int64(time.Second) / int64(s.SampleRate))
}

func (s *MockedAudioSink) Buffered() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.buffered
}

func (s *MockedAudioSink) Clear() {
	s.m.Lock()
	defer s.m.Unlock()
	s.buffered = 0
	s.Clears++
}

func (s *MockedAudioSink) FramesAvailable() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.Capacity - s.buffered
}

func (s *MockedAudioSink) Push(samples []float32) int {
	s.m.Lock()
	defer s.m.Unlock()
	n := len(samples) / 2
	if a := s.Capacity - s.buffered; n > a {
		n = a
	}
	s.buffered += n
	s.Pushed += n
	return n
}

// Play consumes the audio that would have been played during d
func (s *MockedAudioSink) Play(d time.Duration) {
	s.m.Lock()
	defer s.m.Unlock()
	n := int(int64(d) * int64(s.SampleRate) / int64(time.Second))
	if n > s.buffered {
		n = s.buffered
	}
	s.buffered -= n
}

func (s *MockedAudioSink) SetVolume(v float64) {
	s.m.Lock()
	defer s.m.Unlock()
	s.Volume = v
}

type MockedVideoSink struct {
	Frames []astiplayer.VideoFrame
	m      sync.Mutex
}

var _ astiplayer.VideoSink = (*MockedVideoSink)(nil)

func NewMockedVideoSink() *MockedVideoSink {
	return &MockedVideoSink{}
}

func (s *MockedVideoSink) Present(f astiplayer.VideoFrame) {
	s.m.Lock()
	defer s.m.Unlock()
	s.Frames = append(s.Frames, f)
}

func (s *MockedVideoSink) Times() (ts []time.Duration) {
	s.m.Lock()
	defer s.m.Unlock()
	for _, f := range s.Frames {
		ts = append(ts, f.Time)
	}
	return
}

func (s *MockedVideoSink) Reset() {
	s.m.Lock()
	defer s.m.Unlock()
	s.Frames = nil
}
