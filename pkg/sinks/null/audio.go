package nullsink

import (
	"math"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

const defaultAudioLatency = 200 * time.Millisecond

var _ astiplayer.AudioSink = (*AudioSink)(nil)

// AudioSink emulates an audio device: pushed samples are consumed in real time at the sample rate and then
// dropped
type AudioSink struct {
	buffered   int // Stereo frames
	capacity   int
	last       time.Time
	m          sync.Mutex // Locks everything below
	peak       float64
	played     int
	sampleRate int
	volume     float64
}

type AudioSinkOptions struct {
	// Buffer duration. Defaults to 200ms.
	Latency    time.Duration
	SampleRate int
}

func NewAudioSink(o AudioSinkOptions) *AudioSink {
	if o.Latency <= 0 {
		o.Latency = defaultAudioLatency
	}
	return &AudioSink{
		capacity:   int(math.Ceil(o.Latency.Seconds() * float64(o.SampleRate))),
		sampleRate: o.SampleRate,
		volume:     1,
	}
}

// Consumes what has been played since the last call
func (s *AudioSink) playUnlocked() {
	// Get now
	n := astikit.Now()

	// First call
	if s.last.IsZero() || s.buffered == 0 {
		s.last = n
		return
	}

	// Get number of frames played
	played := int(n.Sub(s.last).Seconds() * float64(s.sampleRate))
	if played <= 0 {
		return
	}

	// Update
	if played >= s.buffered {
		s.played += s.buffered
		s.buffered = 0
		s.last = n
		return
	}
	s.buffered -= played
	s.played += played
	s.last = s.last.Add(time.Duration(int64(played) * int64(time.Second) / int64(s.sampleRate)))
}

func (s *AudioSink) Backlog() time.Duration {
	s.m.Lock()
	defer s.m.Unlock()
	s.playUnlocked()
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(s.buffered) * int64(time.Second) / int64(s.sampleRate))
}

func (s *AudioSink) Clear() {
	s.m.Lock()
	defer s.m.Unlock()
	s.buffered = 0
	s.last = time.Time{}
}

func (s *AudioSink) FramesAvailable() int {
	s.m.Lock()
	defer s.m.Unlock()
	s.playUnlocked()
	return s.capacity - s.buffered
}

func (s *AudioSink) Push(samples []float32) int {
	// Lock
	s.m.Lock()
	defer s.m.Unlock()

	// Play
	s.playUnlocked()

	// Get number of frames
	n := len(samples) / 2
	if a := s.capacity - s.buffered; n > a {
		n = a
	}
	if n <= 0 {
		return 0
	}

	// Update peak
	for _, v := range samples[:n*2] {
		if a := math.Abs(float64(v)) * s.volume; a > s.peak {
			s.peak = a
		}
	}

	// Nothing was buffered, playing starts now
	if s.buffered == 0 {
		s.last = astikit.Now()
	}
	s.buffered += n
	return n
}

func (s *AudioSink) SetVolume(v float64) {
	s.m.Lock()
	defer s.m.Unlock()
	s.volume = v
}

func (s *AudioSink) Volume() float64 {
	s.m.Lock()
	defer s.m.Unlock()
	return s.volume
}

// Peak returns the highest absolute sample value pushed since the last call, volume applied
func (s *AudioSink) Peak() float64 {
	s.m.Lock()
	defer s.m.Unlock()
	p := s.peak
	s.peak = 0
	return p
}

// Number of stereo frames played so far
func (s *AudioSink) Played() int {
	s.m.Lock()
	defer s.m.Unlock()
	s.playUnlocked()
	return s.played
}
