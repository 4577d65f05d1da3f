package mocks

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

const (
	MockedAudioBlockSize  = 1024
	MockedAudioSampleRate = 44100
	MockedDuration        = 10 * time.Second
	MockedFrameRate       = 30
)

// MockedAudioTrack generates blocks of 1024 mono input samples at 44.1kHz, output as stereo. Pitch and speed
// shrink or grow output blocks the way a time stretch would.
type MockedAudioTrack struct {
	Closed   int
	Duration time.Duration
	m        sync.Mutex
	Pitch    float64
	position int64 // In blocks
	Seeks    []time.Duration
	Speed    float64
}

var _ astiplayer.AudioTrack = (*MockedAudioTrack)(nil)

func NewMockedAudioTrack() *MockedAudioTrack {
	return &MockedAudioTrack{
		Duration: MockedDuration,
		Pitch:    1,
		Speed:    1,
	}
}

func (t *MockedAudioTrack) Close() error {
	t.m.Lock()
	defer t.m.Unlock()
	t.Closed++
	return nil
}

func (t *MockedAudioTrack) Info() astiplayer.AudioStreamInfo {
	return astiplayer.AudioStreamInfo{
		ChannelLayout: "mono",
		Channels:      1,
		CodecName:     "pcm_f32le",
		Duration:      t.Duration,
		FrameSize:     MockedAudioBlockSize,
		SampleCount:   int64(math.Round(t.Duration.Seconds() * MockedAudioSampleRate)),
		SampleFormat:  "flt",
		SampleRate:    MockedAudioSampleRate,
		TimeBase:      astiplayer.Rational{Num: 1, Den: MockedAudioSampleRate},
	}
}

func blockTime(idx int64) time.Duration {
	return time.Duration(idx * MockedAudioBlockSize * int64(time.Second) / MockedAudioSampleRate)
}

func (t *MockedAudioTrack) NextFrame() (astiplayer.AudioFrame, bool) {
	t.m.Lock()
	defer t.m.Unlock()

	// End of stream
	bt := blockTime(t.position)
	if bt >= t.Duration {
		return astiplayer.AudioFrame{}, false
	}

	// Create frame
	n := int(math.Round(MockedAudioBlockSize / (t.Pitch * t.Speed)))
	f := astiplayer.AudioFrame{
		Pitch:      t.Pitch,
		SampleRate: MockedAudioSampleRate,
		Samples:    make([]float32, 2*n),
		Speed:      t.Speed,
		Time:       bt,
	}
	t.position++
	return f, true
}

// Lands on the first block starting at or after t
func (t *MockedAudioTrack) Seek(d time.Duration) bool {
	t.m.Lock()
	defer t.m.Unlock()
	t.Seeks = append(t.Seeks, d)
	if d < 0 {
		d = 0
	}
	t.position = int64(math.Ceil(float64(d) * MockedAudioSampleRate / float64(time.Second) / MockedAudioBlockSize))
	return true
}

func (t *MockedAudioTrack) SetPitch(p float64) {
	t.m.Lock()
	defer t.m.Unlock()
	t.Pitch = p
}

func (t *MockedAudioTrack) SetSpeed(s float64) {
	t.m.Lock()
	defer t.m.Unlock()
	t.Speed = s
}

// MockedVideoTrack generates 4x2 frames at 30fps
type MockedVideoTrack struct {
	Closed int
	// When true, async seeks wait for CompleteSeek
	DeferSeeks bool
	Duration   time.Duration
	h          func(f astiplayer.VideoFrame)
	m          sync.Mutex
	pending    *astiplayer.SeekTask
	position   int64 // In frames
	Seeks      []time.Duration
	Thumbnail  bool
}

var _ astiplayer.VideoTrack = (*MockedVideoTrack)(nil)

func NewMockedVideoTrack() *MockedVideoTrack {
	return &MockedVideoTrack{Duration: MockedDuration}
}

func (t *MockedVideoTrack) Close() error {
	t.m.Lock()
	defer t.m.Unlock()
	t.Closed++
	return nil
}

func (t *MockedVideoTrack) Info() astiplayer.VideoStreamInfo {
	return astiplayer.VideoStreamInfo{
		CodecName:   "rawvideo",
		Duration:    t.Duration,
		FrameCount:  int64(math.Round(t.Duration.Seconds() * MockedFrameRate)),
		FrameRate:   MockedFrameRate,
		Height:      2,
		PixelFormat: "yuv420p",
		Thumbnail:   t.Thumbnail,
		TimeBase:    astiplayer.Rational{Num: 1, Den: MockedFrameRate},
		Width:       4,
	}
}

func MockedVideoFrameTime(idx int64) time.Duration {
	return time.Duration(idx * int64(time.Second) / MockedFrameRate)
}

func mockedVideoFrame(idx int64) astiplayer.VideoFrame {
	return astiplayer.VideoFrame{
		Height:  2,
		Planes:  [3][]byte{make([]byte, 8), make([]byte, 2), make([]byte, 2)},
		Strides: [3]int{4, 2, 2},
		Time:    MockedVideoFrameTime(idx),
		Width:   4,
	}
}

func (t *MockedVideoTrack) NextFrame() (astiplayer.VideoFrame, bool) {
	t.m.Lock()
	defer t.m.Unlock()
	return t.nextFrame()
}

func (t *MockedVideoTrack) nextFrame() (astiplayer.VideoFrame, bool) {
	if MockedVideoFrameTime(t.position) >= t.Duration {
		return astiplayer.VideoFrame{}, false
	}
	f := mockedVideoFrame(t.position)
	t.position++
	return f, true
}

func (t *MockedVideoTrack) seek(d time.Duration) (f astiplayer.VideoFrame, ok bool) {
	t.Seeks = append(t.Seeks, d)
	if t.Thumbnail {
		return
	}
	if d < 0 {
		d = 0
	}
	t.position = int64(math.Ceil(float64(d) * MockedFrameRate / float64(time.Second)))
	return t.nextFrame()
}

func (t *MockedVideoTrack) Seek(d time.Duration) bool {
	t.m.Lock()
	f, ok := t.seek(d)
	h := t.h
	t.m.Unlock()
	if ok && h != nil {
		h(f)
	}
	return ok
}

func (t *MockedVideoTrack) SeekAsync(d time.Duration) *astiplayer.SeekTask {
	// Cancel previous task
	t.m.Lock()
	if t.pending != nil {
		t.pending.Cancel()
		t.pending = nil
	}
	st := astiplayer.NewSeekTask(context.Background(), d)
	if t.DeferSeeks {
		t.pending = st
		t.m.Unlock()
		return st
	}
	t.m.Unlock()

	// Seek
	st.Complete(t.Seek(d))
	return st
}

// CompleteSeek runs the deferred async seek, if any
func (t *MockedVideoTrack) CompleteSeek() {
	t.m.Lock()
	st := t.pending
	t.pending = nil
	t.m.Unlock()
	if st == nil {
		return
	}
	st.Complete(t.Seek(st.Time()))
}

func (t *MockedVideoTrack) SetSeekCompletedHandler(h func(f astiplayer.VideoFrame)) {
	t.m.Lock()
	defer t.m.Unlock()
	t.h = h
}
