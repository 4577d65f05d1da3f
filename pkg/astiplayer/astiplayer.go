package astiplayer

import (
	"math"
	"time"
)

const (
	// Maximum number of decoded blocks waiting to be pushed to the audio sink
	AudioQueueCapacity = 5
	// Clock is snapped to audio when they drift apart by more than this
	DriftThreshold = 50 * time.Millisecond
	// Video is presented this late when audio is active to stay in sync with audio output latency
	VideoDelay = 100 * time.Millisecond
)

const (
	PitchMax = 2.0
	PitchMin = 0.25
	SpeedMax = 2.0
	SpeedMin = 0.25
)

type Rational struct {
	Den int
	Num int
}

func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

type AudioStreamInfo struct {
	BitRate       int64
	ChannelLayout string
	Channels      int
	CodecName     string
	Duration      time.Duration
	FrameSize     int
	SampleCount   int64
	SampleFormat  string
	SampleRate    int
	StartTime     time.Duration
	TimeBase      Rational
}

type VideoStreamInfo struct {
	BitRate     int64
	CodecName   string
	ColorSpace  string
	Duration    time.Duration
	FrameCount  int64
	FrameRate   float64
	Height      int
	PixelFormat string
	StartTime   time.Duration
	// Still image codecs (cover art, pictures) are flagged as thumbnails and are neither paced nor seeked
	Thumbnail bool
	TimeBase  Rational
	Width     int
}

// Frame interval or 0 when the frame rate is unknown
func (i VideoStreamInfo) FrameInterval() time.Duration {
	if i.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / i.FrameRate)
}

type AudioFrame struct {
	Pitch      float64
	SampleRate int
	// Interleaved stereo float samples
	Samples []float32
	Speed   float64
	// Presentation time relative to the stream start
	Time time.Duration
}

// Number of stereo frames
func (f AudioFrame) SampleCount() int {
	return len(f.Samples) / 2
}

// Media time covered by n output samples of this frame
func (f AudioFrame) mediaDuration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(f.SampleRate) * f.Pitch * f.Speed * float64(time.Second))
}

// Planar yuv420p picture
type VideoFrame struct {
	Height int
	// Y, U and V planes
	Planes  [3][]byte
	Strides [3]int
	Time    time.Duration
	Width   int
}

type AudioTrack interface {
	Close() error
	Info() AudioStreamInfo
	NextFrame() (AudioFrame, bool)
	Seek(t time.Duration) bool
	SetPitch(p float64)
	SetSpeed(s float64)
}

type VideoTrack interface {
	Close() error
	Info() VideoStreamInfo
	NextFrame() (VideoFrame, bool)
	Seek(t time.Duration) bool
	SeekAsync(t time.Duration) *SeekTask
	// Handler is called with the first on-target frame once a seek completes
	SetSeekCompletedHandler(h func(f VideoFrame))
}

type AudioSink interface {
	// Duration of audio pushed but not played yet
	Backlog() time.Duration
	Clear()
	// Number of stereo frames the sink can accept right now
	FramesAvailable() int
	// Returns the number of stereo frames accepted
	Push(samples []float32) int
	SetVolume(v float64)
}

type VideoSink interface {
	Present(f VideoFrame)
}

// Features are injected by the host rather than detected. Zero value enables everything.
type Features struct {
	DisableAudio         bool
	DisableFrameSkipping bool
	DisableVideo         bool
	SyncVideoSeek        bool
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func clampSnapped(v, step, min, max float64) float64 {
	v = math.Round(v/step) * step
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
