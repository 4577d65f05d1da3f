package astiplayer

import (
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
)

// AudioProcess keeps a bounded queue of decoded blocks and pushes them to the sink as it frees up.
// Buffered time is the media time of the last sample pushed to the sink, played time is derived from it
// using the sink's backlog.
type AudioProcess struct {
	buffered time.Duration
	cs       *audioProcessCumulativeStats
	current  time.Duration
	finished bool
	info     AudioStreamInfo
	l        astikit.CompleteLogger
	last     AudioFrame
	offset   int // Stereo frames of q[0] already pushed
	q        []AudioFrame
	running  bool
	s        AudioSink
	t        AudioTrack
}

type audioProcessCumulativeStats struct {
	pushedSamples uint64
}

type AudioProcessOptions struct {
	Logger astikit.StdLogger
	Sink   AudioSink
	Track  AudioTrack
}

func NewAudioProcess(o AudioProcessOptions) *AudioProcess {
	return &AudioProcess{
		cs:   &audioProcessCumulativeStats{},
		info: o.Track.Info(),
		l:    astikit.AdaptStdLogger(o.Logger),
		last: AudioFrame{Pitch: 1, Speed: 1},
		q:    make([]AudioFrame, 0, AudioQueueCapacity),
		s:    o.Sink,
		t:    o.Track,
	}
}

func (p *AudioProcess) Info() AudioStreamInfo {
	return p.info
}

// Played time
func (p *AudioProcess) Time() time.Duration {
	return p.current
}

func (p *AudioProcess) BufferedTime() time.Duration {
	return p.buffered
}

func (p *AudioProcess) QueueLength() int {
	return len(p.q)
}

func (p *AudioProcess) Finished() bool {
	return p.finished
}

func (p *AudioProcess) Running() bool {
	return p.running
}

func (p *AudioProcess) Start() {
	p.running = true
}

func (p *AudioProcess) Stop() {
	p.running = false
}

func (p *AudioProcess) SetTime(t time.Duration) {
	// Clamp
	t = clampDuration(t, 0, p.info.Duration)

	// Update state
	p.current = t
	p.buffered = t
	p.finished = false

	// Seek
	if !p.t.Seek(t) {
		p.l.Warnf("astiplayer: seeking audio to %s failed", t)
	}

	// Clear queue and sink
	p.q = p.q[:0]
	p.offset = 0
	p.s.Clear()
}

func (p *AudioProcess) Update(clock time.Duration) {
	// Not running
	if !p.running {
		return
	}

	// Fill queue
	for len(p.q) < AudioQueueCapacity {
		f, ok := p.t.NextFrame()
		if !ok {
			break
		}
		p.q = append(p.q, f)
	}

	// Push to sink
	for len(p.q) > 0 {
		// Entry is exhausted
		e := p.q[0]
		remaining := e.SampleCount() - p.offset
		if remaining <= 0 {
			p.pop()
			continue
		}

		// Sink is full
		available := p.s.FramesAvailable()
		if available <= 0 {
			break
		}

		// New entry
		if p.offset == 0 {
			p.buffered = e.Time
		}

		// Push
		n := remaining
		if available < n {
			n = available
		}
		pushed := p.s.Push(e.Samples[p.offset*2 : (p.offset+n)*2])
		if pushed <= 0 {
			break
		}
		atomic.AddUint64(&p.cs.pushedSamples, uint64(pushed))

		// Update state
		p.offset += pushed
		p.buffered += e.mediaDuration(pushed)
		p.last = e
	}

	// Update played time
	p.current = clampDuration(p.buffered-time.Duration(float64(p.s.Backlog())*p.last.Pitch*p.last.Speed), 0, p.info.Duration)

	// Finished
	if clock >= p.info.Duration {
		p.finished = true
		p.running = false
		p.current = p.info.Duration
	}
}

func (p *AudioProcess) pop() {
	p.q = append(p.q[:0], p.q[1:]...)
	p.offset = 0
}

type AudioProcessCumulativeStats struct {
	PushedSamples uint64
}

func (p *AudioProcess) CumulativeStats() AudioProcessCumulativeStats {
	return AudioProcessCumulativeStats{PushedSamples: atomic.LoadUint64(&p.cs.pushedSamples)}
}

func (p *AudioProcess) DeltaStats() []astikit.DeltaStat {
	return []astikit.DeltaStat{
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of stereo samples pushed to the sink",
				Label:       "Pushed samples",
				Name:        DeltaStatNameAudioPushedSamples,
				Unit:        "s",
			},
			Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&p.cs.pushedSamples),
		},
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of stereo samples pushed to the sink per second",
				Label:       "Pushed rate",
				Name:        DeltaStatNameAudioPushedRate,
				Unit:        "sps",
			},
			Valuer: astikit.NewAtomicUint64RateDeltaStat(&p.cs.pushedSamples),
		},
	}
}
