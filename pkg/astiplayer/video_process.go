package astiplayer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
)

// VideoProcess paces a video track against the clock and presents frames to the sink
type VideoProcess struct {
	canSkip  bool
	cs       *videoProcessCumulativeStats
	current  time.Duration
	finished bool
	info     VideoStreamInfo
	l        astikit.CompleteLogger
	mp       sync.Mutex // Locks pending
	pending  *VideoFrame
	running  bool
	s        VideoSink
	st       *SeekTask
	syncSeek bool
	t        VideoTrack
}

type videoProcessCumulativeStats struct {
	presentedFrames uint64
	skippedFrames   uint64
}

type VideoProcessOptions struct {
	Features Features
	Logger   astikit.StdLogger
	Sink     VideoSink
	Track    VideoTrack
}

func NewVideoProcess(o VideoProcessOptions) *VideoProcess {
	// Create process
	p := &VideoProcess{
		canSkip:  !o.Features.DisableFrameSkipping,
		cs:       &videoProcessCumulativeStats{},
		info:     o.Track.Info(),
		l:        astikit.AdaptStdLogger(o.Logger),
		s:        o.Sink,
		syncSeek: o.Features.SyncVideoSeek,
		t:        o.Track,
	}

	// Frame skipping requires a known frame interval
	if p.info.FrameInterval() <= 0 {
		p.canSkip = false
	}

	// Store frames delivered by seeks, they're presented on next update
	p.t.SetSeekCompletedHandler(p.onSeekCompleted)

	// Present first frame
	if f, ok := p.t.NextFrame(); ok {
		p.present(f)
		p.current = f.Time
	}
	return p
}

func (p *VideoProcess) Info() VideoStreamInfo {
	return p.info
}

func (p *VideoProcess) Thumbnail() bool {
	return p.info.Thumbnail
}

func (p *VideoProcess) Time() time.Duration {
	return p.current
}

func (p *VideoProcess) Finished() bool {
	return p.finished
}

func (p *VideoProcess) Running() bool {
	return p.running
}

func (p *VideoProcess) Start() {
	p.running = true
}

func (p *VideoProcess) Stop() {
	p.running = false
}

func (p *VideoProcess) onSeekCompleted(f VideoFrame) {
	p.mp.Lock()
	defer p.mp.Unlock()
	p.pending = &f
}

func (p *VideoProcess) takePending() (f VideoFrame, ok bool) {
	p.mp.Lock()
	defer p.mp.Unlock()
	if p.pending == nil {
		return
	}
	f, ok = *p.pending, true
	p.pending = nil
	return
}

func (p *VideoProcess) present(f VideoFrame) {
	atomic.AddUint64(&p.cs.presentedFrames, 1)
	p.s.Present(f)
}

// SetTime repositions the track. Unless seeks are synchronous, frames are not pulled again before the
// seek task has completed.
func (p *VideoProcess) SetTime(t time.Duration) {
	// Thumbnails don't seek
	if p.info.Thumbnail {
		return
	}

	// Clamp
	t = clampDuration(t, 0, p.info.Duration)

	// Frames delivered by previous seeks are stale
	p.mp.Lock()
	p.pending = nil
	p.mp.Unlock()

	// Seek
	if p.syncSeek {
		ok := p.t.Seek(t)
		if !ok {
			p.l.Warnf("astiplayer: seeking video to %s failed", t)
		}
		p.st = NewCompletedSeekTask(t, ok)
	} else {
		p.st = p.t.SeekAsync(t)
	}

	// Update state
	p.current = t
	p.finished = false
}

// Presents the frame delivered by the last seek once it has completed, which happens even while paused.
// Returns false while the seek is still in progress.
func (p *VideoProcess) presentSeekFrame() bool {
	// Seek is still in progress
	if p.st != nil {
		if !p.st.Completed() {
			return false
		}
		p.st = nil
	}

	// Present frame delivered by the seek
	if f, ok := p.takePending(); ok {
		p.present(f)
		p.current = f.Time
	}
	return true
}

func (p *VideoProcess) Update(clock time.Duration) {
	// Nothing to do
	if !p.running || p.info.Thumbnail {
		return
	}

	// Seek is still in progress
	if !p.presentSeekFrame() {
		return
	}

	// Loop
	for p.running && p.current < clock {
		// Next frame
		f, ok := p.t.NextFrame()
		if !ok {
			break
		}

		// Skip or present
		if p.canSkip && absDuration(clock-f.Time) > p.info.FrameInterval() {
			atomic.AddUint64(&p.cs.skippedFrames, 1)
		} else {
			p.present(f)
		}
		p.current = f.Time
	}

	// Finished
	if clock >= p.info.Duration {
		p.finished = true
		p.running = false
		p.current = p.info.Duration
	}
}

type VideoProcessCumulativeStats struct {
	PresentedFrames uint64
	SkippedFrames   uint64
}

func (p *VideoProcess) CumulativeStats() VideoProcessCumulativeStats {
	return VideoProcessCumulativeStats{
		PresentedFrames: atomic.LoadUint64(&p.cs.presentedFrames),
		SkippedFrames:   atomic.LoadUint64(&p.cs.skippedFrames),
	}
}

func (p *VideoProcess) DeltaStats() []astikit.DeltaStat {
	return []astikit.DeltaStat{
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of presented frames",
				Label:       "Presented frames",
				Name:        DeltaStatNameVideoPresentedFrames,
				Unit:        "f",
			},
			Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&p.cs.presentedFrames),
		},
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of frames presented per second",
				Label:       "Presented rate",
				Name:        DeltaStatNameVideoPresentedRate,
				Unit:        "fps",
			},
			Valuer: astikit.NewAtomicUint64RateDeltaStat(&p.cs.presentedFrames),
		},
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of frames skipped because they were too far from the clock",
				Label:       "Skipped frames",
				Name:        DeltaStatNameVideoSkippedFrames,
				Unit:        "f",
			},
			Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&p.cs.skippedFrames),
		},
	}
}
