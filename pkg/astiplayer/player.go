package astiplayer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
)

const (
	pitchStep  = 0.01
	speedStep  = 0.01
	volumeStep = 0.001
)

// Player owns the playback clock and keeps audio and video processes in sync with it. It is driven by the
// host through Tick.
type Player struct {
	a             *AudioProcess
	at            AudioTrack
	as            AudioSink
	c             *astikit.Closer
	clock         time.Duration
	cs            *playerCumulativeStats
	e             *astikit.EventManager
	l             astikit.CompleteLogger
	lastAudioTime time.Duration
	length        time.Duration
	loop          bool
	m             sync.Mutex // Locks everything below
	muted         bool
	pitch         float64
	speed         float64
	status        Status
	v             *VideoProcess
	volume        float64
}

type playerCumulativeStats struct {
	clockResyncs uint64
}

type PlayerOptions struct {
	Audio     AudioTrack
	AudioSink AudioSink
	Features  Features
	Logger    astikit.StdLogger
	Loop      bool
	Video     VideoTrack
	VideoSink VideoSink
}

func NewPlayer(o PlayerOptions) (p *Player, err error) {
	// Create player
	p = &Player{
		c:      astikit.NewCloser(),
		cs:     &playerCumulativeStats{},
		e:      astikit.NewEventManager(),
		l:      astikit.AdaptStdLogger(o.Logger),
		loop:   o.Loop,
		pitch:  1,
		speed:  1,
		status: StatusPaused,
		volume: 1,
	}

	// Make sure tracks are closed on error
	defer func() {
		if err != nil {
			p.c.Close() //nolint: errcheck
		}
	}()

	// Player owns the tracks even when they're disabled
	if o.Audio != nil {
		p.c.AddWithError(o.Audio.Close)
	}
	if o.Video != nil {
		p.c.AddWithError(o.Video.Close)
	}

	// Audio
	if o.Audio != nil && !o.Features.DisableAudio {
		// No sink
		if o.AudioSink == nil {
			err = errors.New("astiplayer: audio track requires an audio sink")
			return
		}

		// Create process
		p.at = o.Audio
		p.as = o.AudioSink
		p.a = NewAudioProcess(AudioProcessOptions{
			Logger: o.Logger,
			Sink:   o.AudioSink,
			Track:  o.Audio,
		})
	}

	// Video
	if o.Video != nil && !o.Features.DisableVideo {
		// No sink
		if o.VideoSink == nil {
			err = errors.New("astiplayer: video track requires a video sink")
			return
		}

		// Create process
		p.v = NewVideoProcess(VideoProcessOptions{
			Features: o.Features,
			Logger:   o.Logger,
			Sink:     o.VideoSink,
			Track:    o.Video,
		})
	}

	// No track
	if p.a == nil && p.v == nil {
		err = errors.New("astiplayer: no track to play")
		return
	}

	// Get length
	if p.isAudioValid() {
		p.length = p.a.Info().Duration
	}
	if p.isVideoValid() && p.v.Info().Duration > p.length {
		p.length = p.v.Info().Duration
	}

	// Apply volume
	p.applyVolume()

	// Log
	p.l.Infof("astiplayer: player created with audio %t, video %t and length %s", p.isAudioValid(), p.isVideoValid(), p.length)
	return
}

func (p *Player) isAudioValid() bool {
	return p.a != nil
}

// Thumbnails are presented once and don't take part in pacing
func (p *Player) isVideoValid() bool {
	return p.v != nil && !p.v.Thumbnail()
}

func (p *Player) HasAudio() bool {
	return p.isAudioValid()
}

func (p *Player) HasVideo() bool {
	return p.isVideoValid()
}

func (p *Player) On(n astikit.EventName, h astikit.EventHandler) astikit.EventRemover {
	return p.e.On(n, h)
}

type event struct {
	n       astikit.EventName
	payload interface{}
}

func (p *Player) emit(es []event) {
	for _, e := range es {
		p.e.Emit(e.n, e.payload)
	}
}

func (p *Player) Tick(delta time.Duration) {
	// Lock
	p.m.Lock()

	// Not playing
	if p.status != StatusPlaying {
		// Frames delivered by seeks are presented anyway
		if p.status != StatusClosed && p.isVideoValid() {
			p.v.presentSeekFrame()
		}
		p.m.Unlock()
		return
	}

	// Advance clock
	p.clock += time.Duration(float64(delta) * p.speed)

	// Resync clock on audio
	if p.isAudioValid() {
		if at := p.a.Time(); at != p.lastAudioTime {
			p.lastAudioTime = at
			if absDuration(p.clock-at) > DriftThreshold {
				p.clock = at
				atomic.AddUint64(&p.cs.clockResyncs, 1)
			}
		}
	}

	// Update video
	if p.isVideoValid() {
		clock := p.clock
		if p.isAudioValid() {
			clock -= VideoDelay
		}
		p.v.Update(clock)
	}

	// Update audio
	if p.isAudioValid() {
		p.a.Update(p.clock)
	}

	// Check whether playback is finished
	var es []event
	if (!p.isVideoValid() || p.v.Finished()) && (!p.isAudioValid() || p.a.Finished()) {
		if p.loop {
			es = append(es, p.stop()...)
			es = append(es, p.play()...)
			es = append(es, event{n: EventNamePlayerLooped})
		} else {
			es = append(es, p.pause()...)
			p.status = StatusFinished
			es = append(es, event{n: EventNamePlayerFinished})
		}
	}

	// Unlock
	p.m.Unlock()

	// Emit
	p.emit(es)
}

func (p *Player) Play() {
	p.m.Lock()
	es := p.play()
	p.m.Unlock()
	p.emit(es)
}

func (p *Player) play() (es []event) {
	switch p.status {
	case StatusClosed, StatusPlaying:
		return
	case StatusFinished:
		// Start over
		es = append(es, p.seek(0)...)
	}

	// Start processes
	if p.a != nil {
		p.a.Start()
	}
	if p.v != nil {
		p.v.Start()
	}

	// Update status
	p.status = StatusPlaying
	es = append(es, event{n: EventNamePlayerPlaying})
	return
}

func (p *Player) Pause() {
	p.m.Lock()
	es := p.pause()
	p.m.Unlock()
	p.emit(es)
}

func (p *Player) pause() (es []event) {
	if p.status != StatusPlaying {
		return
	}

	// Stop processes
	if p.a != nil {
		p.a.Stop()
	}
	if p.v != nil {
		p.v.Stop()
	}

	// Update status
	p.status = StatusPaused
	es = append(es, event{n: EventNamePlayerPaused})
	return
}

func (p *Player) Stop() {
	p.m.Lock()
	es := p.stop()
	p.m.Unlock()
	p.emit(es)
}

func (p *Player) stop() (es []event) {
	if p.status == StatusClosed {
		return
	}
	es = append(es, p.pause()...)
	es = append(es, p.seek(0)...)
	return
}

func (p *Player) Seek(t time.Duration) {
	p.m.Lock()
	var es []event
	if p.status != StatusClosed {
		es = p.seek(t)
	}
	p.m.Unlock()
	p.emit(es)
}

func (p *Player) seek(t time.Duration) (es []event) {
	// Clamp
	t = clampDuration(t, 0, p.length)

	// Seek to the end
	if t >= p.length {
		var max time.Duration
		if p.a != nil {
			d := p.a.Info().Duration
			p.a.SetTime(d)
			if d > max {
				max = d
			}
		}
		if p.isVideoValid() {
			d := p.v.Info().Duration
			p.v.SetTime(d)
			if d > max {
				max = d
			}
		}
		p.clock = max
	} else {
		if p.a != nil {
			p.a.SetTime(t)
		}
		if p.isVideoValid() {
			p.v.SetTime(t)
		}
		p.clock = t
	}

	// Clock must not be resynced before audio has moved
	if p.a != nil {
		p.lastAudioTime = p.a.Time()
	}

	// Finished playback can be played again
	if p.status == StatusFinished {
		p.status = StatusPaused
	}
	es = append(es, event{n: EventNamePlayerSeeked, payload: p.clock})
	return
}

func (p *Player) SetLoop(loop bool) {
	p.m.Lock()
	defer p.m.Unlock()
	p.loop = loop
}

func (p *Player) Loop() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.loop
}

// Pitch is clamped to [0.25, 2] and rounded to 0.01
func (p *Player) SetPitch(pitch float64) {
	p.m.Lock()
	defer p.m.Unlock()
	p.pitch = clampSnapped(pitch, pitchStep, PitchMin, PitchMax)
	p.applyRate()
}

func (p *Player) Pitch() float64 {
	p.m.Lock()
	defer p.m.Unlock()
	return p.pitch
}

// Speed is clamped to [0.25, 2] and rounded to 0.01
func (p *Player) SetSpeed(speed float64) {
	p.m.Lock()
	defer p.m.Unlock()
	p.speed = clampSnapped(speed, speedStep, SpeedMin, SpeedMax)
	p.applyRate()
}

func (p *Player) Speed() float64 {
	p.m.Lock()
	defer p.m.Unlock()
	return p.speed
}

// Pitch changes both tone and tempo, the tempo stretch compensates so that audio advances at speed
func (p *Player) applyRate() {
	if p.at == nil {
		return
	}
	p.at.SetPitch(p.pitch)
	p.at.SetSpeed(p.speed / p.pitch)
}

// Volume is clamped to [0, 1] and rounded to 0.001
func (p *Player) SetVolume(v float64) {
	p.m.Lock()
	defer p.m.Unlock()
	p.volume = clampSnapped(v, volumeStep, 0, 1)
	p.applyVolume()
}

func (p *Player) Volume() float64 {
	p.m.Lock()
	defer p.m.Unlock()
	return p.volume
}

func (p *Player) SetMute(muted bool) {
	p.m.Lock()
	defer p.m.Unlock()
	p.muted = muted
	p.applyVolume()
}

func (p *Player) Muted() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.muted
}

func (p *Player) applyVolume() {
	if p.as == nil {
		return
	}
	if p.muted {
		p.as.SetVolume(0)
	} else {
		p.as.SetVolume(p.volume)
	}
}

func (p *Player) ClockTime() time.Duration {
	p.m.Lock()
	defer p.m.Unlock()
	return p.clock
}

// Position within [0, Length]
func (p *Player) Time() time.Duration {
	p.m.Lock()
	defer p.m.Unlock()
	return clampDuration(p.clock, 0, p.length)
}

func (p *Player) Length() time.Duration {
	return p.length
}

func (p *Player) Status() Status {
	p.m.Lock()
	defer p.m.Unlock()
	return p.status
}

func (p *Player) Close() error {
	// Lock
	p.m.Lock()

	// Already closed
	if p.status == StatusClosed {
		p.m.Unlock()
		return nil
	}

	// Update status
	p.pause()
	p.status = StatusClosed

	// Unlock
	p.m.Unlock()

	// Close tracks
	err := p.c.Close()

	// Log
	p.l.Info("astiplayer: player is closed")

	// Emit
	p.e.Emit(EventNamePlayerClosed, nil)

	if err != nil {
		return fmt.Errorf("astiplayer: closing tracks failed: %w", err)
	}
	return nil
}

type PlayerCumulativeStats struct {
	Audio        *AudioProcessCumulativeStats
	ClockResyncs uint64
	Video        *VideoProcessCumulativeStats
}

func (p *Player) CumulativeStats() (s PlayerCumulativeStats) {
	s.ClockResyncs = atomic.LoadUint64(&p.cs.clockResyncs)
	if p.a != nil {
		as := p.a.CumulativeStats()
		s.Audio = &as
	}
	if p.v != nil {
		vs := p.v.CumulativeStats()
		s.Video = &vs
	}
	return
}

func (p *Player) DeltaStats() []astikit.DeltaStat {
	ss := []astikit.DeltaStat{
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of times the clock was snapped to audio",
				Label:       "Clock resyncs",
				Name:        DeltaStatNameClockResyncs,
				Unit:        "r",
			},
			Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&p.cs.clockResyncs),
		},
	}
	if p.a != nil {
		ss = append(ss, p.a.DeltaStats()...)
	}
	if p.v != nil {
		ss = append(ss, p.v.DeltaStats()...)
	}
	return ss
}
