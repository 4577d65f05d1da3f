package astiavplayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

var _ astiplayer.AudioTrack = (*AudioDecoder)(nil)

// AudioDecoder outputs interleaved stereo float frames with pitch and speed applied
type AudioDecoder struct {
	*trackDecoder
	af      *audioFilter
	drained bool // Filter tail has been emitted after the end of stream
	exists  bool
	fd      FrameDescriptor
	info    astiplayer.AudioStreamInfo
	mf      sync.Mutex // Locks af, pitch and speed
	pending []astiplayer.AudioFrame
	pitch   float64
	speed   float64
}

func NewAudioDecoder(ctx context.Context, o OpenOptions) (d *AudioDecoder, err error) {
	// Create decoder
	d = &AudioDecoder{
		pitch: 1,
		speed: 1,
	}
	d.trackDecoder = newTrackDecoder(o.trackContext(ctx, astiav.MediaTypeAudio), astiav.MediaTypeAudio, o.Logger)

	// Lock
	d.m.Lock()
	defer d.m.Unlock()

	// Open
	if err = d.open(o); err != nil {
		if err = d.handleOpenError(err); err != nil {
			return nil, err
		}
		return
	}

	// Create info
	d.info = newAudioStreamInfo(d.d.r, d.d.s, d.codec)

	// Create filter
	d.fd = newFrameDescriptorFromCodecParameters(d.d.s.CodecParameters(), d.d.s.TimeBase())
	if err = d.createFilterUnlocked(d.fd); err != nil {
		if err = d.handleOpenError(fmt.Errorf("astiavplayer: creating filter failed: %w", err)); err != nil {
			return nil, err
		}
		return
	}

	// Update state
	d.exists = true
	d.setStatus(TrackStatusReady)

	// Log
	d.l.InfoCf(d.ctx, "astiavplayer: audio stream %d: codec %s, %d Hz, %d channels, duration %s", d.d.s.Index(), d.info.CodecName, d.info.SampleRate, d.info.Channels, d.info.Duration)
	return
}

func (d *AudioDecoder) Exists() bool {
	return d.exists && !d.lost.Load()
}

func (d *AudioDecoder) Info() astiplayer.AudioStreamInfo {
	return d.info
}

func (d *AudioDecoder) Pitch() float64 {
	d.mf.Lock()
	defer d.mf.Unlock()
	return d.pitch
}

func (d *AudioDecoder) Speed() float64 {
	d.mf.Lock()
	defer d.mf.Unlock()
	return d.speed
}

func (d *AudioDecoder) Close() error {
	// Lock
	d.m.Lock()
	defer d.m.Unlock()

	// Close filter
	d.mf.Lock()
	d.closeFilterUnlocked()
	d.mf.Unlock()

	// Dispose
	d.pending = nil
	d.dispose()
	return nil
}

func (d *AudioDecoder) NextFrame() (f astiplayer.AudioFrame, ok bool) {
	// Lock
	d.m.Lock()
	defer d.m.Unlock()

	// Track can't decode
	if !d.exists || d.disposed() {
		d.setErr(ErrDisposed)
		return
	}

	// Loop
	for {
		// Frames are waiting
		if len(d.pending) > 0 {
			f = d.pending[0]
			d.pending = d.pending[1:]
			ok = true
			return
		}

		// Receive
		if err := d.receive(); err != nil {
			// End of stream
			if errors.Is(err, ErrEndOfStream) {
				// Emit the filter tail
				if !d.drained {
					d.drained = true
					d.drainFilter()
					continue
				}
				d.setErr(err)
				return
			}

			// Transient error
			err = mapError(err)
			var de DecodeError
			if errors.As(err, &de) && de.Transient {
				logWarn(d.ctx, d.l, "astiavplayer: receiving audio failed: %s", err)
				continue
			}

			// Log
			logWarn(d.ctx, d.l, "astiavplayer: receiving audio failed: %s", err)
			d.setErr(err)
			return
		}

		// Update status
		d.setStatus(TrackStatusStreaming)

		// Filter
		if err := d.filterFrame(d.f, d.frameTime()); err != nil {
			logWarn(d.ctx, d.l, "astiavplayer: filtering audio failed: %s", err)
			d.setErr(err)
			return
		}
	}
}

func (d *AudioDecoder) appendPending(f astiplayer.AudioFrame) {
	d.pending = append(d.pending, f)
}

func (d *AudioDecoder) filterFrame(f *astiav.Frame, t time.Duration) error {
	// Lock
	d.mf.Lock()
	defer d.mf.Unlock()

	// Frame descriptor has changed
	if fd := newFrameDescriptorFromFrame(f, astiav.MediaTypeAudio, d.d.s.TimeBase()); d.af == nil || !fd.equal(d.af.fd) {
		if err := d.refreshFilterUnlocked(fd); err != nil {
			return fmt.Errorf("astiavplayer: refreshing filter failed: %w", err)
		}
	}

	// Push
	if err := d.af.push(f, t); err != nil {
		return fmt.Errorf("astiavplayer: pushing frame failed: %w", err)
	}

	// Pull
	if err := d.af.pull(d.appendPending); err != nil {
		return fmt.Errorf("astiavplayer: pulling frames failed: %w", err)
	}
	return nil
}

func (d *AudioDecoder) drainFilter() {
	// Lock
	d.mf.Lock()
	defer d.mf.Unlock()

	// No filter
	if d.af == nil {
		return
	}

	// Drain
	if err := d.af.drain(d.appendPending); err != nil {
		logWarn(d.ctx, d.l, "astiavplayer: draining filter failed: %s", err)
	}
}

func (d *AudioDecoder) createFilterUnlocked(fd FrameDescriptor) (err error) {
	if d.af, err = newAudioFilter(audioFilterOptions{
		ctx:      d.ctx,
		fd:       fd,
		filtered: &d.cs.filteredFrames,
		fp:       d.fp,
		pitch:    d.pitch,
		speed:    d.speed,
	}); err != nil {
		err = fmt.Errorf("astiavplayer: creating audio filter failed: %w", err)
		return
	}
	return
}

func (d *AudioDecoder) closeFilterUnlocked() {
	if d.af != nil {
		d.af.close()
		d.af = nil
	}
}

// Frames still held by the previous filter are appended to the pending frames before it's freed
func (d *AudioDecoder) refreshFilterUnlocked(fd FrameDescriptor) error {
	// Drain
	if d.af != nil {
		if err := d.af.drain(d.appendPending); err != nil {
			logWarn(d.ctx, d.l, "astiavplayer: draining filter failed: %s", err)
		}
	}

	// Close
	d.closeFilterUnlocked()

	// Create
	return d.createFilterUnlocked(fd)
}

func (d *AudioDecoder) filterDescriptorUnlocked() FrameDescriptor {
	if d.af != nil {
		return d.af.fd
	}
	return d.fd
}

// Pitch is applied by resampling, it changes speed as well
func (d *AudioDecoder) SetPitch(p float64) {
	d.setRate(p, 0)
}

func (d *AudioDecoder) SetSpeed(s float64) {
	d.setRate(0, s)
}

func (d *AudioDecoder) setRate(pitch, speed float64) {
	// Lock
	d.m.Lock()
	defer d.m.Unlock()

	// Track can't decode
	if !d.exists || d.disposed() {
		return
	}

	// Lock
	d.mf.Lock()
	defer d.mf.Unlock()

	// Nothing changed
	if (pitch <= 0 || pitch == d.pitch) && (speed <= 0 || speed == d.speed) {
		return
	}

	// Update
	if pitch > 0 {
		d.pitch = pitch
	}
	if speed > 0 {
		d.speed = speed
	}

	// Refresh filter
	if err := d.refreshFilterUnlocked(d.filterDescriptorUnlocked()); err != nil {
		logWarn(d.ctx, d.l, "astiavplayer: refreshing filter failed: %s", err)
		d.setErr(err)
	}
}

func (d *AudioDecoder) Seek(t time.Duration) bool {
	// Lock
	d.m.Lock()
	defer d.m.Unlock()

	// Track can't decode
	if !d.exists || d.disposed() {
		d.setErr(ErrDisposed)
		return false
	}

	// Seek
	found, err := d.seek(d.ctx, t, d.resetFilter)
	if err != nil {
		logWarn(d.ctx, d.l, "astiavplayer: seeking audio to %s failed: %s", t, err)
		d.setErr(err)
		return false
	}

	// No frame could be decoded
	if !found {
		d.setErr(ErrEndOfStream)
		return false
	}
	d.err = nil
	return true
}

// Frames produced before the seek are discarded
func (d *AudioDecoder) resetFilter() error {
	// Lock
	d.mf.Lock()
	defer d.mf.Unlock()

	// Reset state
	d.pending = nil
	d.drained = false

	// Recreate filter
	fd := d.filterDescriptorUnlocked()
	d.closeFilterUnlocked()
	return d.createFilterUnlocked(fd)
}

type AudioDecoderCumulativeStats struct {
	AllocatedFrames uint64
	DecodedFrames   uint64
	FilteredFrames  uint64
}

func (d *AudioDecoder) CumulativeStats() AudioDecoderCumulativeStats {
	return AudioDecoderCumulativeStats{
		AllocatedFrames: atomic.LoadUint64(&d.fp.cs.allocatedFrames),
		DecodedFrames:   atomic.LoadUint64(&d.cs.decodedFrames),
		FilteredFrames:  atomic.LoadUint64(&d.cs.filteredFrames),
	}
}

func (d *AudioDecoder) DeltaStats() []astikit.DeltaStat {
	return append(d.deltaStats(), astikit.DeltaStat{
		Metadata: astikit.DeltaStatMetadata{
			Description: "Number of frames output by the audio filter",
			Label:       "Filtered frames",
			Name:        DeltaStatNameFilteredFrames,
			Unit:        "f",
		},
		Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&d.cs.filteredFrames),
	})
}
