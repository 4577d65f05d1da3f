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

var _ astiplayer.VideoTrack = (*VideoDecoder)(nil)

// VideoDecoder outputs yuv420p frames. Seeks can run in the background, in which case the first frame
// at or after the target is delivered to the seek completed handler.
type VideoDecoder struct {
	*trackDecoder
	cancel          context.CancelFunc
	cv              *videoConverter
	exists          bool
	info            astiplayer.VideoStreamInfo
	ms              sync.Mutex // Locks onSeekCompleted and st
	onSeekCompleted func(f astiplayer.VideoFrame)
	st              *astiplayer.SeekTask
	wg              sync.WaitGroup
}

func NewVideoDecoder(ctx context.Context, o OpenOptions) (d *VideoDecoder, err error) {
	// Create decoder
	d = &VideoDecoder{}
	d.trackDecoder = newTrackDecoder(o.trackContext(ctx, astiav.MediaTypeVideo), astiav.MediaTypeVideo, o.Logger)

	// Background seeks are cancelled on close
	d.ctx, d.cancel = context.WithCancel(d.ctx)

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
	d.info = newVideoStreamInfo(d.d.r, d.d.s, d.codec)

	// Create converter
	if cp := d.d.s.CodecParameters(); cp.PixelFormat() != astiav.PixelFormatYuv420P {
		if err = d.refreshConverterUnlocked(newFrameDescriptorFromCodecParameters(cp, d.d.s.TimeBase())); err != nil {
			if err = d.handleOpenError(fmt.Errorf("astiavplayer: creating converter failed: %w", err)); err != nil {
				return nil, err
			}
			return
		}
	}

	// Update state
	d.exists = true
	d.setStatus(TrackStatusReady)

	// Log
	d.l.InfoCf(d.ctx, "astiavplayer: video stream %d: codec %s, %dx%d, %.3f fps, duration %s, thumbnail %t", d.d.s.Index(), d.info.CodecName, d.info.Width, d.info.Height, d.info.FrameRate, d.info.Duration, d.info.Thumbnail)
	return
}

func (d *VideoDecoder) Exists() bool {
	return d.exists && !d.lost.Load()
}

func (d *VideoDecoder) Info() astiplayer.VideoStreamInfo {
	return d.info
}

func (d *VideoDecoder) SetSeekCompletedHandler(h func(f astiplayer.VideoFrame)) {
	d.ms.Lock()
	defer d.ms.Unlock()
	d.onSeekCompleted = h
}

func (d *VideoDecoder) seekCompletedHandler() func(f astiplayer.VideoFrame) {
	d.ms.Lock()
	defer d.ms.Unlock()
	return d.onSeekCompleted
}

func (d *VideoDecoder) Close() error {
	// Cancel background seeks
	d.cancel()
	d.wg.Wait()

	// Lock
	d.m.Lock()
	defer d.m.Unlock()

	// Close converter
	if d.cv != nil {
		d.cv.close()
		d.cv = nil
	}

	// Dispose
	d.dispose()
	return nil
}

func (d *VideoDecoder) NextFrame() (f astiplayer.VideoFrame, ok bool) {
	// Lock
	d.m.Lock()
	defer d.m.Unlock()

	// Track can't decode
	if !d.Exists() || d.disposed() {
		d.setErr(ErrDisposed)
		return
	}

	// Loop
	for {
		// Receive
		if err := d.receive(); err != nil {
			// Transient error
			err = mapError(err)
			var de DecodeError
			if errors.As(err, &de) && de.Transient {
				logWarn(d.ctx, d.l, "astiavplayer: receiving video failed: %s", err)
				continue
			}

			// Log
			if !errors.Is(err, ErrEndOfStream) {
				logWarn(d.ctx, d.l, "astiavplayer: receiving video failed: %s", err)
			}
			d.setErr(err)
			return
		}

		// Update status
		d.setStatus(TrackStatusStreaming)

		// Convert
		var err error
		if f, err = d.convertUnlocked(d.f, d.frameTime()); err != nil {
			logWarn(d.ctx, d.l, "astiavplayer: converting video failed: %s", err)
			d.setErr(err)
			return
		}
		ok = true
		return
	}
}

func (d *VideoDecoder) convertUnlocked(f *astiav.Frame, t time.Duration) (astiplayer.VideoFrame, error) {
	// No conversion needed
	if !videoFrameNeedsConversion(f) {
		return newVideoFrame(f, t)
	}

	// Frame descriptor has changed
	if fd := newFrameDescriptorFromFrame(f, astiav.MediaTypeVideo, d.d.s.TimeBase()); d.cv == nil || !fd.equal(d.cv.fd) {
		if err := d.refreshConverterUnlocked(fd); err != nil {
			return astiplayer.VideoFrame{}, fmt.Errorf("astiavplayer: refreshing converter failed: %w", err)
		}
	}

	// Convert
	return d.cv.convert(f, t)
}

func (d *VideoDecoder) refreshConverterUnlocked(fd FrameDescriptor) (err error) {
	// Close previous converter
	if d.cv != nil {
		d.cv.close()
		d.cv = nil
	}

	// Create converter
	if d.cv, err = newVideoConverter(d.ctx, fd, d.fp); err != nil {
		err = fmt.Errorf("astiavplayer: creating video converter failed: %w", err)
		return
	}
	return
}

// Seek is synchronous. If a seek completed handler is set, the frame at or after t is delivered to it,
// otherwise it is returned by the next call to NextFrame.
func (d *VideoDecoder) Seek(t time.Duration) bool {
	// Cancel background seek
	d.ms.Lock()
	if d.st != nil {
		d.st.Cancel()
		d.st = nil
	}
	d.ms.Unlock()

	// Seek
	f, ok := d.seekAndConvert(d.ctx, t)
	if ok && f != nil {
		if h := d.seekCompletedHandler(); h != nil {
			h(*f)
		}
	}
	return ok
}

// SeekAsync cancels the previous background seek, if any, and seeks in a new goroutine
func (d *VideoDecoder) SeekAsync(t time.Duration) *astiplayer.SeekTask {
	// Thumbnails and disposed tracks don't seek
	if !d.canSeek() {
		return astiplayer.NewCompletedSeekTask(t, false)
	}

	// Lock
	d.ms.Lock()
	defer d.ms.Unlock()

	// Cancel previous task
	if d.st != nil {
		d.st.Cancel()
	}

	// Create task
	st := astiplayer.NewSeekTask(d.ctx, t)
	d.st = st

	// Seek in the background
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		// Seek
		f, ok := d.seekAndConvert(st.Context(), t)

		// Deliver frame unless a newer task has been issued
		d.ms.Lock()
		if ok && f != nil && d.st == st && !st.Cancelled() && d.onSeekCompleted != nil {
			d.onSeekCompleted(*f)
		}
		d.ms.Unlock()

		// Complete
		st.Complete(ok && !st.Cancelled())
	}()
	return st
}

func (d *VideoDecoder) canSeek() bool {
	return d.Exists() && !d.info.Thumbnail && !d.disposed()
}

// Returns the frame at or after t, or the last frame when t is after it, when a handler is set to receive it
func (d *VideoDecoder) seekAndConvert(ctx context.Context, t time.Duration) (f *astiplayer.VideoFrame, ok bool) {
	// Lock
	d.m.Lock()
	defer d.m.Unlock()

	// Thumbnails and disposed tracks don't seek
	if !d.canSeek() {
		if d.info.Thumbnail {
			d.setErr(fmt.Errorf("astiavplayer: thumbnails can't seek: %w", ErrSeekFailure))
		} else {
			d.setErr(ErrDisposed)
		}
		return
	}

	// Seek
	found, err := d.seek(ctx, t, nil)
	if err != nil {
		// Seek has been cancelled
		if ctx.Err() != nil {
			return
		}
		logWarn(d.ctx, d.l, "astiavplayer: seeking video to %s failed: %s", t, err)
		d.setErr(err)
		return
	}

	// No frame could be decoded
	if !found {
		d.setErr(ErrEndOfStream)
		return
	}
	d.err = nil
	ok = true

	// Frame stays held if nobody is there to receive it
	if d.seekCompletedHandler() == nil {
		return
	}

	// Convert
	vf, err := d.convertUnlocked(d.f, d.frameTime())
	if err != nil {
		logWarn(d.ctx, d.l, "astiavplayer: converting video failed: %s", err)
		d.setErr(err)
		return
	}
	d.held = false
	f = &vf
	return
}

type VideoDecoderCumulativeStats struct {
	AllocatedFrames uint64
	DecodedFrames   uint64
}

func (d *VideoDecoder) CumulativeStats() VideoDecoderCumulativeStats {
	return VideoDecoderCumulativeStats{
		AllocatedFrames: atomic.LoadUint64(&d.fp.cs.allocatedFrames),
		DecodedFrames:   atomic.LoadUint64(&d.cs.decodedFrames),
	}
}

func (d *VideoDecoder) DeltaStats() []astikit.DeltaStat {
	return d.deltaStats()
}
