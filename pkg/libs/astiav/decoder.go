package astiavplayer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// trackDecoder demuxes and decodes a single stream. Its mutex protects decoding and seeking, and is held
// by the audio and video decoders around every public call.
type trackDecoder struct {
	c        *astikit.Closer
	codec    *astiav.Codec
	cs       *trackDecoderCumulativeStats
	ctx      context.Context
	d        *demuxer
	duration time.Duration
	eof      bool // Flush packet has been sent
	err      error
	f        *astiav.Frame
	fp       *framePool
	held     bool // f has been decoded by a seek and not handed out yet
	l        astikit.CompleteLogger
	last     time.Duration
	lost     atomic.Bool // Reader couldn't be recreated
	m        sync.Mutex
	mt       astiav.MediaType
	p        *astiav.Packet
	pf       *astiav.Frame // Last frame decoded by a seek before its target
	r        decoderReader
	rc       *astikit.Closer // Closes r
	start    time.Duration
	status   uint32
}

type trackDecoderCumulativeStats struct {
	decodedFrames  uint64
	filteredFrames uint64
}

func newTrackDecoder(ctx context.Context, mt astiav.MediaType, l astikit.StdLogger) *trackDecoder {
	d := &trackDecoder{
		c:   astikit.NewCloser(),
		cs:  &trackDecoderCumulativeStats{},
		ctx: ctx,
		fp:  newFramePool(),
		l:   astikit.AdaptStdLogger(l),
		mt:  mt,
	}
	d.fp.init(d.c)
	return d
}

func (d *trackDecoder) open(o OpenOptions) (err error) {
	// Create demuxer
	if d.d, err = newDemuxer(demuxerOptions{
		c:          d.c,
		ctx:        d.ctx,
		dictionary: o.Dictionary,
		l:          d.l,
		mediaType:  d.mt,
		source:     o.Source,
	}); err != nil {
		err = fmt.Errorf("astiavplayer: creating demuxer failed: %w", err)
		return
	}
	d.setStatus(TrackStatusOpened)

	// Update times
	d.start = streamStartTime(d.d.r, d.d.s)
	d.duration = streamDuration(d.d.r, d.d.s)

	// Find decoder
	if d.codec = astiav.FindDecoder(d.d.s.CodecParameters().CodecID()); d.codec == nil {
		err = fmt.Errorf("astiavplayer: no decoder found for codec id %s: %w", d.d.s.CodecParameters().CodecID(), ErrStreamNotFound)
		return
	}

	// Allocate packet
	if d.p = astiav.AllocPacket(); d.p == nil {
		err = fmt.Errorf("astiavplayer: allocating packet failed: %w", ErrAllocationFailure)
		return
	}
	d.c.Add(d.p.Free)

	// Allocate frame
	if d.f = astiav.AllocFrame(); d.f == nil {
		err = fmt.Errorf("astiavplayer: allocating frame failed: %w", ErrAllocationFailure)
		return
	}
	d.c.Add(d.f.Free)

	// Allocate previous frame
	if d.pf = astiav.AllocFrame(); d.pf == nil {
		err = fmt.Errorf("astiavplayer: allocating frame failed: %w", ErrAllocationFailure)
		return
	}
	d.c.Add(d.pf.Free)

	// Open reader
	if err = d.openReader(); err != nil {
		err = fmt.Errorf("astiavplayer: opening reader failed: %w", err)
		return
	}

	// Make sure to close reader
	d.c.Add(d.closeReader)
	return
}

func (d *trackDecoder) threadCount() int {
	// Only video is decoded with several threads
	if d.mt != astiav.MediaTypeVideo {
		return 0
	}

	// Get max
	max := 16
	if d.d.s.CodecParameters().CodecID() == astiav.CodecIDHevc {
		max = 32
	}

	// Get thread count
	if n := runtime.NumCPU(); n < max {
		return n
	}
	return max
}

func (d *trackDecoder) openReader() (err error) {
	// Create reader
	r := newDecoderReader(d.codec)
	if r == nil {
		err = fmt.Errorf("astiavplayer: allocating codec context failed: %w", ErrAllocationFailure)
		return
	}

	// Create closer
	rc := astikit.NewCloser()
	rc.Add(r.Free)

	// Make sure to close reader in case of error
	defer func() {
		if err != nil {
			rc.Close()
		}
	}()

	// Store reader
	classers.set(r, d.ctx)
	rc.Add(func() { classers.del(r) })

	// Update codec context
	if err = r.FromCodecParameters(d.d.s.CodecParameters()); err != nil {
		err = fmt.Errorf("astiavplayer: updating codec context failed: %w", err)
		return
	}

	// Set thread parameters
	if n := d.threadCount(); n > 0 {
		r.SetThreadCount(n)
		r.SetThreadType(astiav.ThreadTypeFrame | astiav.ThreadTypeSlice)
	}

	// Open codec context
	if err = r.Open(d.codec, nil); err != nil {
		err = fmt.Errorf("astiavplayer: opening codec context failed: %w", err)
		return
	}

	// Store
	d.r = r
	d.rc = rc
	return
}

func (d *trackDecoder) closeReader() {
	if d.rc != nil {
		d.rc.Close()
		d.rc = nil
		d.r = nil
	}
}

// Decoders keep frames internally, recreating the reader is the most reliable way to flush them
func (d *trackDecoder) resetReader() error {
	d.closeReader()
	return d.openReader()
}

func (d *trackDecoder) Status() TrackStatus {
	return TrackStatus(atomic.LoadUint32(&d.status))
}

func (d *trackDecoder) setStatus(s TrackStatus) {
	atomic.StoreUint32(&d.status, uint32(s))
}

func (d *trackDecoder) disposed() bool {
	return d.Status() == TrackStatusDisposed
}

// Err returns the error of the last failed call
func (d *trackDecoder) Err() error {
	d.m.Lock()
	defer d.m.Unlock()
	return d.err
}

func (d *trackDecoder) setErr(err error) {
	d.err = mapError(err)
}

// Must be called while holding the lock
func (d *trackDecoder) dispose() {
	if d.disposed() {
		return
	}
	if err := d.c.Close(); err != nil {
		d.l.WarnC(d.ctx, fmt.Errorf("astiavplayer: closing failed: %w", err))
	}
	d.setStatus(TrackStatusDisposed)
}

// Receives the next decoded frame in d.f
func (d *trackDecoder) receive() error {
	// A frame decoded by a seek is waiting
	if d.held {
		d.held = false
		return nil
	}

	// Reader couldn't be recreated
	if d.r == nil {
		return ErrDisposed
	}

	// Loop
	for {
		// Receive frame
		err := d.r.ReceiveFrame(d.f)
		if err == nil {
			atomic.AddUint64(&d.cs.decodedFrames, 1)
			return nil
		}

		// End of stream
		if errors.Is(err, astiav.ErrEof) {
			d.setStatus(TrackStatusFlushed)
			return ErrEndOfStream
		}

		// Decoding failed
		if !errors.Is(err, astiav.ErrEagain) {
			return DecodeError{Err: fmt.Errorf("astiavplayer: receiving frame failed: %w", err)}
		}

		// Decoder has been flushed but still needs more input
		if d.eof {
			d.setStatus(TrackStatusFlushed)
			return ErrEndOfStream
		}

		// Feed decoder
		if err = d.feed(); err != nil {
			return err
		}
	}
}

// Reads packets until one of the stream is sent to the decoder
func (d *trackDecoder) feed() error {
	for {
		// Read packet
		if err := d.d.readPacket(d.p); err != nil {
			// Demuxer has reached the end of the input, decoder needs to be flushed
			if errors.Is(err, astiav.ErrEof) {
				d.eof = true
				if err = d.r.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
					return DecodeError{Err: fmt.Errorf("astiavplayer: flushing decoder failed: %w", err)}
				}
				return nil
			}
			return DecodeError{Err: fmt.Errorf("astiavplayer: reading packet failed: %w", err)}
		}

		// Packet belongs to another stream
		if d.p.StreamIndex() != d.d.s.Index() {
			d.p.Unref()
			continue
		}

		// Send packet
		err := d.r.SendPacket(d.p)
		d.p.Unref()
		if err != nil {
			// Malformed packets are skipped
			if errors.Is(err, astiav.ErrInvaliddata) {
				logWarn(d.ctx, d.l, "astiavplayer: sending packet failed: %s", err)
				continue
			}

			// Decoder needs to output frames first
			if errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return DecodeError{Err: fmt.Errorf("astiavplayer: sending packet failed: %w", err)}
		}
		return nil
	}
}

// Presentation time of d.f relative to the stream start
func (d *trackDecoder) frameTime() time.Duration {
	// Get timestamp
	ts := d.f.Pts()
	if ts == astiav.NoPtsValue {
		ts = d.f.PktDts()
	}

	// No timestamp
	if ts == astiav.NoPtsValue {
		return d.last
	}

	// Update last
	d.last = timeBaseToDuration(ts, d.d.s.TimeBase()) - d.start
	return d.last
}

// Seeks to the last keyframe before t and decodes forward until a frame at or after t. The frame is left in
// d.f and flagged as held. When t is after the last frame, the last frame is held instead. found is false
// when no frame could be decoded at all.
func (d *trackDecoder) seek(ctx context.Context, t time.Duration, beforeDecode func() error) (found bool, err error) {
	// Update status
	prev := d.Status()
	d.setStatus(TrackStatusSeeking)

	// Restore status on error
	defer func() {
		if err != nil && !d.disposed() {
			d.setStatus(prev)
		}
	}()

	// Reset state
	d.held = false
	d.eof = false

	// Flush decoder
	if err = d.resetReader(); err != nil {
		// Track can't decode anymore
		if d.r == nil {
			d.lost.Store(true)
			d.dispose()
		}
		err = fmt.Errorf("astiavplayer: resetting reader failed: %w", err)
		return
	}

	// Get timestamp
	t = clampDuration(t, 0, d.duration)
	ts, _ := durationToTimeBase(t+d.start, d.d.s.TimeBase())

	// Seek
	if err = d.d.seek(ts); err != nil {
		err = fmt.Errorf("astiavplayer: %w: %s", ErrSeekFailure, err)
		return
	}

	// Callback
	if beforeDecode != nil {
		if err = beforeDecode(); err != nil {
			err = fmt.Errorf("astiavplayer: callback failed: %w", err)
			return
		}
	}

	// Decode forward
	var decoded bool
	for {
		// Context error
		if ctx.Err() != nil {
			err = fmt.Errorf("astiavplayer: context error: %w", ctx.Err())
			return
		}

		// Receive
		if err = d.receive(); err != nil {
			// Target is after the last frame
			if errors.Is(err, ErrEndOfStream) {
				err = nil
				if decoded {
					d.f, d.pf = d.pf, d.f
					d.held = true
					d.setStatus(TrackStatusStreaming)
					found = true
				}
				return
			}

			// Skip transient errors
			var de DecodeError
			if errors.As(mapError(err), &de) && de.Transient {
				continue
			}
			err = fmt.Errorf("astiavplayer: receiving failed: %w", err)
			return
		}

		// Target has been reached
		if d.frameTime() >= t {
			d.held = true
			d.setStatus(TrackStatusStreaming)
			found = true
			return
		}

		// Keep frame in case the target is never reached
		d.f, d.pf = d.pf, d.f
		decoded = true
	}
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func (d *trackDecoder) deltaStats() []astikit.DeltaStat {
	ss := d.fp.deltaStats()
	ss = append(ss,
		astikit.DeltaStat{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of decoded frames",
				Label:       "Decoded frames",
				Name:        DeltaStatNameDecodedFrames,
				Unit:        "f",
			},
			Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&d.cs.decodedFrames),
		},
		astikit.DeltaStat{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of frames decoded per second",
				Label:       "Decoded rate",
				Name:        DeltaStatNameDecodedRate,
				Unit:        "fps",
			},
			Valuer: astikit.NewAtomicUint64RateDeltaStat(&d.cs.decodedFrames),
		},
	)
	return ss
}

type decoderReader interface {
	Class() *astiav.Class
	Free()
	FromCodecParameters(cp *astiav.CodecParameters) error
	Open(c *astiav.Codec, d *astiav.Dictionary) error
	ReceiveFrame(f *astiav.Frame) error
	SendPacket(p *astiav.Packet) error
	SetThreadCount(int)
	SetThreadType(astiav.ThreadType)
}

var newDecoderReader = func(c *astiav.Codec) decoderReader {
	if cc := astiav.AllocCodecContext(c); cc != nil {
		return cc
	}
	return nil
}

// Only allocation failures are returned, other failures leave the track disposed
func (d *trackDecoder) handleOpenError(err error) error {
	d.dispose()
	d.setErr(err)
	if errors.Is(err, ErrAllocationFailure) {
		return err
	}
	logWarn(d.ctx, d.l, "astiavplayer: opening %s track failed: %s", d.mt, err)
	return nil
}
