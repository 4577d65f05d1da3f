package astiavplayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// demuxer owns a format context dedicated to a single track
type demuxer struct {
	bs  *byteSource
	c   *astikit.Closer
	ctx context.Context
	l   astikit.CompleteLogger
	r   demuxerReader
	s   *astiav.Stream
}

type demuxerOptions struct {
	c          *astikit.Closer
	ctx        context.Context
	dictionary DictionaryOptions
	l          astikit.CompleteLogger
	mediaType  astiav.MediaType
	source     MediaSource
}

func newDemuxer(o demuxerOptions) (d *demuxer, err error) {
	// Create demuxer
	d = &demuxer{
		c:   o.c,
		ctx: o.ctx,
		l:   o.l,
	}

	// Create reader
	if d.r = newDemuxerReader(); d.r == nil {
		err = fmt.Errorf("astiavplayer: allocating format context failed: %w", ErrAllocationFailure)
		return
	}
	d.c.Add(d.r.Free)

	// Store reader
	classers.set(d.r, d.ctx)
	d.c.Add(func() { classers.del(d.r) })

	// Open
	if err = d.open(o); err != nil {
		err = fmt.Errorf("astiavplayer: opening failed: %w", err)
		return
	}

	// Find stream
	if d.s, err = d.findStream(o.mediaType); err != nil {
		err = fmt.Errorf("astiavplayer: finding %s stream failed: %w", o.mediaType, err)
		return
	}
	return
}

func (d *demuxer) open(o demuxerOptions) (err error) {
	// Dictionary
	var dict *dictionary
	if dict, err = o.dictionary.dictionary(); err != nil {
		err = fmt.Errorf("astiavplayer: creating dictionary failed: %w", err)
		return
	}
	defer dict.close()

	// Buffer takes precedence over url
	var url string
	if len(o.source.Buffer) > 0 {
		// Log
		d.l.InfoCf(d.ctx, "astiavplayer: loading %s from a %d bytes buffer", o.mediaType, len(o.source.Buffer))

		// Create byte source
		if d.bs, err = newByteSource(o.source.Buffer); err != nil {
			err = fmt.Errorf("astiavplayer: creating byte source failed: %w", err)
			return
		}
		d.c.Add(func() { d.bs.Close() })

		// Create io context
		var ioc *astiav.IOContext
		if ioc, err = d.bs.newIOContext(); err != nil {
			err = fmt.Errorf("astiavplayer: allocating io context failed: %w: %s", ErrAllocationFailure, err)
			return
		}
		d.c.Add(ioc.Free)

		// Store io context
		classers.set(ioc, d.ctx)
		d.c.Add(func() { classers.del(ioc) })

		// The pb needs to be set before opening the input
		d.r.SetPb(ioc)
	} else if o.source.URL != "" {
		// Log
		d.l.InfoCf(d.ctx, "astiavplayer: loading %s from %s", o.mediaType, o.source.URL)

		// Update url
		url = o.source.URL
	} else {
		err = errors.New("astiavplayer: no source")
		return
	}

	// Generate missing pts
	d.r.SetFlags(d.r.Flags().Add(astiav.FormatContextFlagGenPts))

	// Open input
	if err = d.r.OpenInput(url, nil, dict.Dictionary); err != nil {
		err = fmt.Errorf("astiavplayer: opening input failed: %w", err)
		return
	}
	d.c.Add(d.r.CloseInput)

	// Context error
	if d.ctx.Err() != nil {
		err = fmt.Errorf("astiavplayer: context error: %w", d.ctx.Err())
		return
	}

	// Find stream information
	if err = d.r.FindStreamInfo(nil); err != nil {
		err = fmt.Errorf("astiavplayer: finding stream info failed: %w", err)
		return
	}

	// Context error
	if d.ctx.Err() != nil {
		err = fmt.Errorf("astiavplayer: context error: %w", d.ctx.Err())
		return
	}
	return
}

// First stream of the media type with an available decoder
func (d *demuxer) findStream(mt astiav.MediaType) (*astiav.Stream, error) {
	for _, s := range d.r.Streams() {
		// Invalid media type
		if s.CodecParameters().MediaType() != mt {
			continue
		}

		// No decoder
		if astiav.FindDecoder(s.CodecParameters().CodecID()) == nil {
			d.l.DebugC(d.ctx, fmt.Sprintf("astiavplayer: no decoder found for stream %d with codec id %s", s.Index(), s.CodecParameters().CodecID()))
			continue
		}
		return s, nil
	}
	return nil, ErrStreamNotFound
}

func (d *demuxer) readPacket(p *astiav.Packet) error {
	return d.r.ReadFrame(p)
}

// Falls back to seeking to any frame when no keyframe can be found before the timestamp
func (d *demuxer) seek(ts int64) error {
	if err := d.r.SeekFrame(d.s.Index(), ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		if err = d.r.SeekFrame(d.s.Index(), ts, astiav.NewSeekFlags(astiav.SeekFlagAny)); err != nil {
			return fmt.Errorf("astiavplayer: seeking frame failed: %w", err)
		}
	}
	return nil
}

type demuxerReader interface {
	Class() *astiav.Class
	CloseInput()
	Duration() int64
	FindStreamInfo(d *astiav.Dictionary) error
	Flags() astiav.FormatContextFlags
	Free()
	GuessFrameRate(s *astiav.Stream, f *astiav.Frame) astiav.Rational
	OpenInput(url string, fmt *astiav.InputFormat, d *astiav.Dictionary) error
	ReadFrame(p *astiav.Packet) error
	SeekFrame(streamIndex int, timestamp int64, f astiav.SeekFlags) error
	SetFlags(f astiav.FormatContextFlags)
	SetPb(i *astiav.IOContext)
	StartTime() int64
	Streams() []*astiav.Stream
}

var newDemuxerReader = func() demuxerReader {
	if fc := astiav.AllocFormatContext(); fc != nil {
		return fc
	}
	return nil
}
