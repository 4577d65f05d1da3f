package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	"golang.org/x/image/draw"
)

var _ astiplayer.VideoSink = (*Sink)(nil)

// Sink writes a png snapshot of the presented frames every period of media time
type Sink struct {
	count    int
	dir      string
	l        astikit.CompleteLogger
	last     *time.Duration
	m        sync.Mutex // Locks count and last
	maxWidth int
	next     astiplayer.VideoSink
	period   time.Duration
}

type Options struct {
	Dir    string
	Logger astikit.StdLogger
	// Snapshots wider than this are downscaled. 0 means no downscaling.
	MaxWidth int
	// Frames are forwarded to this sink as well
	Next astiplayer.VideoSink
	// Defaults to 1s
	Period time.Duration
}

func New(o Options) (s *Sink, err error) {
	// No dir
	if o.Dir == "" {
		err = errors.New("snapshot: no dir provided")
		return
	}

	// Create dir
	if err = os.MkdirAll(o.Dir, 0755); err != nil {
		err = fmt.Errorf("snapshot: creating %s failed: %w", o.Dir, err)
		return
	}

	// Create sink
	s = &Sink{
		dir:      o.Dir,
		l:        astikit.AdaptStdLogger(o.Logger),
		maxWidth: o.MaxWidth,
		next:     o.Next,
		period:   o.Period,
	}
	if s.period <= 0 {
		s.period = time.Second
	}
	return
}

func (s *Sink) Present(f astiplayer.VideoFrame) {
	// Forward
	if s.next != nil {
		s.next.Present(f)
	}

	// Lock
	s.m.Lock()
	defer s.m.Unlock()

	// Too soon. Seeking backward resets the period.
	if s.last != nil && f.Time >= *s.last && f.Time-*s.last < s.period {
		return
	}

	// Write
	p := filepath.Join(s.dir, fmt.Sprintf("snapshot-%04d.png", s.count+1))
	if err := s.write(p, f); err != nil {
		s.l.Warn(fmt.Errorf("snapshot: writing %s failed: %w", p, err))
		return
	}

	// Update
	s.count++
	t := f.Time
	s.last = &t
}

// Number of snapshots written
func (s *Sink) Count() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.count
}

func (s *Sink) write(path string, f astiplayer.VideoFrame) (err error) {
	// Create image
	var i image.Image
	if i, err = newImage(f); err != nil {
		err = fmt.Errorf("snapshot: creating image failed: %w", err)
		return
	}

	// Downscale
	if s.maxWidth > 0 && f.Width > s.maxWidth {
		i = resize(i, s.maxWidth, f.Height*s.maxWidth/f.Width)
	}

	// Create file
	var file *os.File
	if file, err = os.Create(path); err != nil {
		err = fmt.Errorf("snapshot: creating %s failed: %w", path, err)
		return
	}
	defer file.Close()

	// Encode
	if err = png.Encode(file, i); err != nil {
		err = fmt.Errorf("snapshot: encoding png failed: %w", err)
		return
	}
	return
}

func newImage(f astiplayer.VideoFrame) (*image.YCbCr, error) {
	// Check planes
	cw, ch := (f.Width+1)/2, (f.Height+1)/2
	if f.Width <= 0 || f.Height <= 0 || len(f.Planes[0]) < f.Strides[0]*f.Height || len(f.Planes[1]) < f.Strides[1]*ch || len(f.Planes[2]) < f.Strides[2]*ch || f.Strides[1] < cw {
		return nil, fmt.Errorf("snapshot: invalid %dx%d frame", f.Width, f.Height)
	}

	// Create image
	return &image.YCbCr{
		Y:              f.Planes[0],
		Cb:             f.Planes[1],
		Cr:             f.Planes[2],
		YStride:        f.Strides[0],
		CStride:        f.Strides[1],
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}, nil
}

func resize(i image.Image, width, height int) image.Image {
	if height <= 0 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), i, i.Bounds(), draw.Over, nil)
	return dst
}
