package astiavplayer

import (
	"context"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

const videoConverterContent = "format=pix_fmts=yuv420p"

// videoConverter normalizes the pixel format to yuv420p at the same resolution
type videoConverter struct {
	fd FrameDescriptor
	fg *filterGraph
	fp *framePool
}

func newVideoConverter(ctx context.Context, fd FrameDescriptor, fp *framePool) (c *videoConverter, err error) {
	c = &videoConverter{
		fd: fd,
		fp: fp,
	}
	if c.fg, err = newFilterGraph(filterGraphOptions{
		content: videoConverterContent,
		ctx:     ctx,
		fd:      fd,
	}); err != nil {
		err = fmt.Errorf("astiavplayer: creating filter graph failed: %w", err)
		return
	}
	return
}

func (c *videoConverter) close() {
	c.fg.close()
}

func (c *videoConverter) convert(src *astiav.Frame, t time.Duration) (vf astiplayer.VideoFrame, err error) {
	// Push
	if err = c.fg.push(src); err != nil {
		err = fmt.Errorf("astiavplayer: pushing frame failed: %w", err)
		return
	}

	// Get frame
	var f *astiav.Frame
	if f, err = c.fp.get(); err != nil {
		err = fmt.Errorf("astiavplayer: getting frame failed: %w", err)
		return
	}
	defer c.fp.put(f)

	// Pull
	if err = c.fg.pull(f); err != nil {
		err = fmt.Errorf("astiavplayer: pulling frame failed: %w", err)
		return
	}
	return newVideoFrame(f, t)
}

func videoFrameNeedsConversion(f *astiav.Frame) bool {
	return f.PixelFormat() != astiav.PixelFormatYuv420P
}

func newVideoFrame(f *astiav.Frame, t time.Duration) (vf astiplayer.VideoFrame, err error) {
	// Get bytes
	var b []byte
	if b, err = f.Data().Bytes(1); err != nil {
		err = fmt.Errorf("astiavplayer: getting bytes failed: %w", err)
		return
	}

	// Get plane sizes
	w, h := f.Width(), f.Height()
	cw, ch := (w+1)/2, (h+1)/2
	ys, cs := w*h, cw*ch
	if len(b) < ys+2*cs {
		err = fmt.Errorf("astiavplayer: %d bytes is not enough for a %dx%d yuv420p frame", len(b), w, h)
		return
	}

	// Create frame
	vf = astiplayer.VideoFrame{
		Height:  h,
		Strides: [3]int{w, cw, cw},
		Time:    t,
		Width:   w,
	}
	vf.Planes[0] = b[:ys]
	vf.Planes[1] = b[ys : ys+cs]
	vf.Planes[2] = b[ys+cs : ys+2*cs]
	return
}
