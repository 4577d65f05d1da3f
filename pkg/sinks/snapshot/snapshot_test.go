package snapshot

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	nullsink "github.com/asticode/go-astiplayer/pkg/sinks/null"
	"github.com/stretchr/testify/require"
)

func newFrame(w, h int, t time.Duration) astiplayer.VideoFrame {
	cw, ch := (w+1)/2, (h+1)/2
	f := astiplayer.VideoFrame{
		Height:  h,
		Strides: [3]int{w, cw, cw},
		Time:    t,
		Width:   w,
	}
	f.Planes[0] = make([]byte, w*h)
	f.Planes[1] = make([]byte, cw*ch)
	f.Planes[2] = make([]byte, cw*ch)
	for idx := range f.Planes[0] {
		f.Planes[0][idx] = byte(idx)
	}
	return f
}

func TestSink(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	dir := t.TempDir()
	n := nullsink.NewVideoSink()
	s, err := New(Options{
		Dir:      dir,
		MaxWidth: 4,
		Next:     n,
		Period:   time.Second,
	})
	require.NoError(t, err)

	s.Present(newFrame(8, 4, 0))
	s.Present(newFrame(8, 4, 500*time.Millisecond))
	s.Present(newFrame(8, 4, time.Second))
	s.Present(newFrame(8, 4, 200*time.Millisecond))
	s.Present(newFrame(8, 4, 300*time.Millisecond))
	require.Equal(t, 3, s.Count())
	require.Equal(t, uint64(5), n.Count())

	for idx := 1; idx <= 3; idx++ {
		f, err := os.Open(filepath.Join(dir, fmt.Sprintf("snapshot-%04d.png", idx)))
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		require.Equal(t, 4, cfg.Width)
		require.Equal(t, 2, cfg.Height)
	}

	// Invalid frames are not written
	s.Present(astiplayer.VideoFrame{Time: 10 * time.Second, Width: 2, Height: 2})
	require.Equal(t, 3, s.Count())
}

func TestNewImage(t *testing.T) {
	i, err := newImage(newFrame(3, 3, 0))
	require.NoError(t, err)
	require.Equal(t, 3, i.Bounds().Dx())
	require.Equal(t, uint8(4), i.YCbCrAt(1, 1).Y)
}
