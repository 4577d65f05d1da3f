package astiavplayer

import (
	"context"
	"testing"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/require"
)

func TestVideoConverter(t *testing.T) {
	c := astikit.NewCloser()
	defer c.Close()
	fp := newFramePool().init(c)

	src := astiav.AllocFrame()
	defer src.Free()
	src.SetHeight(mockedMediaHeight)
	src.SetPixelFormat(astiav.PixelFormatRgba)
	src.SetWidth(mockedMediaWidth)
	require.NoError(t, src.AllocBuffer(0))
	require.True(t, videoFrameNeedsConversion(src))

	fd := newFrameDescriptorFromFrame(src, astiav.MediaTypeVideo, astiav.NewRational(1, mockedMediaFrameRate))
	cv, err := newVideoConverter(context.Background(), fd, fp)
	require.NoError(t, err)
	defer cv.close()

	for i := 0; i < 2; i++ {
		src.SetPts(int64(i))
		vf, err := cv.convert(src, time.Duration(i)*time.Second)
		require.NoError(t, err)
		require.Equal(t, time.Duration(i)*time.Second, vf.Time)
		require.Equal(t, mockedMediaWidth, vf.Width)
		require.Equal(t, mockedMediaHeight, vf.Height)
		require.Equal(t, [3]int{4, 2, 2}, vf.Strides)
		require.Len(t, vf.Planes[0], 8)
		require.Len(t, vf.Planes[1], 2)
		require.Len(t, vf.Planes[2], 2)
	}

	dst := astiav.AllocFrame()
	defer dst.Free()
	dst.SetHeight(mockedMediaHeight)
	dst.SetPixelFormat(astiav.PixelFormatYuv420P)
	dst.SetWidth(mockedMediaWidth)
	require.NoError(t, dst.AllocBuffer(0))
	require.False(t, videoFrameNeedsConversion(dst))
}
