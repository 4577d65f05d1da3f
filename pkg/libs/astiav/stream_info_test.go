package astiavplayer

import (
	"testing"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
)

type startTimeDemuxerReader struct {
	*mockedDemuxerReader
	duration  int64
	startTime int64
}

func (r startTimeDemuxerReader) Duration() int64 {
	return r.duration
}

func (r startTimeDemuxerReader) StartTime() int64 {
	return r.startTime
}

func TestIsThumbnailCodec(t *testing.T) {
	for _, n := range []string{"png", "mjpeg", "BMP", "webp", "gif"} {
		require.True(t, isThumbnailCodec(n), n)
	}
	for _, n := range []string{"h264", "hevc", "aac", "rawvideo"} {
		require.False(t, isThumbnailCodec(n), n)
	}
}

func TestStreamInfoFallbacks(t *testing.T) {
	m := newMockedMedia()
	defer m.close()
	r := startTimeDemuxerReader{
		mockedDemuxerReader: &mockedDemuxerReader{media: m},
		duration:            astiav.NoPtsValue,
		startTime:           astiav.NoPtsValue,
	}

	// Nothing is known
	require.Equal(t, time.Duration(0), streamStartTime(r, m.video))
	require.Equal(t, time.Duration(0), streamDuration(r, m.video))

	// Format values
	r.duration = 3 * time.Second.Microseconds()
	r.startTime = 500 * time.Millisecond.Microseconds()
	require.Equal(t, 500*time.Millisecond, streamStartTime(r, m.video))
	require.Equal(t, 3*time.Second, streamDuration(r, m.video))

	// Frame rate
	require.Equal(t, float64(mockedMediaFrameRate), streamFrameRate(r, m.video))
	require.Equal(t, float64(0), streamFrameRate(r, m.audio))
	m.video.SetRFrameRate(astiav.NewRational(25, 1))
	require.Equal(t, float64(25), streamFrameRate(r, m.video))
	m.video.SetAvgFrameRate(astiav.NewRational(24000, 1001))
	require.InDelta(t, 23.976, streamFrameRate(r, m.video), 0.001)

	// Counts are derived from the duration
	i := newVideoStreamInfo(r, m.video, astiav.FindDecoder(astiav.CodecIDRawvideo))
	require.Equal(t, int64(72), i.FrameCount)
	require.Equal(t, 500*time.Millisecond, i.StartTime)
	require.False(t, i.Thumbnail)
	require.Equal(t, "rawvideo", i.CodecName)
	a := newAudioStreamInfo(r, m.audio, nil)
	require.Equal(t, int64(3*mockedMediaAudioSampleRate), a.SampleCount)
	require.Equal(t, "", a.CodecName)
}
