package astiavplayer

import (
	"context"
	"testing"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	"github.com/stretchr/testify/require"
)

func TestAudioFilterContent(t *testing.T) {
	require.Equal(t, "asetrate=44100,aresample=44100,atempo=1,aformat=sample_fmts=flt:channel_layouts=stereo", audioFilterContent(44100, 1, 1))
	require.Equal(t, "asetrate=22050,aresample=44100,atempo=0.5,atempo=0.5,atempo=0.5,aformat=sample_fmts=flt:channel_layouts=stereo", audioFilterContent(44100, 0.5, 0.125))
	require.Equal(t, "asetrate=96000,aresample=48000,atempo=2,atempo=1.5,aformat=sample_fmts=flt:channel_layouts=stereo", audioFilterContent(48000, 2, 3))
	require.Equal(t, "asetrate=35280,aresample=44100,atempo=1.25,aformat=sample_fmts=flt:channel_layouts=stereo", audioFilterContent(44100, 0.8, 1.25))
}

func TestAudioFilter(t *testing.T) {
	c := astikit.NewCloser()
	defer c.Close()
	fp := newFramePool().init(c)

	var filtered uint64
	fd := FrameDescriptor{
		ChannelLayout: astiav.ChannelLayoutMono,
		MediaType:     astiav.MediaTypeAudio,
		SampleFormat:  astiav.SampleFormatFlt,
		SampleRate:    mockedMediaAudioSampleRate,
		TimeBase:      astiav.NewRational(1, mockedMediaAudioSampleRate),
	}
	af, err := newAudioFilter(audioFilterOptions{
		ctx:      context.Background(),
		fd:       fd,
		filtered: &filtered,
		fp:       fp,
		pitch:    1,
		speed:    1,
	})
	require.NoError(t, err)
	defer af.close()

	f := astiav.AllocFrame()
	defer f.Free()

	var fs []astiplayer.AudioFrame
	fn := func(f astiplayer.AudioFrame) { fs = append(fs, f) }
	const count = 20
	for i := 0; i < count; i++ {
		f.Unref()
		f.SetChannelLayout(fd.ChannelLayout)
		f.SetNbSamples(mockedMediaAudioFrameSize)
		f.SetSampleFormat(fd.SampleFormat)
		f.SetSampleRate(fd.SampleRate)
		f.SetPts(int64(i * mockedMediaAudioFrameSize))
		require.NoError(t, f.AllocBuffer(0))
		require.NoError(t, af.push(f, 2*time.Second+timeBaseToDuration(f.Pts(), fd.TimeBase)))
		require.NoError(t, af.pull(fn))
	}
	require.NoError(t, af.drain(fn))
	require.NoError(t, af.drain(fn))
	require.Error(t, af.push(f, 0))

	require.NotEmpty(t, fs)
	require.Equal(t, 2*time.Second, fs[0].Time)
	var n int
	for _, f := range fs {
		require.Equal(t, mockedMediaAudioSampleRate, f.SampleRate)
		require.Zero(t, len(f.Samples)%2)
		n += f.SampleCount()
	}
	require.InEpsilon(t, count*mockedMediaAudioFrameSize, n, 0.05)
	require.Equal(t, uint64(len(fs)), filtered)
}
