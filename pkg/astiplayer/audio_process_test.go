package astiplayer_test

import (
	"testing"
	"time"

	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	"github.com/asticode/go-astiplayer/pkg/astiplayer/mocks"
	"github.com/stretchr/testify/require"
)

func TestAudioProcessShouldFeedSink(t *testing.T) {
	at := mocks.NewMockedAudioTrack()
	as := mocks.NewMockedAudioSink()
	p := astiplayer.NewAudioProcess(astiplayer.AudioProcessOptions{Sink: as, Track: at})

	p.Update(0)
	require.Equal(t, 0, as.Pushed)

	p.Start()
	p.Update(0)
	require.Equal(t, 4096, as.Pushed)
	require.Equal(t, 1, p.QueueLength())
	require.Equal(t, time.Duration(0), p.Time())

	as.Play(50 * time.Millisecond)
	p.Update(50 * time.Millisecond)
	require.LessOrEqual(t, p.QueueLength(), astiplayer.AudioQueueCapacity)
	require.Equal(t, 4096, as.Buffered())
	require.InDelta(t, float64(50*time.Millisecond), float64(p.Time()), float64(time.Millisecond))

	for i := 0; i < 20; i++ {
		as.Play(10 * time.Millisecond)
		p.Update(time.Duration(60+10*i) * time.Millisecond)
		require.LessOrEqual(t, p.QueueLength(), astiplayer.AudioQueueCapacity)
	}
	require.InDelta(t, float64(250*time.Millisecond), float64(p.Time()), float64(time.Millisecond))
	require.Equal(t, uint64(as.Pushed), p.CumulativeStats().PushedSamples)

	p.SetTime(5 * time.Second)
	require.Equal(t, []time.Duration{5 * time.Second}, at.Seeks)
	require.Equal(t, 0, p.QueueLength())
	require.Equal(t, 1, as.Clears)
	require.Equal(t, 5*time.Second, p.Time())
	require.Equal(t, 5*time.Second, p.BufferedTime())

	p.SetTime(-time.Second)
	require.Equal(t, time.Duration(0), p.Time())

	p.Update(10 * time.Second)
	require.True(t, p.Finished())
	require.False(t, p.Running())
	require.Equal(t, 10*time.Second, p.Time())
}

func TestAudioProcessSpeedShouldHalveSamples(t *testing.T) {
	run := func(speed float64) (pushed int, buffered time.Duration) {
		at := mocks.NewMockedAudioTrack()
		at.SetSpeed(speed)
		as := mocks.NewMockedAudioSink()
		as.Capacity = 1 << 20
		p := astiplayer.NewAudioProcess(astiplayer.AudioProcessOptions{Sink: as, Track: at})
		p.Start()
		p.Update(0)
		return as.Pushed, p.BufferedTime()
	}
	p1, b1 := run(1)
	p2, b2 := run(2)
	require.Equal(t, 5*mocks.MockedAudioBlockSize, p1)
	require.Equal(t, p1/2, p2)
	require.InDelta(t, float64(b1), float64(b2), float64(time.Microsecond))
}
