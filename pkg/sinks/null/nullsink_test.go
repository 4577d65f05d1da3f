package nullsink

import (
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	"github.com/stretchr/testify/require"
)

func TestAudioSink(t *testing.T) {
	n := time.Unix(1, 0)
	defer astikit.MockNow(func() time.Time { return n }).Close()

	s := NewAudioSink(AudioSinkOptions{SampleRate: 1000})
	require.Equal(t, 200, s.FramesAvailable())
	require.Equal(t, time.Duration(0), s.Backlog())

	// Push more than the capacity
	s.SetVolume(0.5)
	ss := make([]float32, 300*2)
	ss[10] = -0.8
	require.Equal(t, 200, s.Push(ss))
	require.Equal(t, 0, s.FramesAvailable())
	require.Equal(t, 0, s.Push(ss))
	require.Equal(t, 200*time.Millisecond, s.Backlog())
	require.InDelta(t, 0.4, s.Peak(), 1e-6)
	require.Equal(t, float64(0), s.Peak())

	// Play
	n = n.Add(50 * time.Millisecond)
	require.Equal(t, 150*time.Millisecond, s.Backlog())
	require.Equal(t, 50, s.FramesAvailable())
	require.Equal(t, 50, s.Played())

	// Play more than what is buffered
	n = n.Add(time.Second)
	require.Equal(t, time.Duration(0), s.Backlog())
	require.Equal(t, 200, s.Played())

	// Clear
	require.Equal(t, 100, s.Push(ss[:200]))
	s.Clear()
	require.Equal(t, time.Duration(0), s.Backlog())
	require.Equal(t, 200, s.FramesAvailable())
	require.Equal(t, 0.5, s.Volume())
}

func TestVideoSink(t *testing.T) {
	s := NewVideoSink()
	s.Present(astiplayer.VideoFrame{Time: time.Second})
	s.Present(astiplayer.VideoFrame{Time: 2 * time.Second})
	require.Equal(t, uint64(2), s.Count())
	require.Equal(t, 2*time.Second, s.LastTime())
}
