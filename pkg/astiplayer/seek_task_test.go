package astiplayer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeekTask(t *testing.T) {
	st := NewSeekTask(context.Background(), time.Second)
	require.Equal(t, time.Second, st.Time())
	require.False(t, st.Completed())
	st.Complete(true)
	st.Complete(false)
	require.True(t, st.Completed())
	require.True(t, st.Wait())
	select {
	case <-st.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	st = NewSeekTask(context.Background(), time.Second)
	st.Cancel()
	require.True(t, st.Cancelled())
	require.False(t, st.Completed())
	require.False(t, st.Wait())
	require.Error(t, st.Context().Err())

	st = NewCompletedSeekTask(2*time.Second, false)
	require.True(t, st.Completed())
	require.False(t, st.Wait())
}

func TestClampSnapped(t *testing.T) {
	require.Equal(t, PitchMax, clampSnapped(3, pitchStep, PitchMin, PitchMax))
	require.Equal(t, PitchMin, clampSnapped(0.1, pitchStep, PitchMin, PitchMax))
	require.InDelta(t, 1.23, clampSnapped(1.234, pitchStep, PitchMin, PitchMax), 1e-9)
	require.InDelta(t, 0.123, clampSnapped(0.12345, volumeStep, 0, 1), 1e-9)
}

func TestStatus(t *testing.T) {
	require.Equal(t, "paused", StatusPaused.String())
	require.Equal(t, "playing", StatusPlaying.String())
	require.Equal(t, "finished", StatusFinished.String())
	require.Equal(t, "closed", StatusClosed.String())
}

func TestVideoStreamInfo(t *testing.T) {
	require.Equal(t, time.Duration(0), VideoStreamInfo{}.FrameInterval())
	require.Equal(t, 40*time.Millisecond, VideoStreamInfo{FrameRate: 25}.FrameInterval())
	require.Equal(t, 0.5, Rational{Num: 1, Den: 2}.Float64())
	require.Equal(t, float64(0), Rational{Num: 1}.Float64())
}
