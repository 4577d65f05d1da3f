package monitorer

import (
	"sync"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	"github.com/asticode/go-astiplayer/pkg/astiplayer/mocks"
	"github.com/stretchr/testify/require"
)

func newTestPlayer(t *testing.T) *astiplayer.Player {
	p, err := astiplayer.NewPlayer(astiplayer.PlayerOptions{
		Logger:    astikit.NewMockedLogger(),
		Video:     mocks.NewMockedVideoTrack(),
		VideoSink: mocks.NewMockedVideoSink(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() }) //nolint: errcheck
	return p
}

func TestMonitorer(t *testing.T) {
	defer astikit.MockNow(func() time.Time { return time.Unix(1, 0) }).Close()

	p := newTestPlayer(t)
	sm := astikit.DeltaStatMetadata{Name: "host"}
	var deltas []Delta
	m := New(MonitorerOptions{
		OnDelta: func(d Delta) { deltas = append(deltas, d) },
		Player:  p,
		Sources: []Source{{
			DeltaStats: []astikit.DeltaStat{{
				Metadata: sm,
				Valuer:   astikit.DeltaStatValuerFunc(func(d time.Duration) interface{} { return 1 }),
			}},
			Name: "host",
		}},
	})
	defer m.Close()

	var expectedStats []DeltaStat
	for idx, ds := range p.DeltaStats() {
		expectedStats = append(expectedStats, DeltaStat{
			ID:       uint64(idx + 1),
			Metadata: newDeltaStatMetadata(ds.Metadata),
			Source:   "player",
		})
	}
	expectedStats = append(expectedStats, DeltaStat{
		ID:       uint64(len(expectedStats) + 1),
		Metadata: newDeltaStatMetadata(sm),
		Source:   "host",
	})

	p.Play()
	p.Seek(2 * time.Second)
	m.onStats([]astikit.DeltaStatValue{{ID: 5, Value: 1}})

	expectedPlayer := &DeltaPlayer{
		ClockTime: 2,
		Length:    p.Length().Seconds(),
		Pitch:     1,
		Speed:     1,
		Status:    astiplayer.StatusPlaying.String(),
		Time:      2,
		Volume:    1,
	}
	require.Equal(t, []Delta{{
		At: *astikit.NewTimestamp(time.Unix(1, 0)),
		Events: []DeltaEvent{
			{
				At:   *astikit.NewTimestamp(time.Unix(1, 0)),
				Name: string(astiplayer.EventNamePlayerPlaying),
			},
			{
				At:      *astikit.NewTimestamp(time.Unix(1, 0)),
				Name:    string(astiplayer.EventNamePlayerSeeked),
				Payload: 2.0,
			},
		},
		NewStats:   expectedStats,
		Player:     expectedPlayer,
		StatValues: map[uint64]interface{}{5: 1},
	}}, deltas)

	// Catch up holds every stat but no event
	require.Equal(t, Delta{
		At:         *astikit.NewTimestamp(time.Unix(1, 0)),
		NewStats:   expectedStats,
		Player:     expectedPlayer,
		StatValues: map[uint64]interface{}{5: 1},
	}, m.CatchUp())

	// Next delta only holds new values
	p.Pause()
	m.onStats([]astikit.DeltaStatValue{{ID: 5, Value: 2}})
	require.Len(t, deltas, 2)
	require.Len(t, deltas[1].Events, 1)
	require.Equal(t, string(astiplayer.EventNamePlayerPaused), deltas[1].Events[0].Name)
	require.Empty(t, deltas[1].NewStats)
	require.Equal(t, astiplayer.StatusPaused.String(), deltas[1].Player.Status)
	require.Equal(t, map[uint64]interface{}{5: 2}, deltas[1].StatValues)

	// Events are not listened to once closed
	m.Close()
	p.Play()
	m.onStats(nil)
	require.Len(t, deltas, 3)
	require.Empty(t, deltas[2].Events)
}

func TestMonitorerStart(t *testing.T) {
	p := newTestPlayer(t)

	var (
		ds []Delta
		mu sync.Mutex
	)
	m := New(MonitorerOptions{
		OnDelta: func(d Delta) {
			mu.Lock()
			defer mu.Unlock()
			ds = append(ds, d)
		},
		Period: time.Millisecond,
		Player: p,
	})
	defer m.Close()

	w := astikit.NewWorker(astikit.WorkerOptions{})
	defer w.Stop()
	go m.Start(w.Context())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ds) > 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, ds[0].NewStats)
	require.Empty(t, ds[1].NewStats)
	require.NotNil(t, ds[1].Player)
}
