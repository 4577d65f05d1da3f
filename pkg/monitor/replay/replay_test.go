package replay_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/monitor/monitorer"
	"github.com/asticode/go-astiplayer/pkg/monitor/replay"
	"github.com/stretchr/testify/require"
)

func TestReplay(t *testing.T) {
	defer astikit.MockNow(func() time.Time {
		return time.Unix(1, 0)
	}).Close()

	w := astikit.NewWorker(astikit.WorkerOptions{})
	defer w.Stop()

	path := filepath.Join(t.TempDir(), "replay.txt")
	r, err := replay.New(w.Context(), replay.Options{
		DeltaPeriod: time.Millisecond,
		Media:       replay.Media{Name: "n", Source: "s"},
		Path:        path,
		Sources: []monitorer.Source{{
			DeltaStats: []astikit.DeltaStat{{
				Metadata: astikit.DeltaStatMetadata{Name: "n"},
				Valuer: astikit.DeltaStatValuerFunc(func(d time.Duration) interface{} {
					w.Stop()
					return 1
				}),
			}},
			Name: "host",
		}},
	})
	require.NoError(t, err)
	r.Start(w.Context(), w.NewTask)
	w.Wait()
	require.NoError(t, r.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"media":{"name":"n","source":"s"}}
{"at":1,"new_stats":[{"id":1,"metadata":{"name":"n"},"source":"host"}],"stat_values":{"1":1}}`, strings.TrimSpace(string(b)))

	_, err = replay.New(w.Context(), replay.Options{Path: filepath.Join(t.TempDir(), "missing", "replay.txt")})
	require.Error(t, err)
}
