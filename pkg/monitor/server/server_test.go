package server_test

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	"github.com/asticode/go-astiplayer/pkg/monitor/server"
	"github.com/asticode/go-astiws"
	"github.com/stretchr/testify/require"
)

type mockedPlayer struct {
	*astikit.EventManager
}

func newMockedPlayer() *mockedPlayer {
	return &mockedPlayer{EventManager: astikit.NewEventManager()}
}

func (p *mockedPlayer) ClockTime() time.Duration { return time.Second }
func (p *mockedPlayer) DeltaStats() []astikit.DeltaStat {
	return []astikit.DeltaStat{{
		Metadata: astikit.DeltaStatMetadata{Name: "sn"},
		Valuer:   astikit.DeltaStatValuerFunc(func(d time.Duration) interface{} { return 1 }),
	}}
}
func (p *mockedPlayer) Length() time.Duration     { return 10 * time.Second }
func (p *mockedPlayer) Loop() bool                { return false }
func (p *mockedPlayer) Muted() bool               { return false }
func (p *mockedPlayer) Pitch() float64            { return 1 }
func (p *mockedPlayer) Speed() float64            { return 1 }
func (p *mockedPlayer) Status() astiplayer.Status { return astiplayer.StatusPlaying }
func (p *mockedPlayer) Time() time.Duration       { return time.Second }
func (p *mockedPlayer) Volume() float64           { return 1 }

type mockedPusher struct {
	bs     [][]byte
	closed bool
	m      sync.Mutex
	served bool
}

func newMockedPusher() *mockedPusher {
	return &mockedPusher{}
}

func (p *mockedPusher) ServeHTTP(http.ResponseWriter, *http.Request) {
	p.served = true
}

func (p *mockedPusher) Close() error {
	p.closed = true
	return nil
}

func (p *mockedPusher) Write(b []byte) (int, error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.bs = append(p.bs, b)
	return len(b), nil
}

func (p *mockedPusher) messages() [][]byte {
	p.m.Lock()
	defer p.m.Unlock()
	return append([][]byte{}, p.bs...)
}

type mockedResponseWriter struct {
	b          []byte
	statusCode int
}

func newMockedResponseWriter() *mockedResponseWriter {
	return &mockedResponseWriter{}
}

func (rw *mockedResponseWriter) Header() http.Header {
	return http.Header{}
}

func (rw *mockedResponseWriter) Write(b []byte) (int, error) {
	rw.b = append(rw.b, b...)
	return len(b), nil
}

func (rw *mockedResponseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
}

const (
	expectedPlayer  = `"player":{"clock_time":1,"length":10,"loop":false,"muted":false,"pitch":1,"speed":1,"status":"playing","time":1,"volume":1}`
	expectedCatchUp = `{"at":5,"new_stats":[{"id":1,"metadata":{"name":"sn"},"source":"player"}],` + expectedPlayer + `,"stat_values":{"1":1},"media":{"name":"n","source":"s"}}
`
)

func TestServer(t *testing.T) {
	defer astikit.MockNow(func() time.Time {
		return time.Unix(5, 0)
	}).Close()

	w := astikit.NewWorker(astikit.WorkerOptions{})
	defer w.Stop()

	const addr = "127.0.0.1:40000"
	s1 := server.New(w.Context(), server.Options{
		Addr: addr,
		API: server.APIOptions{
			Headers:     map[string]string{"h": "v"},
			QueryParams: map[string]string{"q": "v"},
			URL:         "/api",
		},
		DeltaPeriod: time.Millisecond,
		Logger:      astikit.AdaptTestLogger(t),
		Media:       server.MediaOptions{Name: "n", Source: "s"},
		Player:      newMockedPlayer(),
		Push: server.PushOptions{
			QueryParams: map[string]string{"q": "v"},
			URL:         "/push",
		},
	})
	defer s1.Close()
	s1.Start(w.Context(), w.NewTask)

	ps := newMockedPusher()
	s2 := server.New(w.Context(), server.Options{
		API: server.APIOptions{
			Headers:     map[string]string{"h": "v"},
			QueryParams: map[string]string{"q": "v"},
			URL:         "https://test.com/api",
		},
		DeltaPeriod: time.Millisecond,
		Media:       server.MediaOptions{Name: "n", Source: "s"},
		Player:      newMockedPlayer(),
		Push: server.PushOptions{
			Pusher:      ps,
			QueryParams: map[string]string{"q": "v"},
			URL:         "https://test.com/push",
		},
	})
	s2.Start(w.Context(), w.NewTask)

	const httpAddr = "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(httpAddr + "/config.json")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	const wsAddr = "ws://" + addr + "/push"
	c := astiws.NewClient(astiws.ClientConfiguration{MaxMessageSize: 1e3}, astikit.AdaptTestLogger(t))
	defer c.Close()
	var (
		cbs [][]byte
		mc  sync.Mutex
	)
	c.SetMessageHandler(func(m []byte) error {
		mc.Lock()
		defer mc.Unlock()
		cbs = append(cbs, m)
		return nil
	})
	c.DialAndRead(w, astiws.DialAndReadOptions{Addr: wsAddr})

	require.Eventually(t, func() bool {
		mc.Lock()
		defer mc.Unlock()
		return len(cbs) > 0
	}, time.Second, 10*time.Millisecond)
	mc.Lock()
	require.Equal(t, `{"name":"delta","payload":{"at":5,`+expectedPlayer+`,"stat_values":{"1":1}}}`, string(cbs[0]))
	mc.Unlock()

	for _, v := range []struct {
		f func() (*http.Response, error)
		s string
	}{
		{
			f: func() (*http.Response, error) { return http.Get(httpAddr + "/config.json") },
			s: `{"api":{"headers":{"h":"v"},"query_params":{"q":"v"},"url":"/api"},"push":{"query_params":{"q":"v"},"url":"/push"}}
`,
		},
		{
			f: func() (*http.Response, error) { return http.Get(httpAddr + "/api/catch-up") },
			s: expectedCatchUp,
		},
	} {
		func() {
			resp, err := v.f()
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
			b, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, v.s, string(b))
		}()
	}

	require.Eventually(t, func() bool { return len(ps.messages()) > 1 }, time.Second, 10*time.Millisecond)
	for _, v := range []struct {
		f    func()
		h    http.Handler
		path string
		s    string
	}{
		{
			h: s2.ServeAPICatchUp(),
			s: expectedCatchUp,
		},
		{
			f: func() {
				require.True(t, ps.served)
				bs := ps.messages()
				require.Equal(t, `{"name":"delta","payload":{"at":5,"new_stats":[{"id":1,"metadata":{"name":"sn"},"source":"player"}],`+expectedPlayer+`,"stat_values":{"1":1}}}`, string(bs[0]))
				require.Equal(t, `{"name":"delta","payload":{"at":5,`+expectedPlayer+`,"stat_values":{"1":1}}}`, string(bs[1]))
			},
			h: s2.ServePush(),
		},
		{
			h:    s2.ServeConfig(),
			path: "/config.json",
			s: `{"api":{"headers":{"h":"v"},"query_params":{"q":"v"},"url":"https://test.com/api"},"push":{"query_params":{"q":"v"},"url":"https://test.com/push"}}
`,
		},
	} {
		rw := newMockedResponseWriter()
		v.h.ServeHTTP(rw, &http.Request{URL: &url.URL{Path: v.path}})
		if v.f != nil {
			v.f()
		} else if v.s != "" {
			require.Equal(t, v.s, string(rw.b))
		}
	}

	require.NoError(t, s2.Close())
	require.True(t, ps.closed)
}
