package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/monitor/monitorer"
)

// Server exposes player deltas over http: a catch up route returning the current state and a push route
// streaming deltas as they're produced
type Server struct {
	c   *astikit.Closer
	ctx context.Context
	l   astikit.CompleteLogger
	m   *monitorer.Monitorer
	o   Options
	p   Pusher
	s   *http.Server
}

type Options struct {
	Addr        string
	API         APIOptions
	DeltaPeriod time.Duration
	Logger      astikit.StdLogger
	Media       MediaOptions
	Player      monitorer.Player
	Push        PushOptions
	Sources     []monitorer.Source
}

type APIOptions struct {
	Headers     map[string]string
	QueryParams map[string]string
	URL         string
}

// Describes what is played
type MediaOptions struct {
	Name   string
	Source string
}

type PushOptions struct {
	Pusher      Pusher
	QueryParams map[string]string
	URL         string
}

func New(ctx context.Context, o Options) *Server {
	// Create server
	s := &Server{
		c:   astikit.NewCloser(),
		ctx: ctx,
		l:   astikit.AdaptStdLogger(o.Logger),
		o:   o,
	}

	// Create monitorer
	s.m = monitorer.New(monitorer.MonitorerOptions{
		OnDelta: s.onDelta,
		Period:  o.DeltaPeriod,
		Player:  o.Player,
		Sources: o.Sources,
	})

	// Make sure monitorer is properly closed
	s.c.Add(s.m.Close)

	// Get pusher
	s.p = o.Push.Pusher
	if s.p == nil {
		s.p = s.newDeltaPusher()
	}

	// Make sure pusher is properly closed
	if v, ok := s.p.(io.Closer); ok {
		s.c.AddWithError(v.Close)
	}

	// Addr was provided
	// We need the pusher at that point
	if o.Addr != "" {
		// Create http server
		s.s = &http.Server{
			Addr:    o.Addr,
			Handler: s.handler(),
		}

		// Make sure http server is closed properly
		s.c.AddWithError(s.s.Close)
	}
	return s
}

func (s *Server) Close() error {
	return s.c.Close()
}

func (s *Server) Start(ctx context.Context, tc astikit.TaskCreator) {
	// Start http server
	if s.s != nil {
		// Do
		tc().Do(func() {
			// Log
			s.l.InfoCf(s.ctx, "server: serving on %s", s.o.Addr)

			// Serve
			var done = make(chan error)
			go func() {
				if err := s.s.ListenAndServe(); err != nil {
					done <- err
				}
			}()

			// Wait
			select {
			case <-ctx.Done():
			case err := <-done:
				if err != nil {
					s.l.WarnC(s.ctx, fmt.Errorf("server: serving on %s failed: %w", s.o.Addr, err))
				}
			}

			// Shutdown
			s.l.InfoCf(s.ctx, "server: shutting down server on %s", s.o.Addr)
			if err := s.s.Shutdown(context.Background()); err != nil {
				s.l.WarnC(s.ctx, fmt.Errorf("server: shutting down server on %s failed: %w", s.o.Addr, err))
			}
		})
	}

	// Start monitorer
	tc().Do(func() { s.m.Start(ctx) })
}

func (s *Server) handler() http.Handler {
	// Create mux
	m := http.NewServeMux()

	// Add config route
	m.Handle("/config.json", s.ServeConfig())

	// Add api routes
	if strings.HasPrefix(s.o.API.URL, "/") {
		m.Handle(s.o.API.URL+"/catch-up", s.ServeAPICatchUp())
	}

	// Add push route
	if strings.HasPrefix(s.o.Push.URL, "/") {
		m.Handle(s.o.Push.URL, s.ServePush())
	}
	return m
}

type apiCatchUp struct {
	monitorer.Delta
	Media apiCatchUpMedia `json:"media"`
}

type apiCatchUpMedia struct {
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
}

func (s *Server) ServeAPICatchUp() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Write
		if err := json.NewEncoder(w).Encode(apiCatchUp{
			Delta: s.m.CatchUp(),
			Media: apiCatchUpMedia{
				Name:   s.o.Media.Name,
				Source: s.o.Media.Source,
			},
		}); err != nil {
			s.l.WarnC(s.ctx, fmt.Errorf("server: writing api catch up body failed: %w", err))
			return
		}
	})
}

func (s *Server) ServePush() http.Handler {
	if h, ok := s.p.(http.Handler); ok {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
}

type config struct {
	API  configAPI  `json:"api"`
	Push configPush `json:"push"`
}

type configAPI struct {
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	URL         string            `json:"url,omitempty"`
}

type configPush struct {
	QueryParams map[string]string `json:"query_params,omitempty"`
	URL         string            `json:"url,omitempty"`
}

// Tells clients where the api and push routes are
func (s *Server) ServeConfig() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewEncoder(w).Encode(config{
			API: configAPI{
				Headers:     s.o.API.Headers,
				QueryParams: s.o.API.QueryParams,
				URL:         s.o.API.URL,
			},
			Push: configPush{
				QueryParams: s.o.Push.QueryParams,
				URL:         s.o.Push.URL,
			},
		}); err != nil {
			s.l.WarnC(s.ctx, fmt.Errorf("server: writing config body failed: %w", err))
			return
		}
	})
}

func (s *Server) onDelta(d monitorer.Delta) {
	// Marshal
	b, err := json.Marshal(pushEvent{
		Name:    pushEventNameDelta,
		Payload: d,
	})
	if err != nil {
		s.l.WarnC(s.ctx, fmt.Errorf("server: marshaling push event failed: %w", err))
		return
	}

	// Push
	if _, err := s.p.Write(b); err != nil {
		s.l.WarnC(s.ctx, fmt.Errorf("server: pushing failed: %w", err))
		return
	}
}
