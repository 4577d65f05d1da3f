package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/asticode/go-astiws"
)

// Pusher receives every player delta, already marshaled
type Pusher interface {
	io.Writer
}

type pushEventName string

const (
	pushEventNameDelta pushEventName = "delta"
	pushEventNamePing  pushEventName = "ping"
)

type pushEvent struct {
	Name    pushEventName `json:"name"`
	Payload interface{}   `json:"payload"`
}

// deltaPusher broadcasts player deltas to websocket clients. Clients must ping to keep their
// connection alive.
type deltaPusher struct {
	sv *Server
	ws *astiws.Server
}

func (s *Server) newDeltaPusher() *deltaPusher {
	p := &deltaPusher{sv: s}
	p.ws = astiws.NewServer(astiws.ServerOptions{
		ClientAdapter:  p.adaptClient,
		Logger:         s.l,
		MaxMessageSize: 1e6,
	})
	return p
}

func (p *deltaPusher) Close() error {
	return p.ws.Close()
}

func (p *deltaPusher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.ws.ServeHTTP(w, r)
}

func (p *deltaPusher) adaptClient(c *astiws.Client) error {
	// Client lives as long as the player
	*c = *c.WithContext(p.sv.ctx)

	// Handle client messages
	c.SetMessageHandler(func(m []byte) error { return p.handleClientMessage(c, m) })
	return nil
}

func (p *deltaPusher) handleClientMessage(c *astiws.Client, m []byte) error {
	// Unmarshal
	var e pushEvent
	if err := json.Unmarshal(m, &e); err != nil {
		return fmt.Errorf("server: unmarshaling client message failed: %w", err)
	}

	// Only pings are expected
	if e.Name != pushEventNamePing {
		p.sv.l.DebugCf(p.sv.ctx, "server: ignoring client message %s", e.Name)
		return nil
	}

	// Extend connection
	if err := c.ExtendConnection(); err != nil {
		return fmt.Errorf("server: extending client connection failed: %w", err)
	}
	return nil
}

// Write sends the delta to every client. A failing client doesn't prevent the others from receiving it.
func (p *deltaPusher) Write(b []byte) (int, error) {
	var errs []error
	for _, c := range p.ws.Clients() {
		if err := c.WriteText(b); err != nil {
			errs = append(errs, fmt.Errorf("server: writing delta to client failed: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return 0, err
	}
	return len(b), nil
}
