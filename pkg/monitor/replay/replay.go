package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/monitor/monitorer"
)

// Replay writes player deltas in a file, one json object per line, so that a playback session can be
// inspected afterwards
type Replay struct {
	c   *astikit.Closer
	ctx context.Context
	l   astikit.CompleteLogger
	m   *monitorer.Monitorer
	w   io.Writer
}

type Options struct {
	DeltaPeriod time.Duration
	Logger      astikit.StdLogger
	Media       Media
	Path        string
	Player      monitorer.Player
	Sources     []monitorer.Source
}

type Media struct {
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
}

type header struct {
	Media Media `json:"media"`
}

func New(ctx context.Context, o Options) (r *Replay, err error) {
	// Create replay
	r = &Replay{
		c:   astikit.NewCloser(),
		ctx: ctx,
		l:   astikit.AdaptStdLogger(o.Logger),
	}

	// Create file
	var f *os.File
	if f, err = os.Create(o.Path); err != nil {
		err = fmt.Errorf("replay: creating %s failed: %w", o.Path, err)
		return
	}
	r.w = f

	// Make sure to close file
	r.c.AddWithError(f.Close)

	// Create monitorer
	r.m = monitorer.New(monitorer.MonitorerOptions{
		OnDelta: r.onDelta,
		Period:  o.DeltaPeriod,
		Player:  o.Player,
		Sources: o.Sources,
	})

	// Make sure to close monitorer
	r.c.Add(r.m.Close)

	// Write header
	r.write(header{Media: o.Media})
	return
}

func (r *Replay) Close() error {
	return r.c.Close()
}

func (r *Replay) Start(ctx context.Context, tc astikit.TaskCreator) {
	// Start monitorer
	tc().Do(func() { r.m.Start(ctx) })
}

func (r *Replay) onDelta(d monitorer.Delta) {
	r.write(d)
}

func (r *Replay) write(i interface{}) {
	// Marshal
	b, err := json.Marshal(i)
	if err != nil {
		r.l.WarnC(r.ctx, fmt.Errorf("replay: marshaling failed: %w", err))
		return
	}

	// Append new line
	b = append(b, []byte("\n")...)

	// Write
	if _, err = r.w.Write(b); err != nil {
		r.l.WarnC(r.ctx, fmt.Errorf("replay: writing in file failed: %w", err))
		return
	}
}
