package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	"github.com/mattn/go-isatty"
)

type progressPlayer interface {
	Length() time.Duration
	Status() astiplayer.Status
	Time() time.Duration
}

// progress rewrites a single line on terminals and falls back to periodic logs otherwise
type progress struct {
	l        astikit.CompleteLogger
	last     time.Time
	p        progressPlayer
	period   time.Duration
	terminal bool
	w        io.Writer
	written  bool
}

func newProgress(p progressPlayer, l astikit.StdLogger) *progress {
	terminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	pr := &progress{
		l:        astikit.AdaptStdLogger(l),
		p:        p,
		period:   5 * time.Second,
		terminal: terminal,
		w:        os.Stderr,
	}
	if terminal {
		pr.period = 250 * time.Millisecond
	}
	return pr
}

func (pr *progress) line() string {
	return fmt.Sprintf("%s / %s (%s)", formatDuration(pr.p.Time()), formatDuration(pr.p.Length()), pr.p.Status())
}

func (pr *progress) update(now time.Time) {
	// Period has not been reached
	if !pr.last.IsZero() && now.Sub(pr.last) < pr.period {
		return
	}
	pr.last = now

	// Write
	if pr.terminal {
		fmt.Fprintf(pr.w, "\r\033[K%s", pr.line())
		pr.written = true
	} else {
		pr.l.Infof("main: %s", pr.line())
	}
}

func (pr *progress) close() {
	if pr.written {
		fmt.Fprintln(pr.w)
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Millisecond)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	ms := (d % time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
