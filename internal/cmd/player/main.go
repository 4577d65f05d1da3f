package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	astiavplayer "github.com/asticode/go-astiplayer/pkg/libs/astiav"
	"github.com/asticode/go-astiplayer/pkg/monitor/monitorer"
	"github.com/asticode/go-astiplayer/pkg/monitor/replay"
	"github.com/asticode/go-astiplayer/pkg/monitor/server"
	nullsink "github.com/asticode/go-astiplayer/pkg/sinks/null"
	"github.com/asticode/go-astiplayer/pkg/sinks/snapshot"
	"github.com/asticode/go-astiplayer/pkg/stats/psutil"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(run).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(action cli.ActionFunc) *cli.App {
	return &cli.App{
		Name:      "player",
		Usage:     "Play a media file headless with a real-time clock",
		ArgsUsage: "<input path or url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "yaml configuration file"},
			&cli.BoolFlag{Name: "in-memory", Usage: "load the input in memory before playing it"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: "loop", Aliases: []string{"l"}, Usage: "restart from the beginning once finished"},
			&cli.StringFlag{Name: "monitor-addr", Usage: "serve the monitor on this address"},
			&cli.BoolFlag{Name: "mute", Usage: "mute audio"},
			&cli.BoolFlag{Name: "no-audio", Usage: "disable audio"},
			&cli.BoolFlag{Name: "no-video", Usage: "disable video"},
			&cli.Float64Flag{Name: "pitch", Usage: "pitch between 0.25 and 2"},
			&cli.StringFlag{Name: "replay", Usage: "write monitor deltas to this file"},
			&cli.DurationFlag{Name: "seek", Aliases: []string{"s"}, Usage: "start position"},
			&cli.StringFlag{Name: "snapshot-dir", Usage: "write png snapshots of presented frames in this dir"},
			&cli.Float64Flag{Name: "speed", Usage: "speed between 0.25 and 2"},
			&cli.Float64Flag{Name: "volume", Usage: "volume between 0 and 1"},
		},
		Action: action,
	}
}

// configuration loads the configuration file and overrides it with the flags that have been set
func configuration(c *cli.Context) (cfg Configuration, err error) {
	// Load
	if cfg, err = Load(c.String("config")); err != nil {
		err = fmt.Errorf("main: loading configuration failed: %w", err)
		return
	}

	// Input
	if c.Args().Present() {
		cfg.Input.Path = c.Args().First()
	}
	if c.IsSet("in-memory") {
		cfg.Input.InMemory = c.Bool("in-memory")
	}

	// Features
	if c.IsSet("no-audio") {
		cfg.Features.DisableAudio = c.Bool("no-audio")
	}
	if c.IsSet("no-video") {
		cfg.Features.DisableVideo = c.Bool("no-video")
	}

	// Log
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	// Monitor
	if c.IsSet("monitor-addr") {
		cfg.Monitor.Addr = c.String("monitor-addr")
	}
	if c.IsSet("replay") {
		cfg.Monitor.ReplayPath = c.String("replay")
	}

	// Player
	if c.IsSet("loop") {
		cfg.Player.Loop = c.Bool("loop")
	}
	if c.IsSet("mute") {
		cfg.Player.Muted = c.Bool("mute")
	}
	if c.IsSet("pitch") {
		cfg.Player.Pitch = c.Float64("pitch")
	}
	if c.IsSet("seek") {
		cfg.Player.Seek = c.Duration("seek")
	}
	if c.IsSet("speed") {
		cfg.Player.Speed = c.Float64("speed")
	}
	if c.IsSet("volume") {
		cfg.Player.Volume = c.Float64("volume")
	}

	// Snapshot
	if c.IsSet("snapshot-dir") {
		cfg.Snapshot.Dir = c.String("snapshot-dir")
	}

	// Validate
	if err = cfg.validate(); err != nil {
		err = fmt.Errorf("main: validating configuration failed: %w", err)
		return
	}
	return
}

func run(c *cli.Context) (err error) {
	// Get configuration
	var cfg Configuration
	if cfg, err = configuration(c); err != nil {
		return
	}

	// Create logger
	ll, _ := parseLogLevel(cfg.Log.Level)
	l := astilog.New(astilog.Configuration{
		AppName: "player",
		Level:   ll,
	})

	// Create worker
	w := astikit.NewWorker(astikit.WorkerOptions{Logger: l})
	w.HandleSignals(astikit.TermSignalHandler(w.Stop))

	// Create closer
	cl := astikit.NewCloser()
	defer func() {
		if cerr := cl.Close(); cerr != nil {
			l.Error(fmt.Errorf("main: closing failed: %w", cerr))
		}
	}()

	// Intercept libav logs
	lal, _ := parseLibavLogLevel(cfg.Log.Libav)
	li := astiavplayer.NewLogInterceptor(astiavplayer.LogInterceptorOptions{
		Level:  lal,
		Logger: l,
		Merge: astiavplayer.LogInterceptorMergeOptions{
			AllowedCount: cfg.Log.LibavMerge.AllowedCount,
			Buffer:       cfg.Log.LibavMerge.Buffer,
		},
	})
	li.Start(w.Context())
	cl.AddWithError(li.Close)

	// Create player
	var p *astiplayer.Player
	var ss sinks
	var ts astiavplayer.Tracks
	if p, ss, ts, err = newPlayer(w.Context(), cfg, l); err != nil {
		return
	}
	cl.AddWithError(ts.Close)
	cl.AddWithError(p.Close)

	// Monitor
	if err = monitor(w, cl, cfg, p, ts, l); err != nil {
		return
	}

	// Stop once finished
	p.On(astiplayer.EventNamePlayerFinished, func(payload interface{}) (delete bool) {
		l.Info("main: playback finished")
		w.Stop()
		return true
	})
	p.On(astiplayer.EventNamePlayerLooped, func(payload interface{}) (delete bool) {
		l.Info("main: playback looped")
		return
	})

	// Play
	pr := newProgress(p, l)
	p.Play()
	l.Infof("main: playing %s", cfg.Input.Path)

	// Tick
	t := w.NewTask()
	go func() {
		defer t.Done()
		last := astikit.Now()
		astikit.Tick(w.Context(), cfg.Player.TickPeriod, func(now time.Time) {
			p.Tick(now.Sub(last))
			last = now
			pr.update(now)
		})
	}()

	// Wait
	w.Wait()
	pr.close()

	// Log stats
	logStats(p, ss, l)
	return
}

type sinks struct {
	audio    *nullsink.AudioSink
	snapshot *snapshot.Sink
	video    *nullsink.VideoSink
}

func newPlayer(ctx context.Context, cfg Configuration, l astikit.StdLogger) (p *astiplayer.Player, ss sinks, ts astiavplayer.Tracks, err error) {
	// Get media source
	var s astiavplayer.MediaSource
	if s, err = cfg.Input.mediaSource(); err != nil {
		err = fmt.Errorf("main: getting media source failed: %w", err)
		return
	}

	// Open tracks
	if ts, err = astiavplayer.Open(ctx, astiavplayer.OpenOptions{
		ContextAdapter: func(ctx context.Context, mt astiav.MediaType) context.Context {
			return astilog.ContextWithFields(ctx, map[string]interface{}{
				"track": mt.String(),
			})
		},
		Dictionary: cfg.Input.dictionary(),
		Features:   cfg.Features.features(),
		Logger:     l,
		Source:     s,
	}); err != nil {
		err = fmt.Errorf("main: opening tracks failed: %w", err)
		return
	}

	// Create player options
	po := astiplayer.PlayerOptions{
		Features: cfg.Features.features(),
		Logger:   l,
		Loop:     cfg.Player.Loop,
	}

	// Audio
	if at := ts.AudioTrack(); at != nil {
		ss.audio = nullsink.NewAudioSink(nullsink.AudioSinkOptions{
			Latency:    cfg.Audio.Latency,
			SampleRate: at.Info().SampleRate,
		})
		po.Audio = at
		po.AudioSink = ss.audio
	}

	// Video
	if vt := ts.VideoTrack(); vt != nil {
		ss.video = nullsink.NewVideoSink()
		po.Video = vt
		po.VideoSink = ss.video

		// Snapshot
		if cfg.Snapshot.Dir != "" {
			if ss.snapshot, err = snapshot.New(snapshot.Options{
				Dir:      cfg.Snapshot.Dir,
				Logger:   l,
				MaxWidth: cfg.Snapshot.MaxWidth,
				Next:     ss.video,
				Period:   cfg.Snapshot.Period,
			}); err != nil {
				ts.Close() //nolint: errcheck
				err = fmt.Errorf("main: creating snapshot sink failed: %w", err)
				return
			}
			po.VideoSink = ss.snapshot
		}
	}

	// Create player
	if p, err = astiplayer.NewPlayer(po); err != nil {
		ts.Close() //nolint: errcheck
		err = fmt.Errorf("main: creating player failed: %w", err)
		return
	}

	// Apply settings
	p.SetPitch(cfg.Player.Pitch)
	p.SetSpeed(cfg.Player.Speed)
	p.SetVolume(cfg.Player.Volume)
	p.SetMute(cfg.Player.Muted)
	if cfg.Player.Seek > 0 {
		p.Seek(cfg.Player.Seek)
	}
	return
}

func monitor(w *astikit.Worker, cl *astikit.Closer, cfg Configuration, p *astiplayer.Player, ts astiavplayer.Tracks, l astikit.StdLogger) (err error) {
	// Nothing to do
	if cfg.Monitor.Addr == "" && cfg.Monitor.ReplayPath == "" {
		return
	}

	// Create sources
	var srcs []monitorer.Source
	if ts.Audio != nil && ts.Audio.Exists() {
		srcs = append(srcs, monitorer.Source{
			DeltaStats: ts.Audio.DeltaStats(),
			Name:       "audio decoder",
		})
	}
	if ts.Video != nil && ts.Video.Exists() {
		srcs = append(srcs, monitorer.Source{
			DeltaStats: ts.Video.DeltaStats(),
			Name:       "video decoder",
		})
	}
	if cfg.Monitor.HostUsage {
		var ds astikit.DeltaStat
		if ds, err = psutil.New(); err != nil {
			err = fmt.Errorf("main: creating host usage delta stat failed: %w", err)
			return
		}
		srcs = append(srcs, monitorer.Source{
			DeltaStats: []astikit.DeltaStat{ds},
			Name:       "host",
		})
	}

	// Server
	if cfg.Monitor.Addr != "" {
		s := server.New(w.Context(), server.Options{
			Addr:        cfg.Monitor.Addr,
			API:         server.APIOptions{URL: "/api"},
			DeltaPeriod: cfg.Monitor.DeltaPeriod,
			Logger:      l,
			Media: server.MediaOptions{
				Name:   filepath.Base(cfg.Input.Path),
				Source: cfg.Input.Path,
			},
			Player:  p,
			Push:    server.PushOptions{URL: "/push"},
			Sources: srcs,
		})
		cl.AddWithError(s.Close)
		s.Start(w.Context(), w.NewTask)
	}

	// Replay
	if cfg.Monitor.ReplayPath != "" {
		var r *replay.Replay
		if r, err = replay.New(w.Context(), replay.Options{
			DeltaPeriod: cfg.Monitor.DeltaPeriod,
			Logger:      l,
			Media: replay.Media{
				Name:   filepath.Base(cfg.Input.Path),
				Source: cfg.Input.Path,
			},
			Path:    cfg.Monitor.ReplayPath,
			Player:  p,
			Sources: srcs,
		}); err != nil {
			err = fmt.Errorf("main: creating replay failed: %w", err)
			return
		}
		cl.AddWithError(r.Close)
		r.Start(w.Context(), w.NewTask)
	}
	return
}

func logStats(p *astiplayer.Player, ss sinks, l astikit.StdLogger) {
	cl := astikit.AdaptStdLogger(l)
	cs := p.CumulativeStats()
	if cs.Audio != nil && ss.audio != nil {
		cl.Infof("main: audio: %d pushed samples, %d played samples, peak %.3f", cs.Audio.PushedSamples, ss.audio.Played(), ss.audio.Peak())
	}
	if cs.Video != nil && ss.video != nil {
		cl.Infof("main: video: %d presented frames, %d skipped frames, last frame at %s", cs.Video.PresentedFrames, cs.Video.SkippedFrames, ss.video.LastTime())
	}
	if ss.snapshot != nil {
		cl.Infof("main: %d snapshots written", ss.snapshot.Count())
	}
	cl.Infof("main: %d clock resyncs", cs.ClockResyncs)
}
