package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	astiavplayer "github.com/asticode/go-astiplayer/pkg/libs/astiav"
	"gopkg.in/yaml.v3"
)

type Configuration struct {
	Audio    AudioConfiguration    `yaml:"audio"`
	Features FeaturesConfiguration `yaml:"features"`
	Input    InputConfiguration    `yaml:"input"`
	Log      LogConfiguration      `yaml:"log"`
	Monitor  MonitorConfiguration  `yaml:"monitor"`
	Player   PlayerConfiguration   `yaml:"player"`
	Snapshot SnapshotConfiguration `yaml:"snapshot"`
}

type AudioConfiguration struct {
	Latency time.Duration `yaml:"latency"`
}

type FeaturesConfiguration struct {
	DisableAudio         bool `yaml:"disable_audio"`
	DisableFrameSkipping bool `yaml:"disable_frame_skipping"`
	DisableVideo         bool `yaml:"disable_video"`
	SyncVideoSeek        bool `yaml:"sync_video_seek"`
}

func (c FeaturesConfiguration) features() astiplayer.Features {
	return astiplayer.Features{
		DisableAudio:         c.DisableAudio,
		DisableFrameSkipping: c.DisableFrameSkipping,
		DisableVideo:         c.DisableVideo,
		SyncVideoSeek:        c.SyncVideoSeek,
	}
}

type InputConfiguration struct {
	// Comma separated demuxer options such as "probesize=32,analyzeduration=0"
	Dictionary string `yaml:"dictionary"`
	// Reads the whole file first and plays it from memory
	InMemory bool   `yaml:"in_memory"`
	Path     string `yaml:"path"`
}

func (c InputConfiguration) dictionary() astiavplayer.DictionaryOptions {
	if c.Dictionary == "" {
		return astiavplayer.DictionaryOptions{}
	}
	return astiavplayer.NewCommaDictionaryOptions("%s", c.Dictionary)
}

func (c InputConfiguration) mediaSource() (s astiavplayer.MediaSource, err error) {
	// Not in memory
	if !c.InMemory {
		s.URL = c.Path
		return
	}

	// Read file
	if s.Buffer, err = os.ReadFile(c.Path); err != nil {
		err = fmt.Errorf("main: reading %s failed: %w", c.Path, err)
		return
	}
	return
}

type LogConfiguration struct {
	Level      string                `yaml:"level"`
	Libav      string                `yaml:"libav"`
	LibavMerge LogMergeConfiguration `yaml:"libav_merge"`
}

type LogMergeConfiguration struct {
	AllowedCount uint          `yaml:"allowed_count"`
	Buffer       time.Duration `yaml:"buffer"`
}

type MonitorConfiguration struct {
	// Serves the monitor api and push when not empty
	Addr        string        `yaml:"addr"`
	DeltaPeriod time.Duration `yaml:"delta_period"`
	HostUsage   bool          `yaml:"host_usage"`
	// Writes deltas to this file when not empty
	ReplayPath string `yaml:"replay_path"`
}

type PlayerConfiguration struct {
	Loop       bool          `yaml:"loop"`
	Muted      bool          `yaml:"muted"`
	Pitch      float64       `yaml:"pitch"`
	Seek       time.Duration `yaml:"seek"`
	Speed      float64       `yaml:"speed"`
	TickPeriod time.Duration `yaml:"tick_period"`
	Volume     float64       `yaml:"volume"`
}

type SnapshotConfiguration struct {
	// Snapshots are written only when not empty
	Dir      string        `yaml:"dir"`
	MaxWidth int           `yaml:"max_width"`
	Period   time.Duration `yaml:"period"`
}

func Defaults() Configuration {
	return Configuration{
		Audio: AudioConfiguration{Latency: 200 * time.Millisecond},
		Log: LogConfiguration{
			Level: "info",
			Libav: "warning",
			LibavMerge: LogMergeConfiguration{
				AllowedCount: 5,
				Buffer:       10 * time.Second,
			},
		},
		Monitor: MonitorConfiguration{DeltaPeriod: 2 * time.Second},
		Player: PlayerConfiguration{
			Pitch:      1,
			Speed:      1,
			TickPeriod: 10 * time.Millisecond,
			Volume:     1,
		},
		Snapshot: SnapshotConfiguration{Period: time.Second},
	}
}

// Load merges the yaml file located at path over the defaults. An empty path returns the defaults.
func Load(path string) (c Configuration, err error) {
	// Defaults
	c = Defaults()

	// No path
	if path == "" {
		return
	}

	// Read file
	var b []byte
	if b, err = os.ReadFile(path); err != nil {
		err = fmt.Errorf("main: reading %s failed: %w", path, err)
		return
	}

	// Unmarshal
	if err = yaml.Unmarshal(b, &c); err != nil {
		err = fmt.Errorf("main: unmarshaling %s failed: %w", path, err)
		return
	}
	return
}

func (c Configuration) validate() error {
	if c.Input.Path == "" {
		return errors.New("main: no input provided")
	}
	if c.Player.TickPeriod <= 0 {
		return errors.New("main: tick period must be positive")
	}
	if c.Features.DisableAudio && c.Features.DisableVideo {
		return errors.New("main: audio and video can't be both disabled")
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("main: parsing log level failed: %w", err)
	}
	if _, err := parseLibavLogLevel(c.Log.Libav); err != nil {
		return fmt.Errorf("main: parsing libav log level failed: %w", err)
	}
	return nil
}

func parseLogLevel(s string) (astilog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return astilog.LevelDebug, nil
	case "", "info":
		return astilog.LevelInfo, nil
	case "warn", "warning":
		return astilog.LevelWarn, nil
	case "error":
		return astilog.LevelError, nil
	default:
		return astilog.LevelInfo, fmt.Errorf("main: unknown log level %s", s)
	}
}

func parseLibavLogLevel(s string) (astiav.LogLevel, error) {
	switch strings.ToLower(s) {
	case "quiet":
		return astiav.LogLevelQuiet, nil
	case "error":
		return astiav.LogLevelError, nil
	case "", "warn", "warning":
		return astiav.LogLevelWarning, nil
	case "info":
		return astiav.LogLevelInfo, nil
	case "verbose":
		return astiav.LogLevelVerbose, nil
	case "debug":
		return astiav.LogLevelDebug, nil
	default:
		return astiav.LogLevelWarning, fmt.Errorf("main: unknown libav log level %s", s)
	}
}
