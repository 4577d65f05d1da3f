package astiplayer

import "github.com/asticode/go-astikit"

const (
	EventNamePlayerClosed   astikit.EventName = "astiplayer.player.closed"
	EventNamePlayerFinished astikit.EventName = "astiplayer.player.finished"
	EventNamePlayerLooped   astikit.EventName = "astiplayer.player.looped"
	EventNamePlayerPaused   astikit.EventName = "astiplayer.player.paused"
	EventNamePlayerPlaying  astikit.EventName = "astiplayer.player.playing"
	// Payload is the clock time as a time.Duration
	EventNamePlayerSeeked astikit.EventName = "astiplayer.player.seeked"
)
