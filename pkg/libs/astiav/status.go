package astiavplayer

type TrackStatus uint32

// Must be in order of execution
const (
	TrackStatusUninitialized TrackStatus = iota
	TrackStatusOpened
	TrackStatusReady
	TrackStatusStreaming
	TrackStatusSeeking
	TrackStatusFlushed
	TrackStatusDisposed
)

func (s TrackStatus) String() string {
	switch s {
	case TrackStatusUninitialized:
		return "uninitialized"
	case TrackStatusOpened:
		return "opened"
	case TrackStatusReady:
		return "ready"
	case TrackStatusStreaming:
		return "streaming"
	case TrackStatusSeeking:
		return "seeking"
	case TrackStatusFlushed:
		return "flushed"
	default:
		return "disposed"
	}
}
