package astiplayer

type Status uint32

const (
	StatusPaused Status = iota
	StatusPlaying
	StatusFinished
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusPaused:
		return "paused"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	default:
		return "closed"
	}
}
