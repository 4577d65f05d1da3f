package astiplayer

const (
	DeltaStatNameAudioPushedSamples   = "astiplayer.audio.pushed_samples"
	DeltaStatNameAudioPushedRate      = "astiplayer.audio.pushed_rate"
	DeltaStatNameClockResyncs         = "astiplayer.clock.resyncs"
	DeltaStatNameHostUsage            = "astiplayer.host.usage"
	DeltaStatNameVideoPresentedFrames = "astiplayer.video.presented_frames"
	DeltaStatNameVideoPresentedRate   = "astiplayer.video.presented_rate"
	DeltaStatNameVideoSkippedFrames   = "astiplayer.video.skipped_frames"
)

type DeltaStatHostUsageValue struct {
	CPU    DeltaStatHostCPUUsageValue    `json:"cpu"`
	Memory DeltaStatHostMemoryUsageValue `json:"memory"`
}

type DeltaStatHostCPUUsageValue struct {
	Individual []float64 `json:"individual"`
	Process    *float64  `json:"process,omitempty"`
	Total      float64   `json:"total"`
}

type DeltaStatHostMemoryUsageValue struct {
	Resident uint64 `json:"resident"`
	Total    uint64 `json:"total"`
	Used     uint64 `json:"used"`
	Virtual  uint64 `json:"virtual"`
}
