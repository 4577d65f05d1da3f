package astiavplayer

import (
	"math"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

// Still image codecs. Their streams are flagged as thumbnails.
var thumbnailCodecKeywords = []string{
	"image", "bmp", "png", "jpeg", "jpg", "tiff", "gif", "webp", "exr", "dds", "sgi", "pbm", "ppm", "pgm",
	"qoi", "pcx", "sunrast", "targa", "xpm", "xbm", "psd", "svg", "pam", "pgmyuv", "pfm", "txd", "vbn",
}

func isThumbnailCodec(name string) bool {
	name = strings.ToLower(name)
	for _, k := range thumbnailCodecKeywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

func newRational(r astiav.Rational) astiplayer.Rational {
	return astiplayer.Rational{Den: r.Den(), Num: r.Num()}
}

// Stream start time, else format start time, else 0
func streamStartTime(r demuxerReader, s *astiav.Stream) time.Duration {
	if v := s.StartTime(); v != astiav.NoPtsValue {
		return timeBaseToDuration(v, s.TimeBase())
	}
	if v := r.StartTime(); v != astiav.NoPtsValue {
		return avTimeBaseToDuration(v)
	}
	return 0
}

// Stream duration, else format duration, else 0
func streamDuration(r demuxerReader, s *astiav.Stream) time.Duration {
	if v := s.Duration(); v > 0 && v != astiav.NoPtsValue {
		return timeBaseToDuration(v, s.TimeBase())
	}
	if v := r.Duration(); v > 0 && v != astiav.NoPtsValue {
		return avTimeBaseToDuration(v)
	}
	return 0
}

// Average frame rate, else real frame rate, else guessed frame rate, else 0
func streamFrameRate(r demuxerReader, s *astiav.Stream) float64 {
	if v := s.AvgFrameRate(); v.Num() > 0 && v.Den() > 0 {
		return v.Float64()
	}
	if v := s.RFrameRate(); v.Num() > 0 && v.Den() > 0 {
		return v.Float64()
	}
	if v := r.GuessFrameRate(s, nil); v.Num() > 0 && v.Den() > 0 {
		return v.Float64()
	}
	return 0
}

func newAudioStreamInfo(r demuxerReader, s *astiav.Stream, c *astiav.Codec) astiplayer.AudioStreamInfo {
	cp := s.CodecParameters()
	i := astiplayer.AudioStreamInfo{
		BitRate:       cp.BitRate(),
		ChannelLayout: cp.ChannelLayout().String(),
		Channels:      cp.ChannelLayout().Channels(),
		Duration:      streamDuration(r, s),
		FrameSize:     cp.FrameSize(),
		SampleFormat:  cp.SampleFormat().String(),
		SampleRate:    cp.SampleRate(),
		StartTime:     streamStartTime(r, s),
		TimeBase:      newRational(s.TimeBase()),
	}
	if c != nil {
		i.CodecName = c.Name()
	}

	// Sample count
	if nb := s.NbFrames(); nb > 0 && i.FrameSize > 0 {
		i.SampleCount = nb * int64(i.FrameSize)
	} else {
		i.SampleCount = int64(math.Round(i.Duration.Seconds() * float64(i.SampleRate)))
	}
	return i
}

func newVideoStreamInfo(r demuxerReader, s *astiav.Stream, c *astiav.Codec) astiplayer.VideoStreamInfo {
	cp := s.CodecParameters()
	i := astiplayer.VideoStreamInfo{
		BitRate:     cp.BitRate(),
		ColorSpace:  cp.ColorSpace().String(),
		Duration:    streamDuration(r, s),
		FrameRate:   streamFrameRate(r, s),
		Height:      cp.Height(),
		PixelFormat: cp.PixelFormat().String(),
		StartTime:   streamStartTime(r, s),
		TimeBase:    newRational(s.TimeBase()),
		Width:       cp.Width(),
	}
	if c != nil {
		i.CodecName = c.Name()
		i.Thumbnail = isThumbnailCodec(i.CodecName)
	}

	// Frame count
	if nb := s.NbFrames(); nb > 0 {
		i.FrameCount = nb
	} else {
		i.FrameCount = int64(math.Round(i.Duration.Seconds() * i.FrameRate))
	}
	return i
}
