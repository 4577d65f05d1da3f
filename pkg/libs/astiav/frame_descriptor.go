package astiavplayer

import (
	"github.com/asticode/go-astiav"
)

// FrameDescriptor describes the frames entering a filter graph. Graphs are rebuilt when it changes.
type FrameDescriptor struct {
	MediaType astiav.MediaType
	TimeBase  astiav.Rational

	// Audio
	ChannelLayout astiav.ChannelLayout
	SampleFormat  astiav.SampleFormat
	SampleRate    int

	// Video
	ColorRange        astiav.ColorRange
	ColorSpace        astiav.ColorSpace
	FrameRate         astiav.Rational
	Height            int
	PixelFormat       astiav.PixelFormat
	SampleAspectRatio astiav.Rational
	Width             int
}

func newFrameDescriptorFromCodecParameters(cp *astiav.CodecParameters, tb astiav.Rational) FrameDescriptor {
	fd := FrameDescriptor{
		MediaType: cp.MediaType(),
		TimeBase:  tb,
	}
	switch fd.MediaType {
	case astiav.MediaTypeAudio:
		fd.ChannelLayout = cp.ChannelLayout()
		fd.SampleFormat = cp.SampleFormat()
		fd.SampleRate = cp.SampleRate()
	case astiav.MediaTypeVideo:
		fd.ColorRange = cp.ColorRange()
		fd.ColorSpace = cp.ColorSpace()
		fd.Height = cp.Height()
		fd.PixelFormat = cp.PixelFormat()
		fd.SampleAspectRatio = cp.SampleAspectRatio()
		fd.Width = cp.Width()
	}
	return fd
}

func newFrameDescriptorFromFrame(f *astiav.Frame, mt astiav.MediaType, tb astiav.Rational) FrameDescriptor {
	fd := FrameDescriptor{
		MediaType: mt,
		TimeBase:  tb,
	}
	switch fd.MediaType {
	case astiav.MediaTypeAudio:
		fd.ChannelLayout = f.ChannelLayout()
		fd.SampleFormat = f.SampleFormat()
		fd.SampleRate = f.SampleRate()
	case astiav.MediaTypeVideo:
		fd.ColorRange = f.ColorRange()
		fd.ColorSpace = f.ColorSpace()
		fd.Height = f.Height()
		fd.PixelFormat = f.PixelFormat()
		fd.SampleAspectRatio = f.SampleAspectRatio()
		fd.Width = f.Width()
	}
	return fd
}

// Frame rate is not carried by frames and is therefore ignored
func (d FrameDescriptor) equal(i FrameDescriptor) bool {
	if d.MediaType != i.MediaType || d.TimeBase.Float64() != i.TimeBase.Float64() {
		return false
	}
	switch d.MediaType {
	case astiav.MediaTypeAudio:
		return d.ChannelLayout.Equal(i.ChannelLayout) &&
			d.SampleFormat == i.SampleFormat &&
			d.SampleRate == i.SampleRate
	case astiav.MediaTypeVideo:
		return d.ColorRange == i.ColorRange &&
			d.ColorSpace == i.ColorSpace &&
			d.Height == i.Height &&
			d.PixelFormat == i.PixelFormat &&
			d.SampleAspectRatio == i.SampleAspectRatio &&
			d.Width == i.Width
	default:
		return true
	}
}

func (d FrameDescriptor) setBuffersrcParameters(p *astiav.BuffersrcFilterContextParameters) {
	p.SetTimeBase(d.TimeBase)
	switch d.MediaType {
	case astiav.MediaTypeAudio:
		p.SetChannelLayout(d.ChannelLayout)
		p.SetSampleFormat(d.SampleFormat)
		p.SetSampleRate(d.SampleRate)
	case astiav.MediaTypeVideo:
		p.SetColorRange(d.ColorRange)
		p.SetColorSpace(d.ColorSpace)
		if d.FrameRate.Float64() > 0 {
			p.SetFramerate(d.FrameRate)
		}
		p.SetHeight(d.Height)
		p.SetPixelFormat(d.PixelFormat)
		p.SetSampleAspectRatio(d.SampleAspectRatio)
		p.SetWidth(d.Width)
	}
}
