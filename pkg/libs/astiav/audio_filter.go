package astiavplayer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
)

// Audio is always handed out as interleaved stereo floats at the source sample rate
const audioFilterOutputFormat = "aformat=sample_fmts=flt:channel_layouts=stereo"

func audioFilterContent(sampleRate int, pitch, speed float64) string {
	// Pitch is applied by resampling
	ss := []string{
		"asetrate=" + strconv.Itoa(int(math.Round(float64(sampleRate)*pitch))),
		"aresample=" + strconv.Itoa(sampleRate),
	}

	// atempo only accepts values in [0.5, 2]
	r := speed
	for r < 0.5 {
		ss = append(ss, "atempo=0.5")
		r /= 0.5
	}
	for r > 2 {
		ss = append(ss, "atempo=2")
		r /= 2
	}
	ss = append(ss, "atempo="+strconv.FormatFloat(r, 'f', -1, 64), audioFilterOutputFormat)
	return strings.Join(ss, ",")
}

// audioFilter applies pitch and speed. It's never mutated: a new one is created when pitch, speed or
// the incoming frame descriptor change.
type audioFilter struct {
	eof      bool
	fd       FrameDescriptor
	fg       *filterGraph
	filtered *uint64
	fp       *framePool
	nextTime time.Duration
	pitch    float64
	speed    float64
	started  bool
}

type audioFilterOptions struct {
	ctx      context.Context
	fd       FrameDescriptor
	filtered *uint64
	fp       *framePool
	pitch    float64
	speed    float64
}

func newAudioFilter(o audioFilterOptions) (af *audioFilter, err error) {
	// Create audio filter
	af = &audioFilter{
		fd:       o.fd,
		filtered: o.filtered,
		fp:       o.fp,
		pitch:    o.pitch,
		speed:    o.speed,
	}

	// Create filter graph
	if af.fg, err = newFilterGraph(filterGraphOptions{
		content: af.content(),
		ctx:     o.ctx,
		fd:      o.fd,
	}); err != nil {
		err = fmt.Errorf("astiavplayer: creating filter graph failed: %w", err)
		return
	}
	return
}

func (af *audioFilter) content() string {
	return audioFilterContent(af.fd.SampleRate, af.pitch, af.speed)
}

func (af *audioFilter) close() {
	af.fg.close()
}

// Output frames are stamped contiguously starting from the time of the first frame pushed
func (af *audioFilter) push(f *astiav.Frame, t time.Duration) error {
	if af.eof {
		return errors.New("astiavplayer: filter has been flushed")
	}
	if !af.started {
		af.nextTime = t
		af.started = true
	}
	return af.fg.push(f)
}

func (af *audioFilter) pull(fn func(f astiplayer.AudioFrame)) error {
	// Get frame
	f, err := af.fp.get()
	if err != nil {
		return fmt.Errorf("astiavplayer: getting frame failed: %w", err)
	}
	defer af.fp.put(f)

	// Loop
	for {
		// Get frame
		if err := af.fg.pull(f); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("astiavplayer: getting frame failed: %w", err)
		}

		// Copy samples
		ss, err := audioFrameSamples(f)
		f.Unref()
		if err != nil {
			return fmt.Errorf("astiavplayer: copying samples failed: %w", err)
		}

		// Create frame
		o := astiplayer.AudioFrame{
			Pitch:      af.pitch,
			SampleRate: af.fd.SampleRate,
			Samples:    ss,
			Speed:      af.speed,
			Time:       af.nextTime,
		}

		// Update next time
		af.nextTime += af.mediaDuration(o.SampleCount())

		// Callback
		atomic.AddUint64(af.filtered, 1)
		fn(o)
	}
}

// Flushes the filter and pulls everything it was still holding
func (af *audioFilter) drain(fn func(f astiplayer.AudioFrame)) error {
	if !af.eof {
		af.eof = true
		if err := af.fg.push(nil); err != nil {
			return fmt.Errorf("astiavplayer: flushing filter failed: %w", err)
		}
	}
	return af.pull(fn)
}

func (af *audioFilter) mediaDuration(n int) time.Duration {
	if af.fd.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(af.fd.SampleRate) * af.pitch * af.speed * float64(time.Second))
}

func audioFrameSamples(f *astiav.Frame) ([]float32, error) {
	// Get bytes
	b, err := f.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("astiavplayer: getting bytes failed: %w", err)
	}

	// Get number of samples
	n := f.NbSamples() * 2
	if len(b)/4 < n {
		n = len(b) / 4
	}

	// Convert
	ss := make([]float32, n)
	for i := range ss {
		ss[i] = math.Float32frombits(binary.NativeEndian.Uint32(b[i*4:]))
	}
	return ss, nil
}
