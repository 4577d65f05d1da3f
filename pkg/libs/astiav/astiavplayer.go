package astiavplayer

import (
	"context"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

var (
	NanosecondRational = astiav.NewRational(1, 1e9)
)

// Format context timestamps are expressed in microseconds
const avTimeBase = 1000000

const (
	DeltaStatNameAllocatedFrames = "astiavplayer.allocated.frames"
	DeltaStatNameDecodedFrames   = "astiavplayer.decoded.frames"
	DeltaStatNameDecodedRate     = "astiavplayer.decoded.rate"
	DeltaStatNameFilteredFrames  = "astiavplayer.filtered.frames"
)

func logWarn(ctx context.Context, l astikit.CompleteLogger, format string, args ...interface{}) {
	// Create message
	msg := fmt.Sprintf(format, args...)

	// Repeated patterns are merged by the log interceptor
	if li := activeLogInterceptor(); li != nil {
		li.write(ctx, astikit.LoggerLevelWarn, format, msg)
		return
	}

	// Log
	l.WarnC(ctx, msg)
}

func durationToTimeBase(d time.Duration, t astiav.Rational) (i int64, r time.Duration) {
	// Get duration expressed in stream timebase
	// We need to make sure it's rounded to the nearest smaller int
	i = astiav.RescaleQRnd(d.Nanoseconds(), NanosecondRational, t, astiav.RoundingDown)

	// Update remainder
	r = d - time.Duration(astiav.RescaleQ(i, t, NanosecondRational))
	return
}

func timeBaseToDuration(i int64, t astiav.Rational) time.Duration {
	return time.Duration(astiav.RescaleQ(i, t, NanosecondRational))
}

func avTimeBaseToDuration(i int64) time.Duration {
	return time.Duration(i) * (time.Second / avTimeBase)
}
