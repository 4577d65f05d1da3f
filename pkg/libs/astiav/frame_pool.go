package astiavplayer

import (
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// framePool recycles the frames filters write into. Frames are freed by the track's closer.
type framePool struct {
	c  *astikit.Closer
	cs *framePoolCumulativeStats
	fs []*astiav.Frame
	mp sync.Mutex // Locks fs
}

type framePoolCumulativeStats struct {
	allocatedFrames uint64
}

func newFramePool() *framePool {
	return &framePool{cs: &framePoolCumulativeStats{}}
}

func (fp *framePool) init(c *astikit.Closer) *framePool {
	fp.c = c
	return fp
}

func (fp *framePool) get() (f *astiav.Frame, err error) {
	// Lock
	fp.mp.Lock()
	defer fp.mp.Unlock()

	// Pool is empty
	if len(fp.fs) == 0 {
		// Allocate frame
		if f = astiav.AllocFrame(); f == nil {
			err = ErrAllocationFailure
			return
		}

		// Increment allocated frames
		atomic.AddUint64(&fp.cs.allocatedFrames, 1)

		// Make sure frame is freed properly
		fp.c.Add(f.Free)
		return
	}

	// Use last frame in pool
	f = fp.fs[len(fp.fs)-1]
	fp.fs = fp.fs[:len(fp.fs)-1]
	return
}

func (fp *framePool) put(f *astiav.Frame) {
	// Lock
	fp.mp.Lock()
	defer fp.mp.Unlock()

	// Unref
	f.Unref()

	// Append
	fp.fs = append(fp.fs, f)
}

func (fp *framePool) deltaStats() []astikit.DeltaStat {
	return []astikit.DeltaStat{
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of allocated frames",
				Label:       "Allocated frames",
				Name:        DeltaStatNameAllocatedFrames,
				Unit:        "f",
			},
			Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&fp.cs.allocatedFrames),
		},
	}
}
