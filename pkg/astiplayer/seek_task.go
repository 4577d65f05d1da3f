package astiplayer

import (
	"context"
	"sync"
	"time"
)

// SeekTask tracks a seek running in the background. Only the last issued task of a track is meaningful:
// issuing a new one cancels the previous.
type SeekTask struct {
	cancel context.CancelFunc
	ctx    context.Context
	done   chan struct{}
	m      sync.Mutex // Locks ok
	o      sync.Once
	ok     bool
	t      time.Duration
}

func NewSeekTask(ctx context.Context, t time.Duration) *SeekTask {
	st := &SeekTask{
		done: make(chan struct{}),
		t:    t,
	}
	st.ctx, st.cancel = context.WithCancel(ctx)
	return st
}

func NewCompletedSeekTask(t time.Duration, ok bool) *SeekTask {
	st := NewSeekTask(context.Background(), t)
	st.Complete(ok)
	return st
}

func (st *SeekTask) Time() time.Duration {
	return st.t
}

func (st *SeekTask) Context() context.Context {
	return st.ctx
}

func (st *SeekTask) Cancel() {
	st.cancel()
	st.Complete(false)
}

func (st *SeekTask) Cancelled() bool {
	return st.ctx.Err() != nil
}

// Only the first call has an effect
func (st *SeekTask) Complete(ok bool) {
	st.o.Do(func() {
		st.m.Lock()
		st.ok = ok
		st.m.Unlock()
		close(st.done)
	})
}

func (st *SeekTask) Done() <-chan struct{} {
	return st.done
}

// Completed returns true once the task has run to completion without being cancelled, whatever its result
func (st *SeekTask) Completed() bool {
	select {
	case <-st.done:
		return !st.Cancelled()
	default:
		return false
	}
}

func (st *SeekTask) Wait() bool {
	<-st.done
	st.m.Lock()
	defer st.m.Unlock()
	return st.ok
}
