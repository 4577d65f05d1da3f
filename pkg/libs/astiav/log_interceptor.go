package astiavplayer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// LogInterceptor routes libav logs to a logger, using the context of the track that emitted them. Only one
// interceptor can be active at a time.
type LogInterceptor struct {
	cancel        context.CancelFunc
	ctx           context.Context
	items         map[string]*logInterceptorItem // Indexed by key
	l             astikit.CompleteLogger
	mi            sync.Mutex // Locks items
	o             LogInterceptorOptions
	previousLevel *astiav.LogLevel
	wg            sync.WaitGroup
}

type logInterceptorItem struct {
	count     uint
	createdAt time.Time
	ctx       context.Context
	fmt       string
	key       string
	ll        astikit.LoggerLevel
	msg       string
	written   uint
}

func newLogInterceptorItem(ctx context.Context, ll astikit.LoggerLevel, fmt, key, msg string) *logInterceptorItem {
	return &logInterceptorItem{
		count:     1,
		createdAt: astikit.Now(),
		ctx:       ctx,
		fmt:       fmt,
		key:       key,
		ll:        ll,
		msg:       msg,
		written:   1,
	}
}

type LogInterceptorOptions struct {
	Level     astiav.LogLevel
	LevelFunc func(l astiav.LogLevel) (ll astikit.LoggerLevel, processed, stop bool)
	Logger    astikit.StdLogger
	Merge     LogInterceptorMergeOptions
}

type LogInterceptorMergeOptions struct {
	AllowedCount uint
	Buffer       time.Duration
}

func NewLogInterceptor(o LogInterceptorOptions) *LogInterceptor {
	return &LogInterceptor{
		ctx:   context.Background(),
		items: make(map[string]*logInterceptorItem),
		l:     astikit.AdaptStdLogger(o.Logger),
		o:     o,
	}
}

var (
	ali  *LogInterceptor
	mali sync.Mutex // Locks ali
)

func activeLogInterceptor() *LogInterceptor {
	mali.Lock()
	defer mali.Unlock()
	return ali
}

func (li *LogInterceptor) Start(ctx context.Context) {
	// Store context
	li.ctx, li.cancel = context.WithCancel(ctx)

	// Set log level
	ll := astiav.GetLogLevel()
	li.previousLevel = &ll
	astiav.SetLogLevel(li.o.Level)

	// Set log callback
	astiav.SetLogCallback(li.callback)
	setActiveLogInterceptor(li)

	// Start merger
	if li.o.Merge.Buffer > 0 {
		li.wg.Add(1)
		go func() {
			defer li.wg.Done()
			astikit.Tick(li.ctx, li.o.Merge.Buffer/10, li.tick)
		}()
	}
}

func setActiveLogInterceptor(v *LogInterceptor) {
	mali.Lock()
	defer mali.Unlock()
	ali = v
}

func (li *LogInterceptor) Close() error {
	// Stop merger
	if li.cancel != nil {
		li.cancel()
	}
	li.wg.Wait()

	// Reset libav
	if li.previousLevel != nil {
		astiav.SetLogLevel(*li.previousLevel)
		li.previousLevel = nil
	}
	astiav.ResetLogCallback()
	if activeLogInterceptor() == li {
		setActiveLogInterceptor(nil)
	}

	// Purge
	li.purge()
	return nil
}

func (li *LogInterceptor) callback(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
	// Process message
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}

	// Process format
	fmt = strings.TrimSpace(fmt)
	if fmt == "%s" {
		fmt = msg
	}

	// Get context
	ctx := li.ctx

	// Process classer
	if c != nil {
		if cl := c.Class(); cl != nil {
			msg += ": " + cl.String()
		}
		if v, ok := classers.get(c); ok {
			ctx = v
		}
	}

	// Get log level
	var ll astikit.LoggerLevel
	var processed bool
	if li.o.LevelFunc != nil {
		var stop bool
		if ll, processed, stop = li.o.LevelFunc(level); stop {
			return
		}
	}
	if !processed {
		switch level {
		case astiav.LogLevelDebug, astiav.LogLevelVerbose:
			ll = astikit.LoggerLevelDebug
		case astiav.LogLevelInfo:
			ll = astikit.LoggerLevelInfo
		case astiav.LogLevelError, astiav.LogLevelFatal, astiav.LogLevelPanic:
			if level == astiav.LogLevelFatal {
				msg = "FATAL! " + msg
			} else if level == astiav.LogLevelPanic {
				msg = "PANIC! " + msg
			}
			ll = astikit.LoggerLevelError
		case astiav.LogLevelWarning:
			ll = astikit.LoggerLevelWarn
		default:
			return
		}
	}

	// Add prefix
	fmt = "libav: " + fmt
	msg = "libav: " + msg

	// Write
	li.write(ctx, ll, fmt, msg)
}

func (li *LogInterceptor) write(ctx context.Context, ll astikit.LoggerLevel, fmt, msg string) {
	// Merge
	if li.o.Merge.Buffer > 0 {
		// Add item
		if write := li.addItem(ctx, ll, fmt, msg); !write {
			return
		}
	}

	// Write
	li.l.WriteC(ctx, ll, msg)
}

func (li *LogInterceptor) key(ll astikit.LoggerLevel, fmt string) string {
	return ll.String() + ":" + fmt
}

func (li *LogInterceptor) addItem(ctx context.Context, ll astikit.LoggerLevel, fmt, msg string) (write bool) {
	// Lock
	li.mi.Lock()
	defer li.mi.Unlock()

	// Create key
	key := li.key(ll, fmt)

	// Check whether item exists
	i, ok := li.items[key]
	if ok {
		i.count++
		if write = li.o.Merge.AllowedCount > 0 && i.count <= li.o.Merge.AllowedCount; write {
			i.written++
		}
		return
	}

	// Create item
	li.items[key] = newLogInterceptorItem(ctx, ll, fmt, key, msg)
	return true
}

func (li *LogInterceptor) tick(t time.Time) {
	// Lock
	li.mi.Lock()
	defer li.mi.Unlock()

	// Loop through items
	for _, i := range li.items {
		// Period has been reached
		if t.Sub(i.createdAt) >= li.o.Merge.Buffer {
			// Remove item
			li.removeItemUnlocked(i)
		}
	}
}

func (li *LogInterceptor) removeItemUnlocked(i *logInterceptorItem) {
	repeated := i.count - i.written
	if repeated > 1 {
		li.l.WriteC(i.ctx, i.ll, fmt.Sprintf("astiavplayer: pattern repeated %d times: %s", repeated, i.fmt))
	} else if repeated == 1 {
		li.l.WriteC(i.ctx, i.ll, "astiavplayer: pattern repeated once: "+i.fmt)
	}
	delete(li.items, i.key)
}

func (li *LogInterceptor) purge() {
	// Lock
	li.mi.Lock()
	defer li.mi.Unlock()

	// Loop through items
	for _, i := range li.items {
		li.removeItemUnlocked(i)
	}
}
