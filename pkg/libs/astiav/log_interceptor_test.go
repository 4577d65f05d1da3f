package astiavplayer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/require"
)

type testContextKey string

func TestLogInterceptorShouldHandleDefaultLevelsProperly(t *testing.T) {
	l := astikit.NewMockedLogger()
	l.SkipFunc = func(msg string) (skip bool) { return !strings.HasPrefix(msg, "libav: ") }
	li := NewLogInterceptor(LogInterceptorOptions{
		Level:  astiav.LogLevelDebug,
		Logger: l,
	})

	astiav.SetLogLevel(astiav.LogLevelInfo)
	li.Start(context.Background())
	astiav.Log(nil, astiav.LogLevelDebug, "")
	astiav.Log(nil, astiav.LogLevelDebug, "0")
	astiav.Log(nil, astiav.LogLevelVerbose, "1")
	astiav.Log(nil, astiav.LogLevelInfo, "2")
	astiav.Log(nil, astiav.LogLevelWarning, "3")
	astiav.Log(nil, astiav.LogLevelError, "4")
	astiav.Log(nil, astiav.LogLevelFatal, "5")
	astiav.Log(nil, astiav.LogLevelPanic, "6")
	require.Equal(t, []astikit.MockedLoggerItem{
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelDebug, Message: "libav: 0"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelDebug, Message: "libav: 1"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelInfo, Message: "libav: 2"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelWarn, Message: "libav: 3"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelError, Message: "libav: 4"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelError, Message: "libav: FATAL! 5"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelError, Message: "libav: PANIC! 6"},
	}, l.Items)
	require.Same(t, li, activeLogInterceptor())

	require.NoError(t, li.Close())
	require.Equal(t, astiav.LogLevelInfo, astiav.GetLogLevel())
	require.Nil(t, activeLogInterceptor())
	l.Items = []astikit.MockedLoggerItem{}
	astiav.Log(nil, astiav.LogLevelInfo, "uncatched\n")
	require.Empty(t, l.Items)
}

func TestLogInterceptorShouldHandleLevelFuncProperly(t *testing.T) {
	l := astikit.NewMockedLogger()
	l.SkipFunc = func(msg string) (skip bool) { return !strings.HasPrefix(msg, "libav: ") }
	li := NewLogInterceptor(LogInterceptorOptions{
		Level: astiav.LogLevelWarning,
		LevelFunc: func(l astiav.LogLevel) (ll astikit.LoggerLevel, processed bool, stop bool) {
			switch l {
			case astiav.LogLevelError:
				ll = astikit.LoggerLevelWarn
				processed = true
			case astiav.LogLevelFatal:
				stop = true
			}
			return
		},
		Logger: l,
	})
	defer li.Close()

	astiav.Log(nil, astiav.LogLevelWarning, "1\n")
	li.Start(context.Background())
	astiav.Log(nil, astiav.LogLevelInfo, "2")
	astiav.Log(nil, astiav.LogLevelWarning, "3")
	astiav.Log(nil, astiav.LogLevelError, "4")
	astiav.Log(nil, astiav.LogLevelFatal, "5")
	require.Equal(t, []astikit.MockedLoggerItem{
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelWarn, Message: "libav: 3"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelWarn, Message: "libav: 4"},
	}, l.Items)
}

func TestLogInterceptorShouldAttributeLogsToTracks(t *testing.T) {
	l := astikit.NewMockedLogger()
	l.SkipFunc = func(msg string) (skip bool) { return !strings.HasPrefix(msg, "libav: ") }
	li := NewLogInterceptor(LogInterceptorOptions{
		Level:  astiav.LogLevelInfo,
		Logger: l,
	})
	defer li.Close()
	ctx := context.WithValue(context.Background(), testContextKey("track"), "audio")
	f1 := astiav.AllocFilterGraph()
	defer f1.Free()
	classers.set(f1, ctx)
	defer classers.del(f1)
	f2 := astiav.AllocFilterGraph()
	defer f2.Free()

	li.Start(context.Background())
	astiav.Log(nil, astiav.LogLevelInfo, " 1 ")
	astiav.Log(nil, astiav.LogLevelInfo, " %s ", "2")
	astiav.Log(nil, astiav.LogLevelInfo, " 3 %s ", "arg")
	astiav.Log(f1, astiav.LogLevelInfo, "4")
	astiav.Log(f2, astiav.LogLevelInfo, "5")
	require.Equal(t, []astikit.MockedLoggerItem{
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelInfo, Message: "libav: 1"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelInfo, Message: "libav: 2"},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelInfo, Message: "libav: 3 arg"},
		{Context: ctx, LoggerLevel: astikit.LoggerLevelInfo, Message: fmt.Sprintf("libav: 4: %s", f1.Class())},
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelInfo, Message: fmt.Sprintf("libav: 5: %s", f2.Class())},
	}, l.Items)
}

func TestLogInterceptorShouldMergeLogsProperly(t *testing.T) {
	var seconds int64
	defer astikit.MockNow(func() time.Time {
		return time.Unix(seconds, 0)
	}).Close()
	tk := astikit.MockTickers()
	defer tk.Close()

	l := astikit.NewMockedLogger()
	l.SkipFunc = func(msg string) (skip bool) {
		return !strings.HasPrefix(msg, "libav: ") && !strings.HasPrefix(msg, "astiavplayer: ")
	}
	li := NewLogInterceptor(LogInterceptorOptions{
		Level:  astiav.LogLevelInfo,
		Logger: l,
		Merge: LogInterceptorMergeOptions{
			AllowedCount: 1,
			Buffer:       2 * time.Second,
		},
	})
	li.Start(context.Background())
	require.NoError(t, tk.Wait(time.Second))

	ctx := context.WithValue(context.Background(), testContextKey("track"), "video")
	seconds = 1
	astiav.Log(nil, astiav.LogLevelInfo, "fmt1 %s", "1")
	logWarn(ctx, li.l, "astiavplayer: fmt %d", 1)
	seconds = 2
	astiav.Log(nil, astiav.LogLevelInfo, "fmt1 %s", "2")
	logWarn(ctx, li.l, "astiavplayer: fmt %d", 2)
	astiav.Log(nil, astiav.LogLevelInfo, "fmt1 %s", "3")
	require.Equal(t, []astikit.MockedLoggerItem{
		{Context: li.ctx, LoggerLevel: astikit.LoggerLevelInfo, Message: "libav: fmt1 1"},
		{Context: ctx, LoggerLevel: astikit.LoggerLevelWarn, Message: "astiavplayer: fmt 1"},
	}, l.Items)
	l.Items = []astikit.MockedLoggerItem{}

	tk.Tick(time.Unix(3, 0))
	require.Len(t, l.Items, 2)
	require.Contains(t, l.Items, astikit.MockedLoggerItem{
		Context:     li.ctx,
		LoggerLevel: astikit.LoggerLevelInfo,
		Message:     "astiavplayer: pattern repeated 2 times: libav: fmt1 %s",
	})
	require.Contains(t, l.Items, astikit.MockedLoggerItem{
		Context:     ctx,
		LoggerLevel: astikit.LoggerLevelWarn,
		Message:     "astiavplayer: pattern repeated once: astiavplayer: fmt %d",
	})
	l.Items = []astikit.MockedLoggerItem{}

	seconds = 4
	logWarn(ctx, li.l, "astiavplayer: fmt %d", 3)
	require.NoError(t, li.Close())
	require.Equal(t, []astikit.MockedLoggerItem{
		{Context: ctx, LoggerLevel: astikit.LoggerLevelWarn, Message: "astiavplayer: fmt 3"},
	}, l.Items)

	l.Items = []astikit.MockedLoggerItem{}
	logWarn(ctx, li.l, "astiavplayer: fmt %d", 4)
	require.Equal(t, []astikit.MockedLoggerItem{
		{Context: ctx, LoggerLevel: astikit.LoggerLevelWarn, Message: "astiavplayer: fmt 4"},
	}, l.Items)
}
