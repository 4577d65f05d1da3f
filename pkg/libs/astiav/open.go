package astiavplayer

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplayer/pkg/astiplayer"
	"golang.org/x/sync/errgroup"
)

// MediaSource is either an in-memory buffer or an url. A non-empty buffer takes precedence.
type MediaSource struct {
	Buffer []byte
	URL    string
}

type OpenOptions struct {
	// Allows adding track specific values (e.g. log fields) to the context of each track
	ContextAdapter func(ctx context.Context, mt astiav.MediaType) context.Context
	Dictionary     DictionaryOptions
	Features       astiplayer.Features
	Logger         astikit.StdLogger
	Source         MediaSource
}

func (o OpenOptions) trackContext(ctx context.Context, mt astiav.MediaType) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.ContextAdapter != nil {
		ctx = o.ContextAdapter(ctx, mt)
	}
	return ctx
}

type Tracks struct {
	Audio *AudioDecoder
	Video *VideoDecoder
}

// Returns nil if there's no usable audio track
func (ts Tracks) AudioTrack() astiplayer.AudioTrack {
	if ts.Audio == nil || !ts.Audio.Exists() {
		return nil
	}
	return ts.Audio
}

// Returns nil if there's no usable video track
func (ts Tracks) VideoTrack() astiplayer.VideoTrack {
	if ts.Video == nil || !ts.Video.Exists() {
		return nil
	}
	return ts.Video
}

func (ts Tracks) Close() error {
	if ts.Audio != nil {
		ts.Audio.Close()
	}
	if ts.Video != nil {
		ts.Video.Close()
	}
	return nil
}

// Open opens the audio and video tracks concurrently. Each track has its own demuxer.
func Open(ctx context.Context, o OpenOptions) (ts Tracks, err error) {
	// Open tracks
	var g errgroup.Group
	if !o.Features.DisableAudio {
		g.Go(func() (err error) {
			if ts.Audio, err = NewAudioDecoder(ctx, o); err != nil {
				err = fmt.Errorf("astiavplayer: creating audio decoder failed: %w", err)
			}
			return
		})
	}
	if !o.Features.DisableVideo {
		g.Go(func() (err error) {
			if ts.Video, err = NewVideoDecoder(ctx, o); err != nil {
				err = fmt.Errorf("astiavplayer: creating video decoder failed: %w", err)
			}
			return
		})
	}

	// Wait
	if err = g.Wait(); err != nil {
		ts.Close()
		ts = Tracks{}
		return
	}
	return
}
