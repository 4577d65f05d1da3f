package astiavplayer

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

var (
	ErrAllocationFailure = errors.New("astiavplayer: allocation failed")
	ErrDisposed          = errors.New("astiavplayer: track is disposed")
	ErrEmptyBuffer       = errors.New("astiavplayer: buffer is empty")
	ErrEndOfStream       = errors.New("astiavplayer: end of stream")
	ErrSeekFailure       = errors.New("astiavplayer: seek failed")
	ErrStreamNotFound    = errors.New("astiavplayer: stream not found")
)

// DecodeError wraps decoding failures. Transient errors concern a single packet and decoding can go on.
type DecodeError struct {
	Err       error
	Transient bool
}

func (e DecodeError) Error() string {
	if e.Transient {
		return fmt.Sprintf("astiavplayer: transient decode error: %s", e.Err)
	}
	return fmt.Sprintf("astiavplayer: decode error: %s", e.Err)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

// mapError makes sure no raw libav error crosses the public api
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAllocationFailure),
		errors.Is(err, ErrDisposed),
		errors.Is(err, ErrEmptyBuffer),
		errors.Is(err, ErrEndOfStream),
		errors.Is(err, ErrSeekFailure),
		errors.Is(err, ErrStreamNotFound):
		return err
	case errors.Is(err, astiav.ErrEof):
		return ErrEndOfStream
	case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrInvaliddata):
		return DecodeError{Err: err, Transient: true}
	case errors.Is(err, astiav.ErrEnomem):
		return fmt.Errorf("%w: %s", ErrAllocationFailure, err)
	}
	var de DecodeError
	if errors.As(err, &de) {
		return de
	}
	return DecodeError{Err: err}
}
