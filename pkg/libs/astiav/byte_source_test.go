package astiavplayer

import (
	"io"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
)

func TestByteSource(t *testing.T) {
	_, err := newByteSource(nil)
	require.ErrorIs(t, err, ErrEmptyBuffer)

	s, err := newByteSource([]byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, byteSourceMinBufferSize, s.bufferSize())

	b := make([]byte, 4)
	n, err := s.Read(b)
	require.NoError(t, err)
	require.Equal(t, "0123", string(b[:n]))

	pos, err := s.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)
	n, err = s.Read(b)
	require.NoError(t, err)
	require.Equal(t, "6789", string(b[:n]))
	_, err = s.Read(b)
	require.ErrorIs(t, err, io.EOF)
	_, err = s.readFunc(b)
	require.ErrorIs(t, err, astiav.ErrEof)

	pos, err = s.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(7), pos)
	pos, err = s.Seek(1, io.SeekStart|seekWhenceForce)
	require.NoError(t, err)
	require.Equal(t, int64(1), pos)
	pos, err = s.Seek(-5, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)
	pos, err = s.Seek(100, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(10), pos)

	size, err := s.Seek(0, seekWhenceSize)
	require.NoError(t, err)
	require.Equal(t, int64(10), size)
	pos, err = s.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(10), pos)

	_, err = s.Seek(0, 3)
	require.Error(t, err)

	require.NoError(t, s.Close())
	_, err = s.Read(b)
	require.ErrorIs(t, err, io.EOF)
	_, err = s.Seek(0, io.SeekStart)
	require.Error(t, err)

	s, err = newByteSource(make([]byte, 10*byteSourceMaxBufferSize+1))
	require.NoError(t, err)
	require.Equal(t, byteSourceMaxBufferSize, s.bufferSize())
}
