package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/diogo/voxchat/internal/errors"
)

func TestAudioBuffer_AppendAndFlush(t *testing.T) {
	buf := NewAudioBuffer(16)

	require.NoError(t, buf.Append([]byte("hello ")))
	require.NoError(t, buf.Append([]byte("world")))
	assert.Equal(t, 11, buf.Size())
	assert.Equal(t, 2, buf.ChunkCount())

	assert.Equal(t, "hello world", string(buf.Flush()))
	assert.Equal(t, 0, buf.Size())
	assert.Nil(t, buf.Flush())
}

func TestAudioBuffer_Full(t *testing.T) {
	buf := NewAudioBuffer(4)

	require.NoError(t, buf.Append([]byte("abcd")))
	err := buf.Append([]byte("e"))
	assert.ErrorIs(t, err, apierrors.ErrBufferFull)
	assert.Equal(t, 4, buf.Size())
}

func TestAudioBuffer_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultMaxBufferSize, NewAudioBuffer(0).MaxSize())
	assert.Equal(t, DefaultMaxBufferSize, NewAudioBuffer(-1).MaxSize())
}

func TestAudioBuffer_Clear(t *testing.T) {
	buf := NewAudioBuffer(0)
	require.NoError(t, buf.Append([]byte("data")))
	buf.Clear()
	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 0, buf.ChunkCount())
}
