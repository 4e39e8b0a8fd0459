package capture

import (
	"sync"

	apierrors "github.com/diogo/voxchat/internal/errors"
)

// DefaultMaxBufferSize bounds a single recording
const DefaultMaxBufferSize = 10 * 1024 * 1024 // 10MB

// AudioBuffer accumulates recorded fragments in arrival order
type AudioBuffer struct {
	chunks    [][]byte
	totalSize int
	maxSize   int
	mu        sync.Mutex
}

// NewAudioBuffer creates a buffer holding at most maxSize bytes
func NewAudioBuffer(maxSize int) *AudioBuffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}
	return &AudioBuffer{
		chunks:  make([][]byte, 0),
		maxSize: maxSize,
	}
}

// MaxSize returns the maximum buffer size
func (ab *AudioBuffer) MaxSize() int {
	return ab.maxSize
}

// Append adds a fragment to the buffer.
// Returns ErrBufferFull if adding the fragment would exceed maxSize.
func (ab *AudioBuffer) Append(chunk []byte) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	newSize := ab.totalSize + len(chunk)
	if newSize > ab.maxSize {
		return apierrors.ErrBufferFull
	}

	ab.chunks = append(ab.chunks, chunk)
	ab.totalSize = newSize
	return nil
}

// Flush concatenates all fragments in order and clears the buffer
func (ab *AudioBuffer) Flush() []byte {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if len(ab.chunks) == 0 {
		return nil
	}

	result := make([]byte, 0, ab.totalSize)
	for _, chunk := range ab.chunks {
		result = append(result, chunk...)
	}

	ab.chunks = make([][]byte, 0)
	ab.totalSize = 0

	return result
}

// Clear empties the buffer without returning data
func (ab *AudioBuffer) Clear() {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	ab.chunks = make([][]byte, 0)
	ab.totalSize = 0
}

// Size returns the current total buffered bytes
func (ab *AudioBuffer) Size() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return ab.totalSize
}

// ChunkCount returns the number of fragments in the buffer
func (ab *AudioBuffer) ChunkCount() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return len(ab.chunks)
}
