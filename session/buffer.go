package session

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when a chunk would push the buffer past its limit.
var ErrBufferFull = errors.New("audio buffer full")

// AudioBuffer collects browser audio until the client ends its turn.
type AudioBuffer struct {
	mu        sync.Mutex
	chunks    [][]byte
	totalSize int
	maxSize   int
}

func NewAudioBuffer(maxSize int) *AudioBuffer {
	return &AudioBuffer{maxSize: maxSize}
}

func (ab *AudioBuffer) MaxSize() int {
	return ab.maxSize
}

// Append keeps a copy of chunk. The buffer is left unchanged on ErrBufferFull.
func (ab *AudioBuffer) Append(chunk []byte) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if ab.totalSize+len(chunk) > ab.maxSize {
		return ErrBufferFull
	}
	ab.chunks = append(ab.chunks, append([]byte(nil), chunk...))
	ab.totalSize += len(chunk)
	return nil
}

// Flush returns the buffered audio in arrival order along with the number
// of chunks it was made of, and empties the buffer.
func (ab *AudioBuffer) Flush() ([]byte, int) {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	n := len(ab.chunks)
	if n == 0 {
		return nil, 0
	}
	out := make([]byte, 0, ab.totalSize)
	for _, c := range ab.chunks {
		out = append(out, c...)
	}
	ab.reset()
	return out, n
}

func (ab *AudioBuffer) Clear() {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.reset()
}

func (ab *AudioBuffer) reset() {
	ab.chunks = nil
	ab.totalSize = 0
}

func (ab *AudioBuffer) Size() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return ab.totalSize
}

func (ab *AudioBuffer) IsEmpty() bool {
	return ab.Size() == 0
}
