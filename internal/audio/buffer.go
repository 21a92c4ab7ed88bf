package audio

import "sync"

// Buffer accumulates PCM blocks pushed from the capture callback thread.
// A single writer appends; readers either snapshot mid-capture or drain once
// capture has stopped.
type Buffer struct {
	mu  sync.Mutex
	pcm []byte
}

// Append copies the block into the buffer. The caller may reuse b afterwards.
func (b *Buffer) Append(block []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pcm = append(b.pcm, block...)
}

// Snapshot returns a copy of the buffered audio without consuming it.
func (b *Buffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.pcm))
	copy(out, b.pcm)
	return out
}

// Drain returns the buffered audio and resets the buffer.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pcm
	b.pcm = nil
	return out
}

// Len reports the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pcm)
}
