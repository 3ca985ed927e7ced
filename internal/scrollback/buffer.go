// Package scrollback stores raw terminal output in a fixed-size circular
// buffer addressed by absolute byte offsets.
package scrollback

import "sync"

// DefaultSize is the default capacity in bytes.
const DefaultSize = 1024 * 1024

// Buffer keeps the most recent Cap() bytes of a stream. Offsets count every
// byte ever written, so a reader can ask for "everything since N" after a
// reconnect. When the buffer wraps, the oldest bytes are lost.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	data  []byte
	head  int    // next write index into data
	total uint64 // bytes ever written
}

// New creates a Buffer holding up to size bytes. A non-positive size uses
// DefaultSize.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{data: make([]byte, size)}
}

// Write appends p and returns the offset just past it. Never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.data)
	src := p
	// Only the tail of an oversized write can survive.
	if len(src) > size {
		src = src[len(src)-size:]
		b.head = (b.head + len(p) - len(src)) % size
	}
	for len(src) > 0 {
		n := copy(b.data[b.head:], src)
		b.head = (b.head + n) % size
		src = src[n:]
	}
	b.total += uint64(len(p))
	return len(p), nil
}

// Since returns a copy of the bytes written at or after offset. If offset
// predates the retained window, everything retained is returned. The second
// value is the offset the returned bytes start at.
func (b *Buffer) Since(offset uint64) ([]byte, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := b.oldest()
	if offset < oldest {
		offset = oldest
	}
	if offset >= b.total {
		return nil, b.total
	}

	n := int(b.total - offset)
	out := make([]byte, n)
	size := len(b.data)
	start := (b.head - n + size) % size
	copied := copy(out, b.data[start:])
	if copied < n {
		copy(out[copied:], b.data[:n-copied])
	}
	return out, offset
}

// Bytes returns everything currently retained.
func (b *Buffer) Bytes() []byte {
	out, _ := b.Since(0)
	return out
}

// Offset returns the total number of bytes ever written.
func (b *Buffer) Offset() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Cap returns the buffer capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.data)
}

func (b *Buffer) oldest() uint64 {
	size := uint64(len(b.data))
	if b.total <= size {
		return 0
	}
	return b.total - size
}
