package buffer

import (
	"fmt"
	"io"
	"sync"
)

// Buffer is a thread-safe growable buffer of T.
//
// Writes append to the tail and never block. Reads consume from the head and
// block while the buffer is empty and still open for writing. After
// CloseWrite, reads drain what is left and then return io.EOF.
type Buffer[T any] struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	closeWrite bool
	buf        []T
}

// N creates a new Buffer with the specified initial capacity.
// The capacity is a hint; the buffer grows as needed.
func N[T any](n int) *Buffer[T] {
	return &Buffer[T]{
		writeNotify: make(chan struct{}, 1),
		buf:         make([]T, 0, n),
	}
}

// Write appends p to the buffer and wakes a blocked reader.
//
// Returns io.ErrClosedPipe (wrapped) once the write side is closed.
func (b *Buffer[T]) Write(p []T) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeWrite {
		return 0, fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}
	b.buf = append(b.buf, p...)
	select {
	case b.writeNotify <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Read moves up to len(p) elements from the head of the buffer into p.
//
// It blocks until at least one element is available or the buffer is closed.
// Returns io.EOF when the write side is closed and the buffer is empty.
func (b *Buffer[T]) Read(p []T) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.buf) == 0 {
		if b.closeWrite {
			return 0, io.EOF
		}
		b.mu.Unlock()
		<-b.writeNotify
		b.mu.Lock()
	}
	n = copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

// CloseWrite closes the write side. Buffered elements stay readable.
func (b *Buffer[T]) CloseWrite() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeWrite {
		return nil
	}
	b.closeWrite = true
	close(b.writeNotify)
	return nil
}

// Snapshot returns a copy of the buffered elements without consuming them.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.buf))
	copy(out, b.buf)
	return out
}
