// Package pipe implements the bounded byte pipe that carries inbound link
// data from the stack's event callbacks to the application.
//
// All operations take the pipe lock with a zero-wait attempt. A caller that
// finds the lock held never waits for it: the operation moves no bytes and
// reports ErrBusy instead.
package pipe

import (
	"errors"
	"sync"
)

// DefaultCapacity is the usable capacity of a pipe, in bytes.
const DefaultCapacity = 1024

// The different reasons for a pipe operation to move no data.
// All of them match ErrNoData with errors.Is.
var (
	ErrNoData       = errors.New("no data")
	ErrBusy         = noData("pipe is busy")
	ErrEmpty        = noData("pipe is empty")
	ErrInvalidCount = noData("invalid byte count")
)

type noDataError struct {
	msg string
}

func noData(msg string) error {
	return &noDataError{msg}
}

func (e *noDataError) Error() string {
	return e.msg
}

func (e *noDataError) Unwrap() error {
	return ErrNoData
}

// Pipe is a fixed-capacity circular byte store with one logical producer
// and one logical consumer.
//
// The backing store holds capacity+1 slots so that a full pipe can be told
// apart from an empty one: head == tail is empty, and tail+1 == head
// (modulo the slot count) is full.
type Pipe struct {
	buf  []byte
	head int
	tail int

	mu sync.Mutex
}

// New returns a new pipe which can hold up to capacity unread bytes.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Pipe{buf: make([]byte, capacity+1)}
}

// Cap returns the usable capacity of the pipe.
func (p *Pipe) Cap() int {
	return len(p.buf) - 1
}

// Write stores as many bytes of data as fit into the pipe and returns
// how many were stored. Bytes that do not fit are dropped; bytes already
// in the pipe are never evicted.
//
// If the lock is held by a reader, nothing is stored and ErrBusy is returned.
func (p *Pipe) Write(data []byte) (int, error) {
	if !p.mu.TryLock() {
		return 0, ErrBusy
	}
	defer p.mu.Unlock()

	size := len(p.buf)

	var written int
	for _, b := range data {
		next := (p.tail + 1) % size
		if next == p.head {
			break
		}

		p.buf[p.tail] = b
		p.tail = next
		written++
	}

	return written, nil
}

// Available returns the number of unread bytes.
func (p *Pipe) Available() (int, error) {
	if !p.mu.TryLock() {
		return 0, ErrBusy
	}
	defer p.mu.Unlock()

	return p.used(), nil
}

// Read pops up to count bytes from the pipe, oldest first.
//
// A non-positive count returns ErrInvalidCount, a held lock returns ErrBusy
// and an empty pipe returns ErrEmpty. In each of these cases the returned
// slice is nil.
func (p *Pipe) Read(count int) ([]byte, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	if !p.mu.TryLock() {
		return nil, ErrBusy
	}
	defer p.mu.Unlock()

	if p.head == p.tail {
		return nil, ErrEmpty
	}

	count = min(count, p.used())
	items := make([]byte, count)

	size := len(p.buf)
	for i := range items {
		items[i] = p.buf[p.head]
		p.head = (p.head + 1) % size
	}

	return items, nil
}

// Reset discards all unread bytes.
// It must only be called when no reader or writer is active, since it
// takes the lock unconditionally.
func (p *Pipe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.head, p.tail = 0, 0
}

func (p *Pipe) used() int {
	if p.tail >= p.head {
		return p.tail - p.head
	}

	return len(p.buf) - p.head + p.tail
}
