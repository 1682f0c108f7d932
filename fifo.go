// fifo.go - lockable/lockless FIFO buffer and named locks for cross-thread
// state (§5).
//
// Grounded on terminal_host.go's goroutine-feeds-a-device shape (the
// keyboard/mouse/UART host producers follow the same pattern) and on
// SPEC_FULL.md §B's use of golang.org/x/sync/semaphore for named locks.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package pcx86

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ByteFIFO is a small ring buffer for cross-thread byte streams (keyboard
// scan codes, mouse packets, UART RX bytes). Lockable wraps every operation
// in a mutex; Lockless assumes the caller already serializes access (used
// within the single-threaded core itself).
type ByteFIFO struct {
	mu       sync.Mutex
	lockable bool
	buf      []byte
	cap      int
}

// NewByteFIFO creates a FIFO of the given capacity. lockable selects
// whether Push/Pop take an internal mutex - set true for FIFOs fed by a
// host goroutine, false for FIFOs only ever touched by the core's own
// single-threaded tick loop.
func NewByteFIFO(capacity int, lockable bool) *ByteFIFO {
	return &ByteFIFO{cap: capacity, lockable: lockable, buf: make([]byte, 0, capacity)}
}

func (f *ByteFIFO) Push(b byte) bool {
	if f.lockable {
		f.mu.Lock()
		defer f.mu.Unlock()
	}
	if len(f.buf) >= f.cap {
		return false
	}
	f.buf = append(f.buf, b)
	return true
}

func (f *ByteFIFO) Pop() (byte, bool) {
	if f.lockable {
		f.mu.Lock()
		defer f.mu.Unlock()
	}
	if len(f.buf) == 0 {
		return 0, false
	}
	b := f.buf[0]
	f.buf = f.buf[1:]
	return b, true
}

func (f *ByteFIFO) Len() int {
	if f.lockable {
		f.mu.Lock()
		defer f.mu.Unlock()
	}
	return len(f.buf)
}

func (f *ByteFIFO) Empty() bool { return f.Len() == 0 }

// Named locks by ID (§5: LOCK_CPU, LOCK_INPUT, LOCK_DISKINDICATOR),
// protecting coarse-grained sections that host auxiliary threads (renderer,
// debugger, input producers) touch alongside the core's own single thread.
const (
	LockCPU          = "LOCK_CPU"
	LockInput        = "LOCK_INPUT"
	LockDiskIndicator = "LOCK_DISKINDICATOR"
)

// NamedLocks is a small registry of weight-1 semaphores, one per lock ID,
// created lazily on first use.
type NamedLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func NewNamedLocks() *NamedLocks {
	return &NamedLocks{locks: make(map[string]*semaphore.Weighted)}
}

func (n *NamedLocks) get(id string) *semaphore.Weighted {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.locks[id]
	if !ok {
		s = semaphore.NewWeighted(1)
		n.locks[id] = s
	}
	return s
}

// Acquire blocks until the named lock is held.
func (n *NamedLocks) Acquire(ctx context.Context, id string) error {
	return n.get(id).Acquire(ctx, 1)
}

// Release releases the named lock.
func (n *NamedLocks) Release(id string) {
	n.get(id).Release(1)
}

// TryAcquire attempts to take the named lock without blocking.
func (n *NamedLocks) TryAcquire(id string) bool {
	return n.get(id).TryAcquire(1)
}
