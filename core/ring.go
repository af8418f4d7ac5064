package core

import (
	"runtime"
	"sync/atomic"
)

const (
	cacheLinePad = 64

	// maxPushRetries bounds how often a contended MPMC push retries its CAS
	// before the push is reported as contended.
	maxPushRetries = 64

	// closedBit is set in the tail of a closed ring. Claiming a slot and
	// checking for Close are then the same CAS.
	closedBit = uint64(1) << 63
)

// =============================================================================
// spscQueue: Lamport ring buffer, one producer and one consumer
// =============================================================================

type spscQueue struct {
	queueInfo

	head   atomic.Uint64
	_      [cacheLinePad]byte
	tail atomic.Uint64
	_    [cacheLinePad]byte
	mask uint64
	data []Task
}

func newSPSCQueue(cfg QueueConfig, wait WaitPolicy) *spscQueue {
	return &spscQueue{
		queueInfo: queueInfo{name: cfg.Name, policy: cfg.Policy, wait: wait},
		mask:      uint64(cfg.Capacity - 1),
		data:      make([]Task, cfg.Capacity),
	}
}

func (q *spscQueue) TryPush(t Task) bool { return q.push(t) == pushOK }

func (q *spscQueue) push(t Task) pushStatus {
	tail := q.tail.Load()
	if tail&closedBit != 0 {
		return pushClosed
	}
	head := q.head.Load()
	if tail-head >= uint64(len(q.data)) {
		return pushFull
	}
	idx := tail & q.mask
	q.data[idx] = t
	if !q.tail.CompareAndSwap(tail, tail+1) {
		// Only Close moves the tail under the producer.
		q.data[idx] = nil
		return pushClosed
	}
	return pushOK
}

func (q *spscQueue) TryPop() (Task, bool) {
	head := q.head.Load()
	tail := q.tail.Load() &^ closedBit
	if head >= tail {
		return nil, false
	}
	idx := head & q.mask
	t := q.data[idx]
	q.data[idx] = nil // release the closure
	q.head.Store(head + 1)
	return t, true
}

func (q *spscQueue) Capacity() int { return len(q.data) }

func (q *spscQueue) Len() int {
	head := q.head.Load()
	tail := q.tail.Load() &^ closedBit
	if tail < head {
		return 0
	}
	return int(tail - head)
}

func (q *spscQueue) Close()         { q.tail.Or(closedBit) }
func (q *spscQueue) IsClosed() bool { return q.tail.Load()&closedBit != 0 }

// =============================================================================
// mpmcQueue: sequence-numbered ring (Vyukov), any producers and consumers
// =============================================================================

type cell struct {
	sequence atomic.Uint64
	task     Task
}

type mpmcQueue struct {
	queueInfo

	head   atomic.Uint64
	_      [cacheLinePad]byte
	tail  atomic.Uint64
	_     [cacheLinePad]byte
	mask  uint64
	cells []cell
}

func newMPMCQueue(cfg QueueConfig, wait WaitPolicy) *mpmcQueue {
	q := &mpmcQueue{
		queueInfo: queueInfo{name: cfg.Name, policy: cfg.Policy, wait: wait},
		mask:      uint64(cfg.Capacity - 1),
		cells:     make([]cell, cfg.Capacity),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

func (q *mpmcQueue) TryPush(t Task) bool { return q.push(t) == pushOK }

func (q *mpmcQueue) push(t Task) pushStatus {
	for range maxPushRetries {
		tail := q.tail.Load()
		if tail&closedBit != 0 {
			return pushClosed
		}
		c := &q.cells[tail&q.mask]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(tail)

		switch {
		case dif == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				c.task = t
				c.sequence.Store(tail + 1)
				return pushOK
			}
		case dif < 0:
			return pushFull
		}
		// tail moved, retry
	}
	return pushContended
}

func (q *mpmcQueue) TryPop() (Task, bool) {
	for {
		head := q.head.Load()
		c := &q.cells[head&q.mask]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(head+1)

		switch {
		case dif == 0:
			if q.head.CompareAndSwap(head, head+1) {
				t := c.task
				c.task = nil
				c.sequence.Store(head + q.mask + 1)
				return t, true
			}
		case dif < 0:
			return nil, false // empty
		}
		// head moved, retry
	}
}

func (q *mpmcQueue) Capacity() int { return len(q.cells) }

func (q *mpmcQueue) Len() int {
	head := q.head.Load()
	tail := q.tail.Load() &^ closedBit
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Close sets the closed bit and then waits until every slot claimed before
// it is published. A consumer that finds the ring empty after Close returns
// has seen every accepted task.
func (q *mpmcQueue) Close() {
	tail := q.tail.Or(closedBit) &^ closedBit
	size := uint64(len(q.cells))
	start := uint64(0)
	if tail > size {
		start = tail - size
	}
	for pos := start; pos < tail; pos++ {
		c := &q.cells[pos&q.mask]
		for c.sequence.Load() == pos {
			runtime.Gosched()
		}
	}
}

func (q *mpmcQueue) IsClosed() bool { return q.tail.Load()&closedBit != 0 }
