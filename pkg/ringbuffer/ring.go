// Package ringbuffer implements the bounded exchange buffer between a fringe
// producer and the reconstruction worker.
//
// The buffer is a fixed arena of reusable records. Producing never blocks:
// when every slot is occupied the oldest unconsumed record is overwritten.
// Consuming blocks until a record is available or Quit is called.
//
// The arena holds Cap()+1 records addressed by integer index. The ring order
// references Cap() of them; the remaining record belongs to the consumer. On
// Consume the consumer trades its record for the one at the tail, so it can
// read the frame outside the lock while the producer keeps writing into the
// ring.
package ringbuffer

import (
	"sync"
)

// DefaultCapacity is the number of frame slots used when none is given.
const DefaultCapacity = 8

// Stats is a snapshot of the buffer counters.
type Stats struct {
	Produced uint64
	Consumed uint64
	Dropped  uint64
}

// Ring is a fixed-capacity circular buffer of reusable records.
// Produce may be called from any goroutine; Consume from a single consumer.
type Ring[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	records []T   // arena, len = capacity+1
	order   []int // ring position -> record index, len = capacity
	held    int   // record owned by the consumer

	head int
	tail int
	full bool
	quit bool

	// consumer is inside its use callback
	busy bool
	// visits deferred until the consumer returns its record
	pending []func(*T)

	stats Stats
}

// New creates a ring with the given capacity. A capacity below 1 selects
// DefaultCapacity.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	r := &Ring[T]{
		records: make([]T, capacity+1),
		order:   make([]int, capacity),
		held:    capacity,
	}
	for i := range r.order {
		r.order[i] = i
	}
	r.notEmpty = sync.NewCond(&r.mu)
	return r
}

// Produce writes one record. If the buffer is full the oldest unconsumed
// record is dropped. fill receives the record at the head and must not retain
// the pointer after it returns. Produce after Quit is a no-op.
func (r *Ring[T]) Produce(fill func(*T)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.quit {
		return
	}
	if r.full {
		r.tail = r.advance(r.tail)
		r.stats.Dropped++
	}
	fill(&r.records[r.order[r.head]])
	r.head = r.advance(r.head)
	r.full = r.head == r.tail
	r.stats.Produced++
	r.notEmpty.Signal()
}

// Consume blocks until a record is available or Quit has been called. It
// returns false, without calling use, once the ring has quit. Otherwise use is
// invoked with the oldest record outside the lock and Consume returns true.
func (r *Ring[T]) Consume(use func(*T)) bool {
	r.mu.Lock()
	for r.empty() && !r.quit {
		r.notEmpty.Wait()
	}
	if r.quit {
		r.mu.Unlock()
		return false
	}

	// Trade the consumer record for the tail record.
	idx := r.order[r.tail]
	r.order[r.tail] = r.held
	r.held = idx
	r.tail = r.advance(r.tail)
	r.full = false
	r.busy = true
	r.stats.Consumed++
	rec := &r.records[idx]
	r.mu.Unlock()

	defer r.release()
	use(rec)
	return true
}

func (r *Ring[T]) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
	for _, visit := range r.pending {
		visit(&r.records[r.held])
	}
	r.pending = nil
}

// Quit wakes a blocked consumer. Subsequent Consume calls return false and
// Produce calls are ignored.
func (r *Ring[T]) Quit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quit = true
	r.notEmpty.Broadcast()
}

// ForEach applies visit to every record, typically to resize storage after
// the frame geometry changed. A record currently in use by the consumer is
// visited as soon as the consumer hands it back.
func (r *Ring[T]) ForEach(visit func(*T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if i == r.held && r.busy {
			r.pending = append(r.pending, visit)
			continue
		}
		visit(&r.records[i])
	}
}

// Len returns the number of unconsumed records.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size()
}

// Cap returns the number of slots in the ring.
func (r *Ring[T]) Cap() int {
	return len(r.order)
}

// Empty reports whether no unconsumed record is available.
func (r *Ring[T]) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.empty()
}

// Full reports whether the next Produce will drop a record.
func (r *Ring[T]) Full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full
}

// Stats returns the produce/consume/drop counters.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Ring[T]) advance(i int) int {
	return (i + 1) % len(r.order)
}

func (r *Ring[T]) empty() bool {
	return !r.full && r.head == r.tail
}

func (r *Ring[T]) size() int {
	switch {
	case r.full:
		return len(r.order)
	case r.head >= r.tail:
		return r.head - r.tail
	default:
		return len(r.order) + r.head - r.tail
	}
}
