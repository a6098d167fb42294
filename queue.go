package ibento

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrEmptyQueue is returned by Queue.Front and Queue.Pop on an empty queue.
var ErrEmptyQueue = errors.New("ibento: empty queue")

type (
	// Queue is a FIFO of pending events for one logical channel. Every
	// operation holds the queue's own lock for the duration of an in-memory
	// mutation only. Two queues never contend with each other.
	//
	// The same Event may be pushed on several queues, queues never modify it.
	Queue struct {
		label  string
		logger *Logger
		mu     sync.Mutex
		events []Event
		stats  queueCounters
	}

	QueueOption func(q *Queue)

	// QueueStats are monotonic counters, for observability only.
	QueueStats struct {
		Pushed  uint64
		Popped  uint64
		Moved   uint64
		Drains  uint64
		Cleared uint64
	}

	queueCounters struct {
		pushed  atomic.Uint64
		popped  atomic.Uint64
		moved   atomic.Uint64
		drains  atomic.Uint64
		cleared atomic.Uint64
	}
)

func WithQueueLogger(logger *Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithCapacityHint preallocates the backing buffer.
func WithCapacityHint(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.events = make([]Event, 0, n)
		}
	}
}

func NewQueue(label string, opts ...QueueOption) *Queue {
	q := Queue{
		label: label,
	}
	for i := 0; i < len(opts); i++ {
		opts[i](&q)
	}
	q.logger.Info().Str("queue", q.label).Log("running the event queue")
	return &q
}

func (q *Queue) Label() string { return q.label }

// Push appends e to the tail of the queue.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
	q.stats.pushed.Add(1)
	q.logger.Debug().
		Str("queue", q.label).
		Stringer("kind", e.ID()).
		Log("pushing new event")
}

// Front returns the head of the queue without removing it.
func (q *Queue) Front() (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, ErrEmptyQueue
	}
	return q.events[0], nil
}

// Pop removes the head of the queue, and returns it.
func (q *Queue) Pop() (Event, error) {
	q.mu.Lock()
	if len(q.events) == 0 {
		q.mu.Unlock()
		return nil, ErrEmptyQueue
	}
	e := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	q.mu.Unlock()
	q.stats.popped.Add(1)
	q.logger.Debug().
		Str("queue", q.label).
		Stringer("kind", e.ID()).
		Log("popping the next event")
	return e, nil
}

// Size is a snapshot, it may be stale by the time it's used.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Empty is a snapshot, see Size.
func (q *Queue) Empty() bool {
	return q.Size() == 0
}

// Clear discards every pending event, logging each of them, and returns how
// many were discarded.
func (q *Queue) Clear() int {
	q.mu.Lock()
	discarded := q.events
	q.events = nil
	q.mu.Unlock()

	for _, e := range discarded {
		q.logger.Info().
			Str("queue", q.label).
			Stringer("kind", e.ID()).
			Uint64("seq", e.Header().Seq).
			Log("queue clear, removing event")
	}
	q.stats.cleared.Add(uint64(len(discarded)))
	return len(discarded)
}

// MoveEvents transfers every pending event, in order, to the tail of dst,
// leaving the queue empty, and returns the number of events moved. The lock
// is held once for the whole batch.
//
// If dst is empty, the queue's buffer is handed over to the caller as is.
func (q *Queue) MoveEvents(dst *[]Event) int {
	q.mu.Lock()
	n := len(q.events)
	if n == 0 {
		q.mu.Unlock()
		return 0
	}
	if len(*dst) == 0 {
		*dst, q.events = q.events, nil
	} else {
		*dst = append(*dst, q.events...)
		clear(q.events)
		q.events = q.events[:0]
	}
	q.mu.Unlock()

	q.stats.moved.Add(uint64(n))
	q.stats.drains.Add(1)
	q.logger.Debug().
		Str("queue", q.label).
		Int("count", n).
		Log("moving events")
	return n
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pushed:  q.stats.pushed.Load(),
		Popped:  q.stats.popped.Load(),
		Moved:   q.stats.moved.Load(),
		Drains:  q.stats.drains.Load(),
		Cleared: q.stats.cleared.Load(),
	}
}

// Broadcast pushes the same event on every queue, in order.
func Broadcast(e Event, queues ...*Queue) {
	for _, q := range queues {
		q.Push(e)
	}
}
