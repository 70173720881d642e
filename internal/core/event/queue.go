package event

import "github.com/sasha-s/go-deadlock"

// Queue is a multi-producer, single-consumer command queue. Producers Push
// from any goroutine; the apply step calls Drain exactly once per tick and
// receives commands in enqueue order.
type Queue struct {
	mu    deadlock.Mutex
	back  []Command
	front []Command
}

func NewQueue() *Queue {
	return &Queue{
		back:  make([]Command, 0, 64),
		front: make([]Command, 0, 64),
	}
}

// Push appends commands atomically with respect to other producers, so a
// batch decoded from one frame is never interleaved with another's.
func (q *Queue) Push(cmds ...Command) {
	if len(cmds) == 0 {
		return
	}
	q.mu.Lock()
	q.back = append(q.back, cmds...)
	q.mu.Unlock()
}

// Drain swaps the buffers and returns everything pushed since the last
// Drain. The returned slice is valid until the next Drain.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	q.front, q.back = q.back, q.front[:0]
	q.mu.Unlock()
	return q.front
}

// Len returns the number of commands waiting for the next Drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.back)
}
