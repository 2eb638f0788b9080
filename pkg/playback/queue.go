package playback

import "sync"

// commandQueue is a many-producer, single-consumer buffer of live commands.
// The mutex is held only to append or to swap buffers, never while commands
// are applied.
type commandQueue struct {
	mu      sync.Mutex
	pending []command

	// spare is owned by the consumer.
	spare []command
}

func (q *commandQueue) push(c command) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
}

// pushWith runs fn under the queue lock and appends the commands it returns.
// Producers use it when the commands depend on state that must not change
// between reading it and enqueueing.
func (q *commandQueue) pushWith(fn func() []command) {
	q.mu.Lock()
	q.pending = append(q.pending, fn()...)
	q.mu.Unlock()
}

// drain applies every pending command to t in FIFO order. It must only be
// called from the consumer goroutine.
func (q *commandQueue) drain(t commandTarget) {
	q.mu.Lock()
	batch := q.pending
	q.pending = q.spare[:0]
	q.mu.Unlock()

	for _, c := range batch {
		c.apply(t)
	}

	clear(batch)
	q.spare = batch[:0]
}

// len returns the number of pending commands.
func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// discard drops every pending command.
func (q *commandQueue) discard() {
	q.mu.Lock()
	clear(q.pending)
	q.pending = q.pending[:0]
	q.mu.Unlock()
}
