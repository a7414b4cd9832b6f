// Package bus carries the one-shot messages between the caller, the two
// worker loops and the presentation layer: three unidirectional,
// unbounded, FIFO channels.
package bus

// Queue is an unbounded FIFO channel. Send never blocks on a slow
// consumer; pending items queue in memory. Items sent before anyone
// receives are retained and delivered in send order.
type Queue[T any] struct {
	in  chan T
	out chan T
}

// NewQueue creates a queue and starts its pump goroutine.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go q.pump()
	return q
}

func (q *Queue[T]) pump() {
	var pending []T
	for {
		var out chan T
		var next T
		if len(pending) > 0 {
			out = q.out
			next = pending[0]
		}
		select {
		case v, ok := <-q.in:
			if !ok {
				for _, v := range pending {
					q.out <- v
				}
				close(q.out)
				return
			}
			pending = append(pending, v)
		case out <- next:
			pending = pending[1:]
		}
	}
}

// Send enqueues a value. It must not be called after Close.
func (q *Queue[T]) Send(v T) {
	q.in <- v
}

// Receive returns the consumer end. It is closed after Close once every
// pending item has been delivered.
func (q *Queue[T]) Receive() <-chan T {
	return q.out
}

// Close stops the queue. Pending items are still delivered.
func (q *Queue[T]) Close() {
	close(q.in)
}
