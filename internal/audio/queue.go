package audio

import "sync"

// frameQueue is an unbounded FIFO of captured frames, safe for one producer and one consumer.
type frameQueue struct {
	mu     sync.Mutex
	frames [][]float32
	total  int
}

func (q *frameQueue) push(frame []float32) {
	q.mu.Lock()
	q.frames = append(q.frames, frame)
	q.total += len(frame)
	q.mu.Unlock()
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}

// drain removes every queued frame and concatenates them in arrival order.
func (q *frameQueue) drain() []float32 {
	q.mu.Lock()
	frames := q.frames
	total := q.total
	q.frames = nil
	q.total = 0
	q.mu.Unlock()

	if total == 0 {
		return nil
	}
	out := make([]float32, 0, total)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
