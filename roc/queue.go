package roc

// SuperpageQueue is a fixed-capacity FIFO of superpages.  It is implemented
// as a ring over a preallocated slice; push on a full queue and pop or peek
// on an empty queue are errors, never silent drops.  It is not concurrent
// safe, matching the single-goroutine model of the channels that use it.
type SuperpageQueue struct {
	buf   []Superpage
	front int
	count int
}

// NewSuperpageQueue returns an empty queue holding at most capacity superpages.
// capacity must be positive; a zero or negative capacity panics, since it is
// a programming error rather than a runtime condition.
func NewSuperpageQueue(capacity int) *SuperpageQueue {
	if capacity <= 0 {
		panic("roc: superpage queue capacity must be positive")
	}
	return &SuperpageQueue{buf: make([]Superpage, capacity)}
}

// Push appends a superpage at the back of the queue.
// The error is non-nil only if the queue is at capacity.
func (q *SuperpageQueue) Push(sp Superpage) error {
	if q.count == len(q.buf) {
		return ErrQueueFull
	}
	q.buf[(q.front+q.count)%len(q.buf)] = sp
	q.count++
	return nil
}

// Pop removes and returns the oldest superpage.
// The error is non-nil only if the queue is empty.
func (q *SuperpageQueue) Pop() (Superpage, error) {
	sp, err := q.Front()
	if err != nil {
		return Superpage{}, err
	}
	q.front = (q.front + 1) % len(q.buf)
	q.count--
	return sp, nil
}

// Front returns the oldest superpage without removing it.
// The error is non-nil only if the queue is empty.
func (q *SuperpageQueue) Front() (Superpage, error) {
	if q.count == 0 {
		return Superpage{}, ErrQueueEmpty
	}
	return q.buf[q.front], nil
}

// SetFront overwrites the oldest superpage in place.  The reconciler uses
// this to mark the front superpage received before moving it to the ready
// queue.  The error is non-nil only if the queue is empty.
func (q *SuperpageQueue) SetFront(sp Superpage) error {
	if q.count == 0 {
		return ErrQueueEmpty
	}
	q.buf[q.front] = sp
	return nil
}

// Clear empties the queue.  The capacity is unchanged.
func (q *SuperpageQueue) Clear() {
	q.front = 0
	q.count = 0
}

// Len returns the number of superpages currently in the queue.
func (q *SuperpageQueue) Len() int {
	return q.count
}

// Cap returns the fixed capacity of the queue.
func (q *SuperpageQueue) Cap() int {
	return len(q.buf)
}

// Available returns the remaining push capacity.
func (q *SuperpageQueue) Available() int {
	return len(q.buf) - q.count
}

// Full returns true if no more superpages can be pushed.
func (q *SuperpageQueue) Full() bool {
	return q.count == len(q.buf)
}

// Empty returns true if the queue holds no superpages.
func (q *SuperpageQueue) Empty() bool {
	return q.count == 0
}
