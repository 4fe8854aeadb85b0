package containers

import "errors"

var ErrQueueFull = errors.New("queue is full")
var ErrQueueEmpty = errors.New("queue is empty")

// RingQueue is a fixed-capacity FIFO backed by a circular buffer.
type RingQueue struct {
	data       []any
	size       int
	readIndex  int
	writeIndex int
	count      int
}

func NewRingQueue(size int) *RingQueue {
	return &RingQueue{
		data: make([]any, size),
		size: size,
	}
}

// Enqueue adds an element to the back of the queue.
func (rq *RingQueue) Enqueue(value any) error {
	if rq.IsFull() {
		return ErrQueueFull
	}
	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % rq.size
	rq.count++
	return nil
}

// Dequeue removes and returns the front element.
func (rq *RingQueue) Dequeue() (any, error) {
	if rq.IsEmpty() {
		return nil, ErrQueueEmpty
	}
	value := rq.data[rq.readIndex]
	rq.data[rq.readIndex] = nil
	rq.readIndex = (rq.readIndex + 1) % rq.size
	rq.count--
	return value, nil
}

// Peek returns the front element without removing it.
func (rq *RingQueue) Peek() (any, error) {
	if rq.IsEmpty() {
		return nil, ErrQueueEmpty
	}
	return rq.data[rq.readIndex], nil
}

func (rq *RingQueue) Len() int {
	return rq.count
}

func (rq *RingQueue) IsEmpty() bool {
	return rq.count == 0
}

func (rq *RingQueue) IsFull() bool {
	return rq.count == rq.size
}
