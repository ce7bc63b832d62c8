package fifoqueue

import (
	"sync"

	"github.com/gammazero/deque"
)

// FIFOQueue implements a variable size synchronized FIFO queue

type FIFOQueue[T any] struct {
	mutex  sync.Mutex
	cond   *sync.Cond
	d      deque.Deque[T]
	closed bool
}

func New[T any]() *FIFOQueue[T] {
	ret := &FIFOQueue[T]{}
	ret.cond = sync.NewCond(&ret.mutex)
	return ret
}

// Push appends an element to the queue
func (q *FIFOQueue[T]) Push(elem T) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		panic("attempt to push to the closed FIFOQueue")
	}
	q.d.PushBack(elem)
	q.cond.Signal()
}

// Close closes the queue. Elements still buffered are consumed before
// Consume returns
func (q *FIFOQueue[T]) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns number of buffered elements. Non-deterministic
func (q *FIFOQueue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.d.Len()
}

func (q *FIFOQueue[T]) pop() (T, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for q.d.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.d.Len() == 0 {
		var nilT T
		return nilT, false
	}
	return q.d.PopFront(), true
}

// Consume reads all elements of the queue until it is closed and drained
func (q *FIFOQueue[T]) Consume(fun func(elem T)) {
	for {
		e, ok := q.pop()
		if !ok {
			return
		}
		fun(e)
	}
}
