package ringbuffer

import (
	"context"

	"github.com/xaionaro-go/xsync"
)

// RingBuffer is a bounded FIFO queue; when full the oldest item is
// overwritten.
type RingBuffer[T any] struct {
	Storage         []T
	CurrentReadIdx  uint
	CurrentWriteIdx uint
	Length          uint
	Locker          xsync.Mutex
}

func New[T any](size uint) *RingBuffer[T] {
	if size == 0 {
		size = 1
	}
	return &RingBuffer[T]{
		Storage: make([]T, size),
	}
}

// Push appends the item. If the buffer was full, the oldest item is
// removed and returned.
func (r *RingBuffer[T]) Push(ctx context.Context, item T) (overwritten T, isOverwritten bool) {
	r.Locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if r.Length == uint(len(r.Storage)) {
			overwritten, isOverwritten = r.pop()
		}
		r.Storage[r.CurrentWriteIdx] = item
		r.CurrentWriteIdx = (r.CurrentWriteIdx + 1) % uint(len(r.Storage))
		r.Length++
	})
	return
}

// Pop removes and returns the oldest item.
func (r *RingBuffer[T]) Pop(ctx context.Context) (item T, ok bool) {
	r.Locker.Do(xsync.WithNoLogging(ctx, true), func() {
		item, ok = r.pop()
	})
	return
}

func (r *RingBuffer[T]) pop() (T, bool) {
	var zeroValue T
	if r.Length == 0 {
		return zeroValue, false
	}
	item := r.Storage[r.CurrentReadIdx]
	r.Storage[r.CurrentReadIdx] = zeroValue
	r.CurrentReadIdx = (r.CurrentReadIdx + 1) % uint(len(r.Storage))
	r.Length--
	return item, true
}

// Peek applies fn to the oldest item in place.
func (r *RingBuffer[T]) Peek(ctx context.Context, fn func(item *T)) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &r.Locker, func() bool {
		if r.Length == 0 {
			return false
		}
		fn(&r.Storage[r.CurrentReadIdx])
		return true
	})
}

func (r *RingBuffer[T]) Len(ctx context.Context) uint {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &r.Locker, func() uint {
		return r.Length
	})
}

func (r *RingBuffer[T]) Cap() uint {
	return uint(len(r.Storage))
}
