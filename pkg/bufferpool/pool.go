package bufferpool

import (
	"context"
	"sync"
)

// Pool is a fixed-size pool of reusable slots shared between a producer
// (the capture side) and an asynchronous consumer (the encoder).
//
// A slot cycles through free -> held -> in-flight -> free. The free-list
// is a channel, thus a slot can be owned by exactly one party at any
// given time, regardless of the order slots are reclaimed in.
type Pool[T any] struct {
	slots     []*Slot[T]
	free      chan *Slot[T]
	closed    chan struct{}
	closeOnce sync.Once
}

func New[T any](
	size int,
	newValue func(idx int) T,
) (*Pool[T], error) {
	if size <= 0 {
		return nil, ErrInvalidSize{Size: size}
	}

	p := &Pool[T]{
		slots:  make([]*Slot[T], size),
		free:   make(chan *Slot[T], size),
		closed: make(chan struct{}),
	}
	for idx := range p.slots {
		slot := &Slot[T]{
			Index: idx,
			pool:  p,
		}
		if newValue != nil {
			slot.Value = newValue(idx)
		}
		p.slots[idx] = slot
		p.free <- slot
	}
	return p, nil
}

func (p *Pool[T]) Size() int {
	return len(p.slots)
}

// Slot returns the slot by its index.
func (p *Pool[T]) Slot(idx int) *Slot[T] {
	return p.slots[idx]
}

// TryAcquire takes a free slot if there is any, and never blocks.
func (p *Pool[T]) TryAcquire() (*Slot[T], bool) {
	select {
	case <-p.closed:
		return nil, false
	default:
	}

	select {
	case slot := <-p.free:
		p.hold(slot)
		return slot, true
	default:
		return nil, false
	}
}

// AcquireBlocking waits until a slot is reclaimed, the context is
// cancelled, or the pool is closed.
func (p *Pool[T]) AcquireBlocking(ctx context.Context) (*Slot[T], error) {
	if slot, ok := p.TryAcquire(); ok {
		return slot, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrClosed
	case slot := <-p.free:
		p.hold(slot)
		return slot, nil
	}
}

func (p *Pool[T]) hold(slot *Slot[T]) {
	if err := slot.transit(StateFree, StateHeld); err != nil {
		panic(err)
	}
}

// Submit hands a held slot over to the consumer.
func (p *Pool[T]) Submit(slot *Slot[T]) error {
	if err := p.checkOwnership(slot); err != nil {
		return err
	}
	return slot.transit(StateHeld, StateInFlight)
}

// Release returns a held slot that was never submitted.
func (p *Pool[T]) Release(slot *Slot[T]) error {
	if err := p.checkOwnership(slot); err != nil {
		return err
	}
	if err := slot.transit(StateHeld, StateFree); err != nil {
		return err
	}
	p.free <- slot
	return nil
}

// OnReclaimed is called by the consumer when it no longer needs the
// content of a submitted slot. It is safe to call from any goroutine.
func (p *Pool[T]) OnReclaimed(slot *Slot[T]) error {
	if err := p.checkOwnership(slot); err != nil {
		return err
	}
	if err := slot.transit(StateInFlight, StateFree); err != nil {
		return err
	}
	p.free <- slot
	return nil
}

func (p *Pool[T]) checkOwnership(slot *Slot[T]) error {
	if slot == nil || slot.pool != any(p) {
		idx := -1
		if slot != nil {
			idx = slot.Index
		}
		return ErrForeignSlot{Index: idx}
	}
	return nil
}

// Close wakes up all the blocked AcquireBlocking calls and makes the
// following acquisitions fail. The slots that are in flight may still be
// reclaimed.
func (p *Pool[T]) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

type Stats struct {
	Size     int
	Free     int
	Held     int
	InFlight int
}

func (p *Pool[T]) Stats() Stats {
	s := Stats{
		Size: len(p.slots),
	}
	for _, slot := range p.slots {
		switch slot.State() {
		case StateFree:
			s.Free++
		case StateHeld:
			s.Held++
		case StateInFlight:
			s.InFlight++
		}
	}
	return s
}
