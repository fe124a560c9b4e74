package bufferpool

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolInvalidSize(t *testing.T) {
	_, err := New[int](0, nil)
	require.ErrorAs(t, err, &ErrInvalidSize{})
}

func TestPoolLifecycle(t *testing.T) {
	p, err := New(2, func(idx int) []byte { return make([]byte, 4) })
	require.NoError(t, err)
	require.Equal(t, Stats{Size: 2, Free: 2}, p.Stats())

	a, ok := p.TryAcquire()
	require.True(t, ok)
	require.Len(t, a.Value, 4)
	b, ok := p.TryAcquire()
	require.True(t, ok)
	require.NotEqual(t, a.Index, b.Index)

	_, ok = p.TryAcquire()
	require.False(t, ok)
	require.Equal(t, Stats{Size: 2, Held: 2}, p.Stats())

	require.NoError(t, p.Submit(a))
	require.NoError(t, p.Release(b))
	require.Equal(t, Stats{Size: 2, Free: 1, InFlight: 1}, p.Stats())

	// only in-flight slots may be reclaimed, and only once
	require.ErrorAs(t, p.OnReclaimed(b), &ErrUnexpectedState{})
	require.NoError(t, p.OnReclaimed(a))
	require.ErrorIs(t, p.OnReclaimed(a), ErrNotInFlight)
	require.ErrorIs(t, p.Submit(a), ErrNotHeld)
	require.Equal(t, Stats{Size: 2, Free: 2}, p.Stats())
}

func TestPoolForeignSlot(t *testing.T) {
	p0, err := New[int](1, nil)
	require.NoError(t, err)
	p1, err := New[int](1, nil)
	require.NoError(t, err)

	slot, ok := p0.TryAcquire()
	require.True(t, ok)
	require.ErrorAs(t, p1.Submit(slot), &ErrForeignSlot{})
	require.ErrorAs(t, p1.Release(nil), &ErrForeignSlot{})
	require.Equal(t, StateHeld, slot.State())
}

func TestPoolAcquireBlocking(t *testing.T) {
	ctx := context.Background()
	p, err := New[int](1, nil)
	require.NoError(t, err)

	slot, err := p.AcquireBlocking(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Submit(slot))

	go func() {
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, p.OnReclaimed(slot))
	}()
	again, err := p.AcquireBlocking(ctx)
	require.NoError(t, err)
	require.Equal(t, slot, again)

	cancelCtx, cancelFn := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancelFn()
	_, err = p.AcquireBlocking(cancelCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Close()
	}()
	_, err = p.AcquireBlocking(ctx)
	require.ErrorIs(t, err, ErrClosed)

	// in-flight slots are still reclaimable after Close
	require.NoError(t, p.Submit(again))
	require.NoError(t, p.OnReclaimed(again))
	_, ok := p.TryAcquire()
	require.False(t, ok)
}

func TestPoolConcurrentOutOfOrderReclaim(t *testing.T) {
	const (
		poolSize  = 4
		producers = 3
		perWorker = 2000
	)
	ctx := context.Background()

	p, err := New(poolSize, func(idx int) *atomic.Int32 { return &atomic.Int32{} })
	require.NoError(t, err)

	var (
		maxObservedFree atomic.Int32
		wg              sync.WaitGroup
		owners          atomic.Int32
	)
	reclaimCh := make(chan *Slot[*atomic.Int32], poolSize)

	// the consumer reclaims slots in a shuffled order
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		var backlog []*Slot[*atomic.Int32]
		flush := func() {
			rand.Shuffle(len(backlog), func(i, j int) { backlog[i], backlog[j] = backlog[j], backlog[i] })
			for _, slot := range backlog {
				assert.Equal(t, int32(0), slot.Value.Add(-1))
				owners.Add(-1)
				assert.NoError(t, p.OnReclaimed(slot))
			}
			backlog = backlog[:0]
		}
		for slot := range reclaimCh {
			backlog = append(backlog, slot)
			if len(backlog) >= 1+rand.Intn(poolSize) {
				flush()
			}
		}
		flush()
	}()

	for w := 0; w < producers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				var slot *Slot[*atomic.Int32]
				if i%2 == 0 {
					var ok bool
					slot, ok = p.TryAcquire()
					if !ok {
						continue
					}
				} else {
					var err error
					slot, err = p.AcquireBlocking(ctx)
					if !assert.NoError(t, err) {
						return
					}
				}
				// no other party may own the slot at the same time
				if !assert.Equal(t, int32(1), slot.Value.Add(1)) {
					return
				}
				if n := owners.Add(1); n > poolSize {
					t.Errorf("too many owners: %d", n)
				}
				if free := int32(p.Stats().Free); free > maxObservedFree.Load() {
					maxObservedFree.Store(free)
				}
				if i%7 == 0 {
					slot.Value.Add(-1)
					owners.Add(-1)
					assert.NoError(t, p.Release(slot))
					continue
				}
				assert.NoError(t, p.Submit(slot))
				reclaimCh <- slot
			}
		}()
	}
	wg.Wait()
	close(reclaimCh)
	<-consumerDone

	require.LessOrEqual(t, maxObservedFree.Load(), int32(poolSize))
	require.Equal(t, Stats{Size: poolSize, Free: poolSize}, p.Stats())
}
