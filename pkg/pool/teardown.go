package pool

import (
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// Close tears the pool down. It runs the destructor of every slot that is
// still live, then releases all pages. Values freed through FreePtr,
// FreeRef or a Guard are not destructed again.
//
// Close fails with an errors.ErrorTypeBusy error, leaving the pool open,
// while guards are outstanding. Closing a closed pool returns an
// errors.ErrorTypeClosed error. Any other use of a closed pool panics.
//
// If teardown finds the free list or slot tags inconsistent, the pool is
// still closed and Close returns an errors.ErrorTypeInternal error
// describing the damage. Inconsistent slots are not destructed.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New(errors.ErrorTypeClosed, "pool already closed").
			WithDetail("pool", p.name)
	}
	if n := p.guards.Load(); n > 0 {
		p.mu.Unlock()
		return errors.New(errors.ErrorTypeBusy, "guards still outstanding").
			WithDetail("pool", p.name).
			WithDetail("guards", n)
	}
	p.closed = true
	current, pages, free := p.current, p.pages, p.free
	p.current, p.pages, p.spans = nil, nil, nil
	p.free = newFreeList()
	p.mu.Unlock()

	// Destructors are user code; run them without holding the lock.
	destroyed, err := p.teardown(current, pages, free)
	if err != nil {
		p.logger.Error("pool teardown found inconsistent slots", zap.Error(err))
	}
	p.logger.Info("pool closed",
		zap.Int("pages", len(pages)),
		zap.Int("destroyed", destroyed),
		zap.Int("free", free.len),
	)
	return err
}

// teardown computes slot liveness by walking the free list once into a
// bitmap, destructs every handed-out slot whose bit is clear (newest page
// first), and finally drops page storage.
func (p *Pool[T]) teardown(current *page[T], pages []*page[T], free freeList) (int, error) {
	total := len(pages) * p.pageLen
	bitmap := allocBitmap(p.mem, total)
	defer p.mem.Free(bitmap)

	lookup := func(h Handle) *slot[T] {
		return slotIn(pages, p.pageLen, h)
	}
	_, markErr := markFree(bitmap, free.head, total, lookup)

	var mismatched []uint64
	destroyed := 0
	for pg := current; pg != nil; pg = pg.prev {
		for off := 0; off < pg.size; off++ {
			idx := pg.ordinal*p.pageLen + off
			s := &pg.slots[off]
			if bitutil.BitIsSet(bitmap, idx) {
				if s.state != slotFree {
					mismatched = append(mismatched, uint64(idx))
				}
				continue
			}
			if s.state == slotReleasing {
				continue // its FreeRef or Guard runs the destructor
			}
			if s.state != slotLive {
				mismatched = append(mismatched, uint64(idx))
				continue
			}
			if p.destroy != nil {
				p.destroy(&s.value)
			}
			destroyed++
		}
	}

	for pg := current; pg != nil; {
		prev := pg.prev
		pg.release()
		pg = prev
	}

	if markErr != nil {
		return destroyed, markErr
	}
	if len(mismatched) > 0 {
		return destroyed, errors.New(errors.ErrorTypeInternal, "slot tags disagree with the free list").
			WithDetail("pool", p.name).
			WithDetail("handles", mismatched)
	}
	return destroyed, nil
}

// allocBitmap returns a zeroed bitmap with room for n bits.
func allocBitmap(mem memory.Allocator, n int) []byte {
	buf := mem.Allocate(int(bitutil.BytesForBits(int64(n))))
	clear(buf)
	return buf
}

// markFree sets the bit of every handle on the free list starting at head
// and returns how many were marked. A handle seen twice, a handle outside
// the first limit slots, or a list longer than limit is reported as an
// internal error; marking stops there.
func markFree[T any](bitmap []byte, head Handle, limit int, lookup func(Handle) *slot[T]) (int, error) {
	marked := 0
	for h := head; h != NilHandle; {
		if uint64(h) >= uint64(limit) {
			return marked, errors.New(errors.ErrorTypeInternal, "free list points outside the pool").
				WithDetail("handle", uint64(h))
		}
		if bitutil.BitIsSet(bitmap, int(h)) {
			return marked, errors.New(errors.ErrorTypeInternal, "handle appears twice in the free list").
				WithDetail("handle", uint64(h))
		}
		s := lookup(h)
		if s == nil {
			return marked, errors.New(errors.ErrorTypeInternal, "free list points at an unused slot").
				WithDetail("handle", uint64(h))
		}
		bitutil.SetBit(bitmap, int(h))
		marked++
		h = s.next
	}
	return marked, nil
}

func slotIn[T any](pages []*page[T], pageLen int, h Handle) *slot[T] {
	ord := uint64(h) / uint64(pageLen)
	off := int(uint64(h) % uint64(pageLen))
	if ord >= uint64(len(pages)) || off >= pages[ord].size {
		return nil
	}
	return &pages[ord].slots[off]
}
