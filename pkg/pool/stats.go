package pool

import (
	"github.com/apache/arrow-go/v18/arrow/bitutil"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Name     string `json:"name"`
	PageLen  int    `json:"page_len"`
	Pages    int    `json:"pages"`
	Capacity int    `json:"capacity"` // Pages * PageLen
	Live     int    `json:"live"`     // slots holding a value
	Free     int    `json:"free"`     // slots on the free list
	Unused   int    `json:"unused"`   // bump capacity never handed out
	Guards   int64  `json:"guards"`   // outstanding guards

	Allocs uint64 `json:"allocs"` // successful allocations
	Frees  uint64 `json:"frees"`  // successful frees
	Reuses uint64 `json:"reuses"` // allocations served by the free list
	Grows  uint64 `json:"grows"`  // pages added after the first

	Closed bool `json:"closed"`
}

// Stats returns a snapshot of the pool's occupancy and counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		Name:    p.name,
		PageLen: p.pageLen,
		Pages:   len(p.pages),
		Free:    p.free.len,
		Guards:  p.guards.Load(),
		Allocs:  p.allocs,
		Frees:   p.frees,
		Reuses:  p.reuses,
		Grows:   p.grows,
		Closed:  p.closed,
	}
	st.Capacity = st.Pages * p.pageLen
	used := 0
	for _, pg := range p.pages {
		used += pg.size
	}
	st.Unused = st.Capacity - used
	st.Live = used - st.Free
	return st
}

// Verify checks the pool's internal bookkeeping: the free list has no
// repeated or out-of-range entries, every slot on it is tagged free and
// every free-tagged slot is on it, no slot beyond a bump counter has been
// touched, and the live count matches the allocation counters.
//
// Verify holds the pool lock for a full scan; it is meant for tests and
// diagnostics.
func (p *Pool[T]) Verify() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New(errors.ErrorTypeClosed, "pool is closed").WithDetail("pool", p.name)
	}

	total := len(p.pages) * p.pageLen
	bitmap := allocBitmap(p.mem, total)
	defer p.mem.Free(bitmap)

	marked, err := markFree(bitmap, p.free.head, total, p.slotAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "free list is corrupt").WithDetail("pool", p.name)
	}
	if marked != p.free.len {
		return errors.New(errors.ErrorTypeInternal, "free list length mismatch").
			WithDetail("pool", p.name).
			WithDetail("walked", marked).
			WithDetail("recorded", p.free.len)
	}

	live := 0
	for pg := p.current; pg != nil; pg = pg.prev {
		for off := range pg.slots {
			s := &pg.slots[off]
			h := p.handleFor(pg, off)
			switch {
			case off >= pg.size:
				if s.state != slotUnused {
					return p.corrupt("slot beyond bump counter is in use", h, s.state)
				}
			case s.state == slotLive, s.state == slotReleasing:
				live++
			case s.state == slotFree:
				if !bitutil.BitIsSet(bitmap, int(h)) {
					return p.corrupt("free slot missing from the free list", h, s.state)
				}
			default:
				return p.corrupt("handed-out slot has no state", h, s.state)
			}
		}
	}

	if want := p.allocs - p.frees; uint64(live) != want {
		return errors.New(errors.ErrorTypeInternal, "live slots do not match counters").
			WithDetail("pool", p.name).
			WithDetail("live", live).
			WithDetail("allocs_minus_frees", want)
	}
	return nil
}

func (p *Pool[T]) corrupt(msg string, h Handle, state slotState) error {
	return errors.New(errors.ErrorTypeInternal, msg).
		WithDetail("pool", p.name).
		WithDetail("handle", uint64(h)).
		WithDetail("state", state.String())
}
