// Package pool implements a goroutine-safe, fixed-slot memory pool for
// values of a single type. It serves repeated same-sized allocations from
// pre-allocated pages and recycles released slots, so steady-state
// allocation never touches the Go allocator.
//
// # Architecture
//
// A Pool[T] owns a chain of pages, newest first. Each page holds PageLen
// slots and a bump counter; a slot is either unused tail capacity, free, or
// live. Allocation pops the free list when it is non-empty and otherwise
// bump-allocates from the current page, adding a page when the current one
// is full. Pages are never moved or partially released, so a slot's address
// and Handle stay valid until the pool is closed.
//
// The free list is threaded through the released slots themselves: each
// free slot stores the handle of the next one. Slots carry an explicit
// state tag, so a double free or a handle from another pool is detected
// and reported instead of corrupting the list.
//
// One mutex guards the free-list head, the page chain and the bump
// counters. Values are read, written and destructed outside the lock.
//
// # Usage Patterns
//
// Raw handles, manual lifetime. FreePtr does not run the destructor:
//
//	p := pool.NewWithCapacity[Order](1024)
//	h := p.AllocPtr()
//	p.Deref(h).ID = 42
//	p.FreePtr(h)
//
// References, manual lifetime. FreeRef runs the destructor:
//
//	ref := p.AllocRef(Order{ID: 42})
//	ref.Qty++
//	p.FreeRef(ref)
//
// Guards, released exactly once:
//
//	g := p.AllocGuard(Order{ID: 42})
//	defer g.Release()
//	g.Get().Qty++
//
// Scoped use, released on return or panic:
//
//	err := p.Scope(Order{ID: 42}, func(o *Order) error {
//		return submit(o)
//	})
//
// # Teardown
//
// Close walks the free list once to build a liveness bitmap, then runs the
// destructor for every handed-out slot that is not free, newest page first,
// and releases the pages. Values freed earlier are never destructed twice.
// Close refuses to run while guards are outstanding. If the bookkeeping is
// inconsistent, Close still closes the pool but returns an ErrorTypeInternal
// error naming the slots it skipped.
//
// A Guard dropped without Release keeps its slot live: the finalizer only
// logs a warning, since a *T obtained from Get may still be in use.
//
// # Contract Violations
//
// Freeing a slot twice, passing a handle or reference that this pool did
// not hand out, touching a released guard, or using a closed pool panics
// with an *errors.Error of type ErrorTypeContract or ErrorTypeClosed. These
// are programming errors and are never returned as error values.
//
// # Metrics
//
// Stats returns a snapshot (pages, live, free and unused slots, counters)
// and Verify checks the pool's bookkeeping. The metrics package exports
// Stats to Prometheus.
package pool
