package pool

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// Guard owns one live slot and frees it exactly once.
//
// Release is normally deferred right after AllocGuard. A guard that becomes
// unreachable without being released keeps its slot live, since pointers
// obtained from Get may still be in use; a finalizer logs the leak. While
// any guard is outstanding, Close refuses to tear the pool down.
//
// Guards must not be copied; the atomic release flag makes go vet report
// copies.
type Guard[T any] struct {
	pool     *Pool[T]
	handle   Handle
	ref      *T
	released atomic.Bool
}

// AllocGuard allocates a slot holding v and binds it to a guard.
func (p *Pool[T]) AllocGuard(v T) *Guard[T] {
	p.mu.Lock()
	h, s := p.allocLocked("AllocGuard")
	p.guards.Add(1)
	p.mu.Unlock()

	s.value = v
	g := &Guard[T]{pool: p, handle: h, ref: &s.value}
	runtime.SetFinalizer(g, (*Guard[T]).finalize)
	return g
}

// Scope runs fn with a value held in a guarded slot. The slot is released
// when fn returns or panics; a panic is re-raised after the release.
func (p *Pool[T]) Scope(v T, fn func(*T) error) error {
	g := p.AllocGuard(v)
	defer g.Release()
	return fn(g.Get())
}

// Get returns a pointer to the guarded value. The pointer must not be used
// after Release.
func (g *Guard[T]) Get() *T {
	g.checkLive("Get")
	return g.ref
}

// Load returns a copy of the guarded value.
func (g *Guard[T]) Load() T {
	g.checkLive("Load")
	return *g.ref
}

// Store replaces the guarded value.
func (g *Guard[T]) Store(v T) {
	g.checkLive("Store")
	*g.ref = v
}

// Handle returns the handle of the guarded slot.
func (g *Guard[T]) Handle() Handle {
	return g.handle
}

// Released reports whether Release has run.
func (g *Guard[T]) Released() bool {
	return g.released.Load()
}

// Release runs the destructor and frees the slot. Only the first call has
// any effect.
//
// Releasing a guard whose slot was already freed through FreeRef or FreePtr
// panics with an errors.ErrorTypeContract error without running the
// destructor again.
func (g *Guard[T]) Release() {
	if !g.released.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(g, nil)
	g.pool.claimGuard(g.handle)
	g.pool.release(g.handle, g.ref, true)
}

func (g *Guard[T]) finalize() {
	if g.released.Load() {
		return
	}
	g.pool.logger.Warn("guard collected without Release",
		zap.Uint64("handle", uint64(g.handle)),
		zap.Int64("guards", g.pool.guards.Load()))
}

// claimGuard claims the slot of a guard being released. A guard whose slot
// is no longer live stops counting as outstanding before the violation
// panic propagates.
func (p *Pool[T]) claimGuard(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if v := recover(); v != nil {
			p.guards.Add(-1)
			panic(v)
		}
	}()
	p.resolveHandleLocked("Release", h)
	p.claimLocked(h)
}

func (g *Guard[T]) checkLive(op string) {
	if g.released.Load() {
		panic(errors.New(errors.ErrorTypeContract, "guard used after Release").
			WithDetail("pool", g.pool.name).
			WithDetail("handle", uint64(g.handle)).
			WithDetail("op", op))
	}
}
