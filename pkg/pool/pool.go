package pool

import (
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/logger"
)

// DefaultPageLen is the number of slots per page used by New.
const DefaultPageLen = 64

// Pool is a fixed-slot allocator for values of type T.
//
// The zero value is not usable; create pools with New or NewWithCapacity.
type Pool[T any] struct {
	mu sync.Mutex

	name    string
	pageLen int

	current *page[T]     // newest page, head of the prev chain
	pages   []*page[T]   // directory by ordinal, for handle lookup
	spans   spanTable[T] // pages by address, for reference lookup
	free    freeList
	closed  bool

	// guarded by mu
	allocs uint64
	frees  uint64
	reuses uint64
	grows  uint64

	guards atomic.Int64

	destroy func(*T)
	logger  *zap.Logger
	mem     memory.Allocator
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithDestructor sets the function run on a value when its slot is freed
// through FreeRef, a Guard, or Close.
func WithDestructor[T any](fn func(*T)) Option[T] {
	return func(p *Pool[T]) {
		p.destroy = fn
	}
}

// WithLogger sets the pool's logger.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(p *Pool[T]) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithName names the pool in logs, errors and metrics.
func WithName[T any](name string) Option[T] {
	return func(p *Pool[T]) {
		p.name = name
	}
}

// WithAllocator sets the allocator used for teardown and verification
// scratch space.
func WithAllocator[T any](mem memory.Allocator) Option[T] {
	return func(p *Pool[T]) {
		if mem != nil {
			p.mem = mem
		}
	}
}

// New creates a pool with DefaultPageLen slots per page.
func New[T any](opts ...Option[T]) *Pool[T] {
	return NewWithCapacity(DefaultPageLen, opts...)
}

// NewWithCapacity creates a pool with pageLen slots per page. A pageLen of
// zero or less selects DefaultPageLen.
//
// Larger pages amortize page allocation over more slots but waste more
// memory when they are not filled.
func NewWithCapacity[T any](pageLen int, opts ...Option[T]) *Pool[T] {
	if pageLen <= 0 {
		pageLen = DefaultPageLen
	}
	p := &Pool[T]{
		name:    "pool",
		pageLen: pageLen,
		free:    newFreeList(),
		mem:     memory.DefaultAllocator,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("pool")
	}
	p.logger = p.logger.With(zap.String("pool", p.name))

	first := newPage[T](0, pageLen, nil)
	p.current = first
	p.pages = append(p.pages, first)
	p.spans = p.spans.insert(first)
	return p
}

// Name returns the pool's name.
func (p *Pool[T]) Name() string {
	return p.name
}

// PageLen returns the number of slots per page.
func (p *Pool[T]) PageLen() int {
	return p.pageLen
}

// AllocPtr reserves a slot and returns its handle. The slot holds the zero
// value of T. The caller owns the slot until it passes the handle to
// FreePtr.
func (p *Pool[T]) AllocPtr() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, _ := p.allocLocked("AllocPtr")
	return h
}

// Deref returns a pointer to the value held by a live slot.
func (p *Pool[T]) Deref(h Handle) *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkOpen("Deref")
	s := p.slotAt(h)
	if s == nil {
		panic(p.violation("handle does not belong to this pool", h))
	}
	if s.state != slotLive {
		panic(p.violation("handle refers to a slot that is not live", h).
			WithDetail("state", s.state.String()))
	}
	return &s.value
}

// FreePtr returns a slot to the free list without running the destructor.
// h must come from AllocPtr on this pool and must not have been freed.
// Violations panic with an errors.ErrorTypeContract error.
func (p *Pool[T]) FreePtr(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeLocked("FreePtr", h)
}

// AllocRef allocates a slot holding v and returns a reference to it. The
// caller must pass the reference to FreeRef exactly once.
func (p *Pool[T]) AllocRef(v T) *T {
	p.mu.Lock()
	_, s := p.allocLocked("AllocRef")
	p.mu.Unlock()

	s.value = v
	return &s.value
}

// FreeRef runs the destructor on the referenced value and returns its slot
// to the free list. ref must come from AllocRef on this pool.
func (p *Pool[T]) FreeRef(ref *T) {
	p.mu.Lock()
	h := p.resolveRefLocked("FreeRef", ref)
	p.claimLocked(h)
	p.mu.Unlock()

	p.release(h, ref, false)
}

// Handle returns the handle of the slot a reference points into.
func (p *Pool[T]) Handle(ref *T) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveRefLocked("Handle", ref)
}

// PageOf returns the ordinal of the page holding h.
func (p *Pool[T]) PageOf(h Handle) int {
	return int(uint64(h) / uint64(p.pageLen))
}

func (p *Pool[T]) resolveRefLocked(op string, ref *T) Handle {
	p.checkOpen(op)
	if ref == nil {
		panic(p.violation("nil reference", NilHandle))
	}
	pg, off, ok := p.spans.find(ref)
	if !ok || off >= pg.size {
		panic(p.violation("reference does not point into this pool", NilHandle))
	}
	h := p.handleFor(pg, off)
	if pg.slots[off].state != slotLive {
		panic(p.violation("reference refers to a slot that is not live", h).
			WithDetail("state", pg.slots[off].state.String()))
	}
	return h
}

// claimLocked moves a live slot to releasing, so a second free of the same
// slot fails before any destructor runs.
func (p *Pool[T]) claimLocked(h Handle) {
	p.slotAt(h).state = slotReleasing
}

// resolveHandleLocked checks that h names a live slot of this pool.
func (p *Pool[T]) resolveHandleLocked(op string, h Handle) {
	p.checkOpen(op)
	s := p.slotAt(h)
	if s == nil {
		panic(p.violation("handle does not belong to this pool", h))
	}
	if s.state != slotLive {
		panic(p.violation("slot freed twice or never allocated", h).
			WithDetail("state", s.state.String()))
	}
}

// release runs the destructor on a claimed slot outside the lock, then
// puts the slot on the free list. If the pool was closed meanwhile,
// teardown has skipped the slot and there is nothing left to free.
func (p *Pool[T]) release(h Handle, ref *T, guard bool) {
	if p.destroy != nil {
		p.destroy(ref)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if guard {
		p.guards.Add(-1)
	}
	if p.closed {
		return
	}
	s := p.slotAt(h)
	var zero T
	s.value = zero
	p.free.push(h, &s.next, &s.state)
	p.frees++
}

func (p *Pool[T]) allocLocked(op string) (Handle, *slot[T]) {
	p.checkOpen(op)

	if h, ok := p.free.pop(p.nextFree); ok {
		s := p.slotAt(h)
		s.state = slotLive
		s.next = NilHandle
		p.allocs++
		p.reuses++
		return h, s
	}

	if p.current.full() {
		p.grow()
	}
	off, _ := p.current.reserveSlot()
	s := &p.current.slots[off]
	s.state = slotLive
	s.next = NilHandle
	p.allocs++
	return p.handleFor(p.current, off), s
}

func (p *Pool[T]) freeLocked(op string, h Handle) {
	p.resolveHandleLocked(op, h)
	s := p.slotAt(h)
	var zero T
	s.value = zero
	p.free.push(h, &s.next, &s.state)
	p.frees++
}

// grow links a fresh page in front of the chain and makes it current.
func (p *Pool[T]) grow() {
	pg := newPage[T](len(p.pages), p.pageLen, p.current)
	p.current = pg
	p.pages = append(p.pages, pg)
	p.spans = p.spans.insert(pg)
	p.grows++

	if ce := p.logger.Check(zap.DebugLevel, "page allocated"); ce != nil {
		ce.Write(
			zap.Int("page", pg.ordinal),
			zap.Int("pages", len(p.pages)),
			zap.Int("page_len", p.pageLen),
		)
	}
}

func (p *Pool[T]) nextFree(h Handle) Handle {
	return p.slotAt(h).next
}

func (p *Pool[T]) handleFor(pg *page[T], off int) Handle {
	return Handle(uint64(pg.ordinal)*uint64(p.pageLen) + uint64(off))
}

// slotAt resolves a handle to a slot that has been handed out at least
// once, or nil.
func (p *Pool[T]) slotAt(h Handle) *slot[T] {
	return slotIn(p.pages, p.pageLen, h)
}

func (p *Pool[T]) checkOpen(op string) {
	if p.closed {
		panic(errors.New(errors.ErrorTypeClosed, "pool is closed").
			WithDetail("pool", p.name).
			WithDetail("op", op))
	}
}

func (p *Pool[T]) violation(msg string, h Handle) *errors.Error {
	err := errors.New(errors.ErrorTypeContract, msg).WithDetail("pool", p.name)
	if h != NilHandle {
		err = err.WithDetail("handle", uint64(h))
	}
	p.logger.Error("pool contract violation", zap.Error(err))
	return err
}
