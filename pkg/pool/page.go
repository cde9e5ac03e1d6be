package pool

import (
	"sort"
	"unsafe"
)

// Handle identifies one slot of a pool. It is the slot's global index,
// page ordinal * page length + offset, and stays valid for the lifetime of
// the pool.
type Handle uint64

// NilHandle is the "no slot" handle. It also terminates the free list.
const NilHandle = ^Handle(0)

type slotState uint8

const (
	slotUnused slotState = iota // beyond the page's bump counter
	slotFree                    // on the free list, next is meaningful
	slotLive                    // holds a value owned by one caller
	slotReleasing               // claimed by FreeRef or a Guard, destructor running
)

func (s slotState) String() string {
	switch s {
	case slotUnused:
		return "unused"
	case slotFree:
		return "free"
	case slotLive:
		return "live"
	case slotReleasing:
		return "releasing"
	default:
		return "invalid"
	}
}

// slot is one fixed-size cell of a page. value comes first so a *T handed
// out by the pool has the same address as its slot.
type slot[T any] struct {
	value T
	next  Handle
	state slotState
}

// page is a fixed-capacity block of slots. The slots slice is allocated
// once and never resized, so slot addresses are stable.
type page[T any] struct {
	slots   []slot[T]
	size    int // slots handed out by bump allocation
	prev    *page[T]
	ordinal int

	base uintptr
	end  uintptr
}

func newPage[T any](ordinal, pageLen int, prev *page[T]) *page[T] {
	pg := &page[T]{
		slots:   make([]slot[T], pageLen),
		prev:    prev,
		ordinal: ordinal,
	}
	pg.base = uintptr(unsafe.Pointer(&pg.slots[0]))
	pg.end = pg.base + uintptr(pageLen)*unsafe.Sizeof(pg.slots[0])
	return pg
}

// reserveSlot bump-allocates the next never-used slot. It reports false
// when the page is full. Callers serialize access.
func (pg *page[T]) reserveSlot() (int, bool) {
	if pg.size >= len(pg.slots) {
		return 0, false
	}
	off := pg.size
	pg.size++
	return off, true
}

func (pg *page[T]) full() bool {
	return pg.size >= len(pg.slots)
}

// offsetOf maps a value pointer back to its slot offset. Pointers into the
// middle of a slot, or outside the page, are rejected.
func (pg *page[T]) offsetOf(ref *T) (int, bool) {
	addr := uintptr(unsafe.Pointer(ref))
	if addr < pg.base || addr >= pg.end {
		return 0, false
	}
	stride := unsafe.Sizeof(pg.slots[0])
	delta := addr - pg.base
	if delta%stride != 0 {
		return 0, false
	}
	return int(delta / stride), true
}

// release drops the page's slot storage.
func (pg *page[T]) release() {
	pg.slots = nil
	pg.size = 0
	pg.prev = nil
	pg.base, pg.end = 0, 0
}

// spanTable keeps pages ordered by storage address so a *T can be mapped
// back to its page in O(log pages).
type spanTable[T any] []*page[T]

func (st spanTable[T]) insert(pg *page[T]) spanTable[T] {
	i := sort.Search(len(st), func(i int) bool { return st[i].base > pg.base })
	st = append(st, nil)
	copy(st[i+1:], st[i:])
	st[i] = pg
	return st
}

func (st spanTable[T]) find(ref *T) (*page[T], int, bool) {
	addr := uintptr(unsafe.Pointer(ref))
	i := sort.Search(len(st), func(i int) bool { return st[i].base > addr })
	if i == 0 {
		return nil, 0, false
	}
	pg := st[i-1]
	off, ok := pg.offsetOf(ref)
	if !ok {
		return nil, 0, false
	}
	return pg, off, true
}
