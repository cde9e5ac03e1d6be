package pool

// freeList is a LIFO stack of released slots. The links live in the free
// slots themselves (slot.next), so the list costs no memory of its own.
type freeList struct {
	head Handle
	len  int
}

func newFreeList() freeList {
	return freeList{head: NilHandle}
}

// push makes h the new head. link and state are the next and state fields
// of h's slot.
func (fl *freeList) push(h Handle, link *Handle, state *slotState) {
	*link = fl.head
	*state = slotFree
	fl.head = h
	fl.len++
}

// pop unlinks the head. next reads the link stored in the head slot.
func (fl *freeList) pop(next func(Handle) Handle) (Handle, bool) {
	if fl.head == NilHandle {
		return NilHandle, false
	}
	h := fl.head
	fl.head = next(h)
	fl.len--
	return h, true
}
