package pool

// slotHandle identifies one checked-out slot: the slot index plus the
// generation at which it was handed out. A handle from an earlier occupancy
// of the same slot never matches the current one.
type slotHandle struct {
	index uint32
	gen   uint32
}

// slotArena owns the pool's index space: which slots are free, which are
// checked out, and the bijection between slot index and byte offset inside
// the reservation. All slot address arithmetic is confined to this type;
// callers only ever see handles and offsets.
//
// Not safe for concurrent use; the pool serializes access.
type slotArena struct {
	stride  uintptr  // bytes per slot, guard included
	count   uint32   // total slots
	free    []uint32 // LIFO free list of slot indices
	freeSet *bitSet  // mirrors free; the authoritative membership record
	gen     []uint32 // per-slot generation, bumped on every allocation
}

func newSlotArena(count uint32, stride uintptr) *slotArena {
	a := &slotArena{
		stride:  stride,
		count:   count,
		free:    make([]uint32, 0, count),
		freeSet: newBitSet(count),
		gen:     make([]uint32, count),
	}
	// Push descending so the lowest index is handed out first.
	for i := count; i > 0; i-- {
		a.free = append(a.free, i-1)
		a.freeSet.set(i - 1)
	}
	return a
}

// allocate pops a free slot in O(1). ok is false when every slot is
// checked out.
func (a *slotArena) allocate() (slotHandle, bool) {
	if len(a.free) == 0 {
		return slotHandle{}, false
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	if !a.freeSet.has(idx) {
		panic("BUG: free list and free set disagree")
	}
	a.freeSet.clear(idx)
	a.gen[idx]++
	return slotHandle{index: idx, gen: a.gen[idx]}, true
}

// release returns a checked-out slot to the free set. Releasing a slot
// twice, or through a stale handle, is a programmer error.
func (a *slotArena) release(h slotHandle) {
	if h.index >= a.count {
		panic("BUG: slot index out of range")
	}
	if a.freeSet.has(h.index) {
		panic("BUG: slot released twice")
	}
	if a.gen[h.index] != h.gen {
		panic("BUG: stale slot handle released")
	}
	a.freeSet.set(h.index)
	a.free = append(a.free, h.index)
}

// offsetOf returns the byte offset of the slot's region, guard included.
func (a *slotArena) offsetOf(index uint32) uintptr {
	if index >= a.count {
		panic("BUG: slot index out of range")
	}
	return uintptr(index) * a.stride
}

// indexAt inverts offsetOf for any offset inside a slot's region.
func (a *slotArena) indexAt(off uintptr) (uint32, bool) {
	if off >= uintptr(a.count)*a.stride {
		return 0, false
	}
	return uint32(off / a.stride), true
}

// inUse returns how many slots are checked out.
func (a *slotArena) inUse() int {
	return int(a.count) - len(a.free)
}

// freeSlots returns the sorted indices currently free.
func (a *slotArena) freeSlots() []uint32 {
	return a.freeSet.toSlice()
}
