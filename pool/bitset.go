package pool

import "math/bits"

// bitSet is a fixed-capacity set of slot indices backed by a bitmap. The
// arena uses it as the authoritative free/checked-out record, so capacity is
// pinned at construction and out-of-range indices are programmer errors.
type bitSet struct {
	bits []uint64
	n    uint32
}

// newBitSet creates a set holding values in [0, n).
func newBitSet(n uint32) *bitSet {
	return &bitSet{bits: make([]uint64, (n+63)/64), n: n}
}

// set adds val to the set.
func (b *bitSet) set(val uint32) {
	b.check(val)
	b.bits[val/64] |= 1 << (val % 64)
}

// clear removes val from the set.
func (b *bitSet) clear(val uint32) {
	b.check(val)
	b.bits[val/64] &^= 1 << (val % 64)
}

// has reports whether val is in the set.
func (b *bitSet) has(val uint32) bool {
	b.check(val)
	return b.bits[val/64]&(1<<(val%64)) != 0
}

// count returns the number of elements in the set.
func (b *bitSet) count() int {
	c := 0
	for _, word := range b.bits {
		c += bits.OnesCount64(word)
	}
	return c
}

// toSlice returns a sorted slice of all values in the set.
func (b *bitSet) toSlice() []uint32 {
	var result []uint32
	for i, word := range b.bits {
		if word == 0 {
			continue
		}
		base := uint32(i * 64)
		for bit := 0; bit < 64; bit++ {
			if word&(1<<bit) != 0 {
				result = append(result, base+uint32(bit))
			}
		}
	}
	return result
}

func (b *bitSet) check(val uint32) {
	if val >= b.n {
		panic("BUG: slot index out of range")
	}
}
