// Package vm provides the page-grained anonymous memory operations the fiber
// stack layer is built on: reserving inaccessible address ranges, committing
// sub-ranges read-write, decommitting them back to zero-filled pages, and
// releasing whole reservations.
//
// A reservation starts fully inaccessible (PROT_NONE equivalent), so guard
// pages are simply the parts that are never committed. Decommit guarantees
// that the next read of the range observes zeroes; on platforms where the
// cheap kernel hint cannot promise that, a fresh fixed mapping is used
// instead.
//
// All offsets and lengths must be page-aligned. Violations are programmer
// errors and panic.
package vm

import (
	"fmt"
	"os"
)

// Mapping is a contiguous anonymous reservation obtained from Reserve.
// The zero value is not usable.
type Mapping struct {
	data []byte
}

// Reserve maps size bytes of inaccessible anonymous memory.
// size must be a positive multiple of the page size.
func Reserve(size int) (*Mapping, error) {
	if size <= 0 || size%PageSize() != 0 {
		panic(fmt.Sprintf("BUG: vm.Reserve size %d is not a positive page multiple", size))
	}
	b, err := reserve(size)
	if err != nil {
		return nil, fmt.Errorf("reserve %d bytes: %w", size, err)
	}
	return &Mapping{data: b}, nil
}

// Base returns the address of the first byte of the reservation.
func (m *Mapping) Base() uintptr {
	return sliceAddr(m.data)
}

// Len returns the total reservation length in bytes.
func (m *Mapping) Len() int {
	return len(m.data)
}

// Slice returns a view of n bytes at off. The caller must have committed
// the range; touching uncommitted bytes faults.
func (m *Mapping) Slice(off, n uintptr) []byte {
	m.check(off, n)
	return m.data[off : off+n : off+n]
}

// CommitRW makes n bytes at off readable and writable.
func (m *Mapping) CommitRW(off, n uintptr) error {
	m.check(off, n)
	if err := commit(m.data[off : off+n]); err != nil {
		return fmt.Errorf("commit [%#x,%#x): %w", off, off+n, err)
	}
	return nil
}

// Decommit returns n bytes at off to zero-filled demand pages. The range
// stays readable and writable; the next access observes zeroes.
func (m *Mapping) Decommit(off, n uintptr) error {
	m.check(off, n)
	if err := decommit(m.data[off : off+n]); err != nil {
		return fmt.Errorf("decommit [%#x,%#x): %w", off, off+n, err)
	}
	return nil
}

// Release unmaps the whole reservation. The mapping must not be used after.
func (m *Mapping) Release() error {
	b := m.data
	m.data = nil
	if b == nil {
		return nil
	}
	if err := release(b); err != nil {
		return fmt.Errorf("release mapping: %w", err)
	}
	return nil
}

func (m *Mapping) check(off, n uintptr) {
	page := uintptr(PageSize())
	if off%page != 0 || n%page != 0 {
		panic(fmt.Sprintf("BUG: vm range [%#x,%#x) is not page aligned", off, off+n))
	}
	if off+n < off || off+n > uintptr(len(m.data)) {
		panic(fmt.Sprintf("BUG: vm range [%#x,%#x) outside mapping of %d bytes", off, off+n, len(m.data)))
	}
}

// PageSize returns the OS page size.
func PageSize() int {
	return os.Getpagesize()
}

// PageAlign rounds n up to the next page multiple.
func PageAlign(n int) int {
	page := PageSize()
	return (n + page - 1) &^ (page - 1)
}
