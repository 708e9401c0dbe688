package fiber

import (
	"math"

	"github.com/wippyai/wasm-exec/errors"
	"github.com/wippyai/wasm-exec/internal/vm"
)

type stackOrigin uint8

const (
	originMapped stackOrigin = iota // owns a fresh reservation, unmapped on Close
	originRaw                       // adopted memory, reclaimed by its owner
)

// Stack is fiber stack memory: a usable range that grows downward toward an
// inaccessible guard page below it.
type Stack struct {
	mapping *vm.Mapping // non-nil only for originMapped
	base    uintptr     // lowest usable address, just above the guard
	size    uintptr     // usable length in bytes
	guard   uintptr     // guard length below base
	origin  stackOrigin
}

// NewStack maps a fresh stack with a one-page guard at the low end. size is
// the requested usable length and is rounded up to the page size; sizes 0
// and 1 yield a one-page stack.
func NewStack(size int) (*Stack, error) {
	if size < 0 {
		return nil, errors.InvalidInput(errors.PhaseSetup, "negative stack size")
	}
	if !vm.Supported {
		return nil, errors.Unsupported("fiber stacks need virtual memory primitives this platform lacks")
	}
	guard := vm.PageSize()
	// PageAlign wraps for sizes within a page of MaxInt, so bound size
	// before aligning it.
	if size > math.MaxInt-2*guard {
		return nil, errors.InvalidInput(errors.PhaseSetup, "stack size overflows the address space")
	}
	usable := vm.PageAlign(size)
	if usable == 0 {
		usable = vm.PageSize()
	}

	m, err := vm.Reserve(usable + guard)
	if err != nil {
		return nil, errors.Allocation(errors.PhaseSetup, "fiber stack mapping", err)
	}
	// The reservation starts fully inaccessible; committing everything above
	// the first page leaves that page as the guard.
	if err := m.CommitRW(uintptr(guard), uintptr(usable)); err != nil {
		_ = m.Release()
		return nil, errors.Protection(errors.PhaseSetup, "fiber stack pages", err)
	}
	return &Stack{
		mapping: m,
		base:    m.Base() + uintptr(guard),
		size:    uintptr(usable),
		guard:   uintptr(guard),
		origin:  originMapped,
	}, nil
}

// StackFromRaw adopts caller-owned memory as a fiber stack without any
// validation. base is the lowest usable address; the caller guarantees that
// [base, base+size) is writable, that guard bytes below base are
// inaccessible, and that the memory outlives the stack. Close never frees
// adopted memory.
func StackFromRaw(base uintptr, guard, size uintptr) *Stack {
	return &Stack{
		base:   base,
		size:   size,
		guard:  guard,
		origin: originRaw,
	}
}

// Top returns the exclusive upper bound of the usable range, the address
// execution starts from. It is 16-byte aligned for page-aligned sizes.
func (s *Stack) Top() uintptr {
	return s.base + s.size
}

// Range returns the usable range [lo, hi).
func (s *Stack) Range() (lo, hi uintptr) {
	return s.base, s.base + s.size
}

// GuardRange returns the inaccessible range [lo, hi) directly below the
// usable range.
func (s *Stack) GuardRange() (lo, hi uintptr) {
	return s.base - s.guard, s.base
}

// Len returns the usable length in bytes.
func (s *Stack) Len() int {
	return int(s.size)
}

// Close unmaps the stack's memory if this Stack owns it. Adopted stacks are
// reclaimed by their owner and Close is a no-op for them; a stack is never
// freed twice.
func (s *Stack) Close() error {
	if s.origin != originMapped || s.mapping == nil {
		return nil
	}
	m := s.mapping
	s.mapping = nil
	if err := m.Release(); err != nil {
		return errors.Wrap(errors.PhaseTeardown, errors.KindProtection, err, "release fiber stack mapping")
	}
	return nil
}
