package pool

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-exec/errors"
	"github.com/wippyai/wasm-exec/fiber"
	"github.com/wippyai/wasm-exec/internal/vm"
)

// Defaults applied to zero Config fields.
const (
	DefaultMaxStacks = 64
	DefaultStackSize = 512 * 1024
)

// Config describes a stack pool. Zero fields take the package defaults.
type Config struct {
	// MaxStacks caps how many stacks may be checked out at once. It also
	// fixes the reservation size; the pool never grows.
	MaxStacks int

	// StackSize is the usable byte length of each stack, rounded up to the
	// page size.
	StackSize int

	// GuardSize is the inaccessible span below each stack, rounded up to
	// the page size. One page if zero.
	GuardSize int

	// ZeroOnReturn zeroes the hot top of a returned stack eagerly, keeping
	// those pages resident, instead of decommitting the whole range. The
	// next occupant observes zeroes either way.
	ZeroOnReturn bool

	// KeepResident bounds the eagerly zeroed span when ZeroOnReturn is set.
	// Rounded up to the page size; one page if zero.
	KeepResident int
}

// lease tracks one checked-out stack.
type lease struct {
	handle   slotHandle
	scrubbed bool
}

// Pool hands out fixed-size, guard-paged fiber stacks carved from a single
// contiguous reservation. See the package documentation for the memory
// layout and the return policy.
type Pool struct {
	mu      sync.Mutex
	mapping *vm.Mapping
	arena   *slotArena
	leases  map[*fiber.Stack]*lease

	maxStacks    int
	stackSize    uintptr // page-rounded usable length
	guardSize    uintptr // page-rounded guard length
	stride       uintptr // guardSize + stackSize
	zeroOnReturn bool
	keepResident uintptr
}

// New reserves the pool's memory. Every slot starts fully inaccessible;
// pages are committed when a slot is handed out.
func New(cfg Config) (*Pool, error) {
	if !vm.Supported {
		return nil, errors.Unsupported("stack pools need virtual memory primitives this platform lacks")
	}
	if cfg.MaxStacks < 0 {
		return nil, errors.InvalidInput(errors.PhaseSetup, "MaxStacks must not be negative")
	}
	if cfg.StackSize < 0 || cfg.GuardSize < 0 || cfg.KeepResident < 0 {
		return nil, errors.InvalidInput(errors.PhaseSetup, "sizes must not be negative")
	}

	maxStacks := cfg.MaxStacks
	if maxStacks == 0 {
		maxStacks = DefaultMaxStacks
	}
	stackSize := cfg.StackSize
	if stackSize == 0 {
		stackSize = DefaultStackSize
	}
	stackSize = vm.PageAlign(stackSize)
	guardSize := cfg.GuardSize
	if guardSize == 0 {
		guardSize = vm.PageSize()
	}
	guardSize = vm.PageAlign(guardSize)
	keepResident := cfg.KeepResident
	if keepResident == 0 {
		keepResident = vm.PageSize()
	}
	keepResident = vm.PageAlign(keepResident)

	if stackSize > math.MaxInt-guardSize {
		return nil, errors.InvalidInput(errors.PhaseSetup, "slot size overflows")
	}
	stride := stackSize + guardSize
	if maxStacks > math.MaxInt/stride {
		return nil, errors.InvalidInput(errors.PhaseSetup, "pool size overflows the address space")
	}
	// Slot indices are 32-bit.
	if uint64(maxStacks) > math.MaxUint32 {
		return nil, errors.InvalidInput(errors.PhaseSetup, "MaxStacks exceeds the slot index space")
	}

	m, err := vm.Reserve(stride * maxStacks)
	if err != nil {
		return nil, errors.Allocation(errors.PhaseSetup, "stack pool mapping", err)
	}

	p := &Pool{
		mapping:      m,
		arena:        newSlotArena(uint32(maxStacks), uintptr(stride)),
		leases:       make(map[*fiber.Stack]*lease),
		maxStacks:    maxStacks,
		stackSize:    uintptr(stackSize),
		guardSize:    uintptr(guardSize),
		stride:       uintptr(stride),
		zeroOnReturn: cfg.ZeroOnReturn,
		keepResident: uintptr(keepResident),
	}
	Logger().Debug("stack pool created",
		zap.Int("slots", maxStacks),
		zap.Int("stack_size", stackSize),
		zap.Int("guard_size", guardSize))
	return p, nil
}

// Allocate checks out a stack in O(1). When every slot is taken it returns
// a capacity error naming the resource and the configured maximum; callers
// treat that as backpressure, not failure.
func (p *Pool) Allocate() (*fiber.Stack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mapping == nil {
		panic("BUG: allocate on a closed stack pool")
	}

	h, ok := p.arena.allocate()
	if !ok {
		return nil, errors.Capacity("fiber stacks", p.maxStacks)
	}
	off := p.arena.offsetOf(h.index)
	// Commit only the usable range; the slot's first pages stay inaccessible
	// as the guard.
	if err := p.mapping.CommitRW(off+p.guardSize, p.stackSize); err != nil {
		p.arena.release(h)
		return nil, errors.Protection(errors.PhaseExecute, "pooled stack pages", err)
	}

	s := fiber.StackFromRaw(p.mapping.Base()+off+p.guardSize, p.guardSize, p.stackSize)
	p.leases[s] = &lease{handle: h}
	return s, nil
}

// ZeroStack scrubs a checked-out stack so its next occupant cannot observe
// prior contents. With ZeroOnReturn the top KeepResident bytes are zeroed in
// place and the remainder is decommitted; otherwise the whole usable range
// is decommitted. decommit receives absolute address ranges and may batch;
// nil uses the pool's mapping directly. If decommitting fails the range is
// zeroed in place instead and the failure is returned.
//
// ZeroStack must complete before the stack is deallocated. Deallocate
// scrubs unscrubbed stacks itself as a backstop.
func (p *Pool) ZeroStack(s *fiber.Stack, decommit func(lo, n uintptr) error) error {
	p.mu.Lock()
	l, ok := p.leases[s]
	if !ok {
		p.mu.Unlock()
		panic("BUG: zero of a stack this pool does not own")
	}
	l.scrubbed = true
	off := p.arena.offsetOf(l.handle.index) + p.guardSize
	p.mu.Unlock()

	// The slot stays checked out to the caller, so the memory itself can be
	// scrubbed outside the lock.
	var memsetLen uintptr
	if p.zeroOnReturn {
		memsetLen = min(p.keepResident, p.stackSize)
	}
	decommitLen := p.stackSize - memsetLen

	if memsetLen > 0 {
		clear(p.mapping.Slice(off+decommitLen, memsetLen))
	}
	if decommitLen > 0 {
		fn := decommit
		if fn == nil {
			fn = p.decommitRange
		}
		if err := fn(p.mapping.Base()+off, decommitLen); err != nil {
			// The next occupant must still see zeroes.
			clear(p.mapping.Slice(off, decommitLen))
			return errors.Wrap(errors.PhaseTeardown, errors.KindProtection, err, "decommit pooled stack")
		}
	}
	return nil
}

func (p *Pool) decommitRange(lo, n uintptr) error {
	return p.mapping.Decommit(lo-p.mapping.Base(), n)
}

// Deallocate returns a stack to the pool in O(1). The stack must not be
// touched afterwards; returning a stack twice, or one this pool does not
// own, is a programmer error.
func (p *Pool) Deallocate(s *fiber.Stack) {
	p.mu.Lock()
	l, ok := p.leases[s]
	p.mu.Unlock()
	if !ok {
		panic("BUG: deallocate of a stack this pool does not own")
	}
	// The slot derived from the stack's address must agree with the lease.
	lo, _ := s.Range()
	if idx, ok := p.arena.indexAt(lo - p.guardSize - p.mapping.Base()); !ok || idx != l.handle.index {
		panic("BUG: stack address does not match its slot")
	}
	if !l.scrubbed {
		if err := p.ZeroStack(s, nil); err != nil {
			Logger().Warn("stack scrub fell back to in-place zeroing", zap.Error(err))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.leases[s]; !ok {
		panic("BUG: stack returned twice")
	}
	delete(p.leases, s)
	p.arena.release(l.handle)
}

// Recycle scrubs and returns a stack in one call.
func (p *Pool) Recycle(s *fiber.Stack) {
	if err := p.ZeroStack(s, nil); err != nil {
		Logger().Warn("stack scrub fell back to in-place zeroing", zap.Error(err))
	}
	p.Deallocate(s)
}

// Len returns how many stacks are currently checked out.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.arena.inUse()
}

// Cap returns the configured maximum number of concurrent stacks.
func (p *Pool) Cap() int {
	return p.maxStacks
}

// Empty reports whether no stacks are checked out.
func (p *Pool) Empty() bool {
	return p.Len() == 0
}

// Close releases the reservation. Closing while stacks are checked out is a
// programmer error: their memory would vanish under their users.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mapping == nil {
		return nil
	}
	if n := p.arena.inUse(); n != 0 {
		panic(fmt.Sprintf("BUG: stack pool closed with %d stacks checked out", n))
	}
	m := p.mapping
	p.mapping = nil
	if err := m.Release(); err != nil {
		return errors.Wrap(errors.PhaseTeardown, errors.KindProtection, err, "release stack pool mapping")
	}
	return nil
}
