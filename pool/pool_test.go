package pool

import (
	stderrors "errors"
	"math"
	"testing"
	"unsafe"

	"github.com/wippyai/wasm-exec/errors"
	"github.com/wippyai/wasm-exec/fiber"
	"github.com/wippyai/wasm-exec/internal/vm"
)

// Raw pointer helpers for poking at slot memory. Addresses come from the
// pool's own mapping.

func topBytePtr(top uintptr) unsafe.Pointer {
	return unsafe.Pointer(top - 1) //nolint:govet // address from our own mapping
}

func fill(lo, hi uintptr, v byte) {
	for a := lo; a < hi; a++ {
		*(*byte)(unsafe.Pointer(a)) = v //nolint:govet // address from our own mapping
	}
}

func readByte(a uintptr) byte {
	return *(*byte)(unsafe.Pointer(a)) //nolint:govet // address from our own mapping
}

func asError(err error, target **errors.Error) bool {
	return stderrors.As(err, target)
}

func mustPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		if errors.IsUnsupported(err) {
			t.Skip("platform lacks stack memory support")
		}
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestPoolAllocatePermuteDeallocate(t *testing.T) {
	const n = 4
	p := mustPool(t, Config{MaxStacks: n, StackSize: 16 * 1024})
	defer p.Close()

	stacks := make([]*fiber.Stack, 0, n)
	for i := 0; i < n; i++ {
		s, err := p.Allocate()
		if err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
		// Write a distinct pattern at the top of each stack.
		top := s.Top()
		b := (*byte)(topBytePtr(top))
		*b = byte(0xA0 + i)
		stacks = append(stacks, s)
	}
	if p.Len() != n {
		t.Fatalf("expected %d checked out, got %d", n, p.Len())
	}

	// Slots must be disjoint and guard-separated.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ilo, ihi := stacks[i].Range()
			jlo, jhi := stacks[j].Range()
			if ilo < jhi && jlo < ihi {
				t.Fatalf("stacks %d and %d overlap", i, j)
			}
		}
	}

	for _, i := range []int{2, 0, 3, 1} {
		p.Deallocate(stacks[i])
	}
	if !p.Empty() {
		t.Fatalf("expected empty pool, got %d checked out", p.Len())
	}
}

func TestPoolCapacityError(t *testing.T) {
	p := mustPool(t, Config{MaxStacks: 2, StackSize: 8 * 1024})
	defer p.Close()

	s1, err := p.Allocate()
	if err != nil {
		t.Fatalf("allocate 1 failed: %v", err)
	}
	s2, err := p.Allocate()
	if err != nil {
		t.Fatalf("allocate 2 failed: %v", err)
	}

	_, err = p.Allocate()
	if err == nil {
		t.Fatal("expected capacity error")
	}
	if !errors.IsCapacity(err) {
		t.Fatalf("expected capacity kind, got %v", err)
	}
	var e *errors.Error
	if !asError(err, &e) {
		t.Fatalf("expected structured error, got %T", err)
	}
	if e.Resource != "fiber stacks" {
		t.Errorf("capacity error should name the resource, got %q", e.Resource)
	}
	if e.Limit != 2 {
		t.Errorf("capacity error should name the limit, got %d", e.Limit)
	}

	// Freeing one slot makes allocation succeed again.
	p.Deallocate(s1)
	s3, err := p.Allocate()
	if err != nil {
		t.Fatalf("allocate after free failed: %v", err)
	}
	p.Deallocate(s2)
	p.Deallocate(s3)
}

func TestPoolScrubBetweenLeases(t *testing.T) {
	p := mustPool(t, Config{MaxStacks: 1, StackSize: 8 * 1024, ZeroOnReturn: true, KeepResident: 4 * 1024})
	defer p.Close()

	s, err := p.Allocate()
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	lo, hi := s.Range()
	first := vm.PageSize() // probe offsets spread across the stack
	fill(lo, hi, 0x42)
	p.Recycle(s)

	s2, err := p.Allocate()
	if err != nil {
		t.Fatalf("reallocate failed: %v", err)
	}
	lo2, hi2 := s2.Range()
	if lo2 != lo || hi2 != hi {
		t.Fatalf("single-slot pool must reuse the slot: [%#x,%#x) vs [%#x,%#x)", lo2, hi2, lo, hi)
	}
	for _, off := range []uintptr{0, uintptr(first), hi - lo - 1} {
		if v := readByte(lo + off); v != 0 {
			t.Fatalf("prior contents leaked at offset %#x: %#x", off, v)
		}
	}
	p.Deallocate(s2)
}

func TestPoolDeallocateScrubsAsBackstop(t *testing.T) {
	p := mustPool(t, Config{MaxStacks: 1, StackSize: 8 * 1024})
	defer p.Close()

	s, _ := p.Allocate()
	lo, hi := s.Range()
	fill(lo, hi, 0x77)
	// Plain Deallocate without ZeroStack must still scrub.
	p.Deallocate(s)

	s2, _ := p.Allocate()
	if v := readByte(lo); v != 0 {
		t.Fatalf("prior contents leaked through plain deallocate: %#x", v)
	}
	if v := readByte(hi - 1); v != 0 {
		t.Fatalf("prior contents leaked at the top: %#x", v)
	}
	p.Deallocate(s2)
}

func TestPoolZeroStackDecommitCallback(t *testing.T) {
	p := mustPool(t, Config{MaxStacks: 1, StackSize: 16 * 1024, ZeroOnReturn: true, KeepResident: 4 * 1024})
	defer p.Close()

	s, _ := p.Allocate()
	var calls int
	var total uintptr
	err := p.ZeroStack(s, func(lo, n uintptr) error {
		calls++
		total += n
		return p.decommitRange(lo, n)
	})
	if err != nil {
		t.Fatalf("ZeroStack failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 decommit call, got %d", calls)
	}
	want := uintptr(16*1024 - 4*1024)
	if total != want {
		t.Fatalf("expected %d bytes decommitted, got %d", want, total)
	}
	p.Deallocate(s)
}

func TestPoolDoubleDeallocatePanics(t *testing.T) {
	p := mustPool(t, Config{MaxStacks: 2, StackSize: 8 * 1024})
	defer p.Close()

	s, _ := p.Allocate()
	p.Deallocate(s)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double deallocate")
		}
	}()
	p.Deallocate(s)
}

func TestPoolForeignStackPanics(t *testing.T) {
	p := mustPool(t, Config{MaxStacks: 1, StackSize: 8 * 1024})
	defer p.Close()

	foreign := fiber.StackFromRaw(0x10000, 0x1000, 0x2000)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic deallocating a foreign stack")
		}
	}()
	p.Deallocate(foreign)
}

func TestPoolCloseWithOutstandingPanics(t *testing.T) {
	p := mustPool(t, Config{MaxStacks: 1, StackSize: 8 * 1024})
	s, _ := p.Allocate()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic closing with outstanding stacks")
			}
		}()
		_ = p.Close()
	}()

	p.Deallocate(s)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestPoolInvalidConfig(t *testing.T) {
	if _, err := New(Config{MaxStacks: -1}); err == nil {
		t.Error("expected error for negative MaxStacks")
	}
	if _, err := New(Config{StackSize: -1}); err == nil {
		t.Error("expected error for negative StackSize")
	}

	// Slot indices are 32-bit; a count that cannot fit one must be rejected
	// before any reservation is attempted.
	tooMany := int64(1) << 32
	if int64(math.MaxInt) >= tooMany {
		_, err := New(Config{MaxStacks: int(tooMany), StackSize: 1, GuardSize: 1})
		if err == nil {
			t.Fatal("expected error for MaxStacks beyond the slot index space")
		}
		if vm.Supported {
			var e *errors.Error
			if !asError(err, &e) || e.Kind != errors.KindInvalidInput {
				t.Errorf("expected invalid input, got %v", err)
			}
		}
	}
}
