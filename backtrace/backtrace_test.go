package backtrace

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/wippyai/wasm-exec/internal/arch"
)

// chain lays out n synthetic Wasm frames in Go memory, newest first. Each
// frame is a 16-byte record holding the caller's fp and the return address
// at the architecture's offsets; the oldest frame is the entry frame and its
// record is never written, so reading it would be caught.
type chain struct {
	buf     []uint64 // keeps the memory alive
	pcs     []uintptr
	fps     []uintptr
	entrySP uintptr
}

func buildChain(t *testing.T, n int) *chain {
	t.Helper()
	buf := make([]uint64, n*2+2)
	base := uintptr(unsafe.Pointer(&buf[0]))
	if base%16 != 0 {
		base += 8
	}
	c := &chain{buf: buf}
	for i := 0; i < n; i++ {
		c.fps = append(c.fps, base+uintptr(i)*16)
		c.pcs = append(c.pcs, 0x100000+uintptr(i)*0x10)
	}
	for i := 0; i < n-1; i++ {
		*(*uintptr)(unsafe.Pointer(c.fps[i] + arch.NextOlderFPOffset)) = c.fps[i+1]
		*(*uintptr)(unsafe.Pointer(c.fps[i] + arch.ReturnAddrOffset)) = c.pcs[i+1]
	}
	c.entrySP = c.fps[n-1] + arch.EntryFrameOffset
	return c
}

func (c *chain) state() *mockState {
	return &mockState{pc: c.pcs[0], fp: c.fps[0], sp: c.entrySP}
}

type mockState struct {
	pc, fp, sp uintptr
	older      *mockState
}

func (m *mockState) ExitPC() uintptr  { return m.pc }
func (m *mockState) ExitFP() uintptr  { return m.fp }
func (m *mockState) EntrySP() uintptr { return m.sp }

func (m *mockState) Older() State {
	if m.older == nil {
		return nil
	}
	return m.older
}

func checkFrames(t *testing.T, got []Frame, c *chain, which []int) {
	t.Helper()
	if len(got) != len(which) {
		t.Fatalf("expected %d frames, got %d", len(which), len(got))
	}
	for i, idx := range which {
		if got[i].PC != c.pcs[idx] || got[i].FP != c.fps[idx] {
			t.Fatalf("frame %d: expected (%#x,%#x), got (%#x,%#x)",
				i, c.pcs[idx], c.fps[idx], got[i].PC, got[i].FP)
		}
	}
}

func TestCaptureNilState(t *testing.T) {
	b := Capture(nil)
	if len(b.Frames()) != 0 {
		t.Fatalf("expected empty capture, got %d frames", len(b.Frames()))
	}
}

func TestCaptureSingleRegion(t *testing.T) {
	c := buildChain(t, 4)
	b := Capture(c.state())
	checkFrames(t, b.Frames(), c, []int{0, 1, 2, 3})
	runtime.KeepAlive(c.buf)
}

func TestCaptureSingleFrame(t *testing.T) {
	// The entry frame is also the newest frame: the walk must stop at the
	// boundary without dereferencing its record.
	c := buildChain(t, 1)
	b := Capture(c.state())
	checkFrames(t, b.Frames(), c, []int{0})
	runtime.KeepAlive(c.buf)
}

func TestCaptureSentinelEntrySP(t *testing.T) {
	// The sentinel means no Wasm ran: zero frames and no dereference, even
	// with a garbage exit state.
	s := &mockState{pc: 0, fp: 0, sp: SentinelEntrySP}
	b := Capture(s)
	if len(b.Frames()) != 0 {
		t.Fatalf("expected zero frames, got %d", len(b.Frames()))
	}
}

func TestTraceEarlyStop(t *testing.T) {
	c := buildChain(t, 4)
	var seen int
	Trace(c.state(), func(Frame) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Fatalf("expected walk to stop after 2 frames, got %d", seen)
	}
	runtime.KeepAlive(c.buf)
}

func TestCaptureNestedActivations(t *testing.T) {
	// Two Wasm regions separated by host frames, plus a host-to-host
	// activation between them that contributes nothing.
	newer := buildChain(t, 2)
	older := buildChain(t, 3)

	s := newer.state()
	s.older = &mockState{pc: 0, fp: 0, sp: SentinelEntrySP}
	s.older.older = older.state()

	b := Capture(s)
	if len(b.Frames()) != 5 {
		t.Fatalf("expected 5 frames across regions, got %d", len(b.Frames()))
	}
	checkFrames(t, b.Frames()[:2], newer, []int{0, 1})
	checkFrames(t, b.Frames()[2:], older, []int{0, 1, 2})
	runtime.KeepAlive(newer.buf)
	runtime.KeepAlive(older.buf)
}

func TestCaptureWithRegs(t *testing.T) {
	// The first region roots at fault-time registers, not the recorded exit
	// state; the recorded pc/fp would panic if consulted.
	c := buildChain(t, 3)
	s := c.state()
	s.pc, s.fp = 0, 0

	b := CaptureWithRegs(s, c.pcs[0], c.fps[0])
	checkFrames(t, b.Frames(), c, []int{0, 1, 2})
	runtime.KeepAlive(c.buf)
}

func TestMisalignedFPPanics(t *testing.T) {
	c := buildChain(t, 2)
	s := c.state()
	s.fp += 8

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for misaligned frame pointer")
		}
	}()
	Capture(s)
}

func TestZeroPCPanics(t *testing.T) {
	c := buildChain(t, 2)
	s := c.state()
	s.pc = 0

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero pc")
		}
	}()
	Capture(s)
}

func TestNonMonotonicChainPanics(t *testing.T) {
	c := buildChain(t, 3)
	// Point the newest frame's saved fp back at itself.
	*(*uintptr)(unsafe.Pointer(c.fps[0] + arch.NextOlderFPOffset)) = c.fps[0]

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-monotonic fp chain")
		}
	}()
	Capture(c.state())
}

func TestOvershootEntryFramePanics(t *testing.T) {
	c := buildChain(t, 2)
	s := c.state()
	// Root the walk above the entry frame.
	s.fp = c.fps[1] + 16

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for fp past the entry frame")
		}
	}()
	Capture(s)
}
