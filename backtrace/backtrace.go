package backtrace

import (
	"fmt"
	"unsafe"

	"github.com/wippyai/wasm-exec/internal/arch"
)

// Frame is one captured Wasm frame: its program counter and frame pointer.
// Frames hold plain addresses, never references into the walked stack, so a
// Backtrace stays valid after the stack is reused.
type Frame struct {
	PC uintptr
	FP uintptr
}

// Backtrace is a captured sequence of Wasm frames, most recent first.
type Backtrace struct {
	frames []Frame
}

// Frames returns the captured frames, most recent first.
func (b *Backtrace) Frames() []Frame {
	return b.frames
}

// State is the read-only execution state the walker consumes: where
// execution last left Wasm, where it entered, and any older nested
// activations below it.
//
// EntrySP may be SentinelEntrySP for activations whose entry never ran Wasm.
// Older returns nil when there is no older activation.
type State interface {
	ExitPC() uintptr
	ExitFP() uintptr
	EntrySP() uintptr
	Older() State
}

// SentinelEntrySP marks an activation that entered the host directly,
// without running Wasm: its region contributes zero frames and its fp is
// never dereferenced.
const SentinelEntrySP = ^uintptr(0)

// Capture walks every frame reachable from s into a Backtrace. A nil state
// yields an empty capture.
func Capture(s State) *Backtrace {
	b := &Backtrace{}
	Trace(s, func(f Frame) bool {
		b.frames = append(b.frames, f)
		return true
	})
	return b
}

// CaptureWithRegs is Capture with the most recent region rooted at pc/fp
// from a fault context instead of the recorded exit state.
func CaptureWithRegs(s State, pc, fp uintptr) *Backtrace {
	b := &Backtrace{}
	TraceWithRegs(s, pc, fp, func(f Frame) bool {
		b.frames = append(b.frames, f)
		return true
	})
	return b
}

// Trace invokes f for each frame, most recent first, across all contiguous
// Wasm regions of s and its older activations. f returns false to stop
// early.
func Trace(s State, f func(Frame) bool) {
	if s == nil {
		return
	}
	TraceWithRegs(s, s.ExitPC(), s.ExitFP(), f)
}

// TraceWithRegs is Trace with the most recent region rooted at pc/fp, the
// registers captured at a fault, bounded below by s's recorded entry.
func TraceWithRegs(s State, pc, fp uintptr, f func(Frame) bool) {
	if s == nil {
		return
	}
	if !traceThroughWasm(pc, fp, s.EntrySP(), f) {
		return
	}
	for older := s.Older(); older != nil; older = older.Older() {
		if !traceThroughWasm(older.ExitPC(), older.ExitFP(), older.EntrySP(), f) {
			return
		}
	}
}

// traceThroughWasm walks one contiguous region of Wasm frames starting at
// pc/fp, stopping at the entry frame identified by firstSP. Returns false
// if f stopped the walk early.
//
// The chain is only walkable under the code generator's contract: every
// frame stores its caller's fp at fp+NextOlderFPOffset and its return
// address at fp+ReturnAddrOffset, and fp moves strictly upward. Violations
// mean a corrupt stack and panic.
func traceThroughWasm(pc, fp, firstSP uintptr, f func(Frame) bool) bool {
	if firstSP == SentinelEntrySP {
		// This activation entered the host without running Wasm.
		return true
	}
	if pc == 0 {
		panic("BUG: walk from zero pc")
	}
	if fp == 0 {
		panic("BUG: walk from zero fp")
	}
	arch.AssertEntrySPAligned(firstSP)
	entryFP := firstSP - arch.EntryFrameOffset

	for {
		arch.AssertFPAligned(fp, "frame pointer")
		if fp > entryFP {
			panic(fmt.Sprintf("BUG: frame pointer %#x walked past the entry frame %#x", fp, entryFP))
		}
		if !f(Frame{PC: pc, FP: fp}) {
			return false
		}
		if fp == entryFP {
			// Reached the frame the entry trampoline established.
			return true
		}

		nextPC := *(*uintptr)(unsafe.Pointer(fp + arch.ReturnAddrOffset)) //nolint:govet // fp chain contract
		nextFP := *(*uintptr)(unsafe.Pointer(fp + arch.NextOlderFPOffset)) //nolint:govet // fp chain contract
		if nextFP <= fp {
			panic(fmt.Sprintf("BUG: frame pointer chain not monotonic: %#x -> %#x", fp, nextFP))
		}
		pc, fp = nextPC, nextFP
	}
}
