package trap

import (
	"context"

	"github.com/wippyai/wasm-exec/backtrace"
	"github.com/wippyai/wasm-exec/internal/arch"
)

// Activation tracks one host-to-Wasm call: the store it runs against, the
// register state at the most recent exit back into the host, and a link to
// the activation that was live when this one was entered. Activations form
// the older-frames chain the backtrace walker consumes, newest first.
//
// An activation travels in the context.Context of the call that opened it.
// Nothing here touches thread-local state; the chain is explicit.
type Activation struct {
	store   any
	prev    *Activation
	exitPC  uintptr
	exitFP  uintptr
	entrySP uintptr

	pending *InjectedCall
	fault   *faultInfo
}

type faultInfo struct {
	code    Code
	addr    uintptr
	hasAddr bool
}

type activationKey struct{}

// Enter opens an activation for a call into Wasm on behalf of store. The
// activation already carried by ctx, if any, becomes its older link. The
// returned context carries the new activation and should scope the call.
//
// Until RecordEntry is called the entry stack pointer holds the sentinel,
// so a backtrace taken before any Wasm frame exists yields this activation
// as an empty contribution rather than garbage frames.
func Enter(ctx context.Context, store any) (context.Context, *Activation) {
	a := &Activation{
		store:   store,
		prev:    GetActivation(ctx),
		entrySP: backtrace.SentinelEntrySP,
	}
	return context.WithValue(ctx, activationKey{}, a), a
}

// Exit closes the activation when the call unwinds, normally or via trap.
// A pending injected call at exit means the redirect was never consumed.
func (a *Activation) Exit() {
	if a.pending != nil {
		panic("BUG: activation exited with an injected call still pending")
	}
	a.fault = nil
}

// GetActivation returns the innermost activation carried by ctx, or nil.
func GetActivation(ctx context.Context) *Activation {
	a, _ := ctx.Value(activationKey{}).(*Activation)
	return a
}

// WithActivation returns ctx carrying a. Enter does this for the
// activations it opens; WithActivation re-attaches one to a derived
// context that lost it.
func WithActivation(ctx context.Context, a *Activation) context.Context {
	return context.WithValue(ctx, activationKey{}, a)
}

// Store returns the store value the activation was entered with.
func (a *Activation) Store() any { return a.store }

// RecordEntry stores the stack pointer captured by the entry trampoline at
// the host-to-Wasm boundary. The walker stops one frame short of this
// address, where the trampoline's frame begins.
func (a *Activation) RecordEntry(sp uintptr) {
	if sp != backtrace.SentinelEntrySP {
		arch.AssertEntrySPAligned(sp)
	}
	a.entrySP = sp
}

// RecordExit stores the program counter and frame pointer live at the most
// recent transition out of Wasm, whether a hostcall or a fault.
func (a *Activation) RecordExit(pc, fp uintptr) {
	a.exitPC = pc
	a.exitFP = fp
}

// ExitPC implements backtrace.State.
func (a *Activation) ExitPC() uintptr { return a.exitPC }

// ExitFP implements backtrace.State.
func (a *Activation) ExitFP() uintptr { return a.exitFP }

// EntrySP implements backtrace.State.
func (a *Activation) EntrySP() uintptr { return a.entrySP }

// Older implements backtrace.State. The nil check matters: returning a nil
// *Activation through the interface would read as non-nil to the walker.
func (a *Activation) Older() backtrace.State {
	if a.prev == nil {
		return nil
	}
	return a.prev
}

// CaptureBacktrace walks the Wasm frames of the activation carried by ctx.
// With no activation in ctx the result is an empty backtrace.
func CaptureBacktrace(ctx context.Context) *backtrace.Backtrace {
	a := GetActivation(ctx)
	if a == nil {
		return &backtrace.Backtrace{}
	}
	return backtrace.Capture(a)
}
