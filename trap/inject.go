package trap

import (
	"unsafe"

	"github.com/wippyai/wasm-exec/backtrace"
	"github.com/wippyai/wasm-exec/internal/arch"
)

// SupportedArch reports whether register rewriting works on this
// architecture. Injection entry points panic when it is false; callers gate
// the whole fault path on it instead.
const SupportedArch = arch.Supported

// InjectedCall holds the register values displaced by an injection: the
// program counter and the first two argument registers as they were before
// the rewrite. Restoring it puts the interrupted computation back exactly.
type InjectedCall struct {
	PC   uint64
	Arg0 uint64
	Arg1 uint64
}

// injectedEntry anchors a stable address for the synthetic hostcall. The
// platform resume shim compares the redirected pc against it and dispatches
// to InjectedHandler; the byte itself is never executed.
var injectedEntry byte

// InjectedEntryPC returns the address the fault path injects as the
// synthetic call target.
func InjectedEntryPC() uintptr {
	if !SupportedArch {
		panic("BUG: trap injection is not supported on this architecture")
	}
	return uintptr(unsafe.Pointer(&injectedEntry))
}

// InjectCall rewrites regs so that resuming the context calls entry(entry,
// arg) instead of continuing where it stopped: pc becomes entry and the two
// argument registers carry entry and arg. The displaced values are saved in
// the activation's single pending slot and also returned. A second
// injection before the first is restored is a programmer error.
func (a *Activation) InjectCall(regs *arch.FaultContext, entry, arg uintptr) InjectedCall {
	if !SupportedArch {
		panic("BUG: trap injection is not supported on this architecture")
	}
	if a.pending != nil {
		panic("BUG: injected call already pending on this activation")
	}
	saved := InjectedCall{PC: regs.PC(), Arg0: regs.Arg0(), Arg1: regs.Arg1()}
	a.pending = &saved
	regs.SetPC(uint64(entry))
	regs.SetArg0(uint64(entry))
	regs.SetArg1(uint64(arg))
	return saved
}

// RestoreInjected writes the pending snapshot back into regs and drains the
// slot. Restoring with nothing pending is a programmer error.
func (a *Activation) RestoreInjected(regs *arch.FaultContext) {
	if a.pending == nil {
		panic("BUG: no injected call pending on this activation")
	}
	saved := *a.pending
	a.pending = nil
	regs.SetPC(saved.PC)
	regs.SetArg0(saved.Arg0)
	regs.SetArg1(saved.Arg1)
}

// HandleFault converts a machine fault caught in guest code into a pending
// synthetic hostcall. It records the faulting pc and frame pointer as the
// activation's exit state, stashes the fault description, and redirects
// regs at the injected entry with the activation itself as the argument.
// When the platform shim resumes the context, execution lands in
// InjectedHandler on the faulted stack with the guest frames still intact
// below it.
func (a *Activation) HandleFault(regs *arch.FaultContext, code Code, faultAddr uintptr, hasAddr bool) {
	if a.fault != nil {
		panic("BUG: fault raised while an earlier fault is still being handled")
	}
	a.RecordExit(uintptr(regs.PC()), uintptr(regs.FP()))
	a.fault = &faultInfo{code: code, addr: faultAddr, hasAddr: hasAddr}
	a.InjectCall(regs, InjectedEntryPC(), uintptr(unsafe.Pointer(a)))
}

// InjectedHandler is the body of the synthetic hostcall. It restores the
// displaced registers, builds the Trap with a backtrace walked from the
// fault point, notifies observers with the activation's store, and unwinds
// to the entry boundary by panicking with the Trap. It never returns
// normally.
//
// The activation pointer rides in the second argument register, so it is
// read before the snapshot restore overwrites it.
func InjectedHandler(regs *arch.FaultContext) {
	a := activationFromArg(regs.Arg1())
	a.RestoreInjected(regs)
	fi := a.fault
	if fi == nil {
		panic("BUG: injected handler invoked without a recorded fault")
	}
	a.fault = nil
	tr := &Trap{
		Code:      fi.code,
		FaultAddr: fi.addr,
		HasFault:  fi.hasAddr,
		Backtrace: backtrace.CaptureWithRegs(a, uintptr(regs.PC()), uintptr(regs.FP())),
	}
	notifyTrap(a.store, tr)
	panic(tr)
}

// activationFromArg recovers the *Activation smuggled through an argument
// register. The pointer stays live for the duration of the call because the
// frame that entered the activation still holds it.
func activationFromArg(v uint64) *Activation {
	//nolint:govet // the value round-trips through a register, not memory
	a := (*Activation)(unsafe.Pointer(uintptr(v)))
	if a == nil {
		panic("BUG: injected handler invoked with a nil activation")
	}
	return a
}

// Boundary invokes fn the way the entry trampoline's fault handler scopes a
// call into Wasm: a Trap panic raised below it is caught and handed back as
// a value, while every other panic keeps unwinding.
func Boundary(fn func()) (tr *Trap) {
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(*Trap)
			if !ok {
				panic(r)
			}
			tr = t
		}
	}()
	fn()
	return nil
}
