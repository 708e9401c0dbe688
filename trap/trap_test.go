package trap

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/wasm-exec/internal/arch"
)

type recordingObserver struct {
	stores []any
	traps  []*Trap
}

func (r *recordingObserver) OnTrap(store any, tr *Trap) {
	r.stores = append(r.stores, store)
	r.traps = append(r.traps, tr)
}

func TestActivationChain(t *testing.T) {
	ctx := context.Background()
	if GetActivation(ctx) != nil {
		t.Fatal("expected no activation in a fresh context")
	}

	ctx, outer := Enter(ctx, "outer store")
	if GetActivation(ctx) != outer {
		t.Fatal("expected context to carry the outer activation")
	}
	if outer.Older() != nil {
		t.Fatal("expected outermost activation to have a nil older link")
	}

	ctx, inner := Enter(ctx, "inner store")
	if GetActivation(ctx) != inner {
		t.Fatal("expected context to carry the inner activation")
	}
	got, ok := inner.Older().(*Activation)
	if !ok || got != outer {
		t.Fatalf("inner.Older() = %v, want the outer activation", inner.Older())
	}
	if inner.Store() != "inner store" || outer.Store() != "outer store" {
		t.Fatalf("stores misrouted: inner %v, outer %v", inner.Store(), outer.Store())
	}

	inner.Exit()
	outer.Exit()
}

func TestWithActivationReattaches(t *testing.T) {
	ctx, a := Enter(context.Background(), nil)
	defer a.Exit()

	detached := context.Background()
	if GetActivation(detached) != nil {
		t.Fatal("expected no activation before reattaching")
	}
	if got := GetActivation(WithActivation(detached, a)); got != a {
		t.Fatalf("GetActivation after WithActivation = %v, want %v", got, a)
	}
	if GetActivation(ctx) != a {
		t.Fatal("expected the original context to still carry the activation")
	}
}

func TestActivationRecordsExitState(t *testing.T) {
	_, a := Enter(context.Background(), nil)
	a.RecordExit(0x4010, 0x7ff0)
	if a.ExitPC() != 0x4010 || a.ExitFP() != 0x7ff0 {
		t.Fatalf("exit state = (%#x, %#x), want (0x4010, 0x7ff0)", a.ExitPC(), a.ExitFP())
	}
	a.Exit()
}

func TestActivationEntrySPStartsAsSentinel(t *testing.T) {
	ctx, a := Enter(context.Background(), nil)
	defer a.Exit()

	bt := CaptureBacktrace(ctx)
	if n := len(bt.Frames()); n != 0 {
		t.Fatalf("expected zero frames before any Wasm entry, got %d", n)
	}
}

func TestRecordEntryBadResiduePanics(t *testing.T) {
	_, a := Enter(context.Background(), nil)
	defer a.Exit()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for entry sp with the wrong residue")
		}
	}()
	a.RecordEntry(uintptr(0x10000) + arch.EntrySPRemainder + 4)
}

func TestCaptureBacktraceWithoutActivation(t *testing.T) {
	bt := CaptureBacktrace(context.Background())
	if bt == nil {
		t.Fatal("expected an empty backtrace, got nil")
	}
	if n := len(bt.Frames()); n != 0 {
		t.Fatalf("expected zero frames, got %d", n)
	}
}

func TestTrapErrorMessage(t *testing.T) {
	tr := &Trap{Code: CodeIntegerDivideByZero}
	if got := tr.Error(); got != "wasm trap: integer divide by zero" {
		t.Fatalf("Error() = %q", got)
	}

	tr = &Trap{Code: CodeMemoryOutOfBounds, FaultAddr: 0xdead0000, HasFault: true}
	if got := tr.Error(); !strings.Contains(got, "out of bounds memory access") || !strings.Contains(got, "0xdead0000") {
		t.Fatalf("Error() = %q, want code text and fault address", got)
	}
}

func TestTrapErrorsIsMatchesByCode(t *testing.T) {
	a := &Trap{Code: CodeUnreachable}
	b := &Trap{Code: CodeUnreachable, HasFault: true, FaultAddr: 4}
	c := &Trap{Code: CodeStackOverflow}

	if !stderrors.Is(a, b) {
		t.Fatal("expected traps with the same code to match")
	}
	if stderrors.Is(a, c) {
		t.Fatal("expected traps with different codes not to match")
	}
}

func TestCodeStringCoversAllCodes(t *testing.T) {
	for c := CodeStackOverflow; c <= CodeInterrupt; c++ {
		if s := c.String(); strings.HasPrefix(s, "unknown") {
			t.Errorf("code %d has no message", uint8(c))
		}
	}
	if s := Code(200).String(); !strings.Contains(s, "unknown trap code 200") {
		t.Errorf("Code(200).String() = %q", s)
	}
}

func TestObserverSubscribeUnsubscribe(t *testing.T) {
	first := &recordingObserver{}
	second := &recordingObserver{}
	Subscribe(first)
	Subscribe(second)
	defer Unsubscribe(second)

	tr := &Trap{Code: CodeUnreachable}
	notifyTrap("store A", tr)

	Unsubscribe(first)
	notifyTrap("store B", tr)

	if len(first.traps) != 1 || first.stores[0] != "store A" {
		t.Fatalf("first observer saw %d deliveries, want 1 for store A", len(first.traps))
	}
	if len(second.traps) != 2 || second.stores[1] != "store B" {
		t.Fatalf("second observer saw %d deliveries, want 2", len(second.traps))
	}
	if second.traps[0] != tr {
		t.Fatal("observer received a different trap value")
	}
}

func TestBoundaryReturnsTrap(t *testing.T) {
	want := &Trap{Code: CodeTableOutOfBounds}
	got := Boundary(func() { panic(want) })
	if got != want {
		t.Fatalf("Boundary returned %v, want the panicked trap", got)
	}
}

func TestBoundaryNilOnNormalReturn(t *testing.T) {
	ran := false
	if tr := Boundary(func() { ran = true }); tr != nil {
		t.Fatalf("Boundary returned %v for a normal return", tr)
	}
	if !ran {
		t.Fatal("Boundary did not invoke fn")
	}
}

func TestBoundaryPassesThroughOtherPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected the non-trap panic to keep unwinding")
		}
		if r != "guest bug" {
			t.Fatalf("recovered %v, want the original panic value", r)
		}
	}()
	Boundary(func() { panic("guest bug") })
}
