package fiber

import (
	"sync/atomic"

	"github.com/wippyai/wasm-exec/errors"
)

// StepStatus says how a resume ended.
type StepStatus int

const (
	// StepYielded means the closure suspended through Yield and can be
	// resumed again.
	StepYielded StepStatus = iota
	// StepReturned means the closure finished; the fiber is done.
	StepReturned
)

// StepResult carries the outcome of one Resume.
type StepResult[Y, T any] struct {
	Status   StepStatus
	Yielded  Y // set when Status == StepYielded
	Returned T // set when Status == StepReturned
}

// Fiber states. Exactly one party runs at a time; the state word arbitrates
// who may hand the baton over next.
const (
	stateIdle int32 = iota // suspended, waiting for Resume
	stateRunning
	stateDone
)

// Messages the fiber sends back when it gives up the baton.
type switchKind uint8

const (
	switchYield switchKind = iota
	switchReturn
	switchPanic
)

type switchMsg[Y, T any] struct {
	kind     switchKind
	yielded  Y
	returned T
	panicked any
}

// Fiber is a suspendable execution context. See the package documentation
// for the lifecycle and the meaning of the three type parameters.
type Fiber[R, Y, T any] struct {
	stack    *Stack
	state    atomic.Int32
	resumeCh chan R
	switchCh chan switchMsg[Y, T]
}

// Suspend is the closure's handle for giving the baton back. It is only
// valid inside the closure it was passed to.
type Suspend[R, Y, T any] struct {
	f *Fiber[R, Y, T]
}

// New creates a fiber that will run fn on stack. fn does not start until the
// first Resume; its first argument is the value that Resume passes.
func New[R, Y, T any](stack *Stack, fn func(first R, s *Suspend[R, Y, T]) T) (*Fiber[R, Y, T], error) {
	if stack == nil {
		return nil, errors.InvalidInput(errors.PhaseSetup, "nil fiber stack")
	}
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseSetup, "nil fiber closure")
	}
	f := &Fiber[R, Y, T]{
		stack:    stack,
		resumeCh: make(chan R),
		switchCh: make(chan switchMsg[Y, T]),
	}
	go f.run(fn)
	return f, nil
}

// run hosts the closure. It parks until the first Resume, then reports the
// closure's return or panic as the final switch message. A panic unwinds the
// closure completely, running its deferred cleanups, before the message is
// handed to the resumer.
func (f *Fiber[R, Y, T]) run(fn func(R, *Suspend[R, Y, T]) T) {
	first := <-f.resumeCh
	msg := switchMsg[Y, T]{kind: switchPanic}
	func() {
		defer func() {
			if r := recover(); r != nil {
				msg.panicked = r
			}
		}()
		msg = switchMsg[Y, T]{kind: switchReturn, returned: fn(first, &Suspend[R, Y, T]{f: f})}
	}()
	f.switchCh <- msg
}

// Resume hands v to the fiber and runs it until its next yield, return, or
// panic. A closure panic re-panics here with the original value. Resume
// panics if the fiber already finished or if another Resume is in flight;
// both are programmer errors.
func (f *Fiber[R, Y, T]) Resume(v R) StepResult[Y, T] {
	if !f.state.CompareAndSwap(stateIdle, stateRunning) {
		if f.state.Load() == stateDone {
			panic("BUG: resume of a finished fiber")
		}
		panic("BUG: fiber resumed while already running")
	}
	f.resumeCh <- v
	msg := <-f.switchCh
	switch msg.kind {
	case switchYield:
		f.state.Store(stateIdle)
		return StepResult[Y, T]{Status: StepYielded, Yielded: msg.yielded}
	case switchReturn:
		f.state.Store(stateDone)
		return StepResult[Y, T]{Status: StepReturned, Returned: msg.returned}
	default:
		f.state.Store(stateDone)
		panic(msg.panicked)
	}
}

// Yield suspends the closure, delivers v to the resumer, and blocks until
// the next Resume, whose value it returns.
func (s *Suspend[R, Y, T]) Yield(v Y) R {
	f := s.f
	if f.state.Load() != stateRunning {
		panic("BUG: yield outside a running fiber")
	}
	f.switchCh <- switchMsg[Y, T]{kind: switchYield, yielded: v}
	return <-f.resumeCh
}

// Done reports whether the closure has returned or panicked. A done fiber
// only accepts Close.
func (f *Fiber[R, Y, T]) Done() bool {
	return f.state.Load() == stateDone
}

// Stack returns the fiber's stack.
func (f *Fiber[R, Y, T]) Stack() *Stack {
	return f.stack
}

// Close releases the fiber's owned stack memory. Closing a fiber that has
// not finished is a programmer error: the closure still references the
// stack.
func (f *Fiber[R, Y, T]) Close() error {
	if !f.Done() {
		panic("BUG: close of an unfinished fiber")
	}
	return f.stack.Close()
}
