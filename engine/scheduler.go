package engine

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-exec/errors"
	"github.com/wippyai/wasm-exec/fiber"
	"github.com/wippyai/wasm-exec/trap"
)

// CommandID tags pending operations for external event-loop dispatch.
type CommandID = uint16

// PendingOp is an operation the guest suspended on. The scheduler surfaces
// it from Step; the embedder executes it wherever it likes and feeds the
// outcome back into the next Step.
type PendingOp interface {
	CmdID() CommandID
	Execute(ctx context.Context) (uint64, error)
}

// Callable is the guest entry point a scheduler drives. wazero's
// api.Function satisfies it directly.
type Callable interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

type StepStatus int

const (
	StepContinue StepStatus = iota // yielded an operation, expects resume
	StepDone                       // execution complete
)

// StepResult carries the outcome of one Step.
type StepResult struct {
	PendingOp PendingOp
	Results   []uint64
	Status    StepStatus
}

// YieldResult carries a completed operation's outcome back into the guest:
// the value its Suspend call returns, or the error it propagates.
type YieldResult struct {
	Error error
	Value uint64
}

// callOutcome is what the guest closure hands back when it finishes.
type callOutcome struct {
	results []uint64
	err     error
}

// ErrSchedulerClosed is delivered to a suspended guest when its scheduler
// is closed mid-call. Host functions propagate it and the call unwinds.
var ErrSchedulerClosed = errors.Internal(errors.PhaseTeardown, "scheduler closed with execution in flight", nil)

// maxAbortResumes bounds how often Close nudges a guest that keeps
// suspending instead of unwinding. Past it the stack is deliberately
// leaked; releasing memory a live fiber may still touch is worse.
const maxAbortResumes = 1024

// Scheduler drives one guest call at a time over a dedicated fiber,
// exposing each suspension to the embedder as a step. It is not safe for
// concurrent use.
//
// The guest call starts on the first Step, runs on a stack leased from the
// engine's pool, and holds that stack until it finishes. Host functions
// inside the call suspend through Suspend; the parked operation comes back
// from Step as a StepContinue, and the next Step resumes the guest with
// the operation's result, in place, without re-entering the call.
type Scheduler struct {
	// Store is the embedder value trap observers receive for faults raised
	// in calls this scheduler drives. The scheduler itself when nil. Set it
	// before Execute.
	Store any

	eng     *Engine
	stack   *fiber.Stack
	fib     *fiber.Fiber[YieldResult, PendingOp, callOutcome]
	act     *trap.Activation
	callCtx context.Context
	fn      Callable
	args    []uint64
	closed  bool
}

// Execute stages fn for execution and leases the stack it will run on. The
// guest does not start until the first Step. ctx scopes the whole guest
// call, including every resume; it also opens the trap activation faults
// inside the call attribute to.
func (s *Scheduler) Execute(ctx context.Context, fn Callable, args ...uint64) error {
	if s.closed {
		return errors.InvalidInput(errors.PhaseExecute, "scheduler is closed")
	}
	if s.stack != nil {
		return errors.InvalidInput(errors.PhaseExecute, "execution already in progress")
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseExecute, "nil callable")
	}
	stack, err := s.eng.stacks.Allocate()
	if err != nil {
		return err
	}
	s.stack = stack
	s.fn = fn
	s.args = args
	store := s.Store
	if store == nil {
		store = s
	}
	s.callCtx, s.act = trap.Enter(ctx, store)
	s.callCtx = WithScheduler(s.callCtx, s)
	return nil
}

// Step advances the staged execution until the guest suspends on an
// operation or finishes. Pass nil on the first call; afterwards pass the
// YieldResult of the operation the previous Step surfaced.
//
// ctx gates stepping only; the guest itself runs under the context given
// to Execute. A *trap.Trap raised by the guest comes back as the error.
func (s *Scheduler) Step(ctx context.Context, yr *YieldResult) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	if s.stack == nil {
		return StepResult{}, errors.InvalidInput(errors.PhaseExecute, "no execution staged; call Execute first")
	}
	if s.fib == nil {
		if err := s.start(); err != nil {
			return StepResult{}, err
		}
	}

	var v YieldResult
	if yr != nil {
		v = *yr
	}

	defer func() {
		if s.fib != nil && s.fib.Done() {
			if err := s.reap(); err != nil {
				Logger().Warn("releasing finished execution failed", zap.Error(err))
			}
		}
	}()

	var fres fiber.StepResult[PendingOp, callOutcome]
	if tr := trap.Boundary(func() { fres = s.fib.Resume(v) }); tr != nil {
		return StepResult{}, tr
	}
	if fres.Status == fiber.StepYielded {
		return StepResult{Status: StepContinue, PendingOp: fres.Yielded}, nil
	}
	out := fres.Returned
	if out.err != nil {
		return StepResult{}, out.err
	}
	return StepResult{Status: StepDone, Results: out.results}, nil
}

// start creates the fiber for the staged call. The closure captures the
// Execute context so the whole call, across suspensions, sees one context.
func (s *Scheduler) start() error {
	callCtx := s.callCtx
	fn := s.fn
	args := s.args
	fib, err := fiber.New(s.stack, func(_ YieldResult, sus *suspender) callOutcome {
		ctx := withSuspender(callCtx, sus)
		results, err := fn.Call(ctx, args...)
		return callOutcome{results: results, err: err}
	})
	if err != nil {
		return err
	}
	s.fib = fib
	return nil
}

// reap returns the stack to the pool and closes out the activation once
// the fiber has finished. It runs on the normal return path, the trap
// path, and scheduler close.
func (s *Scheduler) reap() error {
	err := s.fib.Close()
	s.fib = nil
	s.fn = nil
	s.args = nil
	s.eng.stacks.Recycle(s.stack)
	s.stack = nil
	s.act.Exit()
	s.act = nil
	s.callCtx = nil
	return err
}

// Run executes fn to completion with an internal step loop, executing each
// pending operation inline. Convenience wrapper over Execute and Step.
func (s *Scheduler) Run(ctx context.Context, fn Callable, args ...uint64) ([]uint64, error) {
	if err := s.Execute(ctx, fn, args...); err != nil {
		return nil, err
	}

	var yr *YieldResult
	for {
		sr, err := s.Step(ctx, yr)
		if err != nil {
			return nil, err
		}

		switch sr.Status {
		case StepDone:
			return sr.Results, nil
		case StepContinue:
			val, opErr := sr.PendingOp.Execute(ctx)
			yr = &YieldResult{Value: val, Error: opErr}
		}
	}
}

// Busy reports whether an execution is staged or in flight.
func (s *Scheduler) Busy() bool {
	return s.stack != nil
}

// Stack returns the stack leased for the current execution, or nil when
// none is staged. Embedders running native guest code switch to its Top;
// pure-Go guests never need it.
func (s *Scheduler) Stack() *fiber.Stack {
	return s.stack
}

// Close aborts any in-flight execution and detaches the scheduler from its
// engine. A suspended guest sees ErrSchedulerClosed from its pending
// Suspend call and unwinds; its stack goes back to the pool. Close is
// idempotent.
func (s *Scheduler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.fib != nil {
		for i := 0; !s.fib.Done(); i++ {
			if i == maxAbortResumes {
				Logger().Error("guest kept suspending during close; leaking its stack",
					zap.Int("resumes", i))
				s.eng.dropScheduler(s)
				return errors.Internal(errors.PhaseTeardown, "guest did not unwind during close", nil)
			}
			_ = trap.Boundary(func() { s.fib.Resume(YieldResult{Error: ErrSchedulerClosed}) })
		}
		Logger().Warn("aborted in-flight execution on close")
	}
	if s.stack != nil {
		if s.fib != nil {
			err = multierr.Append(err, s.reap())
		} else {
			// Staged but never stepped: no fiber exists yet.
			s.eng.stacks.Recycle(s.stack)
			s.stack = nil
			s.act.Exit()
			s.act = nil
			s.callCtx = nil
			s.fn = nil
			s.args = nil
		}
	}
	s.eng.dropScheduler(s)
	return err
}

type ctxKeyScheduler struct{}
type ctxKeySuspender struct{}

// suspender is the fiber-side yield handle for scheduled calls.
type suspender = fiber.Suspend[YieldResult, PendingOp, callOutcome]

// WithScheduler returns ctx carrying s. Calls staged by Execute get this
// automatically; host functions recover it with GetScheduler.
func WithScheduler(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, ctxKeyScheduler{}, s)
}

// GetScheduler returns the scheduler driving the call ctx belongs to, or
// nil when ctx is not a scheduled call.
func GetScheduler(ctx context.Context) *Scheduler {
	if v := ctx.Value(ctxKeyScheduler{}); v != nil {
		return v.(*Scheduler)
	}
	return nil
}

func withSuspender(ctx context.Context, sus *suspender) context.Context {
	return context.WithValue(ctx, ctxKeySuspender{}, sus)
}

func getSuspender(ctx context.Context) *suspender {
	if v := ctx.Value(ctxKeySuspender{}); v != nil {
		return v.(*suspender)
	}
	return nil
}

// Suspend parks the calling guest on op and hands control back to the
// scheduler's Step, which surfaces op as a StepContinue. The call blocks
// until a later Step delivers the operation's YieldResult, then returns
// its value or propagates its error. Called by host functions, on the
// guest's fiber.
func Suspend(ctx context.Context, op PendingOp) (uint64, error) {
	if op == nil {
		return 0, errors.InvalidInput(errors.PhaseExecute, "nil pending operation")
	}
	sus := getSuspender(ctx)
	if sus == nil {
		return 0, errors.Internal(errors.PhaseExecute, "suspend outside a scheduled call", nil)
	}
	yr := sus.Yield(op)
	if yr.Error != nil {
		return 0, yr.Error
	}
	return yr.Value, nil
}
