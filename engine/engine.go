package engine

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-exec/errors"
	"github.com/wippyai/wasm-exec/pool"
)

// Config describes an engine. Zero fields take the stack pool's defaults.
type Config struct {
	// MaxConcurrent caps how many executions may be in flight at once. Each
	// in-flight execution holds one fiber stack for its whole duration.
	MaxConcurrent int

	// StackSize is the usable byte length of each fiber stack.
	StackSize int

	// GuardSize is the inaccessible span below each stack. One page if zero.
	GuardSize int

	// ZeroOnReturn zeroes the hot top of returned stacks eagerly instead of
	// decommitting their whole range.
	ZeroOnReturn bool

	// KeepResident bounds the eagerly zeroed span when ZeroOnReturn is set.
	KeepResident int
}

// Engine owns the stack pool guest executions run on and mints the
// schedulers that drive them. One engine serves many schedulers; the pool
// bounds how many of them can be mid-call at the same time.
type Engine struct {
	mu     sync.Mutex
	stacks *pool.Pool
	scheds map[*Scheduler]struct{}
	closed bool
}

// New reserves the engine's stack memory up front.
func New(cfg Config) (*Engine, error) {
	p, err := pool.New(pool.Config{
		MaxStacks:    cfg.MaxConcurrent,
		StackSize:    cfg.StackSize,
		GuardSize:    cfg.GuardSize,
		ZeroOnReturn: cfg.ZeroOnReturn,
		KeepResident: cfg.KeepResident,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{
		stacks: p,
		scheds: make(map[*Scheduler]struct{}),
	}, nil
}

// NewScheduler returns a fresh scheduler bound to this engine. Schedulers
// are cheap; create one per logical task.
func (e *Engine) NewScheduler() (*Scheduler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.InvalidInput(errors.PhaseSetup, "engine is closed")
	}
	s := &Scheduler{eng: e}
	e.scheds[s] = struct{}{}
	return s, nil
}

func (e *Engine) dropScheduler(s *Scheduler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scheds, s)
}

// InFlight returns how many executions currently hold a stack.
func (e *Engine) InFlight() int {
	return e.stacks.Len()
}

// Cap returns the maximum number of concurrent executions.
func (e *Engine) Cap() int {
	return e.stacks.Cap()
}

// Close aborts every outstanding scheduler and releases the stack
// reservation. The engine is unusable afterwards; Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	scheds := make([]*Scheduler, 0, len(e.scheds))
	for s := range e.scheds {
		scheds = append(scheds, s)
	}
	e.scheds = nil
	e.mu.Unlock()

	var err error
	for _, s := range scheds {
		err = multierr.Append(err, s.Close())
	}
	if !e.stacks.Empty() {
		// An aborted guest refused to unwind and still holds its stack.
		// Releasing the reservation under it would be worse than leaking it.
		Logger().Error("stacks still checked out after close; leaking the reservation",
			zap.Int("in_flight", e.stacks.Len()))
		return err
	}
	return multierr.Append(err, e.stacks.Close())
}
