// Package engine schedules suspendable WebAssembly executions over fiber
// stacks.
//
// This package wraps wazero calls in a step-based control loop: a guest
// call runs on a dedicated fiber, host functions can park the call on a
// pending operation, and the embedder decides where and when that
// operation executes before resuming the guest in place.
//
// # Architecture
//
// The package provides two main types:
//
//	Engine    - Owns the stack pool and bounds concurrent executions
//	Scheduler - Drives one guest call at a time, step by step
//
// # Execution Flow
//
//  1. Engine.NewScheduler() binds a scheduler to the engine's pool
//  2. Scheduler.Execute() leases a stack and stages the call
//  3. Scheduler.Step() runs the guest until it suspends or finishes
//  4. A StepContinue surfaces the guest's PendingOp; the embedder runs it
//  5. The next Step() delivers the result and the guest resumes in place
//
// Run wraps the loop for embedders without an external event loop.
//
// # Suspension
//
// A host function suspends with Suspend(ctx, op). The call parks on the
// guest's fiber with every frame intact, so when the result arrives the
// host function simply returns it to the guest; there is no unwind and
// replay of the call path. AsyncHostFunc packages this protocol for
// wazero host modules:
//
//	mod.NewFunctionBuilder().
//	    WithGoModuleFunction(engine.AsyncHostFunc(makeReadOp), params, results).
//	    Export("async_read")
//
// # Traps
//
// Execute opens a trap activation for the call, so machine faults raised
// while the guest runs attribute to this scheduler and unwind to Step as
// a *trap.Trap error.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Scheduler is NOT thread-safe and
// should be driven by a single goroutine.
package engine
