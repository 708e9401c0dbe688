// Package wasmexec provides a suspendable execution core for WebAssembly
// runtimes.
//
// This library supplies the pieces a runtime needs to pause a guest call
// mid-flight and pick it up later: guard-paged fiber stacks, a pooled stack
// allocator with strict reuse hygiene, a step-based scheduler over wazero
// calls, and a trap layer that turns machine faults into Go errors with
// guest backtraces.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	wasmexec/            Root package with platform capability checks
//	├── engine/          Step-based scheduling of suspendable wazero calls
//	├── fiber/           Suspendable execution contexts and their stacks
//	├── pool/            Pooled, guard-paged stack allocation and scrubbing
//	├── trap/            Machine-fault capture, injection, and Trap errors
//	├── backtrace/       Frame-pointer walking across activation regions
//	├── errors/          Structured error types for debugging
//	└── internal/        Page-grained virtual memory and per-arch layout
//
// # Quick Start
//
// Drive a wazero function that suspends on host calls:
//
//	eng, err := engine.New(engine.Config{MaxConcurrent: 8})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	sched, err := eng.NewScheduler()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := sched.Run(ctx, mod.ExportedFunction("handle"), 1, 2)
//
// Host functions suspend with engine.Suspend or the engine.AsyncHostFunc
// wrapper; the guest resumes in place once the operation's result is fed
// back into the scheduler.
//
// # Platform Support
//
// Fiber stacks need page-grained virtual memory (any unix platform), and
// trap injection needs a supported register layout (amd64 or arm64). Check
// Supported before relying on either; constructors also fail cleanly with
// an unsupported error on platforms that lack the primitives.
//
// # Thread Safety
//
// Engine and the pool are safe for concurrent use. A Scheduler, a Fiber,
// and a checked-out stack each belong to one goroutine at a time.
//
// # Stack Hygiene
//
// A stack returned to the pool is never handed out with its previous
// occupant's data readable: the pool either zeroes the hot pages eagerly or
// decommits the range so the OS supplies zero pages. Guard pages below each
// stack stay inaccessible for the life of the pool.
package wasmexec
