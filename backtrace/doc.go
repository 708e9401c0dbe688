// Package backtrace captures Wasm-only stack traces by walking frame
// pointer chains.
//
// Generated code keeps frame pointers, so a trace needs no unwind tables:
// each frame stores the caller's fp and the return address at fixed offsets,
// and the walk runs from the most recent exit state down to the frame the
// entry trampoline established. Host frames between nested Wasm regions are
// skipped by chaining activations: every activation records where execution
// last left Wasm and where it entered, and the walker visits each region
// most-recent-first.
//
// The walker only reads memory the execution-state contract vouches for.
// A corrupt chain (misaligned fp, non-monotonic fp, overshooting the entry
// frame) is unrecoverable and panics.
package backtrace
