// Package errors provides structured error types for the wasm-exec library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes the resource name, the configured limit
// where relevant, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSetup, errors.KindAllocation).
//		Resource("stack mapping").
//		Detail("reserve %d bytes", size).
//		Cause(osErr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Capacity("fiber stacks", 1024)
//	err := errors.Protection(errors.PhaseSetup, "stack pages", osErr)
//
// All errors implement the standard error interface and support errors.Is/As.
//
// Expected runtime conditions (pool exhaustion, unsupported platforms, OS
// refusals) are error values. Contract violations are not: misusing the API
// panics with a "BUG:" prefix and should never be caught.
package errors
