package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// AsyncHostFunc adapts an operation factory into a wazero host function
// that suspends the guest while the operation runs. createOp inspects the
// guest's argument stack and returns the operation to park on, or nil to
// return to the guest immediately.
//
// Inside a scheduled call the guest parks on the operation; the value the
// embedder later feeds into Step lands in stack[0] and the guest resumes
// in place. Outside a scheduled call the operation runs inline. Errors
// abort the guest call by panicking; wazero converts host panics into
// call errors.
func AsyncHostFunc(createOp func(ctx context.Context, mod api.Module, stack []uint64) PendingOp) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		op := createOp(ctx, mod, stack)
		if op == nil {
			return
		}

		var (
			v   uint64
			err error
		)
		if getSuspender(ctx) == nil {
			// Plain call with no scheduler driving it; run the operation
			// inline instead of suspending.
			v, err = op.Execute(ctx)
		} else {
			v, err = Suspend(ctx, op)
		}
		if err != nil {
			panic(err)
		}
		if len(stack) > 0 {
			stack[0] = v
		}
	}
}
