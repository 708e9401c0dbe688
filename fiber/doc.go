// Package fiber provides suspendable execution contexts with dedicated,
// guard-paged stacks.
//
// A Fiber runs a closure that can pause itself mid-execution and hand a value
// back to whoever resumed it; resuming hands a value in the other direction.
// Control transfer is a strict baton pass: exactly one side executes at any
// instant, and a resume runs the fiber until its very next yield, return, or
// panic with no other interleaving.
//
// # Stacks
//
// Each fiber owns a Stack: page-aligned memory with an inaccessible guard
// page at the low end, so machine frames written by generated code overflow
// into a fault instead of silent corruption. Use NewStack for fresh mapped
// memory, StackFromRaw to adopt memory owned by someone else (the pool
// package hands out slots this way).
//
// # Type parameters
//
// Fiber[Resume, Yield, Return] is generic over the three values that cross
// the boundary:
//
//	Resume  - passed into the fiber on every resume
//	Yield   - passed out when the fiber suspends
//	Return  - passed out when the closure finishes
//
// Any of them may be struct{} when a direction carries no data.
//
// # Lifecycle
//
//	stack, _ := fiber.NewStack(64 * 1024)
//	f, _ := fiber.New(stack, func(first int, s *fiber.Suspend[int, string, string]) string {
//		n := s.Yield("started")
//		return fmt.Sprintf("%d then %d", first, n)
//	})
//	r := f.Resume(1)  // r.Status == StepYielded, r.Yielded == "started"
//	r = f.Resume(2)   // r.Status == StepReturned, r.Returned == "1 then 2"
//	f.Close()
//
// A panic inside the closure unwinds the closure (its deferred cleanups run
// first), marks the fiber done, and re-panics with the same value on the
// resuming goroutine.
//
// # Contract
//
// Resume on a finished fiber, concurrent Resume calls, Yield from outside
// the running closure, and Close on an unfinished fiber are programmer
// errors and panic. Expected failures (the OS refusing memory, unsupported
// platforms) are returned as errors from the constructors.
package fiber
