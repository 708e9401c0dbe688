// Package pool implements a pooling allocator for fiber stacks: one large
// reservation carved into fixed-stride, guard-paged slots with O(1)
// allocation and deallocation.
//
// # Layout
//
// The pool reserves stride*MaxStacks bytes of inaccessible memory up front
// and never grows. Each slot is one guard span followed by one usable span;
// because slots are adjacent, a slot's guard also backstops the stack above
// it:
//
//	| guard | stack 0 | guard | stack 1 | ... | guard | stack N-1 |
//
// Only the usable span of a checked-out slot is ever committed, so an idle
// pool costs address space, not memory.
//
// # Allocation
//
// Allocate pops a free slot index from a free list, commits its usable
// pages, and hands out a fiber.Stack adopted from the slot's memory.
// Exhaustion is reported as a capacity error naming the resource and the
// configured maximum; callers treat it as backpressure. Deallocate maps the
// stack back to its slot and returns the index to the free set; a stack is
// destroyed either by its own Close (never for pooled stacks) or by
// Deallocate, never both.
//
// # Return policy
//
// A returned slot is always scrubbed before its next occupancy: prior stack
// contents are never observable across leases. ZeroStack implements the
// policy split between eager zeroing of the hot top (KeepResident bytes,
// kept resident to avoid refaulting) and decommit of the rest, where the
// kernel supplies zero pages on next touch. Deallocate scrubs as a backstop
// if ZeroStack was skipped.
//
// # Misuse
//
// Returning a stack twice, returning one the pool does not own, closing the
// pool while stacks are checked out, and allocating from a closed pool are
// programmer errors and panic.
package pool
