// Package arch pins the per-architecture contract the execution core relies
// on: frame-pointer chain layout, stack alignment, the entry-frame boundary
// offset, and the register snapshot a platform fault shim hands over.
//
// Exactly one architecture variant of this package compiles into a build.
// On architectures without a variant, Supported is false and FaultContext
// accessors panic; callers gate on the capability flag first.
package arch

import "fmt"

// AssertFPAligned panics if fp does not satisfy the frame-pointer alignment
// the code generator guarantees for established frames.
func AssertFPAligned(fp uintptr, what string) {
	if fp%FPAlignment != 0 {
		panic(fmt.Sprintf("BUG: %s %#x is not %d-byte aligned", what, fp, FPAlignment))
	}
}

// AssertEntrySPAligned panics if sp cannot be a recorded entry stack
// pointer: the entry path records it after the architecture's call sequence
// ran, which fixes its residue mod FPAlignment.
func AssertEntrySPAligned(sp uintptr) {
	if sp%FPAlignment != EntrySPRemainder {
		panic(fmt.Sprintf("BUG: entry sp %#x does not sit %d bytes past a %d-byte boundary",
			sp, EntrySPRemainder, FPAlignment))
	}
}
