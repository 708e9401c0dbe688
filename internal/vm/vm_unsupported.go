//go:build !unix

package vm

import "errors"

// Supported reports whether this platform can back fiber stacks.
const Supported = false

// ErrUnsupported is returned by all operations on platforms without the
// required virtual-memory primitives.
var ErrUnsupported = errors.New("virtual memory operations are not supported on this platform")

func reserve(size int) ([]byte, error) { return nil, ErrUnsupported }
func commit(b []byte) error            { return ErrUnsupported }
func decommit(b []byte) error          { return ErrUnsupported }
func release(b []byte) error           { return ErrUnsupported }
func sliceAddr(b []byte) uintptr       { return 0 }
