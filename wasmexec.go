package wasmexec

import (
	"github.com/wippyai/wasm-exec/internal/arch"
	"github.com/wippyai/wasm-exec/internal/vm"
	"github.com/wippyai/wasm-exec/pool"
)

// SupportedPlatform reports whether this platform has the virtual memory
// primitives fiber stacks are built on.
const SupportedPlatform = vm.Supported

// SupportedArch reports whether trap injection and frame-pointer walking
// are implemented for this architecture.
const SupportedArch = arch.Supported

// Defaults for embedders that size nothing themselves.
const (
	DefaultMaxConcurrent = pool.DefaultMaxStacks
	DefaultStackSize     = pool.DefaultStackSize
)

// Supported reports whether the full execution core, stacks and traps
// both, works here. Stack pooling alone only needs SupportedPlatform.
func Supported() bool {
	return SupportedPlatform && SupportedArch
}

// PageSize returns the platform page size, the granularity of stack sizes,
// guard sizes, and scrub spans.
func PageSize() int {
	return vm.PageSize()
}

// DefaultGuardSize returns the default inaccessible span below each stack,
// one page.
func DefaultGuardSize() int {
	return vm.PageSize()
}
