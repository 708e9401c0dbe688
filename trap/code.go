package trap

import (
	"fmt"

	"github.com/wippyai/wasm-exec/backtrace"
)

// Code identifies the class of fault or runtime violation a trap reports.
type Code uint8

const (
	CodeStackOverflow Code = iota
	CodeMemoryOutOfBounds
	CodeTableOutOfBounds
	CodeIndirectCallToNull
	CodeIndirectCallTypeMismatch
	CodeIntegerOverflow
	CodeIntegerDivideByZero
	CodeInvalidConversionToInteger
	CodeUnreachable
	CodeInterrupt
)

func (c Code) String() string {
	switch c {
	case CodeStackOverflow:
		return "stack overflow"
	case CodeMemoryOutOfBounds:
		return "out of bounds memory access"
	case CodeTableOutOfBounds:
		return "out of bounds table access"
	case CodeIndirectCallToNull:
		return "indirect call to null table entry"
	case CodeIndirectCallTypeMismatch:
		return "indirect call type mismatch"
	case CodeIntegerOverflow:
		return "integer overflow"
	case CodeIntegerDivideByZero:
		return "integer divide by zero"
	case CodeInvalidConversionToInteger:
		return "invalid conversion to integer"
	case CodeUnreachable:
		return "unreachable"
	case CodeInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("unknown trap code %d", uint8(c))
	}
}

// Trap is the structured result of a guest fault: what happened, where the
// access landed for memory faults, and the Wasm frames active at the time.
// It reaches the embedder as an ordinary error; a trap never crashes the
// process.
type Trap struct {
	Code      Code
	Backtrace *backtrace.Backtrace
	FaultAddr uintptr
	HasFault  bool
}

func (t *Trap) Error() string {
	if t.HasFault {
		return fmt.Sprintf("wasm trap: %s at %#x", t.Code, t.FaultAddr)
	}
	return fmt.Sprintf("wasm trap: %s", t.Code)
}

// Is lets errors.Is match any two traps with the same code.
func (t *Trap) Is(target error) bool {
	if o, ok := target.(*Trap); ok {
		return t.Code == o.Code
	}
	return false
}
