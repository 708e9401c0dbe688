package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the execution lifecycle the error occurred
type Phase string

const (
	PhaseSetup    Phase = "setup"    // stack/pool construction
	PhaseExecute  Phase = "execute"  // fiber execution
	PhaseTrap     Phase = "trap"     // fault handling
	PhaseTeardown Phase = "teardown" // release and cleanup
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation   Kind = "allocation"
	KindProtection   Kind = "protection"
	KindCapacity     Kind = "capacity"
	KindUnsupported  Kind = "unsupported"
	KindInvalidInput Kind = "invalid_input"
	KindInternal     Kind = "internal"
)

// Error is the structured error type used throughout the library.
//
// Contract violations (double-free of a pooled stack, resuming a finished
// fiber, injecting over a pending call) are never represented as Error
// values; they panic with a "BUG:" message at the violation site.
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Limit    int
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Resource != "" {
		b.WriteString(" of ")
		b.WriteString(e.Resource)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Resource sets the resource name the error concerns
func (b *Builder) Resource(name string) *Builder {
	b.err.Resource = name
	return b
}

// Limit sets the configured limit involved in the error
func (b *Builder) Limit(n int) *Builder {
	b.err.Limit = n
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Allocation creates an allocation failure error
func Allocation(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindAllocation,
		Resource: what,
		Detail:   fmt.Sprintf("failed to allocate %s", what),
		Cause:    cause,
	}
}

// Protection creates a memory protection failure error
func Protection(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindProtection,
		Resource: what,
		Detail:   fmt.Sprintf("failed to change protection of %s", what),
		Cause:    cause,
	}
}

// Capacity creates a concurrency limit error naming the exhausted resource
// and the configured maximum
func Capacity(resource string, limit int) *Error {
	return &Error{
		Phase:    PhaseExecute,
		Kind:     KindCapacity,
		Resource: resource,
		Limit:    limit,
		Detail:   fmt.Sprintf("maximum concurrency limit of %d reached", limit),
	}
}

// Unsupported creates an unsupported platform or operation error
func Unsupported(what string) *Error {
	return &Error{
		Phase:  PhaseSetup,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Internal creates an internal error for unexpected but recoverable states
func Internal(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsCapacity reports whether err is, or wraps, a capacity error
func IsCapacity(err error) bool {
	return hasKind(err, KindCapacity)
}

// IsUnsupported reports whether err is, or wraps, an unsupported-platform error
func IsUnsupported(err error) bool {
	return hasKind(err, KindUnsupported)
}

func hasKind(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == k {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
