package ivbridge

import (
	"errors"
	"fmt"
)

// Conversion failure classes. Match them with errors.Is.
var (
	// ErrUnsupportedVariant means a value or object shape has no conversion
	// rule in the active backend.
	ErrUnsupportedVariant = errors.New("unsupported variant")

	// ErrForeignAllocation means the interpreter could not allocate or pin
	// the object being constructed.
	ErrForeignAllocation = errors.New("foreign allocation failure")

	// ErrInvalidHandleContext means a handle or context was used outside the
	// interpreter that owns it, after it was released, or after the
	// interpreter was closed. It indicates a programming error.
	ErrInvalidHandleContext = errors.New("invalid handle context")

	// ErrForeignIntrospection means an interpreter object misbehaved while
	// its shape was inspected.
	ErrForeignIntrospection = errors.New("foreign introspection failure")
)

// ErrorKind classifies an InteropError.
type ErrorKind int

const (
	UnsupportedVariant ErrorKind = iota + 1
	ForeignAllocationFailure
	InvalidHandleContext
	ForeignIntrospectionFailure
)

func (k ErrorKind) sentinel() error {
	switch k {
	case UnsupportedVariant:
		return ErrUnsupportedVariant
	case ForeignAllocationFailure:
		return ErrForeignAllocation
	case InvalidHandleContext:
		return ErrInvalidHandleContext
	case ForeignIntrospectionFailure:
		return ErrForeignIntrospection
	}
	return nil
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// InteropError is the single error type returned across the conversion
// boundary. Backend names the backend that was active when it occurred.
type InteropError struct {
	Kind    ErrorKind
	Backend BackendID
	Msg     string
	Err     error
}

func (e *InteropError) Error() string {
	prefix := "ivbridge"
	if e.Backend != "" {
		prefix += "[" + string(e.Backend) + "]"
	}
	s := fmt.Sprintf("%s: %s: %s", prefix, e.Kind, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *InteropError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *InteropError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func interopErrorf(kind ErrorKind, backend BackendID, format string, args ...any) *InteropError {
	return &InteropError{Kind: kind, Backend: backend, Msg: fmt.Sprintf(format, args...)}
}

func wrapInterop(kind ErrorKind, backend BackendID, err error, format string, args ...any) *InteropError {
	return &InteropError{Kind: kind, Backend: backend, Msg: fmt.Sprintf(format, args...), Err: err}
}

// withBackend stamps backend on err if it is an InteropError without one.
func withBackend(err error, backend BackendID) error {
	var ie *InteropError
	if errors.As(err, &ie) && ie.Backend == "" {
		ie.Backend = backend
	}
	return err
}
