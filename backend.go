package ivbridge

// BackendID names an interpreter embedding strategy.
type BackendID string

const (
	// Linked builds interpreter objects directly in process and wraps
	// tensors without copying.
	Linked BackendID = "linked"

	// Serialized exchanges values as a self-describing msgpack stream, as
	// required when the interpreter lives in a separately built library.
	// Tensors are copied.
	Serialized BackendID = "serialized"
)

// ContractVersion is the version of the conversion contract implemented by
// this package. Backends must match its major version to register.
var ContractVersion = Version{Major: 1, Minor: 0, Patch: -1}

// Converter is the conversion contract every backend implements.
//
// Both methods run under the caller's execution context and never acquire
// or release it. ToHandle returns a handle the caller owns and must
// release; on failure nothing stays pinned. ToValue leaves ownership of h
// with the caller.
type Converter interface {
	ToHandle(ctx *Context, v Value) (*Handle, error)
	ToValue(ctx *Context, h *Handle) (Value, error)
}

// ShapePolicy decides what ToValue does with objects of unknown shape.
type ShapePolicy int

const (
	// BoxUnknown returns unknown objects as Opaque values.
	BoxUnknown ShapePolicy = iota + 1

	// RejectUnknown fails with ErrUnsupportedVariant.
	RejectUnknown
)

func (p ShapePolicy) String() string {
	switch p {
	case BoxUnknown:
		return "box"
	case RejectUnknown:
		return "reject"
	}
	return "unknown"
}

// Backend describes one registered conversion backend.
type Backend struct {
	// ID is the registry key.
	ID BackendID

	// Description is a one-line summary shown by tooling.
	Description string

	// Version is the conversion contract version the backend implements.
	Version Version

	// Unknown is the fixed policy for objects without a native mapping.
	Unknown ShapePolicy

	// ZeroCopy reports whether tensors are wrapped rather than copied.
	ZeroCopy bool

	// Converter implements the conversions.
	Converter Converter
}
