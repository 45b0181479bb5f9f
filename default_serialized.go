//go:build ivbridge_serialized

package ivbridge

// DefaultBackend is selected by OpenSession when no backend is active yet.
const DefaultBackend = Serialized
