package ivbridge

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrBackendNotFound        = errors.New("backend not registered")
	ErrDuplicateBackend       = errors.New("backend already registered")
	ErrRegistryFrozen         = errors.New("registry is frozen after backend selection")
	ErrBackendAlreadySelected = errors.New("a different backend is already selected")
	ErrIncompatibleBackend    = errors.New("backend implements an incompatible contract version")
)

// Registry maps backend identifiers to backends and binds at most one of
// them as the active backend.
//
// A registry moves from open, to ready once a backend is registered, to
// bound once Select succeeds. A bound registry accepts no registrations.
type Registry struct {
	mu      sync.RWMutex
	entries map[BackendID]*Backend
	order   []BackendID
	active  *Backend
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[BackendID]*Backend)}
}

// Register adds b. Registering an identifier twice fails with
// ErrDuplicateBackend; registering after selection fails with
// ErrRegistryFrozen.
func (r *Registry) Register(b *Backend) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("register backend: missing identifier")
	}
	if b.Converter == nil {
		return fmt.Errorf("register backend %q: nil converter", b.ID)
	}
	if !b.Version.CompatibleWith(ContractVersion) {
		return fmt.Errorf("register backend %q: version %s, host %s: %w", b.ID, b.Version, ContractVersion, ErrIncompatibleBackend)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[b.ID]; ok {
		return fmt.Errorf("register backend %q: %w", b.ID, ErrDuplicateBackend)
	}
	if r.active != nil {
		return fmt.Errorf("register backend %q: %w", b.ID, ErrRegistryFrozen)
	}
	r.entries[b.ID] = b
	r.order = append(r.order, b.ID)
	Logger().Debug("backend registered", "backend", b.ID, "version", b.Version.String())
	return nil
}

// Lookup returns the backend registered under id.
func (r *Registry) Lookup(id BackendID) (*Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("lookup backend %q: %w", id, ErrBackendNotFound)
	}
	return b, nil
}

// Select binds id as the active backend. Selecting the bound identifier
// again returns the same backend; selecting any other fails with
// ErrBackendAlreadySelected.
func (r *Registry) Select(id BackendID) (*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		if r.active.ID == id {
			return r.active, nil
		}
		return nil, fmt.Errorf("select backend %q: %q is active: %w", id, r.active.ID, ErrBackendAlreadySelected)
	}
	b, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("select backend %q: %w", id, ErrBackendNotFound)
	}
	r.active = b
	Logger().Info("backend selected", "backend", id)
	return b, nil
}

// Active returns the bound backend, or nil before selection.
func (r *Registry) Active() *Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Frozen reports whether a backend has been selected.
func (r *Registry) Frozen() bool { return r.Active() != nil }

// Backends returns the registered backends in registration order.
func (r *Registry) Backends() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Backend, len(r.order))
	for i, id := range r.order {
		out[i] = r.entries[id]
	}
	return out
}

// DefaultRegistry is the process-wide registry the built-in backends
// register with.
var DefaultRegistry = NewRegistry()

// RegisterBackend adds b to DefaultRegistry.
func RegisterBackend(b *Backend) error { return DefaultRegistry.Register(b) }

// MustRegister is RegisterBackend for package initialization. It panics on
// error.
func MustRegister(b *Backend) {
	if err := RegisterBackend(b); err != nil {
		panic("ivbridge: " + err.Error())
	}
}

// SelectBackend binds id in DefaultRegistry.
func SelectBackend(id BackendID) (*Backend, error) { return DefaultRegistry.Select(id) }

// ActiveBackend returns the backend bound in DefaultRegistry, or nil.
func ActiveBackend() *Backend { return DefaultRegistry.Active() }
