package ivbridge

import (
	"errors"
	"fmt"
	"log/slog"
)

// SessionOptions configures OpenSession.
type SessionOptions struct {
	Interpreter InterpreterOptions

	// Backend is selected in the registry when no backend is active yet.
	// Defaults to DefaultBackend.
	Backend BackendID
}

// Session binds a backend to one interpreter. Its conversion methods guard
// handle and context provenance before delegating to the backend, and its
// scoped helpers release every handle they create.
type Session struct {
	interp  *Interpreter
	backend *Backend
	logger  *slog.Logger
	owned   bool
}

// NewSession binds backend to interp. The caller keeps ownership of interp.
func NewSession(interp *Interpreter, backend *Backend) *Session {
	return &Session{
		interp:  interp,
		backend: backend,
		logger:  interp.logger.With("backend", string(backend.ID)),
	}
}

// OpenSession starts an interpreter and binds it to reg's active backend,
// selecting opts.Backend (or DefaultBackend) if none is active. A nil reg
// means DefaultRegistry. Close also closes the interpreter.
func OpenSession(reg *Registry, opts SessionOptions) (*Session, error) {
	if reg == nil {
		reg = DefaultRegistry
	}
	b := reg.Active()
	if b == nil {
		id := opts.Backend
		if id == "" {
			id = DefaultBackend
		}
		var err error
		if b, err = reg.Select(id); err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
	} else if opts.Backend != "" && opts.Backend != b.ID {
		return nil, fmt.Errorf("open session with %q: %q is active: %w", opts.Backend, b.ID, ErrBackendAlreadySelected)
	}
	s := NewSession(NewInterpreter(opts.Interpreter), b)
	s.owned = true
	return s, nil
}

func (s *Session) Interpreter() *Interpreter { return s.interp }

func (s *Session) Backend() *Backend { return s.backend }

// Close closes the interpreter if the session started it.
func (s *Session) Close() error {
	if !s.owned {
		return nil
	}
	return s.interp.Close()
}

// guard reports a context or handle that does not belong to the session's
// interpreter.
func (s *Session) guard(ctx *Context, h *Handle) error {
	var err error
	switch {
	case ctx == nil:
		err = interopErrorf(InvalidHandleContext, s.backend.ID, "nil execution context")
	case ctx.interp != s.interp:
		err = interopErrorf(InvalidHandleContext, s.backend.ID, "context of %s used with session of %s", ctx.interp.name, s.interp.name)
	case h != nil && h.interp != s.interp:
		err = interopErrorf(InvalidHandleContext, s.backend.ID, "handle of %s used with session of %s", h.interp.name, s.interp.name)
	}
	if err != nil {
		s.logger.Error("handle provenance violation", "err", err)
	}
	return err
}

// ToHandle converts v with the session's backend. The caller owns the
// returned handle.
func (s *Session) ToHandle(ctx *Context, v Value) (*Handle, error) {
	if err := s.guard(ctx, nil); err != nil {
		return nil, err
	}
	h, err := s.backend.Converter.ToHandle(ctx, v)
	if err != nil {
		s.logConversionError("to handle", err)
		return nil, err
	}
	return h, nil
}

// ToValue converts the object behind h with the session's backend.
func (s *Session) ToValue(ctx *Context, h *Handle) (Value, error) {
	if err := s.guard(ctx, h); err != nil {
		return Value{}, err
	}
	if h == nil {
		return Value{}, interopErrorf(InvalidHandleContext, s.backend.ID, "nil handle")
	}
	v, err := s.backend.Converter.ToValue(ctx, h)
	if err != nil {
		s.logConversionError("to value", err)
		return Value{}, err
	}
	return v, nil
}

func (s *Session) logConversionError(op string, err error) {
	if errors.Is(err, ErrInvalidHandleContext) {
		s.logger.Error("conversion "+op+" failed", "err", err)
		return
	}
	s.logger.Debug("conversion "+op+" failed", "err", err)
}

// Do runs fn while holding the interpreter's execution context.
func (s *Session) Do(fn func(ctx *Context) error) error {
	ctx, err := s.interp.Enter()
	if err != nil {
		return withBackend(err, s.backend.ID)
	}
	defer ctx.Exit()
	return fn(ctx)
}

// Exec runs src as a module in the interpreter.
func (s *Session) Exec(filename, src string) error {
	return s.Do(func(ctx *Context) error {
		return ctx.Exec(filename, src)
	})
}

// Eval evaluates expr and converts the result.
func (s *Session) Eval(expr string) (Value, error) {
	var out Value
	err := s.Do(func(ctx *Context) error {
		h, err := ctx.Eval(expr)
		if err != nil {
			return err
		}
		defer h.Release()
		out, err = s.ToValue(ctx, h)
		return err
	})
	return out, err
}

// SetGlobal converts v and binds it to name.
func (s *Session) SetGlobal(name string, v Value) error {
	return s.Do(func(ctx *Context) error {
		h, err := s.ToHandle(ctx, v)
		if err != nil {
			return err
		}
		defer h.Release()
		return ctx.SetGlobal(name, h)
	})
}

// Global converts the named global.
func (s *Session) Global(name string) (Value, error) {
	var out Value
	err := s.Do(func(ctx *Context) error {
		h, err := ctx.Global(name)
		if err != nil {
			return err
		}
		defer h.Release()
		out, err = s.ToValue(ctx, h)
		return err
	})
	return out, err
}

// Call invokes the global function fn with converted args and converts its
// result.
func (s *Session) Call(fn string, args ...Value) (Value, error) {
	var out Value
	err := s.Do(func(ctx *Context) error {
		callee, err := ctx.Global(fn)
		if err != nil {
			return err
		}
		defer callee.Release()

		handles := make([]*Handle, 0, len(args))
		defer func() {
			for _, h := range handles {
				h.Release()
			}
		}()
		for i, a := range args {
			h, err := s.ToHandle(ctx, a)
			if err != nil {
				return fmt.Errorf("call %s: argument %d: %w", fn, i, err)
			}
			handles = append(handles, h)
		}

		res, err := ctx.Call(callee, handles...)
		if err != nil {
			return err
		}
		defer res.Release()
		out, err = s.ToValue(ctx, res)
		return err
	})
	return out, err
}
