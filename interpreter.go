package ivbridge

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.starlark.net/starlark"
)

var interpreterIDs atomic.Uint64

// InterpreterOptions configures a new Interpreter.
type InterpreterOptions struct {
	// Name identifies the interpreter in logs and thread names.
	Name string

	// MaxObjects bounds the number of objects pinned by live handles.
	// Zero means no limit.
	MaxObjects int

	// Logger receives interpreter diagnostics. Defaults to Logger().
	Logger *slog.Logger

	// Print receives output of the print builtin. Defaults to logging at
	// info level.
	Print func(msg string)
}

// Interpreter is one embedded interpreter instance with its own globals and
// object heap.
//
// Interpreter state may only be touched while holding its execution
// context, obtained with Enter. Different interpreters share nothing and
// may run in parallel on different goroutines.
type Interpreter struct {
	id      uint64
	name    string
	ctxMu   sync.Mutex // the execution context
	thread  *starlark.Thread
	globals starlark.StringDict
	heap    *objectHeap
	closed  atomic.Bool
	logger  *slog.Logger
}

// NewInterpreter starts an interpreter instance.
func NewInterpreter(opts InterpreterOptions) *Interpreter {
	id := interpreterIDs.Add(1)
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("interp-%d", id)
	}
	logger := opts.Logger
	if logger == nil {
		logger = Logger()
	}
	logger = logger.With("interpreter", name)

	in := &Interpreter{
		id:      id,
		name:    name,
		globals: starlark.StringDict{},
		heap:    newObjectHeap(opts.MaxObjects),
		logger:  logger,
	}
	printFn := opts.Print
	if printFn == nil {
		printFn = func(msg string) { logger.Info("print", "msg", msg) }
	}
	in.thread = &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, msg string) { printFn(msg) },
	}
	logger.Debug("interpreter started", "id", id, "max_objects", opts.MaxObjects)
	return in
}

func (in *Interpreter) ID() uint64 { return in.id }

func (in *Interpreter) Name() string { return in.name }

// LiveObjects returns the number of objects currently pinned by handles.
func (in *Interpreter) LiveObjects() int { return in.heap.live() }

func (in *Interpreter) Closed() bool { return in.closed.Load() }

// Enter acquires the interpreter's execution context, blocking until it is
// free. The returned Context must be released with Exit.
func (in *Interpreter) Enter() (*Context, error) {
	in.ctxMu.Lock()
	if in.closed.Load() {
		in.ctxMu.Unlock()
		return nil, interopErrorf(InvalidHandleContext, "", "interpreter %s is closed", in.name)
	}
	c := &Context{interp: in}
	c.active.Store(true)
	return c, nil
}

// Close finalizes the interpreter. Outstanding handles become inert and
// later calls to Enter fail. Close must not be called while the calling
// goroutine holds a Context of this interpreter.
func (in *Interpreter) Close() error {
	in.ctxMu.Lock()
	defer in.ctxMu.Unlock()
	if !in.closed.CompareAndSwap(false, true) {
		return nil
	}
	if leaked := in.heap.drain(); leaked > 0 {
		in.logger.Warn("interpreter closed with live handles", "live", leaked)
	}
	in.globals = nil
	in.logger.Debug("interpreter closed")
	return nil
}

func (in *Interpreter) env() starlark.StringDict {
	env := make(starlark.StringDict, len(predeclared)+len(in.globals))
	for k, v := range predeclared {
		env[k] = v
	}
	for k, v := range in.globals {
		env[k] = v
	}
	return env
}

// Context is proof that the calling goroutine holds an interpreter's
// execution context. All conversions and object operations take one.
type Context struct {
	interp *Interpreter
	active atomic.Bool
}

func (c *Context) Interpreter() *Interpreter { return c.interp }

// Active reports whether the context is still held.
func (c *Context) Active() bool { return c.active.Load() && !c.interp.closed.Load() }

// Exit releases the execution context. Calls after the first do nothing.
func (c *Context) Exit() {
	if c.active.CompareAndSwap(true, false) {
		c.interp.ctxMu.Unlock()
	}
}

// Thread returns the interpreter thread for use by conversion backends.
func (c *Context) Thread() *starlark.Thread { return c.interp.thread }

func (c *Context) check() error {
	if !c.active.Load() {
		return interopErrorf(InvalidHandleContext, "", "execution context of %s was exited", c.interp.name)
	}
	if c.interp.closed.Load() {
		return interopErrorf(InvalidHandleContext, "", "interpreter %s is closed", c.interp.name)
	}
	return nil
}

// Pin stores obj in the interpreter heap and returns an owning handle.
func (c *Context) Pin(obj starlark.Value) (*Handle, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	s, err := c.interp.heap.pin(obj)
	if err != nil {
		return nil, err
	}
	return &Handle{interp: c.interp, slot: s}, nil
}

// Deref returns the object behind h. It fails if h belongs to another
// interpreter or is no longer live.
func (c *Context) Deref(h *Handle) (starlark.Value, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, interopErrorf(InvalidHandleContext, "", "nil handle")
	}
	if h.interp != c.interp {
		return nil, interopErrorf(InvalidHandleContext, "", "handle %d of %s used in context of %s",
			h.slot.id, h.interp.name, c.interp.name)
	}
	if h.released.Load() || !c.interp.heap.isLive(h.slot) {
		return nil, interopErrorf(InvalidHandleContext, "", "handle %d was released", h.slot.id)
	}
	return h.slot.obj, nil
}

// Exec runs src as a module and merges its globals into the interpreter.
func (c *Context) Exec(filename, src string) error {
	if err := c.check(); err != nil {
		return err
	}
	globals, err := starlark.ExecFile(c.interp.thread, filename, src, c.interp.env())
	for name, v := range globals {
		c.interp.globals[name] = v
	}
	return translateScriptError(err)
}

// Eval evaluates an expression and returns a handle to its result.
func (c *Context) Eval(expr string) (*Handle, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	v, err := starlark.Eval(c.interp.thread, "<eval>", expr, c.interp.env())
	if err != nil {
		return nil, translateScriptError(err)
	}
	return c.Pin(v)
}

// Global returns a handle to the named global.
func (c *Context) Global(name string) (*Handle, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	v, ok := c.interp.globals[name]
	if !ok {
		return nil, &ScriptError{Exception: "NameError", Message: fmt.Sprintf("global %q is not defined", name)}
	}
	return c.Pin(v)
}

// SetGlobal binds name to the object behind h. The handle is not consumed.
func (c *Context) SetGlobal(name string, h *Handle) error {
	obj, err := c.Deref(h)
	if err != nil {
		return err
	}
	c.interp.globals[name] = obj
	return nil
}

// Call invokes the callable behind fn with positional args and returns a
// handle to the result. Argument handles are not consumed.
func (c *Context) Call(fn *Handle, args ...*Handle) (*Handle, error) {
	callee, err := c.Deref(fn)
	if err != nil {
		return nil, err
	}
	if _, ok := callee.(starlark.Callable); !ok {
		return nil, &ScriptError{Exception: "TypeError", Message: fmt.Sprintf("%s object is not callable", callee.Type())}
	}
	tuple := make(starlark.Tuple, len(args))
	for i, a := range args {
		if tuple[i], err = c.Deref(a); err != nil {
			return nil, err
		}
	}
	res, err := starlark.Call(c.interp.thread, callee, tuple, nil)
	if err != nil {
		return nil, translateScriptError(err)
	}
	return c.Pin(res)
}
