package ivbridge

func init() {
	MustRegister(LinkedBackend())
}

// LinkedBackend returns a descriptor for the in-process backend. Objects
// are built directly, tensors are wrapped without copying, and objects of
// unknown shape come back boxed as Opaque values.
func LinkedBackend() *Backend {
	return &Backend{
		ID:          Linked,
		Description: "direct object construction, zero-copy tensors, unknown shapes boxed",
		Version:     ContractVersion,
		Unknown:     BoxUnknown,
		ZeroCopy:    true,
		Converter:   &linkedConverter{objectConverter{backend: Linked, unknown: BoxUnknown}},
	}
}

type linkedConverter struct {
	objectConverter
}

func (c *linkedConverter) ToHandle(ctx *Context, v Value) (*Handle, error) {
	if err := ctx.check(); err != nil {
		return nil, withBackend(err, c.backend)
	}
	obj, err := c.toObject(ctx, v, 0)
	if err != nil {
		return nil, err
	}
	return c.pinRoot(ctx, obj)
}

func (c *linkedConverter) ToValue(ctx *Context, h *Handle) (Value, error) {
	obj, err := ctx.Deref(h)
	if err != nil {
		return Value{}, withBackend(err, c.backend)
	}
	return c.fromObject(ctx, obj)
}
