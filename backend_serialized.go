package ivbridge

func init() {
	MustRegister(SerializedBackend())
}

// SerializedBackend returns a descriptor for the backend that exchanges
// values with the interpreter as a self-describing msgpack stream. Every
// conversion round-trips the wire form, so tensors are copied, and objects
// without a wire form are rejected.
func SerializedBackend() *Backend {
	return &Backend{
		ID:          Serialized,
		Description: "msgpack wire exchange, tensors copied, unknown shapes rejected",
		Version:     ContractVersion,
		Unknown:     RejectUnknown,
		Converter: &serializedConverter{
			objectConverter: objectConverter{backend: Serialized, unknown: RejectUnknown},
			ser:             MsgpackSerializer{},
		},
	}
}

type serializedConverter struct {
	objectConverter
	ser Serializer
}

func (c *serializedConverter) ToHandle(ctx *Context, v Value) (*Handle, error) {
	if err := ctx.check(); err != nil {
		return nil, withBackend(err, c.backend)
	}
	wire, err := c.roundTrip(v)
	if err != nil {
		return nil, err
	}
	obj, err := c.toObject(ctx, wire, 0)
	if err != nil {
		return nil, err
	}
	return c.pinRoot(ctx, obj)
}

func (c *serializedConverter) ToValue(ctx *Context, h *Handle) (Value, error) {
	obj, err := ctx.Deref(h)
	if err != nil {
		return Value{}, withBackend(err, c.backend)
	}
	v, err := c.fromObject(ctx, obj)
	if err != nil {
		return Value{}, err
	}
	return c.roundTrip(v)
}

// roundTrip passes v through the wire form: one side encodes, the other
// decodes into freshly allocated storage.
func (c *serializedConverter) roundTrip(v Value) (Value, error) {
	data, err := c.ser.Marshal(v)
	if err != nil {
		return Value{}, asInterop(err, UnsupportedVariant, c.backend, "encode %s", v.kind)
	}
	var out Value
	if err := c.ser.Unmarshal(data, &out); err != nil {
		return Value{}, asInterop(err, ForeignIntrospectionFailure, c.backend, "decode %d byte message", len(data))
	}
	return out, nil
}
