package ivbridge

import (
	"bytes"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Wire format: None, Bool, Int, Double, String, List and Mapping use the
// corresponding msgpack types. Tuples and tensors are extension types whose
// payload is itself msgpack:
//
//	tuple:  ext 2, payload array of elements
//	tensor: ext 1, payload [dtype string, shape array, data bin]
//
// Opaque values have no wire form.
const (
	extTensor int8 = 1
	extTuple  int8 = 2
)

// Length headers are untrusted: containers grow as elements arrive and
// ext payloads are read in chunks, so a bogus header fails at the end of
// input instead of allocating what it claims.
const (
	maxPrealloc  = 1024
	payloadChunk = 64 << 10
)

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack writes v in the wire format.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeValue(enc, v, 0)
}

// DecodeMsgpack reads one value in the wire format. Tensor storage is
// freshly allocated. Malformed input fails with ErrForeignIntrospection.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	x, err := decodeValue(dec, 0)
	if err != nil {
		return asInterop(err, ForeignIntrospectionFailure, "", "malformed message")
	}
	*v = x
	return nil
}

func encodeValue(enc *msgpack.Encoder, v Value, depth int) error {
	if depth > maxNesting {
		return interopErrorf(UnsupportedVariant, "", "nesting deeper than %d", maxNesting)
	}
	switch v.kind {
	case KindNone:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.i != 0)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindDouble:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindTensor:
		return encodeExt(enc, extTensor, func(inner *msgpack.Encoder) error {
			return encodeTensor(inner, v.t)
		})
	case KindTuple:
		return encodeExt(enc, extTuple, func(inner *msgpack.Encoder) error {
			return encodeSeq(inner, v.seq, depth)
		})
	case KindList:
		return encodeSeq(enc, v.seq, depth)
	case KindMapping:
		if err := enc.EncodeMapLen(len(v.m.keys)); err != nil {
			return err
		}
		for i := range v.m.keys {
			if err := encodeValue(enc, v.m.keys[i], depth+1); err != nil {
				return err
			}
			if err := encodeValue(enc, v.m.values[i], depth+1); err != nil {
				return err
			}
		}
		return nil
	case KindOpaque:
		return interopErrorf(UnsupportedVariant, "", "opaque %s has no wire form", v.o.typeName)
	}
	return interopErrorf(UnsupportedVariant, "", "value kind %s", v.kind)
}

func encodeSeq(enc *msgpack.Encoder, seq []Value, depth int) error {
	if err := enc.EncodeArrayLen(len(seq)); err != nil {
		return err
	}
	for _, e := range seq {
		if err := encodeValue(enc, e, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func encodeTensor(enc *msgpack.Encoder, t *Tensor) error {
	if err := enc.EncodeArrayLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString(t.dtype.String()); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(t.shape)); err != nil {
		return err
	}
	for _, d := range t.shape {
		if err := enc.EncodeInt(int64(d)); err != nil {
			return err
		}
	}
	return enc.EncodeBytes(t.data)
}

// encodeExt writes an extension whose payload is produced by body.
func encodeExt(enc *msgpack.Encoder, id int8, body func(*msgpack.Encoder) error) error {
	var payload bytes.Buffer
	if err := body(msgpack.NewEncoder(&payload)); err != nil {
		return err
	}
	if err := enc.EncodeExtHeader(id, payload.Len()); err != nil {
		return err
	}
	_, err := enc.Writer().Write(payload.Bytes())
	return err
}

func decodeValue(dec *msgpack.Decoder, depth int) (Value, error) {
	if depth > maxNesting {
		return Value{}, interopErrorf(ForeignIntrospectionFailure, "", "nesting deeper than %d", maxNesting)
	}
	c, err := dec.PeekCode()
	if err != nil {
		return Value{}, err
	}
	switch {
	case c == msgpcode.Nil:
		return None(), dec.DecodeNil()
	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		return Bool(b), err
	case c == msgpcode.Uint64:
		u, err := dec.DecodeUint64()
		if err != nil {
			return Value{}, err
		}
		if u > math.MaxInt64 {
			return Value{}, interopErrorf(UnsupportedVariant, "", "integer %d does not fit in 64 bits", u)
		}
		return Int(int64(u)), nil
	case msgpcode.IsFixedNum(c), isIntCode(c):
		i, err := dec.DecodeInt64()
		return Int(i), err
	case c == msgpcode.Float:
		f, err := dec.DecodeFloat32()
		return Double(float64(f)), err
	case c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		return Double(f), err
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		return String(s), err
	case c == msgpcode.Bin8 || c == msgpcode.Bin16 || c == msgpcode.Bin32:
		b, err := dec.DecodeBytes()
		return String(string(b)), err
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		seq, err := decodeSeq(dec, depth)
		return Value{kind: KindList, seq: seq}, err
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		return decodeMapping(dec, depth)
	case msgpcode.IsExt(c):
		return decodeExt(dec, depth)
	}
	return Value{}, interopErrorf(UnsupportedVariant, "", "msgpack code 0x%02x has no value form", c)
}

func isIntCode(c byte) bool {
	switch c {
	case msgpcode.Uint8, msgpcode.Uint16, msgpcode.Uint32,
		msgpcode.Int8, msgpcode.Int16, msgpcode.Int32, msgpcode.Int64:
		return true
	}
	return false
}

func decodeSeq(dec *msgpack.Decoder, depth int) ([]Value, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	seq := make([]Value, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		e, err := decodeValue(dec, depth+1)
		if err != nil {
			return nil, err
		}
		seq = append(seq, e)
	}
	return seq, nil
}

func decodeMapping(dec *msgpack.Decoder, depth int) (Value, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return Value{}, err
	}
	entries := make([]Entry, 0, min(max(n, 0), maxPrealloc))
	for i := 0; i < n; i++ {
		k, err := decodeValue(dec, depth+1)
		if err != nil {
			return Value{}, err
		}
		v, err := decodeValue(dec, depth+1)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return Mapping(entries...), nil
}

func decodeExt(dec *msgpack.Decoder, depth int) (Value, error) {
	id, n, err := dec.DecodeExtHeader()
	if err != nil {
		return Value{}, err
	}
	payload, err := readPayload(dec, n)
	if err != nil {
		return Value{}, err
	}
	inner := msgpack.NewDecoder(bytes.NewReader(payload))
	switch id {
	case extTuple:
		seq, err := decodeSeq(inner, depth)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindTuple, seq: seq}, nil
	case extTensor:
		t, err := decodeTensor(inner)
		if err != nil {
			return Value{}, err
		}
		return TensorValue(t), nil
	}
	return Value{}, interopErrorf(UnsupportedVariant, "", "unknown extension type %d", id)
}

// readPayload reads n bytes in bounded chunks.
func readPayload(dec *msgpack.Decoder, n int) ([]byte, error) {
	if n < 0 {
		return nil, interopErrorf(ForeignIntrospectionFailure, "", "negative ext length %d", n)
	}
	var payload bytes.Buffer
	chunk := make([]byte, min(n, payloadChunk))
	for remaining := n; remaining > 0; {
		c := chunk[:min(remaining, len(chunk))]
		if err := dec.ReadFull(c); err != nil {
			return nil, err
		}
		payload.Write(c)
		remaining -= len(c)
	}
	return payload.Bytes(), nil
}

func decodeTensor(dec *msgpack.Decoder) (*Tensor, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n != 3 {
		return nil, interopErrorf(ForeignIntrospectionFailure, "", "tensor payload has %d fields, want 3", n)
	}
	name, err := dec.DecodeString()
	if err != nil {
		return nil, err
	}
	dtype, err := ParseDType(name)
	if err != nil {
		return nil, wrapInterop(UnsupportedVariant, "", err, "tensor payload")
	}
	rank, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	shape := make([]int, 0, min(max(rank, 0), 8))
	for i := 0; i < rank; i++ {
		d, err := dec.DecodeInt()
		if err != nil {
			return nil, err
		}
		shape = append(shape, d)
	}
	data, err := dec.DecodeBytes()
	if err != nil {
		return nil, err
	}
	t, err := NewTensor(dtype, shape, data)
	if err != nil {
		return nil, wrapInterop(ForeignIntrospectionFailure, "", err, "tensor payload")
	}
	return t, nil
}
