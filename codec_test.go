package ivbridge

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

func TestMsgpackRoundTrip(t *testing.T) {
	ser := MsgpackSerializer{}
	for name, v := range roundTripCases(t) {
		t.Run(name, func(t *testing.T) {
			data, err := ser.Marshal(v)
			require.NoError(t, err)
			var out Value
			require.NoError(t, ser.Unmarshal(data, &out))
			assert.True(t, v.Equal(out), "sent %s, got %s", v, out)
		})
	}
}

func TestMsgpackWireFormat(t *testing.T) {
	data, err := msgpack.Marshal(List(Int(1), String("a"), None()))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x93, 0x01, 0xa1, 'a', msgpcode.Nil}, data)

	data, err = msgpack.Marshal(Tuple(Bool(true)))
	require.NoError(t, err)
	// fixext2 of type 2 holding the one-element array [true].
	assert.Equal(t, []byte{msgpcode.FixExt2, byte(extTuple), 0x91, msgpcode.True}, data)

	data, err = msgpack.Marshal(Double(1))
	require.NoError(t, err)
	assert.Equal(t, msgpcode.Double, data[0])
}

func TestMsgpackDecodesPlainMessages(t *testing.T) {
	// Messages produced by generic msgpack encoders decode without the
	// custom types: floats widen, binary becomes a string.
	data, err := msgpack.Marshal(map[string]any{
		"f32": float32(1.5),
		"bin": []byte("raw"),
		"u64": uint64(math.MaxInt64),
		"neg": int8(-3),
	})
	require.NoError(t, err)

	var v Value
	require.NoError(t, msgpack.Unmarshal(data, &v))

	f, ok := v.Lookup(String("f32"))
	require.True(t, ok)
	assert.True(t, f.Equal(Double(1.5)))

	b, ok := v.Lookup(String("bin"))
	require.True(t, ok)
	assert.True(t, b.Equal(String("raw")))

	u, ok := v.Lookup(String("u64"))
	require.True(t, ok)
	assert.True(t, u.Equal(Int(math.MaxInt64)))

	n, ok := v.Lookup(String("neg"))
	require.True(t, ok)
	assert.True(t, n.Equal(Int(-3)))
}

func TestMsgpackRejects(t *testing.T) {
	t.Run("opaque", func(t *testing.T) {
		_, err := msgpack.Marshal(List(newOpaque(1, "function", nil)))
		assert.ErrorIs(t, err, ErrUnsupportedVariant)
	})

	t.Run("uint64 overflow", func(t *testing.T) {
		data, err := msgpack.Marshal(uint64(math.MaxUint64))
		require.NoError(t, err)
		var v Value
		assert.ErrorIs(t, msgpack.Unmarshal(data, &v), ErrUnsupportedVariant)
	})

	t.Run("unknown extension", func(t *testing.T) {
		data := []byte{msgpcode.FixExt1, 9, 0x00}
		var v Value
		assert.ErrorIs(t, msgpack.Unmarshal(data, &v), ErrUnsupportedVariant)
	})

	t.Run("bad tensor payload", func(t *testing.T) {
		var payload bytes.Buffer
		enc := msgpack.NewEncoder(&payload)
		require.NoError(t, enc.EncodeArrayLen(3))
		require.NoError(t, enc.EncodeString("float64"))
		require.NoError(t, enc.EncodeArrayLen(1))
		require.NoError(t, enc.EncodeInt(2))
		require.NoError(t, enc.EncodeBytes(make([]byte, 3)))

		var msg bytes.Buffer
		enc = msgpack.NewEncoder(&msg)
		require.NoError(t, enc.EncodeExtHeader(extTensor, payload.Len()))
		_, err := msg.Write(payload.Bytes())
		require.NoError(t, err)

		var v Value
		assert.ErrorIs(t, msgpack.Unmarshal(msg.Bytes(), &v), ErrForeignIntrospection)
	})
}

func TestFrameStream(t *testing.T) {
	values := []Value{
		Int(1),
		String(string(bytes.Repeat([]byte("x"), 10000))),
		Mapping(Entry{String("t"), Tuple(Double(0.5), None())}),
	}

	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	for _, v := range values {
		require.NoError(t, fw.Write(v))
	}
	require.NoError(t, fw.Flush())

	got, err := NewFrameReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, got, len(values))
	for i := range values {
		assert.True(t, values[i].Equal(got[i]), "frame %d", i)
	}
}

func TestFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.Write(String("hello")))

	data := buf.Bytes()[:buf.Len()-2]
	_, err := NewFrameReader(bytes.NewReader(data)).Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewFrameReader(bytes.NewReader(nil)).Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameTooLarge(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff}
	_, err := NewFrameTransport(bytes.NewReader(data), nil).Receive()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameTransportOneDirectional(t *testing.T) {
	ft := NewFrameTransport(nil, io.Discard)
	_, err := ft.Receive()
	assert.Error(t, err)
	assert.NoError(t, ft.Send([]byte("x")))
	assert.NoError(t, ft.Close())
}

// allocatedBy reports the bytes fn allocated on the heap.
func allocatedBy(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func lengthPrefixed(msg []byte) []byte {
	frame := binary.BigEndian.AppendUint32(nil, uint32(len(msg)))
	return append(frame, msg...)
}

func TestMsgpackOversizedHeaders(t *testing.T) {
	tests := map[string][]byte{
		"array32": {msgpcode.Array32, 0x0f, 0xff, 0xff, 0xff},
		"map32":   {msgpcode.Map32, 0x0f, 0xff, 0xff, 0xff},
		"ext32":   {msgpcode.Ext32, 0x7f, 0xff, 0xff, 0xff, byte(extTuple)},
		"bin32":   {msgpcode.Bin32, 0x7f, 0xff, 0xff, 0xff, 'x'},
		"nested":  {0x91, msgpcode.Array32, 0x0f, 0xff, 0xff, 0xff, 0x01},
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			var err error
			n := allocatedBy(func() {
				var v Value
				err = msgpack.Unmarshal(msg, &v)
			})
			assert.ErrorIs(t, err, ErrForeignIntrospection)
			assert.Less(t, n, uint64(32<<20))

			n = allocatedBy(func() {
				_, err = NewFrameReader(bytes.NewReader(lengthPrefixed(msg))).Read()
			})
			assert.ErrorIs(t, err, ErrForeignIntrospection)
			assert.Less(t, n, uint64(32<<20))
		})
	}
}

func TestFrameLengthPrefixIsNotTrusted(t *testing.T) {
	data := []byte{0x20, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03}
	var err error
	n := allocatedBy(func() {
		_, err = NewFrameReader(bytes.NewReader(data)).Read()
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Less(t, n, uint64(32<<20))
}
