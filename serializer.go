package ivbridge

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Serializer turns values into self-contained messages and back. The
// serialized backend and the frame reader and writer depend on this rather
// than on msgpack directly.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Transport moves whole messages. Message boundaries are the transport's
// concern; FrameTransport marks them with a length prefix.
type Transport interface {
	Send(data []byte) error

	// Receive returns the next message, or io.EOF once the peer is done.
	Receive() ([]byte, error)

	// Flush pushes out anything Send buffered.
	Flush() error

	Close() error
}

// MsgpackSerializer encodes with msgpack. A Value passed to it uses the
// wire format in codec.go.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
