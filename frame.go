package ivbridge

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds the length prefix accepted by FrameTransport.Receive.
const MaxFrameSize = 1 << 30

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// FrameTransport sends and receives length-prefixed messages: a 4-byte
// big-endian length followed by the message bytes.
type FrameTransport struct {
	reader     io.Reader
	writer     *bufio.Writer
	closers    []io.Closer
	bufferPool *BufferPool
}

// NewFrameTransport returns a transport over r and w. Either may be nil for
// a one-directional transport. Close closes whichever of them implement
// io.Closer.
func NewFrameTransport(r io.Reader, w io.Writer) *FrameTransport {
	ft := &FrameTransport{
		reader:     r,
		bufferPool: NewBufferPool(8192, 10),
	}
	if w != nil {
		ft.writer = bufio.NewWriter(w)
	}
	for _, s := range []any{r, w} {
		if c, ok := s.(io.Closer); ok {
			ft.closers = append(ft.closers, c)
		}
	}
	return ft
}

func (ft *FrameTransport) Send(data []byte) error {
	if ft.writer == nil {
		return fmt.Errorf("send: transport has no writer")
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("send %d bytes: %w", len(data), ErrFrameTooLarge)
	}
	lengthBytes := ft.bufferPool.Get()[:4]
	binary.BigEndian.PutUint32(lengthBytes, uint32(len(data)))
	_, err := ft.writer.Write(lengthBytes)
	ft.bufferPool.Put(lengthBytes)
	if err != nil {
		return err
	}
	if _, err := ft.writer.Write(data); err != nil {
		return err
	}
	return ft.writer.Flush()
}

// Receive reads one frame. It returns io.EOF when the stream ends cleanly
// between frames and io.ErrUnexpectedEOF when it ends inside one.
func (ft *FrameTransport) Receive() ([]byte, error) {
	if ft.reader == nil {
		return nil, fmt.Errorf("receive: transport has no reader")
	}
	lengthBuf := ft.bufferPool.Get()[:4]
	_, err := io.ReadFull(ft.reader, lengthBuf)
	length := binary.BigEndian.Uint32(lengthBuf)
	ft.bufferPool.Put(lengthBuf)
	if err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("receive %d bytes: %w", length, ErrFrameTooLarge)
	}

	// Small messages are read through a pooled buffer.
	if length <= uint32(ft.bufferPool.BufSize()) {
		buf := ft.bufferPool.Get()[:length]
		if _, err := io.ReadFull(ft.reader, buf); err != nil {
			ft.bufferPool.Put(buf)
			return nil, noEOF(err)
		}
		result := make([]byte, length)
		copy(result, buf)
		ft.bufferPool.Put(buf)
		return result, nil
	}

	// Large frames grow as bytes arrive rather than trusting the prefix.
	var data bytes.Buffer
	if _, err := io.CopyN(&data, ft.reader, int64(length)); err != nil {
		return nil, noEOF(err)
	}
	return data.Bytes(), nil
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (ft *FrameTransport) Flush() error {
	if ft.writer == nil {
		return nil
	}
	return ft.writer.Flush()
}

func (ft *FrameTransport) Close() error {
	errs := []error{ft.Flush()}
	for _, c := range ft.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// FrameWriter writes Values as framed messages.
type FrameWriter struct {
	t   Transport
	ser Serializer
}

// NewFrameWriter returns a writer of framed msgpack Values on w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{t: NewFrameTransport(nil, w), ser: MsgpackSerializer{}}
}

func (fw *FrameWriter) Write(v Value) error {
	data, err := fw.ser.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return fw.t.Send(data)
}

func (fw *FrameWriter) Flush() error { return fw.t.Flush() }

// FrameReader reads Values written by FrameWriter.
type FrameReader struct {
	t   Transport
	ser Serializer
}

// NewFrameReader returns a reader of framed msgpack Values from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{t: NewFrameTransport(r, nil), ser: MsgpackSerializer{}}
}

// Read returns the next Value, or io.EOF after the last frame.
func (fr *FrameReader) Read() (Value, error) {
	data, err := fr.t.Receive()
	if err != nil {
		return Value{}, err
	}
	var v Value
	if err := fr.ser.Unmarshal(data, &v); err != nil {
		return Value{}, fmt.Errorf("decode frame: %w", err)
	}
	return v, nil
}

// ReadAll returns every remaining Value.
func (fr *FrameReader) ReadAll() ([]Value, error) {
	var out []Value
	for {
		v, err := fr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}
