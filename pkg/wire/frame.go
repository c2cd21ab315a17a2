// Package wire implements the length-prefixed frame protocol shared by the
// encrypted connection provider (reading/writing raw frames) and the
// connection manager (encoding outbound payloads with Encode).
//
// Frames are prefixed with an 8-byte big-endian length field. Payloads
// are encoded with github.com/ugorji/go/codec's msgpack handle.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

// MaxFrameSize is the largest payload accepted on a connection.
const MaxFrameSize = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned when a peer announces a frame length beyond
// MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds %d bytes", MaxFrameSize)

func handle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	return h
}

// WriteFrame writes a single length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads a single length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Encode marshals v into a msgpack payload suitable for WriteFrame.
func Encode(v interface{}) ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, handle())
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode unmarshals a msgpack payload produced by Encode into v.
func Decode(payload []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(payload, handle())
	return dec.Decode(v)
}
