// Package xdr implements the subset of the Stellar XDR wire encoding the
// engine needs: v1 transaction envelopes, the five operation bodies it
// builds or inspects, and the SCVal value family used by contract calls.
package xdr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrUnsupported marks well-formed XDR the engine deliberately does
	// not handle (fee-bump envelopes, non-invoke host functions and the
	// like). Callers treat it as a skip, not a failure.
	ErrUnsupported = errors.New("xdr: unsupported construct")

	errShortBuffer = errors.New("xdr: short buffer")
)

// Encoder writes big-endian XDR primitives into an in-memory buffer.
type Encoder struct {
	buf bytes.Buffer
}

// Bytes returns the encoded stream.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) PutInt32(v int32) {
	e.PutUint32(uint32(v))
}

func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) PutInt64(v int64) {
	e.PutUint64(uint64(v))
}

func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint32(1)
	} else {
		e.PutUint32(0)
	}
}

// PutFixed writes fixed-length opaque data with zero padding to a 4-byte
// boundary.
func (e *Encoder) PutFixed(b []byte) {
	e.buf.Write(b)
	for i := len(b) % 4; i != 0 && i < 4; i++ {
		e.buf.WriteByte(0)
	}
}

// PutVarBytes writes length-prefixed opaque data.
func (e *Encoder) PutVarBytes(b []byte) {
	e.PutUint32(uint32(len(b)))
	e.PutFixed(b)
}

// PutString writes an XDR string.
func (e *Encoder) PutString(s string) {
	e.PutVarBytes([]byte(s))
}

// PutRaw splices pre-encoded XDR verbatim, with no length prefix.
func (e *Encoder) PutRaw(b []byte) {
	e.buf.Write(b)
}

// Decoder reads big-endian XDR primitives from a byte slice, tracking its
// offset so callers can capture the raw span of a decoded value.
type Decoder struct {
	data []byte
	off  int
}

// NewDecoder wraps data for reading.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Offset returns the current read position.
func (d *Decoder) Offset() int { return d.off }

// Raw returns the bytes between from and the current position.
func (d *Decoder) Raw(from int) []byte { return d.data[from:d.off] }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.off }

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, errShortBuffer
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint32()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("xdr: bool discriminant %d", v)
	}
}

// Fixed reads n opaque bytes plus padding.
func (d *Decoder) Fixed(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	if pad := (4 - n%4) % 4; pad > 0 {
		if _, err := d.take(pad); err != nil {
			return nil, err
		}
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// VarBytes reads length-prefixed opaque data, rejecting lengths over max
// (0 means no limit beyond the buffer).
func (d *Decoder) VarBytes(max uint32) ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if max > 0 && n > max {
		return nil, fmt.Errorf("xdr: opaque length %d exceeds max %d", n, max)
	}
	if int(n) > d.Remaining() {
		return nil, errShortBuffer
	}
	return d.Fixed(int(n))
}

// String reads an XDR string.
func (d *Decoder) String(max uint32) (string, error) {
	b, err := d.VarBytes(max)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
