// Package stream provides little-endian reading over PDB stream bytes.
package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrUnexpectedEOF is reported when a read runs past the data.
var ErrUnexpectedEOF = errors.New("stream: unexpected end of data")

// Reader reads fixed-width values from a byte slice. The first failed read
// is sticky: later reads return zero values and Err reports the failure.
type Reader struct {
	data   []byte
	offset int
	err    error
}

// NewReader creates a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first read failure, if any.
func (r *Reader) Err() error { return r.err }

// Offset returns the current read position.
func (r *Reader) Offset() int { return r.offset }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	if r.offset >= len(r.data) {
		return 0
	}
	return len(r.data) - r.offset
}

// take returns the next n bytes without copying.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.offset+n > len(r.data) {
		r.err = ErrUnexpectedEOF
		return nil
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) { r.take(n) }

// U16 reads an unsigned 16-bit integer.
func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads an unsigned 32-bit integer.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// I32 reads a signed 32-bit integer.
func (r *Reader) I32() int32 { return int32(r.U32()) }

// Bytes returns a reference to the next n bytes.
func (r *Reader) Bytes(n int) []byte { return r.take(n) }

// CString reads a NUL-terminated string.
func (r *Reader) CString() string {
	if r.err != nil {
		return ""
	}
	i := bytes.IndexByte(r.data[r.offset:], 0)
	if i < 0 {
		r.err = ErrUnexpectedEOF
		return ""
	}
	s := string(r.data[r.offset : r.offset+i])
	r.offset += i + 1
	return s
}
