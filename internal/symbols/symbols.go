// Package symbols walks CodeView symbol records in the PDB symbol record
// stream.
package symbols

import (
	"errors"
	"fmt"
	"iter"

	"github.com/skdltmxn/classsort/internal/stream"
)

var (
	ErrInvalidRecord = errors.New("symbols: invalid symbol record")
	ErrWrongKind     = errors.New("symbols: unexpected record kind")
)

// Kind identifies a symbol record.
type Kind uint16

// Record kinds the importer reads. Everything else is skipped.
const (
	S_GDATA32 Kind = 0x110d
	S_PUB32   Kind = 0x110e
	S_PROCREF Kind = 0x1125
)

// Record is one symbol record with its kind-specific payload.
type Record struct {
	Kind Kind
	Data []byte

	// Offset is the record's position in the stream.
	Offset int
}

// PublicFlags describes an S_PUB32 symbol.
type PublicFlags uint32

func (f PublicFlags) IsCode() bool     { return f&0x01 != 0 }
func (f PublicFlags) IsFunction() bool { return f&0x02 != 0 }

// Public is a decoded S_PUB32 record.
type Public struct {
	Flags   PublicFlags
	Offset  uint32
	Segment uint16
	Name    string
}

// Records iterates the length-prefixed records in data. A malformed record
// yields ErrInvalidRecord and ends the walk.
func Records(data []byte) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		off := 0
		for len(data)-off >= 4 {
			r := stream.NewReader(data[off:])
			length := int(r.U16())
			kind := Kind(r.U16())
			if length < 2 || off+2+length > len(data) {
				yield(Record{Offset: off}, fmt.Errorf("%w at offset 0x%x", ErrInvalidRecord, off))
				return
			}
			rec := Record{Kind: kind, Data: data[off+4 : off+2+length], Offset: off}
			if !yield(rec, nil) {
				return
			}
			off += 2 + length
		}
	}
}

// ParsePublic decodes an S_PUB32 record.
func ParsePublic(rec Record) (Public, error) {
	if rec.Kind != S_PUB32 {
		return Public{}, fmt.Errorf("%w: 0x%04x", ErrWrongKind, uint16(rec.Kind))
	}
	r := stream.NewReader(rec.Data)
	p := Public{
		Flags:   PublicFlags(r.U32()),
		Offset:  r.U32(),
		Segment: r.U16(),
		Name:    r.CString(),
	}
	if err := r.Err(); err != nil {
		return Public{}, fmt.Errorf("%w at offset 0x%x: %w", ErrInvalidRecord, rec.Offset, err)
	}
	return p, nil
}

// AppendPublic encodes p as an S_PUB32 record padded to four bytes.
func AppendPublic(dst []byte, p Public) []byte {
	body := make([]byte, 0, 14+len(p.Name))
	body = appendU32(body, uint32(p.Flags))
	body = appendU32(body, p.Offset)
	body = append(body, byte(p.Segment), byte(p.Segment>>8))
	body = append(body, p.Name...)
	body = append(body, 0)
	for (len(body)+4)%4 != 0 {
		body = append(body, 0)
	}
	length := uint16(len(body) + 2)
	dst = append(dst, byte(length), byte(length>>8), byte(S_PUB32&0xff), byte(S_PUB32>>8))
	return append(dst, body...)
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
