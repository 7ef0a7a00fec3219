package pdb

import (
	"fmt"

	"github.com/skdltmxn/classsort/internal/dbi"
	"github.com/skdltmxn/classsort/internal/symbols"
)

// Public is a public (linker-visible) symbol.
type Public struct {
	// Name is the decorated name.
	Name string

	// Section is the 1-based image section index; Offset is relative to it.
	Section uint16
	Offset  uint32

	Function bool
	Code     bool
}

// Publics reads every S_PUB32 record from the symbol record stream in
// stream order.
func (f *File) Publics() ([]Public, error) {
	h, err := f.DBI()
	if err != nil {
		return nil, err
	}
	if h.SymRecordStreamIndex == dbi.InvalidStreamIndex {
		return nil, ErrNoPublics
	}
	data, err := f.readStream(uint32(h.SymRecordStreamIndex))
	if err != nil {
		return nil, fmt.Errorf("pdb: read symbol records: %w", err)
	}

	var out []Public
	for rec, err := range symbols.Records(data) {
		if err != nil {
			return nil, &ParseError{Stream: "symbol records", Offset: int64(rec.Offset), Message: "bad record", Err: err}
		}
		if rec.Kind != symbols.S_PUB32 {
			continue
		}
		p, err := symbols.ParsePublic(rec)
		if err != nil {
			return nil, &ParseError{Stream: "symbol records", Offset: int64(rec.Offset), Message: "bad S_PUB32", Err: err}
		}
		out = append(out, Public{
			Name:     p.Name,
			Section:  p.Segment,
			Offset:   p.Offset,
			Function: p.Flags.IsFunction(),
			Code:     p.Flags.IsCode(),
		})
	}
	return out, nil
}
