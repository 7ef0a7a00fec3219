// Package pdbtest writes minimal PDB files holding public symbols.
package pdbtest

import (
	"encoding/binary"

	"github.com/skdltmxn/classsort/internal/dbi"
	"github.com/skdltmxn/classsort/internal/symbols"
	"github.com/skdltmxn/classsort/msf/msftest"
	"github.com/skdltmxn/classsort/pdb"
)

// symRecordStream is where Build places the symbol records.
const symRecordStream = 5

// Build returns a PDB for machine whose symbol record stream holds pubs.
func Build(machine uint16, pubs []pdb.Public) []byte {
	le := binary.LittleEndian

	h := le.AppendUint32(nil, 0xFFFFFFFF) // version signature -1
	h = le.AppendUint32(h, 19990903)
	h = le.AppendUint32(h, 1)
	h = le.AppendUint16(h, dbi.InvalidStreamIndex) // globals
	h = le.AppendUint16(h, 0)
	h = le.AppendUint16(h, dbi.InvalidStreamIndex) // publics hash
	h = le.AppendUint16(h, 0)
	h = le.AppendUint16(h, symRecordStream)
	h = le.AppendUint16(h, 0)
	h = append(h, make([]byte, 8*4)...)
	h = le.AppendUint16(h, 0)
	h = le.AppendUint16(h, machine)
	h = le.AppendUint32(h, 0)

	var recs []byte
	for _, p := range pubs {
		var flags symbols.PublicFlags
		if p.Code {
			flags |= 0x1
		}
		if p.Function {
			flags |= 0x2
		}
		recs = symbols.AppendPublic(recs, symbols.Public{
			Flags:   flags,
			Offset:  p.Offset,
			Segment: p.Section,
			Name:    p.Name,
		})
	}

	info := make([]byte, 28)
	le.PutUint32(info, 20000404)

	return msftest.Build(4096, [][]byte{nil, info, {}, h, nil, recs})
}
