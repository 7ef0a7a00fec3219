// Package dbi reads the header of the DBI (debug information) stream.
package dbi

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/classsort/internal/stream"
)

// HeaderSize is the encoded size of Header.
const HeaderSize = 64

// InvalidStreamIndex marks an absent stream reference.
const InvalidStreamIndex uint16 = 0xFFFF

// Machine types recorded by the linker.
const (
	MachineI386  uint16 = 0x014c
	MachineAMD64 uint16 = 0x8664
)

var (
	ErrInvalidHeader   = errors.New("dbi: invalid DBI header")
	ErrTruncatedStream = errors.New("dbi: truncated stream")
)

// Header holds the stream references and build facts the importer needs.
// Substream sizes are not kept.
type Header struct {
	VersionHeader uint32
	Age           uint32

	GlobalStreamIndex    uint16
	PublicStreamIndex    uint16
	SymRecordStreamIndex uint16

	Flags   uint16
	Machine uint16
}

// ParseHeader decodes the fixed header at the start of the DBI stream.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncatedStream
	}

	r := stream.NewReader(data[:HeaderSize])
	if sig := r.I32(); sig != -1 {
		return nil, fmt.Errorf("%w: signature %d", ErrInvalidHeader, sig)
	}

	h := &Header{}
	h.VersionHeader = r.U32()
	h.Age = r.U32()
	h.GlobalStreamIndex = r.U16()
	r.Skip(2) // build number
	h.PublicStreamIndex = r.U16()
	r.Skip(2) // mspdb dll version
	h.SymRecordStreamIndex = r.U16()
	r.Skip(2 + 4*8) // dll rebuild, eight substream sizes
	h.Flags = r.U16()
	h.Machine = r.U16()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("dbi: %w", err)
	}
	return h, nil
}

// PointerSize returns 8 for x64 builds and 4 otherwise.
func (h *Header) PointerSize() int {
	if h.Machine == MachineAMD64 {
		return 8
	}
	return 4
}

// IsStripped reports whether private symbols were removed.
func (h *Header) IsStripped() bool {
	return h.Flags&0x02 != 0
}
