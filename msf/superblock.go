// Package msf reads the MSF (Multi-Stream File) container that holds the
// streams of a PDB.
package msf

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/classsort/internal/stream"
)

// Magic opens every MSF 7.00 file.
const Magic = "Microsoft C/C++ MSF 7.00\r\n\x1a\x44\x53\x00\x00\x00"

// SuperBlockSize is the encoded size of the superblock at offset 0.
const SuperBlockSize = 56

const (
	minBlockSize = 512
	maxBlockSize = 65536
)

var (
	ErrInvalidMagic     = errors.New("msf: invalid magic signature, not a valid PDB file")
	ErrInvalidBlockSize = errors.New("msf: invalid block size")
	ErrInvalidFPMBlock  = errors.New("msf: invalid free block map block index")
	ErrTruncatedFile    = errors.New("msf: file is truncated")
)

// SuperBlock describes the block layout and where the stream directory lives.
type SuperBlock struct {
	BlockSize uint32

	// FreeBlockMapBlock is the active free page map, always 1 or 2.
	FreeBlockMapBlock uint32

	NumBlocks         uint32
	NumDirectoryBytes uint32

	// BlockMapAddr is the block holding the directory's block list.
	BlockMapAddr uint32
}

// ParseSuperBlock decodes and validates the first SuperBlockSize bytes.
func ParseSuperBlock(data []byte) (*SuperBlock, error) {
	if len(data) < SuperBlockSize {
		return nil, ErrTruncatedFile
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, ErrInvalidMagic
	}

	r := stream.NewReader(data[len(Magic):SuperBlockSize])
	sb := &SuperBlock{
		BlockSize:         r.U32(),
		FreeBlockMapBlock: r.U32(),
		NumBlocks:         r.U32(),
		NumDirectoryBytes: r.U32(),
	}
	r.Skip(4) // reserved
	sb.BlockMapAddr = r.U32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("msf: read superblock: %w", err)
	}

	if sb.BlockSize < minBlockSize || sb.BlockSize > maxBlockSize || sb.BlockSize&(sb.BlockSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, sb.BlockSize)
	}
	if sb.FreeBlockMapBlock != 1 && sb.FreeBlockMapBlock != 2 {
		return nil, ErrInvalidFPMBlock
	}
	return sb, nil
}

// blocksFor returns how many blocks n bytes occupy.
func (sb *SuperBlock) blocksFor(n uint32) uint32 {
	return uint32((uint64(n) + uint64(sb.BlockSize) - 1) / uint64(sb.BlockSize))
}

// fits reports whether n bytes fit in the blocks the file has.
func (sb *SuperBlock) fits(n uint32) bool {
	return int64(n) <= sb.FileSize()
}

// offset returns the file offset of block b.
func (sb *SuperBlock) offset(b uint32) int64 {
	return int64(b) * int64(sb.BlockSize)
}

// FileSize is the size NumBlocks promises.
func (sb *SuperBlock) FileSize() int64 {
	return sb.offset(sb.NumBlocks)
}
