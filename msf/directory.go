package msf

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/classsort/internal/stream"
)

// NilStreamSize marks a deleted stream.
const NilStreamSize = 0xFFFFFFFF

// Fixed stream indices.
const (
	StreamPDBInfo = 1
	StreamTPI     = 2
	StreamDBI     = 3
	StreamIPI     = 4
)

var (
	ErrTruncatedDirectory = errors.New("msf: truncated stream directory")
	ErrInvalidStreamIndex = errors.New("msf: invalid stream index")
	ErrInvalidBlockIndex  = errors.New("msf: invalid block index")
	ErrNilStream          = errors.New("msf: stream is nil")
	ErrStreamTooLarge     = errors.New("msf: stream larger than file")
)

// directory lists every stream's size and blocks.
type directory struct {
	sizes  []uint32
	blocks [][]uint32
}

// parseDirectory decodes the concatenated directory blocks: a stream count,
// one size per stream, then each stream's block list in order.
func parseDirectory(data []byte, sb *SuperBlock) (*directory, error) {
	r := stream.NewReader(data)
	n := r.U32()
	if r.Err() != nil || uint64(n)*4 > uint64(r.Remaining()) {
		return nil, ErrTruncatedDirectory
	}

	dir := &directory{
		sizes:  make([]uint32, n),
		blocks: make([][]uint32, n),
	}
	for i := range dir.sizes {
		dir.sizes[i] = r.U32()
	}
	for i, size := range dir.sizes {
		if size == NilStreamSize || size == 0 {
			continue
		}
		if !sb.fits(size) {
			return nil, fmt.Errorf("%w: stream %d size %d", ErrStreamTooLarge, i, size)
		}
		count := sb.blocksFor(size)
		if uint64(count)*4 > uint64(r.Remaining()) {
			return nil, ErrTruncatedDirectory
		}
		list := make([]uint32, count)
		for j := range list {
			b := r.U32()
			if b >= sb.NumBlocks {
				return nil, fmt.Errorf("%w: stream %d block %d", ErrInvalidBlockIndex, i, b)
			}
			list[j] = b
		}
		dir.blocks[i] = list
	}
	return dir, r.Err()
}

// readDirectory follows BlockMapAddr to the directory's blocks and parses them.
func (f *File) readDirectory() (*directory, error) {
	sb := f.sb
	if !sb.fits(sb.NumDirectoryBytes) {
		return nil, fmt.Errorf("%w: directory size %d", ErrStreamTooLarge, sb.NumDirectoryBytes)
	}
	if sb.BlockMapAddr >= sb.NumBlocks {
		return nil, fmt.Errorf("%w: block map %d", ErrInvalidBlockIndex, sb.BlockMapAddr)
	}
	count := sb.blocksFor(sb.NumDirectoryBytes)

	blockMap := make([]byte, count*4)
	if _, err := f.r.ReadAt(blockMap, sb.offset(sb.BlockMapAddr)); err != nil {
		return nil, fmt.Errorf("msf: read block map: %w", err)
	}

	r := stream.NewReader(blockMap)
	blocks := make([]uint32, count)
	for i := range blocks {
		b := r.U32()
		if b >= sb.NumBlocks {
			return nil, fmt.Errorf("%w: directory block %d", ErrInvalidBlockIndex, b)
		}
		blocks[i] = b
	}

	data, err := f.readBlocks(blocks, sb.NumDirectoryBytes)
	if err != nil {
		return nil, fmt.Errorf("msf: read directory: %w", err)
	}
	return parseDirectory(data, sb)
}
