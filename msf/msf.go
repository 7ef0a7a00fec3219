package msf

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// File is an opened MSF container. It is safe for concurrent reads.
type File struct {
	r      io.ReaderAt
	closer io.Closer
	sb     *SuperBlock

	dirOnce sync.Once
	dir     *directory
	dirErr  error
}

// Open opens the MSF file at path.
func Open(path string) (*File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("msf: open: %w", err)
	}
	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("msf: stat: %w", err)
	}

	f, err := NewFile(fd, st.Size())
	if err != nil {
		fd.Close()
		return nil, err
	}
	f.closer = fd
	return f, nil
}

// NewFile reads an MSF container from r. The caller owns r.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	if size < SuperBlockSize {
		return nil, ErrTruncatedFile
	}
	head := make([]byte, SuperBlockSize)
	if _, err := r.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("msf: read superblock: %w", err)
	}
	sb, err := ParseSuperBlock(head)
	if err != nil {
		return nil, err
	}
	if size < sb.FileSize() {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrTruncatedFile, size, sb.FileSize())
	}
	return &File{r: r, sb: sb}, nil
}

// Close closes the file if Open created it.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// SuperBlock returns the parsed superblock.
func (f *File) SuperBlock() *SuperBlock { return f.sb }

func (f *File) directory() (*directory, error) {
	f.dirOnce.Do(func() {
		f.dir, f.dirErr = f.readDirectory()
	})
	return f.dir, f.dirErr
}

// NumStreams returns the number of directory entries.
func (f *File) NumStreams() (int, error) {
	dir, err := f.directory()
	if err != nil {
		return 0, err
	}
	return len(dir.sizes), nil
}

// ReadStream returns the full contents of stream i.
func (f *File) ReadStream(i uint32) ([]byte, error) {
	dir, err := f.directory()
	if err != nil {
		return nil, err
	}
	if int(i) >= len(dir.sizes) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStreamIndex, i)
	}
	size := dir.sizes[i]
	if size == NilStreamSize {
		return nil, fmt.Errorf("%w: %d", ErrNilStream, i)
	}
	data, err := f.readBlocks(dir.blocks[i], size)
	if err != nil {
		return nil, fmt.Errorf("msf: read stream %d: %w", i, err)
	}
	return data, nil
}

// readBlocks concatenates blocks, truncated to size bytes.
func (f *File) readBlocks(blocks []uint32, size uint32) ([]byte, error) {
	out := make([]byte, size)
	bs := f.sb.BlockSize
	for i, b := range blocks {
		start := uint32(i) * bs
		if start >= size {
			break
		}
		end := min(start+bs, size)
		if _, err := f.r.ReadAt(out[start:end], f.sb.offset(b)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
