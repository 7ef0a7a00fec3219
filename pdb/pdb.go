package pdb

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/skdltmxn/classsort/internal/dbi"
	"github.com/skdltmxn/classsort/msf"
)

// File is an opened PDB. It is safe for concurrent reads.
type File struct {
	msf *msf.File

	mu     sync.RWMutex
	closed bool

	dbiOnce sync.Once
	dbi     *dbi.Header
	dbiErr  error
}

// Open opens the PDB at path.
func Open(path string) (*File, error) {
	m, err := msf.Open(path)
	if err != nil {
		return nil, wrapOpen(err)
	}
	return &File{msf: m}, nil
}

// OpenReader reads a PDB from r. The caller owns r.
func OpenReader(r io.ReaderAt, size int64) (*File, error) {
	m, err := msf.NewFile(r, size)
	if err != nil {
		return nil, wrapOpen(err)
	}
	return &File{msf: m}, nil
}

func wrapOpen(err error) error {
	if errors.Is(err, msf.ErrInvalidMagic) || errors.Is(err, msf.ErrTruncatedFile) {
		return fmt.Errorf("%w: %w", ErrNotPDB, err)
	}
	return fmt.Errorf("pdb: open: %w", err)
}

// Close releases the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.msf.Close()
}

func (f *File) readStream(i uint32) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrFileClosed
	}
	return f.msf.ReadStream(i)
}

// DBI returns the debug information header.
func (f *File) DBI() (*dbi.Header, error) {
	f.dbiOnce.Do(func() {
		data, err := f.readStream(msf.StreamDBI)
		if err != nil {
			f.dbiErr = fmt.Errorf("pdb: read DBI stream: %w", err)
			return
		}
		f.dbi, err = dbi.ParseHeader(data)
		if err != nil {
			f.dbiErr = &ParseError{Stream: "DBI", Message: "bad header", Err: err}
		}
	})
	return f.dbi, f.dbiErr
}

// PointerSize returns the target's pointer width from the DBI machine type.
func (f *File) PointerSize() (int, error) {
	h, err := f.DBI()
	if err != nil {
		return 0, err
	}
	return h.PointerSize(), nil
}
