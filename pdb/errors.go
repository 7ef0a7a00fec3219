// Package pdb reads the public symbols of a Microsoft PDB file.
package pdb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPDB indicates the file is not a valid PDB.
	ErrNotPDB = errors.New("pdb: not a valid PDB file")

	// ErrNoPublics indicates the PDB carries no symbol record stream.
	ErrNoPublics = errors.New("pdb: no public symbols")

	// ErrFileClosed indicates the PDB file has been closed.
	ErrFileClosed = errors.New("pdb: file is closed")
)

// ParseError locates a failure inside a stream.
type ParseError struct {
	Stream  string
	Offset  int64
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pdb: parse error in %s at offset 0x%x: %s: %v", e.Stream, e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("pdb: parse error in %s at offset 0x%x: %s", e.Stream, e.Offset, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }
