package image

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedMachine = errors.New("image: unsupported machine")
	ErrMachineMismatch    = errors.New("image: PDB does not match image machine")
	ErrNoSections         = errors.New("image: no sections")
)

// FormatError reports an input file that could not be interpreted.
type FormatError struct {
	Path string
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image: %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("image: %s: %s", e.Path, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }
