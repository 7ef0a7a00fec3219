package host

import (
	"context"
	"strings"
)

// AnalysisState reports how far the host's analysis has progressed.
type AnalysisState uint8

const (
	StateIdle AnalysisState = iota
	StateAnalyzing
	StateComplete
)

func (s AnalysisState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ParseAnalysisState is the inverse of AnalysisState.String.
// Unknown strings map to StateIdle.
func ParseAnalysisState(s string) AnalysisState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "analyzing":
		return StateAnalyzing
	case "complete":
		return StateComplete
	default:
		return StateIdle
	}
}

// TypeClass identifies the shape of a data variable's declared type.
type TypeClass uint8

const (
	TypeOther TypeClass = iota
	TypePointer
	TypeArray
)

func (c TypeClass) String() string {
	switch c {
	case TypePointer:
		return "pointer"
	case TypeArray:
		return "array"
	default:
		return "other"
	}
}

// ParseTypeClass is the inverse of TypeClass.String.
func ParseTypeClass(s string) TypeClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pointer":
		return TypePointer
	case "array":
		return TypeArray
	default:
		return TypeOther
	}
}

// Type is the declared type of a data variable.
type Type struct {
	Class        TypeClass
	Element      string // element type spelling, e.g. "void*"
	ElementWidth uint64 // element width in bytes
	Count        uint64 // element count for arrays
}

// IsPointerArray reports whether the type is an array of pointer-sized
// elements for a program with the given address size.
func (t Type) IsPointerArray(addressSize int) bool {
	if t.Class != TypeArray {
		return false
	}
	if strings.Contains(t.Element, "void*") || strings.HasSuffix(strings.TrimSpace(t.Element), "*") {
		return true
	}
	return addressSize > 0 && t.ElementWidth == uint64(addressSize) && t.Element == ""
}

// DataVar is a named memory region.
type DataVar struct {
	Name    string
	Address uint64
	Width   uint64 // declared width in bytes
	Type    Type

	// Values holds the resolved pointer values of an array variable.
	// Nil means the value could not be read.
	Values []uint64
}

// Function is a function entry point and its current display name.
type Function struct {
	Start uint64
	Name  string
}

// GroupID identifies a group in the host's grouping tree. The zero value
// means "no parent" (a top-level group).
type GroupID int64

// NoGroup is the parent of top-level groups.
const NoGroup GroupID = 0

// Program is the entry point into a host.
type Program interface {
	// AnalysisState reports whether the host finished analysis.
	AnalysisState(ctx context.Context) (AnalysisState, error)

	// Begin opens an edit scope. All changes made through the returned
	// Tx become visible together on Commit, or not at all.
	Begin(ctx context.Context) (Tx, error)
}

// View is the read side of a host.
type View interface {
	// AddressSize returns the platform pointer width in bytes.
	AddressSize() int

	// DataVars returns every named memory region.
	DataVars(ctx context.Context) ([]DataVar, error)

	// FunctionAt returns the function starting at addr.
	FunctionAt(ctx context.Context, addr uint64) (Function, bool, error)

	// CodeRefs returns the functions whose code references addr.
	CodeRefs(ctx context.Context, addr uint64) ([]Function, error)
}

// Tx is an edit scope. Reads through a Tx observe its own writes.
// Group membership is a set: adding the same member twice is a no-op.
type Tx interface {
	View

	// RemoveGroup deletes the top-level group with the given name and
	// everything below it. Removing a missing group is not an error.
	RemoveGroup(ctx context.Context, name string) error

	// CreateGroup creates a group under parent (NoGroup for top level).
	CreateGroup(ctx context.Context, name string, parent GroupID) (GroupID, error)

	AddDataVar(ctx context.Context, group GroupID, addr uint64) error
	AddFunction(ctx context.Context, group GroupID, addr uint64) error

	// Rename sets the display name of the function starting at addr.
	Rename(ctx context.Context, addr uint64, name string) error

	Commit() error
	Rollback() error
}
