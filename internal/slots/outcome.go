package slots

import "fmt"

// Kind classifies what happened to one item of a table.
type Kind uint8

const (
	// Renamed: the function received a new ordinal prefix.
	Renamed Kind = iota
	// Unchanged: the function already carried equal or greater authority.
	Unchanged
	// Placeholder: the function has a host default name and was only grouped.
	Placeholder
	// Constructor: a constructor was grouped with the class.
	Constructor
	// Thunk: a thunk of a constructor was grouped with the class.
	Thunk
	// Skipped: the slot did not resolve to a function.
	Skipped
	// Failed: grouping or renaming failed for this item.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Renamed:
		return "renamed"
	case Unchanged:
		return "unchanged"
	case Placeholder:
		return "placeholder"
	case Constructor:
		return "constructor"
	case Thunk:
		return "thunk"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Outcome is the result of processing one slot or association.
type Outcome struct {
	Kind Kind

	// Slot is the table index, or -1 for constructor and thunk outcomes.
	Slot int

	Address uint64
	Name    string // name before processing
	NewName string // set for Renamed

	Reason string
	Err    error
}

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("%s slot=%d addr=0x%x name=%q: %v", o.Kind, o.Slot, o.Address, o.Name, o.Err)
	case o.Reason != "":
		return fmt.Sprintf("%s slot=%d addr=0x%x: %s", o.Kind, o.Slot, o.Address, o.Reason)
	default:
		return fmt.Sprintf("%s slot=%d addr=0x%x name=%q", o.Kind, o.Slot, o.Address, o.Name)
	}
}
