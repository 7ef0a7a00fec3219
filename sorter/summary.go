package sorter

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skdltmxn/classsort/internal/slots"
)

// Summary is the result of one run.
type Summary struct {
	RunID uuid.UUID

	// Skipped is set when the host analysis was not complete and nothing
	// was touched.
	Skipped bool
	// DryRun is set when the run was rolled back on purpose.
	DryRun bool

	Started  time.Time
	Finished time.Time

	// Symbols is the number of data variables examined, Tables the number
	// recognized as vftables and Groups the size of the rebuilt tree
	// including the root.
	Symbols int
	Tables  int
	Groups  int

	Counts   map[slots.Kind]int
	Failures []slots.Outcome
}

func newSummary() *Summary {
	return &Summary{
		RunID:   uuid.New(),
		Started: time.Now(),
		Counts:  map[slots.Kind]int{},
	}
}

func (s *Summary) add(o slots.Outcome) {
	s.Counts[o.Kind]++
	if o.Kind == slots.Failed {
		s.Failures = append(s.Failures, o)
	}
}

// Count returns how many outcomes of kind k the run produced.
func (s *Summary) Count(k slots.Kind) int { return s.Counts[k] }

// Applied reports whether the run's changes were committed.
func (s *Summary) Applied() bool { return !s.Skipped && !s.DryRun }

func (s *Summary) MarshalZerologObject(e *zerolog.Event) {
	e.Int("symbols", s.Symbols).
		Int("tables", s.Tables).
		Int("groups", s.Groups).
		Int("renamed", s.Count(slots.Renamed)).
		Int("unchanged", s.Count(slots.Unchanged)).
		Int("placeholder", s.Count(slots.Placeholder)).
		Int("constructors", s.Count(slots.Constructor)).
		Int("thunks", s.Count(slots.Thunk)).
		Int("skipped", s.Count(slots.Skipped)).
		Int("failed", s.Count(slots.Failed))
}
