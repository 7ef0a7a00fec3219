// Package sorter rebuilds the class tree of a program and labels virtual
// functions with their slot ordinals, all inside one edit scope.
package sorter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/config"
	"github.com/skdltmxn/classsort/internal/hierarchy"
	"github.com/skdltmxn/classsort/internal/logging"
	"github.com/skdltmxn/classsort/internal/ordinal"
	"github.com/skdltmxn/classsort/internal/qualname"
	"github.com/skdltmxn/classsort/internal/slots"
)

// DefaultRootGroup is the top-level group rebuilt by every run.
const DefaultRootGroup = "Classes"

// ErrNotApplied wraps a failure to commit; none of the run's changes are
// in effect.
var ErrNotApplied = errors.New("sorter: run not applied")

// Options configures a Sorter. Zero fields select the defaults.
type Options struct {
	RootGroup string
	Parser    *qualname.Parser
	Logger    zerolog.Logger

	// Slots configures slot resolution. Its Logger is replaced by Logger.
	Slots slots.Options

	// DryRun rolls the edit scope back instead of committing it.
	DryRun bool
}

// Sorter rebuilds the class tree of a program and labels vftable slots.
type Sorter struct {
	root     string
	parser   *qualname.Parser
	resolver *slots.Resolver
	log      zerolog.Logger
	dryRun   bool
}

// New returns a Sorter.
func New(opts Options) *Sorter {
	s := &Sorter{
		root:   opts.RootGroup,
		parser: opts.Parser,
		log:    opts.Logger,
		dryRun: opts.DryRun,
	}
	if s.root == "" {
		s.root = DefaultRootGroup
	}
	if s.parser == nil {
		s.parser = qualname.New("", nil)
	}
	opts.Slots.Logger = s.log
	s.resolver = slots.New(opts.Slots)
	return s
}

// FromConfig builds a Sorter from a validated configuration.
func FromConfig(cfg *config.Config, logger zerolog.Logger, dryRun bool) (*Sorter, error) {
	alphabet, err := cfg.Alphabet()
	if err != nil {
		return nil, err
	}
	enc, err := ordinal.New(alphabet)
	if err != nil {
		return nil, err
	}
	placeholder, err := cfg.Placeholder()
	if err != nil {
		return nil, err
	}

	return New(Options{
		RootGroup: cfg.RootGroup,
		Parser:    qualname.New(cfg.Names.Separator, cfg.Names.Discriminators),
		Slots: slots.Options{
			Encoder:            enc,
			Placeholder:        placeholder,
			ConstructorMarkers: cfg.Names.ConstructorMarkers,
			ThunkMarkers:       cfg.Names.ThunkMarkers,
		},
		Logger: logger,
		DryRun: dryRun,
	}), nil
}

// Run performs one full pass over p. An incomplete analysis is not an
// error: the returned summary has Skipped set and p is untouched. Any host
// failure while rebuilding the tree, cancellation of ctx, or a failed
// commit rolls everything back and returns an error.
func (s *Sorter) Run(ctx context.Context, p host.Program) (*Summary, error) {
	sum := newSummary()
	log := s.log.With().Str("run", sum.RunID.String()).Logger()

	state, err := p.AnalysisState(ctx)
	if err != nil {
		return nil, fmt.Errorf("sorter: analysis state: %w", err)
	}
	if state != host.StateComplete {
		log.Warn().Stringer("state", state).Msg("analysis is not complete, wait for it to finish")
		sum.Skipped = true
		sum.Finished = time.Now()
		return sum, nil
	}

	tx, err := p.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("sorter: begin: %w", err)
	}
	defer logging.DeferRollback(log, tx)

	if err := s.rebuild(ctx, tx, sum); err != nil {
		return nil, err
	}

	if s.dryRun {
		if err := tx.Rollback(); err != nil {
			return nil, fmt.Errorf("sorter: rollback: %w", err)
		}
		sum.DryRun = true
	} else if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotApplied, err)
	}

	sum.Finished = time.Now()
	log.Info().
		EmbedObject(sum).
		Bool("dry_run", sum.DryRun).
		Dur("took", sum.Finished.Sub(sum.Started)).
		Msg("sorting finished")
	return sum, nil
}

func (s *Sorter) rebuild(ctx context.Context, tx host.Tx, sum *Summary) error {
	if err := tx.RemoveGroup(ctx, s.root); err != nil {
		return fmt.Errorf("sorter: remove %q: %w", s.root, err)
	}
	rootID, err := tx.CreateGroup(ctx, s.root, host.NoGroup)
	if err != nil {
		return fmt.Errorf("sorter: create %q: %w", s.root, err)
	}
	tree := hierarchy.New(tx, s.root, rootID)

	vars, err := tx.DataVars(ctx)
	if err != nil {
		return fmt.Errorf("sorter: data vars: %w", err)
	}

	for _, dv := range vars {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Symbols++

		name, ok := s.parser.Parse(dv.Name, dv.Width)
		if !ok {
			continue
		}
		sum.Tables++

		node, err := tree.EnsurePath(ctx, name.Segments())
		if err != nil {
			return fmt.Errorf("sorter: %w", err)
		}
		if err := tx.AddDataVar(ctx, node.ID, dv.Address); err != nil {
			return fmt.Errorf("sorter: group %s: %w", dv.Name, err)
		}

		for _, o := range s.resolver.Resolve(ctx, tx, slots.Table{Var: dv, Name: name, Group: node.ID}) {
			sum.add(o)
		}
	}

	sum.Groups = tree.Len()
	return nil
}
