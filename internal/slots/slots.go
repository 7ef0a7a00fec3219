// Package slots resolves the slots of one vftable to functions, groups them
// with their class and labels eligible functions with their slot ordinal.
package slots

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/ordinal"
	"github.com/skdltmxn/classsort/internal/qualname"
)

// ClassPlaceholder in a marker is replaced by the class name.
const ClassPlaceholder = "{class}"

// Default association markers and placeholder name pattern.
var (
	DefaultConstructorMarkers = []string{"::Constructor", "{class}::{class}"}
	DefaultThunkMarkers       = []string{"::Thunk", "[thunk]:"}
	DefaultPlaceholder        = regexp.MustCompile(`^sub_[0-9A-Fa-f]+$`)
)

// Options configures a Resolver. Zero fields select the defaults.
type Options struct {
	Encoder            *ordinal.Encoder
	Placeholder        *regexp.Regexp
	ConstructorMarkers []string
	ThunkMarkers       []string
	Logger             zerolog.Logger
}

// Table is one vftable ready for slot processing.
type Table struct {
	Var   host.DataVar
	Name  qualname.Name
	Group host.GroupID
}

// Resolver processes tables.
type Resolver struct {
	enc          *ordinal.Encoder
	placeholder  *regexp.Regexp
	ctorMarkers  []string
	thunkMarkers []string
	log          zerolog.Logger
}

// New returns a Resolver.
func New(opts Options) *Resolver {
	r := &Resolver{
		enc:          opts.Encoder,
		placeholder:  opts.Placeholder,
		ctorMarkers:  opts.ConstructorMarkers,
		thunkMarkers: opts.ThunkMarkers,
		log:          opts.Logger,
	}
	if r.enc == nil {
		r.enc = ordinal.Default()
	}
	if r.placeholder == nil {
		r.placeholder = DefaultPlaceholder
	}
	if r.ctorMarkers == nil {
		r.ctorMarkers = DefaultConstructorMarkers
	}
	if r.thunkMarkers == nil {
		r.thunkMarkers = DefaultThunkMarkers
	}
	return r
}

// IsPlaceholder reports whether name is a host default name. Such
// functions are grouped but never labelled.
func (r *Resolver) IsPlaceholder(name string) bool {
	return r.placeholder.MatchString(r.enc.Strip(name))
}

// Resolve processes the constructors, thunks and slots of t. It never
// stops early: every failure is reported as an Outcome and processing
// continues with the next item.
func (r *Resolver) Resolve(ctx context.Context, tx host.Tx, t Table) []Outcome {
	if !t.Var.Type.IsPointerArray(tx.AddressSize()) {
		return nil
	}

	var out []Outcome
	out = append(out, r.associate(ctx, tx, t)...)

	entries := len(t.Var.Values)
	for i, target := range t.Var.Values {
		out = append(out, r.slot(ctx, tx, t, i, entries, target))
	}
	return out
}

// associate groups the constructors that reference the table and the
// thunks that reference those constructors.
func (r *Resolver) associate(ctx context.Context, tx host.Tx, t Table) []Outcome {
	refs, err := tx.CodeRefs(ctx, t.Var.Address)
	if err != nil {
		return []Outcome{{Kind: Skipped, Slot: -1, Address: t.Var.Address, Reason: "code references unavailable", Err: err}}
	}

	var out []Outcome
	for _, ctor := range refs {
		if !r.matches(ctor.Name, t.Name.Class, r.ctorMarkers) {
			continue
		}
		out = append(out, r.group(ctx, tx, t.Group, ctor, Constructor))

		callers, err := tx.CodeRefs(ctx, ctor.Start)
		if err != nil {
			out = append(out, Outcome{Kind: Skipped, Slot: -1, Address: ctor.Start, Name: ctor.Name, Reason: "code references unavailable", Err: err})
			continue
		}
		for _, thunk := range callers {
			if r.matches(thunk.Name, t.Name.Class, r.thunkMarkers) {
				out = append(out, r.group(ctx, tx, t.Group, thunk, Thunk))
			}
		}
	}
	return out
}

func (r *Resolver) group(ctx context.Context, tx host.Tx, g host.GroupID, fn host.Function, kind Kind) Outcome {
	o := Outcome{Kind: kind, Slot: -1, Address: fn.Start, Name: fn.Name}
	if err := tx.AddFunction(ctx, g, fn.Start); err != nil {
		o.Kind = Failed
		o.Err = fmt.Errorf("group %s: %w", kind, err)
	}
	return o
}

func (r *Resolver) slot(ctx context.Context, tx host.Tx, t Table, i, entries int, target uint64) Outcome {
	o := Outcome{Slot: i, Address: target}

	fn, ok, err := tx.FunctionAt(ctx, target)
	switch {
	case err != nil:
		o.Kind = Skipped
		o.Reason = "function lookup failed"
		o.Err = err
		return o
	case !ok:
		o.Kind = Skipped
		o.Reason = "unresolved"
		return o
	}
	o.Name = fn.Name

	if err := tx.AddFunction(ctx, t.Group, fn.Start); err != nil {
		o.Kind = Failed
		o.Err = fmt.Errorf("group function: %w", err)
		r.log.Warn().Err(err).Str("function", fn.Name).Uint64("address", fn.Start).Msg("failed to group")
		return o
	}

	if r.IsPlaceholder(fn.Name) {
		o.Kind = Placeholder
		return o
	}

	name, changed := r.enc.Encode(fn.Name, i, entries)
	if !changed {
		o.Kind = Unchanged
		return o
	}
	if err := tx.Rename(ctx, fn.Start, name); err != nil {
		o.Kind = Failed
		o.Err = fmt.Errorf("rename: %w", err)
		r.log.Warn().Err(err).Str("function", fn.Name).Uint64("address", fn.Start).Msg("failed to sort")
		return o
	}

	o.Kind = Renamed
	o.NewName = name
	return o
}

func (r *Resolver) matches(name, class string, markers []string) bool {
	if class == "" || !strings.Contains(name, class) {
		return false
	}
	for _, m := range markers {
		if containsWord(name, strings.ReplaceAll(m, ClassPlaceholder, class)) {
			return true
		}
	}
	return false
}

// containsWord reports whether marker occurs in name without running into
// a longer identifier, so "Engine::Engine" does not match "Engine::EngineReset".
func containsWord(name, marker string) bool {
	if marker == "" {
		return false
	}
	open := isIdentByte(marker[len(marker)-1])
	for i := 0; i <= len(name)-len(marker); {
		j := strings.Index(name[i:], marker)
		if j < 0 {
			return false
		}
		end := i + j + len(marker)
		if !open || end == len(name) || !isIdentByte(name[end]) {
			return true
		}
		i += j + 1
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
