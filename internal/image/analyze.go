package image

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/demangle"
	"github.com/skdltmxn/classsort/internal/logging"
	"github.com/skdltmxn/classsort/internal/snapshot"
	"github.com/skdltmxn/classsort/pdb"
)

// Defaults for Options fields left zero.
const (
	DefaultMaxSlots        = 1024
	DefaultCacheSize       = 4096
	DefaultMaxFunctionSize = 0x10000
)

// vftablePrefix starts every MSVC decorated vftable symbol.
const vftablePrefix = "??_7"

// Options configures an Analyzer.
type Options struct {
	// MaxSlots caps the slots read from one vftable.
	MaxSlots int

	// CacheSize is the number of demangled names kept between analyses.
	CacheSize int

	// MaxFunctionSize caps how many bytes of one function are disassembled.
	MaxFunctionSize int

	Logger zerolog.Logger
}

// Analyzer turns a PE image and its public symbols into a snapshot.
type Analyzer struct {
	opts  Options
	log   zerolog.Logger
	names *lru.Cache[string, string]
}

// New returns an Analyzer.
func New(opts Options) (*Analyzer, error) {
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = DefaultMaxSlots
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.MaxFunctionSize <= 0 {
		opts.MaxFunctionSize = DefaultMaxFunctionSize
	}
	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("image: demangle cache: %w", err)
	}
	return &Analyzer{
		opts:  opts,
		log:   logging.Component(opts.Logger, "image"),
		names: cache,
	}, nil
}

// symbol is a public placed in the image.
type symbol struct {
	va        uint64
	decorated string
	name      string
	code      bool
	section   *Section
}

// AnalyzeFiles opens the image and PDB at the given paths and analyzes them.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, imagePath, pdbPath string) (*snapshot.Snapshot, error) {
	img, err := Open(imagePath)
	if err != nil {
		return nil, err
	}
	f, err := pdb.Open(pdbPath)
	if err != nil {
		return nil, &FormatError{Path: pdbPath, Msg: "open PDB", Err: err}
	}
	defer logging.DeferClose(a.log, f, "close PDB")

	size, err := f.PointerSize()
	if err != nil {
		return nil, &FormatError{Path: pdbPath, Msg: "read DBI", Err: err}
	}
	if size != img.PointerSize {
		return nil, &FormatError{
			Path: pdbPath,
			Msg:  fmt.Sprintf("%d-bit symbols for a %d-bit image", size*8, img.PointerSize*8),
			Err:  ErrMachineMismatch,
		}
	}
	pubs, err := f.Publics()
	if err != nil {
		return nil, &FormatError{Path: pdbPath, Msg: "read publics", Err: err}
	}
	return a.Analyze(ctx, img, pubs)
}

// Analyze places pubs in img, reads every vftable's slots, names functions
// that only a slot reaches, and recovers code references by disassembly.
func (a *Analyzer) Analyze(ctx context.Context, img *Image, pubs []pdb.Public) (*snapshot.Snapshot, error) {
	syms := a.place(img, pubs)

	functions := make(map[uint64]string)
	for _, s := range syms {
		if s.code {
			if _, ok := functions[s.va]; !ok {
				functions[s.va] = s.name
			}
		}
	}
	bounds := boundaries(syms)

	var (
		dataVars     []snapshot.DataVar
		tables       = make(map[uint64]bool)
		placeholders int
	)
	for _, s := range syms {
		if s.code {
			continue
		}
		if !strings.HasPrefix(s.decorated, vftablePrefix) {
			dataVars = append(dataVars, a.plainVar(img, s, bounds))
			continue
		}
		dv := a.table(img, s, bounds)
		tables[s.va] = true
		for _, v := range dv.Values {
			if _, ok := functions[v]; !ok {
				functions[v] = fmt.Sprintf("sub_%X", v)
				placeholders++
			}
		}
		dataVars = append(dataVars, snapshot.FromHostDataVar(dv))
	}

	refs, err := a.references(ctx, img, functions, tables, bounds)
	if err != nil {
		return nil, err
	}

	snap := &snapshot.Snapshot{
		Version:     snapshot.Version,
		AddressSize: img.PointerSize,
		Analysis:    host.StateComplete.String(),
		DataVars:    dataVars,
		CodeRefs:    refs,
	}
	for _, va := range slices.Sorted(maps.Keys(functions)) {
		snap.Functions = append(snap.Functions, snapshot.Function{Address: snapshot.Addr(va), Name: functions[va]})
	}

	a.log.Info().
		Int("publics", len(pubs)).
		Int("functions", len(snap.Functions)).
		Int("tables", len(tables)).
		Int("placeholders", placeholders).
		Int("code_refs", len(refs)).
		Msg("image analyzed")
	return snap, nil
}

// place resolves each public to an address, dropping those outside the
// image, and returns them ordered by address then decorated name.
func (a *Analyzer) place(img *Image, pubs []pdb.Public) []symbol {
	syms := make([]symbol, 0, len(pubs))
	for _, p := range pubs {
		sec, ok := img.Section(p.Section)
		if !ok || uint64(p.Offset) >= uint64(len(sec.Data)) {
			a.log.Debug().Str("symbol", p.Name).Uint16("section", p.Section).Msg("public outside image")
			continue
		}
		syms = append(syms, symbol{
			va:        sec.VA + uint64(p.Offset),
			decorated: p.Name,
			name:      a.demangle(p.Name),
			code:      !strings.HasPrefix(p.Name, vftablePrefix) && (p.Function || p.Code || sec.Exec),
			section:   sec,
		})
	}
	slices.SortFunc(syms, func(x, y symbol) int {
		if c := cmp.Compare(x.va, y.va); c != 0 {
			return c
		}
		return cmp.Compare(x.decorated, y.decorated)
	})
	return syms
}

func (a *Analyzer) demangle(decorated string) string {
	if name, ok := a.names.Get(decorated); ok {
		return name
	}
	name, err := demangle.Demangle(decorated)
	if err != nil {
		a.log.Debug().Err(err).Str("symbol", decorated).Msg("keeping decorated name")
	}
	a.names.Add(decorated, name)
	return name
}

// boundaries returns the distinct symbol addresses in ascending order.
func boundaries(syms []symbol) []uint64 {
	out := make([]uint64, 0, len(syms))
	for _, s := range syms {
		if n := len(out); n == 0 || out[n-1] != s.va {
			out = append(out, s.va)
		}
	}
	return out
}

// nextBoundary returns the first boundary after va, or limit.
func nextBoundary(bounds []uint64, va, limit uint64) uint64 {
	i, found := slices.BinarySearch(bounds, va)
	if found {
		i++
	}
	if i < len(bounds) && bounds[i] < limit {
		return bounds[i]
	}
	return limit
}

// table reads a vftable's slots. Reading stops at the next symbol, at a
// value that does not point into code, at the section end, or at MaxSlots.
func (a *Analyzer) table(img *Image, s symbol, bounds []uint64) host.DataVar {
	ptr := uint64(img.PointerSize)
	end := nextBoundary(bounds, s.va, s.section.End())

	var values []uint64
	for va := s.va; va+ptr <= end && len(values) < a.opts.MaxSlots; va += ptr {
		v, ok := img.Pointer(va)
		if !ok || !img.IsCode(v) {
			break
		}
		values = append(values, v)
	}

	dv := host.DataVar{
		Name:    s.name,
		Address: s.va,
		Width:   uint64(len(values)) * ptr,
		Type: host.Type{
			Class:        host.TypeArray,
			Element:      "void*",
			ElementWidth: ptr,
			Count:        uint64(len(values)),
		},
		Values: values,
	}
	if len(values) == 0 {
		a.log.Debug().Str("table", s.name).Msg("no readable slots")
		dv.Values = nil
	}
	return dv
}

// plainVar records a data public as an untyped region up to the next symbol.
func (a *Analyzer) plainVar(img *Image, s symbol, bounds []uint64) snapshot.DataVar {
	end := nextBoundary(bounds, s.va, s.section.End())
	return snapshot.DataVar{
		Name:    s.name,
		Address: snapshot.Addr(s.va),
		Width:   end - s.va,
		Type:    snapshot.Type{Class: host.TypeOther.String()},
	}
}

// references disassembles every function and keeps the references that
// land on a table or a function entry.
func (a *Analyzer) references(ctx context.Context, img *Image, functions map[uint64]string, tables map[uint64]bool, bounds []uint64) ([]snapshot.CodeRef, error) {
	starts := slices.Sorted(maps.Keys(functions))
	all := slices.Sorted(slices.Values(slices.Concat(bounds, starts)))
	all = slices.Compact(all)
	mode := decodeMode(img.PointerSize)

	seen := make(map[snapshot.CodeRef]bool)
	var refs []snapshot.CodeRef
	for _, start := range starts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sec := img.SectionAt(start)
		if sec == nil || !sec.Exec {
			continue
		}
		end := nextBoundary(all, start, min(sec.End(), start+uint64(a.opts.MaxFunctionSize)))
		code := sec.Data[start-sec.VA : end-sec.VA]

		scanRefs(code, start, mode, func(target uint64) {
			if target == start {
				return
			}
			if _, fn := functions[target]; !fn && !tables[target] {
				return
			}
			ref := snapshot.CodeRef{Target: snapshot.Addr(target), From: snapshot.Addr(start)}
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		})
	}

	slices.SortFunc(refs, func(x, y snapshot.CodeRef) int {
		if c := cmp.Compare(x.Target, y.Target); c != 0 {
			return c
		}
		return cmp.Compare(x.From, y.From)
	})
	return refs, nil
}
