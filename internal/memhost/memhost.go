// Package memhost is an in-memory host.Program. A transaction works on a
// private copy of the names and groups and publishes it on Commit.
package memhost

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/skdltmxn/classsort/host"
)

// ErrTxBusy indicates another transaction is still open.
var ErrTxBusy = errors.New("memhost: another transaction is open")

type group struct {
	id        host.GroupID
	parent    host.GroupID
	name      string
	functions []uint64
	dataVars  []uint64
}

func (g *group) clone() *group {
	c := *g
	c.functions = slices.Clone(g.functions)
	c.dataVars = slices.Clone(g.dataVars)
	return &c
}

// state is everything a transaction may change.
type state struct {
	names  map[uint64]string
	groups map[host.GroupID]*group
	nextID host.GroupID
}

func (s *state) clone() *state {
	c := &state{
		names:  maps.Clone(s.names),
		groups: make(map[host.GroupID]*group, len(s.groups)),
		nextID: s.nextID,
	}
	for id, g := range s.groups {
		c.groups[id] = g.clone()
	}
	return c
}

// Program is an in-memory program.
type Program struct {
	mu          sync.Mutex
	addressSize int
	analysis    host.AnalysisState
	dataVars    []host.DataVar
	refs        map[uint64][]uint64
	cur         *state
	open        bool
}

// New returns an empty program with the given pointer width.
func New(addressSize int) *Program {
	return &Program{
		addressSize: addressSize,
		refs:        map[uint64][]uint64{},
		cur: &state{
			names:  map[uint64]string{},
			groups: map[host.GroupID]*group{},
			nextID: 1,
		},
	}
}

// SetAnalysisState sets the state reported to the sorter.
func (p *Program) SetAnalysisState(s host.AnalysisState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analysis = s
}

// AddDataVar registers a data variable. Values are copied.
func (p *Program) AddDataVar(dv host.DataVar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dv.Values != nil {
		dv.Values = slices.Clone(dv.Values)
	}
	p.dataVars = append(p.dataVars, dv)
}

// AddFunction registers a function or replaces its name.
func (p *Program) AddFunction(start uint64, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.names[start] = name
}

// AddCodeRef records that the function starting at from references target.
func (p *Program) AddCodeRef(target, from uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.refs[target], from) {
		p.refs[target] = append(p.refs[target], from)
	}
}

// FunctionName returns the committed name of the function at start.
func (p *Program) FunctionName(start uint64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.cur.names[start]
	return n, ok
}

// Functions returns all committed functions sorted by address.
func (p *Program) Functions() []host.Function {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]host.Function, 0, len(p.cur.names))
	for start, name := range p.cur.names {
		out = append(out, host.Function{Start: start, Name: name})
	}
	slices.SortFunc(out, func(a, b host.Function) int { return cmp.Compare(a.Start, b.Start) })
	return out
}

// AnalysisState returns the state set with SetAnalysisState.
func (p *Program) AnalysisState(context.Context) (host.AnalysisState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analysis, nil
}

// Begin opens a transaction on a copy of the names and groups.
func (p *Program) Begin(context.Context) (host.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return nil, ErrTxBusy
	}
	p.open = true
	return &Tx{p: p, st: p.cur.clone()}, nil
}

func (p *Program) finish(st *state) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st != nil {
		p.cur = st
	}
	p.open = false
}

// Tx is a memhost transaction.
type Tx struct {
	p    *Program
	st   *state
	done bool
}

var _ host.Tx = (*Tx)(nil)

func (t *Tx) check() error {
	if t.done {
		return host.ErrTxDone
	}
	return nil
}

// AddressSize returns the program's pointer width.
func (t *Tx) AddressSize() int { return t.p.addressSize }

// DataVars returns every data variable sorted by address.
func (t *Tx) DataVars(context.Context) ([]host.DataVar, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return slices.Clone(t.p.dataVars), nil
}

// FunctionAt returns the function starting at addr.
func (t *Tx) FunctionAt(_ context.Context, addr uint64) (host.Function, bool, error) {
	if err := t.check(); err != nil {
		return host.Function{}, false, err
	}
	name, ok := t.st.names[addr]
	if !ok {
		return host.Function{}, false, nil
	}
	return host.Function{Start: addr, Name: name}, true, nil
}

// CodeRefs returns the functions that reference addr.
func (t *Tx) CodeRefs(_ context.Context, addr uint64) ([]host.Function, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	t.p.mu.Lock()
	froms := slices.Clone(t.p.refs[addr])
	t.p.mu.Unlock()

	out := make([]host.Function, 0, len(froms))
	for _, from := range froms {
		if name, ok := t.st.names[from]; ok {
			out = append(out, host.Function{Start: from, Name: name})
		}
	}
	return out, nil
}

// RemoveGroup deletes a top-level group and its subtree.
func (t *Tx) RemoveGroup(_ context.Context, name string) error {
	if err := t.check(); err != nil {
		return err
	}
	for id, g := range t.st.groups {
		if g.parent == host.NoGroup && g.name == name {
			t.removeTree(id)
		}
	}
	return nil
}

func (t *Tx) removeTree(id host.GroupID) {
	for cid, g := range t.st.groups {
		if g.parent == id {
			t.removeTree(cid)
		}
	}
	delete(t.st.groups, id)
}

// CreateGroup adds a group under parent.
func (t *Tx) CreateGroup(_ context.Context, name string, parent host.GroupID) (host.GroupID, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	if name == "" {
		return 0, host.ErrEmptyName
	}
	if parent != host.NoGroup {
		if _, ok := t.st.groups[parent]; !ok {
			return 0, fmt.Errorf("%w: %d", host.ErrGroupNotFound, parent)
		}
	}
	id := t.st.nextID
	t.st.nextID++
	t.st.groups[id] = &group{id: id, parent: parent, name: name}
	return id, nil
}

// AddDataVar adds a data variable to a group.
func (t *Tx) AddDataVar(_ context.Context, gid host.GroupID, addr uint64) error {
	if err := t.check(); err != nil {
		return err
	}
	g, ok := t.st.groups[gid]
	if !ok {
		return fmt.Errorf("%w: %d", host.ErrGroupNotFound, gid)
	}
	if !slices.Contains(g.dataVars, addr) {
		g.dataVars = append(g.dataVars, addr)
	}
	return nil
}

// AddFunction adds a function to a group.
func (t *Tx) AddFunction(_ context.Context, gid host.GroupID, addr uint64) error {
	if err := t.check(); err != nil {
		return err
	}
	g, ok := t.st.groups[gid]
	if !ok {
		return fmt.Errorf("%w: %d", host.ErrGroupNotFound, gid)
	}
	if _, ok := t.st.names[addr]; !ok {
		return fmt.Errorf("%w: 0x%x", host.ErrFunctionNotFound, addr)
	}
	if !slices.Contains(g.functions, addr) {
		g.functions = append(g.functions, addr)
	}
	return nil
}

// Rename renames a function in the staged copy.
func (t *Tx) Rename(_ context.Context, addr uint64, name string) error {
	if err := t.check(); err != nil {
		return err
	}
	if name == "" {
		return host.ErrEmptyName
	}
	if _, ok := t.st.names[addr]; !ok {
		return fmt.Errorf("%w: 0x%x", host.ErrFunctionNotFound, addr)
	}
	t.st.names[addr] = name
	return nil
}

// Commit swaps the staged copy in.
func (t *Tx) Commit() error {
	if err := t.check(); err != nil {
		return err
	}
	t.done = true
	t.p.finish(t.st)
	return nil
}

// Rollback drops the staged copy.
func (t *Tx) Rollback() error {
	if err := t.check(); err != nil {
		return err
	}
	t.done = true
	t.p.finish(nil)
	return nil
}
