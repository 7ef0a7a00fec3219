package memhost

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/snapshot"
)

// FromSnapshot builds a program from a snapshot, groups included.
func FromSnapshot(s *snapshot.Snapshot) (*Program, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	p := New(s.AddressSize)
	p.analysis = host.ParseAnalysisState(s.Analysis)
	for _, dv := range s.DataVars {
		p.AddDataVar(snapshot.ToHostDataVar(dv))
	}
	for _, fn := range s.Functions {
		p.cur.names[uint64(fn.Address)] = fn.Name
	}
	for _, ref := range s.CodeRefs {
		p.AddCodeRef(uint64(ref.Target), uint64(ref.From))
	}
	for _, g := range s.Groups {
		if err := p.restoreGroup(g, host.NoGroup); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Program) restoreGroup(g snapshot.Group, parent host.GroupID) error {
	if g.Name == "" {
		return fmt.Errorf("memhost: restore group: %w", host.ErrEmptyName)
	}
	id := p.cur.nextID
	p.cur.nextID++
	ng := &group{id: id, parent: parent, name: g.Name}
	for _, a := range g.DataVars {
		ng.dataVars = append(ng.dataVars, uint64(a))
	}
	for _, a := range g.Functions {
		ng.functions = append(ng.functions, uint64(a))
	}
	p.cur.groups[id] = ng
	for _, c := range g.Children {
		if err := p.restoreGroup(c, id); err != nil {
			return err
		}
	}
	return nil
}

// Groups returns the committed grouping tree, children sorted by name and
// members by address.
func (p *Program) Groups() []snapshot.Group {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.children(host.NoGroup)
}

func (p *Program) children(parent host.GroupID) []snapshot.Group {
	var ids []*group
	for _, g := range p.cur.groups {
		if g.parent == parent {
			ids = append(ids, g)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	slices.SortFunc(ids, func(a, b *group) int {
		if c := cmp.Compare(a.name, b.name); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	out := make([]snapshot.Group, 0, len(ids))
	for _, g := range ids {
		out = append(out, snapshot.Group{
			Name:      g.name,
			DataVars:  snapshot.SortedAddrs(g.dataVars),
			Functions: snapshot.SortedAddrs(g.functions),
			Children:  p.children(g.id),
		})
	}
	return out
}

// Snapshot exports the committed program.
func (p *Program) Snapshot() *snapshot.Snapshot {
	groups := p.Groups()

	p.mu.Lock()
	defer p.mu.Unlock()

	s := &snapshot.Snapshot{
		Version:     snapshot.Version,
		AddressSize: p.addressSize,
		Analysis:    p.analysis.String(),
		Groups:      groups,
	}
	for _, dv := range p.dataVars {
		s.DataVars = append(s.DataVars, snapshot.FromHostDataVar(dv))
	}

	starts := slices.Sorted(maps.Keys(p.cur.names))
	for _, a := range starts {
		s.Functions = append(s.Functions, snapshot.Function{Address: snapshot.Addr(a), Name: p.cur.names[a]})
	}

	targets := slices.Sorted(maps.Keys(p.refs))
	for _, t := range targets {
		froms := slices.Sorted(slices.Values(p.refs[t]))
		for _, f := range froms {
			s.CodeRefs = append(s.CodeRefs, snapshot.CodeRef{Target: snapshot.Addr(t), From: snapshot.Addr(f)})
		}
	}
	return s
}
