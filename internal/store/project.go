package store

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/logging"
	"github.com/skdltmxn/classsort/internal/snapshot"
)

// Import replaces the stored program with snap. The analysis state reads
// "analyzing" until the import commits; afterwards it is the snapshot's.
// A failed import restores the previous state.
func (s *Store) Import(ctx context.Context, snap *snapshot.Snapshot) (err error) {
	if err := snap.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return ErrTxBusy
	}
	s.open = true
	s.mu.Unlock()
	defer s.release()

	prior, err := s.AnalysisState(ctx)
	if err != nil {
		return err
	}
	if err := s.SetAnalysisState(ctx, host.StateAnalyzing); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := s.SetAnalysisState(context.WithoutCancel(ctx), prior); rerr != nil {
			s.log.Error().Err(rerr).Stringer("state", prior).Msg("failed to restore analysis state")
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin import: %w", err)
	}
	defer logging.DeferRollback(s.log, tx)

	for _, table := range []string{"tree_groups", "code_refs", "functions", "data_var_values", "data_vars"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}

	if err := insertDataVars(ctx, tx, snap.DataVars); err != nil {
		return err
	}
	if err := insertFunctions(ctx, tx, snap.Functions); err != nil {
		return err
	}
	if err := insertCodeRefs(ctx, tx, snap.CodeRefs); err != nil {
		return err
	}
	for _, g := range snap.Groups {
		if err := insertGroup(ctx, tx, g, host.NoGroup); err != nil {
			return err
		}
	}

	if err := setMeta(ctx, tx, metaAddressSize, strconv.Itoa(snap.AddressSize)); err != nil {
		return err
	}
	if err := setMeta(ctx, tx, metaAnalysis, host.ParseAnalysisState(snap.Analysis).String()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit import: %w", err)
	}

	s.log.Info().
		Int("data_vars", len(snap.DataVars)).
		Int("functions", len(snap.Functions)).
		Int("code_refs", len(snap.CodeRefs)).
		Msg("program imported")
	return nil
}

func insertDataVars(ctx context.Context, tx *sql.Tx, vars []snapshot.DataVar) error {
	dvStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO data_vars
(address, name, width, type_class, element, element_width, element_count, readable)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare data vars: %w", err)
	}
	defer dvStmt.Close()

	valStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO data_var_values(data_var, idx, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare data var values: %w", err)
	}
	defer valStmt.Close()

	for _, dv := range vars {
		class := host.ParseTypeClass(dv.Type.Class).String()
		if _, err := dvStmt.ExecContext(ctx, int64(dv.Address), dv.Name, int64(dv.Width), class,
			dv.Type.Element, int64(dv.Type.ElementWidth), int64(dv.Type.Count), dv.Values != nil); err != nil {
			return fmt.Errorf("store: insert data var %s: %w", dv.Name, err)
		}
		for i, v := range dv.Values {
			if _, err := valStmt.ExecContext(ctx, int64(dv.Address), i, int64(v)); err != nil {
				return fmt.Errorf("store: insert value %d of %s: %w", i, dv.Name, err)
			}
		}
	}
	return nil
}

func insertFunctions(ctx context.Context, tx *sql.Tx, fns []snapshot.Function) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO functions(address, name) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare functions: %w", err)
	}
	defer stmt.Close()

	for _, fn := range fns {
		if _, err := stmt.ExecContext(ctx, int64(fn.Address), fn.Name); err != nil {
			return fmt.Errorf("store: insert function %s: %w", fn.Name, err)
		}
	}
	return nil
}

func insertCodeRefs(ctx context.Context, tx *sql.Tx, refs []snapshot.CodeRef) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO code_refs(target, from_fn) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare code refs: %w", err)
	}
	defer stmt.Close()

	for _, ref := range refs {
		if _, err := stmt.ExecContext(ctx, int64(ref.Target), int64(ref.From)); err != nil {
			return fmt.Errorf("store: insert code ref: %w", err)
		}
	}
	return nil
}

func insertGroup(ctx context.Context, tx *sql.Tx, g snapshot.Group, parent host.GroupID) error {
	id, err := createGroup(ctx, tx, g.Name, parent)
	if err != nil {
		return err
	}
	for _, a := range g.DataVars {
		if err := addMember(ctx, tx, "group_data_vars", id, uint64(a)); err != nil {
			return err
		}
	}
	for _, a := range g.Functions {
		if err := addMember(ctx, tx, "group_functions", id, uint64(a)); err != nil {
			return err
		}
	}
	for _, c := range g.Children {
		if err := insertGroup(ctx, tx, c, id); err != nil {
			return err
		}
	}
	return nil
}

// Export dumps the committed program, groups included.
func (s *Store) Export(ctx context.Context) (*snapshot.Snapshot, error) {
	size, err := s.addressSize(ctx, s.db)
	if err != nil {
		return nil, err
	}
	state, err := s.AnalysisState(ctx)
	if err != nil {
		return nil, err
	}

	out := &snapshot.Snapshot{
		Version:     snapshot.Version,
		AddressSize: size,
		Analysis:    state.String(),
	}

	vars, err := readDataVars(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for _, dv := range vars {
		out.DataVars = append(out.DataVars, snapshot.FromHostDataVar(dv))
	}

	if out.Functions, err = s.exportFunctions(ctx); err != nil {
		return nil, err
	}
	if out.CodeRefs, err = s.exportCodeRefs(ctx); err != nil {
		return nil, err
	}
	if out.Groups, err = s.exportGroups(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) exportFunctions(ctx context.Context) ([]snapshot.Function, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, name FROM functions ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("store: query functions: %w", err)
	}
	defer rows.Close()

	var out []snapshot.Function
	for rows.Next() {
		var (
			addr int64
			name string
		)
		if err := rows.Scan(&addr, &name); err != nil {
			return nil, fmt.Errorf("store: scan function: %w", err)
		}
		out = append(out, snapshot.Function{Address: snapshot.Addr(addr), Name: name})
	}
	return out, rows.Err()
}

func (s *Store) exportCodeRefs(ctx context.Context) ([]snapshot.CodeRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT target, from_fn FROM code_refs ORDER BY target, from_fn`)
	if err != nil {
		return nil, fmt.Errorf("store: query code refs: %w", err)
	}
	defer rows.Close()

	var out []snapshot.CodeRef
	for rows.Next() {
		var target, from int64
		if err := rows.Scan(&target, &from); err != nil {
			return nil, fmt.Errorf("store: scan code ref: %w", err)
		}
		out = append(out, snapshot.CodeRef{Target: snapshot.Addr(target), From: snapshot.Addr(from)})
	}
	return out, rows.Err()
}

type groupRow struct {
	id        int64
	parent    int64
	name      string
	dataVars  []uint64
	functions []uint64
}

func (s *Store) exportGroups(ctx context.Context) ([]snapshot.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, COALESCE(parent_id, 0), name FROM tree_groups`)
	if err != nil {
		return nil, fmt.Errorf("store: query groups: %w", err)
	}
	byID := map[int64]*groupRow{}
	children := map[int64][]*groupRow{}
	for rows.Next() {
		g := &groupRow{}
		if err := rows.Scan(&g.id, &g.parent, &g.name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan group: %w", err)
		}
		byID[g.id] = g
		children[g.parent] = append(children[g.parent], g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate groups: %w", err)
	}

	for _, m := range []struct {
		table string
		add   func(*groupRow, uint64)
	}{
		{"group_data_vars", func(g *groupRow, a uint64) { g.dataVars = append(g.dataVars, a) }},
		{"group_functions", func(g *groupRow, a uint64) { g.functions = append(g.functions, a) }},
	} {
		if err := s.scanMembers(ctx, m.table, byID, m.add); err != nil {
			return nil, err
		}
	}

	var build func(parent int64) []snapshot.Group
	build = func(parent int64) []snapshot.Group {
		kids := children[parent]
		if len(kids) == 0 {
			return nil
		}
		slices.SortFunc(kids, func(a, b *groupRow) int {
			if c := cmp.Compare(a.name, b.name); c != 0 {
				return c
			}
			return cmp.Compare(a.id, b.id)
		})
		out := make([]snapshot.Group, 0, len(kids))
		for _, g := range kids {
			out = append(out, snapshot.Group{
				Name:      g.name,
				DataVars:  snapshot.SortedAddrs(g.dataVars),
				Functions: snapshot.SortedAddrs(g.functions),
				Children:  build(g.id),
			})
		}
		return out
	}
	return build(0), nil
}

func (s *Store) scanMembers(ctx context.Context, table string, byID map[int64]*groupRow, add func(*groupRow, uint64)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, address FROM `+table)
	if err != nil {
		return fmt.Errorf("store: query %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, addr int64
		if err := rows.Scan(&id, &addr); err != nil {
			return fmt.Errorf("store: scan %s: %w", table, err)
		}
		if g, ok := byID[id]; ok {
			add(g, uint64(addr))
		}
	}
	return rows.Err()
}
