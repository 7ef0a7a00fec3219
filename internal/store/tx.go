package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skdltmxn/classsort/host"
)

// Tx is an edit scope backed by a SQL transaction.
type Tx struct {
	s           *Store
	tx          *sql.Tx
	addressSize int
	done        bool
}

var _ host.Tx = (*Tx)(nil)

func (t *Tx) check() error {
	if t.done {
		return host.ErrTxDone
	}
	return nil
}

// AddressSize returns the pointer width of the program.
func (t *Tx) AddressSize() int { return t.addressSize }

// DataVars returns every data variable sorted by address.
func (t *Tx) DataVars(ctx context.Context) ([]host.DataVar, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return readDataVars(ctx, t.tx)
}

func readDataVars(ctx context.Context, q querier) ([]host.DataVar, error) {
	rows, err := q.QueryContext(ctx, `SELECT address, name, width, type_class, element, element_width, element_count, readable
FROM data_vars ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("store: query data vars: %w", err)
	}
	defer rows.Close()

	var out []host.DataVar
	index := map[uint64]int{}
	for rows.Next() {
		var (
			addr, width, elemWidth, count int64
			name, class, elem             string
			readable                      bool
		)
		if err := rows.Scan(&addr, &name, &width, &class, &elem, &elemWidth, &count, &readable); err != nil {
			return nil, fmt.Errorf("store: scan data var: %w", err)
		}
		dv := host.DataVar{
			Name:    name,
			Address: uint64(addr),
			Width:   uint64(width),
			Type: host.Type{
				Class:        host.ParseTypeClass(class),
				Element:      elem,
				ElementWidth: uint64(elemWidth),
				Count:        uint64(count),
			},
		}
		if readable {
			dv.Values = []uint64{}
		}
		index[dv.Address] = len(out)
		out = append(out, dv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate data vars: %w", err)
	}

	vrows, err := q.QueryContext(ctx, `SELECT data_var, value FROM data_var_values ORDER BY data_var, idx`)
	if err != nil {
		return nil, fmt.Errorf("store: query data var values: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var dv, v int64
		if err := vrows.Scan(&dv, &v); err != nil {
			return nil, fmt.Errorf("store: scan data var value: %w", err)
		}
		if i, ok := index[uint64(dv)]; ok && out[i].Values != nil {
			out[i].Values = append(out[i].Values, uint64(v))
		}
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate data var values: %w", err)
	}
	return out, nil
}

// FunctionAt returns the function starting at addr, with this transaction's renames.
func (t *Tx) FunctionAt(ctx context.Context, addr uint64) (host.Function, bool, error) {
	if err := t.check(); err != nil {
		return host.Function{}, false, err
	}
	var name string
	err := t.tx.QueryRowContext(ctx, `SELECT name FROM functions WHERE address = ?`, int64(addr)).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return host.Function{}, false, nil
	case err != nil:
		return host.Function{}, false, fmt.Errorf("store: function at 0x%x: %w", addr, err)
	}
	return host.Function{Start: addr, Name: name}, true, nil
}

// CodeRefs returns the functions that reference addr, sorted by address.
func (t *Tx) CodeRefs(ctx context.Context, addr uint64) ([]host.Function, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT f.address, f.name
FROM code_refs c JOIN functions f ON f.address = c.from_fn
WHERE c.target = ? ORDER BY f.address`, int64(addr))
	if err != nil {
		return nil, fmt.Errorf("store: code refs to 0x%x: %w", addr, err)
	}
	defer rows.Close()

	var out []host.Function
	for rows.Next() {
		var (
			start int64
			name  string
		)
		if err := rows.Scan(&start, &name); err != nil {
			return nil, fmt.Errorf("store: scan code ref: %w", err)
		}
		out = append(out, host.Function{Start: uint64(start), Name: name})
	}
	return out, rows.Err()
}

// RemoveGroup deletes the top-level group name and everything under it.
func (t *Tx) RemoveGroup(ctx context.Context, name string) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM tree_groups WHERE parent_id IS NULL AND name = ?`, name); err != nil {
		return fmt.Errorf("store: remove group %q: %w", name, err)
	}
	return nil
}

// CreateGroup adds a group under parent.
func (t *Tx) CreateGroup(ctx context.Context, name string, parent host.GroupID) (host.GroupID, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return createGroup(ctx, t.tx, name, parent)
}

func createGroup(ctx context.Context, q querier, name string, parent host.GroupID) (host.GroupID, error) {
	if name == "" {
		return 0, host.ErrEmptyName
	}
	var parentID sql.NullInt64
	if parent != host.NoGroup {
		if err := groupExists(ctx, q, parent); err != nil {
			return 0, err
		}
		parentID = sql.NullInt64{Int64: int64(parent), Valid: true}
	}

	res, err := q.ExecContext(ctx, `INSERT INTO tree_groups(parent_id, name) VALUES (?, ?)`, parentID, name)
	if err != nil {
		return 0, fmt.Errorf("store: create group %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: create group %q: %w", name, err)
	}
	return host.GroupID(id), nil
}

func groupExists(ctx context.Context, q querier, id host.GroupID) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM tree_groups WHERE id = ?`, int64(id)).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %d", host.ErrGroupNotFound, id)
	case err != nil:
		return fmt.Errorf("store: look up group %d: %w", id, err)
	}
	return nil
}

// AddDataVar adds the data variable at addr to group.
func (t *Tx) AddDataVar(ctx context.Context, group host.GroupID, addr uint64) error {
	if err := t.check(); err != nil {
		return err
	}
	return addMember(ctx, t.tx, "group_data_vars", group, addr)
}

// AddFunction adds the function at addr to group. Adding twice is a no-op.
func (t *Tx) AddFunction(ctx context.Context, group host.GroupID, addr uint64) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok, err := t.FunctionAt(ctx, addr); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: 0x%x", host.ErrFunctionNotFound, addr)
	}
	return addMember(ctx, t.tx, "group_functions", group, addr)
}

func addMember(ctx context.Context, q querier, table string, group host.GroupID, addr uint64) error {
	if err := groupExists(ctx, q, group); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO `+table+`(group_id, address) VALUES (?, ?)`, int64(group), int64(addr)); err != nil {
		return fmt.Errorf("store: add 0x%x to group %d: %w", addr, group, err)
	}
	return nil
}

// Rename sets the name of the function starting at addr.
func (t *Tx) Rename(ctx context.Context, addr uint64, name string) error {
	if err := t.check(); err != nil {
		return err
	}
	if name == "" {
		return host.ErrEmptyName
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE functions SET name = ? WHERE address = ?`, name, int64(addr))
	if err != nil {
		return fmt.Errorf("store: rename 0x%x: %w", addr, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: 0x%x", host.ErrFunctionNotFound, addr)
	}
	return nil
}

// Commit publishes the transaction.
func (t *Tx) Commit() error {
	if err := t.check(); err != nil {
		return err
	}
	t.done = true
	defer t.s.release()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction.
func (t *Tx) Rollback() error {
	if err := t.check(); err != nil {
		return err
	}
	t.done = true
	defer t.s.release()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("store: rollback: %w", err)
	}
	return nil
}
