package memhost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/snapshot"
)

func TestTxSeesOwnRenames(t *testing.T) {
	ctx := context.Background()
	p := New(8)
	p.AddFunction(0x1000, "Init")

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rename(ctx, 0x1000, "Start"))

	fn, ok, err := tx.FunctionAt(ctx, 0x1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Start", fn.Name)

	name, _ := p.FunctionName(0x1000)
	assert.Equal(t, "Init", name, "uncommitted rename must not be visible")

	require.NoError(t, tx.Commit())
	name, _ = p.FunctionName(0x1000)
	assert.Equal(t, "Start", name)
}

func TestRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	p := New(8)
	p.AddFunction(0x1000, "Init")

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rename(ctx, 0x1000, "Start"))
	_, err = tx.CreateGroup(ctx, "Classes", host.NoGroup)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	name, _ := p.FunctionName(0x1000)
	assert.Equal(t, "Init", name)
	assert.Empty(t, p.Groups())

	assert.ErrorIs(t, tx.Commit(), host.ErrTxDone)
	_, _, err = tx.FunctionAt(ctx, 0x1000)
	assert.ErrorIs(t, err, host.ErrTxDone)
}

func TestSingleOpenTx(t *testing.T) {
	ctx := context.Background()
	p := New(8)

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	_, err = p.Begin(ctx)
	assert.ErrorIs(t, err, ErrTxBusy)

	require.NoError(t, tx.Rollback())
	tx, err = p.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
}

func TestGroupMembershipIsASet(t *testing.T) {
	ctx := context.Background()
	p := New(8)
	p.AddFunction(0x1000, "Init")

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	root, err := tx.CreateGroup(ctx, "Classes", host.NoGroup)
	require.NoError(t, err)
	cls, err := tx.CreateGroup(ctx, "Engine (2)", root)
	require.NoError(t, err)

	require.NoError(t, tx.AddFunction(ctx, cls, 0x1000))
	require.NoError(t, tx.AddFunction(ctx, cls, 0x1000))
	require.NoError(t, tx.AddDataVar(ctx, cls, 0x4000))
	require.NoError(t, tx.AddDataVar(ctx, cls, 0x4000))
	require.NoError(t, tx.Commit())

	groups := p.Groups()
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Children, 1)
	engine := groups[0].Children[0]
	assert.Equal(t, []snapshot.Addr{0x1000}, engine.Functions)
	assert.Equal(t, []snapshot.Addr{0x4000}, engine.DataVars)
}

func TestTxErrors(t *testing.T) {
	ctx := context.Background()
	p := New(8)

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.CreateGroup(ctx, "", host.NoGroup)
	assert.ErrorIs(t, err, host.ErrEmptyName)

	_, err = tx.CreateGroup(ctx, "Child", 42)
	assert.ErrorIs(t, err, host.ErrGroupNotFound)

	g, err := tx.CreateGroup(ctx, "Classes", host.NoGroup)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.AddFunction(ctx, g, 0xdead), host.ErrFunctionNotFound)
	assert.ErrorIs(t, tx.Rename(ctx, 0xdead, "x"), host.ErrFunctionNotFound)
	assert.ErrorIs(t, tx.AddDataVar(ctx, 99, 0x10), host.ErrGroupNotFound)
}

func TestRemoveGroupRemovesSubtree(t *testing.T) {
	ctx := context.Background()
	p := New(8)

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	root, err := tx.CreateGroup(ctx, "Classes", host.NoGroup)
	require.NoError(t, err)
	ns, err := tx.CreateGroup(ctx, "Game", root)
	require.NoError(t, err)
	_, err = tx.CreateGroup(ctx, "Engine (2)", ns)
	require.NoError(t, err)
	_, err = tx.CreateGroup(ctx, "Imports", host.NoGroup)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = p.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.RemoveGroup(ctx, "Classes"))
	require.NoError(t, tx.RemoveGroup(ctx, "Missing"))
	require.NoError(t, tx.Commit())

	groups := p.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "Imports", groups[0].Name)
	assert.Len(t, p.cur.groups, 1)
}

func TestCodeRefsResolveCurrentNames(t *testing.T) {
	ctx := context.Background()
	p := New(4)
	p.AddFunction(0x100, "Engine::Engine")
	p.AddCodeRef(0x4000, 0x100)
	p.AddCodeRef(0x4000, 0x100)
	p.AddCodeRef(0x4000, 0x999) // not a known function

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Rename(ctx, 0x100, "Engine::Constructor"))
	refs, err := tx.CodeRefs(ctx, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, []host.Function{{Start: 0x100, Name: "Engine::Constructor"}}, refs)
	assert.Equal(t, 4, tx.AddressSize())
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := New(8)
	p.SetAnalysisState(host.StateComplete)
	p.AddDataVar(host.DataVar{
		Name:    "Game::Engine::vfTable",
		Address: 0x4000,
		Width:   16,
		Type:    host.Type{Class: host.TypeArray, Element: "void*", ElementWidth: 8, Count: 2},
		Values:  []uint64{0x1000, 0x1010},
	})
	p.AddFunction(0x1000, "Init")
	p.AddFunction(0x1010, "sub_1010")
	p.AddCodeRef(0x4000, 0x1000)

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	root, err := tx.CreateGroup(ctx, "Classes", host.NoGroup)
	require.NoError(t, err)
	g, err := tx.CreateGroup(ctx, "Engine (2)", root)
	require.NoError(t, err)
	require.NoError(t, tx.AddFunction(ctx, g, 0x1010))
	require.NoError(t, tx.AddFunction(ctx, g, 0x1000))
	require.NoError(t, tx.Commit())

	s := p.Snapshot()
	assert.Equal(t, "complete", s.Analysis)
	assert.Equal(t, []snapshot.Addr{0x1000, 0x1010}, s.Groups[0].Children[0].Functions)

	q, err := FromSnapshot(s)
	require.NoError(t, err)
	assert.Equal(t, s, q.Snapshot())

	state, err := q.AnalysisState(ctx)
	require.NoError(t, err)
	assert.Equal(t, host.StateComplete, state)
}

func TestFromSnapshotRejectsBadAddressSize(t *testing.T) {
	_, err := FromSnapshot(&snapshot.Snapshot{AddressSize: 3})
	assert.ErrorIs(t, err, snapshot.ErrAddressSize)
}
