package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skdltmxn/classsort/host"
	"github.com/skdltmxn/classsort/internal/slots"
	"github.com/skdltmxn/classsort/internal/snapshot"
	"github.com/skdltmxn/classsort/sorter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sample = `address_size: 8
analysis: complete
data_vars:
  - name: Game::Render::Engine::vfTable
    address: 0x140004000
    width: 24
    type: {class: array, element: void*, element_width: 8, count: 3}
    values: [0x140001000, 0x140001010, 0x140001020]
  - name: Game::Render::Engine::RTTI
    address: 0x140005000
    width: 8
    type: {class: other}
functions:
  - {address: 0x140000900, name: Game::Render::Engine::Engine}
  - {address: 0x140001000, name: Init}
  - {address: 0x140001010, name: sub_140001010}
  - {address: 0x140001020, name: Draw}
code_refs:
  - {target: 0x140004000, from: 0x140000900}
`

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "project.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func loadSample(t *testing.T, s *Store) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.NoError(t, s.Import(context.Background(), snap))
	return snap
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(" ", zerolog.Nop())
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Open(t.TempDir(), zerolog.Nop())
	assert.ErrorContains(t, err, "is a directory")
}

func TestOpenCreatesNestedPathAndIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "project.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	loadSample(t, s)
	require.NoError(t, s.Close())

	s, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	size, err := s.AddressSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, size)
}

func TestSchemaTooNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, zerolog.Nop())
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestEmptyProject(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	state, err := s.AnalysisState(ctx)
	require.NoError(t, err)
	assert.Equal(t, host.StateIdle, state)

	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, ErrNoProgram)
	_, err = s.Export(ctx)
	assert.ErrorIs(t, err, ErrNoProgram)

	// a failed Begin must not leave the scope marked open
	require.NoError(t, s.SetAnalysisState(ctx, host.StateComplete))
	loadSample(t, s)
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	snap := loadSample(t, s)
	snap.Version = snapshot.Version

	got, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	state, err := s.AnalysisState(ctx)
	require.NoError(t, err)
	assert.Equal(t, host.StateComplete, state)
}

func TestImportReplacesProgram(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	loadSample(t, s)

	next := &snapshot.Snapshot{
		AddressSize: 4,
		Analysis:    "analyzing",
		Functions:   []snapshot.Function{{Address: 0x401000, Name: "main"}},
		Groups:      []snapshot.Group{{Name: "Imports", Functions: []snapshot.Addr{0x401000}}},
	}
	require.NoError(t, s.Import(ctx, next))

	got, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got.AddressSize)
	assert.Equal(t, "analyzing", got.Analysis)
	assert.Empty(t, got.DataVars)
	assert.Equal(t, next.Functions, got.Functions)
	assert.Equal(t, next.Groups, got.Groups)
}

func TestFailedImportKeepsProgram(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	want := loadSample(t, s)
	want.Version = snapshot.Version

	tests := []struct {
		name string
		snap *snapshot.Snapshot
		want error
	}{
		{"unknown group member", &snapshot.Snapshot{
			AddressSize: 8,
			Analysis:    "complete",
			Functions:   []snapshot.Function{{Address: 0x1000, Name: "Init"}},
			Groups:      []snapshot.Group{{Name: "Classes", Functions: []snapshot.Addr{0xdead}}},
		}, snapshot.ErrUnknownMember},
		{"duplicate function", &snapshot.Snapshot{
			AddressSize: 8,
			Analysis:    "complete",
			Functions:   []snapshot.Function{{Address: 0x1000, Name: "Init"}, {Address: 0x1000, Name: "Tick"}},
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Import(ctx, tt.snap)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}

			state, err := s.AnalysisState(ctx)
			require.NoError(t, err)
			assert.Equal(t, host.StateComplete, state)

			got, err := s.Export(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestTxReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	loadSample(t, s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, tx.AddressSize())

	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, ErrTxBusy)

	require.NoError(t, tx.Rename(ctx, 0x140001000, "Start"))
	fn, ok, err := tx.FunctionAt(ctx, 0x140001000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Start", fn.Name)

	_, ok, err = tx.FunctionAt(ctx, 0xdead)
	require.NoError(t, err)
	assert.False(t, ok)

	refs, err := tx.CodeRefs(ctx, 0x140004000)
	require.NoError(t, err)
	assert.Equal(t, []host.Function{{Start: 0x140000900, Name: "Game::Render::Engine::Engine"}}, refs)

	vars, err := tx.DataVars(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.True(t, vars[0].Type.IsPointerArray(8))
	assert.Equal(t, []uint64{0x140001000, 0x140001010, 0x140001020}, vars[0].Values)
	assert.Nil(t, vars[1].Values)

	require.NoError(t, tx.Rollback())
	assert.ErrorIs(t, tx.Rollback(), host.ErrTxDone)

	got, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Init", got.Functions[1].Name)
}

func TestTxGroups(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	loadSample(t, s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.CreateGroup(ctx, "", host.NoGroup)
	assert.ErrorIs(t, err, host.ErrEmptyName)
	_, err = tx.CreateGroup(ctx, "x", 999)
	assert.ErrorIs(t, err, host.ErrGroupNotFound)

	root, err := tx.CreateGroup(ctx, "Classes", host.NoGroup)
	require.NoError(t, err)
	game, err := tx.CreateGroup(ctx, "Game", root)
	require.NoError(t, err)

	require.NoError(t, tx.AddFunction(ctx, game, 0x140001000))
	require.NoError(t, tx.AddFunction(ctx, game, 0x140001000))
	require.NoError(t, tx.AddDataVar(ctx, game, 0x140004000))
	assert.ErrorIs(t, tx.AddFunction(ctx, game, 0xdead), host.ErrFunctionNotFound)
	assert.ErrorIs(t, tx.AddDataVar(ctx, 999, 0x140004000), host.ErrGroupNotFound)
	assert.ErrorIs(t, tx.Rename(ctx, 0xdead, "x"), host.ErrFunctionNotFound)
	require.NoError(t, tx.Commit())

	got, err := s.Export(ctx)
	require.NoError(t, err)
	require.Len(t, got.Groups, 1)
	require.Len(t, got.Groups[0].Children, 1)
	assert.Equal(t, []snapshot.Addr{0x140001000}, got.Groups[0].Children[0].Functions)
	assert.Equal(t, []snapshot.Addr{0x140004000}, got.Groups[0].Children[0].DataVars)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.RemoveGroup(ctx, "Classes"))
	require.NoError(t, tx.Commit())

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM group_functions`).Scan(&n))
	assert.Zero(t, n, "removing the root cascades to members")
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM tree_groups`).Scan(&n))
	assert.Zero(t, n)
}

func TestSorterOnStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	loadSample(t, s)

	sum, err := sorter.New(sorter.Options{}).Run(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count(slots.Renamed))
	assert.Equal(t, 1, sum.Count(slots.Placeholder))
	assert.Equal(t, 1, sum.Count(slots.Constructor))
	first, err := s.Export(ctx)
	require.NoError(t, err)

	sum, err = sorter.New(sorter.Options{}).Run(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count(slots.Unchanged))
	second, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	names := map[snapshot.Addr]string{}
	for _, fn := range second.Functions {
		names[fn.Address] = fn.Name
	}
	assert.Equal(t, "\u200c\u200b\u200b\u200bInit", names[0x140001000])
	assert.Equal(t, "sub_140001010", names[0x140001010])
	assert.Equal(t, "\u200c\u200c\u200c\u200bDraw", names[0x140001020])

	require.Len(t, second.Groups, 1)
	classes := second.Groups[0]
	assert.Equal(t, "Classes", classes.Name)
	engine := classes.Children[0].Children[0].Children[0]
	assert.Equal(t, "Engine (3)", engine.Name)
	assert.Equal(t, []snapshot.Addr{0x140000900, 0x140001000, 0x140001010, 0x140001020}, engine.Functions)
}

func TestSorterDryRunOnStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	snap := loadSample(t, s)
	snap.Version = snapshot.Version

	_, err := sorter.New(sorter.Options{DryRun: true}).Run(ctx, s)
	require.NoError(t, err)

	got, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestSorterCanceledOnStore(t *testing.T) {
	s := openStore(t)
	snap := loadSample(t, s)
	snap.Version = snapshot.Version

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sorter.New(sorter.Options{}).Run(ctx, s)
	require.Error(t, err)

	got, err := s.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	older := Run{ID: "a", Started: base, Finished: base.Add(time.Second), Tables: 3, Renamed: 5}
	newer := Run{ID: "b", Started: base.Add(time.Hour), Finished: base.Add(time.Hour + 500*time.Millisecond), DryRun: true, Failed: 1}
	require.NoError(t, s.RecordRun(ctx, older))
	require.NoError(t, s.RecordRun(ctx, newer))
	assert.Error(t, s.RecordRun(ctx, older), "run IDs are unique")

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []Run{newer, older}, runs)

	runs, err = s.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Run{newer}, runs)
}
