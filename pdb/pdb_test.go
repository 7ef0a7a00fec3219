package pdb_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/classsort/internal/dbi"
	"github.com/skdltmxn/classsort/msf/msftest"
	"github.com/skdltmxn/classsort/pdb"
	"github.com/skdltmxn/classsort/pdb/pdbtest"
)

var samplePublics = []pdb.Public{
	{Name: "??_7Engine@Render@Game@@6B@", Section: 2, Offset: 0x10},
	{Name: "?Init@Engine@Render@Game@@UEAAXXZ", Section: 1, Offset: 0x100, Function: true},
	{Name: "??0Engine@Render@Game@@QEAA@XZ", Section: 1, Offset: 0x180, Function: true, Code: true},
}

func openBytes(t *testing.T, data []byte) *pdb.File {
	t.Helper()
	f, err := pdb.OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestPublics(t *testing.T) {
	f := openBytes(t, pdbtest.Build(dbi.MachineAMD64, samplePublics))

	pubs, err := f.Publics()
	require.NoError(t, err)
	assert.Equal(t, samplePublics, pubs)

	size, err := f.PointerSize()
	require.NoError(t, err)
	assert.Equal(t, 8, size)

	h, err := f.DBI()
	require.NoError(t, err)
	assert.Equal(t, uint16(5), h.SymRecordStreamIndex)
	assert.False(t, h.IsStripped())
}

func TestPointerSize32(t *testing.T) {
	f := openBytes(t, pdbtest.Build(dbi.MachineI386, nil))
	size, err := f.PointerSize()
	require.NoError(t, err)
	assert.Equal(t, 4, size)

	pubs, err := f.Publics()
	require.NoError(t, err)
	assert.Empty(t, pubs)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.pdb")
	require.NoError(t, os.WriteFile(path, pdbtest.Build(dbi.MachineAMD64, samplePublics), 0o644))

	f, err := pdb.Open(path)
	require.NoError(t, err)
	pubs, err := f.Publics()
	require.NoError(t, err)
	assert.Len(t, pubs, 3)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func TestNotPDB(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 4096)
	_, err := pdb.OpenReader(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, pdb.ErrNotPDB)

	_, err = pdb.Open(filepath.Join(t.TempDir(), "missing.pdb"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, pdb.ErrNotPDB)
}

func TestBadDBIHeader(t *testing.T) {
	f := openBytes(t, msftest.Build(512, [][]byte{nil, nil, nil, make([]byte, 64)}))

	_, err := f.Publics()
	var pe *pdb.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "DBI", pe.Stream)
	assert.ErrorIs(t, err, dbi.ErrInvalidHeader)
}

func TestClosed(t *testing.T) {
	data := pdbtest.Build(dbi.MachineAMD64, samplePublics)
	f, err := pdb.OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = f.Publics()
	assert.ErrorIs(t, err, pdb.ErrFileClosed)
}
