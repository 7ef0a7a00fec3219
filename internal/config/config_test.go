package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/classsort/internal/ordinal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classsort.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	a, err := cfg.Alphabet()
	require.NoError(t, err)
	assert.Equal(t, ordinal.DefaultAlphabet(), a)

	re, err := cfg.Placeholder()
	require.NoError(t, err)
	assert.True(t, re.MatchString("sub_140001000"))
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := writeConfig(t, `
root_group = "VTables"

[names]
discriminators = ["vtbl"]
default_pattern = '^FUN_[0-9a-f]+$'

[markers]
indexer = "\u2060"
filler = "\u200b"

[log]
level = "debug"
pretty = false

[import]
max_slots = 64
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "VTables", cfg.RootGroup)
	assert.Equal(t, []string{"vtbl"}, cfg.Names.Discriminators)
	assert.Equal(t, "::", cfg.Names.Separator, "unset keys keep their default")
	assert.Equal(t, Default().Names.ConstructorMarkers, cfg.Names.ConstructorMarkers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
	assert.Equal(t, 64, cfg.Import.MaxSlots)
	assert.Equal(t, 4096, cfg.Import.DemangleCache)

	a, err := cfg.Alphabet()
	require.NoError(t, err)
	assert.Equal(t, '\u2060', a.Indexer)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	path := writeConfig(t, "[log]\nlevel = \"debug\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "root_group = ", "classsort.toml"},
		{"unknown key", "[names]\nseperator = \".\"\n", `unknown key "names.seperator"`},
		{"bad pattern", "[names]\ndefault_pattern = \"(\"\n", "names.default_pattern"},
		{"visible marker", "[markers]\nindexer = \"x\"\n", "markers"},
		{"two runes", "[markers]\nfiller = \"\\u200b\\u200b\"\n", "markers.filler must be exactly one character"},
		{"no discriminators", "[names]\ndiscriminators = []\n", "names.discriminators"},
		{"empty root", "root_group = \" \"\n", "root_group must not be empty"},
		{"max slots", "[import]\nmax_slots = 0\n", "import.max_slots must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.RootGroup = ""
	cfg.Markers.Filler = cfg.Markers.Indexer

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root_group")
	assert.ErrorIs(t, err, ordinal.ErrSameMarker)
}
