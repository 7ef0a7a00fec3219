// Package config loads classsort settings from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"github.com/skdltmxn/classsort/internal/ordinal"
	"github.com/skdltmxn/classsort/internal/qualname"
	"github.com/skdltmxn/classsort/internal/slots"
)

// EnvLogLevel overrides log.level when set.
const EnvLogLevel = "CLASSSORT_LOG_LEVEL"

type Config struct {
	RootGroup string  `toml:"root_group"`
	Names     Names   `toml:"names"`
	Markers   Markers `toml:"markers"`
	Log       Log     `toml:"log"`
	Import    Import  `toml:"import"`
}

type Names struct {
	Separator          string   `toml:"separator"`
	Discriminators     []string `toml:"discriminators"`
	ConstructorMarkers []string `toml:"constructor_markers"`
	ThunkMarkers       []string `toml:"thunk_markers"`
	DefaultPattern     string   `toml:"default_pattern"`
}

// Markers holds the two ordinal runes, one character each.
type Markers struct {
	Indexer string `toml:"indexer"`
	Filler  string `toml:"filler"`
}

type Log struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

type Import struct {
	// DemangleCache is the number of demangled names kept in memory.
	DemangleCache int `toml:"demangle_cache"`
	// MaxSlots caps how many slots are read from one vftable.
	MaxSlots int `toml:"max_slots"`
}

// Default returns the built-in configuration.
func Default() *Config {
	a := ordinal.DefaultAlphabet()
	return &Config{
		RootGroup: "Classes",
		Names: Names{
			Separator:          qualname.DefaultSeparator,
			Discriminators:     append([]string(nil), qualname.DefaultDiscriminators...),
			ConstructorMarkers: append([]string(nil), slots.DefaultConstructorMarkers...),
			ThunkMarkers:       append([]string(nil), slots.DefaultThunkMarkers...),
			DefaultPattern:     slots.DefaultPlaceholder.String(),
		},
		Markers: Markers{
			Indexer: string(a.Indexer),
			Filler:  string(a.Filler),
		},
		Log: Log{
			Level:  "info",
			Pretty: true,
		},
		Import: Import{
			DemangleCache: 4096,
			MaxSlots:      1024,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path or a missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		md, err := toml.DecodeFile(path, cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
			cfg = Default()
		case err != nil:
			return nil, fmt.Errorf("config: %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
			}
		}
	}

	ApplyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides.
func ApplyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		cfg.Log.Level = v
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RootGroup) == "" {
		errs = append(errs, errors.New("root_group must not be empty"))
	}
	if c.Names.Separator == "" {
		errs = append(errs, errors.New("names.separator must not be empty"))
	}
	if len(c.Names.Discriminators) == 0 {
		errs = append(errs, errors.New("names.discriminators needs at least one entry"))
	}
	if _, err := c.Placeholder(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Alphabet(); err != nil {
		errs = append(errs, err)
	}
	if c.Import.DemangleCache <= 0 {
		errs = append(errs, fmt.Errorf("import.demangle_cache must be positive, got %d", c.Import.DemangleCache))
	}
	if c.Import.MaxSlots <= 0 {
		errs = append(errs, fmt.Errorf("import.max_slots must be positive, got %d", c.Import.MaxSlots))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Placeholder compiles names.default_pattern.
func (c *Config) Placeholder() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Names.DefaultPattern)
	if err != nil {
		return nil, fmt.Errorf("names.default_pattern: %w", err)
	}
	return re, nil
}

// Alphabet returns the configured ordinal alphabet.
func (c *Config) Alphabet() (ordinal.Alphabet, error) {
	indexer, err := singleRune("markers.indexer", c.Markers.Indexer)
	if err != nil {
		return ordinal.Alphabet{}, err
	}
	filler, err := singleRune("markers.filler", c.Markers.Filler)
	if err != nil {
		return ordinal.Alphabet{}, err
	}
	a := ordinal.Alphabet{Indexer: indexer, Filler: filler}
	if err := a.Validate(); err != nil {
		return ordinal.Alphabet{}, fmt.Errorf("markers: %w", err)
	}
	return a, nil
}

func singleRune(key, s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%s must be exactly one character, got %q", key, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
