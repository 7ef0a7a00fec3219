// Package snapshot is the YAML exchange format for a program's symbols,
// names and groups.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Version is written to every snapshot.
const Version = 1

var (
	ErrUnsupportedVersion = errors.New("snapshot: unsupported version")
	ErrAddressSize        = errors.New("snapshot: address size must be 4 or 8")
	ErrUnknownMember      = errors.New("snapshot: group member is not a known symbol")
)

// Addr is an address that round-trips through YAML as hex.
type Addr uint64

func (a Addr) MarshalYAML() (interface{}, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!int",
		Value: "0x" + strconv.FormatUint(uint64(a), 16),
	}, nil
}

func (a *Addr) UnmarshalYAML(value *yaml.Node) error {
	v, err := strconv.ParseUint(value.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("snapshot: line %d: invalid address %q", value.Line, value.Value)
	}
	*a = Addr(v)
	return nil
}

// Snapshot is a complete program description.
type Snapshot struct {
	Version     int        `yaml:"version"`
	AddressSize int        `yaml:"address_size"`
	Analysis    string     `yaml:"analysis"`
	DataVars    []DataVar  `yaml:"data_vars"`
	Functions   []Function `yaml:"functions"`
	CodeRefs    []CodeRef  `yaml:"code_refs,omitempty"`
	Groups      []Group    `yaml:"groups,omitempty"`
}

// Type is a declared data type.
type Type struct {
	Class        string `yaml:"class"`
	Element      string `yaml:"element,omitempty"`
	ElementWidth uint64 `yaml:"element_width,omitempty"`
	Count        uint64 `yaml:"count,omitempty"`
}

// DataVar is a named memory region. Values are omitted when unreadable.
type DataVar struct {
	Name    string `yaml:"name"`
	Address Addr   `yaml:"address"`
	Width   uint64 `yaml:"width"`
	Type    Type   `yaml:"type"`
	Values  []Addr `yaml:"values,omitempty,flow"`
}

type Function struct {
	Address Addr   `yaml:"address"`
	Name    string `yaml:"name"`
}

// CodeRef records that the function starting at From references Target.
type CodeRef struct {
	Target Addr `yaml:"target"`
	From   Addr `yaml:"from"`
}

// Group is a node of the grouping tree.
type Group struct {
	Name      string  `yaml:"name"`
	DataVars  []Addr  `yaml:"data_vars,omitempty,flow"`
	Functions []Addr  `yaml:"functions,omitempty,flow"`
	Children  []Group `yaml:"children,omitempty"`
}

// Validate checks fields every consumer relies on.
func (s *Snapshot) Validate() error {
	if s.Version != 0 && s.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	if s.AddressSize != 4 && s.AddressSize != 8 {
		return fmt.Errorf("%w: got %d", ErrAddressSize, s.AddressSize)
	}
	if len(s.Groups) == 0 {
		return nil
	}

	functions := make(map[Addr]bool, len(s.Functions))
	for _, fn := range s.Functions {
		functions[fn.Address] = true
	}
	dataVars := make(map[Addr]bool, len(s.DataVars))
	for _, dv := range s.DataVars {
		dataVars[dv.Address] = true
	}
	for _, g := range s.Groups {
		if err := g.checkMembers(functions, dataVars); err != nil {
			return err
		}
	}
	return nil
}

func (g Group) checkMembers(functions, dataVars map[Addr]bool) error {
	for _, a := range g.Functions {
		if !functions[a] {
			return fmt.Errorf("%w: group %q function %#x", ErrUnknownMember, g.Name, uint64(a))
		}
	}
	for _, a := range g.DataVars {
		if !dataVars[a] {
			return fmt.Errorf("%w: group %q data var %#x", ErrUnknownMember, g.Name, uint64(a))
		}
	}
	for _, c := range g.Children {
		if err := c.checkMembers(functions, dataVars); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a snapshot from r.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Encode writes s to w.
func Encode(w io.Writer, s *Snapshot) error {
	if s.Version == 0 {
		s.Version = Version
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return enc.Close()
}

// Load reads a snapshot file.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Save writes a snapshot file.
func Save(path string, s *Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := Encode(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
