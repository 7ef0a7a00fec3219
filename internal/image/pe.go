// Package image reads a PE image and its PDB and produces the program
// snapshot the sorter works on.
package image

import (
	"debug/pe"
	"fmt"
	"io"
	"sort"
)

// Section is a loaded image section.
type Section struct {
	Name string

	// Index is the 1-based section number PDB symbols refer to.
	Index int

	// VA is the absolute virtual address of the first byte.
	VA uint64

	// Data is the section's virtual extent; bytes past the raw data are zero.
	Data []byte

	Exec bool
}

// End returns the first address past the section.
func (s *Section) End() uint64 { return s.VA + uint64(len(s.Data)) }

// Contains reports whether va falls inside the section.
func (s *Section) Contains(va uint64) bool { return va >= s.VA && va < s.End() }

// Image is a mapped view of a PE file.
type Image struct {
	Base        uint64
	PointerSize int
	Sections    []Section
}

// Open loads the PE file at path.
func Open(path string) (*Image, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Msg: "not a PE file", Err: err}
	}
	defer f.Close()
	img, err := load(f)
	if err != nil {
		return nil, &FormatError{Path: path, Msg: "load", Err: err}
	}
	return img, nil
}

// NewImage loads a PE file from r.
func NewImage(r io.ReaderAt) (*Image, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, &FormatError{Path: "<reader>", Msg: "not a PE file", Err: err}
	}
	return load(f)
}

func load(f *pe.File) (*Image, error) {
	img := &Image{}
	switch h := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		img.Base, img.PointerSize = h.ImageBase, 8
	case *pe.OptionalHeader32:
		img.Base, img.PointerSize = uint64(h.ImageBase), 4
	default:
		return nil, fmt.Errorf("%w: no optional header", ErrUnsupportedMachine)
	}
	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64, pe.IMAGE_FILE_MACHINE_I386:
	default:
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnsupportedMachine, f.Machine)
	}

	if len(f.Sections) == 0 {
		return nil, ErrNoSections
	}
	for i, s := range f.Sections {
		raw, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", s.Name, err)
		}
		size := max(s.VirtualSize, uint32(len(raw)))
		data := make([]byte, size)
		copy(data, raw)
		img.Sections = append(img.Sections, Section{
			Name:  s.Name,
			Index: i + 1,
			VA:    img.Base + uint64(s.VirtualAddress),
			Data:  data,
			Exec:  s.Characteristics&(pe.IMAGE_SCN_MEM_EXECUTE|pe.IMAGE_SCN_CNT_CODE) != 0,
		})
	}
	return img, nil
}

// Section returns the section with the given 1-based index.
func (img *Image) Section(index uint16) (*Section, bool) {
	if index == 0 || int(index) > len(img.Sections) {
		return nil, false
	}
	return &img.Sections[index-1], true
}

// SectionAt returns the section holding va.
func (img *Image) SectionAt(va uint64) *Section {
	i := sort.Search(len(img.Sections), func(i int) bool { return img.Sections[i].End() > va })
	if i < len(img.Sections) && img.Sections[i].Contains(va) {
		return &img.Sections[i]
	}
	return nil
}

// IsCode reports whether va lies in an executable section.
func (img *Image) IsCode(va uint64) bool {
	s := img.SectionAt(va)
	return s != nil && s.Exec
}

// Pointer reads a pointer-sized little-endian value at va.
func (img *Image) Pointer(va uint64) (uint64, bool) {
	s := img.SectionAt(va)
	if s == nil || va+uint64(img.PointerSize) > s.End() {
		return 0, false
	}
	b := s.Data[va-s.VA:]
	var v uint64
	for i := img.PointerSize - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, true
}
