// Package ordinal encodes a vftable slot index and table size into an
// invisible prefix on a display name.
//
// An encoded name is
//
//	indexer×(slot+1) filler×(entries-slot) base
//
// With the default alphabet the indexer (U+200C) sorts after the filler
// (U+200B), so a plain lexicographic sort of encoded names lists functions
// in slot order.
package ordinal

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default marker runes.
const (
	DefaultIndexer = '\u200c' // zero width non-joiner
	DefaultFiller  = '\u200b' // zero width space
)

var (
	ErrSameMarker    = errors.New("ordinal: indexer and filler must differ")
	ErrVisibleMarker = errors.New("ordinal: marker is a visible character")
)

// Alphabet assigns the two marker roles to runes.
type Alphabet struct {
	Indexer rune
	Filler  rune
}

// DefaultAlphabet returns the zero-width alphabet.
func DefaultAlphabet() Alphabet {
	return Alphabet{Indexer: DefaultIndexer, Filler: DefaultFiller}
}

// Validate checks that both markers are distinct, valid and invisible in
// ordinary display.
func (a Alphabet) Validate() error {
	if a.Indexer == a.Filler {
		return ErrSameMarker
	}
	for _, r := range []rune{a.Indexer, a.Filler} {
		if !utf8.ValidRune(r) || !invisible(r) {
			return fmt.Errorf("%w: %U", ErrVisibleMarker, r)
		}
	}
	return nil
}

func invisible(r rune) bool {
	return unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Zs, r) && r != ' '
}

// Ordinal is the metadata carried by an encoded name.
type Ordinal struct {
	Slot    int // zero-based slot index
	Entries int // size of the table that encoded the name
}

// Encoder applies an Alphabet.
type Encoder struct {
	indexer rune
	filler  rune
}

// New returns an Encoder for a validated alphabet.
func New(a Alphabet) (*Encoder, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{indexer: a.Indexer, filler: a.Filler}, nil
}

// Default returns an Encoder using DefaultAlphabet.
func Default() *Encoder {
	return &Encoder{indexer: DefaultIndexer, filler: DefaultFiller}
}

// Decode reads the ordinal prefix of name. It returns false if name has
// no indexer run followed by a filler run at its start.
func (e *Encoder) Decode(name string) (Ordinal, bool) {
	k, rest := countLeading(name, e.indexer)
	if k == 0 {
		return Ordinal{}, false
	}
	m, _ := countLeading(rest, e.filler)
	if m == 0 {
		return Ordinal{}, false
	}
	return Ordinal{Slot: k - 1, Entries: k - 1 + m}, true
}

// Strip removes every leading marker rune and returns the base name.
func (e *Encoder) Strip(name string) string {
	return strings.TrimLeftFunc(name, e.isMarker)
}

// Encode labels name with slot and entries. The existing prefix is only
// replaced when entries is larger than the table size it already carries,
// so the largest table referencing a function wins regardless of order.
// The second result reports whether the name changed. Arguments outside
// 0 <= slot < entries leave the name untouched.
func (e *Encoder) Encode(name string, slot, entries int) (string, bool) {
	if slot < 0 || slot >= entries {
		return name, false
	}
	if cur, ok := e.Decode(name); ok && entries <= cur.Entries {
		return name, false
	}

	base := e.Strip(name)
	var b strings.Builder
	b.Grow(len(base) + (entries+1)*utf8.RuneLen(e.indexer))
	for i := 0; i <= slot; i++ {
		b.WriteRune(e.indexer)
	}
	for i := 0; i < entries-slot; i++ {
		b.WriteRune(e.filler)
	}
	b.WriteString(base)

	out := b.String()
	return out, out != name
}

// Label renders name for humans: "[slot/entries] base" when encoded,
// the stripped name otherwise.
func (e *Encoder) Label(name string) string {
	base := e.Strip(name)
	if o, ok := e.Decode(name); ok {
		return fmt.Sprintf("[%d/%d] %s", o.Slot, o.Entries, base)
	}
	return base
}

func (e *Encoder) isMarker(r rune) bool {
	return r == e.indexer || r == e.filler
}

func countLeading(s string, marker rune) (int, string) {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r != marker {
			break
		}
		n++
		s = s[size:]
	}
	return n, s
}
