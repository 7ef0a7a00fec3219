// Package qualname splits flat vftable symbol names into a namespace path
// and a class identifier.
package qualname

import (
	"strconv"
	"strings"
)

// DefaultSeparator separates namespace segments.
const DefaultSeparator = "::"

// DefaultDiscriminators are the trailing segments that mark a vftable.
var DefaultDiscriminators = []string{"vfTable", "`vftable'"}

// Name is a parsed vftable symbol name.
type Name struct {
	// Namespace holds the enclosing scopes, outermost first.
	Namespace []string

	// Class is the bare class name (the segment before the discriminator).
	Class string

	// Ident disambiguates same-named classes by table width:
	// "<Class> (<width/8>)".
	Ident string
}

// Segments returns the group path below the root: namespaces then Ident.
func (n Name) Segments() []string {
	out := make([]string, 0, len(n.Namespace)+1)
	out = append(out, n.Namespace...)
	return append(out, n.Ident)
}

// Parser recognizes vftable names.
type Parser struct {
	sep            string
	discriminators []string
}

// New returns a Parser. Empty arguments select the defaults.
func New(sep string, discriminators []string) *Parser {
	if sep == "" {
		sep = DefaultSeparator
	}
	if len(discriminators) == 0 {
		discriminators = DefaultDiscriminators
	}
	return &Parser{sep: sep, discriminators: discriminators}
}

// Parse splits name. byteWidth is the declared size of the symbol, not
// something read from the name. It returns false when the name does not end
// in a discriminator or has fewer than two segments before it.
func (p *Parser) Parse(name string, byteWidth uint64) (Name, bool) {
	segs := p.split(name)
	if len(segs) < 3 || !p.isDiscriminator(segs[len(segs)-1]) {
		return Name{}, false
	}

	scope := segs[:len(segs)-1]
	for _, s := range scope {
		if s == "" {
			return Name{}, false
		}
	}

	class := scope[len(scope)-1]
	return Name{
		Namespace: append([]string(nil), scope[:len(scope)-1]...),
		Class:     class,
		Ident:     class + " (" + strconv.FormatUint(byteWidth/8, 10) + ")",
	}, true
}

func (p *Parser) isDiscriminator(seg string) bool {
	// `vftable'{for `Base'} names the table a class keeps for a secondary base.
	if i := strings.Index(seg, "{for "); i > 0 && strings.HasSuffix(seg, "}") {
		seg = seg[:i]
	}
	for _, d := range p.discriminators {
		if seg == d {
			return true
		}
	}
	return false
}

// split cuts name at every separator that is not nested inside template
// arguments or a qualifier in braces.
func (p *Parser) split(name string) []string {
	var segs []string
	depth := 0
	start := 0
	for i := 0; i < len(name); {
		switch name[i] {
		case '<', '{':
			depth++
		case '>', '}':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && strings.HasPrefix(name[i:], p.sep) {
			segs = append(segs, name[start:i])
			i += len(p.sep)
			start = i
			continue
		}
		i++
	}
	return append(segs, name[start:])
}
