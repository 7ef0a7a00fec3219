// Package demangle recovers scope-qualified names from MSVC decorated
// symbols. Only the name is rendered: calling conventions, parameter lists
// and return types are dropped, so "?Init@Engine@Game@@UEAAXXZ" becomes
// "Game::Engine::Init".
package demangle

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrEmptyInput      = errors.New("demangle: empty input")
	ErrInvalidMangled  = errors.New("demangle: invalid mangled name")
	ErrUnexpectedEnd   = errors.New("demangle: unexpected end of input")
	ErrInvalidBackref  = errors.New("demangle: invalid back-reference")
	ErrUnknownOperator = errors.New("demangle: unknown operator")
	ErrUnsupported     = errors.New("demangle: unsupported name form")
)

// ThunkPrefix marks this-adjusting thunks.
const ThunkPrefix = "[thunk]:"

var operators = map[byte]string{
	'2': "operator new",
	'3': "operator delete",
	'4': "operator=",
	'5': "operator>>",
	'6': "operator<<",
	'7': "operator!",
	'8': "operator==",
	'9': "operator!=",
	'A': "operator[]",
	'C': "operator->",
	'D': "operator*",
	'E': "operator++",
	'F': "operator--",
	'G': "operator-",
	'H': "operator+",
	'I': "operator&",
	'J': "operator->*",
	'K': "operator/",
	'L': "operator%",
	'M': "operator<",
	'N': "operator<=",
	'O': "operator>",
	'P': "operator>=",
	'Q': "operator,",
	'R': "operator()",
	'S': "operator~",
	'T': "operator^",
	'U': "operator|",
	'V': "operator&&",
	'W': "operator||",
	'X': "operator*=",
	'Y': "operator+=",
	'Z': "operator-=",
}

// special names reached through "??_".
var specials = map[byte]string{
	'7': "`vftable'",
	'8': "`vbtable'",
	'D': "`vbase destructor'",
	'E': "`vector deleting destructor'",
	'F': "`default constructor closure'",
	'G': "`scalar deleting destructor'",
	'S': "`local vftable'",
	'U': "operator new[]",
	'V': "operator delete[]",
}

// IsMangled reports whether name is an MSVC decorated C++ name.
func IsMangled(name string) bool {
	return strings.HasPrefix(name, "?")
}

// Demangle returns the qualified name of decorated. Names that are not
// decorated are returned unchanged. On error the input is returned along
// with the error.
func Demangle(decorated string) (string, error) {
	if decorated == "" {
		return "", ErrEmptyInput
	}
	if !IsMangled(decorated) {
		return decorated, nil
	}
	d := &demangler{in: decorated, pos: 1}
	out, err := d.parse()
	if err != nil {
		return decorated, err
	}
	return out, nil
}

type demangler struct {
	in    string
	pos   int
	names []string
}

func (d *demangler) peek() byte {
	if d.pos >= len(d.in) {
		return 0
	}
	return d.in[d.pos]
}

func (d *demangler) next() (byte, error) {
	if d.pos >= len(d.in) {
		return 0, ErrUnexpectedEnd
	}
	c := d.in[d.pos]
	d.pos++
	return c, nil
}

func (d *demangler) expect(c byte) error {
	got, err := d.next()
	if err != nil {
		return err
	}
	if got != c {
		return ErrInvalidMangled
	}
	return nil
}

func (d *demangler) parse() (string, error) {
	if d.peek() != '?' {
		scope, err := d.qualifiedName()
		if err != nil {
			return "", err
		}
		return d.encoding(join(scope))
	}
	if strings.HasPrefix(d.in[d.pos:], "?$") {
		return "", ErrUnsupported
	}

	d.pos++
	code, err := d.next()
	if err != nil {
		return "", err
	}
	switch code {
	case '0', '1':
		scope, err := d.qualifiedName()
		if err != nil {
			return "", err
		}
		class := scope[len(scope)-1]
		if code == '1' {
			class = "~" + class
		}
		return d.encoding(join(append(scope, class)))
	case '_':
		return d.special()
	case 'B':
		return "", ErrUnsupported // conversion operators name a type
	}

	op, ok := operators[code]
	if !ok {
		return "", ErrUnknownOperator
	}
	scope, err := d.qualifiedName()
	if err != nil {
		return "", err
	}
	return d.encoding(join(append(scope, op)))
}

func (d *demangler) special() (string, error) {
	code, err := d.next()
	if err != nil {
		return "", err
	}
	if code == '9' {
		return d.vcall()
	}
	name, ok := specials[code]
	if !ok {
		return "", ErrUnsupported
	}
	scope, err := d.qualifiedName()
	if err != nil {
		return "", err
	}
	out := join(append(scope, name))
	if code != '7' && code != '8' && code != 'S' {
		return d.encoding(out)
	}

	// tables: storage class, qualifier, then an optional {for `Base'}
	if c, err := d.next(); err != nil {
		return "", err
	} else if c != '6' && c != '7' {
		return "", ErrInvalidMangled
	}
	if _, err := d.next(); err != nil {
		return "", err
	}
	if d.peek() == '@' || d.peek() == 0 {
		return out, nil
	}
	base, err := d.qualifiedName()
	if err != nil {
		return "", err
	}
	return out + "{for `" + join(base) + "'}", nil
}

// vcall renders "??_9Class@@$BA@AA" style virtual call thunks.
func (d *demangler) vcall() (string, error) {
	scope, err := d.qualifiedName()
	if err != nil {
		return "", err
	}
	if err := d.expect('$'); err != nil {
		return "", err
	}
	if err := d.expect('B'); err != nil {
		return "", err
	}
	off, err := d.number()
	if err != nil {
		return "", err
	}
	return ThunkPrefix + join(scope) + "::`vcall'{" + strconv.FormatInt(off, 10) + ",{flat}}'", nil
}

// encoding reads the access code after a function name. Plain functions and
// data keep name; this-adjusting thunks are prefixed and get their
// adjustment appended.
func (d *demangler) encoding(name string) (string, error) {
	c := d.peek()
	switch c {
	case 'G', 'H', 'O', 'P', 'W', 'X':
		d.pos++
		off, err := d.number()
		if err != nil {
			return "", err
		}
		return ThunkPrefix + name + "`adjustor{" + offset(off) + "}'", nil
	case '$':
		d.pos++
		kind, err := d.next()
		if err != nil {
			return "", err
		}
		count := 2
		label := "vtordisp"
		if kind == 'R' {
			if _, err := d.next(); err != nil { // access code
				return "", err
			}
			count, label = 4, "vtordispex"
		} else if kind < '0' || kind > '5' {
			return "", ErrUnsupported
		}
		nums := make([]string, count)
		for i := range nums {
			n, err := d.number()
			if err != nil {
				return "", err
			}
			nums[i] = offset(n)
		}
		return ThunkPrefix + name + "`" + label + "{" + strings.Join(nums, ",") + "}'", nil
	}
	return name, nil
}

// qualifiedName reads fragments up to the "@" that closes the name and
// returns them outermost first.
func (d *demangler) qualifiedName() ([]string, error) {
	var frags []string
	for {
		c := d.peek()
		if c == 0 {
			return nil, ErrUnexpectedEnd
		}
		if c == '@' {
			d.pos++
			break
		}
		f, err := d.fragment()
		if err != nil {
			return nil, err
		}
		frags = append(frags, f)
	}
	if len(frags) == 0 {
		return nil, ErrInvalidMangled
	}
	for i, j := 0, len(frags)-1; i < j; i, j = i+1, j-1 {
		frags[i], frags[j] = frags[j], frags[i]
	}
	return frags, nil
}

func (d *demangler) fragment() (string, error) {
	c := d.peek()
	switch {
	case c >= '0' && c <= '9':
		d.pos++
		i := int(c - '0')
		if i >= len(d.names) {
			return "", ErrInvalidBackref
		}
		return d.names[i], nil
	case strings.HasPrefix(d.in[d.pos:], "?A"):
		// anonymous namespace: ?A0x<hash>@
		end := strings.IndexByte(d.in[d.pos:], '@')
		if end < 0 {
			return "", ErrUnexpectedEnd
		}
		d.pos += end + 1
		d.remember("`anonymous namespace'")
		return "`anonymous namespace'", nil
	case c == '?':
		return "", ErrUnsupported // templates and local scopes
	}

	end := strings.IndexByte(d.in[d.pos:], '@')
	if end < 0 {
		return "", ErrUnexpectedEnd
	}
	if end == 0 {
		return "", ErrInvalidMangled
	}
	name := d.in[d.pos : d.pos+end]
	d.pos += end + 1
	d.remember(name)
	return name, nil
}

func (d *demangler) remember(name string) {
	if len(d.names) < 10 {
		d.names = append(d.names, name)
	}
}

// number decodes an encoded integer: '0'..'9' stand for 1..10, otherwise
// hex digits 'A'..'P' end with '@'. A leading '?' negates.
func (d *demangler) number() (int64, error) {
	neg := false
	if d.peek() == '?' {
		neg = true
		d.pos++
	}
	c, err := d.next()
	if err != nil {
		return 0, err
	}
	var v int64
	if c >= '0' && c <= '9' {
		v = int64(c-'0') + 1
	} else {
		for c != '@' {
			if c < 'A' || c > 'P' {
				return 0, ErrInvalidMangled
			}
			v = v*16 + int64(c-'A')
			if c, err = d.next(); err != nil {
				return 0, err
			}
		}
	}
	if neg {
		v = -v
	}
	return v, nil
}

// offset renders a this adjustment, which the encoding stores as a 32-bit
// two's complement value.
func offset(n int64) string {
	return strconv.FormatInt(int64(int32(n)), 10)
}

func join(scope []string) string {
	return strings.Join(scope, "::")
}
