package qualname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p := New("", nil)

	tests := []struct {
		name      string
		in        string
		width     uint64
		ok        bool
		namespace []string
		class     string
		ident     string
	}{
		{
			name:      "engine",
			in:        "Game::Render::Engine::vfTable",
			width:     16,
			ok:        true,
			namespace: []string{"Game", "Render"},
			class:     "Engine",
			ident:     "Engine (2)",
		},
		{
			name:      "single namespace",
			in:        "ui::Button::vfTable",
			width:     64,
			ok:        true,
			namespace: []string{"ui"},
			class:     "Button",
			ident:     "Button (8)",
		},
		{
			name:      "msvc spelling",
			in:        "net::Socket::`vftable'",
			width:     40,
			ok:        true,
			namespace: []string{"net"},
			class:     "Socket",
			ident:     "Socket (5)",
		},
		{
			name:      "secondary base",
			in:        "net::TlsSocket::`vftable'{for `net::Stream'}",
			width:     24,
			ok:        true,
			namespace: []string{"net"},
			class:     "TlsSocket",
			ident:     "TlsSocket (3)",
		},
		{
			name:      "template argument keeps separator",
			in:        "std::vector<a::b>::vfTable",
			width:     8,
			ok:        true,
			namespace: []string{"std"},
			class:     "vector<a::b>",
			ident:     "vector<a::b> (1)",
		},
		{name: "class only", in: "Engine::vfTable", width: 16},
		{name: "no discriminator", in: "Game::Render::Engine", width: 16},
		{name: "discriminator not last", in: "Game::vfTable::Engine", width: 16},
		{name: "empty segment", in: "Game::::vfTable", width: 16},
		{name: "empty", in: "", width: 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Parse(tt.in, tt.width)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.namespace, got.Namespace)
			assert.Equal(t, tt.class, got.Class)
			assert.Equal(t, tt.ident, got.Ident)
		})
	}
}

func TestSegments(t *testing.T) {
	p := New("", nil)
	n, ok := p.Parse("A::B::C::D::vfTable", 24)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C", "D (3)"}, n.Segments())
}

func TestCustomSeparatorAndDiscriminator(t *testing.T) {
	p := New(".", []string{"vtbl"})

	n, ok := p.Parse("pkg.Widget.vtbl", 32)
	require.True(t, ok)
	assert.Equal(t, []string{"pkg"}, n.Namespace)
	assert.Equal(t, "Widget (4)", n.Ident)

	_, ok = p.Parse("pkg::Widget::vfTable", 32)
	assert.False(t, ok)
}
