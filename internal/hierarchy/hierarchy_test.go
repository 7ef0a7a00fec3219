package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/classsort/host"
)

type createCall struct {
	name   string
	parent host.GroupID
}

type recordingCreator struct {
	calls  []createCall
	next   host.GroupID
	failOn string
}

func (c *recordingCreator) CreateGroup(_ context.Context, name string, parent host.GroupID) (host.GroupID, error) {
	if name == c.failOn {
		return 0, errors.New("boom")
	}
	c.calls = append(c.calls, createCall{name: name, parent: parent})
	c.next++
	return c.next + 100, nil
}

func TestEnsurePathCreatesOnce(t *testing.T) {
	ctx := context.Background()
	c := &recordingCreator{}
	b := New(c, "Classes", 1)

	engine, err := b.EnsurePath(ctx, []string{"Game", "Render", "Engine (2)"})
	require.NoError(t, err)
	assert.Equal(t, "Classes/Game/Render/Engine (2)", engine.Path)
	assert.Len(t, c.calls, 3)

	again, err := b.EnsurePath(ctx, []string{"Game", "Render", "Engine (2)"})
	require.NoError(t, err)
	assert.Same(t, engine, again)
	assert.Len(t, c.calls, 3)

	shader, err := b.EnsurePath(ctx, []string{"Game", "Render", "Shader (4)"})
	require.NoError(t, err)
	assert.Len(t, c.calls, 4)
	assert.Same(t, engine.Parent, shader.Parent)
	assert.Equal(t, createCall{name: "Shader (4)", parent: engine.Parent.ID}, c.calls[3])
}

func TestEnsurePathParentsChain(t *testing.T) {
	ctx := context.Background()
	c := &recordingCreator{}
	b := New(c, "Classes", 7)

	n, err := b.EnsurePath(ctx, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, host.GroupID(7), c.calls[0].parent)
	assert.Equal(t, n.Parent.ID, c.calls[1].parent)
	assert.Same(t, b.Root(), n.Parent.Parent)

	got, ok := b.Lookup("Classes/a")
	require.True(t, ok)
	assert.Same(t, n.Parent, got)
	assert.Equal(t, 3, b.Len())
}

func TestSameNameDifferentParents(t *testing.T) {
	ctx := context.Background()
	b := New(&recordingCreator{}, "Classes", 1)

	x, err := b.EnsurePath(ctx, []string{"a", "Node (3)"})
	require.NoError(t, err)
	y, err := b.EnsurePath(ctx, []string{"b", "Node (3)"})
	require.NoError(t, err)

	assert.NotSame(t, x, y)
	assert.NotEqual(t, x.ID, y.ID)
}

func TestChildrenSorted(t *testing.T) {
	ctx := context.Background()
	b := New(&recordingCreator{}, "Classes", 1)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := b.EnsurePath(ctx, []string{name})
		require.NoError(t, err)
	}

	var names []string
	for _, c := range b.Root().Children() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestEnsurePathCreatorError(t *testing.T) {
	b := New(&recordingCreator{failOn: "Broken (1)"}, "Classes", 1)

	_, err := b.EnsurePath(context.Background(), []string{"ns", "Broken (1)"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Classes/ns/Broken (1)")

	_, ok := b.Lookup("Classes/ns/Broken (1)")
	assert.False(t, ok)
}
