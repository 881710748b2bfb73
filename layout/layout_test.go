package layout_test

import (
	"errors"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/evacuation/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoRooms = `
name: two-rooms
floors:
  - level: 0
    nodes:
      - {id: R1, x: 0, y: 0, risk: 0.2}
      - {id: R2, x: 3, y: 4}
      - {id: OUT, x: 3, y: 5}
    edges:
      - {from: R1, to: R2, bidirectional: true}
      - {from: R2, to: OUT, cost: 7}
    exits: [OUT]
`

func TestParse(t *testing.T) {
	l, err := layout.Parse([]byte(twoRooms))
	require.NoError(t, err)
	assert.Equal(t, "two-rooms", l.Name)
	assert.Equal(t, []layout.NodeKey{{Floor: 0, ID: "OUT"}}, l.Exits())

	g, err := l.Graph()
	require.NoError(t, err)
	// 未给出代价时取欧氏距离
	cost, ok := g.EdgeCost(layout.NodeKey{ID: "R1"}, layout.NodeKey{ID: "R2"})
	assert.True(t, ok)
	assert.Equal(t, 5.0, cost)
	cost, ok = g.EdgeCost(layout.NodeKey{ID: "R2"}, layout.NodeKey{ID: "R1"})
	assert.True(t, ok)
	assert.Equal(t, 5.0, cost)
	cost, _ = g.EdgeCost(layout.NodeKey{ID: "R2"}, layout.NodeKey{ID: "OUT"})
	assert.Equal(t, 7.0, cost)
	_, ok = g.EdgeCost(layout.NodeKey{ID: "OUT"}, layout.NodeKey{ID: "R2"})
	assert.False(t, ok)
	assert.Equal(t, 0.2, g.Risk(layout.NodeKey{ID: "R1"}))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(l *layout.Layout)
	}{
		{"unknown edge node", func(l *layout.Layout) {
			l.Floors[0].Edges = append(l.Floors[0].Edges, layout.Edge{From: "A", To: "Z"})
		}},
		{"unknown exit", func(l *layout.Layout) { l.Floors[0].Exits = []string{"Z"} }},
		{"no exit", func(l *layout.Layout) { l.Floors[0].Exits = nil }},
		{"duplicated node", func(l *layout.Layout) {
			l.Floors[0].Nodes = append(l.Floors[0].Nodes, layout.Node{ID: "A"})
		}},
		{"risk out of range", func(l *layout.Layout) { l.Floors[0].Nodes[0].Risk = 1.5 }},
		{"floor without stairs down", func(l *layout.Layout) { l.Connections = nil }},
		{"connection skips floor", func(l *layout.Layout) {
			l.Connections[0].Lower = layout.NodeKey{Floor: 1, ID: "A"}
		}},
		{"negative cost", func(l *layout.Layout) {
			c := -1.0
			l.Floors[0].Edges[0].Cost = &c
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l := layout.MultiFloor3x3()
			assert.NoError(t, l.Validate())
			c.mutate(l)
			err := l.Validate()
			assert.ErrorIs(t, err, layout.ErrInvalidLayout)
			_, err = l.Graph()
			assert.True(t, errors.Is(err, layout.ErrInvalidLayout))
		})
	}
}

func TestFixtures(t *testing.T) {
	l := layout.Simple3x3()
	g, err := l.Graph()
	require.NoError(t, err)
	assert.Equal(t, 9, g.Len())
	attr, ok := g.Attr(layout.NodeKey{ID: "I"})
	assert.True(t, ok)
	assert.True(t, attr.IsStairs)

	m := layout.MultiFloor3x3()
	assert.Equal(t, 1, m.TopFloor())
	g, err = m.Graph()
	require.NoError(t, err)
	assert.Equal(t, 18, g.Len())
	cost, ok := g.EdgeCost(layout.NodeKey{Floor: 1, ID: "I"}, layout.NodeKey{Floor: 0, ID: "I"})
	assert.True(t, ok)
	assert.Equal(t, 0.0, cost)
	assert.Len(t, m.ConnectionsDown(1), 1)
	assert.Empty(t, m.ConnectionsDown(0))
	assert.Equal(t, "1:I", layout.NodeKey{Floor: 1, ID: "I"}.String())
}

func TestLoadWithCache(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	download := func() (*layout.Layout, error) {
		calls++
		return layout.MultiFloor3x3(), nil
	}
	l, err := layout.LoadWithCache(dir, "building", download)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.FileExists(t, filepath.Join(dir, "building.yaml"))

	cached, err := layout.LoadWithCache(dir, "building", download)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, l.Name, cached.Name)
	assert.Equal(t, l.Connections, cached.Connections)
	assert.Len(t, cached.Floors, 2)

	// 不使用缓存
	_, err = layout.LoadWithCache("", "building", download)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := layout.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
