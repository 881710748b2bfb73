package algo_test

import (
	"testing"

	"git.fiblab.net/sim/evacuation/router/algo"
	"github.com/stretchr/testify/assert"
)

func TestSimplePathsEnumeratesAll(t *testing.T) {
	g := grid3x3(t)

	paths := g.SimplePaths("A", []string{"I"}, algo.Options[string]{}).Collect()
	// 3x3网格角到角的简单路径数
	assert.Len(t, paths, 12)
	// 按邻接表顺序深度优先
	assert.Equal(t, []string{"A", "B", "E", "D", "I"}, paths[0].Path)
	assert.Equal(t, 12.0, paths[0].Cost)
	for _, p := range paths {
		assert.Equal(t, "A", p.Path[0])
		assert.Equal(t, "I", p.Path[len(p.Path)-1])
		seen := map[string]bool{}
		for _, n := range p.Path {
			assert.False(t, seen[n], "repeated node %s in %v", n, p.Path)
			seen[n] = true
		}
		cost, err := g.PathCost(p.Path)
		assert.NoError(t, err)
		assert.Equal(t, cost, p.Cost)
	}
}

func TestSimplePathsLazy(t *testing.T) {
	g := grid3x3(t)

	it := g.SimplePaths("A", []string{"I"}, algo.Options[string]{})
	first, _, ok := it.Next()
	assert.True(t, ok)
	assert.Equal(t, []string{"A", "B", "E", "D", "I"}, first)
	count := 1
	for {
		if _, _, ok := it.Next(); !ok {
			break
		}
		count++
	}
	assert.Equal(t, 12, count)
	// 不可重启
	_, _, ok = it.Next()
	assert.False(t, ok)
	assert.False(t, it.Truncated())
}

func TestSimplePathsExclusion(t *testing.T) {
	g := grid3x3(t)

	paths := g.SimplePaths("A", []string{"I"}, algo.Options[string]{Excluded: algo.ExclusionSet("E")}).Collect()
	assert.Len(t, paths, 2)
	for _, p := range paths {
		assert.NotContains(t, p.Path, "E")
	}

	// 起点本身被排除时仍可出发
	paths = g.SimplePaths("A", []string{"I"}, algo.Options[string]{Excluded: algo.ExclusionSet("A")}).Collect()
	assert.Len(t, paths, 12)

	// 排除目标
	paths = g.SimplePaths("A", []string{"I"}, algo.Options[string]{Excluded: algo.ExclusionSet("I")}).Collect()
	assert.Empty(t, paths)
}

func TestSimplePathsLimits(t *testing.T) {
	g := grid3x3(t)

	paths := g.SimplePaths("A", []string{"I"}, algo.Options[string]{MaxLength: 5}).Collect()
	assert.Len(t, paths, 6)

	paths = g.SimplePaths("A", []string{"I"}, algo.Options[string]{MaxCost: 12}).Collect()
	assert.Len(t, paths, 6)

	it := g.SimplePaths("A", []string{"I"}, algo.Options[string]{Budget: 2})
	paths = it.Collect()
	assert.Len(t, paths, 2)
	assert.True(t, it.Truncated())
}

func TestSimplePathsMultipleTargets(t *testing.T) {
	g := grid3x3(t)

	// 到达目标后继续搜索其他目标
	paths := g.SimplePaths("A", []string{"B", "C"}, algo.Options[string]{}).Collect()
	assert.Equal(t, []string{"A", "B"}, paths[0].Path)
	assert.Equal(t, []string{"A", "B", "E", "D", "C"}, paths[1].Path)

	assert.Empty(t, g.SimplePaths("Z", []string{"I"}, algo.Options[string]{}).Collect())
	assert.Empty(t, g.SimplePaths("A", []string{"Z"}, algo.Options[string]{}).Collect())
	assert.Empty(t, g.SimplePaths("A", nil, algo.Options[string]{}).Collect())
}

func TestEfficientSearch(t *testing.T) {
	g := grid3x3(t)

	res := g.EfficientSearch("A", []string{"I"}, 0.4, algo.Options[string]{})
	assert.False(t, res.Relaxed)
	assert.Equal(t, 12.0, res.MinCost)
	assert.Len(t, res.Efficient, 6)
	for _, p := range res.Efficient {
		assert.Equal(t, 12.0, p.Cost)
	}

	res = g.EfficientSearch("A", []string{"I"}, 0.4, algo.Options[string]{Excluded: algo.ExclusionSet("E")})
	assert.False(t, res.Relaxed)
	assert.Equal(t, []algo.CostedPath[string]{
		{Path: []string{"A", "B", "C", "D", "I"}, Cost: 12},
		{Path: []string{"A", "F", "G", "H", "I"}, Cost: 12},
	}, res.Efficient)

	// 出口的所有前驱都被排除，退回到不排除任何节点
	res = g.EfficientSearch("A", []string{"I"}, 0.4, algo.Options[string]{Excluded: algo.ExclusionSet("D", "H")})
	assert.True(t, res.Relaxed)
	assert.Len(t, res.Efficient, 6)

	// gamma足够大时包含更长的路径
	res = g.EfficientSearch("A", []string{"I"}, 0.5, algo.Options[string]{})
	assert.Len(t, res.Efficient, 10)
}
