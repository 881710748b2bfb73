package algo

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// 无向视图，节点ID为图内下标
func (g *SearchGraph[K]) undirectedView() *simple.UndirectedGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.undirected != nil {
		return g.undirected
	}
	ug := simple.NewUndirectedGraph()
	for i := range g.nodes {
		ug.AddNode(simple.Node(i))
	}
	for u, es := range g.edges {
		for _, e := range es {
			if u == e.to {
				continue
			}
			ug.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(e.to)})
		}
	}
	g.undirected = ug
	return ug
}

// 无视边方向，返回与key距离为1..maxDepth跳的节点及其跳数（不含key自身）
func (g *SearchGraph[K]) Rings(key K, maxDepth int) map[K]int {
	i, ok := g.index[key]
	if !ok || maxDepth <= 0 {
		return map[K]int{}
	}
	ug := g.undirectedView()
	rings := make(map[K]int)
	bf := traverse.BreadthFirst{}
	bf.Walk(ug, ug.Node(int64(i)), func(n graph.Node, d int) bool {
		if d > maxDepth {
			return true
		}
		if d > 0 {
			rings[g.nodes[n.ID()].key] = d
		}
		return false
	})
	return rings
}
