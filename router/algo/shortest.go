package algo

import (
	"container/heap"
	"math"

	"github.com/samber/lo"
)

// Dijkstra求source到任一target的最短路，跳过excluded中的节点
// 不可达时返回nil和+Inf
func (g *SearchGraph[K]) ShortestPath(source K, targets []K, excluded map[K]struct{}) ([]K, float64) {
	start, ok := g.index[source]
	if !ok {
		return nil, math.Inf(0)
	}
	isExcluded := func(i int) bool {
		if excluded == nil {
			return false
		}
		_, ok := excluded[g.nodes[i].key]
		return ok
	}
	// 起点不受excluded约束
	isTarget := make(map[int]bool, len(targets))
	for _, t := range targets {
		if i, ok := g.index[t]; ok && !isExcluded(i) {
			isTarget[i] = true
		}
	}
	if len(isTarget) == 0 {
		return nil, math.Inf(0)
	}

	openSet := make(PriorityQueue, 1)
	openSetMap := make(map[int]*Item, 1) // openSet value -> openSet item
	cameFrom := make(map[int]int)
	gScore := map[int]float64{start: 0}
	closed := make(map[int]bool)
	openSet[0] = &Item{Value: start, Priority: 0, Index: 0}
	openSetMap[start] = openSet[0]
	heap.Init(&openSet)
	for openSet.Len() > 0 {
		cur := heap.Pop(&openSet).(*Item).Value
		delete(openSetMap, cur)
		if closed[cur] {
			continue
		}
		closed[cur] = true
		if isTarget[cur] {
			return g.reconstructPath(cameFrom, cur), gScore[cur]
		}
		for _, e := range g.edges[cur] {
			if closed[e.to] || isExcluded(e.to) {
				continue
			}
			tentative := gScore[cur] + e.cost
			if s, ok := gScore[e.to]; ok && tentative >= s {
				continue
			}
			cameFrom[e.to] = cur
			gScore[e.to] = tentative
			if item, ok := openSetMap[e.to]; ok {
				// 已在堆中，修改其优先级
				item.Priority = tentative
				heap.Fix(&openSet, item.Index)
			} else {
				item := &Item{Value: e.to, Priority: tentative}
				heap.Push(&openSet, item)
				openSetMap[e.to] = item
			}
		}
	}
	return nil, math.Inf(0)
}

func (g *SearchGraph[K]) reconstructPath(cameFrom map[int]int, cur int) []K {
	pathBeforeReversed := []K{g.nodes[cur].key}
	for {
		from, ok := cameFrom[cur]
		if !ok {
			break
		}
		cur = from
		pathBeforeReversed = append(pathBeforeReversed, g.nodes[cur].key)
	}
	return lo.Reverse(pathBeforeReversed)
}
