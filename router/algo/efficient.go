package algo

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// 保留代价不超过(1+gamma)*最小代价的路径，保持输入顺序
func EfficientPaths[K comparable](candidates []CostedPath[K], gamma float64) []CostedPath[K] {
	if len(candidates) == 0 {
		return []CostedPath[K]{}
	}
	minCost := lo.MinBy(candidates, func(a, b CostedPath[K]) bool {
		return a.Cost < b.Cost
	}).Cost
	limit := (1+gamma)*minCost + COST_EPSILON
	return lo.Filter(candidates, func(p CostedPath[K], _ int) bool {
		return p.Cost <= limit
	})
}

type endpoints[K comparable] struct {
	source, target K
}

// 节点中心性：对每个(起点,终点)组，每条路径给其内部节点（不含首尾）加1/该组路径数
func NodeCentrality[K comparable](paths []CostedPath[K]) map[K]float64 {
	groups := lo.GroupBy(lo.Filter(paths, func(p CostedPath[K], _ int) bool {
		return len(p.Path) > 0
	}), func(p CostedPath[K]) endpoints[K] {
		return endpoints[K]{source: p.Path[0], target: p.Path[len(p.Path)-1]}
	})
	centrality := make(map[K]float64)
	for _, group := range groups {
		share := 1 / float64(len(group))
		for _, p := range group {
			for _, n := range interior(p.Path) {
				centrality[n] += share
			}
		}
	}
	return centrality
}

// 路径内部节点得分之和，未出现在scores中的节点计0
func InteriorScore[K comparable](path []K, scores map[K]float64) float64 {
	return lo.SumBy(interior(path), func(n K) float64 { return scores[n] })
}

func interior[K comparable](path []K) []K {
	if len(path) <= 2 {
		return nil
	}
	return path[1 : len(path)-1]
}

// 计算每条路径的中心性得分
func ScorePaths[K comparable](paths []CostedPath[K], centrality map[K]float64) []ScoredPath[K] {
	return lo.Map(paths, func(p CostedPath[K], _ int) ScoredPath[K] {
		return ScoredPath[K]{Path: p.Path, Cost: p.Cost, Centrality: InteriorScore(p.Path, centrality)}
	})
}

// 按代价升序（稳定）
func SortByCost[K comparable](paths []ScoredPath[K]) {
	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].Cost < paths[j].Cost
	})
}

// 按中心性得分降序（稳定）
func SortByCentrality[K comparable](paths []ScoredPath[K]) {
	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].Centrality > paths[j].Centrality
	})
}

// 四舍五入到1位小数
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}
