package algo

import "math"

// 简单路径（无重复节点）的惰性迭代器，只能遍历一次
// 起点不受Excluded约束：调用方已经位于起点
type PathIterator[K comparable] struct {
	g       *SearchGraph[K]
	opts    Options[K]
	targets map[int]bool

	// DFS栈：路径、前缀代价、每层下一条待访问出边
	path   []int
	costs  []float64
	cursor []int
	onPath map[int]bool

	produced  int
	truncated bool
}

// 枚举source到targets中任一节点的所有简单有向路径，到达目标后继续向外搜索其他目标
func (g *SearchGraph[K]) SimplePaths(source K, targets []K, opts Options[K]) *PathIterator[K] {
	it := &PathIterator[K]{
		g:       g,
		opts:    opts,
		targets: make(map[int]bool, len(targets)),
		onPath:  make(map[int]bool),
	}
	start, ok := g.index[source]
	if !ok {
		return it
	}
	for _, t := range targets {
		if i, ok := g.index[t]; ok {
			it.targets[i] = true
		}
	}
	if len(it.targets) == 0 {
		return it
	}
	it.path = []int{start}
	it.costs = []float64{0}
	it.cursor = []int{0}
	it.onPath[start] = true
	return it
}

// 返回下一条路径及其代价，ok为false表示已耗尽
func (it *PathIterator[K]) Next() (path []K, cost float64, ok bool) {
	if it.opts.Budget > 0 && it.produced >= it.opts.Budget {
		if len(it.path) > 0 {
			it.truncated = true
		}
		it.path = nil
		return nil, 0, false
	}
	for len(it.path) > 0 {
		depth := len(it.path) - 1
		u := it.path[depth]
		if it.cursor[depth] >= len(it.g.edges[u]) {
			// 回溯
			delete(it.onPath, u)
			it.path = it.path[:depth]
			it.costs = it.costs[:depth]
			it.cursor = it.cursor[:depth]
			continue
		}
		e := it.g.edges[u][it.cursor[depth]]
		it.cursor[depth]++
		v := e.to
		if it.onPath[v] || it.opts.excluded(it.g.nodes[v].key) {
			continue
		}
		c := it.costs[depth] + e.cost
		if it.opts.MaxCost > 0 && c > it.opts.MaxCost+COST_EPSILON {
			continue
		}
		if it.opts.MaxLength > 0 && len(it.path)+1 > it.opts.MaxLength {
			continue
		}
		it.path = append(it.path, v)
		it.costs = append(it.costs, c)
		it.cursor = append(it.cursor, 0)
		it.onPath[v] = true
		if it.targets[v] {
			it.produced++
			return it.keys(), c, true
		}
	}
	return nil, 0, false
}

// 是否因达到Budget而提前结束
func (it *PathIterator[K]) Truncated() bool {
	return it.truncated
}

// 取出剩余所有路径
func (it *PathIterator[K]) Collect() []CostedPath[K] {
	out := make([]CostedPath[K], 0)
	for {
		p, c, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, CostedPath[K]{Path: p, Cost: c})
	}
}

func (it *PathIterator[K]) keys() []K {
	out := make([]K, len(it.path))
	for i, id := range it.path {
		out[i] = it.g.nodes[id].key
	}
	return out
}

// 搜索结果
type SearchResult[K comparable] struct {
	// 代价容差内的路径，按枚举顺序
	Efficient []CostedPath[K]
	// 最小代价
	MinCost float64
	// 排除集合下无路可走，已退回到不排除任何节点的搜索
	Relaxed bool
	// 枚举因Budget被截断
	Truncated bool
}

// 两阶段搜索：先排除opts.Excluded搜索，若无路径则不排除任何节点重试
// 优先安全，但在没有安全路径时保证可达
// 枚举以(1+gamma)*最短路代价为上限剪枝，结果与先全量枚举再过滤一致
func (g *SearchGraph[K]) EfficientSearch(source K, targets []K, gamma float64, opts Options[K]) SearchResult[K] {
	res := g.efficientSearch(source, targets, gamma, opts)
	if len(res.Efficient) == 0 && len(opts.Excluded) > 0 {
		relaxed := opts
		relaxed.Excluded = nil
		res = g.efficientSearch(source, targets, gamma, relaxed)
		res.Relaxed = true
	}
	return res
}

func (g *SearchGraph[K]) efficientSearch(source K, targets []K, gamma float64, opts Options[K]) SearchResult[K] {
	_, minCost := g.ShortestPath(source, targets, opts.Excluded)
	if math.IsInf(minCost, 1) {
		return SearchResult[K]{Efficient: []CostedPath[K]{}, MinCost: minCost}
	}
	return g.BoundedSearch(source, targets, gamma, minCost, opts)
}

// 已知最小代价时直接以(1+gamma)*minCost为上限枚举，跳过最短路计算
func (g *SearchGraph[K]) BoundedSearch(source K, targets []K, gamma, minCost float64, opts Options[K]) SearchResult[K] {
	bounded := opts
	bounded.MaxCost = (1 + gamma) * minCost
	if bounded.MaxCost <= 0 {
		// 零代价路径：用极小正数表示“只允许零代价”
		bounded.MaxCost = COST_EPSILON
	}
	if opts.MaxCost > 0 && opts.MaxCost < bounded.MaxCost {
		bounded.MaxCost = opts.MaxCost
	}
	it := g.SimplePaths(source, targets, bounded)
	candidates := it.Collect()
	efficient := EfficientPaths(candidates, gamma)
	return SearchResult[K]{
		Efficient: efficient,
		MinCost:   minCost,
		Truncated: it.Truncated(),
	}
}
