package algo

import (
	"math"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/graph/simple"
)

type node[K comparable] struct {
	key  K
	attr NodeAttr
	risk float64
}

type edge struct {
	to   int
	cost float64
}

type SearchGraph[K comparable] struct {
	// 邻接表，按插入顺序保存出边，保证枚举顺序稳定
	// 初始化完成后拓扑不变，因此不需要考虑并发问题
	// 但risk会在每个tick被改变，因此需要考虑并发问题
	edges [][]edge
	// 出边索引 from -> to -> edges[from]下标
	lookup []map[int]int
	// 入边，用于无向邻居
	reverse [][]int
	nodes   []node[K]
	index   map[K]int

	// 无向视图（gonum），拓扑改变后重建
	undirected *simple.UndirectedGraph

	mu *xsync.RBMutex
}

func NewSearchGraph[K comparable]() *SearchGraph[K] {
	return &SearchGraph[K]{
		edges:   make([][]edge, 0),
		lookup:  make([]map[int]int, 0),
		reverse: make([][]int, 0),
		nodes:   make([]node[K], 0),
		index:   make(map[K]int),
		mu:      xsync.NewRBMutex(),
	}
}

// 加入节点，若已存在则更新属性并返回原下标
func (g *SearchGraph[K]) InitNode(key K, attr NodeAttr) int {
	if i, ok := g.index[key]; ok {
		g.nodes[i].attr = attr
		return i
	}
	g.nodes = append(g.nodes, node[K]{key: key, attr: attr})
	g.edges = append(g.edges, make([]edge, 0))
	g.lookup = append(g.lookup, make(map[int]int))
	g.reverse = append(g.reverse, make([]int, 0))
	g.index[key] = len(g.nodes) - 1
	g.undirected = nil
	return len(g.nodes) - 1
}

// 加入有向边，重复加入时覆盖代价
func (g *SearchGraph[K]) InitEdge(from, to K, cost float64) error {
	u, ok := g.index[from]
	if !ok {
		return ErrUnknownNode
	}
	v, ok := g.index[to]
	if !ok {
		return ErrUnknownNode
	}
	if cost < 0 || math.IsNaN(cost) {
		return ErrNegativeCost
	}
	if e, ok := g.lookup[u][v]; ok {
		g.edges[u][e].cost = cost
		return nil
	}
	g.lookup[u][v] = len(g.edges[u])
	g.edges[u] = append(g.edges[u], edge{to: v, cost: cost})
	g.reverse[v] = append(g.reverse[v], u)
	g.undirected = nil
	return nil
}

// getter

func (g *SearchGraph[K]) Len() int {
	return len(g.nodes)
}

func (g *SearchGraph[K]) Has(key K) bool {
	_, ok := g.index[key]
	return ok
}

// 按加入顺序返回所有节点
func (g *SearchGraph[K]) Keys() []K {
	return lo.Map(g.nodes, func(n node[K], _ int) K { return n.key })
}

func (g *SearchGraph[K]) Attr(key K) (NodeAttr, bool) {
	i, ok := g.index[key]
	if !ok {
		return NodeAttr{}, false
	}
	return g.nodes[i].attr, true
}

// 有向后继，按加边顺序
func (g *SearchGraph[K]) Successors(key K) []K {
	i, ok := g.index[key]
	if !ok {
		return nil
	}
	return lo.Map(g.edges[i], func(e edge, _ int) K { return g.nodes[e.to].key })
}

// 无向邻居（后继在前，前驱在后，去重）
func (g *SearchGraph[K]) Neighbors(key K) []K {
	i, ok := g.index[key]
	if !ok {
		return nil
	}
	ids := lo.Map(g.edges[i], func(e edge, _ int) int { return e.to })
	ids = lo.Uniq(append(ids, g.reverse[i]...))
	return lo.FilterMap(ids, func(id int, _ int) (K, bool) {
		return g.nodes[id].key, id != i
	})
}

func (g *SearchGraph[K]) EdgeCost(from, to K) (float64, bool) {
	u, ok := g.index[from]
	if !ok {
		return 0, false
	}
	v, ok := g.index[to]
	if !ok {
		return 0, false
	}
	e, ok := g.lookup[u][v]
	if !ok {
		return 0, false
	}
	return g.edges[u][e].cost, true
}

// 路径代价：相邻节点间边权之和，缺边返回MissingEdgeError
func (g *SearchGraph[K]) PathCost(path []K) (float64, error) {
	cost := 0.0
	for i := 0; i+1 < len(path); i++ {
		c, ok := g.EdgeCost(path[i], path[i+1])
		if !ok {
			return 0, &MissingEdgeError{From: path[i], To: path[i+1]}
		}
		cost += c
	}
	return cost, nil
}

// 按节点属性筛选出子图（保留两端都在子图内的边）
func (g *SearchGraph[K]) Subgraph(keep func(K, NodeAttr) bool) *SearchGraph[K] {
	sub := NewSearchGraph[K]()
	for _, n := range g.nodes {
		if keep(n.key, n.attr) {
			sub.InitNode(n.key, n.attr)
			sub.nodes[sub.index[n.key]].risk = n.risk
		}
	}
	for u, es := range g.edges {
		from := g.nodes[u].key
		if !sub.Has(from) {
			continue
		}
		for _, e := range es {
			to := g.nodes[e.to].key
			if sub.Has(to) {
				_ = sub.InitEdge(from, to, e.cost)
			}
		}
	}
	return sub
}

// risk

func (g *SearchGraph[K]) Risk(key K) float64 {
	token := g.mu.RLock()
	defer g.mu.RUnlock(token)
	if i, ok := g.index[key]; ok {
		return g.nodes[i].risk
	}
	return 0
}

func (g *SearchGraph[K]) SetRisk(key K, risk float64) error {
	i, ok := g.index[key]
	if !ok {
		return ErrUnknownNode
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[i].risk = risk
	return nil
}

// 当前所有节点的风险拷贝
func (g *SearchGraph[K]) Risks() map[K]float64 {
	token := g.mu.RLock()
	defer g.mu.RUnlock(token)
	out := make(map[K]float64, len(g.nodes))
	for _, n := range g.nodes {
		out[n.key] = n.risk
	}
	return out
}

// 将快照写入图中的风险值，忽略图中不存在的节点
func (g *SearchGraph[K]) ApplyRisks(risks map[K]float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, r := range risks {
		if i, ok := g.index[k]; ok {
			g.nodes[i].risk = r
		}
	}
}
