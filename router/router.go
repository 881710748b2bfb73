package router

import (
	"errors"
	"fmt"

	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/router/algo"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

var ErrUnknownFloor = errors.New("unknown floor")

type Config struct {
	// 代价容差，保留代价不超过(1+Gamma)*最小代价的路径
	Gamma float64
	// 风险不低于该值的节点视为危险
	RiskThreshold float64
	// 路径最多包含的节点数，0表示不限制
	MaxPathLength int
	// 单次查询最多枚举的路径数，0表示不限制
	EnumerationBudget int
	// 每层缓存的查询数
	CacheSize int
}

func DefaultConfig() Config {
	return Config{
		Gamma:             0.4,
		RiskThreshold:     0.5,
		MaxPathLength:     algo.DEFAULT_MAX_PATH_LENGTH,
		EnumerationBudget: algo.DEFAULT_ENUMERATION_BUDGET,
		CacheSize:         DEFAULT_CACHE_SIZE,
	}
}

const DEFAULT_CACHE_SIZE = 4096

// 楼层间连接（上层节点 -> 下层节点）
type Link struct {
	Upper NodeKey
	Lower NodeKey
	Cost  float64
}

// 已计算路径的持久化记录，每个(起点,终点)一条
type PathRecord struct {
	Source      NodeKey
	Target      NodeKey
	Cost        float64
	Path        []NodeKey
	Betweenness float64
}

// 路径记忆：拓扑不变时跨运行复用最小代价
type PathMemo interface {
	LoadPath(source, target NodeKey) (PathRecord, bool, error)
	SavePath(rec PathRecord) error
}

type Option func(r *Router)

func WithPathMemo(m PathMemo) Option {
	return func(r *Router) {
		r.memo = m
	}
}

type floorCache = lru.Cache[string, []algo.ScoredPath[NodeKey]]

type Router struct {
	cfg Config

	// 全楼图（含楼层间连接边），用于邻居查询与风险传播
	graph *algo.SearchGraph[NodeKey]
	// 各层子图，用于层内路径枚举
	floors map[int]*algo.SearchGraph[NodeKey]
	// 上层节点 -> 连接
	links map[NodeKey]Link
	// 楼层 -> 通往下一层的连接
	down     map[int][]Link
	exits    []NodeKey
	topFloor int

	// 楼层 -> (起点|排除集合签名) -> 候选路径
	caches *xsync.MapOf[int, *floorCache]
	memo   PathMemo
}

func New(l *layout.Layout, cfg Config, opts ...Option) (*Router, error) {
	g, err := l.Graph()
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DEFAULT_CACHE_SIZE
	}
	r := &Router{
		cfg:      cfg,
		graph:    g,
		floors:   make(map[int]*algo.SearchGraph[NodeKey]),
		links:    make(map[NodeKey]Link),
		down:     make(map[int][]Link),
		exits:    l.Exits(),
		topFloor: l.TopFloor(),
		caches:   xsync.NewMapOf[int, *floorCache](),
	}
	for _, f := range l.Floors {
		level := f.Level
		r.floors[level] = g.Subgraph(func(_ NodeKey, attr algo.NodeAttr) bool {
			return attr.Floor == level
		})
		cache, err := lru.New[string, []algo.ScoredPath[NodeKey]](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create path cache for floor %d: %w", level, err)
		}
		r.caches.Store(level, cache)
	}
	for _, c := range l.Connections {
		link := Link{Upper: c.Upper, Lower: c.Lower, Cost: c.Cost}
		r.links[c.Upper] = link
		r.down[c.Upper.Floor] = append(r.down[c.Upper.Floor], link)
	}
	for _, o := range opts {
		o(r)
	}
	log.Infof("router built: %d floors, %d nodes, %d links, %d exits",
		len(r.floors), g.Len(), len(r.links), len(r.exits))
	return r, nil
}

// getter

func (r *Router) Config() Config {
	return r.cfg
}

func (r *Router) Graph() *algo.SearchGraph[NodeKey] {
	return r.graph
}

func (r *Router) FloorGraph(level int) (*algo.SearchGraph[NodeKey], bool) {
	g, ok := r.floors[level]
	return g, ok
}

func (r *Router) Exits() []NodeKey {
	return r.exits
}

func (r *Router) TopFloor() int {
	return r.topFloor
}

func (r *Router) Has(k NodeKey) bool {
	return r.graph.Has(k)
}

func (r *Router) IsStairs(k NodeKey) bool {
	attr, ok := r.graph.Attr(k)
	return ok && attr.IsStairs
}

func (r *Router) IsExit(k NodeKey) bool {
	for _, e := range r.exits {
		if e == k {
			return true
		}
	}
	return false
}

func (r *Router) Link(upper NodeKey) (Link, bool) {
	l, ok := r.links[upper]
	return l, ok
}

// 层内搜索的目标：0层为出口，其余为通往下一层的连接节点
func (r *Router) Targets(level int) []NodeKey {
	if level == 0 {
		return r.exits
	}
	targets := make([]NodeKey, 0, len(r.down[level]))
	for _, l := range r.down[level] {
		targets = append(targets, l.Upper)
	}
	return targets
}

// 清空所有楼层的路径缓存
func (r *Router) ResetCaches() {
	r.caches.Range(func(_ int, c *floorCache) bool {
		c.Purge()
		return true
	})
}

// close
func (r *Router) Close() {
	r.ResetCaches()
}
