package router

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"git.fiblab.net/sim/evacuation/router/algo"
	"github.com/sirupsen/logrus"
)

// 排除集合中属于该层的节点，排序后拼接作为缓存签名
func exclusionSignature(level int, excluded map[NodeKey]struct{}) string {
	ids := make([]string, 0)
	for k := range excluded {
		if k.Floor == level {
			ids = append(ids, k.ID)
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func (r *Router) options(excluded map[NodeKey]struct{}) algo.Options[NodeKey] {
	return algo.Options[NodeKey]{
		Excluded:  excluded,
		MaxLength: r.cfg.MaxPathLength,
		Budget:    r.cfg.EnumerationBudget,
	}
}

// 层内从source到该层目标的候选路径（带代价与中心性），结果按楼层缓存
func (r *Router) FloorPaths(level int, source NodeKey, excluded map[NodeKey]struct{}) ([]algo.ScoredPath[NodeKey], error) {
	g, ok := r.floors[level]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFloor, level)
	}
	if !g.Has(source) {
		return nil, fmt.Errorf("%w: %v on floor %d", algo.ErrUnknownNode, source, level)
	}
	targets, err := r.reachableTargets(level, excluded)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}
	for _, t := range targets {
		if t == source {
			// 已在目标处
			return []algo.ScoredPath[NodeKey]{{Path: []NodeKey{source}}}, nil
		}
	}
	cache, _ := r.caches.Load(level)
	sig := exclusionSignature(level, excluded)
	key := source.ID + "|" + sig
	if cache != nil {
		if paths, ok := cache.Get(key); ok {
			return paths, nil
		}
	}

	var res algo.SearchResult[NodeKey]
	if sig == "" {
		res = r.unrestrictedSearch(g, source, targets)
	} else {
		res = g.EfficientSearch(source, targets, r.cfg.Gamma, r.options(excluded))
		if res.Relaxed {
			log.WithFields(logrus.Fields{"floor": level, "source": source}).
				Debugf("no path avoiding %s, fall back to unrestricted search", sig)
		}
	}
	if res.Truncated {
		log.WithFields(logrus.Fields{"floor": level, "source": source}).
			Warnf("path enumeration truncated at %d paths", r.cfg.EnumerationBudget)
	}
	paths := algo.ScorePaths(res.Efficient, algo.NodeCentrality(res.Efficient))
	if cache != nil {
		cache.Add(key, paths)
	}
	return paths, nil
}

// 不排除任何节点的搜索，读写路径记忆
func (r *Router) unrestrictedSearch(g *algo.SearchGraph[NodeKey], source NodeKey, targets []NodeKey) algo.SearchResult[NodeKey] {
	opts := r.options(nil)
	if r.memo == nil {
		return g.EfficientSearch(source, targets, r.cfg.Gamma, opts)
	}
	minCost, hit := math.Inf(1), false
	for _, t := range targets {
		rec, ok, err := r.memo.LoadPath(source, t)
		if err != nil {
			log.Warnf("failed to load path %v -> %v: %v", source, t, err)
			continue
		}
		if ok {
			minCost, hit = math.Min(minCost, rec.Cost), true
		}
	}
	if hit {
		res := g.BoundedSearch(source, targets, r.cfg.Gamma, minCost, opts)
		if len(res.Efficient) > 0 {
			return res
		}
		// 记忆与当前拓扑不一致，重新搜索
	}
	res := g.EfficientSearch(source, targets, r.cfg.Gamma, opts)
	// 每个目标记录一条代价最小的路径
	centrality := algo.NodeCentrality(res.Efficient)
	best := make(map[NodeKey]algo.CostedPath[NodeKey])
	for _, p := range res.Efficient {
		t := p.Path[len(p.Path)-1]
		if b, ok := best[t]; !ok || p.Cost < b.Cost {
			best[t] = p
		}
	}
	for t, p := range best {
		rec := PathRecord{
			Source:      source,
			Target:      t,
			Cost:        p.Cost,
			Path:        p.Path,
			Betweenness: algo.InteriorScore(p.Path, centrality),
		}
		if err := r.memo.SavePath(rec); err != nil {
			log.Warnf("failed to save path %v -> %v: %v", source, t, err)
		}
	}
	return res
}

// 层内搜索实际可用的目标：上层只保留下层能继续到达出口的连接节点
// 下层结果已由EnsureFloorCaches缓存
func (r *Router) reachableTargets(level int, excluded map[NodeKey]struct{}) ([]NodeKey, error) {
	if level == 0 {
		return r.exits, nil
	}
	targets := make([]NodeKey, 0, len(r.down[level]))
	for _, l := range r.down[level] {
		lower, err := r.FloorPaths(level-1, l.Lower, excluded)
		if err != nil {
			return nil, err
		}
		if len(lower) > 0 {
			targets = append(targets, l.Upper)
		}
	}
	return targets, nil
}

// 确保current层以下各层的缓存已计算：从current-1层到0层，起点为上层连接到达的节点
func (r *Router) EnsureFloorCaches(current int, excluded map[NodeKey]struct{}) error {
	for level := current - 1; level >= 0; level-- {
		for _, l := range r.down[level+1] {
			if _, err := r.FloorPaths(level, l.Lower, excluded); err != nil {
				return err
			}
		}
	}
	return nil
}
