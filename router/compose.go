package router

import (
	"slices"

	"git.fiblab.net/sim/evacuation/router/algo"
)

// 从source出发到达出口的候选路径
// 先计算下方各层的缓存，再将当前层的路径经楼层间连接与下层缓存逐层拼接
// COST_EFFICIENT按总代价升序，CENTRALITY按总中心性降序
func (r *Router) Candidates(source NodeKey, algorithm Algorithm, excluded map[NodeKey]struct{}) ([]algo.ScoredPath[NodeKey], error) {
	candidates, err := r.compose(source, excluded)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 && len(excluded) > 0 {
		// 整条路线都无法避开排除节点时，放弃安全性保证可达
		log.WithField("source", source).Debugf("no composed route avoiding %d nodes, retry unrestricted", len(excluded))
		if candidates, err = r.compose(source, nil); err != nil {
			return nil, err
		}
	}
	// 缓存中的切片不能被排序改动
	candidates = slices.Clone(candidates)
	switch algorithm {
	case CENTRALITY:
		algo.SortByCentrality(candidates)
	default:
		algo.SortByCost(candidates)
	}
	return candidates, nil
}

func (r *Router) compose(source NodeKey, excluded map[NodeKey]struct{}) ([]algo.ScoredPath[NodeKey], error) {
	if err := r.EnsureFloorCaches(source.Floor, excluded); err != nil {
		return nil, err
	}
	candidates, err := r.FloorPaths(source.Floor, source, excluded)
	if err != nil {
		return nil, err
	}
	for level := source.Floor; level > 0 && len(candidates) > 0; level-- {
		composed := make([]algo.ScoredPath[NodeKey], 0)
		for _, c := range candidates {
			end := c.Path[len(c.Path)-1]
			link, ok := r.links[end]
			if !ok {
				continue
			}
			segments, err := r.FloorPaths(level-1, link.Lower, excluded)
			if err != nil {
				return nil, err
			}
			for _, s := range segments {
				composed = append(composed, join(c, link, s))
			}
		}
		candidates = composed
	}
	return candidates, nil
}

// 拼接两段路径，连接两端为同一节点时去掉重复的一个
func join(first algo.ScoredPath[NodeKey], link Link, second algo.ScoredPath[NodeKey]) algo.ScoredPath[NodeKey] {
	rest := second.Path
	if len(rest) > 0 && rest[0] == first.Path[len(first.Path)-1] {
		rest = rest[1:]
	}
	path := make([]NodeKey, 0, len(first.Path)+len(rest))
	path = append(path, first.Path...)
	path = append(path, rest...)
	return algo.ScoredPath[NodeKey]{
		Path:       path,
		Cost:       first.Cost + link.Cost + second.Cost,
		Centrality: first.Centrality + second.Centrality,
	}
}
