package router

import (
	"math"
	"sort"

	"git.fiblab.net/sim/evacuation/router/algo"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// 一次决策的结果
type Decision struct {
	// 代表agent及其所在节点
	Agent   int
	Current NodeKey
	// 新路径，nil表示保持当前路径
	Path []NodeKey
	// 决策前的状态
	State GroupState
	// 参与选择的候选路径数
	Candidates int
}

func (r *Router) risk(snapshot map[NodeKey]float64, n NodeKey) float64 {
	return snapshot[n]
}

// 对一个组做一次路径决策，返回新路径（nil表示保持当前路径）
// 决策会更新组的Blocked与WaitUntil，但不修改Path，由调用方决定是否采用
func (r *Router) Replan(g *AgentGroup, snapshot map[NodeKey]float64) (Decision, error) {
	d := Decision{State: g.State()}
	if g.WaitUntil != nil {
		if !g.AnyAt(*g.WaitUntil) {
			return d, nil
		}
		g.WaitUntil = nil
	}
	agent, current, ok := g.Representative()
	if !ok {
		return d, nil
	}
	d.Agent, d.Current = agent, current
	if r.IsExit(current) {
		return d, nil
	}
	var (
		best []NodeKey
		err  error
	)
	switch g.Awareness {
	case LOW:
		best, d.Candidates, err = r.lowAwarenessPath(g, current, snapshot)
	case HIGH:
		best, d.Candidates, err = r.highAwarenessPath(g, current, snapshot)
	}
	if err != nil {
		return d, err
	}
	r.handleBlocked(g, best)
	d.Path = best
	if best != nil {
		log.WithFields(logrus.Fields{"group": g.ID, "current": current}).
			Debugf("%s/%s replan: %v", g.Algorithm, g.Awareness, best)
	}
	return d, nil
}

// 低感知：只在下一个节点危险（或不在路径上）时重新规划
// 按风险升序检查后继，危险的后继加入Blocked
// 多个最低风险后继时优先选第二个节点在其中的候选路径，否则按风险升序逐个后继匹配
func (r *Router) lowAwarenessPath(g *AgentGroup, current NodeKey, snapshot map[NodeKey]float64) ([]NodeKey, int, error) {
	if next, ok := g.NextNode(current); ok && r.risk(snapshot, next) < r.cfg.RiskThreshold {
		return nil, 0, nil
	}
	neighbors := r.graph.Successors(current)
	if len(neighbors) == 0 {
		return nil, 0, nil
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return r.risk(snapshot, neighbors[i]) < r.risk(snapshot, neighbors[j])
	})
	for _, n := range neighbors {
		if r.risk(snapshot, n) >= r.cfg.RiskThreshold {
			g.Block(n)
		}
	}
	minRisk := r.risk(snapshot, neighbors[0])
	minRiskNeighbors := lo.Filter(neighbors, func(n NodeKey, _ int) bool {
		risk := r.risk(snapshot, n)
		return risk == minRisk || risk < r.cfg.RiskThreshold
	})

	candidates, err := r.Candidates(current, g.Algorithm, g.Blocked)
	if err != nil {
		return nil, 0, err
	}
	return selectByNeighbors(paths(candidates), neighbors, minRiskNeighbors), len(candidates), nil
}

func selectByNeighbors(candidates [][]NodeKey, neighborsSorted, minRiskNeighbors []NodeKey) []NodeKey {
	if len(candidates) == 0 || len(neighborsSorted) == 0 {
		return nil
	}
	if len(minRiskNeighbors) > 1 {
		for _, p := range candidates {
			if len(p) > 1 && lo.Contains(minRiskNeighbors, p[1]) {
				return p
			}
		}
		// 这些后继都没有可用路径，不再考虑
		neighborsSorted = lo.Without(neighborsSorted, minRiskNeighbors...)
	}
	for _, n := range neighborsSorted {
		for _, p := range candidates {
			if len(p) > 1 && p[1] == n {
				return p
			}
		}
	}
	return nil
}

// 高感知：剩余路径上任一节点危险（或不在路径上）时重新规划
// 危险节点全部加入Blocked，选内部节点风险和最小的候选路径
func (r *Router) highAwarenessPath(g *AgentGroup, current NodeKey, snapshot map[NodeKey]float64) ([]NodeKey, int, error) {
	remaining := g.Remaining(current)
	dangerous := len(remaining) == 0
	for _, n := range lo.Drop(remaining, 1) {
		if r.risk(snapshot, n) >= r.cfg.RiskThreshold {
			g.Block(n)
			dangerous = true
		}
	}
	if !dangerous {
		return nil, 0, nil
	}
	candidates, err := r.Candidates(current, g.Algorithm, g.Blocked)
	if err != nil {
		return nil, 0, err
	}
	var best []NodeKey
	bestRisk := math.Inf(1)
	for _, p := range paths(candidates) {
		risk := r.interiorRisk(p, snapshot)
		if risk < bestRisk {
			best, bestRisk = p, risk
		}
	}
	return best, len(candidates), nil
}

func (r *Router) interiorRisk(path []NodeKey, snapshot map[NodeKey]float64) float64 {
	if len(path) <= 2 {
		return 0
	}
	return lo.SumBy(path[1:len(path)-1], func(n NodeKey) float64 { return r.risk(snapshot, n) })
}

// 新路径仍经过Blocked中的节点时，等待到达第一个这样的节点再重新评估，并排除它的前一个节点
// 路径起点即当前所在节点，不参与判断
func (r *Router) handleBlocked(g *AgentGroup, best []NodeKey) {
	for i := 1; i < len(best); i++ {
		if !g.IsBlocked(best[i]) {
			continue
		}
		wait := best[i]
		g.WaitUntil = &wait
		if i > 1 {
			g.Block(best[i-1])
		}
		return
	}
}

func paths(candidates []algo.ScoredPath[NodeKey]) [][]NodeKey {
	return lo.Map(candidates, func(p algo.ScoredPath[NodeKey], _ int) []NodeKey { return p.Path })
}
