package router

import (
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// agent当前前往的节点，由外部模拟器的stage换算得到
type StageTarget struct {
	Node NodeKey
	// stage能否对应到图中节点
	Known bool
}

// 由各agent前往的节点重新计算CurrentNodes
// targets中缺失的agent视为已离开模拟（到达路径终点）；stage无法对应节点时同样视为到达终点
// 前往的节点不在路径中或为路径起点时位置未知
func (g *AgentGroup) UpdateCurrentNodes(targets map[int]StageTarget) {
	current := make(map[int]NodeKey, len(g.Agents))
	if len(g.Path) == 0 {
		g.CurrentNodes = current
		return
	}
	last := g.Path[len(g.Path)-1]
	for _, a := range g.Agents {
		t, ok := targets[a]
		if !ok || !t.Known {
			current[a] = last
			continue
		}
		i := lo.IndexOf(g.Path, t.Node)
		if i <= 0 {
			continue
		}
		current[a] = g.Path[i-1]
	}
	g.CurrentNodes = current
}

// 楼层交接：组在某层的路径段走完，切换到下一层
type HandOff struct {
	GroupID int
	// 上层楼梯节点与下层连接节点
	From NodeKey
	To   NodeKey
	// 交接发生的帧
	Frame int
	// 交接后各agent的位置
	Positions map[int]NodeKey
}

// 当前楼层段以带连接的楼梯节点结束，且已有agent到达或越过该节点时，将组交接到下一层
// 到达楼梯节点的agent的位置记为下层连接节点，组的Floor与FloorPath随之更新
func (r *Router) HandOff(g *AgentGroup, frame int) (*HandOff, bool) {
	if len(g.FloorPath) == 0 {
		return nil, false
	}
	stairs := g.FloorPath[len(g.FloorPath)-1]
	if !r.IsStairs(stairs) {
		return nil, false
	}
	link, ok := r.links[stairs]
	if !ok {
		return nil, false
	}
	arrived := false
	for _, n := range g.CurrentNodes {
		if n == stairs || n.Floor < stairs.Floor {
			arrived = true
			break
		}
	}
	if !arrived {
		return nil, false
	}
	positions := make(map[int]NodeKey, len(g.CurrentNodes))
	for a, n := range g.CurrentNodes {
		if n == stairs {
			n = link.Lower
		}
		positions[a] = n
	}
	g.CurrentNodes = positions
	g.Floor = link.Lower.Floor
	if i := lo.IndexOf(g.Path, link.Lower); i >= 0 {
		g.FloorPath = FloorSegment(g.Path[i:])
	} else {
		// 路径未经过该连接，等待下一次决策在新楼层重新规划
		g.FloorPath = nil
	}
	log.WithFields(logrus.Fields{"group": g.ID, "frame": frame}).
		Debugf("hand off %v -> %v", stairs, link.Lower)
	return &HandOff{
		GroupID:   g.ID,
		From:      stairs,
		To:        link.Lower,
		Frame:     frame,
		Positions: lo.Assign(positions),
	}, true
}
