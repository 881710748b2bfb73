package router

import (
	"fmt"
	"slices"
	"strings"

	"git.fiblab.net/sim/evacuation/layout"
	"github.com/samber/lo"
)

type NodeKey = layout.NodeKey

// 选路算法
type Algorithm int

const (
	// 按代价排序
	COST_EFFICIENT Algorithm = 0
	// 按中心性得分排序
	CENTRALITY Algorithm = 1
)

func (a Algorithm) String() string {
	switch a {
	case COST_EFFICIENT:
		return "efficient"
	case CENTRALITY:
		return "centrality"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "efficient", "cost_efficient", "cost", "0":
		return COST_EFFICIENT, nil
	case "centrality", "1":
		return CENTRALITY, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q", s)
}

// 对环境风险的感知程度
type Awareness int

const (
	// 只观察下一个节点
	LOW Awareness = 0
	// 观察整条剩余路径
	HIGH Awareness = 1
)

func (a Awareness) String() string {
	switch a {
	case LOW:
		return "low"
	case HIGH:
		return "high"
	default:
		return fmt.Sprintf("awareness(%d)", int(a))
	}
}

func ParseAwareness(s string) (Awareness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return LOW, nil
	case "high", "1":
		return HIGH, nil
	}
	return 0, fmt.Errorf("unknown awareness %q", s)
}

type GroupState int

const (
	FOLLOWING GroupState = iota
	WAITING
	REPLANNING
)

func (s GroupState) String() string {
	switch s {
	case FOLLOWING:
		return "following"
	case WAITING:
		return "waiting"
	case REPLANNING:
		return "replanning"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// 一起行动、共享路径的一组agent
type AgentGroup struct {
	ID     int
	Agents []int
	// 当前确定的完整路径（可跨楼层）
	Path []NodeKey
	// Path中当前楼层的连续部分
	FloorPath []NodeKey
	// agent id -> 最近完整经过的节点
	CurrentNodes map[int]NodeKey
	Algorithm    Algorithm
	Awareness    Awareness
	// 搜索时排除的节点
	Blocked map[NodeKey]struct{}
	// 到达该节点之前不重新评估
	WaitUntil *NodeKey
	Floor     int
}

func NewAgentGroup(id int, agents []int, path []NodeKey, algorithm Algorithm, awareness Awareness) *AgentGroup {
	g := &AgentGroup{
		ID:           id,
		Agents:       agents,
		CurrentNodes: make(map[int]NodeKey),
		Algorithm:    algorithm,
		Awareness:    awareness,
		Blocked:      make(map[NodeKey]struct{}),
	}
	g.SetPath(path)
	if len(path) > 0 {
		for _, a := range agents {
			g.CurrentNodes[a] = path[0]
		}
	}
	return g
}

// 更新路径并重新计算当前楼层段
func (g *AgentGroup) SetPath(path []NodeKey) {
	g.Path = path
	g.FloorPath = FloorSegment(path)
	if len(path) > 0 {
		g.Floor = path[0].Floor
	}
}

func (g *AgentGroup) State() GroupState {
	if g.WaitUntil != nil {
		return WAITING
	}
	if len(g.Path) == 0 {
		return REPLANNING
	}
	return FOLLOWING
}

func (g *AgentGroup) Block(n NodeKey) {
	g.Blocked[n] = struct{}{}
}

func (g *AgentGroup) IsBlocked(n NodeKey) bool {
	_, ok := g.Blocked[n]
	return ok
}

// 是否有agent位于n
func (g *AgentGroup) AnyAt(n NodeKey) bool {
	return lo.Contains(lo.Values(g.CurrentNodes), n)
}

// 代表整组的agent：沿当前路径走得最远的一个
// 没有路径时取第一个有位置的agent
func (g *AgentGroup) Representative() (agent int, node NodeKey, ok bool) {
	best := -1
	for _, a := range g.Agents {
		n, has := g.CurrentNodes[a]
		if !has {
			continue
		}
		if len(g.Path) == 0 {
			return a, n, true
		}
		if i := lo.IndexOf(g.Path, n); i > best {
			best, agent, node = i, a, n
		}
	}
	return agent, node, best >= 0
}

// 路径中n之后的节点
func (g *AgentGroup) NextNode(n NodeKey) (NodeKey, bool) {
	i := lo.IndexOf(g.Path, n)
	if i < 0 || i+1 >= len(g.Path) {
		return NodeKey{}, false
	}
	return g.Path[i+1], true
}

// 剩余路径（从n开始）
func (g *AgentGroup) Remaining(n NodeKey) []NodeKey {
	i := lo.IndexOf(g.Path, n)
	if i < 0 {
		return nil
	}
	return g.Path[i:]
}

// 路径从第一个节点开始、位于同一楼层的连续前缀
func FloorSegment(path []NodeKey) []NodeKey {
	if len(path) == 0 {
		return nil
	}
	floor := path[0].Floor
	for i, n := range path {
		if n.Floor != floor {
			return path[:i]
		}
	}
	return path
}

// sub是否为main的连续子序列
func IsSublist(sub, main []NodeKey) bool {
	n := len(sub)
	for i := 0; i+n <= len(main); i++ {
		if slices.Equal(main[i:i+n], sub) {
			return true
		}
	}
	return false
}
