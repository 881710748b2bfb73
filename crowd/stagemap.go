package crowd

import (
	"fmt"

	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/router"
	"git.fiblab.net/sim/evacuation/router/algo"
	"github.com/samber/lo"
)

// 图节点与模拟器stage的对应关系
// 每个节点一个waypoint stage，出口节点另有一个exit stage
type StageMap struct {
	waypoints map[layout.NodeKey]int
	exits     map[layout.NodeKey]int
	nodes     map[int]layout.NodeKey
	positions map[layout.NodeKey]algo.Point
}

// 在模拟器中为布局的所有节点注册stage
func NewStageMap(sim Simulator, l *layout.Layout, distance float64) *StageMap {
	m := &StageMap{
		waypoints: make(map[layout.NodeKey]int),
		exits:     make(map[layout.NodeKey]int),
		nodes:     make(map[int]layout.NodeKey),
		positions: make(map[layout.NodeKey]algo.Point),
	}
	for _, f := range l.Floors {
		for _, n := range f.Nodes {
			k := layout.NodeKey{Floor: f.Level, ID: n.ID}
			p := algo.Point{X: n.X, Y: n.Y}
			m.positions[k] = p
			id := sim.AddWaypointStage(p, f.Level, distance)
			m.waypoints[k] = id
			m.nodes[id] = k
		}
		for _, e := range f.Exits {
			k := layout.NodeKey{Floor: f.Level, ID: e}
			id := sim.AddExitStage(m.positions[k], f.Level)
			m.exits[k] = id
			m.nodes[id] = k
		}
	}
	log.Infof("%d waypoint stages, %d exit stages", len(m.waypoints), len(m.exits))
	return m
}

func (m *StageMap) Position(n layout.NodeKey) (algo.Point, bool) {
	p, ok := m.positions[n]
	return p, ok
}

func (m *StageMap) Waypoint(n layout.NodeKey) (int, bool) {
	id, ok := m.waypoints[n]
	return id, ok
}

func (m *StageMap) Exit(n layout.NodeKey) (int, bool) {
	id, ok := m.exits[n]
	return id, ok
}

// stage对应的节点
func (m *StageMap) Node(stage int) (layout.NodeKey, bool) {
	n, ok := m.nodes[stage]
	return n, ok
}

// 由路径构造行程：中间节点为waypoint，终点必须是出口
func (m *StageMap) Journey(path []layout.NodeKey) (Journey, error) {
	if len(path) < 2 {
		return Journey{}, fmt.Errorf("%w: path %v too short", ErrInvalidJourney, path)
	}
	last := path[len(path)-1]
	exit, ok := m.exits[last]
	if !ok {
		return Journey{}, fmt.Errorf("%w: %v is not an exit", ErrInvalidJourney, last)
	}
	stages := make([]int, 0, len(path)-1)
	for _, n := range path[1 : len(path)-1] {
		id, ok := m.waypoints[n]
		if !ok {
			return Journey{}, fmt.Errorf("%w: no stage for %v", ErrUnknownStage, n)
		}
		stages = append(stages, id)
	}
	return Journey{Stages: append(stages, exit)}, nil
}

// 路径上第i个节点在行程中对应的stage
func (m *StageMap) StageAt(path []layout.NodeKey, i int) (int, error) {
	if i <= 0 || i >= len(path) {
		return 0, fmt.Errorf("%w: index %d of path %v", ErrUnknownStage, i, path)
	}
	if i == len(path)-1 {
		if id, ok := m.exits[path[i]]; ok {
			return id, nil
		}
	}
	id, ok := m.waypoints[path[i]]
	if !ok {
		return 0, fmt.Errorf("%w: no stage for %v", ErrUnknownStage, path[i])
	}
	return id, nil
}

// 各agent当前前往的节点；已离开模拟的agent不出现在结果中
func (m *StageMap) Targets(sim Simulator, agents []int) map[int]router.StageTarget {
	active := lo.SliceToMap(sim.Agents(), func(a Agent) (int, Agent) { return a.ID, a })
	targets := make(map[int]router.StageTarget, len(agents))
	for _, id := range agents {
		a, ok := active[id]
		if !ok {
			continue
		}
		n, known := m.nodes[a.StageID]
		targets[id] = router.StageTarget{Node: n, Known: known}
	}
	return targets
}
