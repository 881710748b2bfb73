package layout

import (
	"fmt"
	"math"

	"git.fiblab.net/sim/evacuation/router/algo"
)

// 楼层内节点的全局标识
type NodeKey struct {
	Floor int    `yaml:"floor" bson:"floor" json:"f"`
	ID    string `yaml:"id" bson:"id" json:"n"`
}

func (k NodeKey) String() string {
	return fmt.Sprintf("%d:%s", k.Floor, k.ID)
}

// 建筑布局
type Layout struct {
	Name        string       `yaml:"name" bson:"name"`
	Floors      []Floor      `yaml:"floors" bson:"floors"`
	Connections []Connection `yaml:"connections" bson:"connections"`
}

type Floor struct {
	Level int      `yaml:"level" bson:"level"`
	Nodes []Node   `yaml:"nodes" bson:"nodes"`
	Edges []Edge   `yaml:"edges" bson:"edges"`
	Exits []string `yaml:"exits" bson:"exits"`
}

type Node struct {
	ID       string  `yaml:"id" bson:"id"`
	Risk     float64 `yaml:"risk" bson:"risk"`
	IsStairs bool    `yaml:"stairs" bson:"stairs"`
	X        float64 `yaml:"x" bson:"x"`
	Y        float64 `yaml:"y" bson:"y"`
}

// 楼层内的边，Cost为空时取两端点的欧氏距离
type Edge struct {
	From          string   `yaml:"from" bson:"from"`
	To            string   `yaml:"to" bson:"to"`
	Cost          *float64 `yaml:"cost,omitempty" bson:"cost,omitempty"`
	Bidirectional bool     `yaml:"bidirectional" bson:"bidirectional"`
}

// 楼层间的连接（楼梯），从上层节点通往下层节点
type Connection struct {
	Upper NodeKey `yaml:"upper" bson:"upper"`
	Lower NodeKey `yaml:"lower" bson:"lower"`
	Cost  float64 `yaml:"cost" bson:"cost"`
}

// getter

func (l *Layout) Floor(level int) (*Floor, bool) {
	for i := range l.Floors {
		if l.Floors[i].Level == level {
			return &l.Floors[i], true
		}
	}
	return nil, false
}

// 最高楼层号
func (l *Layout) TopFloor() int {
	top := 0
	for _, f := range l.Floors {
		top = max(top, f.Level)
	}
	return top
}

// 0层的出口
func (l *Layout) Exits() []NodeKey {
	f, ok := l.Floor(0)
	if !ok {
		return nil
	}
	exits := make([]NodeKey, 0, len(f.Exits))
	for _, id := range f.Exits {
		exits = append(exits, NodeKey{Floor: 0, ID: id})
	}
	return exits
}

// 所有节点
func (l *Layout) Keys() []NodeKey {
	keys := make([]NodeKey, 0)
	for _, f := range l.Floors {
		for _, n := range f.Nodes {
			keys = append(keys, NodeKey{Floor: f.Level, ID: n.ID})
		}
	}
	return keys
}

// 检查布局的引用完整性
func (l *Layout) Validate() error {
	seen := make(map[NodeKey]Node)
	levels := make(map[int]bool)
	for _, f := range l.Floors {
		if f.Level < 0 {
			return fmt.Errorf("%w: negative floor level %d", ErrInvalidLayout, f.Level)
		}
		if levels[f.Level] {
			return fmt.Errorf("%w: duplicated floor %d", ErrInvalidLayout, f.Level)
		}
		levels[f.Level] = true
		for _, n := range f.Nodes {
			k := NodeKey{Floor: f.Level, ID: n.ID}
			if _, ok := seen[k]; ok {
				return fmt.Errorf("%w: duplicated node %v", ErrInvalidLayout, k)
			}
			if n.Risk < 0 || n.Risk > 1 {
				return fmt.Errorf("%w: risk of %v out of [0,1]", ErrInvalidLayout, k)
			}
			seen[k] = n
		}
		for _, e := range f.Edges {
			for _, id := range []string{e.From, e.To} {
				if _, ok := seen[NodeKey{Floor: f.Level, ID: id}]; !ok {
					return fmt.Errorf("%w: edge (%s,%s) on floor %d references unknown node %s", ErrInvalidLayout, e.From, e.To, f.Level, id)
				}
			}
			if e.Cost != nil && (*e.Cost < 0 || math.IsNaN(*e.Cost)) {
				return fmt.Errorf("%w: edge (%s,%s) has negative cost", ErrInvalidLayout, e.From, e.To)
			}
		}
		for _, id := range f.Exits {
			if _, ok := seen[NodeKey{Floor: f.Level, ID: id}]; !ok {
				return fmt.Errorf("%w: unknown exit %s on floor %d", ErrInvalidLayout, id, f.Level)
			}
		}
	}
	if !levels[0] {
		return fmt.Errorf("%w: no ground floor", ErrInvalidLayout)
	}
	if len(l.Exits()) == 0 {
		return fmt.Errorf("%w: no exit on ground floor", ErrInvalidLayout)
	}
	for _, c := range l.Connections {
		if _, ok := seen[c.Upper]; !ok {
			return fmt.Errorf("%w: connection references unknown node %v", ErrInvalidLayout, c.Upper)
		}
		if _, ok := seen[c.Lower]; !ok {
			return fmt.Errorf("%w: connection references unknown node %v", ErrInvalidLayout, c.Lower)
		}
		if c.Upper.Floor != c.Lower.Floor+1 {
			return fmt.Errorf("%w: connection %v -> %v must go down exactly one floor", ErrInvalidLayout, c.Upper, c.Lower)
		}
		if c.Cost < 0 {
			return fmt.Errorf("%w: connection %v -> %v has negative cost", ErrInvalidLayout, c.Upper, c.Lower)
		}
	}
	for level := range levels {
		if level == 0 {
			continue
		}
		if len(l.ConnectionsDown(level)) == 0 {
			return fmt.Errorf("%w: floor %d has no connection to floor %d", ErrInvalidLayout, level, level-1)
		}
	}
	return nil
}

// 从level层通往level-1层的连接
func (l *Layout) ConnectionsDown(level int) []Connection {
	out := make([]Connection, 0)
	for _, c := range l.Connections {
		if c.Upper.Floor == level {
			out = append(out, c)
		}
	}
	return out
}

// 构建全楼的有向图：各层节点与边，以及楼层间的连接边
func (l *Layout) Graph() (*algo.SearchGraph[NodeKey], error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	g := algo.NewSearchGraph[NodeKey]()
	for _, f := range l.Floors {
		positions := make(map[string]algo.Point, len(f.Nodes))
		for _, n := range f.Nodes {
			p := algo.Point{X: n.X, Y: n.Y}
			positions[n.ID] = p
			k := NodeKey{Floor: f.Level, ID: n.ID}
			g.InitNode(k, algo.NodeAttr{Floor: f.Level, IsStairs: n.IsStairs, Position: p})
			if err := g.SetRisk(k, n.Risk); err != nil {
				return nil, err
			}
		}
		for _, e := range f.Edges {
			cost := euclidean(positions[e.From], positions[e.To])
			if e.Cost != nil {
				cost = *e.Cost
			}
			from, to := NodeKey{Floor: f.Level, ID: e.From}, NodeKey{Floor: f.Level, ID: e.To}
			if err := g.InitEdge(from, to, cost); err != nil {
				return nil, fmt.Errorf("edge %v -> %v: %w", from, to, err)
			}
			if e.Bidirectional {
				if err := g.InitEdge(to, from, cost); err != nil {
					return nil, fmt.Errorf("edge %v -> %v: %w", to, from, err)
				}
			}
		}
	}
	for _, c := range l.Connections {
		if err := g.InitEdge(c.Upper, c.Lower, c.Cost); err != nil {
			return nil, fmt.Errorf("connection %v -> %v: %w", c.Upper, c.Lower, err)
		}
	}
	return g, nil
}

func euclidean(a, b algo.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
