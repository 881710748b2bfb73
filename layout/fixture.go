package layout

// 3x3网格的节点位置
// A B C
// F E D
// G H I
var gridPositions = map[string][2]float64{
	"A": {0, 2}, "B": {1, 2}, "C": {2, 2},
	"F": {0, 1}, "E": {1, 1}, "D": {2, 1},
	"G": {0, 0}, "H": {1, 0}, "I": {2, 0},
}

var gridEdges = [][2]string{
	{"A", "B"}, {"A", "F"},
	{"B", "A"}, {"B", "E"}, {"B", "C"},
	{"C", "B"}, {"C", "D"},
	{"D", "I"}, {"D", "E"}, {"D", "C"},
	{"E", "D"}, {"E", "F"}, {"E", "B"}, {"E", "H"},
	{"F", "A"}, {"F", "E"}, {"F", "G"},
	{"G", "F"}, {"G", "H"},
	{"H", "E"}, {"H", "G"}, {"H", "I"},
	{"I", "D"}, {"I", "H"},
}

const gridEdgeCost = 3.0

func gridFloor(level int, exits []string) Floor {
	f := Floor{Level: level, Exits: exits}
	for _, id := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"} {
		p := gridPositions[id]
		f.Nodes = append(f.Nodes, Node{ID: id, IsStairs: id == "I", X: p[0], Y: p[1]})
	}
	for _, e := range gridEdges {
		cost := gridEdgeCost
		f.Edges = append(f.Edges, Edge{From: e[0], To: e[1], Cost: &cost})
	}
	return f
}

// 单层3x3网格，出口为I
func Simple3x3() *Layout {
	return &Layout{
		Name:   "simple-3x3",
		Floors: []Floor{gridFloor(0, []string{"I"})},
	}
}

// 两层3x3网格：1层的I经楼梯到达0层的I，0层出口为A
func MultiFloor3x3() *Layout {
	return &Layout{
		Name:   "multi-floor-3x3",
		Floors: []Floor{gridFloor(0, []string{"A"}), gridFloor(1, nil)},
		Connections: []Connection{
			{Upper: NodeKey{Floor: 1, ID: "I"}, Lower: NodeKey{Floor: 0, ID: "I"}, Cost: 0},
		},
	}
}
