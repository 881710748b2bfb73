package algo

type Point struct {
	X float64
	Y float64
}

type NodeAttr struct {
	Floor    int
	IsStairs bool
	Position Point
}

// 带代价的路径
type CostedPath[K comparable] struct {
	Path []K
	Cost float64
}

// 带代价与中心性得分的路径
type ScoredPath[K comparable] struct {
	Path       []K
	Cost       float64
	Centrality float64
}

// 路径枚举选项
type Options[K comparable] struct {
	// 搜索时排除的节点（调用方提供，不修改图）
	Excluded map[K]struct{}
	// 代价上限，<=0表示不限制
	MaxCost float64
	// 路径最多包含的节点数，<=0表示不限制
	MaxLength int
	// 最多产出的路径数，<=0表示不限制
	Budget int
}

func (o Options[K]) excluded(k K) bool {
	if o.Excluded == nil {
		return false
	}
	_, ok := o.Excluded[k]
	return ok
}

// 由节点列表构造排除集合
func ExclusionSet[K comparable](nodes ...K) map[K]struct{} {
	set := make(map[K]struct{}, len(nodes))
	for _, n := range nodes {
		set[n] = struct{}{}
	}
	return set
}
