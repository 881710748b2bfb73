package algo

import (
	"errors"
	"fmt"
)

const (
	// 路径枚举默认上限（单次查询最多产出的路径数），0表示不限制
	DEFAULT_ENUMERATION_BUDGET = 20000
	// 路径最多包含的节点数，0表示不限制
	DEFAULT_MAX_PATH_LENGTH = 0

	// 代价比较容差
	COST_EPSILON = 1e-9
)

var (
	// 错误：节点不存在
	ErrUnknownNode = errors.New("unknown node")
	// 错误：边权为负
	ErrNegativeCost = errors.New("edge cost must be non-negative")
)

// MissingEdgeError 路径中相邻两点之间不存在边，说明图与路径生成器不一致
type MissingEdgeError struct {
	From, To any
}

func (e *MissingEdgeError) Error() string {
	return fmt.Sprintf("missing edge (%v,%v) in graph", e.From, e.To)
}
