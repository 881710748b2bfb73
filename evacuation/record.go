package evacuation

import (
	"git.fiblab.net/sim/evacuation/router"
	"git.fiblab.net/sim/evacuation/storage"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// 组在当前帧的路径选择记录，风险统计取自剩余路径（含当前节点）
func groupPathRecord(frame int, g *router.AgentGroup, current router.NodeKey, snapshot map[router.NodeKey]float64) storage.GroupPath {
	rec := storage.GroupPath{
		Frame:     frame,
		GroupID:   g.ID,
		Algorithm: g.Algorithm.String(),
		Awareness: g.Awareness.String(),
		Current:   current,
		NextPath:  g.Remaining(current),
		RiskNow:   snapshot[current],
	}
	if len(rec.NextPath) == 0 {
		return rec
	}
	risks := lo.Map(rec.NextPath, func(n router.NodeKey, _ int) float64 { return snapshot[n] })
	rec.RiskMean, rec.RiskVar = stat.PopMeanVariance(risks, nil)
	rec.RiskMax = floats.Max(risks)
	rec.RiskMin = floats.Min(risks)
	return rec
}
