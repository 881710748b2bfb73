package evacuation

import (
	"context"

	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/risk"
	"git.fiblab.net/sim/evacuation/storage"
)

// 按帧读取风险快照：返回不晚于frame的最近一帧
type RiskSource interface {
	LatestRiskLevels(ctx context.Context, frame int) (snapshot risk.Snapshot[layout.NodeKey], at int, ok bool, err error)
}

// 决策记录的输出
type Recorder interface {
	WriteAgentAreas(ctx context.Context, frame int, agents []int, areas map[int]layout.NodeKey, risks map[layout.NodeKey]float64) error
	WriteGroupPath(ctx context.Context, g storage.GroupPath) error
}

var (
	_ RiskSource = (*storage.Store)(nil)
	_ Recorder   = (*storage.Store)(nil)
	_ RiskSource = MemoryRisks{}
)

// 以内存快照序列作为风险来源
type MemoryRisks struct {
	Sink *risk.MemorySink[layout.NodeKey]
}

func (m MemoryRisks) LatestRiskLevels(_ context.Context, frame int) (risk.Snapshot[layout.NodeKey], int, bool, error) {
	s, at, ok := m.Sink.Latest(frame)
	return s, at, ok, nil
}

type nopRecorder struct{}

func (nopRecorder) WriteAgentAreas(context.Context, int, []int, map[int]layout.NodeKey, map[layout.NodeKey]float64) error {
	return nil
}

func (nopRecorder) WriteGroupPath(context.Context, storage.GroupPath) error {
	return nil
}
