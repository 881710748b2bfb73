package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/risk"
	"git.fiblab.net/sim/evacuation/router"
	"git.fiblab.net/sim/evacuation/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func k(floor int, id string) layout.NodeKey {
	return layout.NodeKey{Floor: floor, ID: id}
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "db", "evacuation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRiskLevels(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.WriteRiskLevels(ctx, 0, risk.Snapshot[layout.NodeKey]{k(0, "A"): 0, k(0, "E"): 0.6, k(1, "E"): 1}))
	require.NoError(t, s.WriteRiskLevels(ctx, 4, risk.Snapshot[layout.NodeKey]{k(0, "A"): 0.1, k(0, "E"): 0.7}))

	snap, err := s.RiskLevelsByFrame(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, risk.Snapshot[layout.NodeKey]{k(0, "A"): 0, k(0, "E"): 0.6, k(1, "E"): 1}, snap)

	snap, at, ok, err := s.LatestRiskLevels(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, at)
	assert.Equal(t, 0.6, snap[k(0, "E")])
	_, at, ok, err = s.LatestRiskLevels(ctx, 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, at)
	_, _, ok, err = s.LatestRiskLevels(ctx, -1)
	require.NoError(t, err)
	assert.False(t, ok)

	byFloor, err := s.RisksGroupedByFloorAndFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]map[int]map[string]float64{
		0: {0: {"A": 0, "E": 0.6}, 4: {"A": 0.1, "E": 0.7}},
		1: {0: {"E": 1}},
	}, byFloor)

	high, err := s.HighRisks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []storage.RiskRow{{Frame: 0, Floor: 1, Area: "E", RiskLevel: 1}}, high)

	all, err := s.FetchAllRisks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, storage.RiskRow{Frame: 0, Floor: 0, Area: "A", RiskLevel: 0}, all[0])
}

func TestRiskWriteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.WriteRiskLevels(ctx, 8, risk.Snapshot[layout.NodeKey]{k(0, "E"): 0.3}))
	require.NoError(t, s.WriteRiskLevels(ctx, 8, risk.Snapshot[layout.NodeKey]{k(0, "E"): 0.5}))
	grouped, err := s.RisksGroupedByFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]risk.Snapshot[layout.NodeKey]{8: {k(0, "E"): 0.5}}, grouped)
}

func TestRiskSimulationSink(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	l := layout.Simple3x3()
	g, err := l.Graph()
	require.NoError(t, err)
	sim, err := risk.NewSimulation(risk.Config[layout.NodeKey]{
		Iterations:      8,
		TickInterval:    4,
		IncreaseChance:  0.5,
		DangerThreshold: 0.5,
		Overrides:       []risk.Override[layout.NodeKey]{{Frame: 0, Node: k(0, "E"), Value: 0.6}},
		Seed:            1,
	}, g, l.Exits(), s)
	require.NoError(t, err)
	summary, err := sim.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Emitted)

	grouped, err := s.RisksGroupedByFrame(ctx)
	require.NoError(t, err)
	assert.Len(t, grouped, 3)
	for _, frame := range []int{0, 4, 8} {
		snap, ok := grouped[frame]
		require.True(t, ok)
		assert.Len(t, snap, 9)
		assert.Zero(t, snap[k(0, "I")])
	}
	assert.Equal(t, 0.6, grouped[0][k(0, "E")])
}

func TestPaths(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	rec := router.PathRecord{
		Source: k(1, "A"), Target: k(1, "I"), Cost: 12,
		Path:        []layout.NodeKey{k(1, "A"), k(1, "B"), k(1, "E"), k(1, "D"), k(1, "I")},
		Betweenness: 1.5,
	}
	require.NoError(t, s.SavePath(ctx, rec))
	require.NoError(t, s.SavePath(ctx, router.PathRecord{
		Source: k(1, "E"), Target: k(1, "I"), Cost: 6,
		Path: []layout.NodeKey{k(1, "E"), k(1, "D"), k(1, "I")},
	}))

	got, ok, err := s.LoadPath(ctx, k(1, "A"), k(1, "I"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec, got)
	_, ok, err = s.LoadPath(ctx, k(0, "A"), k(1, "I"))
	require.NoError(t, err)
	assert.False(t, ok)

	// E作为起点的路径不计入
	containing, err := s.PathsContainingNode(ctx, k(1, "E"))
	require.NoError(t, err)
	require.Len(t, containing, 1)
	assert.Equal(t, k(1, "A"), containing[0].Source)
	containing, err = s.PathsContainingNode(ctx, k(0, "E"))
	require.NoError(t, err)
	assert.Empty(t, containing)

	all, err := s.AllPaths(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	var memo router.PathMemo = s.PathMemo(ctx)
	got, ok, err = memo.LoadPath(k(1, "E"), k(1, "I"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6.0, got.Cost)
}

func TestPathMemoWithRouter(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r, err := router.New(layout.Simple3x3(), router.DefaultConfig(), router.WithPathMemo(s.PathMemo(ctx)))
	require.NoError(t, err)
	_, err = r.FloorPaths(0, k(0, "A"), nil)
	require.NoError(t, err)
	rec, ok, err := s.LoadPath(ctx, k(0, "A"), k(0, "I"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.0, rec.Cost)
}

func TestAgentAreas(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	risks := map[layout.NodeKey]float64{k(0, "A"): 0.5, k(0, "B"): 0.2}
	require.NoError(t, s.WriteAgentAreas(ctx, 0, []int{1, 2}, map[int]layout.NodeKey{1: k(0, "A"), 2: k(0, "B")}, risks))
	// 2的位置未知
	require.NoError(t, s.WriteAgentAreas(ctx, 50, []int{1, 2}, map[int]layout.NodeKey{1: k(0, "A")}, risks))

	rows, err := s.AgentAreasByFrame(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, []storage.AgentArea{
		{Frame: 50, AgentID: 1, Area: k(0, "A"), Risk: 0.5},
		{Frame: 50, AgentID: 2, Area: layout.NodeKey{}, Risk: 0},
	}, rows)

	total, err := s.TotalRisk(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, total, 1e-9)
	maxRisk, err := s.MaxRisk(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, maxRisk)
	avg, err := s.AverageRisk(ctx)
	require.NoError(t, err)
	// 0.3向上取整
	assert.InDelta(t, 0.3, avg, 1e-9)
	// agent1: 1-0.5*0.5=0.75，agent2: 1-0.8*1=0.2，平均0.475向上取整0.5
	combined, err := s.AverageCombinedRisk(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, combined, 1e-9)
}

func TestEmptyAggregates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	total, err := s.TotalRisk(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
	combined, err := s.AverageCombinedRisk(ctx)
	require.NoError(t, err)
	assert.Zero(t, combined)
}

func TestGroupPathsAndExperiments(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for frame, next := range map[int][]layout.NodeKey{
		50:  {k(0, "B"), k(0, "C"), k(0, "D"), k(0, "I")},
		100: {k(0, "D"), k(0, "I")},
	} {
		require.NoError(t, s.WriteGroupPath(ctx, storage.GroupPath{
			Frame: frame, GroupID: 1, Algorithm: "efficient", Awareness: "low",
			Current: next[0], NextPath: next, RiskMean: 0.2, RiskVar: 0.01, RiskMax: 0.4,
		}))
	}
	paths, err := s.GroupPaths(ctx)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, 50, paths[0].Frame)
	assert.Equal(t, k(0, "B"), paths[0].Current)

	e := storage.Experiment{
		Algorithm: "efficient", Awareness: "low",
		RiskNodes: []layout.NodeKey{k(0, "E")}, SourceNodes: []layout.NodeKey{k(0, "A")},
		AgentsPerSource: map[string]int{"0:A": 5}, Seed: 7,
	}
	first, err := s.WriteExperiment(ctx, e)
	require.NoError(t, err)
	assert.NotEmpty(t, first.RunID)
	second, err := s.WriteExperiment(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.RunID, second.RunID)

	m, err := s.ComputeExperimentMetrics(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NRecords)
	assert.InDelta(t, 0.2, m.MeanRisk, 1e-9)
	assert.InDelta(t, 3.0, m.AvgPathLength, 1e-9)
	assert.Equal(t, 100.0, m.MaxTime)
	require.NoError(t, s.WriteExperimentMetrics(ctx, m))

	results, err := s.ExperimentResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, first.RunID, results[0].RunID)
	assert.Equal(t, map[string]int{"0:A": 5}, results[0].AgentsPerSource)
	assert.Equal(t, 2, results[0].NRecords)

	// 清空单次运行的记录，实验结果保留
	require.NoError(t, s.ClearRun(ctx))
	paths, err = s.GroupPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
	results, err = s.ExperimentResults(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, s.Reset(ctx))
	results, err = s.ExperimentResults(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}
