package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"git.fiblab.net/sim/evacuation/layout"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// 一次实验的参数，相同参数视为同一实验
type Experiment struct {
	ID              int64
	RunID           string
	Algorithm       string
	Awareness       string
	RiskNodes       []layout.NodeKey
	SourceNodes     []layout.NodeKey
	AgentsPerSource map[string]int
	Seed            int64
}

type ExperimentMetrics struct {
	ExperimentID int64
	// 组路径记录数
	NRecords int
	// 剩余路径风险均值的平均
	MeanRisk float64
	// 剩余路径风险方差的平均
	MeanRiskVar float64
	// 剩余路径平均节点数
	AvgPathLength float64
	// 最后一条记录的帧
	MaxTime float64
}

func marshalJSON(vs ...any) ([]string, error) {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

// 保存实验参数，已存在时返回原有记录的id与run id
func (s *Store) WriteExperiment(ctx context.Context, e Experiment) (Experiment, error) {
	fields, err := marshalJSON(e.RiskNodes, e.SourceNodes, e.AgentsPerSource)
	if err != nil {
		return e, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO experiments (run_id, algorithm, awareness, risk_nodes, source_nodes, agents_per_source, random_seed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), e.Algorithm, e.Awareness, fields[0], fields[1], fields[2], e.Seed)
	if err != nil {
		return e, fmt.Errorf("failed to write experiment: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, run_id FROM experiments WHERE algorithm = ? AND awareness = ? AND risk_nodes = ?
		AND source_nodes = ? AND agents_per_source = ? AND random_seed = ?`,
		e.Algorithm, e.Awareness, fields[0], fields[1], fields[2], e.Seed).Scan(&e.ID, &e.RunID)
	if err != nil {
		return e, fmt.Errorf("failed to read experiment id: %w", err)
	}
	return e, nil
}

func (s *Store) WriteExperimentMetrics(ctx context.Context, m ExperimentMetrics) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO experiment_metrics (experiment_id, n_records, mean_risk, mean_risk_var, avg_path_length, max_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ExperimentID, m.NRecords, m.MeanRisk, m.MeanRiskVar, m.AvgPathLength, m.MaxTime)
	if err != nil {
		return fmt.Errorf("failed to write metrics of experiment %d: %w", m.ExperimentID, err)
	}
	return nil
}

// 由组路径记录统计实验结果
func (s *Store) ComputeExperimentMetrics(ctx context.Context, experimentID int64) (ExperimentMetrics, error) {
	m := ExperimentMetrics{ExperimentID: experimentID}
	paths, err := s.GroupPaths(ctx)
	if err != nil {
		return m, err
	}
	if len(paths) == 0 {
		return m, nil
	}
	n := float64(len(paths))
	m.NRecords = len(paths)
	m.MeanRisk = lo.SumBy(paths, func(g GroupPath) float64 { return g.RiskMean }) / n
	m.MeanRiskVar = lo.SumBy(paths, func(g GroupPath) float64 { return g.RiskVar }) / n
	m.AvgPathLength = lo.SumBy(paths, func(g GroupPath) float64 { return float64(len(g.NextPath)) }) / n
	m.MaxTime = float64(lo.MaxBy(paths, func(a, b GroupPath) bool { return a.Frame > b.Frame }).Frame)
	return m, nil
}

type ExperimentResult struct {
	Experiment
	ExperimentMetrics
}

func (s *Store) ExperimentResults(ctx context.Context) ([]ExperimentResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.run_id, e.algorithm, e.awareness, e.risk_nodes, e.source_nodes, e.agents_per_source, e.random_seed,
		m.n_records, m.mean_risk, m.mean_risk_var, m.avg_path_length, m.max_time
		FROM experiment_metrics m JOIN experiments e ON m.experiment_id = e.id ORDER BY e.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment results: %w", err)
	}
	defer rows.Close()
	out := make([]ExperimentResult, 0)
	for rows.Next() {
		var (
			r                             ExperimentResult
			riskNodes, sources, perSource string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Algorithm, &r.Awareness, &riskNodes, &sources, &perSource, &r.Seed,
			&r.NRecords, &r.MeanRisk, &r.MeanRiskVar, &r.AvgPathLength, &r.MaxTime); err != nil {
			return nil, fmt.Errorf("failed to read experiment results: %w", err)
		}
		r.ExperimentID = r.ID
		for _, f := range []struct {
			raw string
			v   any
		}{{riskNodes, &r.RiskNodes}, {sources, &r.SourceNodes}, {perSource, &r.AgentsPerSource}} {
			if err := json.Unmarshal([]byte(f.raw), f.v); err != nil {
				return nil, fmt.Errorf("bad experiment field %q: %w", f.raw, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
