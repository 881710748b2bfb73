package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"git.fiblab.net/sim/evacuation/layout"
)

// 一次评估时组的路径选择
type GroupPath struct {
	Frame     int
	GroupID   int
	Algorithm string
	Awareness string
	Current   layout.NodeKey
	// 剩余路径
	NextPath []layout.NodeKey
	RiskMean float64
	RiskMax  float64
	RiskMin  float64
	RiskVar  float64
	// 当前区域的风险
	RiskNow float64
}

func (s *Store) WriteGroupPath(ctx context.Context, g GroupPath) error {
	current, err := json.Marshal(g.Current)
	if err != nil {
		return err
	}
	next, err := json.Marshal(g.NextPath)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO group_path_data (frame, group_id, algorithm, awareness, current_area,
		next_path, est_risk_mean, est_risk_max, est_risk_min, est_risk_var, risk_now)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Frame, g.GroupID, g.Algorithm, g.Awareness, string(current),
		string(next), g.RiskMean, g.RiskMax, g.RiskMin, g.RiskVar, g.RiskNow)
	if err != nil {
		return fmt.Errorf("failed to save path of group %d at frame %d: %w", g.GroupID, g.Frame, err)
	}
	return nil
}

func (s *Store) GroupPaths(ctx context.Context) ([]GroupPath, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, group_id, algorithm, awareness, current_area, next_path,
		est_risk_mean, est_risk_max, est_risk_min, est_risk_var, risk_now
		FROM group_path_data ORDER BY frame, group_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read group paths: %w", err)
	}
	defer rows.Close()
	out := make([]GroupPath, 0)
	for rows.Next() {
		var (
			g             GroupPath
			current, next string
		)
		if err := rows.Scan(&g.Frame, &g.GroupID, &g.Algorithm, &g.Awareness, &current, &next,
			&g.RiskMean, &g.RiskMax, &g.RiskMin, &g.RiskVar, &g.RiskNow); err != nil {
			return nil, fmt.Errorf("failed to read group paths: %w", err)
		}
		if err := json.Unmarshal([]byte(current), &g.Current); err != nil {
			return nil, fmt.Errorf("bad current area %q: %w", current, err)
		}
		if err := json.Unmarshal([]byte(next), &g.NextPath); err != nil {
			return nil, fmt.Errorf("bad path %q: %w", next, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
