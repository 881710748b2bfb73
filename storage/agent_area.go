package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"git.fiblab.net/sim/evacuation/layout"
	"github.com/samber/lo"
)

type AgentArea struct {
	Frame   int
	AgentID int
	Area    layout.NodeKey
	Risk    float64
}

// 写入agent所在区域；位置未知的agent区域为空，风险为0
func (s *Store) WriteAgentAreas(ctx context.Context, frame int, agents []int, areas map[int]layout.NodeKey, risks map[layout.NodeKey]float64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO agent_area_data (frame, agent_id, floor, area, risk) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range agents {
			area := areas[a]
			if _, err := stmt.ExecContext(ctx, frame, a, area.Floor, area.ID, risks[area]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save agent areas of frame %d: %w", frame, err)
	}
	return nil
}

func (s *Store) queryAgentAreas(ctx context.Context, query string, args ...any) ([]AgentArea, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent areas: %w", err)
	}
	defer rows.Close()
	out := make([]AgentArea, 0)
	for rows.Next() {
		var a AgentArea
		if err := rows.Scan(&a.Frame, &a.AgentID, &a.Area.Floor, &a.Area.ID, &a.Risk); err != nil {
			return nil, fmt.Errorf("failed to read agent areas: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AgentAreas(ctx context.Context) ([]AgentArea, error) {
	return s.queryAgentAreas(ctx,
		"SELECT frame, agent_id, floor, area, risk FROM agent_area_data ORDER BY frame, agent_id")
}

func (s *Store) AgentAreasByFrame(ctx context.Context, frame int) ([]AgentArea, error) {
	return s.queryAgentAreas(ctx,
		"SELECT frame, agent_id, floor, area, risk FROM agent_area_data WHERE frame = ? ORDER BY agent_id", frame)
}

// 向上取整到一位小数
func ceil1(x float64) float64 {
	return math.Ceil(x*10) / 10
}

func (s *Store) aggregate(ctx context.Context, fn string) (float64, error) {
	var v sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, "SELECT "+fn+"(risk) FROM agent_area_data").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to compute %s of agent risk: %w", fn, err)
	}
	if !v.Valid {
		return 0, nil
	}
	return ceil1(v.Float64), nil
}

// 所有记录风险之和
func (s *Store) TotalRisk(ctx context.Context) (float64, error) {
	return s.aggregate(ctx, "SUM")
}

func (s *Store) MaxRisk(ctx context.Context) (float64, error) {
	return s.aggregate(ctx, "MAX")
}

func (s *Store) AverageRisk(ctx context.Context) (float64, error) {
	return s.aggregate(ctx, "AVG")
}

// 每个agent的综合风险 1-∏(1-r) 在所有agent上的平均
func (s *Store) AverageCombinedRisk(ctx context.Context) (float64, error) {
	rows, err := s.AgentAreas(ctx)
	if err != nil {
		return 0, err
	}
	product := make(map[int]float64)
	for _, r := range rows {
		if r.Risk < 0 || r.Risk > 1 {
			return 0, fmt.Errorf("invalid risk %v of agent %d at frame %d", r.Risk, r.AgentID, r.Frame)
		}
		p, ok := product[r.AgentID]
		if !ok {
			p = 1
		}
		product[r.AgentID] = p * (1 - r.Risk)
	}
	if len(product) == 0 {
		return 0, nil
	}
	combined := lo.SumBy(lo.Values(product), func(p float64) float64 { return 1 - p })
	return ceil1(combined / float64(len(product))), nil
}
