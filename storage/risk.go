package storage

import (
	"context"
	"database/sql"
	"fmt"

	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/risk"
)

type RiskRow struct {
	Frame     int
	Floor     int
	Area      string
	RiskLevel float64
}

// 写入一帧的风险，相同(frame, floor, area)覆盖旧值
func (s *Store) WriteRiskLevels(ctx context.Context, frame int, snapshot risk.Snapshot[layout.NodeKey]) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO risk_data (frame, floor, area, risk_level) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for k, v := range snapshot {
			if _, err := stmt.ExecContext(ctx, frame, k.Floor, k.ID, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save risk levels of frame %d: %w", frame, err)
	}
	return nil
}

func (s *Store) scanSnapshot(rows *sql.Rows) (risk.Snapshot[layout.NodeKey], error) {
	defer rows.Close()
	snapshot := make(risk.Snapshot[layout.NodeKey])
	for rows.Next() {
		var (
			k layout.NodeKey
			v float64
		)
		if err := rows.Scan(&k.Floor, &k.ID, &v); err != nil {
			return nil, err
		}
		snapshot[k] = v
	}
	return snapshot, rows.Err()
}

// 指定帧的风险
func (s *Store) RiskLevelsByFrame(ctx context.Context, frame int) (risk.Snapshot[layout.NodeKey], error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT floor, area, risk_level FROM risk_data WHERE frame = ?", frame)
	if err != nil {
		return nil, fmt.Errorf("failed to read risk levels of frame %d: %w", frame, err)
	}
	snapshot, err := s.scanSnapshot(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read risk levels of frame %d: %w", frame, err)
	}
	return snapshot, nil
}

// 不晚于frame的最近一帧风险，没有记录时ok为false
func (s *Store) LatestRiskLevels(ctx context.Context, frame int) (snapshot risk.Snapshot[layout.NodeKey], at int, ok bool, err error) {
	var latest sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT MAX(frame) FROM risk_data WHERE frame <= ?", frame).Scan(&latest)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to find risk frame before %d: %w", frame, err)
	}
	if !latest.Valid {
		return nil, 0, false, nil
	}
	at = int(latest.Int64)
	snapshot, err = s.RiskLevelsByFrame(ctx, at)
	if err != nil {
		return nil, 0, false, err
	}
	return snapshot, at, true, nil
}

// frame -> 快照
func (s *Store) RisksGroupedByFrame(ctx context.Context) (map[int]risk.Snapshot[layout.NodeKey], error) {
	rows, err := s.FetchAllRisks(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]risk.Snapshot[layout.NodeKey])
	for _, r := range rows {
		if _, ok := out[r.Frame]; !ok {
			out[r.Frame] = make(risk.Snapshot[layout.NodeKey])
		}
		out[r.Frame][layout.NodeKey{Floor: r.Floor, ID: r.Area}] = r.RiskLevel
	}
	return out, nil
}

// floor -> frame -> area -> risk
func (s *Store) RisksGroupedByFloorAndFrame(ctx context.Context) (map[int]map[int]map[string]float64, error) {
	rows, err := s.FetchAllRisks(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]map[int]map[string]float64)
	for _, r := range rows {
		frames, ok := out[r.Floor]
		if !ok {
			frames = make(map[int]map[string]float64)
			out[r.Floor] = frames
		}
		areas, ok := frames[r.Frame]
		if !ok {
			areas = make(map[string]float64)
			frames[r.Frame] = areas
		}
		areas[r.Area] = r.RiskLevel
	}
	return out, nil
}

func (s *Store) queryRisks(ctx context.Context, query string, args ...any) ([]RiskRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]RiskRow, 0)
	for rows.Next() {
		var r RiskRow
		if err := rows.Scan(&r.Frame, &r.Floor, &r.Area, &r.RiskLevel); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// 所有风险记录，按(frame, floor, area)排序
func (s *Store) FetchAllRisks(ctx context.Context) ([]RiskRow, error) {
	rows, err := s.queryRisks(ctx,
		"SELECT frame, floor, area, risk_level FROM risk_data ORDER BY frame, floor, area")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch risk data: %w", err)
	}
	return rows, nil
}

// 风险达到1的记录
func (s *Store) HighRisks(ctx context.Context) ([]RiskRow, error) {
	rows, err := s.queryRisks(ctx,
		"SELECT frame, floor, area, risk_level FROM risk_data WHERE risk_level >= 1 ORDER BY frame, floor, area")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch high risk data: %w", err)
	}
	return rows, nil
}

var _ risk.Sink[layout.NodeKey] = (*Store)(nil)
