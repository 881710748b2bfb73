package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/router"
)

func (s *Store) SavePath(ctx context.Context, rec router.PathRecord) error {
	path, err := json.Marshal(rec.Path)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO paths (source_floor, source, target_floor, target, cost, path, betweenness)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Source.Floor, rec.Source.ID, rec.Target.Floor, rec.Target.ID, rec.Cost, string(path), rec.Betweenness)
	if err != nil {
		return fmt.Errorf("failed to save path %v -> %v: %w", rec.Source, rec.Target, err)
	}
	return nil
}

const pathColumns = "source_floor, source, target_floor, target, cost, path, betweenness"

func scanPath(scan func(dest ...any) error) (router.PathRecord, error) {
	var (
		rec  router.PathRecord
		path string
	)
	if err := scan(&rec.Source.Floor, &rec.Source.ID, &rec.Target.Floor, &rec.Target.ID,
		&rec.Cost, &path, &rec.Betweenness); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(path), &rec.Path); err != nil {
		return rec, fmt.Errorf("bad path %q: %w", path, err)
	}
	return rec, nil
}

// 读取(起点,终点)的记录，不存在时ok为false
func (s *Store) LoadPath(ctx context.Context, source, target layout.NodeKey) (rec router.PathRecord, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pathColumns+" FROM paths WHERE source_floor = ? AND source = ? AND target_floor = ? AND target = ?",
		source.Floor, source.ID, target.Floor, target.ID)
	rec, err = scanPath(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("failed to load path %v -> %v: %w", source, target, err)
	}
	return rec, true, nil
}

func (s *Store) queryPaths(ctx context.Context, query string, args ...any) ([]router.PathRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]router.PathRecord, 0)
	for rows.Next() {
		rec, err := scanPath(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) AllPaths(ctx context.Context) ([]router.PathRecord, error) {
	out, err := s.queryPaths(ctx, "SELECT "+pathColumns+" FROM paths ORDER BY source_floor, source, target_floor, target")
	if err != nil {
		return nil, fmt.Errorf("failed to read paths: %w", err)
	}
	return out, nil
}

// 经过node（不作为起点或终点）的路径
func (s *Store) PathsContainingNode(ctx context.Context, node layout.NodeKey) ([]router.PathRecord, error) {
	pattern, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}
	out, err := s.queryPaths(ctx,
		"SELECT "+pathColumns+` FROM paths WHERE path LIKE ?
		AND NOT (source_floor = ? AND source = ?) AND NOT (target_floor = ? AND target = ?)
		ORDER BY source_floor, source, target_floor, target`,
		"%"+string(pattern)+"%", node.Floor, node.ID, node.Floor, node.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find paths containing %v: %w", node, err)
	}
	return out, nil
}

// 路径记忆：供路由器跨运行复用最小代价
type PathMemo struct {
	s   *Store
	ctx context.Context
}

func (s *Store) PathMemo(ctx context.Context) *PathMemo {
	return &PathMemo{s: s, ctx: ctx}
}

func (m *PathMemo) LoadPath(source, target layout.NodeKey) (router.PathRecord, bool, error) {
	return m.s.LoadPath(m.ctx, source, target)
}

func (m *PathMemo) SavePath(rec router.PathRecord) error {
	return m.s.SavePath(m.ctx, rec)
}
