package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"git.fiblab.net/sim/evacuation/config"
	"git.fiblab.net/sim/evacuation/crowd"
	"git.fiblab.net/sim/evacuation/evacuation"
	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/metrics"
	"git.fiblab.net/sim/evacuation/risk"
	"git.fiblab.net/sim/evacuation/router"
	"git.fiblab.net/sim/evacuation/storage"
	"github.com/samber/lo"
)

var errNoGroups = errors.New("no agent groups configured")

// 一次完整模拟所需的组件：布局、数据库、路由器与指标
type Simulation struct {
	cfg     config.Config
	layout  *layout.Layout
	store   *storage.Store
	router  *router.Router
	metrics *metrics.Registry

	coordinator atomic.Pointer[evacuation.Coordinator]
}

func NewSimulation(ctx context.Context, cfg config.Config) (*Simulation, error) {
	layoutPath, err := NewPath(cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("invalid layout path: %w", err)
	}
	l, err := LoadLayout(ctx, layoutPath, cfg.MongoURI, cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load layout from %s: %w", layoutPath, err)
	}
	if err := cfg.CheckLayout(l); err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	r, err := router.New(l, cfg.RouterConfig(), router.WithPathMemo(store.PathMemo(ctx)))
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Infof("layout %s: %d floors, %d nodes, exits %v, database %s", l.Name, len(l.Floors), r.Graph().Len(), r.Exits(), store.Path())
	return &Simulation{
		cfg:     cfg,
		layout:  l,
		store:   store,
		router:  r,
		metrics: metrics.NewRegistry(),
	}, nil
}

// 预先模拟风险场并写入数据库
func (s *Simulation) RunRisk(ctx context.Context) (risk.Summary, error) {
	g, err := s.layout.Graph()
	if err != nil {
		return risk.Summary{}, err
	}
	sim, err := risk.NewSimulation(s.cfg.RiskConfig(), g, s.layout.Exits(), s.store)
	if err != nil {
		return risk.Summary{}, err
	}
	summary, err := sim.Run(ctx)
	s.metrics.RecordRiskFrames(summary.Emitted, summary.Failed)
	if err != nil {
		return summary, err
	}
	log.Infof("risk simulation: %d frames written, %d failed, max risk %.1f", summary.Emitted, summary.Failed, summary.MaxRisk)
	return summary, nil
}

// 放置所有组并运行编排循环，结束后保存实验结果
func (s *Simulation) RunEvacuation(ctx context.Context) (evacuation.Summary, error) {
	if len(s.cfg.Groups) == 0 {
		return evacuation.Summary{}, errNoGroups
	}
	sim := crowd.NewGraphSimulator(s.cfg.Simulation.DT)
	stages := crowd.NewStageMap(sim, s.layout, s.cfg.Simulation.StageDistance)
	c, err := evacuation.New(s.cfg.EvacuationConfig(), s.router, sim, stages, s.store,
		evacuation.WithRecorder(s.store),
		evacuation.WithMetrics(s.metrics),
	)
	if err != nil {
		return evacuation.Summary{}, err
	}
	for _, gc := range s.cfg.Groups {
		// 已经过config校验
		algorithm, _ := router.ParseAlgorithm(gc.Algorithm)
		awareness, _ := router.ParseAwareness(gc.Awareness)
		if _, err := c.AddGroup(ctx, gc.Source, gc.Agents, algorithm, awareness); err != nil {
			return evacuation.Summary{}, fmt.Errorf("failed to place group at %v: %w", gc.Source, err)
		}
	}
	s.coordinator.Store(c)
	defer s.coordinator.Store(nil)

	summary, err := c.Run(ctx)
	if err != nil {
		return summary, err
	}
	log.Infof("evacuation finished after %d iterations: %d ticks, %d switches, %d hand-offs, %d agents left",
		summary.Iterations, summary.Ticks, summary.Switches, len(summary.HandOffs), summary.Remaining)
	if err := s.recordExperiment(ctx); err != nil {
		log.Errorf("failed to record experiment: %v", err)
	}
	return summary, nil
}

// 清空上次运行的记录后依次运行风险场与疏散
func (s *Simulation) Run(ctx context.Context) (evacuation.Summary, error) {
	if err := s.store.ClearRun(ctx); err != nil {
		return evacuation.Summary{}, err
	}
	if _, err := s.RunRisk(ctx); err != nil {
		return evacuation.Summary{}, err
	}
	return s.RunEvacuation(ctx)
}

func (s *Simulation) experiment() storage.Experiment {
	join := func(vs []string) string {
		vs = lo.Uniq(vs)
		sort.Strings(vs)
		return strings.Join(vs, ",")
	}
	riskNodes := lo.Map(s.cfg.Risk.Overrides, func(o config.RiskOverride, _ int) layout.NodeKey { return o.Node })
	riskNodes = append(riskNodes, lo.Map(s.cfg.Risk.StartingRisks, func(r config.StartingRisk, _ int) layout.NodeKey { return r.Node })...)
	agents := make(map[string]int)
	for _, g := range s.cfg.Groups {
		agents[g.Source.String()] += g.Agents
	}
	return storage.Experiment{
		Algorithm:       join(lo.Map(s.cfg.Groups, func(g config.GroupConfig, _ int) string { return strings.ToLower(g.Algorithm) })),
		Awareness:       join(lo.Map(s.cfg.Groups, func(g config.GroupConfig, _ int) string { return strings.ToLower(g.Awareness) })),
		RiskNodes:       lo.Uniq(riskNodes),
		SourceNodes:     lo.Uniq(lo.Map(s.cfg.Groups, func(g config.GroupConfig, _ int) layout.NodeKey { return g.Source })),
		AgentsPerSource: agents,
		Seed:            s.cfg.Seed,
	}
}

func (s *Simulation) recordExperiment(ctx context.Context) error {
	e, err := s.store.WriteExperiment(ctx, s.experiment())
	if err != nil {
		return err
	}
	m, err := s.store.ComputeExperimentMetrics(ctx, e.ID)
	if err != nil {
		return err
	}
	if err := s.store.WriteExperimentMetrics(ctx, m); err != nil {
		return err
	}
	log.Infof("experiment %d (run %s): %d records, mean risk %.3f", e.ID, e.RunID, m.NRecords, m.MeanRisk)
	return nil
}

// 暂停或恢复正在运行的疏散，没有运行时返回false
func (s *Simulation) Pause() bool {
	c := s.coordinator.Load()
	if c == nil {
		return false
	}
	c.Pause()
	return true
}

func (s *Simulation) Resume() bool {
	c := s.coordinator.Load()
	if c == nil {
		return false
	}
	c.Resume()
	return true
}

func (s *Simulation) Close() {
	s.router.Close()
	if err := s.store.Close(); err != nil {
		log.Errorf("failed to close database: %v", err)
	}
}
