package evacuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.fiblab.net/sim/evacuation/crowd"
	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/metrics"
	"git.fiblab.net/sim/evacuation/router"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidConfig = errors.New("invalid coordinator config")

type Config struct {
	// 模拟器每隔多少步为一帧
	EveryNthFrameSimulation int
	// 每隔多少帧评估一次路径
	EveryNthFrameEvaluation int
	NormalMaxSpeed          float64
	StairsMaxSpeed          float64
	// 最多迭代次数，0表示直到所有agent离开
	MaxIterations int
}

func DefaultConfig() Config {
	return Config{
		EveryNthFrameSimulation: 4,
		EveryNthFrameEvaluation: 50,
		NormalMaxSpeed:          1.0,
		StairsMaxSpeed:          0.5,
	}
}

func (c Config) Validate() error {
	if c.EveryNthFrameSimulation <= 0 || c.EveryNthFrameEvaluation <= 0 {
		return fmt.Errorf("%w: frame intervals must be positive", ErrInvalidConfig)
	}
	if c.NormalMaxSpeed <= 0 || c.StairsMaxSpeed <= 0 {
		return fmt.Errorf("%w: speeds must be positive", ErrInvalidConfig)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: negative max iterations", ErrInvalidConfig)
	}
	return nil
}

type Option func(c *Coordinator)

// 决策记录输出，默认丢弃
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

func WithMetrics(m *metrics.Registry) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

// 运行结果统计
type Summary struct {
	Iterations int
	// 评估过的帧数
	Ticks     int
	Switches  int
	HandOffs  []router.HandOff
	Failures  int
	Remaining int
}

// 编排循环：推进外部模拟器，按帧读取风险、重新规划并切换行程
type Coordinator struct {
	cfg      Config
	router   *router.Router
	sim      crowd.Simulator
	stages   *crowd.StageMap
	risks    RiskSource
	recorder Recorder
	metrics  *metrics.Registry
	tracer   trace.Tracer

	groups  []*router.AgentGroup
	summary Summary

	// 运行true或暂停false
	ok bool
	// 条件变量
	cond *sync.Cond
}

func New(cfg Config, r *router.Router, sim crowd.Simulator, stages *crowd.StageMap, risks RiskSource, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:      cfg,
		router:   r,
		sim:      sim,
		stages:   stages,
		risks:    risks,
		recorder: nopRecorder{},
		tracer:   otel.Tracer("git.fiblab.net/sim/evacuation"),
		ok:       true,
		cond:     sync.NewCond(&sync.Mutex{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) Groups() []*router.AgentGroup {
	return c.groups
}

func (c *Coordinator) Summary() Summary {
	return c.summary
}

// 在source放置n个agent组成的组，初始路径按组的策略在snapshot下选择
func (c *Coordinator) AddGroup(ctx context.Context, source layout.NodeKey, n int, algorithm router.Algorithm, awareness router.Awareness) (*router.AgentGroup, error) {
	if !c.router.Has(source) {
		return nil, fmt.Errorf("unknown source node %v", source)
	}
	if c.router.IsExit(source) {
		return nil, fmt.Errorf("source node %v is an exit", source)
	}
	pos, ok := c.stages.Position(source)
	if !ok {
		return nil, fmt.Errorf("%w: no position for %v", crowd.ErrUnknownStage, source)
	}
	snapshot, _, _, err := c.risks.LatestRiskLevels(ctx, 0)
	if err != nil {
		log.Warnf("failed to read initial risk levels: %v", err)
	}
	// 以占位agent做初始决策
	g := router.NewAgentGroup(len(c.groups), []int{-1}, nil, algorithm, awareness)
	g.CurrentNodes[-1] = source
	d, err := c.router.Replan(g, snapshot)
	if err != nil {
		return nil, err
	}
	if d.Path == nil {
		return nil, fmt.Errorf("no path from %v to any exit", source)
	}
	g.Agents = make([]int, 0, n)
	g.CurrentNodes = make(map[int]router.NodeKey, n)

	journey, err := c.stages.Journey(d.Path)
	if err != nil {
		return nil, err
	}
	journeyID, err := c.sim.AddJourney(journey)
	if err != nil {
		return nil, err
	}
	stage, err := c.stages.StageAt(d.Path, 1)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		id, err := c.sim.AddAgent(crowd.AgentParams{
			Position:  pos,
			JourneyID: journeyID,
			StageID:   stage,
			MaxSpeed:  c.cfg.NormalMaxSpeed,
		})
		if err != nil {
			return nil, err
		}
		g.Agents = append(g.Agents, id)
		g.CurrentNodes[id] = source
	}
	g.SetPath(d.Path)
	c.groups = append(c.groups, g)
	log.WithFields(logrus.Fields{"group": g.ID, "source": source}).
		Infof("%d agents, %s/%s, path %v", n, algorithm, awareness, d.Path)
	return g, nil
}

// 暂停与恢复循环
func (c *Coordinator) Pause() {
	c.cond.L.Lock()
	c.ok = false
	c.cond.L.Unlock()
}

func (c *Coordinator) Resume() {
	c.cond.L.Lock()
	c.ok = true
	c.cond.L.Unlock()
	c.cond.Broadcast()
}

func (c *Coordinator) waitResumed() {
	c.cond.L.Lock()
	for !c.ok {
		c.cond.Wait()
	}
	c.cond.L.Unlock()
}

// 推进模拟器直到所有agent离开（或达到最多迭代次数）
// 迭代数为EveryNthFrameSimulation倍数时为一帧，帧数为EveryNthFrameEvaluation倍数时评估
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	for c.sim.AgentCount() > 0 {
		if c.cfg.MaxIterations > 0 && c.sim.IterationCount() >= c.cfg.MaxIterations {
			break
		}
		if err := ctx.Err(); err != nil {
			return c.finish(), err
		}
		c.waitResumed()
		if err := c.sim.Iterate(); err != nil {
			return c.finish(), fmt.Errorf("simulator iteration %d failed: %w", c.sim.IterationCount(), err)
		}
		iteration := c.sim.IterationCount()
		if iteration%c.cfg.EveryNthFrameSimulation != 0 {
			continue
		}
		frame := iteration / c.cfg.EveryNthFrameSimulation
		if frame%c.cfg.EveryNthFrameEvaluation != 0 {
			continue
		}
		if err := c.Tick(ctx, frame); err != nil {
			return c.finish(), err
		}
	}
	return c.finish(), nil
}

func (c *Coordinator) finish() Summary {
	c.summary.Iterations = c.sim.IterationCount()
	c.summary.Remaining = c.sim.AgentCount()
	return c.summary
}

// 评估一帧：读取风险快照，逐组更新位置、速度、楼层并重新规划
// 持久化失败只记录日志，不影响移动
func (c *Coordinator) Tick(ctx context.Context, frame int) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "evacuation.tick", trace.WithAttributes(attribute.Int("frame", frame)))
	defer span.End()

	snapshot, at, ok, err := c.risks.LatestRiskLevels(ctx, frame)
	if err != nil {
		c.persistenceFailure("risk_data", frame, -1, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "risk snapshot unavailable")
		return nil
	}
	if !ok {
		log.WithField("frame", frame).Debug("no risk levels yet")
	} else if at != frame {
		log.WithField("frame", frame).Debugf("using risk levels of frame %d", at)
	}
	for _, g := range c.groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.step(ctx, frame, g, snapshot)
	}
	c.summary.Ticks++
	if c.metrics != nil {
		c.metrics.RecordTick(time.Since(start), c.sim.AgentCount(), snapshot.Max())
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Coordinator) step(ctx context.Context, frame int, g *router.AgentGroup, snapshot map[router.NodeKey]float64) {
	ctx, span := c.tracer.Start(ctx, "evacuation.group", trace.WithAttributes(
		attribute.Int("frame", frame),
		attribute.Int("group", g.ID),
		attribute.String("algorithm", g.Algorithm.String()),
		attribute.String("awareness", g.Awareness.String()),
	))
	defer span.End()
	logger := log.WithFields(logrus.Fields{"frame": frame, "group": g.ID})

	targets := c.stages.Targets(c.sim, g.Agents)
	g.UpdateCurrentNodes(targets)
	if err := c.recorder.WriteAgentAreas(ctx, frame, g.Agents, g.CurrentNodes, snapshot); err != nil {
		c.persistenceFailure("agent_area_data", frame, g.ID, err)
	}
	if len(targets) == 0 {
		return
	}
	c.adjustSpeeds(g, targets, logger)

	if h, ok := c.router.HandOff(g, frame); ok {
		c.summary.HandOffs = append(c.summary.HandOffs, *h)
		if c.metrics != nil {
			c.metrics.HandOffsTotal.Inc()
		}
		logger.Infof("hand off %v -> %v", h.From, h.To)
	}

	d, err := c.router.Replan(g, snapshot)
	if err != nil {
		// 保持原路径
		logger.Errorf("replan failed: %v", err)
		span.RecordError(err)
		c.recordReplan(g, "error", d)
		return
	}
	outcome := "keep"
	if g.WaitUntil != nil {
		outcome = "wait"
	}
	if d.Path != nil && !router.IsSublist(d.Path, g.Path) {
		if err := c.switchJourney(g, d.Path, targets); err != nil {
			logger.Errorf("failed to switch journey to %v: %v", d.Path, err)
			span.RecordError(err)
			c.recordReplan(g, "error", d)
			return
		}
		outcome = "switch"
		logger.Debugf("switched to %v", d.Path)
	}
	c.recordReplan(g, outcome, d)

	if _, current, ok := g.Representative(); ok {
		if err := c.recorder.WriteGroupPath(ctx, groupPathRecord(frame, g, current, snapshot)); err != nil {
			c.persistenceFailure("group_path_data", frame, g.ID, err)
		}
	}
}

// 位于楼梯节点的agent限速
func (c *Coordinator) adjustSpeeds(g *router.AgentGroup, targets map[int]router.StageTarget, logger *logrus.Entry) {
	for _, a := range g.Agents {
		if _, active := targets[a]; !active {
			continue
		}
		speed := c.cfg.NormalMaxSpeed
		if n, ok := g.CurrentNodes[a]; ok && c.router.IsStairs(n) {
			speed = c.cfg.StairsMaxSpeed
		}
		if err := c.sim.SetMaxSpeed(a, speed); err != nil {
			logger.Warnf("failed to set speed of agent %d: %v", a, err)
		}
	}
}

// 为新路径构造行程，并把组内仍在模拟中的agent切换到路径第二个节点对应的stage
func (c *Coordinator) switchJourney(g *router.AgentGroup, path []router.NodeKey, targets map[int]router.StageTarget) error {
	journey, err := c.stages.Journey(path)
	if err != nil {
		return err
	}
	stage, err := c.stages.StageAt(path, 1)
	if err != nil {
		return err
	}
	journeyID, err := c.sim.AddJourney(journey)
	if err != nil {
		return err
	}
	// 切换失败时已切换的agent退回原行程，组内路径保持一致
	switched := make([]crowd.Agent, 0, len(g.Agents))
	for _, a := range g.Agents {
		if _, active := targets[a]; !active {
			continue
		}
		prev, err := c.sim.Agent(a)
		if err == nil {
			err = c.sim.SwitchAgentJourney(a, journeyID, stage)
		}
		if err != nil {
			c.rollbackJourney(g, switched)
			return fmt.Errorf("agent %d: %w", a, err)
		}
		switched = append(switched, prev)
	}
	g.SetPath(path)
	c.summary.Switches++
	if c.metrics != nil {
		c.metrics.PathSwitchesTotal.WithLabelValues(g.Algorithm.String()).Inc()
	}
	return nil
}

func (c *Coordinator) rollbackJourney(g *router.AgentGroup, switched []crowd.Agent) {
	for _, prev := range switched {
		if err := c.sim.SwitchAgentJourney(prev.ID, prev.JourneyID, prev.StageID); err != nil {
			log.WithFields(logrus.Fields{"group": g.ID, "agent": prev.ID}).
				Errorf("failed to restore journey %d: %v", prev.JourneyID, err)
		}
	}
}

func (c *Coordinator) recordReplan(g *router.AgentGroup, outcome string, d router.Decision) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordReplan(g.Awareness.String(), outcome)
	if d.Candidates > 0 {
		c.metrics.CandidatePaths.Observe(float64(d.Candidates))
	}
}

func (c *Coordinator) persistenceFailure(table string, frame, group int, err error) {
	c.summary.Failures++
	log.WithFields(logrus.Fields{"frame": frame, "group": group, "table": table}).
		Errorf("persistence failed: %v", err)
	if c.metrics != nil {
		c.metrics.PersistenceFailures.WithLabelValues(table).Inc()
	}
}
