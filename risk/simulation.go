package risk

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"git.fiblab.net/sim/evacuation/router/algo"
	"github.com/sirupsen/logrus"
)

var ErrInvalidConfig = errors.New("invalid risk simulation config")

// 在指定帧强制设置节点风险
type Override[K comparable] struct {
	Frame int
	Node  K
	Value float64
}

type Config[K comparable] struct {
	// 总帧数，模拟帧0..Iterations
	Iterations int
	// 每隔多少帧推进一次风险场
	TickInterval    int
	IncreaseChance  float64
	DangerThreshold float64
	Overrides       []Override[K]
	// 模拟开始前的初始风险
	StartingRisks map[K]float64
	Seed          int64
}

func (c Config[K]) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive, got %d", ErrInvalidConfig, c.TickInterval)
	}
	if c.IncreaseChance < 0 || c.IncreaseChance > 1 {
		return fmt.Errorf("%w: increase chance must be in [0,1], got %v", ErrInvalidConfig, c.IncreaseChance)
	}
	for _, o := range c.Overrides {
		if o.Value < 0 || o.Value > 1 {
			return fmt.Errorf("%w: override %v at frame %d out of [0,1]", ErrInvalidConfig, o.Node, o.Frame)
		}
	}
	return nil
}

// 快照输出
type Sink[K comparable] interface {
	WriteRiskLevels(ctx context.Context, frame int, snapshot Snapshot[K]) error
}

type SinkFunc[K comparable] func(ctx context.Context, frame int, snapshot Snapshot[K]) error

func (f SinkFunc[K]) WriteRiskLevels(ctx context.Context, frame int, snapshot Snapshot[K]) error {
	return f(ctx, frame, snapshot)
}

// 运行结果统计
type Summary struct {
	Emitted int
	Failed  int
	MaxRisk float64
}

// 风险场模拟
type Simulation[K comparable] struct {
	cfg   Config[K]
	g     *algo.SearchGraph[K]
	exits []K
	sink  Sink[K]
	rng   *rand.Rand

	overrides map[int][]Override[K]
}

// 配置非法时立即返回错误
func NewSimulation[K comparable](cfg Config[K], g *algo.SearchGraph[K], exits []K, sink Sink[K]) (*Simulation[K], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation[K]{
		cfg:       cfg,
		g:         g,
		exits:     exits,
		sink:      sink,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		overrides: make(map[int][]Override[K]),
	}
	for _, o := range cfg.Overrides {
		s.overrides[o.Frame] = append(s.overrides[o.Frame], o)
	}
	return s, nil
}

// 依次模拟帧0..Iterations
// 帧0：出口风险置0并输出；之后每TickInterval帧推进一次、出口置0并输出
// 单帧输出失败只记录日志，不中断模拟
func (s *Simulation[K]) Run(ctx context.Context) (Summary, error) {
	summary := Summary{}
	for k, v := range s.cfg.StartingRisks {
		if s.g.Has(k) {
			_ = s.g.SetRisk(k, v)
		}
	}
	for frame := 0; frame <= s.cfg.Iterations; frame++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		for _, o := range s.overrides[frame] {
			if s.g.Has(o.Node) {
				_ = s.g.SetRisk(o.Node, o.Value)
			}
		}
		if frame != 0 {
			if frame%s.cfg.TickInterval != 0 {
				continue
			}
			Advance(s.g, s.rng, s.cfg.IncreaseChance, s.cfg.DangerThreshold)
		}
		s.clearExits()
		snapshot := Snapshot[K](s.g.Risks())
		summary.MaxRisk = max(summary.MaxRisk, snapshot.Max())
		if err := s.sink.WriteRiskLevels(ctx, frame, snapshot); err != nil {
			summary.Failed++
			log.WithFields(logrus.Fields{"frame": frame}).Errorf("failed to write risk levels: %v", err)
			continue
		}
		summary.Emitted++
	}
	log.Infof("risk simulation finished: %d frames emitted, %d failed, max risk %.1f",
		summary.Emitted, summary.Failed, summary.MaxRisk)
	return summary, nil
}

// 出口始终安全
func (s *Simulation[K]) clearExits() {
	for _, e := range s.exits {
		if s.g.Has(e) {
			_ = s.g.SetRisk(e, 0)
		}
	}
}
