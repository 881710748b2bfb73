package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"git.fiblab.net/sim/evacuation/evacuation"
	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/risk"
	"git.fiblab.net/sim/evacuation/router"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

var validate = validator.New()

type Config struct {
	// 布局来源：yaml文件路径或{db}.{col}
	Layout   string `yaml:"layout" validate:"required"`
	MongoURI string `yaml:"mongo_uri"`
	// mongo布局的本地缓存目录
	CacheDir string `yaml:"cache_dir"`
	// sqlite数据库文件
	Database  string `yaml:"database" validate:"required"`
	Seed      int64  `yaml:"seed"`
	LogLevel  string `yaml:"log_level" validate:"oneof=trace debug info warn error fatal panic"`
	DebugAddr string `yaml:"debug_addr"`

	Routing    Routing       `yaml:"routing"`
	Search     Search        `yaml:"search"`
	Risk       Risk          `yaml:"risk"`
	Simulation Simulation    `yaml:"simulation"`
	Groups     []GroupConfig `yaml:"groups" validate:"dive"`
}

type Routing struct {
	Gamma         float64 `yaml:"gamma" validate:"gte=0"`
	RiskThreshold float64 `yaml:"risk_threshold" validate:"gt=0,lte=1"`
}

type Search struct {
	MaxPathLength     int `yaml:"max_path_length" validate:"gte=0"`
	EnumerationBudget int `yaml:"enumeration_budget" validate:"gte=0"`
	CacheSize         int `yaml:"cache_size" validate:"gte=0"`
}

type Risk struct {
	Iterations      int            `yaml:"iterations" validate:"gt=0"`
	TickInterval    int            `yaml:"tick_interval" validate:"gt=0"`
	IncreaseChance  float64        `yaml:"increase_chance" validate:"gte=0,lte=1"`
	DangerThreshold float64        `yaml:"danger_threshold" validate:"gt=0,lte=1"`
	Overrides       []RiskOverride `yaml:"risk_overrides" validate:"dive"`
	StartingRisks   []StartingRisk `yaml:"starting_risks" validate:"dive"`
}

type RiskOverride struct {
	Frame int            `yaml:"frame" validate:"gte=0"`
	Node  layout.NodeKey `yaml:"node"`
	Value float64        `yaml:"value" validate:"gte=0,lte=1"`
}

type StartingRisk struct {
	Node  layout.NodeKey `yaml:"node"`
	Value float64        `yaml:"value" validate:"gte=0,lte=1"`
}

type Simulation struct {
	// 模拟器每隔多少步为一帧
	EveryNthFrameSimulation int `yaml:"every_nth_frame_simulation" validate:"gt=0"`
	// 每隔多少帧评估一次路径
	EveryNthFrameEvaluation int     `yaml:"every_nth_frame_evaluation" validate:"gt=0"`
	NormalMaxSpeed          float64 `yaml:"normal_max_speed" validate:"gt=0"`
	StairsMaxSpeed          float64 `yaml:"stairs_max_speed" validate:"gt=0"`
	// 模拟器步长(s)
	DT float64 `yaml:"dt" validate:"gt=0"`
	// waypoint到达判定距离
	StageDistance float64 `yaml:"stage_distance" validate:"gte=0"`
	// 模拟器最多迭代次数，0表示直到所有agent离开
	MaxIterations int `yaml:"max_iterations" validate:"gte=0"`
}

type GroupConfig struct {
	Source    layout.NodeKey `yaml:"source"`
	Agents    int            `yaml:"agents" validate:"gt=0"`
	Algorithm string         `yaml:"algorithm" validate:"required"`
	Awareness string         `yaml:"awareness" validate:"required"`
}

func Default() Config {
	rc := router.DefaultConfig()
	return Config{
		Layout:   "layout.yaml",
		CacheDir: "data/",
		Database: "data/evacuation.db",
		LogLevel: "info",
		Routing: Routing{
			Gamma:         rc.Gamma,
			RiskThreshold: rc.RiskThreshold,
		},
		Search: Search{
			MaxPathLength:     rc.MaxPathLength,
			EnumerationBudget: rc.EnumerationBudget,
			CacheSize:         rc.CacheSize,
		},
		Risk: Risk{
			Iterations:      3000,
			TickInterval:    50,
			IncreaseChance:  0.01,
			DangerThreshold: 0.5,
		},
		Simulation: Simulation{
			EveryNthFrameSimulation: 4,
			EveryNthFrameEvaluation: 50,
			NormalMaxSpeed:          1.0,
			StairsMaxSpeed:          0.5,
			DT:                      0.01,
			StageDistance:           0.1,
		},
	}
}

// 在默认配置上读取yaml文件并校验
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed on %s", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i, g := range c.Groups {
		if _, err := router.ParseAlgorithm(g.Algorithm); err != nil {
			return fmt.Errorf("%w: groups[%d]: %v", ErrInvalid, i, err)
		}
		if _, err := router.ParseAwareness(g.Awareness); err != nil {
			return fmt.Errorf("%w: groups[%d]: %v", ErrInvalid, i, err)
		}
		if g.Source.ID == "" {
			return fmt.Errorf("%w: groups[%d]: source is required", ErrInvalid, i)
		}
	}
	return nil
}

func (c *Config) RouterConfig() router.Config {
	return router.Config{
		Gamma:             c.Routing.Gamma,
		RiskThreshold:     c.Routing.RiskThreshold,
		MaxPathLength:     c.Search.MaxPathLength,
		EnumerationBudget: c.Search.EnumerationBudget,
		CacheSize:         c.Search.CacheSize,
	}
}

func (c *Config) RiskConfig() risk.Config[layout.NodeKey] {
	rc := risk.Config[layout.NodeKey]{
		Iterations:      c.Risk.Iterations,
		TickInterval:    c.Risk.TickInterval,
		IncreaseChance:  c.Risk.IncreaseChance,
		DangerThreshold: c.Risk.DangerThreshold,
		StartingRisks:   make(map[layout.NodeKey]float64, len(c.Risk.StartingRisks)),
		Seed:            c.Seed,
	}
	for _, o := range c.Risk.Overrides {
		rc.Overrides = append(rc.Overrides, risk.Override[layout.NodeKey]{Frame: o.Frame, Node: o.Node, Value: o.Value})
	}
	for _, s := range c.Risk.StartingRisks {
		rc.StartingRisks[s.Node] = s.Value
	}
	return rc
}

func (c *Config) EvacuationConfig() evacuation.Config {
	return evacuation.Config{
		EveryNthFrameSimulation: c.Simulation.EveryNthFrameSimulation,
		EveryNthFrameEvaluation: c.Simulation.EveryNthFrameEvaluation,
		NormalMaxSpeed:          c.Simulation.NormalMaxSpeed,
		StairsMaxSpeed:          c.Simulation.StairsMaxSpeed,
		MaxIterations:           c.Simulation.MaxIterations,
	}
}

// 布局中是否存在配置引用的所有节点
func (c *Config) CheckLayout(l *layout.Layout) error {
	known := make(map[layout.NodeKey]struct{})
	for _, k := range l.Keys() {
		known[k] = struct{}{}
	}
	check := func(what string, k layout.NodeKey) error {
		if _, ok := known[k]; !ok {
			return fmt.Errorf("%w: %s references unknown node %v", ErrInvalid, what, k)
		}
		return nil
	}
	for i, g := range c.Groups {
		if err := check(fmt.Sprintf("groups[%d]", i), g.Source); err != nil {
			return err
		}
	}
	for i, o := range c.Risk.Overrides {
		if err := check(fmt.Sprintf("risk_overrides[%d]", i), o.Node); err != nil {
			return err
		}
	}
	for i, s := range c.Risk.StartingRisks {
		if err := check(fmt.Sprintf("starting_risks[%d]", i), s.Node); err != nil {
			return err
		}
	}
	return nil
}
