package crowd

import (
	"errors"

	"git.fiblab.net/sim/evacuation/router/algo"
)

var (
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrUnknownStage   = errors.New("unknown stage")
	ErrUnknownJourney = errors.New("unknown journey")
	ErrInvalidJourney = errors.New("invalid journey")
)

type StageKind int

const (
	WAYPOINT StageKind = iota
	EXIT
)

func (k StageKind) String() string {
	if k == EXIT {
		return "exit"
	}
	return "waypoint"
}

type Stage struct {
	ID       int
	Kind     StageKind
	Position algo.Point
	Floor    int
	// 到达判定距离
	Distance float64
}

// 由若干stage组成的行程，stage之间为固定转移
type Journey struct {
	Stages []int
}

// 固定转移：stage之后的下一个stage
func (j Journey) Next(stage int) (int, bool) {
	for i, s := range j.Stages {
		if s == stage && i+1 < len(j.Stages) {
			return j.Stages[i+1], true
		}
	}
	return 0, false
}

type Agent struct {
	ID        int
	Position  algo.Point
	JourneyID int
	// 当前前往的stage
	StageID  int
	MaxSpeed float64
}

type AgentParams struct {
	Position  algo.Point
	JourneyID int
	StageID   int
	MaxSpeed  float64
}

// 外部人群模拟器：提供agent所在stage，并接受行程切换
type Simulator interface {
	AddWaypointStage(position algo.Point, floor int, distance float64) int
	AddExitStage(position algo.Point, floor int) int
	AddJourney(j Journey) (int, error)
	AddAgent(p AgentParams) (int, error)
	// 仍在模拟中的agent
	Agents() []Agent
	Agent(id int) (Agent, error)
	SwitchAgentJourney(agentID, journeyID, stageID int) error
	SetMaxSpeed(agentID int, speed float64) error
	Iterate() error
	IterationCount() int
	AgentCount() int
}
