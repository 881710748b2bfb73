package crowd

import (
	"fmt"
	"math"
	"slices"

	"git.fiblab.net/sim/evacuation/router/algo"
	"github.com/samber/lo"
)

const (
	// 每次迭代的模拟时长(s)
	DEFAULT_DT = 0.01
	// 未设置速度时的期望速度(m/s)
	DEFAULT_SPEED = 1.0
)

// 离散的内存人群模拟器：agent以最大速度沿直线依次走向行程中的stage，到达出口后离开
type GraphSimulator struct {
	dt        float64
	stages    []Stage
	journeys  []Journey
	agents    map[int]*Agent
	nextAgent int
	iteration int
}

func NewGraphSimulator(dt float64) *GraphSimulator {
	if dt <= 0 {
		dt = DEFAULT_DT
	}
	return &GraphSimulator{
		dt:     dt,
		agents: make(map[int]*Agent),
	}
}

func (s *GraphSimulator) addStage(kind StageKind, position algo.Point, floor int, distance float64) int {
	id := len(s.stages)
	s.stages = append(s.stages, Stage{ID: id, Kind: kind, Position: position, Floor: floor, Distance: distance})
	return id
}

func (s *GraphSimulator) AddWaypointStage(position algo.Point, floor int, distance float64) int {
	return s.addStage(WAYPOINT, position, floor, distance)
}

func (s *GraphSimulator) AddExitStage(position algo.Point, floor int) int {
	return s.addStage(EXIT, position, floor, 0)
}

func (s *GraphSimulator) Stage(id int) (Stage, error) {
	if id < 0 || id >= len(s.stages) {
		return Stage{}, fmt.Errorf("%w: %d", ErrUnknownStage, id)
	}
	return s.stages[id], nil
}

func (s *GraphSimulator) AddJourney(j Journey) (int, error) {
	if len(j.Stages) == 0 {
		return 0, fmt.Errorf("%w: no stage", ErrInvalidJourney)
	}
	for _, id := range j.Stages {
		if _, err := s.Stage(id); err != nil {
			return 0, err
		}
	}
	s.journeys = append(s.journeys, Journey{Stages: slices.Clone(j.Stages)})
	return len(s.journeys) - 1, nil
}

func (s *GraphSimulator) checkJourneyStage(journeyID, stageID int) error {
	if journeyID < 0 || journeyID >= len(s.journeys) {
		return fmt.Errorf("%w: %d", ErrUnknownJourney, journeyID)
	}
	if !lo.Contains(s.journeys[journeyID].Stages, stageID) {
		return fmt.Errorf("%w: %d not in journey %d", ErrUnknownStage, stageID, journeyID)
	}
	return nil
}

func (s *GraphSimulator) AddAgent(p AgentParams) (int, error) {
	if err := s.checkJourneyStage(p.JourneyID, p.StageID); err != nil {
		return 0, err
	}
	speed := p.MaxSpeed
	if speed <= 0 {
		speed = DEFAULT_SPEED
	}
	id := s.nextAgent
	s.nextAgent++
	s.agents[id] = &Agent{
		ID:        id,
		Position:  p.Position,
		JourneyID: p.JourneyID,
		StageID:   p.StageID,
		MaxSpeed:  speed,
	}
	return id, nil
}

func (s *GraphSimulator) ids() []int {
	ids := lo.Keys(s.agents)
	slices.Sort(ids)
	return ids
}

func (s *GraphSimulator) Agents() []Agent {
	return lo.Map(s.ids(), func(id int, _ int) Agent { return *s.agents[id] })
}

func (s *GraphSimulator) Agent(id int) (Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	return *a, nil
}

func (s *GraphSimulator) SwitchAgentJourney(agentID, journeyID, stageID int) error {
	a, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAgent, agentID)
	}
	if err := s.checkJourneyStage(journeyID, stageID); err != nil {
		return err
	}
	a.JourneyID, a.StageID = journeyID, stageID
	return nil
}

func (s *GraphSimulator) SetMaxSpeed(agentID int, speed float64) error {
	a, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAgent, agentID)
	}
	a.MaxSpeed = speed
	return nil
}

// 推进一步
func (s *GraphSimulator) Iterate() error {
	for _, id := range s.ids() {
		a := s.agents[id]
		stage := s.stages[a.StageID]
		step := a.MaxSpeed * s.dt
		dx, dy := stage.Position.X-a.Position.X, stage.Position.Y-a.Position.Y
		d := math.Hypot(dx, dy)
		if d <= step {
			a.Position = stage.Position
			d = 0
		} else {
			a.Position.X += dx / d * step
			a.Position.Y += dy / d * step
			d -= step
		}
		if d > stage.Distance+algo.COST_EPSILON {
			continue
		}
		if stage.Kind == EXIT {
			delete(s.agents, id)
			log.Debugf("agent %d left at iteration %d", id, s.iteration+1)
			continue
		}
		if next, ok := s.journeys[a.JourneyID].Next(a.StageID); ok {
			a.StageID = next
		}
	}
	s.iteration++
	return nil
}

func (s *GraphSimulator) IterationCount() int {
	return s.iteration
}

func (s *GraphSimulator) AgentCount() int {
	return len(s.agents)
}
