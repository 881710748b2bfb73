package risk_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"git.fiblab.net/sim/evacuation/layout"
	"git.fiblab.net/sim/evacuation/risk"
	"git.fiblab.net/sim/evacuation/router/algo"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(id string) layout.NodeKey {
	return layout.NodeKey{Floor: 0, ID: id}
}

func grid(t *testing.T) *algo.SearchGraph[layout.NodeKey] {
	g, err := layout.Simple3x3().Graph()
	require.NoError(t, err)
	return g
}

func isOneDecimal(x float64) bool {
	return math.Abs(x*10-math.Round(x*10)) < 1e-9
}

func TestAdvancePropagation(t *testing.T) {
	g := grid(t)
	require.NoError(t, g.SetRisk(key("E"), 0.6))

	risk.Advance(g, rand.New(rand.NewSource(1)), 0, 0.5)

	assert.Equal(t, 0.6, g.Risk(key("E")))
	for _, id := range []string{"B", "D", "F", "H"} {
		assert.Equal(t, 0.2, g.Risk(key(id)), id)
	}
	for _, id := range []string{"A", "C", "G", "I"} {
		assert.Equal(t, 0.1, g.Risk(key(id)), id)
	}
}

func TestAdvanceKeepsHigherRisk(t *testing.T) {
	g := grid(t)
	require.NoError(t, g.SetRisk(key("E"), 0.9))
	require.NoError(t, g.SetRisk(key("B"), 0.4))
	require.NoError(t, g.SetRisk(key("A"), 0.05))

	risk.Advance(g, rand.New(rand.NewSource(1)), 0, 0.5)

	// 传播只会抬高风险
	assert.Equal(t, 0.4, g.Risk(key("B")))
	assert.Equal(t, 0.3, g.Risk(key("D")))
	assert.Equal(t, 0.1, g.Risk(key("A")))
}

func TestAdvanceRandomIncrease(t *testing.T) {
	g := grid(t)
	require.NoError(t, g.SetRisk(key("A"), 0.3))
	require.NoError(t, g.SetRisk(key("C"), 0.95))

	risk.Advance(g, rand.New(rand.NewSource(7)), 1, 1.1)

	a := g.Risk(key("A"))
	assert.GreaterOrEqual(t, a, 0.3)
	assert.LessOrEqual(t, a, 0.5)
	assert.True(t, isOneDecimal(a))
	assert.Equal(t, 1.0, g.Risk(key("C")))
	// 风险为0的节点不会随机增长
	assert.Equal(t, 0.0, g.Risk(key("E")))
}

func TestSimulationInvalidConfig(t *testing.T) {
	g := grid(t)
	sink := risk.NewMemorySink[layout.NodeKey]()
	_, err := risk.NewSimulation(risk.Config[layout.NodeKey]{Iterations: 0, TickInterval: 4}, g, nil, sink)
	assert.ErrorIs(t, err, risk.ErrInvalidConfig)
	_, err = risk.NewSimulation(risk.Config[layout.NodeKey]{Iterations: 10, TickInterval: 0}, g, nil, sink)
	assert.ErrorIs(t, err, risk.ErrInvalidConfig)
	_, err = risk.NewSimulation(risk.Config[layout.NodeKey]{Iterations: 10, TickInterval: 1, IncreaseChance: 2}, g, nil, sink)
	assert.ErrorIs(t, err, risk.ErrInvalidConfig)
}

func TestSimulationFrames(t *testing.T) {
	g := grid(t)
	sink := risk.NewMemorySink[layout.NodeKey]()
	cfg := risk.Config[layout.NodeKey]{
		Iterations:      10,
		TickInterval:    4,
		IncreaseChance:  0.5,
		DangerThreshold: 0.5,
		Overrides: []risk.Override[layout.NodeKey]{
			{Frame: 0, Node: key("E"), Value: 0.6},
			{Frame: 0, Node: key("I"), Value: 0.9},
			{Frame: 5, Node: key("A"), Value: 0.7},
		},
		Seed: 42,
	}
	s, err := risk.NewSimulation(cfg, g, []layout.NodeKey{key("I")}, sink)
	require.NoError(t, err)
	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Emitted)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []int{0, 4, 8}, sink.Frames())

	first, ok := sink.At(0)
	require.True(t, ok)
	// 帧0不推进，只把出口置0
	assert.Equal(t, 0.6, first[key("E")])
	assert.Equal(t, 0.0, first[key("B")])
	for _, f := range sink.Frames() {
		s, _ := sink.At(f)
		assert.Equal(t, 0.0, s[key("I")], "frame %d", f)
	}
	// 帧5的覆盖在帧8生效
	eighth, _ := sink.At(8)
	assert.GreaterOrEqual(t, eighth[key("A")], 0.7)

	latest, frame, ok := sink.Latest(7)
	assert.True(t, ok)
	assert.Equal(t, 4, frame)
	fourth, _ := sink.At(4)
	assert.Equal(t, fourth, latest)
}

func TestSimulationDeterministic(t *testing.T) {
	run := func() *risk.MemorySink[layout.NodeKey] {
		g := grid(t)
		sink := risk.NewMemorySink[layout.NodeKey]()
		s, err := risk.NewSimulation(risk.Config[layout.NodeKey]{
			Iterations:      40,
			TickInterval:    2,
			IncreaseChance:  0.3,
			DangerThreshold: 0.5,
			StartingRisks:   map[layout.NodeKey]float64{key("E"): 0.5, key("A"): 0.1},
			Seed:            3,
		}, g, []layout.NodeKey{key("I")}, sink)
		require.NoError(t, err)
		_, err = s.Run(context.Background())
		require.NoError(t, err)
		return sink
	}
	a, b := run(), run()
	for _, f := range a.Frames() {
		sa, _ := a.At(f)
		sb, _ := b.At(f)
		assert.Equal(t, sa, sb, "frame %d", f)
	}
}

func TestSimulationSinkFailure(t *testing.T) {
	g := grid(t)
	calls := 0
	sink := risk.SinkFunc[layout.NodeKey](func(_ context.Context, frame int, _ risk.Snapshot[layout.NodeKey]) error {
		calls++
		if frame == 2 {
			return errors.New("disk full")
		}
		return nil
	})
	s, err := risk.NewSimulation(risk.Config[layout.NodeKey]{Iterations: 6, TickInterval: 2}, g, nil, sink)
	require.NoError(t, err)
	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	// 失败的帧不影响后续帧
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, summary.Emitted)
	assert.Equal(t, 1, summary.Failed)
}

func TestSimulationCancel(t *testing.T) {
	g := grid(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := risk.NewSimulation(risk.Config[layout.NodeKey]{Iterations: 6, TickInterval: 2}, g, nil, risk.NewMemorySink[layout.NodeKey]())
	require.NoError(t, err)
	_, err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRiskInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)
	ids := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"}

	properties.Property("propagation never lowers risk", prop.ForAll(
		func(seed int64, dangerous int, level float64, threshold float64) bool {
			g, err := layout.Simple3x3().Graph()
			if err != nil {
				return false
			}
			rng := rand.New(rand.NewSource(seed))
			for _, id := range ids {
				_ = g.SetRisk(key(id), algo.Round1(rng.Float64()*0.4))
			}
			_ = g.SetRisk(key(ids[dangerous%len(ids)]), algo.Round1(level))
			before := g.Risks()
			risk.Advance(g, rng, 0, threshold)
			for k, r := range g.Risks() {
				if r+1e-9 < algo.Round1(before[k]) || !isOneDecimal(r) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(0, 8),
		gen.Float64Range(0, 1),
		gen.Float64Range(0.1, 1),
	))

	properties.Property("exits stay safe in every frame", prop.ForAll(
		func(seed int64, chance float64) bool {
			g, err := layout.Simple3x3().Graph()
			if err != nil {
				return false
			}
			sink := risk.NewMemorySink[layout.NodeKey]()
			s, err := risk.NewSimulation(risk.Config[layout.NodeKey]{
				Iterations:      12,
				TickInterval:    3,
				IncreaseChance:  chance,
				DangerThreshold: 0.5,
				StartingRisks:   map[layout.NodeKey]float64{key("H"): 0.9, key("D"): 0.8},
				Overrides:       []risk.Override[layout.NodeKey]{{Frame: 3, Node: key("I"), Value: 1}},
				Seed:            seed,
			}, g, []layout.NodeKey{key("I")}, sink)
			if err != nil {
				return false
			}
			if _, err := s.Run(context.Background()); err != nil {
				return false
			}
			for _, f := range sink.Frames() {
				snap, _ := sink.At(f)
				if snap[key("I")] != 0 {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
