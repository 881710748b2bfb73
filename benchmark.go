package main

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"git.fiblab.net/sim/evacuation/router"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var (
	benchmarkCount int
	benchmarkSeed  int64
	benchmarkCPU   int
)

type benchmarkCase struct {
	group    *router.AgentGroup
	snapshot map[router.NodeKey]float64
}

// 随机起点、随机风险快照下的路径决策
func randomCases(r *router.Router, rng *rand.Rand, count int) []benchmarkCase {
	sources := lo.Filter(r.Graph().Keys(), func(k router.NodeKey, _ int) bool { return !r.IsExit(k) })
	if len(sources) == 0 {
		return nil
	}
	keys := r.Graph().Keys()
	cases := make([]benchmarkCase, count)
	for i := range cases {
		snapshot := make(map[router.NodeKey]float64)
		// 约五分之一的节点有风险
		for _, k := range keys {
			if rng.Intn(5) == 0 {
				snapshot[k] = float64(rng.Intn(11)) / 10
			}
		}
		g := router.NewAgentGroup(i, []int{0}, nil, router.Algorithm(rng.Intn(2)), router.Awareness(rng.Intn(2)))
		g.CurrentNodes[0] = sources[rng.Intn(len(sources))]
		cases[i] = benchmarkCase{group: g, snapshot: snapshot}
	}
	return cases
}

func runBenchmark(ctx context.Context, s *Simulation) {
	log.Logger.SetLevel(logrus.WarnLevel)
	// 设置随机种子
	rng := rand.New(rand.NewSource(benchmarkSeed))
	cases := randomCases(s.router, rng, benchmarkCount)
	if len(cases) == 0 {
		log.Error("benchmark skipped: no source nodes")
		return
	}

	// 开始benchmark
	start := time.Now()
	var wg sync.WaitGroup
	var success atomic.Int32
	decide := func(c benchmarkCase) {
		d, err := s.router.Replan(c.group, c.snapshot)
		if err != nil {
			log.Error("benchmark failed, err:", err)
			return
		}
		if d.Path != nil {
			success.Add(1)
		}
	}
	if benchmarkCPU == 1 {
		for _, c := range cases {
			if ctx.Err() != nil {
				break
			}
			decide(c)
		}
	} else {
		// 设置cpu数量
		runtime.GOMAXPROCS(benchmarkCPU)
		wg.Add(len(cases))
		for _, c := range cases {
			go func(c benchmarkCase) {
				defer wg.Done()
				decide(c)
			}(c)
		}
		wg.Wait()
	}
	timeCost := time.Since(start) * time.Duration(benchmarkCPU)
	log.Error(
		"benchmark finished", "\n",
		"count:", len(cases), "\n",
		"time:", timeCost, "\n",
		"avg:", timeCost/time.Duration(len(cases)), "\n",
		"replanned:", success.Load(), "\n",
	)
}
