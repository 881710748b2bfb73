package risk

import (
	"math/rand"

	"git.fiblab.net/sim/evacuation/router/algo"
)

const (
	// 随机增长的幅度范围
	MIN_INCREMENT = 0.05
	MAX_INCREMENT = 0.2

	// 危险节点向1跳、2跳邻居传播的比例
	FIRST_RING_DIVISOR  = 3.0
	SECOND_RING_DIVISOR = 9.0
)

// 某一时刻各节点的风险值
type Snapshot[K comparable] map[K]float64

// 最大风险
func (s Snapshot[K]) Max() float64 {
	m := 0.0
	for _, r := range s {
		m = max(m, r)
	}
	return m
}

// 风险场推进一步：
// 1. 风险大于0的节点以increaseChance的概率随机增加[0.05,0.2]，上限为1
// 2. 更新前风险不低于dangerThreshold的节点向无向1跳邻居传播r/3，向2跳邻居传播r/9，取最大值
// 所有结果保留1位小数
func Advance[K comparable](g *algo.SearchGraph[K], rng *rand.Rand, increaseChance, dangerThreshold float64) {
	before := g.Risks()
	keys := g.Keys()
	updated := make(map[K]float64, len(keys))
	// 按节点加入顺序消耗随机数，保证同一种子结果一致
	for _, k := range keys {
		r := before[k]
		if r > 0 && rng.Float64() < increaseChance {
			r = min(1.0, r+MIN_INCREMENT+rng.Float64()*(MAX_INCREMENT-MIN_INCREMENT))
		}
		updated[k] = algo.Round1(r)
	}
	for _, k := range keys {
		r := before[k]
		if r < dangerThreshold {
			continue
		}
		first := algo.Round1(r / FIRST_RING_DIVISOR)
		second := algo.Round1(r / SECOND_RING_DIVISOR)
		for n, depth := range g.Rings(k, 2) {
			candidate := second
			if depth == 1 {
				candidate = first
			}
			updated[n] = max(updated[n], candidate)
		}
	}
	g.ApplyRisks(updated)
}
