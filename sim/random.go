package sim

import (
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"market-sim-go/order"
)

// Random 提供 agent 决策所需的全部随机性；测试中可替换为确定值。
type Random interface {
	// Normal 返回 N(mean, std) 样本。
	Normal(mean, std float64) float64
	// Poisson 返回均值为 mean 的泊松样本（非负整数）。
	Poisson(mean float64) int
	// Side 以 1/2 概率返回 Bid 或 Ask。
	Side() order.Side
}

// distRandom 基于 gonum distuv，每个 agent 独占一个随机源。
type distRandom struct {
	src rand.Source
}

// NewRandom 返回独立随机源；seed 为 0 时使用当前时间。
func NewRandom(seed uint64) Random {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &distRandom{src: rand.NewSource(seed)}
}

func (r *distRandom) Normal(mean, std float64) float64 {
	return distuv.Normal{Mu: mean, Sigma: std, Src: r.src}.Rand()
}

func (r *distRandom) Poisson(mean float64) int {
	if mean <= 0 {
		return 0
	}
	return int(distuv.Poisson{Lambda: mean, Src: r.src}.Rand())
}

func (r *distRandom) Side() order.Side {
	if (distuv.Bernoulli{P: 0.5, Src: r.src}).Rand() == 1 {
		return order.SideAsk
	}
	return order.SideBid
}
