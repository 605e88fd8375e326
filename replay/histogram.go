package replay

import (
	"errors"
	"math"

	"market-sim-go/market"
)

// HistogramSpec 固定的分箱与纵轴范围。
type HistogramSpec struct {
	Bins int
	Min  float64
	Max  float64
	YMax float64
}

// DefaultHistogramSpec 100 个分箱覆盖 [80, 120]，纵轴上限 400。
func DefaultHistogramSpec() HistogramSpec {
	return HistogramSpec{Bins: 100, Min: 80, Max: 120, YMax: 400}
}

// Validate 检查分箱参数。
func (s HistogramSpec) Validate() error {
	if s.Bins <= 0 {
		return errors.New("histogram bins must be > 0")
	}
	if s.Max <= s.Min {
		return errors.New("histogram max must be greater than min")
	}
	if s.YMax <= 0 {
		return errors.New("histogram yMax must be > 0")
	}
	return nil
}

// Width 单个分箱的宽度。
func (s HistogramSpec) Width() float64 {
	return (s.Max - s.Min) / float64(s.Bins)
}

// Expand 把每个 (price, qty) 展开成 qty 个 price 样本。
func Expand(levels []market.Level) []float64 {
	out := make([]float64, 0, market.Depth(levels))
	for _, l := range levels {
		for i := 0; i < l.Quantity; i++ {
			out = append(out, l.Price)
		}
	}
	return out
}

// Bin 统计落入各分箱的样本数；最后一个分箱右闭，范围外与非有限的样本丢弃。
// 分箱参数无效时返回 nil。
func Bin(samples []float64, spec HistogramSpec) []float64 {
	if spec.Bins <= 0 || spec.Max <= spec.Min {
		return nil
	}
	counts := make([]float64, spec.Bins)
	w := spec.Width()
	for _, v := range samples {
		// NaN 不满足任何比较，需单独排除
		if math.IsNaN(v) || v < spec.Min || v > spec.Max {
			continue
		}
		i := int((v - spec.Min) / w)
		if i >= spec.Bins {
			i = spec.Bins - 1
		}
		counts[i]++
	}
	return counts
}
