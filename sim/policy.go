package sim

import (
	"fmt"
	"sort"

	"market-sim-go/order"
)

// CancelMode 决定接近上限时撤哪一笔单。
type CancelMode string

const (
	// CancelNewest 按时间戳降序取第一笔，即撤最新的单（默认）。
	CancelNewest CancelMode = "newest"
	// CancelOldest 撤最早的单。
	CancelOldest CancelMode = "oldest"
)

// ParseCancelMode 空字符串视为 newest。
func ParseCancelMode(s string) (CancelMode, error) {
	switch CancelMode(s) {
	case "", CancelNewest:
		return CancelNewest, nil
	case CancelOldest:
		return CancelOldest, nil
	}
	return "", fmt.Errorf("unknown cancel mode %q", s)
}

// NeedsCancel 提前一笔触发撤单，为新单预留余量。
func NeedsCancel(open, maxOrders int) bool {
	return open+2 > maxOrders
}

// SelectCancel 按模式挑出要撤的订单；orders 为空时返回 false。不修改入参。
func SelectCancel(orders []order.Order, mode CancelMode) (order.Order, bool) {
	if len(orders) == 0 {
		return order.Order{}, false
	}
	sorted := make([]order.Order, len(orders))
	copy(sorted, orders)
	if mode == CancelOldest {
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	} else {
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp > sorted[j].Timestamp })
	}
	return sorted[0], true
}

// FormPrice 取双边报价中点并乘以 (1 + noise*scale)。
// 缺失的一侧用 agent 自己上一次的出价代替；报价长期缺失时价格会随之漂移。
func FormPrice(bid, ask *order.Quote, prev, noise, scale float64) float64 {
	bidPx, askPx := prev, prev
	if bid != nil {
		bidPx = bid.Limit
	}
	if ask != nil {
		askPx = ask.Limit
	}
	return (bidPx + askPx) / 2 * (1 + noise*scale)
}
