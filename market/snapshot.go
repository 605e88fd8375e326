package market

// Level is one (price, quantity) entry of a book side.
type Level struct {
	Price    float64
	Quantity int
}

// Snapshot 某一时刻重建出的订单簿：买卖两侧的全部挂单档位。
type Snapshot struct {
	Time float64
	Bids []Level
	Asks []Level
	// 日志中声明的条目数，解析完成后与 len(Bids)/len(Asks) 相等。
	BidLength int
	AskLength int
}

// Depth 返回一侧的总数量。
func Depth(levels []Level) int {
	total := 0
	for _, l := range levels {
		total += l.Quantity
	}
	return total
}

// Best 返回最好买/卖价；若不存在则为 0。
func (s Snapshot) Best() (bestBid float64, bestAsk float64) {
	for _, l := range s.Bids {
		if l.Price > bestBid {
			bestBid = l.Price
		}
	}
	for _, l := range s.Asks {
		if bestAsk == 0 || l.Price < bestAsk {
			bestAsk = l.Price
		}
	}
	return bestBid, bestAsk
}

// Mid 返回中间价；若缺失任一侧返回 0。
func (s Snapshot) Mid() float64 {
	bid, ask := s.Best()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}
