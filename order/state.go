package order

import (
	"encoding/json"
	"fmt"
)

// Side 订单方向，只有 Bid / Ask 两个取值。
type Side string

const (
	SideBid Side = "Bid"
	SideAsk Side = "Ask"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// UnmarshalJSON rejects anything but "Bid" / "Ask".
func (s *Side) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("side: %w", err)
	}
	v := Side(raw)
	if !v.Valid() {
		return fmt.Errorf("unknown side %q", raw)
	}
	*s = v
	return nil
}

// Status represents order lifecycle as the exchange reports it.
type Status string

const (
	StatusCreated   Status = "Created"
	StatusPending   Status = "Pending"
	StatusExecuted  Status = "Executed"
	StatusCancelled Status = "Cancelled"
)

// Order holds the exchange view of one resting order.
type Order struct {
	ID        string  `json:"id"`
	Limit     float64 `json:"limit"`
	Quantity  int     `json:"quantity"`
	Side      Side    `json:"side"`
	Timestamp float64 `json:"timestamp"`
	AccountID string  `json:"account_id,omitempty"`
	Status    Status  `json:"status,omitempty"`
}

// Quote 单边最优报价；nil 指针表示该方向无挂单。
type Quote struct {
	Limit    float64 `json:"limit"`
	Quantity int     `json:"quantity"`
}

// AccountInit 创建账户时的初始资金与仓位。
type AccountInit struct {
	Balance  float64 `json:"account_balance" yaml:"balance"`
	Position int     `json:"position" yaml:"position"`
}

// AccountView is the balance snapshot returned by GET /account.
type AccountView struct {
	Balance  float64 `json:"account_balance"`
	Position int     `json:"position"`
}
