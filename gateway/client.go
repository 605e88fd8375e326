package gateway

import (
	"context"

	"market-sim-go/order"
)

// MarketClient 是 agent 访问交易所的最小接口；账户相关调用按 accountID 区分。
type MarketClient interface {
	CreateAccount(ctx context.Context, init order.AccountInit) (string, error)
	ReadAccount(ctx context.Context, accountID string) (order.AccountView, error)
	ListOrders(ctx context.Context, accountID string) ([]order.Order, error)
	CreateOrder(ctx context.Context, accountID string, limit float64, quantity int, side order.Side) (order.Order, error)
	DeleteOrder(ctx context.Context, accountID, orderID string) error
	// ReadBestQuotes 返回 (bid, ask)，nil 表示该侧无挂单。
	ReadBestQuotes(ctx context.Context) (bid, ask *order.Quote, err error)
}

// Recorder 接收 REST 调用的计数与延迟，通常由 monitor.Monitor 实现。
type Recorder interface {
	RecordRESTRequest(action string)
	RecordRESTError(action string)
	RecordRESTLatency(action string, seconds float64)
}
