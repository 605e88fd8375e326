package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-sim-go/gateway"
	"market-sim-go/infrastructure/logger"
	"market-sim-go/order"
)

// Action 单次迭代的动作。
type Action string

const (
	ActionPlace  Action = "place"
	ActionCancel Action = "cancel"
	ActionIdle   Action = "idle" // 需要撤单但交易所未返回任何订单
)

// Iteration 描述一次 ACTIVE 循环的结果，供指标与测试观察。
type Iteration struct {
	Seq        int
	OpenOrders int
	Balance    float64
	Action     Action
	OrderID    string
	Limit      float64
	Side       order.Side
}

// Config 是单个 agent 的决策参数。
type Config struct {
	MaxOrders        int
	Account          order.AccountInit
	InitialPriceMean float64
	InitialPriceStd  float64
	JitterScale      float64
	InterArrivalMean float64
	TimeUnit         time.Duration
	CancelMode       CancelMode
}

// DefaultConfig 返回基线参数：上限 10 单，种子价 N(100, 10)，每 0.5 个时间单位一次循环。
func DefaultConfig() Config {
	return Config{
		MaxOrders:        10,
		Account:          order.AccountInit{Balance: 10000, Position: 0},
		InitialPriceMean: 100,
		InitialPriceStd:  10,
		JitterScale:      0.01,
		InterArrivalMean: 0.5,
		TimeUnit:         time.Second,
		CancelMode:       CancelNewest,
	}
}

// ErrSeedOrder 种子单提交失败（包装底层错误）。
var ErrSeedOrder = errors.New("seed order failed")

// Runner 是一个零智能 agent：独占一个账户，循环执行 查询 -> 撤单或下单。
type Runner struct {
	ID     int
	Client gateway.MarketClient
	Cfg    Config
	Rand   Random
	Logger *logger.Logger

	accountID string
	prevPrice float64
	seq       int
	onIter    func(Iteration)
	onAccount func(string)
	sleep     func(ctx context.Context, d time.Duration) error
}

// SetIterationListener 注册每次循环结束后的回调。
func (r *Runner) SetIterationListener(fn func(Iteration)) {
	r.onIter = fn
}

// SetAccountListener 注册账户创建成功后的回调。
func (r *Runner) SetAccountListener(fn func(accountID string)) {
	r.onAccount = fn
}

// AccountID 返回已创建的账户 ID（INIT 之前为空）。
func (r *Runner) AccountID() string { return r.accountID }

// PreviousPrice 返回最近一次提交的限价。
func (r *Runner) PreviousPrice() float64 { return r.prevPrice }

// Run 执行 INIT 后进入 ACTIVE 循环，直到 ctx 取消（返回 nil）或出现致命错误。
func (r *Runner) Run(ctx context.Context) error {
	if r.Client == nil || r.Rand == nil {
		return errors.New("runner not initialized")
	}
	if r.Logger == nil {
		r.Logger = logger.Nop()
	}
	if r.sleep == nil {
		r.sleep = sleepCtx
	}
	if err := r.init(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	for {
		d := time.Duration(r.Rand.Poisson(r.Cfg.InterArrivalMean)) * r.Cfg.TimeUnit
		if err := r.sleep(ctx, d); err != nil {
			return nil
		}
		if err := r.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (r *Runner) init(ctx context.Context) error {
	id, err := r.Client.CreateAccount(ctx, r.Cfg.Account)
	if err != nil {
		return fmt.Errorf("agent %d create account: %w", r.ID, err)
	}
	r.accountID = id
	r.Logger = r.Logger.With(zap.Int("agent", r.ID), zap.String("account_id", id))
	r.Logger.LogAgent("account_created", zap.Float64("balance", r.Cfg.Account.Balance))
	if r.onAccount != nil {
		r.onAccount(id)
	}

	limit := r.Rand.Normal(r.Cfg.InitialPriceMean, r.Cfg.InitialPriceStd)
	side := r.Rand.Side()
	o, err := r.Client.CreateOrder(ctx, id, limit, 1, side)
	if err != nil {
		return fmt.Errorf("agent %d: %w: %w", r.ID, ErrSeedOrder, err)
	}
	r.prevPrice = limit
	r.Logger.LogOrder("seed_order_placed", o.ID, zap.Float64("limit", limit), zap.String("side", string(side)))
	return nil
}

// Step 执行一次 ACTIVE 迭代（不含休眠）。
func (r *Runner) Step(ctx context.Context) error {
	if r.accountID == "" {
		return errors.New("account not initialized")
	}
	if r.Logger == nil {
		r.Logger = logger.Nop()
	}
	orders, err := r.Client.ListOrders(ctx, r.accountID)
	if err != nil {
		return fmt.Errorf("agent %d list orders: %w", r.ID, err)
	}
	acct, err := r.Client.ReadAccount(ctx, r.accountID)
	if err != nil {
		return fmt.Errorf("agent %d read account: %w", r.ID, err)
	}
	r.seq++
	it := Iteration{Seq: r.seq, OpenOrders: len(orders), Balance: acct.Balance}

	if NeedsCancel(len(orders), r.Cfg.MaxOrders) {
		victim, ok := SelectCancel(orders, r.Cfg.CancelMode)
		if !ok {
			it.Action = ActionIdle
			r.emit(it)
			return nil
		}
		if err := r.Client.DeleteOrder(ctx, r.accountID, victim.ID); err != nil {
			return fmt.Errorf("agent %d delete order %s: %w", r.ID, victim.ID, err)
		}
		it.Action, it.OrderID, it.Limit, it.Side = ActionCancel, victim.ID, victim.Limit, victim.Side
		r.Logger.LogOrder("order_canceled", victim.ID, zap.Int("open", len(orders)), zap.Float64("ts", victim.Timestamp))
		r.emit(it)
		return nil
	}

	bid, ask, err := r.Client.ReadBestQuotes(ctx)
	if err != nil {
		return fmt.Errorf("agent %d read quotes: %w", r.ID, err)
	}
	limit := FormPrice(bid, ask, r.prevPrice, r.Rand.Normal(0, 1), r.Cfg.JitterScale)
	side := r.Rand.Side()
	o, err := r.Client.CreateOrder(ctx, r.accountID, limit, 1, side)
	if err != nil {
		return fmt.Errorf("agent %d create order: %w", r.ID, err)
	}
	r.prevPrice = limit
	it.Action, it.OrderID, it.Limit, it.Side = ActionPlace, o.ID, limit, side
	r.Logger.LogOrder("order_placed", o.ID, zap.Float64("limit", limit), zap.String("side", string(side)), zap.Int("open", len(orders)))
	r.emit(it)
	return nil
}

func (r *Runner) emit(it Iteration) {
	if r.onIter != nil {
		r.onIter(it)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
