package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sim-go/gateway"
	"market-sim-go/internal/exchangetest"
	"market-sim-go/order"
)

// fixedRandom 返回确定值：Normal 取 mean + std*z，Poisson 固定，方向交替。
type fixedRandom struct {
	mu      sync.Mutex
	z       float64
	poisson int
	next    order.Side
}

func (f *fixedRandom) Normal(mean, std float64) float64 { return mean + std*f.z }
func (f *fixedRandom) Poisson(float64) int              { return f.poisson }
func (f *fixedRandom) Side() order.Side {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == "" {
		f.next = order.SideBid
	}
	s := f.next
	if s == order.SideBid {
		f.next = order.SideAsk
	} else {
		f.next = order.SideBid
	}
	return s
}

// stubClient 是内存版 MarketClient，可注入错误。
type stubClient struct {
	orders    []order.Order
	bid, ask  *order.Quote
	created   []order.Order
	deleted   []string
	errCreate error
	errList   error
	nextTS    float64
}

func (s *stubClient) CreateAccount(context.Context, order.AccountInit) (string, error) {
	return "acc-1", nil
}

func (s *stubClient) ReadAccount(context.Context, string) (order.AccountView, error) {
	return order.AccountView{Balance: 10000}, nil
}

func (s *stubClient) ListOrders(context.Context, string) ([]order.Order, error) {
	return append([]order.Order(nil), s.orders...), s.errList
}

func (s *stubClient) CreateOrder(_ context.Context, _ string, limit float64, qty int, side order.Side) (order.Order, error) {
	if s.errCreate != nil {
		return order.Order{}, s.errCreate
	}
	s.nextTS++
	o := order.Order{ID: "o" + string(rune('a'+len(s.created))), Limit: limit, Quantity: qty, Side: side, Timestamp: s.nextTS}
	s.created = append(s.created, o)
	s.orders = append(s.orders, o)
	return o, nil
}

func (s *stubClient) DeleteOrder(_ context.Context, _ string, id string) error {
	s.deleted = append(s.deleted, id)
	for i, o := range s.orders {
		if o.ID == id {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubClient) ReadBestQuotes(context.Context) (*order.Quote, *order.Quote, error) {
	return s.bid, s.ask, nil
}

func newStubRunner(cli gateway.MarketClient, cfg Config) *Runner {
	return &Runner{ID: 1, Client: cli, Cfg: cfg, Rand: &fixedRandom{}}
}

func TestRunnerInitSeedsOrder(t *testing.T) {
	cli := &stubClient{}
	cfg := DefaultConfig()
	r := newStubRunner(cli, cfg)
	r.Rand = &fixedRandom{z: 1}
	r.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, "acc-1", r.AccountID())
	require.Len(t, cli.created, 1)
	assert.Equal(t, 110.0, cli.created[0].Limit) // N(100,10) 取 z=1
	assert.Equal(t, 1, cli.created[0].Quantity)
	assert.Equal(t, 110.0, r.PreviousPrice())
}

func TestRunnerSeedFailureIsFatal(t *testing.T) {
	cli := &stubClient{errCreate: &gateway.ProtocolError{Op: "create_order", Status: 400}}
	r := newStubRunner(cli, DefaultConfig())
	err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSeedOrder)
	assert.True(t, gateway.IsProtocol(err))
}

func TestRunnerStepPlacesAtMidpoint(t *testing.T) {
	cli := &stubClient{
		bid: &order.Quote{Limit: 99, Quantity: 1},
		ask: &order.Quote{Limit: 101, Quantity: 1},
	}
	r := newStubRunner(cli, DefaultConfig())
	r.accountID = "acc-1"
	var its []Iteration
	r.SetIterationListener(func(it Iteration) { its = append(its, it) })

	require.NoError(t, r.Step(context.Background()))
	require.Len(t, cli.created, 1)
	assert.InDelta(t, 100.0, cli.created[0].Limit, 1e-12)
	require.Len(t, its, 1)
	assert.Equal(t, ActionPlace, its[0].Action)
	assert.Equal(t, 10000.0, its[0].Balance)
}

func TestRunnerStepFallsBackToPreviousPrice(t *testing.T) {
	cli := &stubClient{ask: &order.Quote{Limit: 104, Quantity: 1}}
	r := newStubRunner(cli, DefaultConfig())
	r.accountID = "acc-1"
	r.prevPrice = 96

	require.NoError(t, r.Step(context.Background()))
	assert.InDelta(t, 100.0, cli.created[0].Limit, 1e-12)
	assert.InDelta(t, 100.0, r.PreviousPrice(), 1e-12)
}

func TestRunnerStepCancelsNearCap(t *testing.T) {
	testCases := []struct {
		name     string
		mode     CancelMode
		expected string
	}{
		{"newest", CancelNewest, "c"},
		{"oldest", CancelOldest, "a"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cli := &stubClient{orders: []order.Order{
				{ID: "a", Timestamp: 1.0},
				{ID: "b", Timestamp: 2.0},
				{ID: "c", Timestamp: 3.0},
			}}
			cfg := DefaultConfig()
			cfg.MaxOrders = 4
			cfg.CancelMode = tc.mode
			r := newStubRunner(cli, cfg)
			r.accountID = "acc-1"

			require.NoError(t, r.Step(context.Background()))
			assert.Equal(t, []string{tc.expected}, cli.deleted)
			assert.Empty(t, cli.created, "cancel path skips price formation")
		})
	}
}

func TestRunnerStepErrorPropagates(t *testing.T) {
	boom := &gateway.ConnectivityError{Op: "list_orders", Err: errors.New("refused")}
	cli := &stubClient{errList: boom}
	r := newStubRunner(cli, DefaultConfig())
	r.sleep = func(context.Context, time.Duration) error { return nil }

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, gateway.IsConnectivity(err))
}

func TestRunnerStopsOnCancel(t *testing.T) {
	cli := &stubClient{}
	r := newStubRunner(cli, DefaultConfig())
	r.Cfg.TimeUnit = time.Millisecond
	r.Rand = &fixedRandom{poisson: 1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop on cancel")
	}
}

func TestRunnerAgainstExchangeRespectsCap(t *testing.T) {
	ex := exchangetest.New()
	ts, base := ex.Server()
	defer ts.Close()

	cfg := DefaultConfig()
	cfg.MaxOrders = 5
	cfg.TimeUnit = time.Millisecond
	r, err := BuildRunner(0, RunnerConfig{Agent: cfg, BaseURL: base, Timeout: time.Second, HTTPClient: ts.Client(), Seed: 7})
	require.NoError(t, err)
	r.Rand = &fixedRandom{}

	var mu sync.Mutex
	var its []Iteration
	ctx, cancel := context.WithCancel(context.Background())
	r.SetIterationListener(func(it Iteration) {
		mu.Lock()
		its = append(its, it)
		n := len(its)
		mu.Unlock()
		if n >= 30 {
			cancel()
		}
	})
	require.NoError(t, r.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(its), 30)
	sawCancel := false
	for _, it := range its {
		if it.Action == ActionPlace {
			assert.LessOrEqual(t, it.OpenOrders, cfg.MaxOrders-2)
			assert.LessOrEqual(t, it.OpenOrders+1, cfg.MaxOrders-1)
		}
		if it.Action == ActionCancel {
			sawCancel = true
		}
	}
	assert.True(t, sawCancel)
	assert.LessOrEqual(t, len(ex.Orders(r.AccountID())), cfg.MaxOrders-1)
}
