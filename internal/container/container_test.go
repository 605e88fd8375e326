package container

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sim-go/config"
	"market-sim-go/internal/exchangetest"
)

func testConfig(baseURL string) config.AppConfig {
	cfg := config.Default()
	cfg.Env = "test"
	cfg.Agents.Count = 3
	cfg.Agents.MaxOrders = 4
	cfg.Agents.TimeUnitMs = 1
	cfg.Agents.Seed = 42
	cfg.Exchange.BaseURL = baseURL
	cfg.Exchange.TimeoutMs = 1000
	cfg.Log.Outputs = nil
	cfg.Metrics.Addr = "127.0.0.1:0"
	return cfg
}

func gauge(t *testing.T, c *Container, name string) float64 {
	t.Helper()
	families, err := c.Monitor().Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				total += m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	return 0
}

func TestContainerRunsAgents(t *testing.T) {
	ex := exchangetest.New()
	ts, base := ex.Server()
	defer ts.Close()

	c := NewWithConfig(testConfig(base))
	require.NoError(t, c.Build())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool {
		return gauge(t, c, "zi_sim_agents_started_total") == 3 && gauge(t, c, "zi_sim_orders_canceled_total") > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, c.HealthCheck())
	assert.Len(t, ex.Accounts(), 3)

	resp, err := http.Get("http://" + c.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "zi_sim_orders_placed_total")
	assert.Contains(t, string(body), `zi_sim_rest_requests_total{action="create_account"} 3`)

	require.NoError(t, c.Stop())
	assert.Equal(t, 0.0, gauge(t, c, "zi_sim_agents_active"))
	assert.Equal(t, 0.0, gauge(t, c, "zi_sim_agent_failures_total"))
	assert.Empty(t, c.Pool().FailedIDs())
	for _, acc := range ex.Accounts() {
		assert.LessOrEqual(t, len(ex.Orders(acc)), 3)
	}
}

func TestContainerAgentFailuresAreIsolated(t *testing.T) {
	ex := exchangetest.New()
	ts, base := ex.Server()
	defer ts.Close()
	ex.FailNext("create_account", http.StatusBadRequest)

	c := NewWithConfig(testConfig(base))
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		return gauge(t, c, "zi_sim_agent_failures_total") == 1 && gauge(t, c, "zi_sim_agents_active") == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, c.HealthCheck())

	require.NoError(t, c.Stop())
	assert.Len(t, c.Pool().FailedIDs(), 1)
}

func TestContainerBuildRejectsCancelMode(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/api")
	cfg.Agents.CancelMode = "random"
	err := NewWithConfig(cfg).Build()
	assert.ErrorContains(t, err, "cancel mode")
}

func TestLifecycleRollback(t *testing.T) {
	m := NewLifecycleManager()
	ok := &fakeComponent{}
	m.Register(ok)
	m.Register(&fakeComponent{startErr: assert.AnError})

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.True(t, ok.started)
	assert.True(t, ok.stopped)
}

type fakeComponent struct {
	startErr         error
	started, stopped bool
}

func (f *fakeComponent) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeComponent) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeComponent) Health() error { return nil }
