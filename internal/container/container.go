package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"market-sim-go/config"
	"market-sim-go/gateway"
	"market-sim-go/infrastructure/alert"
	"market-sim-go/infrastructure/logger"
	"market-sim-go/infrastructure/monitor"
	"market-sim-go/sim"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg *config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 交易所网关（所有 agent 共享连接池与限流器）
	httpClient *http.Client
	limiter    gateway.RateLimiter
	retry      gateway.RetryPolicy

	// agent 池
	pool *sim.Pool

	// HTTP服务器
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig 使用已加载的配置创建Container
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       &cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	c.buildGateway()

	if err := c.buildAgents(); err != nil {
		return fmt.Errorf("build agents failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.logger = c.logger.With(zap.String("env", c.cfg.Env))

	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager([]alert.Channel{alert.NewLogChannel("log", c.logger)}, time.Minute)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildGateway() {
	ex := c.cfg.Exchange
	c.httpClient = gateway.NewDefaultHTTPClient(ex.Timeout())
	c.limiter = gateway.NewRateLimiter(ex.RateLimit, ex.RateBurst)
	c.retry = gateway.RetryPolicy{
		Enabled:         ex.Retry.Enabled,
		MaxTries:        ex.Retry.MaxTries,
		InitialInterval: ex.Retry.Initial(),
		MaxInterval:     ex.Retry.Max(),
	}

	c.logger.Info("gateway built",
		zap.String("base_url", ex.BaseURL),
		zap.Duration("timeout", ex.Timeout()),
		zap.Bool("retry", ex.Retry.Enabled),
		zap.Float64("rate_limit", ex.RateLimit))
}

func (c *Container) buildAgents() error {
	ac := c.cfg.Agents
	mode, err := sim.ParseCancelMode(ac.CancelMode)
	if err != nil {
		return err
	}
	agentCfg := sim.Config{
		MaxOrders:        ac.MaxOrders,
		Account:          ac.Account,
		InitialPriceMean: ac.InitialPriceMean,
		InitialPriceStd:  ac.InitialPriceStd,
		JitterScale:      ac.JitterScale,
		InterArrivalMean: ac.InterArrivalMean,
		TimeUnit:         ac.TimeUnit(),
		CancelMode:       mode,
	}
	rc := sim.RunnerConfig{
		Agent:      agentCfg,
		BaseURL:    c.cfg.Exchange.BaseURL,
		Timeout:    c.cfg.Exchange.Timeout(),
		Retry:      c.retry,
		Seed:       ac.Seed,
		HTTPClient: c.httpClient,
		Limiter:    c.limiter,
		Recorder:   c.monitor,
		Logger:     c.logger,
	}

	factory := func(id int) (*sim.Runner, error) {
		r, err := sim.BuildRunner(id, rc)
		if err != nil {
			c.monitor.RecordAgentFailure()
			return nil, err
		}
		r.SetIterationListener(c.observeIteration)
		return r, nil
	}

	var jitter sim.Random
	if ac.Seed != 0 {
		jitter = sim.NewRandom(ac.Seed)
	}
	c.pool = sim.NewPool(sim.PoolConfig{
		Size:            ac.Count,
		StartJitterMean: ac.StartJitterMean,
		TimeUnit:        ac.TimeUnit(),
	}, factory, jitter, c.logger)
	c.pool.SetStartListener(func(int) { c.monitor.RecordAgentStarted() })
	c.pool.SetExitListener(func(id int, err error) {
		c.monitor.RecordAgentStopped()
		if err == nil {
			return
		}
		c.monitor.RecordAgentFailure()
		_ = c.alerts.SendWarning(fmt.Sprintf("agent %d exited", id), zap.Int("agent", id), zap.Error(err))
		if failed := len(c.pool.FailedIDs()); failed == ac.Count {
			_ = c.alerts.SendCritical("all agents exited with errors", zap.Int("count", failed))
		}
	})

	c.logger.Info("agents built",
		zap.Int("count", ac.Count),
		zap.Int("max_orders", ac.MaxOrders),
		zap.String("cancel_mode", string(mode)))
	return nil
}

func (c *Container) observeIteration(it sim.Iteration) {
	c.monitor.RecordIteration(string(it.Action), it.OpenOrders)
	switch it.Action {
	case sim.ActionPlace:
		c.monitor.RecordOrderPlaced(it.Limit)
	case sim.ActionCancel:
		c.monitor.RecordOrderCanceled()
	}
}

func (c *Container) registerLifecycleComponents() {
	if c.monitor != nil && c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	c.lifecycle.Register(&poolComponent{pool: c.pool})
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Wait 阻塞直到所有 agent 退出（ctx 取消或全部失败）。
func (c *Container) Wait() {
	c.pool.Wait()
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.LogError(err, zap.String("action", "stop"))
		return err
	}

	c.httpClient.CloseIdleConnections()

	if failed := c.pool.FailedIDs(); len(failed) > 0 {
		c.logger.Warn("agents exited with errors", zap.Ints("agents", failed), zap.Int("started", c.pool.Started()))
	}
	c.logger.Info("container stopped")

	if c.logger != nil {
		c.logger.Close()
	}

	return nil
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Pool 返回 agent 池
func (c *Container) Pool() *sim.Pool { return c.pool }

// Monitor 返回指标收集器
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

// MetricsAddr 返回 /metrics 实际监听地址（未启动时为空）
func (c *Container) MetricsAddr() string {
	if c.metricsServer == nil {
		return ""
	}
	return c.metricsServer.Addr
}
