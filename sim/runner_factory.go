package sim

import (
	"errors"
	"net/http"
	"time"

	"market-sim-go/gateway"
	"market-sim-go/infrastructure/logger"
)

// RunnerConfig 描述组装 Runner 所需的全部参数。
type RunnerConfig struct {
	Agent Config

	BaseURL  string
	Timeout  time.Duration
	Retry    gateway.RetryPolicy
	Seed     uint64 // 0 = 按时间取种子；非 0 时每个 agent 用 Seed+id

	// 以下为可共享对象：连接池、限流器、指标接收器、日志。
	HTTPClient *http.Client
	Limiter    gateway.RateLimiter
	Recorder   gateway.Recorder
	Logger     *logger.Logger
}

// BuildRunner 为第 id 个 agent 组装独立的 REST 客户端与随机源。
func BuildRunner(id int, cfg RunnerConfig) (*Runner, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url required")
	}
	if cfg.Agent.MaxOrders < 2 {
		return nil, errors.New("maxOrders must be >= 2")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = gateway.NewDefaultHTTPClient(cfg.Timeout)
	}
	client := &gateway.RESTClient{
		BaseURL:    cfg.BaseURL,
		HTTPClient: hc,
		Timeout:    cfg.Timeout,
		Limiter:    cfg.Limiter,
		Retry:      cfg.Retry,
		Recorder:   cfg.Recorder,
	}
	seed := uint64(time.Now().UnixNano()) ^ uint64(id+1)<<40
	if cfg.Seed != 0 {
		seed = cfg.Seed + uint64(id)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		ID:     id,
		Client: client,
		Cfg:    cfg.Agent,
		Rand:   NewRandom(seed),
		Logger: log,
	}, nil
}
