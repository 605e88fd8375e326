package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"market-sim-go/infrastructure/logger"
	"market-sim-go/order"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Agents   AgentsConfig   `yaml:"agents"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Replay   ReplayConfig   `yaml:"replay"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AgentsConfig agent 池规模与单个 agent 的决策参数。
type AgentsConfig struct {
	Count            int               `yaml:"count"`
	MaxOrders        int               `yaml:"maxOrders"`        // 单账户挂单上限，达到 maxOrders-1 前触发撤单
	StartJitterMean  float64           `yaml:"startJitterMean"`  // 错峰启动的 Poisson 均值（时间单位）
	CancelMode       string            `yaml:"cancelMode"`       // newest | oldest
	InitialPriceMean float64           `yaml:"initialPriceMean"` // 种子单价格 N(mean, std)
	InitialPriceStd  float64           `yaml:"initialPriceStd"`
	JitterScale      float64           `yaml:"jitterScale"`      // 中间价扰动系数
	InterArrivalMean float64           `yaml:"interArrivalMean"` // 循环间隔的 Poisson 均值（时间单位）
	TimeUnitMs       int               `yaml:"timeUnitMs"`
	Seed             uint64            `yaml:"seed"` // 0 = 按时间取种子
	Account          order.AccountInit `yaml:"account"`
}

type ExchangeConfig struct {
	BaseURL   string      `yaml:"baseURL"`
	TimeoutMs int         `yaml:"timeoutMs"`
	Retry     RetryConfig `yaml:"retry"`
	RateLimit float64     `yaml:"rateLimit"` // 全池每秒请求上限，0 = 不限
	RateBurst int         `yaml:"rateBurst"`
}

type RetryConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxTries  uint `yaml:"maxTries"`
	InitialMs int  `yaml:"initialMs"`
	MaxMs     int  `yaml:"maxMs"`
}

type ReplayConfig struct {
	Input     string  `yaml:"input"`
	OutputDir string  `yaml:"outputDir"`
	Bins      int     `yaml:"bins"`
	PriceMin  float64 `yaml:"priceMin"`
	PriceMax  float64 `yaml:"priceMax"`
	YMax      float64 `yaml:"yMax"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空则不启动 /metrics
}

// TimeUnit 返回一个时间单位对应的时长。
func (a AgentsConfig) TimeUnit() time.Duration {
	return time.Duration(a.TimeUnitMs) * time.Millisecond
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

func (r RetryConfig) Initial() time.Duration { return time.Duration(r.InitialMs) * time.Millisecond }
func (r RetryConfig) Max() time.Duration     { return time.Duration(r.MaxMs) * time.Millisecond }

// Default 返回基线参数：70 个 agent，MAX_ORDERS=10，本地交易所。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Agents: AgentsConfig{
			Count:            70,
			MaxOrders:        10,
			StartJitterMean:  1,
			CancelMode:       "newest",
			InitialPriceMean: 100,
			InitialPriceStd:  10,
			JitterScale:      0.01,
			InterArrivalMean: 0.5,
			TimeUnitMs:       1000,
			Account:          order.AccountInit{Balance: 10000, Position: 0},
		},
		Exchange: ExchangeConfig{
			BaseURL:   "http://127.0.0.1:3000/api",
			TimeoutMs: 5000,
			Retry:     RetryConfig{Enabled: false, MaxTries: 3, InitialMs: 100, MaxMs: 2000},
			RateBurst: 1,
		},
		Replay: ReplayConfig{
			Input:     "output.txt",
			OutputDir: "output",
			Bins:      100,
			PriceMin:  80,
			PriceMax:  120,
			YMax:      400,
			Width:     640,
			Height:    480,
		},
		Log:     logger.DefaultConfig(),
		Metrics: MetricsConfig{Addr: ":9100"},
	}
}

// Load reads YAML config from path on top of Default() and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides fields from env vars (and an optional .env file) if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg AppConfig
	var err error
	if path == "" {
		cfg = Default()
	} else if cfg, err = Load(path); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("ZI_EXCHANGE_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("ZI_AGENT_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ZI_AGENT_COUNT: %w", err)
		}
		cfg.Agents.Count = n
	}
	if v := os.Getenv("ZI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}
