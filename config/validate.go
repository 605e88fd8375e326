package config

import (
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap/zapcore"
)

// Validate ensures required fields are present and ranges are sane.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if err := validateAgents(cfg.Agents); err != nil {
		return err
	}
	if err := validateExchange(cfg.Exchange); err != nil {
		return err
	}
	if err := validateReplay(cfg.Replay); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func validateAgents(a AgentsConfig) error {
	if a.Count <= 0 {
		return errors.New("agents.count must be > 0")
	}
	if a.MaxOrders < 2 {
		return errors.New("agents.maxOrders must be >= 2")
	}
	switch a.CancelMode {
	case "", "newest", "oldest":
	default:
		return fmt.Errorf("agents.cancelMode %q must be newest or oldest", a.CancelMode)
	}
	if a.StartJitterMean < 0 || a.InterArrivalMean < 0 {
		return errors.New("agents.startJitterMean/interArrivalMean must be >= 0")
	}
	if a.InitialPriceStd < 0 || a.JitterScale < 0 {
		return errors.New("agents.initialPriceStd/jitterScale must be >= 0")
	}
	if a.TimeUnitMs <= 0 {
		return errors.New("agents.timeUnitMs must be > 0")
	}
	if a.Account.Balance < 0 {
		return errors.New("agents.account.balance must be >= 0")
	}
	return nil
}

func validateExchange(e ExchangeConfig) error {
	if e.BaseURL == "" {
		return errors.New("exchange.baseURL is required")
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("exchange.baseURL %q must be an http(s) url", e.BaseURL)
	}
	if e.TimeoutMs <= 0 {
		return errors.New("exchange.timeoutMs must be > 0")
	}
	if e.RateLimit < 0 {
		return errors.New("exchange.rateLimit must be >= 0")
	}
	if e.RateLimit > 0 && e.RateBurst < 1 {
		return errors.New("exchange.rateBurst must be >= 1 when rateLimit is set")
	}
	if e.Retry.Enabled {
		if e.Retry.MaxTries < 1 {
			return errors.New("exchange.retry.maxTries must be >= 1")
		}
		if e.Retry.InitialMs <= 0 || e.Retry.MaxMs < e.Retry.InitialMs {
			return errors.New("exchange.retry requires 0 < initialMs <= maxMs")
		}
	}
	return nil
}

func validateReplay(r ReplayConfig) error {
	if r.Bins <= 0 {
		return errors.New("replay.bins must be > 0")
	}
	if r.PriceMax <= r.PriceMin {
		return errors.New("replay.priceMax must be greater than priceMin")
	}
	if r.YMax <= 0 {
		return errors.New("replay.yMax must be > 0")
	}
	if r.Width < 0 || r.Height < 0 {
		return errors.New("replay.width/height must be >= 0")
	}
	return nil
}
