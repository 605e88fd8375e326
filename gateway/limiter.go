package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter 控制请求速率，避免压垮交易所。多个 agent 可共享同一个实例。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// NewRateLimiter 返回令牌桶限流器；perSecond <= 0 时返回 nil（不限流）。
func NewRateLimiter(perSecond float64, burst int) RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
