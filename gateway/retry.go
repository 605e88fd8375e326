package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy 只对 ConnectivityError 做有界指数退避重试；默认关闭（快速失败）。
type RetryPolicy struct {
	Enabled         bool
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) do(ctx context.Context, fn func() error) error {
	if !p.Enabled || p.MaxTries <= 1 {
		return fn()
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && !IsConnectivity(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxTries))
	return err
}
