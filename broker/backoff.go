package broker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newBackOff 按重试配置构造指数退避.
func newBackOff(cfg RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.MinTimeout
	b.MaxInterval = cfg.MaxTimeout
	b.Multiplier = cfg.Factor
	if cfg.Randomize != nil && !*cfg.Randomize {
		b.RandomizationFactor = 0
	}
	return b
}

// maxTries 返回总尝试次数（首次 + 重试）.
func (cfg RetryConfig) maxTries() uint {
	if cfg.Retries < 0 {
		return 1
	}
	return uint(cfg.Retries) + 1
}

// retry 按配置重试 op，直到成功、重试耗尽或 ctx 结束.
func retry[T any](ctx context.Context, cfg RetryConfig, op func() (T, error), notify func(error, time.Duration)) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(cfg.maxTries()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}
