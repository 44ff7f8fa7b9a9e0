// Package ratelimit 为外部协作方调用提供令牌桶限流。
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// New 按每秒请求数与突发量构造限流器；limit <= 0 时返回 nil，表示不限流。
func New(limit float64, burst int) *rate.Limiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

// Wait 阻塞直到获得令牌或 ctx 结束；limiter 为 nil 时立即返回。
func Wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
