package xrun

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidInterval 表示 Ticker 间隔不是正数。
var ErrInvalidInterval = errors.New("xrun: interval must be positive")

// Ticker 返回周期执行 fn 的任务，ctx 取消时返回 ctx.Err()。
// immediate 为 true 时启动即执行一次。
func Ticker(interval time.Duration, immediate bool, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		if immediate {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx); err != nil {
				return err
			}
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := fn(ctx); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
