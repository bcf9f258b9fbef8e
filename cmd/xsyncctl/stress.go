package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/omeyang/xsync/pkg/lifecycle/xrun"
)

type stressParams struct {
	keys       int
	workers    int
	iterations int
	hold       time.Duration
	reentrant  bool
	progress   time.Duration
}

func createStressCommand() *cli.Command {
	return &cli.Command{
		Name:  "stress",
		Usage: "并发压测锁注册表，统计互斥冲突、等待时间与 key 回收",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keys", Aliases: []string{"k"}, Usage: "key 数量", Value: 4},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "并发 worker 数", Value: 16},
			&cli.IntFlag{Name: "iterations", Aliases: []string{"n"}, Usage: "每个 worker 的加锁次数", Value: 100},
			&cli.DurationFlag{Name: "hold", Usage: "每次持锁时间", Value: 100 * time.Microsecond},
			&cli.BoolFlag{Name: "reentrant", Usage: "持锁期间再次获取同一 key"},
			&cli.DurationFlag{Name: "progress", Usage: "进度日志间隔，0 表示关闭"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p := stressParams{
				keys:       cmd.Int("keys"),
				workers:    cmd.Int("workers"),
				iterations: cmd.Int("iterations"),
				hold:       cmd.Duration("hold"),
				reentrant:  cmd.Bool("reentrant"),
				progress:   cmd.Duration("progress"),
			}
			if p.keys <= 0 || p.workers <= 0 || p.iterations <= 0 {
				return newUsageError("--keys/--workers/--iterations 必须为正数")
			}
			if p.hold < 0 || p.progress < 0 {
				return newUsageError("--hold/--progress 不能为负数")
			}
			return cmdStress(ctx, cmd, p)
		},
	}
}

type stressStats struct {
	grants     atomic.Int64
	violations atomic.Int64
	waitTotal  atomic.Int64
	waitMax    atomic.Int64
}

func (st *stressStats) observeWait(d time.Duration) {
	st.waitTotal.Add(int64(d))
	for {
		cur := st.waitMax.Load()
		if int64(d) <= cur || st.waitMax.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

func cmdStress(ctx context.Context, cmd *cli.Command, p stressParams) (err error) {
	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, s.close(context.Background())) }()

	var st stressStats
	inside := make([]atomic.Int32, p.keys)

	worker := func(ctx context.Context) error {
		for range p.iterations {
			k := rand.IntN(p.keys)
			key := "key-" + strconv.Itoa(k)

			start := time.Now()
			h, err := s.locker.Acquire(ctx, key)
			if err != nil {
				return err
			}
			st.observeWait(time.Since(start))
			st.grants.Add(1)

			if inside[k].Add(1) != 1 {
				st.violations.Add(1)
			}
			if p.reentrant {
				nested, err := s.locker.Acquire(h.Context(), key)
				if err != nil {
					_ = h.Unlock()
					return err
				}
				_ = nested.Unlock()
			}
			if p.hold > 0 {
				time.Sleep(p.hold)
			}
			inside[k].Add(-1)

			if err := h.Unlock(); err != nil {
				return err
			}
		}
		return nil
	}

	start := time.Now()
	err = s.run(ctx, "stress", func(ctx context.Context) error {
		g, _ := xrun.NewGroup(ctx)
		for range p.workers {
			g.Go(worker)
		}
		if p.progress == 0 {
			return g.Wait()
		}
		pctx, stopProgress := context.WithCancel(ctx)
		var pg sync.WaitGroup
		pg.Go(func() {
			_ = xrun.Ticker(p.progress, false, func(ctx context.Context) error {
				s.logger.Info(ctx, "xsyncctl: stress progress",
					slog.Int64("grants", st.grants.Load()),
					slog.Int("active_keys", s.locker.Len()))
				return nil
			})(pctx)
		})
		err := g.Wait()
		stopProgress()
		pg.Wait()
		return err
	})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	w := cmd.Root().Writer
	grants := st.grants.Load()
	fmt.Fprintf(w, "grants:      %d\n", grants)
	fmt.Fprintf(w, "violations:  %d\n", st.violations.Load())
	fmt.Fprintf(w, "max wait:    %s\n", time.Duration(st.waitMax.Load()).Round(time.Microsecond))
	if grants > 0 {
		fmt.Fprintf(w, "avg wait:    %s\n", (time.Duration(st.waitTotal.Load()) / time.Duration(grants)).Round(time.Microsecond))
	}
	fmt.Fprintf(w, "active keys: %d\n", s.locker.Len())
	fmt.Fprintf(w, "elapsed:     %s\n", elapsed.Round(time.Millisecond))
	if err := writeOperationSummary(ctx, w, s); err != nil {
		return err
	}

	if st.violations.Load() > 0 || s.locker.Len() != 0 {
		return &exitError{code: 1}
	}
	return nil
}

// writeOperationSummary 输出 xsync.operation.total 按 component.operation/status 的计数。
func writeOperationSummary(ctx context.Context, w io.Writer, s *session) error {
	var rm metricdata.ResourceMetrics
	if err := s.metrics.Collect(ctx, &rm); err != nil {
		return err
	}
	counts := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || m.Name != "xsync.operation.total" {
				continue
			}
			for _, dp := range sum.DataPoints {
				comp, _ := dp.Attributes.Value("component")
				op, _ := dp.Attributes.Value("operation")
				status, _ := dp.Attributes.Value("status")
				counts[comp.AsString()+"."+op.AsString()+" "+status.AsString()] += dp.Value
			}
		}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "op %-24s %d\n", name, counts[name])
	}
	return nil
}
