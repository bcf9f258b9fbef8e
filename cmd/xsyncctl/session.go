package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/omeyang/xsync/pkg/config/xconf"
	"github.com/omeyang/xsync/pkg/context/xctx"
	"github.com/omeyang/xsync/pkg/lifecycle/xrun"
	"github.com/omeyang/xsync/pkg/observability/xlog"
	"github.com/omeyang/xsync/pkg/observability/xmetrics"
	"github.com/omeyang/xsync/pkg/util/xkeylock"
)

// appConfig 是配置文件结构。
type appConfig struct {
	Lock struct {
		Shards  int `koanf:"shards"`
		MaxKeys int `koanf:"max_keys"`
	} `koanf:"lock"`
	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
		File   string `koanf:"file"`
	} `koanf:"log"`
}

var configDefaults = map[string]any{
	"lock.shards":   32,
	"lock.max_keys": 0,
	"log.level":     "info",
	"log.format":    "text",
	"log.file":      "",
}

// session 聚合一次命令执行所需的组件，close 按创建的逆序释放。
type session struct {
	cfg      appConfig
	conf     xconf.Config
	logger   xlog.LoggerWithLevel
	observer xmetrics.Observer
	metrics  *sdkmetric.ManualReader
	locker   xkeylock.Locker
	watcher  *xconf.Watcher
	closers  []func(context.Context) error
}

func newSession(ctx context.Context, cmd *cli.Command) (_ *session, err error) {
	s := &session{}
	defer func() {
		if err != nil {
			err = errors.Join(err, s.close(ctx))
		}
	}()

	if err := s.loadConfig(cmd); err != nil {
		return nil, err
	}
	if err := s.buildLogger(cmd); err != nil {
		return nil, err
	}
	if err := s.buildObserver(cmd); err != nil {
		return nil, err
	}

	s.locker, err = xkeylock.New(
		xkeylock.WithShardCount(s.cfg.Lock.Shards),
		xkeylock.WithMaxKeys(s.cfg.Lock.MaxKeys),
		xkeylock.WithLogger(s.logger),
		xkeylock.WithObserver(s.observer),
	)
	if err != nil {
		return nil, newUsageError("lock 配置无效: %v", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return s.locker.Close() })

	if cmd.Root().Bool("watch") {
		if s.conf == nil {
			return nil, newUsageError("--watch 需要 --config")
		}
		s.watcher, err = xconf.Watch(s.conf, s.onReload)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) loadConfig(cmd *cli.Command) error {
	root := cmd.Root()
	var err error
	if path := root.String("config"); path != "" {
		s.conf, err = xconf.New(path, xconf.WithDefaults(configDefaults))
	} else {
		s.conf, err = xconf.NewFromBytes(nil, xconf.FormatYAML, xconf.WithDefaults(configDefaults))
	}
	if err != nil {
		if errors.Is(err, xconf.ErrUnsupportedFormat) {
			return newUsageError("%v", err)
		}
		return err
	}
	if err := s.conf.Unmarshal("", &s.cfg); err != nil {
		return err
	}
	if s.conf.Path() == "" {
		s.conf = nil
	}

	// 显式指定的 flag 覆盖配置文件
	if root.IsSet("log-level") || s.cfg.Log.Level == "" {
		s.cfg.Log.Level = root.String("log-level")
	}
	if root.IsSet("log-format") || s.cfg.Log.Format == "" {
		s.cfg.Log.Format = root.String("log-format")
	}
	if root.IsSet("log-file") {
		s.cfg.Log.File = root.String("log-file")
	}
	return nil
}

func (s *session) buildLogger(cmd *cli.Command) error {
	b := xlog.New().
		SetOutput(cmd.Root().ErrWriter).
		SetLevelString(s.cfg.Log.Level).
		SetFormat(s.cfg.Log.Format)
	if s.cfg.Log.File != "" {
		b = b.SetRotation(s.cfg.Log.File)
	}
	logger, cleanup, err := b.Build()
	if err != nil {
		return newUsageError("日志配置无效: %v", err)
	}
	s.logger = logger
	s.closers = append(s.closers, func(context.Context) error { return cleanup() })
	return nil
}

func (s *session) buildObserver(cmd *cli.Command) error {
	s.metrics = sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(s.metrics))
	s.closers = append(s.closers, mp.Shutdown)
	opts := []xmetrics.Option{xmetrics.WithMeterProvider(mp)}

	if cmd.Root().Bool("trace") {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cmd.Root().ErrWriter))
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		s.closers = append(s.closers, tp.Shutdown)
		opts = append(opts, xmetrics.WithTracerProvider(tp))
	}

	obs, err := xmetrics.NewOTelObserver(opts...)
	if err != nil {
		return err
	}
	s.observer = obs
	return nil
}

// onReload 只热更新日志级别，锁配置需要重启生效。
func (s *session) onReload(cfg xconf.Config, err error) {
	ctx := context.Background()
	if err != nil {
		s.logger.Warn(ctx, "xsyncctl: config reload failed", xlog.Err(err))
		return
	}
	level, err := xlog.ParseLevel(cfg.Client().String("log.level"))
	if err != nil {
		s.logger.Warn(ctx, "xsyncctl: invalid log level in config", xlog.Err(err))
		return
	}
	s.logger.SetLevel(level)
	s.logger.Info(ctx, "xsyncctl: log level reloaded", slog.String("level", level.String()))
}

// run 在 xrun.Group 中执行 work，并在启用时并行运行配置监视。
// work 成功结束后取消 Group，使监视与信号任务退出。
func (s *session) run(ctx context.Context, name string, work func(ctx context.Context) error) error {
	ctx, err := xctx.EnsureRequestID(ctx)
	if err != nil {
		return err
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	tasks := []func(context.Context) error{
		func(ctx context.Context) error {
			if err := work(ctx); err != nil {
				return err
			}
			stop()
			return nil
		},
	}
	if s.watcher != nil {
		tasks = append(tasks, s.watcher.Run)
	}
	return xrun.Run(ctx, []xrun.Option{xrun.WithName(name), xrun.WithLogger(s.logger)}, tasks...)
}

func (s *session) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && !errors.Is(err, xkeylock.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
