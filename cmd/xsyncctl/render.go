package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xsync/pkg/lifecycle/xrun"
	"github.com/omeyang/xsync/pkg/render/xmacro"
)

func createRenderCommand() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "并发渲染含 {{sync}} 宏的页面，同一宏调用点串行执行",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "页面文件",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "页面引用，参与宏 id 推导（默认取文件名去扩展名）",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "并发渲染次数",
				Value:   4,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workers := cmd.Int("workers")
			if workers <= 0 {
				return newUsageError("--workers 必须为正数，当前 %d", workers)
			}
			path := cmd.String("file")
			source := cmd.String("source")
			if source == "" {
				source = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			return cmdRender(ctx, cmd, path, source, workers)
		},
	}
}

type renderResult struct {
	output  string
	elapsed time.Duration
}

func cmdRender(ctx context.Context, cmd *cli.Command, path, source string, workers int) (err error) {
	page, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取页面失败: %w", err)
	}
	// 提前校验语法，避免启动 worker 后才发现错误
	if _, err := xmacro.Scan(string(page)); err != nil {
		return err
	}

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, s.close(context.Background())) }()

	macro, err := xmacro.New(s.locker, xmacro.TextParser{},
		xmacro.WithLogger(s.logger),
		xmacro.WithObserver(s.observer),
	)
	if err != nil {
		return err
	}

	results := make([]renderResult, workers)
	err = s.run(ctx, "render", func(ctx context.Context) error {
		g, _ := xrun.NewGroup(ctx)
		for i := range workers {
			g.Go(func(ctx context.Context) error {
				start := time.Now()
				out, err := macro.Render(ctx, string(page), source)
				if err != nil {
					return err
				}
				results[i] = renderResult{output: out, elapsed: time.Since(start)}
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	fmt.Fprintln(w, results[0].output)
	fmt.Fprintln(w, "---")
	for i, r := range results {
		same := ""
		if r.output != results[0].output {
			same = " (输出不同)"
		}
		fmt.Fprintf(w, "worker %d: %s%s\n", i, r.elapsed.Round(time.Microsecond), same)
	}
	return nil
}

func joinClose(err, closeErr error) error {
	if closeErr == nil {
		return err
	}
	if err == nil {
		return closeErr
	}
	return fmt.Errorf("%w (close: %v)", err, closeErr)
}
