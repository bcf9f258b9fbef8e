// xsyncctl 演示与压测 sync 宏和按 key 的可重入公平锁。
//
// 用法:
//
//	xsyncctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件（yaml/json）
//	    --log-level   日志级别 (debug/info/warn/error)
//	    --log-format  日志格式 (text/json)
//	    --log-file    日志文件（按大小轮转）
//	    --watch       监视配置文件，热更新日志级别
//	    --trace       将 span 输出到 stderr
//
// 命令:
//
//	render   并发渲染含 {{sync}} 宏的页面
//	stress   对锁注册表进行并发压测，检查互斥与公平性
//
// 退出码:
//
//	0: 成功
//	1: 执行失败（包括压测发现互斥被破坏）
//	2: 参数错误
//
// 示例:
//
//	xsyncctl render --file page.txt --workers 8
//	xsyncctl --log-level debug stress --keys 4 --workers 32 --hold 1ms
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xsync/pkg/lifecycle/xrun"
)

// 版本信息，可通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xsyncctl",
		Usage:     "sync 宏与按 key 可重入公平锁的命令行工具",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（.yaml/.yml/.json）",
				Sources: cli.EnvVars("XSYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径，为空时输出到 stderr",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "监视配置文件变更并热更新日志级别",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "将 span 以 JSON 输出到 stderr",
			},
		},
		Commands: []*cli.Command{
			createRenderCommand(),
			createStressCommand(),
		},
		// 退出码由 run 统一映射，禁止 cli 直接 os.Exit
		ExitErrHandler: func(_ context.Context, cmd *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(cmd.Root().ErrWriter, err)
			}
		},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)
	err := app.Run(ctx, args)
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if errors.Is(err, xrun.ErrSignal) {
		fmt.Fprintf(stderr, "已中断: %v\n", err)
		return 130
	}
	if isCLIUsageError(err) {
		fmt.Fprintf(stderr, "参数错误: %v\n", err)
		return 2
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return 1
}
