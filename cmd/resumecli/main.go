package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/storage"
)

const usage = `用法: resumecli <命令> [参数]

命令:
  analyze <文件或目录>   解析 PDF/DOCX 简历并输出 JSON
  sweep                  清理过期的会话目录与索引
  init-config <路径>     生成默认配置文件
  version                显示版本号
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "analyze":
		err = runAnalyze(args)
	case "sweep":
		err = runSweep(args)
	case "init-config":
		err = runInitConfig(args)
	case "version":
		fmt.Printf("%s %s\n", constants.AppName, constants.AppVersion)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		color.Red("错误: 未知命令 '%s'", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		color.Red("错误: %v", err)
		os.Exit(1)
	}
}

// commonFlags 各子命令共用的参数
type commonFlags struct {
	configPath string
	logLevel   string
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "配置文件路径，为空时自动查找")
	fs.StringVar(&f.logLevel, "log-level", "warn", "日志级别")
}

// setup 加载配置并初始化日志与存储
func (f *commonFlags) setup(ctx context.Context) (*config.Config, *storage.Storage, func(), error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// 命令行输出留给结果，日志只写到文件或以较高级别输出
	logCloser, err := logger.Init(logger.Config{
		Level:      f.logLevel,
		Format:     "pretty",
		TimeFormat: "15:04:05",
		File:       cfg.Logger.File,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logCloser.Close()
		return nil, nil, nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	cleanup := func() {
		store.Close()
		logCloser.Close()
	}
	return cfg, store, cleanup, nil
}

func runSweep(args []string) error {
	fs := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	maxAge := fs.Duration("max-age", 0, "会话过期时间，为 0 时使用配置文件中的值")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, store, cleanup, err := common.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	age := config.GetDuration(cfg.Analysis.StaleSessionAge, processor.DefaultStaleSessionAge)
	if *maxAge > 0 {
		age = *maxAge
	}

	sweeper := processor.NewSweeper(store.Sessions, store.Registry, store.Vectors, store.CollectionPrefix, age)
	report := sweeper.Sweep(ctx)

	color.Cyan("会话目录: %s (过期时间 %s)", store.Sessions.Root(), age)
	fmt.Printf("扫描: %d  删除: %d  失败: %d  登记无主索引: %d\n", report.Scanned, report.Removed, report.Errors, report.Adopted)
	if report.Errors > 0 {
		return fmt.Errorf("%d 个会话清理失败，详见日志", report.Errors)
	}
	color.Green("✓ 清理完成")
	return nil
}

func runInitConfig(args []string) error {
	fs := pflag.NewFlagSet("init-config", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := "config.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if err := config.CreateSampleConfig(path); err != nil {
		return err
	}
	color.Green("✓ 已生成配置文件: %s", path)
	return nil
}
