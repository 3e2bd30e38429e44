package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"resume-analyzer/internal/api/handler"
	"resume-analyzer/internal/api/router"
	"resume-analyzer/internal/config"
	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/storage"
	"resume-analyzer/internal/tracing"
)

func main() {
	var (
		configPath  string
		addr        string
		showVersion bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时自动查找")
	pflag.StringVar(&addr, "addr", "", "监听地址，覆盖配置文件中的 server.address")
	pflag.BoolVarP(&showVersion, "version", "v", false, "显示版本号")
	pflag.Parse()

	if showVersion {
		fmt.Printf("%s %s\n", constants.AppName, constants.AppVersion)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Address = addr
	}

	logCloser, err := logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	hlog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing, constants.AppVersion)
	if err != nil {
		hlog.Fatalf("初始化链路追踪失败: %v", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		hlog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	hlog.Infof("存储服务初始化成功，会话目录: %s", storageManager.Sessions.Root())

	components, err := processor.CreateFromConfig(ctx, cfg, storageManager)
	if err != nil {
		hlog.Fatalf("初始化简历分析器失败: %v", err)
	}
	hlog.Info("简历分析器初始化成功")

	// 启动时先清理上次遗留的会话，然后按周期执行
	sweepInterval := config.GetDuration(cfg.Analysis.SweepInterval, time.Hour)
	go components.Sweeper.Start(ctx, sweepInterval)
	hlog.Infof("过期会话清理任务已启动，周期: %s", sweepInterval)

	resumeHandler := handler.NewResumeHandler(cfg, components.Analyzer, components.Sweeper)

	serverTracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(maxBodySize(cfg.Server.MaxUploadMB)),
		serverTracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		hlog.CtxInfof(c, "%s %s -> %d (%s)", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, resumeHandler)
	hlog.Info("HTTP路由注册成功")

	hlog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			hlog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	hlog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		hlog.Errorf("服务器关闭失败: %v", err)
	}

	// 停止后台清理并等待进行中的一轮结束
	cancel()
	components.Sweeper.Wait()

	if err := shutdownTracing(shutdownCtx); err != nil {
		hlog.Warnf("关闭链路追踪失败: %v", err)
	}
	hlog.Info("优雅退出完成")
}

// maxBodySize 请求体上限在文件上限之外预留表单字段的空间
func maxBodySize(maxUploadMB int) int {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return (maxUploadMB + 1) << 20
}
