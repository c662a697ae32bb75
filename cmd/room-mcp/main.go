package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/room-client/internal/app"
	"github.com/wfunc/room-client/internal/config"
	"github.com/wfunc/room-client/internal/logger"
	roommcp "github.com/wfunc/room-client/internal/mcp"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	withAPI := flag.Bool("api", false, "同时启动控制API")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	cfg.Control.Enabled = *withAPI

	// 日志只写 stderr 和文件，stdout 用于MCP通信
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	client, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := client.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}

	s, err := roommcp.New(cfg.MCP, client.Loop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := s.Serve(); err != nil {
		logger.Error("MCP服务退出", zap.Error(err))
	}

	if err := client.Shutdown(5 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "关闭失败: %v\n", err)
		os.Exit(1)
	}
}
