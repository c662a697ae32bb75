package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/room-client/internal/app"
	"github.com/wfunc/room-client/internal/config"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/utils"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		issueToken  = flag.String("issue-token", "", "为指定操作者签发控制API令牌后退出")
		tokenRole   = flag.String("role", utils.RoleOperator, "签发令牌的角色 (operator/observer)")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken, *tokenRole); err != nil {
			fmt.Fprintf(os.Stderr, "签发令牌失败: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	client, err := app.New(cfg)
	if err != nil {
		logger.Fatal("初始化失败", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := client.Start(ctx); err != nil {
		logger.Fatal("启动失败", zap.Error(err))
	}
	logger.Info("房间客户端已启动",
		zap.String("version", Version),
		zap.Stringer("client", client))

	<-client.Done()
	logger.Info("正在关闭...")

	timeout := cfg.Control.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := client.Shutdown(timeout); err != nil {
		logger.Error("关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("房间客户端已安全关闭")
}

func printToken(cfg *config.Config, operator, role string) error {
	if cfg.Control.JWT.Secret == "" {
		return fmt.Errorf("未配置 control.jwt.secret，控制API不校验令牌")
	}
	if role != utils.RoleOperator && role != utils.RoleObserver {
		return fmt.Errorf("未知角色: %s", role)
	}
	m := utils.NewJWTManager(cfg.Control.JWT.Secret, time.Duration(cfg.Control.JWT.ExpireHours)*time.Hour)
	token, err := m.GenerateToken(operator, role, app.SessionID(cfg.Client))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func printVersion() {
	fmt.Printf("房间客户端\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
