package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"market-sim-go/config"
	"market-sim-go/internal/container"
)

// 启动一组零智能 agent，持续向交易所下单/撤单，直到收到 SIGINT/SIGTERM。
func main() {
	cfgPath := flag.String("config", "", "配置文件路径（留空使用默认参数）")
	agents := flag.Int("agents", 0, "agent 数量，覆盖配置文件")
	baseURL := flag.String("baseURL", "", "交易所 API 地址，覆盖配置文件")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置文件；\"-\" 关闭")
	duration := flag.Duration("duration", 0, "运行时长，0 表示直到收到信号")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *agents > 0 {
		cfg.Agents.Count = *agents
	}
	if *baseURL != "" {
		cfg.Exchange.BaseURL = *baseURL
	}
	switch *metricsAddr {
	case "":
	case "-":
		cfg.Metrics.Addr = ""
	default:
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("配置无效: %v", err)
	}

	c := container.NewWithConfig(cfg)
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify ready: %v", err)
	}

	// 所有 agent 都退出（全部失败）时也结束进程
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	started := c.Pool().Started()
	failed := len(c.Pool().FailedIDs())
	if err := c.Stop(); err != nil {
		log.Fatalf("停止失败: %v", err)
	}
	fmt.Fprintf(os.Stderr, "agents started=%d failed=%d\n", started, failed)
	if started > 0 && failed == started {
		os.Exit(1)
	}
}
