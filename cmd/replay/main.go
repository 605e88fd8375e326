package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"market-sim-go/config"
	"market-sim-go/infrastructure/logger"
	"market-sim-go/infrastructure/monitor"
	"market-sim-go/replay"
)

// 把订单簿日志回放成逐帧直方图：每条快照一张 NNNN.png。
func main() {
	cfgPath := flag.String("config", "", "配置文件路径（留空使用默认参数）")
	input := flag.String("input", "", "订单簿日志文件，覆盖配置文件")
	outDir := flag.String("out", "", "图片输出目录，覆盖配置文件")
	follow := flag.Bool("follow", false, "持续监听日志文件并增量渲染")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *input != "" {
		cfg.Replay.Input = *input
	}
	if *outDir != "" {
		cfg.Replay.OutputDir = *outDir
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	defer lg.Close()

	rc := cfg.Replay
	renderer, err := replay.NewRenderer(replay.RenderConfig{
		OutputDir: rc.OutputDir,
		Spec:      replay.HistogramSpec{Bins: rc.Bins, Min: rc.PriceMin, Max: rc.PriceMax, YMax: rc.YMax},
		Width:     rc.Width,
		Height:    rc.Height,
	})
	if err != nil {
		log.Fatalf("初始化渲染器失败: %v", err)
	}
	player := replay.NewPlayer(renderer, lg.With(zap.String("input", rc.Input)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *follow {
		// 跟随模式长期运行，暴露渲染进度
		if cfg.Metrics.Addr != "" {
			mon := monitor.New(monitor.DefaultConfig())
			player.Recorder = mon
			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mon.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					lg.LogError(err, zap.String("component", "metrics_server"))
				}
			}()
			defer srv.Close()
		}
		if err := player.Follow(ctx, rc.Input); err != nil {
			lg.Close()
			log.Fatalf("回放失败: %v", err)
		}
		log.Printf("rendered %d snapshots into %s", player.Rendered(), rc.OutputDir)
		return
	}
	n, err := player.Run(ctx, rc.Input)
	if err != nil {
		lg.Close()
		log.Fatalf("回放失败（已渲染 %d 张）: %v", n, err)
	}
	log.Printf("rendered %d snapshots into %s", n, rc.OutputDir)
}
