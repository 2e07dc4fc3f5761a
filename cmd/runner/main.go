package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"book-replay-go/config"
	"book-replay-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	noFeed := flag.Bool("noFeed", false, "不接行情流，仅回放已有存档")
	flag.Parse()

	// .env 可选，用于本地开发注入 BR_* 变量
	_ = godotenv.Load()

	c, err := container.New(*cfgPath, container.Options{DisableFeed: *noFeed})
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}

	klog := c.Logger().KV()

	// 配置热更新：检测阈值改动无需重启
	hr, err := config.NewHotReloader(*cfgPath, config.DefaultHotReloadConfig(), klog)
	if err != nil {
		klog.Warn("config hot reload unavailable", "error", err)
	} else {
		hr.SetReloadHandler(func(newCfg config.AppConfig) error {
			// 只热应用检测参数，其余改动需要重启
			c.Detector().UpdateConfig(newCfg.Detector)
			klog.Info("detector thresholds updated")
			return nil
		})
		if err := hr.Start(ctx); err != nil {
			klog.Warn("config watch failed", "error", err)
		}
		defer hr.Stop()
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	klog.Info("runner ready", "symbol", c.Config().Symbol)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("停止失败: %v", err)
	}
}
