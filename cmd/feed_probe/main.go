package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"book-replay-go/gateway"
	"book-replay-go/logs"
	"book-replay-go/metrics"
)

// feed_probe 连接深度流并打印归一化更新，用于验证端点与解析。
func main() {
	endpoint := flag.String("endpoint", gateway.DefaultFeedEndpoint, "行情 WS 端点")
	symbol := flag.String("symbol", "BTCUSDT", "交易对")
	duration := flag.Duration("duration", 30*time.Second, "采样时长，0 为一直运行")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus 指标监听地址，留空则关闭")
	flag.Parse()

	if *metricsAddr != "" {
		metrics.StartMetricsServer(*metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	var total, snapshots int
	client := gateway.NewFeedClient(*endpoint, *symbol, logs.DefaultLogger)
	err := client.Run(ctx, func(u *gateway.BookUpdate) {
		total++
		if u.IsSnapshot {
			snapshots++
		}
		var bestBid, bestAsk float64
		if len(u.Bids) > 0 {
			bestBid = u.Bids[0].Price
		}
		if len(u.Asks) > 0 {
			bestAsk = u.Asks[0].Price
		}
		fmt.Printf("[%d] snapshot=%v bids=%d asks=%d best=%.2f/%.2f\n",
			u.EventTime, u.IsSnapshot, len(u.Bids), len(u.Asks), bestBid, bestAsk)
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("行情流异常退出: %v", err)
	}

	fmt.Printf("done: %d messages (%d snapshots)\n", total, snapshots)
}
