package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"book-replay-go/archive"
	"book-replay-go/config"
	"book-replay-go/logs"
)

// archive_stats 查看持久层快照规模与覆盖的时间范围。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Tier.RedisURL == "" {
		log.Fatal("未配置 Redis（tier.redisURL 或 BR_REDIS_URL），无持久层可查")
	}

	tier, err := archive.NewRedisTier(cfg.Tier.RedisURL, cfg.Tier.RedisPassword, cfg.Tier.Key, cfg.Tier.MaxRows, logs.DefaultLogger)
	if err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}
	defer tier.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := tier.Count(ctx)
	if err != nil {
		log.Fatalf("查询条数失败: %v", err)
	}
	fmt.Printf("key:   %s\n", cfg.Tier.Key)
	fmt.Printf("rows:  %d / %d\n", count, cfg.Tier.MaxRows)

	oldest, ok, err := tier.OldestTimestamp(ctx)
	if err != nil {
		log.Fatalf("查询最早时间失败: %v", err)
	}
	if !ok {
		fmt.Println("range: (empty)")
		return
	}
	newest, _, err := tier.NewestTimestamp(ctx)
	if err != nil {
		log.Fatalf("查询最新时间失败: %v", err)
	}

	span := time.Duration(newest-oldest) * time.Millisecond
	fmt.Printf("range: %s .. %s (%s)\n",
		time.UnixMilli(oldest).Format(time.RFC3339),
		time.UnixMilli(newest).Format(time.RFC3339),
		span.Round(time.Second))
}
