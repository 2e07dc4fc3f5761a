package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
symbol: BTCUSDT
metricsAddr: ""
logger:
  level: error
  format: json
archive:
  cadenceMs: 10
playback:
  rangeRefreshMs: 20
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestContainerBuildAndLifecycle(t *testing.T) {
	c, err := New(writeTempConfig(t), Options{DisableFeed: true})
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	if err := c.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}

	if c.Engine() == nil || c.Detector() == nil || c.Playback() == nil || c.Events() == nil {
		t.Fatal("components missing after build")
	}

	// 未启动时健康检查应失败
	if err := c.HealthCheck(); err == nil {
		t.Fatal("expected unhealthy before start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.HealthCheck(); err != nil {
		t.Fatalf("unhealthy after start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestContainerRejectsBadConfigPath(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope.yaml"), Options{}); err == nil {
		t.Fatal("expected error for missing config")
	}
}
