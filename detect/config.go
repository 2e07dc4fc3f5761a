// Package detect 对相邻快照做差分，识别值得关注的市场事件。
// 检测函数全部为纯函数；滚动状态由 Worker 持有并通过消息驱动。
package detect

import (
	"fmt"

	"book-replay-go/events"
)

// Thresholds 三段递增阈值，把测量值映射到严重级别。
type Thresholds struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// Classify 按阈值分级；低于 Low 时 ok 为 false（不产生事件）。
func (t Thresholds) Classify(magnitude float64) (events.Severity, bool) {
	switch {
	case magnitude >= t.High:
		return events.SeverityHigh, true
	case magnitude >= t.Medium:
		return events.SeverityMedium, true
	case magnitude >= t.Low:
		return events.SeverityLow, true
	default:
		return "", false
	}
}

func (t Thresholds) validate(name string) error {
	if t.Low <= 0 {
		return fmt.Errorf("%s.low must be > 0", name)
	}
	if t.Medium < t.Low || t.High < t.Medium {
		return fmt.Errorf("%s thresholds must be ascending (low <= medium <= high)", name)
	}
	return nil
}

// Config 检测器参数。
type Config struct {
	LargeOrder   Thresholds `yaml:"largeOrder"`   // 单档挂单量变化（BTC）
	SpreadChange Thresholds `yaml:"spreadChange"` // 价差绝对变化（美元）
	LiquidityGap Thresholds `yaml:"liquidityGap"` // 相邻档位价格缺口（百分比）
	RapidCancel  Thresholds `yaml:"rapidCancel"`  // 时间窗内撤单数量
	Breakthrough Thresholds `yaml:"breakthrough"` // 被突破关键位的累计挂单量

	SpreadSanityCeiling float64 `yaml:"spreadSanityCeiling"` // 超过该值的价差视为脏数据，跳过比较
	GapDepth            int     `yaml:"gapDepth"`            // 缺口扫描只看最优价附近的前 K 档
	CancelWindowMs      int64   `yaml:"cancelWindowMs"`      // 撤单统计的尾随时间窗
	SignificantWindow   int     `yaml:"significantWindow"`   // 关键位计算回看的快照条数
	SignificantCount    int     `yaml:"significantCount"`    // 保留的关键位数量
}

// DefaultConfig 返回默认参数。
func DefaultConfig() Config {
	return Config{
		LargeOrder:          Thresholds{Low: 6, Medium: 8, High: 10},
		SpreadChange:        Thresholds{Low: 1, Medium: 3, High: 5},
		LiquidityGap:        Thresholds{Low: 0.3, Medium: 0.6, High: 1.0},
		RapidCancel:         Thresholds{Low: 8, Medium: 15, High: 25},
		Breakthrough:        Thresholds{Low: 50, Medium: 150, High: 400},
		SpreadSanityCeiling: 500,
		GapDepth:            15,
		CancelWindowMs:      1000,
		SignificantWindow:   100,
		SignificantCount:    5,
	}
}

// Validate 校验参数合法性。
func (c Config) Validate() error {
	for _, t := range []struct {
		name string
		th   Thresholds
	}{
		{"largeOrder", c.LargeOrder},
		{"spreadChange", c.SpreadChange},
		{"liquidityGap", c.LiquidityGap},
		{"rapidCancel", c.RapidCancel},
		{"breakthrough", c.Breakthrough},
	} {
		if err := t.th.validate(t.name); err != nil {
			return err
		}
	}
	if c.SpreadSanityCeiling <= 0 {
		return fmt.Errorf("spreadSanityCeiling must be > 0")
	}
	if c.GapDepth <= 1 {
		return fmt.Errorf("gapDepth must be > 1")
	}
	if c.CancelWindowMs <= 0 {
		return fmt.Errorf("cancelWindowMs must be > 0")
	}
	if c.SignificantWindow <= 0 || c.SignificantCount <= 0 {
		return fmt.Errorf("significant level window/count must be > 0")
	}
	return nil
}
