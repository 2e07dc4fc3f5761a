// Package playback 实现直播/回放双态的时间游标状态机。
// 所有状态变更在一把锁内完成，不存在半应用的转换。
package playback

import (
	"context"
	"sync"
	"time"

	"book-replay-go/metrics"
)

// Mode 当前处于直播还是回放。
type Mode int

const (
	ModeLive Mode = iota
	ModeReplay
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "LIVE"
	case ModeReplay:
		return "REPLAY"
	default:
		return "UNKNOWN"
	}
}

// Speeds 允许的回放倍速；传入集合之外的值是调用方的编程错误，会被忽略。
var Speeds = []float64{0.1, 0.5, 1, 2, 5, 10}

// ValidSpeed 判断倍速是否在允许集合内。
func ValidSpeed(s float64) bool {
	for _, v := range Speeds {
		if v == s {
			return true
		}
	}
	return false
}

// Range 闭区间时间范围（毫秒时间戳）。
type Range struct {
	Start int64
	End   int64
}

// State 状态机的一份拷贝，供 UI 层读取。
type State struct {
	Mode             Mode
	CurrentTimestamp int64
	Speed            float64
	IsPlaying        bool
	AvailableRange   *Range
	ViewRange        *Range
}

// Controller 回放控制器。
//
// viewRange 是进入回放那一刻对 availableRange 的冻结拷贝：
// 录制还在继续、可用范围还在增长，但用户正在拖动的时间轴不应随之漂移。
// 回到直播时 viewRange 清空；ExpandViewRange 是回放中主动追上新数据的入口。
type Controller struct {
	mu      sync.Mutex
	mode    Mode
	cursor  int64
	speed   float64
	playing bool
	avail   *Range
	view    *Range

	clock Clock
	tick  time.Duration
}

// New 创建控制器；tick 为回放推进的墙钟周期（默认 50ms）。
func New(tick time.Duration, clock Clock) *Controller {
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Controller{
		mode:   ModeLive,
		cursor: clock.Now().UnixMilli(),
		speed:  1,
		clock:  clock,
		tick:   tick,
	}
}

// SetCurrentTimestamp 设置游标，夹紧到活动范围内。
// 处于直播时任何显式设置游标的动作都会切入回放并冻结 viewRange。
func (c *Controller) SetCurrentTimestamp(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enterReplayLocked()
	c.cursor = c.clampLocked(t)
	metrics.PlaybackCursor.Set(float64(c.cursor))
}

// StepForward 前进 deltaMs 毫秒；强制进入回放并暂停播放。
func (c *Controller) StepForward(deltaMs int64) { c.step(deltaMs) }

// StepBackward 后退 deltaMs 毫秒；强制进入回放并暂停播放。
func (c *Controller) StepBackward(deltaMs int64) { c.step(-deltaMs) }

func (c *Controller) step(deltaMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enterReplayLocked()
	c.cursor = c.clampLocked(c.cursor + deltaMs)
	c.playing = false
	metrics.PlaybackCursor.Set(float64(c.cursor))
}

// Play 开始回放；直播模式下是 no-op。
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeReplay {
		return
	}
	c.playing = true
}

// Pause 无条件暂停。
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
}

// TogglePlayPause 回放中翻转播放状态；直播中是 no-op。
func (c *Controller) TogglePlayPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeReplay {
		return
	}
	c.playing = !c.playing
}

// SetSpeed 设置倍速；集合之外的值被忽略。
func (c *Controller) SetSpeed(s float64) {
	if !ValidSpeed(s) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = s
}

// GoLive 回到直播：游标回到当前时刻，停止播放，清空 viewRange。
func (c *Controller) GoLive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeLive
	c.cursor = c.clock.Now().UnixMilli()
	c.playing = false
	c.view = nil
}

// ExpandViewRange 回放中追上新数据：用最新的 availableRange 替换冻结的 viewRange。
func (c *Controller) ExpandViewRange() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil || c.avail == nil {
		return
	}
	if c.avail.End > c.view.End {
		cp := *c.avail
		c.view = &cp
	}
}

// RefreshAvailableRange 由引擎按慢节奏回填真实已记录边界。
// 直播模式下游标同步跟到范围末尾。
func (c *Controller) RefreshAvailableRange(start, end int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.avail = &Range{Start: start, End: end}
	if c.mode == ModeLive {
		c.cursor = end
	}
}

// CanGoBack 游标严格大于活动范围起点时为 true。
func (c *Controller) CanGoBack() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.activeRangeLocked()
	return r != nil && c.cursor > r.Start
}

// CanGoForward 游标严格小于活动范围终点时为 true。
func (c *Controller) CanGoForward() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.activeRangeLocked()
	return r != nil && c.cursor < r.End
}

// State 返回状态拷贝。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Mode:             c.mode,
		CurrentTimestamp: c.cursor,
		Speed:            c.speed,
		IsPlaying:        c.playing,
	}
	if c.avail != nil {
		cp := *c.avail
		st.AvailableRange = &cp
	}
	if c.view != nil {
		cp := *c.view
		st.ViewRange = &cp
	}
	return st
}

// Run 按固定墙钟周期推进回放游标，ctx 取消后退出且不泄漏定时器。
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Advance()
		}
	}
}

// Advance 执行一次播放步进：cursor += tick × speed。
// 到达或越过活动范围终点时停在终点并暂停，不回绕。
func (c *Controller) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing || c.mode != ModeReplay {
		return
	}
	r := c.activeRangeLocked()
	next := c.cursor + int64(float64(c.tick.Milliseconds())*c.speed)
	if r != nil && next >= r.End {
		c.cursor = r.End
		c.playing = false
	} else {
		c.cursor = next
	}
	metrics.PlaybackCursor.Set(float64(c.cursor))
}

// enterReplayLocked 直播 -> 回放的转换：冻结 viewRange。
func (c *Controller) enterReplayLocked() {
	if c.mode == ModeReplay {
		return
	}
	c.mode = ModeReplay
	if c.avail != nil {
		cp := *c.avail
		c.view = &cp
	}
}

// activeRangeLocked 回放夹紧用的范围：优先 viewRange，其次 availableRange。
func (c *Controller) activeRangeLocked() *Range {
	if c.view != nil {
		return c.view
	}
	return c.avail
}

func (c *Controller) clampLocked(t int64) int64 {
	r := c.activeRangeLocked()
	if r == nil {
		return t
	}
	if t < r.Start {
		return r.Start
	}
	if t > r.End {
		return r.End
	}
	return t
}
