package detect

import (
	"context"

	"book-replay-go/events"
	"book-replay-go/logs"
	"book-replay-go/market"
	"book-replay-go/metrics"
)

type commandKind int

const (
	cmdDetect commandKind = iota
	cmdRecomputeLevels
	cmdReset
	cmdUpdateConfig
)

type command struct {
	kind   commandKind
	snap   *market.Snapshot
	window []*market.Snapshot
	cfg    Config
}

// Worker 把检测工作隔离到独立 goroutine，录制节奏不被 O(档位×快照) 的
// 检测开销阻塞。跨边界只传递不可变快照，不共享可变引用。
// 滚动状态（上一快照、撤单日志、关键位）只在 worker goroutine 内读写。
type Worker struct {
	cfg    Config
	logger logs.Logger

	cmds chan command
	out  chan []events.Event

	// 以下状态仅由 run goroutine 访问
	prev     *market.Snapshot
	removals []Removal
	levels   []SignificantLevel
}

func NewWorker(cfg Config, logger logs.Logger) *Worker {
	if logger == nil {
		logger = logs.DefaultLogger
	}
	return &Worker{
		cfg:    cfg,
		logger: logger,
		cmds:   make(chan command, 256),
		out:    make(chan []events.Event, 64),
	}
}

// Events 检测结果输出通道。
func (w *Worker) Events() <-chan []events.Event { return w.out }

// Start 启动工作循环；ctx 取消后退出并关闭输出通道。
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Detect 投递一条快照等待检测。队列满时丢弃（检测是尽力而为，不能反压录制）。
func (w *Worker) Detect(s *market.Snapshot) {
	if s == nil {
		return
	}
	select {
	case w.cmds <- command{kind: cmdDetect, snap: s}:
	default:
		metrics.DetectorDropped.Inc()
	}
}

// RecomputeLevels 用一段快照窗口重算关键位（慢节奏调用）。
func (w *Worker) RecomputeLevels(window []*market.Snapshot) {
	select {
	case w.cmds <- command{kind: cmdRecomputeLevels, window: window}:
	default:
		metrics.DetectorDropped.Inc()
	}
}

// UpdateConfig 热更新检测参数；非法配置由调用方先行校验。
func (w *Worker) UpdateConfig(cfg Config) {
	w.cmds <- command{kind: cmdUpdateConfig, cfg: cfg}
}

// Reset 清空全部滚动状态，worker 本身继续运行。
// 回放/清档场景使用：历史被清掉后旧的差分基准不再有意义。
func (w *Worker) Reset() {
	w.cmds <- command{kind: cmdReset}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.out)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.cmds:
			switch cmd.kind {
			case cmdDetect:
				w.onDetect(cmd.snap)
			case cmdRecomputeLevels:
				w.levels = CalcSignificantLevels(cmd.window, w.cfg.SignificantCount)
			case cmdReset:
				w.prev = nil
				w.removals = w.removals[:0]
				w.levels = nil
			case cmdUpdateConfig:
				w.cfg = cmd.cfg
			}
		}
	}
}

func (w *Worker) onDetect(s *market.Snapshot) {
	if w.prev == nil {
		w.prev = s
		return
	}
	if s.Timestamp < w.prev.Timestamp {
		// 单一录制源下不应出现；丢弃乱序输入并保留现有基准
		w.logger.Warn("out-of-order snapshot dropped", "ts", s.Timestamp, "prev", w.prev.Timestamp)
		return
	}

	w.removals = append(w.removals, DiffRemovedLevels(s, w.prev)...)
	w.pruneRemovals(s.Timestamp)

	evts := Detect(s, w.prev, w.removals, w.levels, w.cfg)
	w.prev = s
	if len(evts) == 0 {
		return
	}
	select {
	case w.out <- evts:
	default:
		metrics.DetectorDropped.Inc()
	}
}

// pruneRemovals 只保留两个统计窗口内的撤单记录，限制日志增长。
func (w *Worker) pruneRemovals(now int64) {
	cutoff := now - 2*w.cfg.CancelWindowMs
	i := 0
	for ; i < len(w.removals); i++ {
		if w.removals[i].Timestamp >= cutoff {
			break
		}
	}
	if i > 0 {
		w.removals = w.removals[i:]
	}
}
