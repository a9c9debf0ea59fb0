package registers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	perrors "github.com/propmon-agent/pkg/errors"
	"github.com/propmon-agent/pkg/metrics"
	"github.com/propmon-agent/pkg/monitor"
)

// WorkerOptions 所有 worker 共享的依赖
type WorkerOptions struct {
	ChunkSize    int
	FetchTimeout time.Duration
	Fetcher      Fetcher
	Writer       ItemWriter
	Metrics      *metrics.WorkerMetrics
	Logger       *zap.Logger
}

// IntervalWorker 一个周期对应一个 worker：持有待采集集合和一个定时器
type IntervalWorker struct {
	name    string
	period  time.Duration
	label   string
	pending *monitor.PendingSet
	opts    WorkerOptions
	log     *zap.Logger

	ctx context.Context
	wg  *sync.WaitGroup

	running atomic.Bool
	ticking atomic.Bool
	starts  atomic.Int32
}

func newIntervalWorker(ctx context.Context, wg *sync.WaitGroup, period time.Duration, opts WorkerOptions) *IntervalWorker {
	name := "IntervalWorker-" + strconv.Itoa(int(period/time.Second))
	return &IntervalWorker{
		name:    name,
		period:  period,
		label:   period.String(),
		pending: monitor.NewPendingSet(),
		opts:    opts,
		log:     opts.Logger.Named(name),
		ctx:     ctx,
		wg:      wg,
	}
}

func (w *IntervalWorker) Name() string { return w.name }
func (w *IntervalWorker) Period() time.Duration { return w.period }
func (w *IntervalWorker) Running() bool { return w.running.Load() }
func (w *IntervalWorker) QueueSize() int { return w.pending.Size() }
func (w *IntervalWorker) Pending() *monitor.PendingSet { return w.pending }

// Add 放入下一次 tick 要采集的集合
func (w *IntervalWorker) Add(item monitor.WorkItem) {
	w.pending.Add(item)
	w.opts.Metrics.PendingItems.WithLabelValues(w.label).Set(float64(w.pending.Size()))
	w.log.Debug("add work item", zap.Stringer("item", item))
}

// Start 启动定时循环；已在运行时什么都不做，返回是否真正启动
// 循环异常退出后不会自行重启，由下一次 Registry.GetOrCreate 再次调用 Start
func (w *IntervalWorker) Start() bool {
	if !w.running.CompareAndSwap(false, true) {
		return false
	}
	w.starts.Add(1)
	w.log.Info("interval worker loop starting", zap.Duration("period", w.period))

	w.wg.Add(1)
	go w.loop()
	return true
}

func (w *IntervalWorker) loop() {
	ticker := time.NewTicker(w.period)
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			w.log.Error("interval worker loop encountered an error", zap.Any("panic", r))
		}
		w.running.Store(false)
		w.log.Info("interval worker loop exited")
		w.wg.Done()
	}()

	for {
		select {
		case <-ticker.C:
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.Tick(w.ctx)
			}()
		case <-w.ctx.Done():
			return
		}
	}
}

// Tick 执行一次：换出集合、分批远端取值、逐条写入
// 上一次 tick 仍在执行时直接跳过并返回 false
func (w *IntervalWorker) Tick(ctx context.Context) bool {
	if !w.ticking.CompareAndSwap(false, true) {
		w.opts.Metrics.TicksSkipped.WithLabelValues(w.label).Inc()
		w.log.Warn("previous tick still running, skipping")
		return false
	}
	defer w.ticking.Store(false)

	start := time.Now()
	defer func() {
		w.opts.Metrics.TickDuration.WithLabelValues(w.label).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			w.log.Error("tick aborted", zap.Any("panic", r))
		}
	}()

	items := w.pending.DrainAll()
	w.opts.Metrics.PendingItems.WithLabelValues(w.label).Set(float64(w.pending.Size()))
	if len(items) == 0 {
		w.log.Info("no pending queries")
		return true
	}
	w.log.Info("processing pending queries", zap.Int("count", len(items)))

	// ChunkSize 已在 NewRegistry 校验
	chunks, _ := monitor.Chunk(items, w.opts.ChunkSize)
	for i, chunk := range chunks {
		w.processChunk(ctx, i, chunk)
	}
	return true
}

func (w *IntervalWorker) processChunk(ctx context.Context, index int, chunk []monitor.WorkItem) {
	results, err := w.fetch(ctx, chunk)
	if err != nil {
		w.opts.Metrics.ChunkErrors.WithLabelValues(w.label).Inc()
		w.log.Error("fetch failed, chunk dropped for this cycle",
			zap.Int("chunk", index),
			zap.Int("size", len(chunk)),
			zap.String("fetcher", w.opts.Fetcher.Name()),
			zap.Error(err))
		return
	}

	for _, item := range results {
		w.writeItem(ctx, item)
	}
}

func (w *IntervalWorker) fetch(ctx context.Context, chunk []monitor.WorkItem) ([]monitor.WorkItem, error) {
	if w.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.FetchTimeout)
		defer cancel()
	}

	results, err := w.safeFetch(ctx, chunk)
	if err != nil {
		if perrors.IsErrorCode(err, perrors.ErrCodeTransport) {
			return nil, err
		}
		return nil, perrors.WrapError(perrors.ErrCodeTransport, "fetch_values", err)
	}
	if len(results) != len(chunk) {
		return nil, perrors.Newf(perrors.ErrCodeTransport,
			"fetch_values returned %d items for a chunk of %d", len(results), len(chunk))
	}

	resolved := 0
	for _, r := range results {
		if r.Resolved() {
			resolved++
		}
	}
	w.opts.Metrics.ItemsFetched.WithLabelValues(w.label, "true").Add(float64(resolved))
	w.opts.Metrics.ItemsFetched.WithLabelValues(w.label, "false").Add(float64(len(results) - resolved))
	return results, nil
}

// safeFetch 取值器 panic 只影响当前批次
func (w *IntervalWorker) safeFetch(ctx context.Context, chunk []monitor.WorkItem) (results []monitor.WorkItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = perrors.WrapError(perrors.ErrCodeTransport, "fetch_values panicked", fmt.Errorf("%v", r))
		}
	}()
	return w.opts.Fetcher.FetchValues(ctx, chunk)
}

func (w *IntervalWorker) writeItem(ctx context.Context, item monitor.WorkItem) {
	written, err := w.safeWrite(ctx, item)
	if err != nil {
		w.opts.Metrics.ItemErrors.WithLabelValues(w.label, string(perrors.CodeOf(err))).Inc()
		w.log.Warn("write failed",
			zap.String("path", item.Write.Path),
			zap.String("entity", item.EntityPath),
			zap.String("property", item.PropertyName),
			zap.Any("value", item.Value),
			zap.Error(err))
		return
	}
	if !written {
		w.log.Debug("absent value skipped", zap.String("path", item.Write.Path))
		return
	}
	w.opts.Metrics.ItemsWritten.WithLabelValues(w.label).Inc()
	w.log.Debug("processed item", zap.Stringer("item", item))
}

func (w *IntervalWorker) safeWrite(ctx context.Context, item monitor.WorkItem) (written bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = perrors.WrapError(perrors.ErrCodeSinkWrite, "write panicked", fmt.Errorf("%v", r))
		}
	}()
	return w.opts.Writer.Write(ctx, item, w.period)
}
