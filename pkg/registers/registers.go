package registers

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	perrors "github.com/propmon-agent/pkg/errors"
	"github.com/propmon-agent/pkg/metrics"
)

// Registry 周期 -> IntervalWorker，每个周期只有一个 worker 和一个定时器
// worker 一旦创建便常驻，直到 Shutdown
type Registry struct {
	opts WorkerOptions
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[time.Duration]*IntervalWorker
}

// WorkerStats /status 输出用
type WorkerStats struct {
	Name      string        `json:"name"`
	Period    time.Duration `json:"period"`
	PeriodSec int64         `json:"period_seconds"`
	Pending   int           `json:"pending"`
	Running   bool          `json:"running"`
}

// NewRegistry 校验共享依赖；非法分批大小属于启动期配置错误
func NewRegistry(ctx context.Context, opts WorkerOptions) (*Registry, error) {
	if opts.ChunkSize <= 0 {
		return nil, perrors.Newf(perrors.ErrCodeConfigInvalid, "chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.Fetcher == nil || opts.Writer == nil {
		return nil, perrors.NewError(perrors.ErrCodeConfigInvalid, "fetcher and writer are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewIsolatedFactory().NewWorkerMetrics()
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		opts:    opts,
		log:     opts.Logger.Named("worker-registry"),
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[time.Duration]*IntervalWorker),
	}, nil
}

// GetOrCreate 返回该周期的 worker，不存在则创建；两种情况下都确保已 Start
func (r *Registry) GetOrCreate(period time.Duration) (*IntervalWorker, error) {
	if period <= 0 {
		return nil, perrors.Newf(perrors.ErrCodeUnknownCadence, "invalid cadence %s", period)
	}

	r.mu.Lock()
	w, ok := r.workers[period]
	if !ok {
		w = newIntervalWorker(r.ctx, &r.wg, period, r.opts)
		r.workers[period] = w
		r.log.Info("interval worker created", zap.String("worker", w.Name()), zap.Duration("period", period))
	}
	r.mu.Unlock()

	if r.ctx.Err() == nil && w.Start() && ok {
		r.log.Warn("interval worker loop restarted", zap.String("worker", w.Name()))
	}
	return w, nil
}

// Lookup 不创建，只查询
func (r *Registry) Lookup(period time.Duration) (*IntervalWorker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[period]
	return w, ok
}

// Workers 按周期升序
func (r *Registry) Workers() []*IntervalWorker {
	r.mu.Lock()
	out := make([]*IntervalWorker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].period < out[j].period })
	return out
}

func (r *Registry) Stats() []WorkerStats {
	workers := r.Workers()
	stats := make([]WorkerStats, 0, len(workers))
	for _, w := range workers {
		stats = append(stats, WorkerStats{
			Name:      w.Name(),
			Period:    w.Period(),
			PeriodSec: int64(w.Period() / time.Second),
			Pending:   w.QueueSize(),
			Running:   w.Running(),
		})
	}
	return stats
}

// Shutdown 停止全部定时器并等待进行中的 tick 结束
func (r *Registry) Shutdown(ctx context.Context) error {
	r.log.Info("stopping interval workers", zap.Int("workers", len(r.Workers())))
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("interval workers stopped")
		return nil
	case <-ctx.Done():
		r.log.Warn("interval workers did not stop in time", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
