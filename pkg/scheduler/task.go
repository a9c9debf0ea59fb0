package scheduler

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/propmon-agent/pkg/monitor"
	"github.com/propmon-agent/pkg/registers"
)

// WorkerSource 按周期取得（必要时创建）worker
type WorkerSource interface {
	GetOrCreate(period time.Duration) (*registers.IntervalWorker, error)
}

// ScheduledTask 一个 (configId, cycleTime) 子配置对应的任务
// 每次运行只把样本放入对应周期的 worker，不做任何 I/O
type ScheduledTask struct {
	name         string
	key          monitor.TaskKey
	workers      WorkerSource
	defaultCycle time.Duration
	log          *zap.Logger

	config atomic.Pointer[monitor.TaskConfig]
	runs   atomic.Int64
}

func NewScheduledTask(cfg monitor.TaskConfig, workers WorkerSource, defaultCycle time.Duration, log *zap.Logger) *ScheduledTask {
	t := &ScheduledTask{
		name:         fmt.Sprintf("%s %ds", cfg.Key.ConfigID, int(cfg.Key.CycleTime/time.Second)),
		key:          cfg.Key,
		workers:      workers,
		defaultCycle: defaultCycle,
		log:          log.With(zap.String("task", cfg.Key.String())),
	}
	t.config.Store(&cfg)
	return t
}

func (t *ScheduledTask) Name() string { return t.name }
func (t *ScheduledTask) Key() monitor.TaskKey { return t.key }
func (t *ScheduledTask) Runs() int64 { return t.runs.Load() }

// Config 当前快照
func (t *ScheduledTask) Config() monitor.TaskConfig { return *t.config.Load() }

// Update 整体替换快照
func (t *ScheduledTask) Update(cfg monitor.TaskConfig) {
	t.config.Store(&cfg)
}

// Run 实现 cron.Job
func (t *ScheduledTask) Run() {
	n, err := t.Enqueue()
	if err != nil {
		t.log.Error("enqueue failed", zap.Int("enqueued", n), zap.Error(err))
		return
	}
	t.log.Debug("enqueued work items", zap.Int("enqueued", n))
}

// Enqueue 为快照中每个数据源的每个数据点生成 WorkItem，放入该数据源周期的 worker
func (t *ScheduledTask) Enqueue() (int, error) {
	t.runs.Add(1)
	cfg := t.config.Load()

	var (
		errs     []error
		enqueued int
	)
	for _, ds := range cfg.DataSources {
		worker, err := t.workers.GetOrCreate(ds.Period(t.defaultCycle))
		if err != nil {
			errs = append(errs, fmt.Errorf("datasource %s: %w", ds.ID, err))
			continue
		}
		for _, dp := range ds.DataPoints {
			worker.Add(monitor.NewWorkItem(ds.Entity, ds.Property, dp.WriteSpec))
			enqueued++
		}
	}
	return enqueued, errors.Join(errs...)
}
