package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/propmon-agent/pkg/metrics"
	"github.com/propmon-agent/pkg/monitor"
)

// Source 配置中心：提供整份配置快照
type Source interface {
	Name() string
	Snapshot(ctx context.Context) (monitor.Snapshot, error)
}

// Options 调度器参数
type Options struct {
	Source          Source
	Workers         WorkerSource
	DefaultCycle    time.Duration
	RefreshInterval time.Duration
	Metrics         *metrics.SchedulerMetrics
	Logger          *zap.Logger
}

type entry struct {
	task    *ScheduledTask
	entryID cron.EntryID
}

// Scheduler 宿主调度器：周期性拉取配置、拆分、按各自周期运行 ScheduledTask
type Scheduler struct {
	opts     Options
	logger   *zap.Logger
	cron     *cron.Cron
	splitter Splitter

	mu    sync.Mutex
	tasks map[monitor.TaskKey]*entry
}

// NewScheduler 创建任务调度器
func NewScheduler(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewIsolatedFactory().NewSchedulerMetrics()
	}
	logger := opts.Logger.Named("scheduler")
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))

	return &Scheduler{
		opts:   opts,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		splitter: Splitter{DefaultCycle: opts.DefaultCycle},
		tasks:    make(map[monitor.TaskKey]*entry),
	}
}

// Start 首次拉取配置，并按 RefreshInterval 定期重新拉取
// 首次拉取失败不终止启动，等待下一次刷新
func (s *Scheduler) Start(ctx context.Context) error {
	if s.opts.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", s.opts.RefreshInterval)
	}
	if err := s.Reload(ctx); err != nil {
		s.logger.Error("initial configuration fetch failed", zap.Error(err))
	}

	_, err := s.cron.AddFunc(every(s.opts.RefreshInterval), func() {
		if err := s.Reload(ctx); err != nil {
			s.logger.Error("configuration refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule configuration refresh: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("source", s.opts.Source.Name()),
		zap.Duration("refresh_interval", s.opts.RefreshInterval))
	return nil
}

// Reload 拉取快照并同步任务
func (s *Scheduler) Reload(ctx context.Context) error {
	snap, err := s.opts.Source.Snapshot(ctx)
	if err != nil {
		s.opts.Metrics.ConfigReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch snapshot from %s: %w", s.opts.Source.Name(), err)
	}
	s.opts.Metrics.ConfigReloads.WithLabelValues("ok").Inc()
	return s.Sync(snap)
}

// Sync 新出现的 (configId, cycleTime) 加入调度并立即运行一次；
// 已有的整体替换快照；消失的移除
func (s *Scheduler) Sync(snap monitor.Snapshot) error {
	desired := make(map[monitor.TaskKey]monitor.TaskConfig)
	for _, cfg := range snap.Configs {
		for _, tc := range s.splitter.Split(cfg) {
			desired[tc.Key] = tc
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added, updated, removed int
	for key, e := range s.tasks {
		if _, ok := desired[key]; ok {
			continue
		}
		s.cron.Remove(e.entryID)
		delete(s.tasks, key)
		removed++
		s.logger.Info("task removed", zap.String("task", key.String()))
	}

	for _, key := range sortedKeys(desired) {
		tc := desired[key]
		if e, ok := s.tasks[key]; ok {
			e.task.Update(tc)
			updated++
			continue
		}

		task := NewScheduledTask(tc, s.opts.Workers, s.opts.DefaultCycle, s.logger)
		runs := s.opts.Metrics.TaskRuns.WithLabelValues(key.CycleTime.String())
		id, err := s.cron.AddFunc(every(key.CycleTime), func() {
			runs.Inc()
			task.Run()
		})
		if err != nil {
			return fmt.Errorf("schedule task %s: %w", key, err)
		}
		s.tasks[key] = &entry{task: task, entryID: id}
		added++

		runs.Inc()
		task.Run()
		s.logger.Info("task added",
			zap.String("task", task.Name()),
			zap.Duration("cycle", key.CycleTime),
			zap.Int("datasources", len(tc.DataSources)))
	}

	s.opts.Metrics.Tasks.Set(float64(len(s.tasks)))
	s.logger.Info("tasks synchronised",
		zap.Int("added", added), zap.Int("updated", updated), zap.Int("removed", removed),
		zap.Int("total", len(s.tasks)))
	return nil
}

// Tasks 当前任务，按键排序
func (s *Scheduler) Tasks() []*ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ScheduledTask, 0, len(s.tasks))
	for _, e := range s.tasks {
		out = append(out, e.task)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key(), out[j].Key()) })
	return out
}

// Stop 停止调度，等待正在运行的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

func keyLess(a, b monitor.TaskKey) bool {
	if a.ConfigID != b.ConfigID {
		return a.ConfigID < b.ConfigID
	}
	return a.CycleTime < b.CycleTime
}

func sortedKeys(m map[monitor.TaskKey]monitor.TaskConfig) []monitor.TaskKey {
	keys := make([]monitor.TaskKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}
