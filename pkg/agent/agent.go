package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/propmon-agent/pkg/authority"
	"github.com/propmon-agent/pkg/collector"
	"github.com/propmon-agent/pkg/config"
	"github.com/propmon-agent/pkg/metrics"
	"github.com/propmon-agent/pkg/registers"
	"github.com/propmon-agent/pkg/scheduler"
	"github.com/propmon-agent/pkg/sink"
)

const gaugeNamespace = "propmon"

// Agent 组装取值、写入、周期 worker 与调度器
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger

	fetcher    registers.Fetcher
	writer     sink.Writer
	dispatcher *sink.Dispatcher
	source     scheduler.Source
	workers    *registers.Registry
	scheduler  *scheduler.Scheduler
	started    time.Time
}

// Status /status 输出
type Status struct {
	Sink      string                  `json:"sink"`
	SinkMode  string                  `json:"sink_mode"`
	Fetcher   string                  `json:"fetcher"`
	Source    string                  `json:"source"`
	StartedAt time.Time               `json:"started_at"`
	Workers   []registers.WorkerStats `json:"workers"`
	Tasks     []TaskStatus            `json:"tasks"`
}

type TaskStatus struct {
	Name        string `json:"name"`
	ConfigID    string `json:"config_id"`
	CycleSec    int64  `json:"cycle_seconds"`
	DataSources int    `json:"datasources"`
	Runs        int64  `json:"runs"`
}

// New 按配置创建各组件；写入目标在此连接，连接失败直接返回
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg metrics.Registers) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := metrics.NewMetricFactory(reg)

	a := &Agent{cfg: cfg, logger: logger}

	var client *authority.Client
	if cfg.Authority.URL != "" {
		client = authority.NewClient(cfg.Authority.URL, cfg.Authority.Timeout)
	}

	switch cfg.Fetcher.Type {
	case "remote":
		if client == nil {
			return nil, errors.New("remote fetcher requires authority.url")
		}
		a.fetcher = client
	default:
		a.fetcher = collector.NewHostFetcher(logger)
	}

	switch cfg.Authority.Mode {
	case "http":
		if client == nil {
			return nil, errors.New("http authority requires authority.url")
		}
		a.source = client
	default:
		a.source = authority.NewFileSource(cfg.Authority.Path)
	}

	writer, err := newWriter(ctx, cfg.Sink, reg)
	if err != nil {
		return nil, err
	}
	a.writer = writer

	a.dispatcher, err = sink.NewDispatcher(writer, sink.AbsentPolicy(cfg.Sink.AbsentValue))
	if err != nil {
		a.closeWriter()
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	a.workers, err = registers.NewRegistry(context.WithoutCancel(ctx), registers.WorkerOptions{
		ChunkSize:    cfg.Monitor.ChunkSize,
		FetchTimeout: cfg.Monitor.FetchTimeout,
		Fetcher:      a.fetcher,
		Writer:       a.dispatcher,
		Metrics:      factory.NewWorkerMetrics(),
		Logger:       logger,
	})
	if err != nil {
		a.closeWriter()
		return nil, err
	}

	a.scheduler = scheduler.NewScheduler(scheduler.Options{
		Source:          a.source,
		Workers:         a.workers,
		DefaultCycle:    cfg.Monitor.DefaultCycleTime,
		RefreshInterval: cfg.Monitor.ConfigCycleInterval,
		Metrics:         factory.NewSchedulerMetrics(),
		Logger:          logger,
	})

	logger.Info("agent assembled",
		zap.String("fetcher", a.fetcher.Name()),
		zap.String("source", a.source.Name()),
		zap.String("sink", a.dispatcher.SinkName()),
		zap.Stringer("sink_mode", a.dispatcher.Mode()),
		zap.Bool("forward_tags", a.dispatcher.ForwardsTags()),
		zap.Int("chunk_size", cfg.Monitor.ChunkSize))
	return a, nil
}

func newWriter(ctx context.Context, cfg config.SinkConfig, reg metrics.Registers) (sink.Writer, error) {
	switch cfg.Type {
	case "postgres":
		pg, err := sink.OpenPostgres(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("open postgres sink: %w", err)
		}
		return pg, nil
	default:
		gauge := sink.NewGaugeSink(gaugeNamespace, cfg.Tags)
		if err := reg.Register(gauge); err != nil {
			return nil, fmt.Errorf("register gauge sink: %w", err)
		}
		return gauge, nil
	}
}

// Start 启动调度器；配置首次拉取失败只记录日志
func (a *Agent) Start(ctx context.Context) error {
	a.started = time.Now()
	return a.scheduler.Start(ctx)
}

// Shutdown 先停调度，再停 worker，最后关闭写入目标
func (a *Agent) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.workers.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop workers: %w", err))
	}
	if err := a.closeWriter(); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}
	return errors.Join(errs...)
}

func (a *Agent) closeWriter() error {
	if c, ok := a.writer.(sink.Closer); ok {
		return c.Close()
	}
	return nil
}

func (a *Agent) Workers() *registers.Registry { return a.workers }

func (a *Agent) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Status 当前 worker 与任务快照
func (a *Agent) Status() Status {
	tasks := a.scheduler.Tasks()
	ts := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		ts = append(ts, TaskStatus{
			Name:        t.Name(),
			ConfigID:    t.Key().ConfigID,
			CycleSec:    int64(t.Key().CycleTime / time.Second),
			DataSources: len(t.Config().DataSources),
			Runs:        t.Runs(),
		})
	}
	return Status{
		Sink:      a.dispatcher.SinkName(),
		SinkMode:  a.dispatcher.Mode().String(),
		Fetcher:   a.fetcher.Name(),
		Source:    a.source.Name(),
		StartedAt: a.started,
		Workers:   a.workers.Stats(),
		Tasks:     ts,
	}
}
