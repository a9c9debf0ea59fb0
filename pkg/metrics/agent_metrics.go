package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "propmon"

// WorkerMetrics 周期 worker 自身的指标，period 标签为周期字符串（如 "5m0s"）
type WorkerMetrics struct {
	PendingItems *prometheus.GaugeVec
	TickDuration *prometheus.HistogramVec
	TicksSkipped *prometheus.CounterVec
	ItemsFetched *prometheus.CounterVec
	ItemsWritten *prometheus.CounterVec
	ItemErrors   *prometheus.CounterVec
	ChunkErrors  *prometheus.CounterVec
}

// SchedulerMetrics 主机调度器指标
type SchedulerMetrics struct {
	Tasks         prometheus.Gauge
	TaskRuns      *prometheus.CounterVec
	ConfigReloads *prometheus.CounterVec
}

func (f *MetricFactory) NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		PendingItems: promauto.With(f.reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_items",
				Help:      "Work items waiting for the next tick of an interval worker",
			},
			[]string{"period"},
		),
		TickDuration: promauto.With(f.reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Duration of one interval worker tick (drain, fetch, write)",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s ~ 20s
			},
			[]string{"period"},
		),
		TicksSkipped: promauto.With(f.reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_skipped_total",
				Help:      "Timer fires skipped because the previous tick was still running",
			},
			[]string{"period"},
		),
		ItemsFetched: promauto.With(f.reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_fetched_total",
				Help:      "Work items returned by the remote fetch, by resolution",
			},
			[]string{"period", "resolved"},
		),
		ItemsWritten: promauto.With(f.reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_written_total",
				Help:      "Work items written to the metric sink",
			},
			[]string{"period"},
		),
		ItemErrors: promauto.With(f.reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_errors_total",
				Help:      "Per item write failures by error code",
			},
			[]string{"period", "code"},
		),
		ChunkErrors: promauto.With(f.reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunk_errors_total",
				Help:      "Remote fetch calls that failed as a whole; their chunk is dropped for the cycle",
			},
			[]string{"period"},
		),
	}
}

func (f *MetricFactory) NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		Tasks: promauto.With(f.reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_tasks",
			Help:      "Scheduled tasks, one per (config id, cycle time)",
		}),
		TaskRuns: promauto.With(f.reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Scheduled task invocations by cycle time",
			},
			[]string{"cycle"},
		),
		ConfigReloads: promauto.With(f.reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Configuration snapshot fetches by result",
			},
			[]string{"result"},
		),
	}
}
