package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registers 隔离 Prometheus 的默认实现：注册指标 + 提供给 /metrics 的采集入口
type Registers interface {
	prometheus.Registerer
	Gatherer() prometheus.Gatherer
}

// promRegistry Prometheus 实现，内部包裹了官方的 *prometheus.Registry
type promRegistry struct {
	registry *prometheus.Registry
}

// NewPromRegistry 创建 Prometheus 指标注册器
func NewPromRegistry(registry *prometheus.Registry) Registers {
	return &promRegistry{registry: registry}
}

// Register 实现 prometheus.Registerer
func (p *promRegistry) Register(collector prometheus.Collector) error {
	return p.registry.Register(collector)
}

// MustRegister 实现 prometheus.Registerer，重复注册视为编程错误
func (p *promRegistry) MustRegister(collectors ...prometheus.Collector) {
	p.registry.MustRegister(collectors...)
}

// Unregister 实现 prometheus.Registerer
func (p *promRegistry) Unregister(collector prometheus.Collector) bool {
	return p.registry.Unregister(collector)
}

func (p *promRegistry) Gatherer() prometheus.Gatherer {
	return p.registry
}

// InitPromRegistry 创建 agent 使用的注册器；enableProcess 时附带进程与 Go 运行时指标
func InitPromRegistry(enableProcess bool) Registers {
	registry := prometheus.NewRegistry()
	if enableProcess {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
			collectors.NewGoCollector(),
		)
	}
	return NewPromRegistry(registry)
}
