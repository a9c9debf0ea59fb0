package metrics

import "github.com/prometheus/client_golang/prometheus"

// MetricFactory 指标工厂，用于统一创建指标（counter/gauge/histogram）。
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// NewIsolatedFactory 使用独立的注册器，测试或未接入 /metrics 时使用
func NewIsolatedFactory() *MetricFactory {
	return NewMetricFactory(NewPromRegistry(prometheus.NewRegistry()))
}
