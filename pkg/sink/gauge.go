package sink

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// 属性指标统一放在 <namespace>_property_ 下，避免与 agent 自身指标重名
	propertySubsystem = "property"
	legacyFamily      = "datapoint_value"
	// 超过 staleCycles 个周期未更新的序列不再导出
	staleCycles = 3
)

// GaugeSink 把最新样本保存在内存，通过 prometheus.Collector 暴露在 /metrics
// 样本在写入时就构造成 Metric，无法构造的样本直接写入失败，不会影响 /metrics
// 同名指标的标签维度与类型必须一致
type GaugeSink struct {
	namespace string
	tags      bool
	now       func() time.Time

	mu       sync.Mutex
	families map[string]*gaugeFamily
	samples  map[string]gaugeSample
}

type gaugeFamily struct {
	labels    []string
	valueType prometheus.ValueType
	series    int
}

type gaugeSample struct {
	family  string
	metric  prometheus.Metric
	expires time.Time // 零值表示不过期
}

func NewGaugeSink(namespace string, tags bool) *GaugeSink {
	return &GaugeSink{
		namespace: namespace,
		tags:      tags,
		now:       time.Now,
		families:  make(map[string]*gaugeFamily),
		samples:   make(map[string]gaugeSample),
	}
}

func (g *GaugeSink) Name() string { return "prometheus" }

func (g *GaugeSink) SupportsTags() bool { return g.tags }

// Write 旧式写入：统一指标名，仅以 path 为标签
func (g *GaugeSink) Write(_ context.Context, path string, value *float64, typ string, opts WriteOptions) error {
	return g.store(legacyFamily, map[string]string{"path": path}, value, typ, opts.Timestamp, opts.CycleTime)
}

// WriteWithMetadata 元数据与标签都转为标签，标签覆盖同名元数据
func (g *GaugeSink) WriteWithMetadata(_ context.Context, metric string, value *float64, typ string, opts MetadataOptions) error {
	labels := make(map[string]string, len(opts.Metadata)+len(opts.Tags))
	for k, v := range opts.Metadata {
		labels[sanitizeName(k)] = fmt.Sprint(v)
	}
	for k, v := range opts.Tags {
		labels[sanitizeName(k)] = v
	}
	return g.store(sanitizeName(metric), labels, value, typ, opts.Timestamp, opts.CycleTime)
}

func (g *GaugeSink) store(metric string, labels map[string]string, value *float64, typ string, ts time.Time, cycle time.Duration) error {
	fqName := prometheus.BuildFQName(g.namespace, propertySubsystem, metric)

	names := make([]string, 0, len(labels))
	for k := range labels {
		if strings.HasPrefix(k, "__") {
			return fmt.Errorf("metric %s: label %q uses the reserved __ prefix", fqName, k)
		}
		names = append(names, k)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, k := range names {
		values[i] = labels[k]
	}

	v := math.NaN()
	if value != nil {
		v = *value
	}
	vt := valueType(typ)

	desc := prometheus.NewDesc(fqName, "Monitored property value "+metric, names, nil)
	m, err := prometheus.NewConstMetric(desc, vt, v, values...)
	if err != nil {
		return fmt.Errorf("build metric %s: %w", fqName, err)
	}
	if !ts.IsZero() {
		m = prometheus.NewMetricWithTimestamp(ts, m)
	}

	now := g.now()
	var expires time.Time
	if cycle > 0 {
		expires = now.Add(staleCycles * cycle)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(now)

	fam, ok := g.families[fqName]
	if ok {
		if !slices.Equal(fam.labels, names) {
			return fmt.Errorf("metric %s has labels %v, got %v", fqName, fam.labels, names)
		}
		if fam.valueType != vt {
			return fmt.Errorf("metric %s already exported with a different type, got %s", fqName, strings.ToUpper(typ))
		}
	} else {
		fam = &gaugeFamily{labels: names, valueType: vt}
		g.families[fqName] = fam
	}

	key := fqName + "{" + strings.Join(values, "\xff") + "}"
	if _, exists := g.samples[key]; !exists {
		fam.series++
	}
	g.samples[key] = gaugeSample{family: fqName, metric: m, expires: expires}
	return nil
}

// pruneLocked 删除过期序列；序列全部过期的指标族一并释放
func (g *GaugeSink) pruneLocked(now time.Time) {
	for key, s := range g.samples {
		if s.expires.IsZero() || now.Before(s.expires) {
			continue
		}
		delete(g.samples, key)
		if fam := g.families[s.family]; fam != nil {
			fam.series--
			if fam.series <= 0 {
				delete(g.families, s.family)
			}
		}
	}
}

// Describe 不声明描述符，作为 unchecked collector 注册
func (g *GaugeSink) Describe(chan<- *prometheus.Desc) {}

func (g *GaugeSink) Collect(ch chan<- prometheus.Metric) {
	g.mu.Lock()
	g.pruneLocked(g.now())
	metrics := make([]prometheus.Metric, 0, len(g.samples))
	for _, s := range g.samples {
		metrics = append(metrics, s.metric)
	}
	g.mu.Unlock()

	for _, m := range metrics {
		ch <- m
	}
}

// Len 当前保存的序列数
func (g *GaugeSink) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.samples)
}

func valueType(typ string) prometheus.ValueType {
	switch strings.ToUpper(typ) {
	case "COUNTER", "DERIVE":
		return prometheus.CounterValue
	default:
		return prometheus.GaugeValue
	}
}

func sanitizeName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

var (
	_ Writer               = (*GaugeSink)(nil)
	_ MetadataWriter       = (*GaugeSink)(nil)
	_ TagWriter            = (*GaugeSink)(nil)
	_ prometheus.Collector = (*GaugeSink)(nil)
)
