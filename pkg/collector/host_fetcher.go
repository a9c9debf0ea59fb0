package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	cload "github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	perrors "github.com/propmon-agent/pkg/errors"
	"github.com/propmon-agent/pkg/monitor"
)

// 本机可解析的属性名
const (
	PropCPUPercent     = "cpu_percent"
	PropCPUCount       = "cpu_count"
	PropLoad1          = "load1"
	PropLoad5          = "load5"
	PropLoad15         = "load15"
	PropMemUsedPercent = "mem_used_percent"
)

// probe 读取一次本机数值
type probe func(ctx context.Context) (float64, error)

// HostFetcher 无配置中心时的本地取值实现（实现 registers.Fetcher）
// 实体路径被忽略，只按属性名取值；未知属性返回缺值
type HostFetcher struct {
	name   string
	log    *zap.Logger
	now    func() time.Time
	probes map[string]probe
}

// NewHostFetcher 创建本机取值器
func NewHostFetcher(log *zap.Logger) *HostFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &HostFetcher{
		name: "host-fetcher",
		log:  log.Named("host-fetcher"),
		now:  time.Now,
		probes: map[string]probe{
			PropCPUPercent: func(ctx context.Context) (float64, error) {
				usage, err := cpu.PercentWithContext(ctx, 0, false)
				if err != nil {
					return 0, err
				}
				if len(usage) == 0 {
					return 0, fmt.Errorf("empty cpu usage")
				}
				return usage[0], nil
			},
			PropCPUCount: func(ctx context.Context) (float64, error) {
				n, err := cpu.CountsWithContext(ctx, true)
				return float64(n), err
			},
			PropLoad1:  loadProbe(func(a *cload.AvgStat) float64 { return a.Load1 }),
			PropLoad5:  loadProbe(func(a *cload.AvgStat) float64 { return a.Load5 }),
			PropLoad15: loadProbe(func(a *cload.AvgStat) float64 { return a.Load15 }),
			PropMemUsedPercent: func(ctx context.Context) (float64, error) {
				vm, err := mem.VirtualMemoryWithContext(ctx)
				if err != nil {
					return 0, err
				}
				return vm.UsedPercent, nil
			},
		},
	}
}

func loadProbe(pick func(*cload.AvgStat) float64) probe {
	return func(ctx context.Context) (float64, error) {
		avg, err := cload.AvgWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return pick(avg), nil
	}
}

// Name 返回取值器名称
func (h *HostFetcher) Name() string { return h.name }

// Properties 支持的属性名
func (h *HostFetcher) Properties() []string {
	return []string{PropCPUCount, PropCPUPercent, PropLoad1, PropLoad15, PropLoad5, PropMemUsedPercent}
}

// FetchValues 同一批内每个属性只读取一次
// 单个属性读取失败只让该属性缺值；ctx 被取消时整批按传输错误失败
func (h *HostFetcher) FetchValues(ctx context.Context, items []monitor.WorkItem) ([]monitor.WorkItem, error) {
	ts := h.now()
	cache := make(map[string]*float64)
	out := make([]monitor.WorkItem, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, perrors.WrapError(perrors.ErrCodeTransport, "host fetch interrupted", err)
		}
		value, ok := cache[item.PropertyName]
		if !ok {
			value = h.read(ctx, item.PropertyName)
			cache[item.PropertyName] = value
		}
		item.Value = value
		item.Timestamp = ts
		out[i] = item
	}
	return out, nil
}

func (h *HostFetcher) read(ctx context.Context, property string) *float64 {
	p, ok := h.probes[property]
	if !ok {
		h.log.Debug("unknown host property", zap.String("property", property))
		return nil
	}
	v, err := p(ctx)
	if err != nil {
		h.log.Warn("read host property failed", zap.String("property", property), zap.Error(err))
		return nil
	}
	return &v
}
