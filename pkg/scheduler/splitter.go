package scheduler

import (
	"sort"
	"time"

	"github.com/propmon-agent/pkg/monitor"
)

// Splitter 把一个配置按周期拆成多个子配置，让宿主调度器按各自周期运行
type Splitter struct {
	DefaultCycle time.Duration
}

// Split 返回按周期升序的子配置，键为 (configId, cycleTime)
// 禁用的数据源和未指定属性的数据源被忽略
func (s Splitter) Split(cfg monitor.DeviceConfig) []monitor.TaskConfig {
	groups := make(map[time.Duration][]monitor.DataSource)
	for _, ds := range cfg.DataSources {
		if !ds.IsEnabled() || ds.Property == "" {
			continue
		}
		cycle := ds.Period(s.DefaultCycle)
		groups[cycle] = append(groups[cycle], ds)
	}

	cycles := make([]time.Duration, 0, len(groups))
	for c := range groups {
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i] < cycles[j] })

	out := make([]monitor.TaskConfig, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, monitor.TaskConfig{
			Key:         monitor.TaskKey{ConfigID: cfg.ID, CycleTime: c},
			DataSources: groups[c],
		})
	}
	return out
}
