package monitor

import "time"

// DataPoint 数据源下的一个写入目标
type DataPoint struct {
	ID        string `json:"id" yaml:"id"`
	WriteSpec `yaml:",inline"`
}

// DataSource 配置中心下发的一个被监控属性
type DataSource struct {
	ID         string      `json:"id" yaml:"id"`
	Entity     string      `json:"entity" yaml:"entity"`
	Property   string      `json:"property" yaml:"property"`
	CycleTime  int         `json:"cycle_time" yaml:"cycle_time"` // 秒，0 表示使用默认周期
	Enabled    *bool       `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	DataPoints []DataPoint `json:"datapoints" yaml:"datapoints"`
}

// IsEnabled 未声明时视为启用
func (d DataSource) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Period 返回采集周期，未声明时回落到 def
func (d DataSource) Period(def time.Duration) time.Duration {
	if d.CycleTime <= 0 {
		return def
	}
	return time.Duration(d.CycleTime) * time.Second
}

// DeviceConfig 一个实体（设备）的完整配置，可包含不同周期的数据源
type DeviceConfig struct {
	ID          string       `json:"id" yaml:"id"`
	DataSources []DataSource `json:"datasources" yaml:"datasources"`
}

// Snapshot 配置中心一次下发的全部配置
type Snapshot struct {
	Configs []DeviceConfig `json:"configs" yaml:"configs"`
}

// TaskKey 子配置身份 (configId, cycleTime)
type TaskKey struct {
	ConfigID  string
	CycleTime time.Duration
}

func (k TaskKey) String() string {
	return k.ConfigID + " " + k.CycleTime.String()
}

// TaskConfig 按周期拆分后的子配置，整体替换，不做增量修改
type TaskConfig struct {
	Key         TaskKey
	DataSources []DataSource
}
