package monitor

import (
	"fmt"
	"time"
)

// WriteSpec 一个数据点的写入目标（存储路径、类型、上下限、可选标签）
type WriteSpec struct {
	Path          string            `json:"path" yaml:"path"`
	Type          string            `json:"type" yaml:"type"`
	CreateCommand string            `json:"create_command" yaml:"create_command"`
	Min           *float64          `json:"min" yaml:"min"`
	Max           *float64          `json:"max" yaml:"max"`
	Tags          map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// WorkItem 一次待采集的指标样本
// 身份由 Write.Path 决定：同一路径重复入队会覆盖而非重复
type WorkItem struct {
	EntityPath   string    `json:"entity"`
	PropertyName string    `json:"property"`
	Write        WriteSpec `json:"write"`
	Value        *float64  `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewWorkItem 创建未取值的样本
func NewWorkItem(entityPath, propertyName string, spec WriteSpec) WorkItem {
	return WorkItem{
		EntityPath:   entityPath,
		PropertyName: propertyName,
		Write:        spec,
	}
}

// Key 去重身份
func (w WorkItem) Key() string { return w.Write.Path }

// Resolved 远端是否给出了数值
func (w WorkItem) Resolved() bool { return w.Value != nil }

// Fetched 是否已经过一次远端取值
func (w WorkItem) Fetched() bool { return !w.Timestamp.IsZero() }

func (w WorkItem) String() string {
	value := "<absent>"
	if w.Value != nil {
		value = fmt.Sprintf("%g", *w.Value)
	}
	return fmt.Sprintf("WorkItem(%s:%s path=%s, value=%s)", w.EntityPath, w.PropertyName, w.Write.Path, value)
}

// FloatPtr 便于构造可缺省数值
func FloatPtr(v float64) *float64 { return &v }
