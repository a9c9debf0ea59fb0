package sink

import (
	"context"
	"time"
)

// Writer 旧式按位置参数写入，所有 sink 都必须实现
type Writer interface {
	Name() string
	Write(ctx context.Context, path string, value *float64, typ string, opts WriteOptions) error
}

// WriteOptions 旧式写入的附加参数
type WriteOptions struct {
	CreateCommand string
	CycleTime     time.Duration
	Min           *float64
	Max           *float64
	Timestamp     time.Time
	Tags          map[string]string
}

// MetadataWriter 可选能力：按指标名 + 结构化元数据写入
type MetadataWriter interface {
	WriteWithMetadata(ctx context.Context, metric string, value *float64, typ string, opts MetadataOptions) error
}

// MetadataOptions 元数据写入的附加参数
type MetadataOptions struct {
	CycleTime time.Duration
	Timestamp time.Time
	Min       *float64
	Max       *float64
	Metadata  map[string]any
	Tags      map[string]string
}

// TagWriter 可选能力：声明是否接收标签
type TagWriter interface {
	SupportsTags() bool
}

// Closer 可选：需要释放连接的 sink
type Closer interface {
	Close() error
}
