package registers

import (
	"context"
	"time"

	"github.com/propmon-agent/pkg/monitor"
)

// Fetcher 远端取值接口（配置中心负责真正读取属性）
// 返回与入参等长、同序的结果；无法解析的条目 Value 为 nil。整批失败返回 error。
type Fetcher interface {
	Name() string
	FetchValues(ctx context.Context, items []monitor.WorkItem) ([]monitor.WorkItem, error)
}

// ItemWriter 单条写入，由 sink.Dispatcher 实现
// 返回 false, nil 表示按缺值策略跳过
type ItemWriter interface {
	Write(ctx context.Context, item monitor.WorkItem, cycleTime time.Duration) (bool, error)
}
