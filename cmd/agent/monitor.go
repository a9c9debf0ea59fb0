package agent

import (
	"github.com/spf13/cobra"
)

func initMonitorFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Int("monitor.chunk-size", defaultCfg.Monitor.ChunkSize, "单次取值最大条数")
	f.Duration("monitor.default-cycle-time", defaultCfg.Monitor.DefaultCycleTime, "数据源未声明周期时使用")
	f.Duration("monitor.config-cycle-interval", defaultCfg.Monitor.ConfigCycleInterval, "配置快照刷新间隔")
	f.Duration("monitor.fetch-timeout", defaultCfg.Monitor.FetchTimeout, "单批取值超时")

	f.String("authority.mode", defaultCfg.Authority.Mode, "配置中心 [file,http]")
	f.String("authority.path", defaultCfg.Authority.Path, "file 模式快照路径")
	f.String("authority.url", defaultCfg.Authority.URL, "配置中心地址")
	f.Duration("authority.timeout", defaultCfg.Authority.Timeout, "配置中心请求超时")

	f.String("fetcher.type", defaultCfg.Fetcher.Type, "取值方式 [remote,host]")

	f.String("sink.type", defaultCfg.Sink.Type, "写入目标 [postgres,prometheus]")
	f.String("sink.dsn", defaultCfg.Sink.DSN, "postgres 连接串")
	f.String("sink.table", defaultCfg.Sink.Table, "postgres 表名")
	f.String("sink.absent-value", defaultCfg.Sink.AbsentValue, "缺值处理 [skip,null]")
	f.Bool("sink.tags", defaultCfg.Sink.Tags, "prometheus 标签转 label")
}
