package agent

import (
	"github.com/spf13/cobra"
)

// initLogFlags log.* 分组；保留策略二选一：max-backup > 0 时按文件个数清理
func initLogFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	l := defaultCfg.Log

	f.String("log.level", l.Level, "-> Log level [debug,info,warn,error] | 日志级别")
	f.String("log.format", l.Format, "-> Stdout format [console,json] | 控制台格式，文件始终为 json")
	f.String("log.path", l.Path, "-> Log file directory | 日志目录")
	f.Int("log.max-size", l.MaxSize, "-> Rotate when a file exceeds this size (MB) | 单文件最大MB")
	f.Int("log.max-backup", l.MaxBackup, "-> Rotated files to keep, set max-age to 0 when used | 保留文件个数")
	f.Int("log.max-age", l.MaxAge, "-> Days to keep rotated files | 保存天数")
}
