package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/propmon-agent/cmd/server"
	propmon "github.com/propmon-agent/pkg/agent"
	"github.com/propmon-agent/pkg/config"
	"github.com/propmon-agent/pkg/logger"
	"github.com/propmon-agent/pkg/metrics"
	"github.com/propmon-agent/pkg/signal"
	"github.com/propmon-agent/pkg/util"
)

const shutdownTimeout = 15 * time.Second

var (
	cfgFile   string
	GlobalCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "propmon-agent",
	Short: "Property monitor agent: batches datasource reads and ships samples to a metric sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		GlobalCfg, err = config.LoadConfigWithCli(cmd)
		if err != nil {
			// 统一输出错误到 stderr，不返回给 cobra
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
			os.Exit(1)
		}
		if err := runServer(cmd.Context(), GlobalCfg); err != nil {
			fmt.Fprintf(os.Stderr, "服务运行失败: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.ExecuteContext(context.Background()))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "配置文件路径")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initMonitorFlags(rootCmd)
	initLogFlags(rootCmd)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	util.PrintBanner("propmon", "ColorCyan")

	//初始化日志
	l, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer logger.Sync()
	logger.SetDefaultComponent("propmon-agent")

	const enableProcess = true
	reg := metrics.InitPromRegistry(enableProcess)

	a, err := propmon.New(ctx, cfg, l, reg)
	if err != nil {
		return fmt.Errorf("assemble agent: %w", err)
	}
	httpServer := server.NewHTTPServer(cfg.Server, l, reg.Gatherer(), a)

	if err := a.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("start agent: %w", err), a.Shutdown(ctx))
	}
	logger.Info("agent started",
		zap.String("addr", cfg.Server.Addr),
		zap.Duration("default_cycle_time", cfg.Monitor.DefaultCycleTime),
		zap.Duration("config_cycle_interval", cfg.Monitor.ConfigCycleInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.ListenAndServe)
	g.Go(func() error {
		// 关闭顺序：HTTP服务 → 调度与采集
		return signal.WaitForShutdown(gctx, l, shutdownTimeout, func(ctx context.Context) error {
			return errors.Join(httpServer.Shutdown(ctx), a.Shutdown(ctx))
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("all services shutdown successfully")
	return nil
}
