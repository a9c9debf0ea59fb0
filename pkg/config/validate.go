package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	if h.Addr == "" {
		return errors.New("[ERROR] HTTP.Addr cannot be empty")
	}
	// 	用net包解析地址，验证格式合法性
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("[ERROR] HTTP.Addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate 采集调度配置校验
func (m *MonitorConfig) Validate() error {
	if err := valid.Struct(m); err != nil {
		return err
	}
	if m.DefaultCycleTime < time.Second {
		return fmt.Errorf("monitor.default_cycle_time must be at least 1s, got %s", m.DefaultCycleTime)
	}
	if m.DefaultCycleTime%time.Second != 0 {
		return fmt.Errorf("monitor.default_cycle_time must be whole seconds, got %s", m.DefaultCycleTime)
	}
	if m.ConfigCycleInterval < time.Minute {
		return fmt.Errorf("monitor.config_cycle_interval must be at least 1m, got %s", m.ConfigCycleInterval)
	}
	return nil
}

// validateAuthority file 模式需要快照路径；http 模式和 remote 取值都需要配置中心地址
func (c *Config) validateAuthority() error {
	a := c.Authority
	switch a.Mode {
	case "file":
		if strings.TrimSpace(a.Path) == "" {
			return errors.New("authority.path is required in file mode")
		}
	case "http":
		if a.URL == "" {
			return errors.New("authority.url is required in http mode")
		}
	}
	if c.Fetcher.Type == "remote" && a.URL == "" {
		return errors.New("fetcher.type=remote requires authority.url")
	}
	return nil
}

// Validate 写入目标校验
func (s *SinkConfig) Validate() error {
	if err := valid.Struct(s); err != nil {
		return err
	}
	if s.Type == "postgres" {
		if s.DSN == "" {
			return errors.New("sink.dsn is required for postgres sink")
		}
		if s.Table == "" {
			return errors.New("sink.table is required for postgres sink")
		}
	}
	return nil
}

// Validate 日志配置校验
func (l *ZapLogConfig) Validate() error {
	if err := valid.Struct(l); err != nil {
		return fmt.Errorf("日志配置字段非法: %w", err)
	}

	// 	校验日志级别，（必须是zap支持的合法级别）
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(l.Level)] {
		return fmt.Errorf("Log.Level invalid (valid: debug/info/warn/error), got %s", l.Level)
	}
	// 	清理策略：按个数或按天数，二选一
	if l.MaxBackup == 0 && l.MaxAge == 0 {
		return errors.New("Log.MaxBackup or Log.MaxAge must be positive")
	}
	if l.MaxBackup > 0 && l.MaxAge > 0 {
		return fmt.Errorf("Log.MaxBackup (%d) and Log.MaxAge (%d) cannot both be set", l.MaxBackup, l.MaxAge)
	}
	// 	校验日志路径(非空，确保可创建)
	abs, err := filepath.Abs(l.Path)
	if err != nil {
		return fmt.Errorf("Log.Path Failed to parse the log path (expected: :path), got %s: %w", l.Path, err)
	}
	if err := ensureDir(abs); err != nil {
		return fmt.Errorf("Log.Path The log directory is not writable (expected: :path), got %s: %w", l.Path, err)
	}
	return nil
}

func ensureDir(path string) error {
	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
