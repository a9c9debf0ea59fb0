package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/propmon-agent/pkg/config"
	"github.com/propmon-agent/pkg/goid"
)

type Logger = zap.Logger

var (
	mu               sync.RWMutex
	baseLogger       = zap.NewNop()
	defaultComponent = "agent"
)

// ParseLevel 解析日志级别，无法识别时回落到 info
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	case "pan", "panic":
		return zapcore.PanicLevel
	case "fat", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger 初始化全局日志：控制台彩色输出 + 按天切割的文件输出
func InitLogger(cfg *config.ZapLogConfig) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	maxSize := int64(cfg.MaxSize) * 1024 * 1024
	if maxSize <= 0 {
		maxSize = 100 * 1024 * 1024
	}
	writer, err := rotatelogs.New(
		filepath.Join(cfg.Path, "propmon-%Y%m%d.log"),
		append(retention(cfg),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithRotationSize(maxSize),
		)...,
	)
	if err != nil {
		return nil, fmt.Errorf("create log writer: %w", err)
	}

	// 控制台彩色时间
	customTimeEncoderConsole := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format("2006-01-02 15:04:05.000 -07:00")))
	}
	// JSON 日志纯文本时间
	customTimeEncoderJSON := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000 -07:00"))
	}

	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.ConsoleSeparator = " "
	consoleEncoderCfg.EncodeLevel = coloredLevelEncoder
	consoleEncoderCfg.EncodeTime = customTimeEncoderConsole
	// Caller 两级路径
	consoleEncoderCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.TimeKey = "timestamp"
	jsonCfg.EncodeTime = customTimeEncoderJSON
	jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(jsonCfg)

	// format=json 时控制台也输出 JSON，便于容器日志采集
	var stdoutEncoder zapcore.Encoder = zapcore.NewConsoleEncoder(consoleEncoderCfg)
	if cfg.Format == "json" {
		stdoutEncoder = zapcore.NewJSONEncoder(jsonCfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(writer), level),
	)

	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	SetGlobalLogger(l)
	return l, nil
}

// retention 保留个数优先；rotatelogs 不允许同时设置个数和天数
func retention(cfg *config.ZapLogConfig) []rotatelogs.Option {
	if cfg.MaxBackup > 0 {
		return []rotatelogs.Option{rotatelogs.WithRotationCount(uint(cfg.MaxBackup))}
	}
	maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return []rotatelogs.Option{rotatelogs.WithMaxAge(maxAge)}
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var levelStr string
	switch level {
	case zapcore.DebugLevel:
		levelStr = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		levelStr = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		levelStr = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		levelStr = "\033[31mERROR\033[0m"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
	default:
		levelStr = "UNK  "
	}
	enc.AppendString(levelStr)
}

// SetGlobalLogger 替换全局日志，测试中可注入 observer
func SetGlobalLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	baseLogger = l
}

// GetGlobalLogger 未初始化时返回 Nop
func GetGlobalLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

// SetDefaultComponent 包级日志函数附带的 component 字段
func SetDefaultComponent(component string) {
	mu.Lock()
	defer mu.Unlock()
	defaultComponent = component
}

func GetDefaultComponent() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultComponent
}

func log(level zapcore.Level, msg string, fields ...zapcore.Field) {
	mu.RLock()
	l, component := baseLogger, defaultComponent
	mu.RUnlock()

	fields = append(fields,
		zap.String("component", component),
		zap.String("goid", strconv.FormatUint(goid.GetGID(), 10)),
	)
	l = l.WithOptions(zap.AddCallerSkip(2))

	switch level {
	case zapcore.DebugLevel:
		l.Debug(msg, fields...)
	case zapcore.InfoLevel:
		l.Info(msg, fields...)
	case zapcore.WarnLevel:
		l.Warn(msg, fields...)
	case zapcore.ErrorLevel:
		l.Error(msg, fields...)
	case zapcore.PanicLevel:
		l.Panic(msg, fields...)
	case zapcore.FatalLevel:
		l.Fatal(msg, fields...)
	}
}

func Debug(msg string, fields ...zapcore.Field) { log(zapcore.DebugLevel, msg, fields...) }
func Info(msg string, fields ...zapcore.Field)  { log(zapcore.InfoLevel, msg, fields...) }
func Warn(msg string, fields ...zapcore.Field)  { log(zapcore.WarnLevel, msg, fields...) }
func Error(msg string, fields ...zapcore.Field) { log(zapcore.ErrorLevel, msg, fields...) }
func Panic(msg string, fields ...zapcore.Field) { log(zapcore.PanicLevel, msg, fields...) }
func Fatal(msg string, fields ...zapcore.Field) { log(zapcore.FatalLevel, msg, fields...) }

// Sync 刷盘；stdout 在部分平台不支持 sync，忽略该错误
func Sync() error {
	err := GetGlobalLogger().Sync()
	if err != nil && strings.Contains(err.Error(), "/dev/stdout") {
		return nil
	}
	return err
}
