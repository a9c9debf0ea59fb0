package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server" comment:"HTTP服务配置"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor" comment:"采集调度配置"`
	Authority AuthorityConfig `yaml:"authority" mapstructure:"authority" comment:"配置中心"`
	Fetcher   FetcherConfig   `yaml:"fetcher" mapstructure:"fetcher" comment:"取值方式"`
	Sink      SinkConfig      `yaml:"sink" mapstructure:"sink" comment:"指标写入目标"`
	Log       ZapLogConfig    `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"HTTP_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"HTTP_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"HTTP_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// MonitorConfig 采集调度配置
type MonitorConfig struct {
	ChunkSize           int           `yaml:"chunk_size" mapstructure:"chunk_size" validate:"required,gt=0" comment:"每次远端取值的最大条数" default:"256"`
	DefaultCycleTime    time.Duration `yaml:"default_cycle_time" mapstructure:"default_cycle_time" validate:"required,gt=0" comment:"数据源未声明周期时使用" default:"300s"`
	ConfigCycleInterval time.Duration `yaml:"config_cycle_interval" mapstructure:"config_cycle_interval" validate:"required,gt=0" comment:"配置快照刷新间隔" default:"12h"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout" validate:"required,gt=0" comment:"单批取值超时" default:"30s"`
}

// AuthorityConfig 配置中心
type AuthorityConfig struct {
	Mode    string        `yaml:"mode" mapstructure:"mode" validate:"required,oneof=file http" comment:"file: 本地YAML快照; http: 远端配置中心" default:"file"`
	Path    string        `yaml:"path" mapstructure:"path" comment:"file 模式下的快照路径" default:"configs/datasources.yaml"`
	URL     string        `yaml:"url" mapstructure:"url" validate:"omitempty,url" comment:"http 模式下的配置中心地址"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"required,gt=0" comment:"请求超时" default:"30s"`
}

// FetcherConfig 取值方式
type FetcherConfig struct {
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=remote host" comment:"remote: 配置中心取值; host: 本机gopsutil取值" default:"host"`
}

// SinkConfig 写入目标
type SinkConfig struct {
	Type        string `yaml:"type" mapstructure:"type" validate:"required,oneof=postgres prometheus" comment:"写入目标类型" default:"prometheus"`
	DSN         string `yaml:"dsn" mapstructure:"dsn" comment:"postgres 连接串"`
	Table       string `yaml:"table" mapstructure:"table" comment:"postgres 表名" default:"datapoints"`
	AbsentValue string `yaml:"absent_value" mapstructure:"absent_value" validate:"required,oneof=skip null" comment:"缺值处理：skip 跳过，null 写空值" default:"skip"`
	Tags        bool   `yaml:"tags" mapstructure:"tags" comment:"prometheus 是否把标签转为 label" default:"true"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"gte=0" comment:"保留的日志文件个数，>0 时按个数清理，与 max_age 二选一" default:"0"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"gte=0" comment:"日志文件最大保存天数" default:"7"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Monitor: MonitorConfig{
			ChunkSize:           256,
			DefaultCycleTime:    300 * time.Second,
			ConfigCycleInterval: 12 * time.Hour,
			FetchTimeout:        30 * time.Second,
		},
		Authority: AuthorityConfig{
			Mode:    "file",
			Path:    "configs/datasources.yaml",
			Timeout: 30 * time.Second,
		},
		Fetcher: FetcherConfig{
			Type: "host",
		},
		Sink: SinkConfig{
			Type:        "prometheus",
			Table:       "datapoints",
			AbsentValue: "skip",
			Tags:        true,
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 0,
			MaxAge:    7,
		},
	}
}

// LoadConfigWithCli 支持 time.Duration，(Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	cfg := NewDefaultConfig()
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper（flag 名 server.read-timeout → server.read_timeout）
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Name == "config" {
			return
		}
		bindErr = v.BindPFlag(flagKey(f.Name), f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 PROPMON_SINK_DSN -> sink.dsn
	v.SetEnvPrefix("PROPMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := decode(v, cfg); err != nil {
		return nil, err
	}

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile 只读配置文件，测试和工具使用
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := decode(v, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// 4. 解码反序列化到结构体（支持 time.Duration）
func decode(v *viper.Viper, cfg *Config) error {
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验采集配置
	if err := c.Monitor.Validate(); err != nil {
		return err
	}
	// 	3，配置中心与取值方式
	if err := c.validateAuthority(); err != nil {
		return err
	}
	// 	4，写入目标
	if err := c.Sink.Validate(); err != nil {
		return err
	}
	// 	5，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
