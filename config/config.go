// Package config 提供了统一的配置加载与管理能力：TOML 文件、APP_ 前缀环境变量覆盖、结构校验与热更新.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Buypolar-Capital/buypolarcapital/logging"
)

// Config 全局顶级配置结构.
type Config struct {
	Version    string           `mapstructure:"version"    toml:"version"`
	Server     ServerConfig     `mapstructure:"server"     toml:"server"`
	Log        LogConfig        `mapstructure:"log"        toml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    toml:"metrics"`
	Simulation SimulationConfig `mapstructure:"simulation" toml:"simulation"`
	Jobs       JobsConfig       `mapstructure:"jobs"       toml:"jobs"`
	Cache      CacheConfig      `mapstructure:"cache"      toml:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"  toml:"ratelimit"`
	Tracing    TracingConfig    `mapstructure:"tracing"    toml:"tracing"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	HTTP        struct {
		Addr              string        `mapstructure:"addr"                toml:"addr"`
		Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
		MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"`
	} `mapstructure:"http" toml:"http"`
	GRPC struct {
		Enabled   bool                `mapstructure:"enabled"   toml:"enabled"`
		Addr      string              `mapstructure:"addr"      toml:"addr"`
		Port      int                 `mapstructure:"port"      toml:"port"      validate:"min=0,max=65535"`
		Keepalive GRPCKeepaliveConfig `mapstructure:"keepalive" toml:"keepalive"`
	} `mapstructure:"grpc" toml:"grpc"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
}

// GRPCKeepaliveConfig gRPC 连接保活参数，零值表示使用 gRPC 默认值.
type GRPCKeepaliveConfig struct {
	MaxConnectionIdle     time.Duration `mapstructure:"max_connection_idle"      toml:"max_connection_idle"`
	MaxConnectionAge      time.Duration `mapstructure:"max_connection_age"       toml:"max_connection_age"`
	MaxConnectionAgeGrace time.Duration `mapstructure:"max_connection_age_grace" toml:"max_connection_age_grace"`
	Time                  time.Duration `mapstructure:"time"                     toml:"time"`
	Timeout               time.Duration `mapstructure:"timeout"                  toml:"timeout"`
	MinTime               time.Duration `mapstructure:"min_time"                 toml:"min_time"`
	PermitWithoutStream   bool          `mapstructure:"permit_without_stream"    toml:"permit_without_stream"`
}

// TracingConfig OpenTelemetry 链路追踪配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  toml:"sample_ratio"  validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"omitempty,oneof=debug info warn warning error"` // 日志级别。
	Format     string `mapstructure:"format"      toml:"format"      validate:"omitempty,oneof=json text"`                     // 日志格式（json/text）。
	File       string `mapstructure:"file"        toml:"file"`                                                                 // 日志文件路径。
	Console    bool   `mapstructure:"console"     toml:"console"`                                                              // 写文件时是否同时输出到控制台。
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`                                                             // 单个文件最大大小 (MB)。
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`                                                          // 最大备份数。
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`                                                              // 最大保留天数。
	Compress   bool   `mapstructure:"compress"    toml:"compress"`                                                             // 是否启用压缩。

	// ConsoleLevel 控制台单独的最低级别，为空时跟随 Level。
	ConsoleLevel string `mapstructure:"console_level" toml:"console_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// LoggerConfig 转换为 logging.Config.
func (c LogConfig) LoggerConfig(service, module string) logging.Config {
	return logging.Config{
		Service:      service,
		Module:       module,
		Level:        c.Level,
		Format:       c.Format,
		File:         c.File,
		Console:      c.Console,
		ConsoleLevel: c.ConsoleLevel,
		MaxSize:      c.MaxSize,
		MaxBackups:   c.MaxBackups,
		MaxAge:       c.MaxAge,
		Compress:     c.Compress,
	}
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// SimulationConfig 数值计算的默认参数与请求上限.
type SimulationConfig struct {
	Dt                float64 `mapstructure:"dt"                  toml:"dt"                  validate:"gt=0"`
	Workers           int     `mapstructure:"workers"             toml:"workers"             validate:"min=0"`
	BatchSize         int     `mapstructure:"batch_size"          toml:"batch_size"          validate:"min=0"`
	Seed              uint64  `mapstructure:"seed"                toml:"seed"` // 0 表示每次使用 crypto 种子。
	MaxPaths          int     `mapstructure:"max_paths"           toml:"max_paths"           validate:"gt=0"`
	MaxSteps          int     `mapstructure:"max_steps"           toml:"max_steps"           validate:"gt=0"`
	MaxSimulations    int     `mapstructure:"max_simulations"     toml:"max_simulations"     validate:"gt=0"`
	RuinTrials        int     `mapstructure:"ruin_trials"         toml:"ruin_trials"         validate:"gt=0"`
	MaxRuinTrials     int     `mapstructure:"max_ruin_trials"     toml:"max_ruin_trials"     validate:"gtefield=RuinTrials"`
	RuinUpperMultiple float64 `mapstructure:"ruin_upper_multiple" toml:"ruin_upper_multiple" validate:"gt=1"`
	KellyFormula      string  `mapstructure:"kelly_formula"       toml:"kelly_formula"       validate:"oneof=scaled classic"`
	Bounds            struct {
		Enabled bool    `mapstructure:"enabled" toml:"enabled"`
		Min     float64 `mapstructure:"min"     toml:"min"`
		Max     float64 `mapstructure:"max"     toml:"max"     validate:"gtefield=Min"`
	} `mapstructure:"bounds" toml:"bounds"`
}

// JobsConfig 异步任务队列配置.
type JobsConfig struct {
	Workers     int           `mapstructure:"workers"       toml:"workers"       validate:"gt=0"`
	QueueSize   int           `mapstructure:"queue_size"    toml:"queue_size"    validate:"gt=0"`
	ResultTTL   time.Duration `mapstructure:"result_ttl"    toml:"result_ttl"    validate:"gt=0"`
	CacheSizeMB int           `mapstructure:"cache_size_mb" toml:"cache_size_mb" validate:"min=0"`
}

// CacheConfig 报价缓存配置.
type CacheConfig struct {
	TTL       time.Duration `mapstructure:"ttl"         toml:"ttl"`
	Shards    int           `mapstructure:"shards"      toml:"shards"`
	MaxSizeMB int           `mapstructure:"max_size_mb" toml:"max_size_mb" validate:"min=0"`
	Enabled   bool          `mapstructure:"enabled"     toml:"enabled"`
}

// RateLimitConfig 定义令牌桶限流参数.
type RateLimitConfig struct {
	Rate    int  `mapstructure:"rate"    toml:"rate"    validate:"min=0"`
	Burst   int  `mapstructure:"burst"   toml:"burst"   validate:"min=0"`
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// DefaultConfig 返回无需配置文件即可运行的默认配置.
func DefaultConfig() *Config {
	c := &Config{Version: "dev"}
	c.Server.Name = "quantlab"
	c.Server.Environment = "dev"
	c.Server.HTTP.Port = 8080
	c.Server.HTTP.ReadTimeout = 10 * time.Second
	c.Server.HTTP.ReadHeaderTimeout = 5 * time.Second
	c.Server.HTTP.WriteTimeout = 60 * time.Second
	c.Server.HTTP.IdleTimeout = 120 * time.Second
	c.Server.HTTP.MaxBodyBytes = 1 << 20
	c.Server.GRPC.Port = 9090
	c.Server.GRPC.Keepalive = GRPCKeepaliveConfig{
		MaxConnectionIdle: 5 * time.Minute,
		Time:              2 * time.Hour,
		Timeout:           20 * time.Second,
		MinTime:           5 * time.Minute,
	}
	c.Server.ShutdownTimeout = 10 * time.Second

	c.Log = LogConfig{Level: "info", Format: "json", MaxSize: 100, MaxBackups: 7, MaxAge: 30}
	c.Metrics = MetricsConfig{Path: "/metrics", Enabled: true}

	c.Simulation = SimulationConfig{
		Dt:                0.01,
		BatchSize:         1000,
		MaxPaths:          100,
		MaxSteps:          100_000,
		MaxSimulations:    1_000_000,
		RuinTrials:        1000,
		MaxRuinTrials:     100_000,
		RuinUpperMultiple: 2,
		KellyFormula:      "scaled",
	}

	c.Jobs = JobsConfig{Workers: 4, QueueSize: 64, ResultTTL: 10 * time.Minute, CacheSizeMB: 64}
	c.Cache = CacheConfig{TTL: 5 * time.Minute, Shards: 64, MaxSizeMB: 32, Enabled: true}
	c.RateLimit = RateLimitConfig{Rate: 20, Burst: 40, Enabled: true}
	c.Tracing = TracingConfig{ServiceName: c.Server.Name, OTLPEndpoint: "localhost:4317", SampleRatio: 1}
	return c
}

var (
	vInstance = viper.New()
	validate  = validator.New()

	hooksMu  sync.RWMutex
	onReload []func(*Config)
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	hooksMu.Lock()
	onReload = append(onReload, hook)
	hooksMu.Unlock()
}

// Validate 对配置执行结构校验.
func Validate(conf any) error {
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func read(v *viper.Viper, path string, conf any) error {
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}
	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}
	return Validate(conf)
}

// Load 读取并校验配置，随后监听文件变化.
// conf 中已有的值作为默认值，文件未出现的键保持不变.
func Load(path string, conf *Config) error {
	if err := read(vInstance, path, conf); err != nil {
		return err
	}

	vInstance.WatchConfig()
	vInstance.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		next := *conf
		if err := vInstance.Unmarshal(&next); err != nil {
			slog.Error("reload config unmarshal failed", "error", err)
			return
		}
		if err := Validate(&next); err != nil {
			slog.Error("reload config validation failed", "error", err)
			return
		}
		*conf = next
		logging.SetLevel(conf.Log.Level)
		slog.Info("config hot-reloaded and validated successfully")

		hooksMu.RLock()
		defer hooksMu.RUnlock()
		for _, hook := range onReload {
			hook(conf)
		}
	})

	return nil
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	masked, err := maskedJSON(conf)
	if err != nil {
		slog.Error("failed to mask config for printing", "error", err)
		return
	}
	slog.Info("Current effective configuration", "config", masked)
}

func maskedJSON(conf any) (string, error) {
	data, err := json.Marshal(conf)
	if err != nil {
		return "", err
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		return "", err
	}

	mask(configMap)

	out, err := json.MarshalIndent(configMap, "  ", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)

			continue
		}

		if slice, ok := val.([]any); ok {
			for _, item := range slice {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}

			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"

				break
			}
		}
	}
}

// GetViper 返回底层的 Viper 实例.
func GetViper() *viper.Viper {
	return vInstance
}
