// Package config 提供了统一的配置加载与管理能力.
// TOML 文件经 viper 读取，环境变量前缀 APP_ 可覆盖任意键，加载后由 validator 校验，
// 文件变更时自动热更新并触发已注册的回调。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/clusterd/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gorm.io/gorm/logger"
)

// Config 全局顶级配置结构.
type Config struct {
	Version        string               `mapstructure:"version"        toml:"version"`
	Server         ServerConfig         `mapstructure:"server"         toml:"server"`
	Log            LogConfig            `mapstructure:"log"            toml:"log"`
	Database       DatabaseConfig       `mapstructure:"database"       toml:"database"`
	Redis          RedisConfig          `mapstructure:"redis"          toml:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"            toml:"jwt"`
	RateLimit      RateLimitConfig      `mapstructure:"ratelimit"      toml:"ratelimit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitbreaker" toml:"circuitbreaker"`
	Worker         WorkerConfig         `mapstructure:"worker"         toml:"worker"`
	Kmeans         KmeansConfig         `mapstructure:"kmeans"         toml:"kmeans"`
	Cache          BigCacheConfig       `mapstructure:"cache"          toml:"cache"`
	Snowflake      SnowflakeConfig      `mapstructure:"snowflake"      toml:"snowflake"`
	Metrics        MetricsConfig        `mapstructure:"metrics"        toml:"metrics"`
	Tracing        TracingConfig        `mapstructure:"tracing"        toml:"tracing"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string     `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string     `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	HTTP        HTTPConfig `mapstructure:"http"        toml:"http"`
}

// HTTPConfig HTTP 监听与超时参数.
type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"                toml:"addr"`
	Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
	Timeout           time.Duration `mapstructure:"timeout"             toml:"timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    toml:"max_header_bytes"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"     toml:"trusted_proxies"`
}

// DatabaseConfig 定义单数据库实例连接与连接池参数.
type DatabaseConfig struct {
	Driver          string          `mapstructure:"driver"            toml:"driver"            validate:"required,oneof=postgres mysql memory"` // memory 仅用于本地试用，数据不落盘
	DSN             string          `mapstructure:"dsn"               toml:"dsn"               validate:"required_unless=Driver memory"`
	ConnMaxLifetime time.Duration   `mapstructure:"conn_max_lifetime" toml:"conn_max_lifetime"`
	SlowThreshold   time.Duration   `mapstructure:"slow_threshold"    toml:"slow_threshold"`
	LogLevel        logger.LogLevel `mapstructure:"log_level"         toml:"log_level"`
	MaxIdleConns    int             `mapstructure:"max_idle_conns"    toml:"max_idle_conns"`
	MaxOpenConns    int             `mapstructure:"max_open_conns"    toml:"max_open_conns"`
	AutoMigrate     bool            `mapstructure:"auto_migrate"      toml:"auto_migrate"`
}

// RedisConfig 定义 Redis 连接与池化参数.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"        toml:"enabled"`
	Addr         string        `mapstructure:"addr"           toml:"addr"           validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password"       toml:"password"`
	DB           int           `mapstructure:"db"             toml:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"   toml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"   toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"  toml:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"      toml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" toml:"min_idle_conns"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level         string        `mapstructure:"level"          toml:"level"          validate:"omitempty,oneof=debug info warn warning error"`
	Output        string        `mapstructure:"output"         toml:"output"         validate:"omitempty,oneof=stdout file both"`
	File          string        `mapstructure:"file"           toml:"file"`
	MaxSize       int           `mapstructure:"max_size"       toml:"max_size"`    // MB
	MaxBackups    int           `mapstructure:"max_backups"    toml:"max_backups"`
	MaxAge        int           `mapstructure:"max_age"        toml:"max_age"` // 天
	Compress      bool          `mapstructure:"compress"       toml:"compress"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold" toml:"slow_threshold"` // HTTP 慢请求阈值。
}

// JWTConfig 身份认证令牌相关配置.
type JWTConfig struct {
	Secret            string        `mapstructure:"secret"              toml:"secret"              validate:"required,min=16"`
	Issuer            string        `mapstructure:"issuer"              toml:"issuer"`
	AccessExpire      time.Duration `mapstructure:"access_expire"       toml:"access_expire"`
	RefreshExpireDays int           `mapstructure:"refresh_expire_days" toml:"refresh_expire_days" validate:"gte=0"`
	CookieSecure      bool          `mapstructure:"cookie_secure"       toml:"cookie_secure"`
}

// RateLimitConfig 定义固定窗口限流参数.
// Redis 可用时使用分布式计数，否则退化为本地令牌桶。
type RateLimitConfig struct {
	Enabled      bool          `mapstructure:"enabled"       toml:"enabled"`
	GlobalPrefix string        `mapstructure:"global_prefix" toml:"global_prefix"`
	RoutePrefix  string        `mapstructure:"route_prefix"  toml:"route_prefix"`
	GlobalLimit  int           `mapstructure:"global_limit"  toml:"global_limit"  validate:"gte=0"`
	RouteLimit   int           `mapstructure:"route_limit"   toml:"route_limit"   validate:"gte=0"`
	Period       time.Duration `mapstructure:"period"        toml:"period"`
	// 单路由全局请求上限，不区分客户端，0 表示关闭。
	CapPrefix string `mapstructure:"cap_prefix" toml:"cap_prefix"`
	CapLimit  int    `mapstructure:"cap_limit"  toml:"cap_limit"  validate:"gte=0"`
}

// CircuitBreakerConfig 定义熔断器（gobreaker）的保护策略.
type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"       toml:"enabled"`
	Interval     time.Duration `mapstructure:"interval"      toml:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"       toml:"timeout"`
	MaxRequests  uint32        `mapstructure:"max_requests"  toml:"max_requests"`
	MinRequests  uint32        `mapstructure:"min_requests"  toml:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio" toml:"failure_ratio" validate:"gte=0,lte=1"`
}

// WorkerConfig 后台训练协程池参数.
type WorkerConfig struct {
	Workers     int           `mapstructure:"workers"      toml:"workers"      validate:"gte=0"`
	QueueSize   int           `mapstructure:"queue_size"   toml:"queue_size"   validate:"gte=0"`
	FitTimeout  time.Duration `mapstructure:"fit_timeout"  toml:"fit_timeout"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" toml:"stop_timeout"`
}

// KmeansConfig 聚类接口的默认参数与请求上限.
type KmeansConfig struct {
	DefaultMaxIter int     `mapstructure:"default_max_iter" toml:"default_max_iter" validate:"gte=0"`
	DefaultTol     float64 `mapstructure:"default_tol"      toml:"default_tol"      validate:"gte=0,lt=1"`
	MaxRows        int     `mapstructure:"max_rows"         toml:"max_rows"         validate:"gte=0"`
	MaxCols        int     `mapstructure:"max_cols"         toml:"max_cols"         validate:"gte=0"`
}

// BigCacheConfig 模型快照本地缓存参数.
type BigCacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"     toml:"enabled"`
	LifeWindow time.Duration `mapstructure:"life_window" toml:"life_window"`
	MaxSizeMB  int           `mapstructure:"max_size_mb" toml:"max_size_mb"`
}

// SnowflakeConfig 雪花算法分布式 ID 生成器参数.
type SnowflakeConfig struct {
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"gte=0,lte=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

var (
	vInstance = viper.New()
	hooksMu   sync.Mutex
	onReload  []func(*Config)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "clusterd")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.http.port", 8000)
	v.SetDefault("server.http.timeout", 30*time.Second)
	v.SetDefault("server.http.read_header_timeout", 5*time.Second)
	v.SetDefault("server.http.max_body_bytes", 32<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)
	v.SetDefault("jwt.issuer", "clusterd")
	v.SetDefault("jwt.access_expire", 15*time.Minute)
	v.SetDefault("jwt.refresh_expire_days", 7)
	v.SetDefault("ratelimit.global_prefix", "rl:global")
	v.SetDefault("ratelimit.route_prefix", "rl:route")
	v.SetDefault("ratelimit.global_limit", 100)
	v.SetDefault("ratelimit.route_limit", 20)
	v.SetDefault("ratelimit.period", time.Minute)
	v.SetDefault("ratelimit.cap_prefix", "cb")
	v.SetDefault("circuitbreaker.interval", time.Minute)
	v.SetDefault("circuitbreaker.timeout", 30*time.Second)
	v.SetDefault("circuitbreaker.max_requests", 5)
	v.SetDefault("circuitbreaker.min_requests", 10)
	v.SetDefault("circuitbreaker.failure_ratio", 0.5)
	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("worker.fit_timeout", 10*time.Minute)
	v.SetDefault("worker.stop_timeout", 30*time.Second)
	v.SetDefault("kmeans.max_rows", 100000)
	v.SetDefault("kmeans.max_cols", 1024)
	v.SetDefault("cache.life_window", 10*time.Minute)
	v.SetDefault("cache.max_size_mb", 256)
	v.SetDefault("snowflake.type", "snowflake")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.sampler_ratio", 1.0)
}

// Load 读取配置文件并开始监听变更。
func Load(path string, conf *Config) error {
	setDefaults(vInstance)
	vInstance.SetConfigFile(path)
	vInstance.SetConfigType("toml")

	vInstance.SetEnvPrefix("APP")
	vInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vInstance.AutomaticEnv()

	if err := vInstance.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}
	if err := vInstance.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
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
		if err := validate.Struct(&next); err != nil {
			slog.Error("reload config validation failed, keeping previous", "error", err)
			return
		}
		*conf = next
		logging.SetLevel(conf.Log.Level)
		slog.Info("config hot-reloaded and validated successfully")

		hooksMu.Lock()
		hooks := append([]func(*Config){}, onReload...)
		hooksMu.Unlock()
		for _, hook := range hooks {
			hook(conf)
		}
	})

	return nil
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		slog.Error("failed to unmarshal config for masking", "error", err)
		return
	}

	mask(configMap)

	maskedJSON, err := json.MarshalIndent(configMap, "  ", "  ")
	if err != nil {
		slog.Error("failed to marshal masked config", "error", err)
		return
	}

	slog.Info("Current effective configuration", "config", string(maskedJSON))
}

var sensitiveKeys = []string{"password", "secret", "dsn", "key", "token"}

func mask(configMap map[string]any) {
	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
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
