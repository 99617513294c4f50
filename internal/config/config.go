package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// Addr 返回 host:port 形式的监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProviderConfig 定义上游一次性邮箱服务商的访问配置
type ProviderConfig struct {
	BaseURL   string        // 服务商 API 地址，默认 https://api.mail.tm
	Timeout   time.Duration // 单次请求超时
	RateLimit float64       // 每秒请求数上限，<=0 表示不限速
	Burst     int           // 令牌桶容量
}

// SessionConfig 定义会话存储的行为
type SessionConfig struct {
	SweepInterval  time.Duration // 过期会话清理周期，0 表示只做惰性过期
	DomainCacheTTL time.Duration // 服务商域名列表缓存时间，0 表示不缓存
	DefaultExpiry  int           // 新用户的默认过期偏好（秒），0 表示永不过期
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
	MaxSize     int    // 单个日志文件最大 MB
	MaxBackups  int    // 保留的旧日志文件数量
	MaxAge      int    // 旧日志保留天数
}

// RedisConfig 定义可选的 Redis 共享缓存
type RedisConfig struct {
	Address  string // 留空表示不使用 Redis，域名列表只缓存在进程内
	Password string
	DB       int
}

// AlertConfig 定义告警规则阈值
type AlertConfig struct {
	Interval          time.Duration // 规则检查周期，0 表示关闭告警
	MemoryMB          float64       // 内存告警阈值（MB）
	MaxActiveSessions int           // 活跃会话数告警阈值
	ProviderErrorRate float64       // 服务商错误率告警阈值（0-1）
	WebhookURL        string        // 告警推送地址，留空只写日志
}

// Config 是系统配置的根结构体
type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Session  SessionConfig
	CORS     CORSConfig
	Log      LogConfig
	Redis    RedisConfig
	Alert    AlertConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPMAIL_
// 例如: TEMPMAIL_SERVER_PORT, TEMPMAIL_PROVIDER_BASE_URL
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("tempmail")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.base_url", "https://api.mail.tm")
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("provider.rate_limit", 8)
	v.SetDefault("provider.burst", 4)
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("session.domain_cache_ttl", "10m")
	v.SetDefault("session.default_expiry", 0)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("alert.interval", "1m")
	v.SetDefault("alert.memory_mb", 512)
	v.SetDefault("alert.max_active_sessions", 10000)
	v.SetDefault("alert.provider_error_rate", 0.5)
	v.SetDefault("alert.webhook_url", "")

	serverPort := v.GetInt("server.port")
	if serverPort <= 0 || serverPort > 65535 {
		return nil, fmt.Errorf("invalid server.port: %d", serverPort)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(v.GetString("provider.base_url")), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("provider.base_url must not be empty")
	}

	timeout, err := time.ParseDuration(v.GetString("provider.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.timeout: %w", err)
	}

	sweepInterval, err := time.ParseDuration(v.GetString("session.sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid session.sweep_interval: %w", err)
	}

	domainCacheTTL, err := time.ParseDuration(v.GetString("session.domain_cache_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid session.domain_cache_ttl: %w", err)
	}

	defaultExpiry := v.GetInt("session.default_expiry")
	if defaultExpiry < 0 {
		return nil, fmt.Errorf("session.default_expiry must not be negative")
	}

	alertInterval, err := time.ParseDuration(v.GetString("alert.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid alert.interval: %w", err)
	}

	errorRate := v.GetFloat64("alert.provider_error_rate")
	if errorRate <= 0 || errorRate > 1 {
		return nil, fmt.Errorf("alert.provider_error_rate must be in (0, 1]")
	}

	burst := v.GetInt("provider.burst")
	if burst <= 0 {
		burst = 1
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: serverPort,
		},
		Provider: ProviderConfig{
			BaseURL:   baseURL,
			Timeout:   timeout,
			RateLimit: v.GetFloat64("provider.rate_limit"),
			Burst:     burst,
		},
		Session: SessionConfig{
			SweepInterval:  sweepInterval,
			DomainCacheTTL: domainCacheTTL,
			DefaultExpiry:  defaultExpiry,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSize:     v.GetInt("log.max_size"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAge:      v.GetInt("log.max_age"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Alert: AlertConfig{
			Interval:          alertInterval,
			MemoryMB:          v.GetFloat64("alert.memory_mb"),
			MaxActiveSessions: v.GetInt("alert.max_active_sessions"),
			ProviderErrorRate: errorRate,
			WebhookURL:        v.GetString("alert.webhook_url"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载当前目录或父目录的 .env 文件
//
// 文件不存在时静默跳过；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
