package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`    // 服务器配置
	Postgres  PostgresConfig  `mapstructure:"postgres"`  // PostgreSQL配置
	Provider  ProviderConfig  `mapstructure:"provider"`  // 赔率数据源配置
	Scheduler SchedulerConfig `mapstructure:"scheduler"` // 更新调度配置
	Quota     QuotaConfig     `mapstructure:"quota"`     // API配额配置
	Feeds     []FeedConfig    `mapstructure:"feeds"`     // 订阅的联赛列表
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// ProviderConfig 赔率API数据源配置
type ProviderConfig struct {
	BaseURL       string  `mapstructure:"base_url"`        // API基础地址
	APIKey        string  `mapstructure:"api_key"`         // 认证密钥
	Timeout       int     `mapstructure:"timeout"`         // 请求超时（秒）
	Proxy         string  `mapstructure:"proxy"`           // 代理地址
	Regions       string  `mapstructure:"regions"`         // 博彩公司地区（如 eu,uk）
	Markets       string  `mapstructure:"markets"`         // 拉取的市场（如 h2h,totals）
	RatePerMinute float64 `mapstructure:"rate_per_minute"` // 每分钟请求速率上限
}

// SchedulerConfig 更新调度配置
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"` // 调度循环周期（默认60s）
	MaxAttempts  int           `mapstructure:"max_attempts"`  // 单Feed每日最大尝试次数
	RetryDelay   time.Duration `mapstructure:"retry_delay"`   // 失败后的重试延迟（默认5m）
}

// QuotaConfig API配额配置
type QuotaConfig struct {
	DailyLimit   int `mapstructure:"daily_limit"`   // 每日请求上限
	MonthlyLimit int `mapstructure:"monthly_limit"` // 每月请求上限
}

// FeedConfig 单个联赛的静态配置
type FeedConfig struct {
	Key         string `mapstructure:"key"`          // 联赛标识（如 soccer_epl）
	Title       string `mapstructure:"title"`        // 展示名称
	ScheduledAt string `mapstructure:"scheduled_at"` // 每日计划更新时刻（HH:MM）
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("ODDS_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("ODDS_API_PROXY"); v != "" {
		cfg.Provider.Proxy = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// applyDefaults 为未配置项填默认值
func applyDefaults(cfg *Config) {
	if cfg.Scheduler.TickInterval <= 0 {
		cfg.Scheduler.TickInterval = 60 * time.Second
	}
	if cfg.Scheduler.MaxAttempts <= 0 {
		cfg.Scheduler.MaxAttempts = 3
	}
	if cfg.Scheduler.RetryDelay <= 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Quota.DailyLimit <= 0 {
		cfg.Quota.DailyLimit = 20
	}
	if cfg.Quota.MonthlyLimit <= 0 {
		cfg.Quota.MonthlyLimit = 500
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 15
	}
	if cfg.Provider.RatePerMinute <= 0 {
		cfg.Provider.RatePerMinute = 30
	}
}
