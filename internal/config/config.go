package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "LESSON_ENGINE"

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Session   SessionConfig   `mapstructure:"session"`
	Attempt   AttemptConfig   `mapstructure:"attempt"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Events    EventsConfig    `mapstructure:"events"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Log       LogConfig       `mapstructure:"log"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`

	// 加载配置时使用的文件路径，供配置热更新监听
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string `mapstructure:"driver"`
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	LogLevel  string `mapstructure:"log_level"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type SessionConfig struct {
	// 会话在 redis 中的存活时间，单位小时
	TTLHours int `mapstructure:"ttl_hours"`
	// 异步销毁旧会话的超时，单位秒
	DestroyTimeoutSeconds int `mapstructure:"destroy_timeout_seconds"`
}

func (s SessionConfig) TTL() time.Duration {
	if s.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.TTLHours) * time.Hour
}

func (s SessionConfig) DestroyTimeout() time.Duration {
	if s.DestroyTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.DestroyTimeoutSeconds) * time.Second
}

type AttemptConfig struct {
	// 未设置时间限制的课程，作答凭据保留的小时数
	TicketTTLHours int `mapstructure:"ticket_ttl_hours"`
	// 有时间限制时在限制之外额外保留的分钟数
	TicketGraceMinutes int `mapstructure:"ticket_grace_minutes"`
}

func (a AttemptConfig) TicketTTL() time.Duration {
	if a.TicketTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TicketTTLHours) * time.Hour
}

func (a AttemptConfig) TicketGrace() time.Duration {
	if a.TicketGraceMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(a.TicketGraceMinutes) * time.Minute
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServiceName       string `mapstructure:"service_name"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// ArchiveConfig 评分结果归档，Type 为空表示不归档，可选 local 或 minio
type ArchiveConfig struct {
	Type      string `mapstructure:"type"`
	LocalPath string `mapstructure:"local_path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LoadConfig 从 path 目录读取 config.yaml，环境变量（含 .env）覆盖文件中的值
func LoadConfig(path string) (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// 常用的敏感配置也允许使用不带前缀的变量名
	bindings := [][2]string{
		{"database.driver", "DATABASE_DRIVER"},
		{"database.host", "DATABASE_HOST"},
		{"database.port", "DATABASE_PORT"},
		{"database.user", "DATABASE_USER"},
		{"database.password", "DATABASE_PASSWORD"},
		{"database.dbname", "DATABASE_NAME"},
		{"jwt.secret", "JWT_SECRET"},
		{"redis.host", "REDIS_HOST"},
		{"redis.port", "REDIS_PORT"},
		{"redis.password", "REDIS_PASSWORD"},
		{"server.mode", "SERVER_MODE"},
		{"events.url", "RABBITMQ_URL"},
		{"archive.type", "ARCHIVE_TYPE"},
		{"archive.endpoint", "MINIO_ENDPOINT"},
		{"archive.access_key", "MINIO_ACCESS_KEY"},
		{"archive.secret_key", "MINIO_SECRET_KEY"},
		{"archive.bucket", "MINIO_BUCKET"},
		{"tracing.enabled", "TRACING_ENABLED"},
		{"tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT"},
	}
	for _, b := range bindings {
		key, env := b[0], b[1]
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("tracing.service_name", "lesson-engine")
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("events.exchange", "lesson_engine.events")
	v.SetDefault("archive.bucket", "attempt-archive")
	v.SetDefault("archive.local_path", "archive")
}

// Validate 检查加载后的配置是否可用
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return errors.New("events.enabled requires events.url")
	}
	switch c.Archive.Type {
	case "", "none", "local":
	case "minio":
		if c.Archive.Endpoint == "" {
			return errors.New("archive.type minio requires archive.endpoint")
		}
	default:
		return fmt.Errorf("unsupported archive type %q", c.Archive.Type)
	}
	return nil
}
