package main

import (
	"fmt"
	"os"
	"time"

	"gavel/internal/common/cache"
	"gavel/internal/common/db"
	"gavel/internal/common/storage"
	"gavel/internal/judge/language"
	"gavel/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultStatusTTL       = time.Hour
	defaultWorkRoot        = "/tmp/gavel"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	PoolSize       int           `yaml:"poolSize"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
}

// JudgeConfig holds judging work settings.
type JudgeConfig struct {
	WorkRoot string `yaml:"workRoot"`
}

// StatusConfig holds live status persistence settings.
type StatusConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// SourceConfig holds source archival settings.
type SourceConfig struct {
	Bucket       string `yaml:"bucket"`
	KeyPrefix    string `yaml:"keyPrefix"`
	MaxCodeBytes int    `yaml:"maxCodeBytes"`
}

// RateLimitConfig holds submission throttling settings.
type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
	Window  time.Duration `yaml:"window"`
}

// SubmitConfig holds intake settings.
type SubmitConfig struct {
	IdempotencyTTL time.Duration   `yaml:"idempotencyTTL"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// LanguageSpec is one language definition from the config file. Commands are
// shell-style strings with {src}, {exe} and {workdir} placeholders.
type LanguageSpec struct {
	Key                  string `yaml:"key"`
	Name                 string `yaml:"name"`
	SourceExt            string `yaml:"sourceExt"`
	CompileCommand       string `yaml:"compileCommand"`
	RunCommand           string `yaml:"runCommand"`
	Interpreted          bool   `yaml:"interpreted"`
	DefaultTimeLimitMs   int64  `yaml:"defaultTimeLimitMs"`
	DefaultMemoryLimitKB int64  `yaml:"defaultMemoryLimitKb"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Database  db.MySQLConfig      `yaml:"database"`
	Redis     cache.RedisConfig   `yaml:"redis"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
	Auth      AuthConfig          `yaml:"auth"`
	Worker    WorkerConfig        `yaml:"worker"`
	Judge     JudgeConfig         `yaml:"judge"`
	Status    StatusConfig        `yaml:"status"`
	Source    SourceConfig        `yaml:"source"`
	Submit    SubmitConfig        `yaml:"submit"`
	Languages []LanguageSpec      `yaml:"languages"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if len(cfg.Languages) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = defaultWorkRoot
	}
	if cfg.Status.TTL == 0 {
		cfg.Status.TTL = defaultStatusTTL
	}
	if cfg.Source.Bucket == "" {
		cfg.Source.Bucket = cfg.MinIO.Bucket
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("GAVEL_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GAVEL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GAVEL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GAVEL_JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("GAVEL_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("GAVEL_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

// buildLanguages converts config specs into the runtime registry.
func buildLanguages(specs []LanguageSpec) (*language.Registry, error) {
	langs := make([]language.Language, 0, len(specs))
	for _, spec := range specs {
		if spec.Key == "" {
			return nil, fmt.Errorf("language key is required")
		}
		if spec.RunCommand == "" {
			return nil, fmt.Errorf("language %q has no run command", spec.Key)
		}
		compile, err := language.TemplateFromShell(spec.CompileCommand)
		if err != nil {
			return nil, fmt.Errorf("language %q compile command: %w", spec.Key, err)
		}
		run, err := language.TemplateFromShell(spec.RunCommand)
		if err != nil {
			return nil, fmt.Errorf("language %q run command: %w", spec.Key, err)
		}
		langs = append(langs, language.Language{
			Key:                  spec.Key,
			Name:                 spec.Name,
			SourceExt:            spec.SourceExt,
			CompileCommand:       compile,
			RunCommand:           run,
			Interpreted:          spec.Interpreted,
			DefaultTimeLimitMs:   spec.DefaultTimeLimitMs,
			DefaultMemoryLimitKB: spec.DefaultMemoryLimitKB,
		})
	}
	return language.NewRegistry(langs), nil
}
