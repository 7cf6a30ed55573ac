package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

// EnvPrefix namespaces every environment override, e.g. KZH_DATABASE_DSN.
const EnvPrefix = "KZH_"

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Minio     MinioConfig     `yaml:"minio" envPrefix:"MINIO_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Users     []User          `yaml:"users"`
}

type ServerConfig struct {
	Port            int `yaml:"port" env:"PORT"`
	RateLimit       int `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateLimitBurst  int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	MaxUploadSizeMB int `yaml:"max_upload_size_mb" env:"MAX_UPLOAD_SIZE_MB"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenExpireHours int    `yaml:"token_expire_hours" env:"TOKEN_EXPIRE_HOURS"`
}

// DatabaseConfig selects the entity store driver: memory, sqlite or postgres.
type DatabaseConfig struct {
	Driver      string `yaml:"driver" env:"DRIVER"`
	DSN         string `yaml:"dsn" env:"DSN"`
	MaxConns    int32  `yaml:"max_conns" env:"MAX_CONNS"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey  string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey  string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket     string `yaml:"bucket" env:"BUCKET"`
	UseSSL     bool   `yaml:"use_ssl" env:"USE_SSL"`
	ExpireDays int    `yaml:"expire_days" env:"EXPIRE_DAYS"`
}

// RedisConfig enables the cross-process tick lock when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	LockKey  string        `yaml:"lock_key" env:"LOCK_KEY"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}

type SchedulerConfig struct {
	Enabled            bool     `yaml:"enabled" env:"ENABLED"`
	Timezone           string   `yaml:"timezone" env:"TIMEZONE"`
	CooldownDays       int      `yaml:"cooldown_days" env:"COOLDOWN_DAYS"`
	Tiers              []int    `yaml:"tiers" env:"TIERS" envSeparator:","`
	ContractStatuses   []string `yaml:"contract_statuses" env:"CONTRACT_STATUSES" envSeparator:","`
	PaymentWindowStart int      `yaml:"payment_window_start" env:"PAYMENT_WINDOW_START"`
	PaymentWindowEnd   int      `yaml:"payment_window_end" env:"PAYMENT_WINDOW_END"`
	CleanupDays        int      `yaml:"cleanup_days" env:"CLEANUP_DAYS"`
	ContractExpiryCron string   `yaml:"contract_expiry_cron" env:"CONTRACT_EXPIRY_CRON"`
	DocumentExpiryCron string   `yaml:"document_expiry_cron" env:"DOCUMENT_EXPIRY_CRON"`
	PaymentDueCron     string   `yaml:"payment_due_cron" env:"PAYMENT_DUE_CRON"`
	CleanupCron        string   `yaml:"cleanup_cron" env:"CLEANUP_CRON"`
}

// Location resolves the configured time zone, falling back to UTC.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// User is a bootstrap account created by the seed command.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
	FullName string `yaml:"full_name"`
	Role     string `yaml:"role"`
}

// Load reads the YAML file at path (skipped when path is empty), loads a .env
// file if present, applies KZH_* environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 20
	}
	if c.Server.MaxUploadSizeMB == 0 {
		c.Server.MaxUploadSizeMB = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "data/kzh.db"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Minio.Bucket == "" {
		c.Minio.Bucket = "documents"
	}
	if c.Redis.LockKey == "" {
		c.Redis.LockKey = "kzh:scheduler:tick"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Minute
	}

	s := &c.Scheduler
	if s.CooldownDays == 0 {
		s.CooldownDays = 7
	}
	if len(s.Tiers) == 0 {
		s.Tiers = []int{30, 7, 1}
	}
	if len(s.ContractStatuses) == 0 {
		s.ContractStatuses = []string{"active", "signed"}
	}
	if s.PaymentWindowStart == 0 {
		s.PaymentWindowStart = 5
	}
	if s.PaymentWindowEnd == 0 {
		s.PaymentWindowEnd = 10
	}
	if s.CleanupDays == 0 {
		s.CleanupDays = 90
	}
	if s.ContractExpiryCron == "" {
		s.ContractExpiryCron = "0 9 * * *"
	}
	if s.DocumentExpiryCron == "" {
		s.DocumentExpiryCron = "15 9 * * *"
	}
	if s.PaymentDueCron == "" {
		s.PaymentDueCron = "0 10 5 * *"
	}
	if s.CleanupCron == "" {
		s.CleanupCron = "0 2 * * 0"
	}
}

// Validate rejects configurations the scheduler or server cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return errors.New("database dsn is required for postgres")
	}
	s := c.Scheduler
	if s.PaymentWindowStart < 1 || s.PaymentWindowEnd > 31 || s.PaymentWindowStart > s.PaymentWindowEnd {
		return fmt.Errorf("invalid payment window %d..%d", s.PaymentWindowStart, s.PaymentWindowEnd)
	}
	for _, status := range s.ContractStatuses {
		if !model.ContractStatus(strings.TrimSpace(status)).Valid() {
			return fmt.Errorf("unknown contract status %q", status)
		}
	}
	for _, tier := range s.Tiers {
		if tier < 0 {
			return fmt.Errorf("invalid lookahead tier %d", tier)
		}
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}
