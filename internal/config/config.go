package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultGeminiModel 是未配置 GEMINI_MODEL 时使用的模型。
const DefaultGeminiModel = "gemini-2.0-flash"

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	CV       CVConfig       `mapstructure:"cv"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port            int    `mapstructure:"port"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
	FrontendBaseURL string `mapstructure:"frontend_base_url"`
	// AllowedOrigins 以逗号分隔，为空时仅允许同源。
	AllowedOrigins string `mapstructure:"allowed_origins"`
	// MetricsSecret 非空时 /metrics 需要携带 X-Internal-Secret。
	MetricsSecret string `mapstructure:"metrics_secret"`
}

// Origins 返回拆分后的跨域白名单。
func (a APIConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(a.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open_conns"`
	MaxIdle  int    `mapstructure:"max_idle_conns"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Region           string `mapstructure:"region"`
	Bucket           string `mapstructure:"bucket"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
	// BucketLookup 取值 auto、dns 或 path。
	BucketLookup string `mapstructure:"bucket_lookup"`
}

// AuthConfig 描述 JWT 密钥与登录保护参数。
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	CookieDomain          string        `mapstructure:"cookie_domain"`
}

// SMTPConfig contains the outgoing mail server used for verification emails.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// GeminiConfig 描述生成式模型调用参数。
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// CVConfig 限制 CV 上传。
type CVConfig struct {
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	ClamdAddr      string `mapstructure:"clamd_addr"`
}

// WorkerConfig 控制 asynq 消费并发与 CV 渲染。
type WorkerConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	ChromeBin     string        `mapstructure:"chrome_bin"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.public_base_url", "http://localhost:8080/api")
	v.SetDefault("api.frontend_base_url", "http://localhost:3000")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "prepkitty")
	v.SetDefault("database.user", "prepkitty")
	v.SetDefault("database.password", "prepkitty")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "prepkitty")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("gemini.model", DefaultGeminiModel)
	v.SetDefault("cv.max_upload_bytes", 5*1024*1024)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.render_timeout", 60*time.Second)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.public_base_url":            "API_PUBLIC_BASE_URL",
		"api.frontend_base_url":          "FRONTEND_BASE_URL",
		"api.allowed_origins":            "CORS_ALLOWED_ORIGINS",
		"api.metrics_secret":             "METRICS_SECRET",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"database.max_open_conns":        "DATABASE_MAX_OPEN_CONNS",
		"database.max_idle_conns":        "DATABASE_MAX_IDLE_CONNS",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"auth.private_key_path":          "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":          "ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"auth.cookie_domain":             "COOKIE_DOMAIN",
		"smtp.host":                      "SMTP_HOST",
		"smtp.port":                      "SMTP_PORT",
		"smtp.username":                  "SMTP_USERNAME",
		"smtp.password":                  "SMTP_PASSWORD",
		"smtp.from":                      "SMTP_FROM",
		"gemini.api_key":                 "GEMINI_API_KEY",
		"gemini.model":                   "GEMINI_MODEL",
		"cv.max_upload_bytes":            "CV_MAX_UPLOAD_BYTES",
		"cv.clamd_addr":                  "CLAMD_ADDR",
		"worker.concurrency":             "WORKER_CONCURRENCY",
		"worker.chrome_bin":              "CHROME_BIN",
		"worker.render_timeout":          "CV_RENDER_TIMEOUT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// validate 汇总全部缺失项，一次性报告。
func validate(cfg Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_HOST", cfg.Database.Host},
		{"POSTGRES_DB", cfg.Database.Name},
		{"POSTGRES_USER", cfg.Database.User},
		{"POSTGRES_PASSWORD", cfg.Database.Password},
		{"DATABASE_SSLMODE", cfg.Database.SSLMode},
		{"REDIS_HOST", cfg.Redis.Host},
		{"MINIO_ENDPOINT", cfg.MinIO.Endpoint},
		{"MINIO_ACCESS_KEY_ID", cfg.MinIO.AccessKeyID},
		{"MINIO_SECRET_ACCESS_KEY", cfg.MinIO.SecretAccessKey},
		{"MINIO_BUCKET", cfg.MinIO.Bucket},
		{"GEMINI_MODEL", cfg.Gemini.Model},
	}
	positive := []struct {
		name  string
		value int64
	}{
		{"API_PORT", int64(cfg.API.Port)},
		{"DATABASE_PORT", int64(cfg.Database.Port)},
		{"REDIS_PORT", int64(cfg.Redis.Port)},
		{"ACCESS_TOKEN_TTL", int64(cfg.Auth.AccessTokenTTL)},
		{"REFRESH_TOKEN_TTL", int64(cfg.Auth.RefreshTokenTTL)},
		{"LOGIN_RATE_LIMIT_PER_HOUR", int64(cfg.Auth.LoginRateLimitPerHour)},
		{"LOGIN_LOCK_THRESHOLD", int64(cfg.Auth.LoginLockThreshold)},
		{"CV_MAX_UPLOAD_BYTES", cfg.CV.MaxUploadBytes},
		{"WORKER_CONCURRENCY", int64(cfg.Worker.Concurrency)},
	}

	var errs []error
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", p.name))
		}
	}
	return errors.Join(errs...)
}
