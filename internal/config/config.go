package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Build     BuildConfig     `yaml:"build"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Exclusion ExclusionConfig `yaml:"exclusion"`
	PlatformA PlatformAConfig `yaml:"platform_a"`
	PlatformB PlatformBConfig `yaml:"platform_b"`
	Import    ImportConfig    `yaml:"import"`
	AWS       AWSConfig       `yaml:"aws"`
	Export    ExportConfig    `yaml:"export"`
	Notify    NotifyConfig    `yaml:"notify"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// APIToken guards /api routes with a bearer token. Empty disables the check.
	APIToken       string   `yaml:"api_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL settings. An empty URL disables every
// Postgres-backed component.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// BuildConfig tunes the clean master build.
type BuildConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	SoftLimitSeconds int    `yaml:"soft_limit_seconds"`
	LockWaitSeconds  int    `yaml:"lock_wait_seconds"`
	LockTTLSeconds   int    `yaml:"lock_ttl_seconds"`
	StateBackend     string `yaml:"state_backend"` // redis, postgres, dynamodb, memory
	DynamoTable      string `yaml:"dynamo_table"`
}

// SoftLimit returns the per-invocation work budget.
func (c BuildConfig) SoftLimit() time.Duration {
	return time.Duration(c.SoftLimitSeconds) * time.Second
}

// LockWait returns how long an invocation waits for the build lock.
func (c BuildConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitSeconds) * time.Second
}

// LockTTL returns the expiry of a held Redis lock.
func (c BuildConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// SheetsConfig names the tables the build reads and writes.
type SheetsConfig struct {
	RawA        string `yaml:"raw_a"`
	RawB        string `yaml:"raw_b"`
	CleanMaster string `yaml:"clean_master"`
}

// ExclusionConfig holds the product keyword list and the renewal rule.
// Keywords are case-insensitive substrings; a false positive drops a real
// order line, so keep the list short.
type ExclusionConfig struct {
	BannedProductKeywords []string      `yaml:"banned_product_keywords"`
	Renewal               RenewalConfig `yaml:"renewal"`
}

// RenewalConfig describes the Platform B renewal orders excluded in full. A
// zero year disables the rule.
type RenewalConfig struct {
	Year          int      `yaml:"year"`
	Jurisdictions []string `yaml:"jurisdictions"`
	Entities      []string `yaml:"entities"`
	RenewalStems  []string `yaml:"renewal_stems"`
}

// PlatformAConfig holds the Platform A order API settings
type PlatformAConfig struct {
	Enabled      bool     `yaml:"enabled"`
	BaseURL      string   `yaml:"base_url"`
	APIKey       string   `yaml:"api_key"`
	PageSize     int      `yaml:"page_size"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// PlatformBConfig holds the Platform B order API settings
type PlatformBConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	PageSize    int    `yaml:"page_size"`
}

// ImportConfig holds settings shared by both importers.
type ImportConfig struct {
	LookbackDays int `yaml:"lookback_days"`
}

// Since returns the start of the import window relative to now.
func (c ImportConfig) Since(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.LookbackDays)
}

// AWSConfig holds credentials shared by S3, SES, and DynamoDB.
type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Profile   string `yaml:"profile"`
}

// ExportConfig controls the CSV snapshot uploaded after a completed build.
type ExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// NotifyConfig controls the completion email.
type NotifyConfig struct {
	Enabled bool     `yaml:"enabled"`
	From    string   `yaml:"from"`
	To      []string `yaml:"to"`
	Subject string   `yaml:"subject"`
	Body    string   `yaml:"body"`
}

// WorkerConfig holds the scheduled worker settings.
type WorkerConfig struct {
	IntervalSeconds    int  `yaml:"interval_seconds"`
	RunImports         bool `yaml:"run_imports"`
	EventRetentionDays int  `yaml:"event_retention_days"`
}

// EventRetention returns how long event_log rows are kept.
func (c WorkerConfig) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionDays) * 24 * time.Hour
}

// Interval returns the tick interval as a time.Duration
func (c WorkerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Build.ChunkSize == 0 {
		cfg.Build.ChunkSize = 1500
	}
	if cfg.Build.SoftLimitSeconds == 0 {
		cfg.Build.SoftLimitSeconds = 318
	}
	if cfg.Build.LockWaitSeconds == 0 {
		cfg.Build.LockWaitSeconds = 10
	}
	if cfg.Build.LockTTLSeconds == 0 {
		cfg.Build.LockTTLSeconds = 360
	}
	if cfg.Build.StateBackend == "" {
		cfg.Build.StateBackend = "redis"
	}
	if cfg.Build.DynamoTable == "" {
		cfg.Build.DynamoTable = "order-reconciler-state"
	}
	if cfg.Sheets.RawA == "" {
		cfg.Sheets.RawA = "Platform A Orders"
	}
	if cfg.Sheets.RawB == "" {
		cfg.Sheets.RawB = "Platform B Orders"
	}
	if cfg.Sheets.CleanMaster == "" {
		cfg.Sheets.CleanMaster = "Clean Master"
	}
	if cfg.PlatformA.PageSize == 0 {
		cfg.PlatformA.PageSize = 100
	}
	if cfg.PlatformB.PageSize == 0 {
		cfg.PlatformB.PageSize = 250
	}
	if cfg.Import.LookbackDays == 0 {
		cfg.Import.LookbackDays = 3
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}
	if cfg.Export.Prefix == "" {
		cfg.Export.Prefix = "clean-master"
	}
	if cfg.Worker.IntervalSeconds == 0 {
		cfg.Worker.IntervalSeconds = 900
	}
	if cfg.Worker.EventRetentionDays == 0 {
		cfg.Worker.EventRetentionDays = 90
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STATE_BACKEND"); v != "" {
		cfg.Build.StateBackend = v
	}

	// Platform credentials
	if v := os.Getenv("PLATFORM_A_API_KEY"); v != "" {
		cfg.PlatformA.APIKey = v
	}
	if v := os.Getenv("PLATFORM_A_CLIENT_ID"); v != "" {
		cfg.PlatformA.ClientID = v
	}
	if v := os.Getenv("PLATFORM_A_CLIENT_SECRET"); v != "" {
		cfg.PlatformA.ClientSecret = v
	}
	if v := os.Getenv("PLATFORM_B_ACCESS_TOKEN"); v != "" {
		cfg.PlatformB.AccessToken = v
	}

	// AWS
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.AWS.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.AWS.SecretKey = v
	}
	if v := os.Getenv("EXPORT_S3_BUCKET"); v != "" {
		cfg.Export.Bucket = v
		cfg.Export.Enabled = true
	}
	if v := os.Getenv("NOTIFY_TO"); v != "" {
		cfg.Notify.To = splitList(v)
	}

	return cfg, nil
}

// Validate reports settings that would make a component unusable.
func (c *Config) Validate() error {
	var problems []string
	switch c.Build.StateBackend {
	case "redis":
		if c.Redis.Addr == "" {
			problems = append(problems, "build.state_backend is redis but redis.addr is empty")
		}
	case "postgres":
		if c.Database.URL == "" {
			problems = append(problems, "build.state_backend is postgres but database.url is empty")
		}
	case "dynamodb", "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown build.state_backend %q", c.Build.StateBackend))
	}
	if c.Build.ChunkSize < 1 {
		problems = append(problems, "build.chunk_size must be positive")
	}
	if c.Export.Enabled && c.Export.Bucket == "" {
		problems = append(problems, "export.enabled needs export.bucket")
	}
	if c.Notify.Enabled && (c.Notify.From == "" || len(c.Notify.To) == 0) {
		problems = append(problems, "notify.enabled needs notify.from and notify.to")
	}
	if c.PlatformA.Enabled && c.PlatformA.BaseURL == "" {
		problems = append(problems, "platform_a.enabled needs platform_a.base_url")
	}
	if c.PlatformB.Enabled && c.PlatformB.BaseURL == "" {
		problems = append(problems, "platform_b.enabled needs platform_b.base_url")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
