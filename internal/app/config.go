package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/scriptrunner-backend/internal/data/batchstate"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/executor"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/orchestrator"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/sweeper"
	"github.com/yungbote/scriptrunner-backend/internal/platform/envutil"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

const configFileEnv = "SCRIPTRUNNER_CONFIG_YAML"

type RedisConfig struct {
	// Addr may list several comma-separated addresses for a cluster.
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type Config struct {
	LogMode        string        `yaml:"log_mode"`
	Environment    string        `yaml:"environment"`
	HTTPAddr       string        `yaml:"http_addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Redis          RedisConfig   `yaml:"redis"`
	PostgresDSN    string        `yaml:"postgres_dsn"`
	SQLitePath     string        `yaml:"sqlite_path"`
	JobThrottle    time.Duration `yaml:"job_throttle"`
	ScriptTimeout  time.Duration `yaml:"script_timeout"`
	SweepSchedule  string        `yaml:"sweep_schedule"`
	Otel           OtelConfig    `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		LogMode:     "development",
		Environment: "local",
		HTTPAddr:    ":8080",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: batchstate.DefaultKeyPrefix,
			TTL:       batchstate.DefaultTTL,
		},
		SQLitePath:    "scriptrunner.db",
		JobThrottle:   orchestrator.DefaultThrottle,
		ScriptTimeout: executor.DefaultTimeout,
		SweepSchedule: sweeper.DefaultSchedule,
		Otel:          OtelConfig{SampleRatio: 0.1},
	}
}

// LoadConfig layers defaults, then the optional YAML file named by
// SCRIPTRUNNER_CONFIG_YAML, then environment variables.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", configFileEnv, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Environment = envutil.String("APP_ENV", cfg.Environment)
	cfg.HTTPAddr = envutil.String("HTTP_ADDR", cfg.HTTPAddr)
	if origins := envutil.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.KeyPrefix = envutil.String("BATCH_KEY_PREFIX", cfg.Redis.KeyPrefix)
	cfg.Redis.TTL = envutil.Duration("BATCH_TTL", cfg.Redis.TTL)

	cfg.PostgresDSN = envutil.String("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.SQLitePath = envutil.String("SQLITE_PATH", cfg.SQLitePath)
	cfg.JobThrottle = envutil.Duration("JOB_THROTTLE", cfg.JobThrottle)
	cfg.ScriptTimeout = envutil.Duration("SCRIPT_TIMEOUT", cfg.ScriptTimeout)
	cfg.SweepSchedule = envutil.String("SWEEP_SCHEDULE", cfg.SweepSchedule)

	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint)
	cfg.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.Otel.Headers)
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure)
	if ratio := envutil.String("OTEL_SAMPLER_RATIO", ""); ratio != "" {
		var f float64
		if _, err := fmt.Sscanf(ratio, "%g", &f); err == nil {
			cfg.Otel.SampleRatio = f
		}
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("config: http_addr required")
	}
	if len(c.RedisAddrs()) == 0 {
		return fmt.Errorf("config: redis addr required")
	}
	if c.Redis.TTL <= 0 {
		return fmt.Errorf("config: batch ttl must be positive, got %s", c.Redis.TTL)
	}
	return nil
}

func (c Config) RedisAddrs() []string { return splitList(c.Redis.Addr) }

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
