package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is built once at startup and passed explicitly to every component.
// Nothing reads the environment after Load returns.
type Config struct {
	App struct {
		Name      string `envconfig:"APP_NAME"   default:"sms-gateway"`
		Env       string `envconfig:"APP_ENV"    default:"development"`
		LogLevel  string `envconfig:"LOG_LEVEL"  default:"info"`
		LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	}

	API struct {
		Host              string        `envconfig:"API_HOST"                default:"0.0.0.0"`
		Port              string        `envconfig:"API_PORT"                default:"8080"`
		ReadHeaderTimeout time.Duration `envconfig:"API_READ_HEADER_TIMEOUT" default:"5s"`
		ShutdownTimeout   time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT"    default:"10s"`
	}

	DB struct {
		Host         string `envconfig:"DB_HOST"           default:"db"`
		Port         int    `envconfig:"DB_PORT"           default:"5432"`
		User         string `envconfig:"DB_USER"           default:"root"`
		Password     string `envconfig:"DB_PASSWORD"       default:"123456"`
		Name         string `envconfig:"DB_NAME"           default:"db_sms_gateway"`
		SSLMode      string `envconfig:"DB_SSLMODE"        default:"disable"`
		MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
		AutoMigrate  bool   `envconfig:"DB_AUTO_MIGRATE"   default:"true"`
	}

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR"     default:"redis:6379"`
		Password string `envconfig:"REDIS_PASSWORD" default:""`
		DB       int    `envconfig:"REDIS_DB"       default:"0"`
	}

	SMS struct {
		ProviderURL     string        `envconfig:"SMS_PROVIDER_URL"     default:""`
		ProviderKey     string        `envconfig:"SMS_PROVIDER_KEY"     default:""`
		ProviderTimeout time.Duration `envconfig:"SMS_PROVIDER_TIMEOUT" default:"5s"`
	}

	Gateway struct {
		SenderWhitelist   []string `envconfig:"SMS_SENDER_ID_WHITELIST"   default:""`
		WebhookSecret     string   `envconfig:"SMS_WEBHOOK_SECRET"        default:""`
		DLRTimeoutMinutes int      `envconfig:"SMS_DLR_TIMEOUT_MINUTES"   default:"5"`
		ThroughputPerSec  int      `envconfig:"SMS_THROUGHPUT_PER_SECOND" default:"10"`
		RateLimitBackend  string   `envconfig:"SMS_RATE_LIMIT_BACKEND"    default:"redis"`
	}

	Retry struct {
		Max       int           `envconfig:"SMS_RETRY_MAX"        default:"5"`
		BaseDelay time.Duration `envconfig:"SMS_RETRY_BASE_DELAY" default:"60s"`
		MaxDelay  time.Duration `envconfig:"SMS_RETRY_MAX_DELAY"  default:"30m"`
	}

	Worker struct {
		Concurrency        int           `envconfig:"WORKER_CONCURRENCY"          default:"4"`
		PollInterval       time.Duration `envconfig:"WORKER_POLL_INTERVAL"        default:"500ms"`
		TaskTimeout        time.Duration `envconfig:"WORKER_TASK_TIMEOUT"         default:"30s"`
		Lease              time.Duration `envconfig:"WORKER_LEASE"                default:"2m"`
		LeaseCheckInterval time.Duration `envconfig:"WORKER_LEASE_CHECK_INTERVAL" default:"15s"`
	}

	Scheduler struct {
		Interval     time.Duration `envconfig:"SCHEDULER_INTERVAL"      default:"1m"`
		BatchTimeout time.Duration `envconfig:"SCHEDULER_BATCH_TIMEOUT" default:"30s"`
	}

	Monitor struct {
		AlertCooldown   time.Duration `envconfig:"MONITOR_ALERT_COOLDOWN"    default:"0s"`
		AlertWebhookURL string        `envconfig:"MONITOR_ALERT_WEBHOOK_URL" default:""`
		BatchSize       int           `envconfig:"MONITOR_BATCH_SIZE"        default:"500"`
	}
}

// Load reads an optional .env file and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Gateway.SenderWhitelist = normalizeList(cfg.Gateway.SenderWhitelist)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Gateway.WebhookSecret) == "" {
		errs = append(errs, errors.New("SMS_WEBHOOK_SECRET is required"))
	}
	if c.Gateway.DLRTimeoutMinutes <= 0 {
		errs = append(errs, errors.New("SMS_DLR_TIMEOUT_MINUTES must be positive"))
	}
	if c.Gateway.ThroughputPerSec <= 0 {
		errs = append(errs, errors.New("SMS_THROUGHPUT_PER_SECOND must be positive"))
	}
	switch c.Gateway.RateLimitBackend {
	case "redis", "local":
	default:
		errs = append(errs, fmt.Errorf("SMS_RATE_LIMIT_BACKEND must be redis or local, got %q", c.Gateway.RateLimitBackend))
	}
	if c.Retry.Max < 0 {
		errs = append(errs, errors.New("SMS_RETRY_MAX must not be negative"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	if c.Worker.Lease <= c.Worker.TaskTimeout {
		errs = append(errs, fmt.Errorf("WORKER_LEASE (%s) must exceed WORKER_TASK_TIMEOUT (%s)", c.Worker.Lease, c.Worker.TaskTimeout))
	}

	return errors.Join(errs...)
}

// DLRTimeout is the receipt timeout as a duration.
func (c *Config) DLRTimeout() time.Duration {
	return time.Duration(c.Gateway.DLRTimeoutMinutes) * time.Minute
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.API.Host, c.API.Port)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
