package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the file and the environment are merged in.
const (
	DefaultDBPath        = "./uptime.db"
	DefaultRetentionDays = 30
	DefaultInterval      = 60 * time.Second
	DefaultTimeout       = 10 * time.Second
	DefaultConcurrency   = 10
	DefaultSMTPTimeout   = 30 * time.Second
	DefaultRedisKey      = "uptimealert:outbox"
)

// Sender kinds accepted by alerts.sender.
const (
	SenderLog   = "log"
	SenderSMTP  = "smtp"
	SenderSlack = "slack"
	SenderRedis = "redis"
	SenderMulti = "multi"
)

type Config struct {
	DB     DBConfig     `yaml:"db"`
	Check  CheckConfig  `yaml:"check"`
	Alerts AlertsConfig `yaml:"alerts"`
	SMTP   SMTPConfig   `yaml:"smtp"`
	Slack  SlackConfig  `yaml:"slack"`
	Redis  RedisConfig  `yaml:"redis"`
	API    APIConfig    `yaml:"api"`
	Log    LogConfig    `yaml:"log"`
}

type DBConfig struct {
	// Driver is one of: sqlite | postgres | memory.
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	DSN           string `yaml:"dsn,omitempty"`
	RetentionDays int    `yaml:"retention_days"`
}

type CheckConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

type AlertsConfig struct {
	// RateLimitSeconds of 0 disables rate limiting.
	RateLimitSeconds int `yaml:"rate_limit_seconds"`
	// Sender is one of: log | smtp | slack | redis | multi.
	Sender string `yaml:"sender"`
	// Senders lists the fan-out targets when Sender is multi.
	Senders []string `yaml:"senders,omitempty"`
}

// RateLimit is RateLimitSeconds as a duration.
func (a AlertsConfig) RateLimit() time.Duration {
	return time.Duration(a.RateLimitSeconds) * time.Second
}

type SMTPConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	From     string `yaml:"from"`
	// Timeout bounds one delivery, dial to QUIT.
	Timeout time.Duration `yaml:"timeout"`
}

type SlackConfig struct {
	Webhook string `yaml:"webhook,omitempty"`
}

type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
	Key string `yaml:"key"`
}

type APIConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	PublicKeys     []string `yaml:"public_keys,omitempty"`
	AdminKeys      []string `yaml:"admin_keys,omitempty"`
	PublicRPM      int      `yaml:"public_rpm"`
	PublicBurst    int      `yaml:"public_burst"`
	AdminRPM       int      `yaml:"admin_rpm"`
	AdminBurst     int      `yaml:"admin_burst"`
}

type LogConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// Default returns a Config that runs out of the box: sqlite next to the
// binary, log-only alerts, API on localhost.
func Default() *Config {
	return &Config{
		DB: DBConfig{
			Driver:        "sqlite",
			Path:          DefaultDBPath,
			RetentionDays: DefaultRetentionDays,
		},
		Check: CheckConfig{
			Interval:    DefaultInterval,
			Timeout:     DefaultTimeout,
			Concurrency: DefaultConcurrency,
		},
		Alerts: AlertsConfig{Sender: SenderLog},
		SMTP:   SMTPConfig{Port: 587, Timeout: DefaultSMTPTimeout},
		Redis:  RedisConfig{Key: DefaultRedisKey},
		API: APIConfig{
			Addr:        "127.0.0.1:8080",
			PublicRPM:   60,
			PublicBurst: 10,
			AdminRPM:    30,
			AdminBurst:  5,
		},
		Log: LogConfig{Dir: "logs", Level: "info"},
	}
}

// Example is the config written by `init`.
func Example() *Config {
	cfg := Default()
	cfg.Alerts.RateLimitSeconds = 3600
	cfg.SMTP = SMTPConfig{
		Server:  "smtp.example.org",
		Port:    587,
		From:    "uptime@example.org",
		Timeout: DefaultSMTPTimeout,
	}
	return cfg
}

// WriteExample writes Example() to path, refusing to clobber an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	data, err := yaml.Marshal(Example())
	if err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: mkdir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadDotEnv loads .env files into the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load layers defaults, the YAML file at path (skipped when path is empty
// or missing) and the environment, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read file: %w", err)
		default:
			var file Config
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("config: parse yaml: %w", err)
			}
			if err := mergo.Merge(cfg, file, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("config: merge file: %w", err)
			}
		}
	}

	env, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(cfg, env, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("config: merge env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns only the settings present in the environment; every
// other field is left zero so it can be merged over a base config.
func FromEnv() (Config, error) {
	var (
		c    Config
		errs error
	)
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	millis := func(key string, dst *time.Duration) {
		var ms int
		num(key, &ms)
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = splitCSV(v)
		}
	}

	str("DB_DRIVER", &c.DB.Driver)
	str("DB_PATH", &c.DB.Path)
	str("DATABASE_URL", &c.DB.DSN)
	num("RETENTION_DAYS", &c.DB.RetentionDays)

	millis("CHECK_INTERVAL_MS", &c.Check.Interval)
	millis("HTTP_TIMEOUT_MS", &c.Check.Timeout)
	num("MAX_CONCURRENT_CHECKS", &c.Check.Concurrency)

	num("ALERT_RATE_LIMIT_SECONDS", &c.Alerts.RateLimitSeconds)
	str("ALERT_SENDER", &c.Alerts.Sender)
	list("ALERT_SENDERS", &c.Alerts.Senders)

	str("SMTP_SERVER", &c.SMTP.Server)
	num("SMTP_PORT", &c.SMTP.Port)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_FROM", &c.SMTP.From)
	millis("SMTP_TIMEOUT_MS", &c.SMTP.Timeout)

	str("SLACK_WEBHOOK_URL", &c.Slack.Webhook)
	str("REDIS_URL", &c.Redis.URL)
	str("REDIS_KEY", &c.Redis.Key)

	str("API_ADDR", &c.API.Addr)
	list("ALLOWED_ORIGINS", &c.API.AllowedOrigins)
	list("PUBLIC_API_KEYS", &c.API.PublicKeys)
	list("ADMIN_API_KEYS", &c.API.AdminKeys)
	num("PUBLIC_RPM", &c.API.PublicRPM)
	num("PUBLIC_BURST", &c.API.PublicBurst)
	num("ADMIN_RPM", &c.API.AdminRPM)
	num("ADMIN_BURST", &c.API.AdminBurst)

	str("LOG_DIR", &c.Log.Dir)
	str("LOG_LEVEL", &c.Log.Level)

	return c, errs
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			add("db.path is required for sqlite")
		}
	case "postgres":
		if c.DB.DSN == "" {
			add("db.dsn is required for postgres")
		}
	case "memory":
	default:
		add("db.driver: unknown driver %q", c.DB.Driver)
	}
	if c.DB.RetentionDays <= 0 {
		add("db.retention_days must be positive")
	}
	if c.Check.Interval <= 0 {
		add("check.interval must be positive")
	}
	if c.Check.Timeout <= 0 {
		add("check.timeout must be positive")
	}
	if c.Check.Concurrency < 1 {
		add("check.concurrency must be at least 1")
	}
	if c.SMTP.Timeout < 0 {
		add("smtp.timeout must not be negative")
	}
	if c.Alerts.RateLimitSeconds < 0 {
		add("alerts.rate_limit_seconds must not be negative")
	}

	senders := []string{c.Alerts.Sender}
	if c.Alerts.Sender == SenderMulti {
		senders = c.Alerts.Senders
		if len(senders) == 0 {
			add("alerts.senders is required for multi")
		}
	}
	for _, s := range senders {
		switch s {
		case SenderLog:
		case SenderSMTP:
			if c.SMTP.Server == "" || c.SMTP.From == "" {
				add("smtp.server and smtp.from are required for the smtp sender")
			}
		case SenderSlack:
			if c.Slack.Webhook == "" {
				add("slack.webhook is required for the slack sender")
			}
		case SenderRedis:
			if c.Redis.URL == "" {
				add("redis.url is required for the redis sender")
			}
		default:
			add("alerts.sender: unknown sender %q", s)
		}
	}
	return errs
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
