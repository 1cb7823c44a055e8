package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/smith3v/aquamind/pkg/logger"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "AQUAMIND_"

type Config struct {
	TeamName                    string `json:"team_name" yaml:"team_name" env:"TEAM_NAME"`
	NotificationLimit           int    `json:"notification_limit" yaml:"notification_limit" env:"NOTIFICATION_LIMIT"`
	NotificationIntervalMinutes int    `json:"notification_interval_minutes" yaml:"notification_interval_minutes" env:"NOTIFICATION_INTERVAL_MINUTES"`
	DailySummaryTime            string `json:"daily_summary_time" yaml:"daily_summary_time" env:"DAILY_SUMMARY_TIME"`
	CycleResetTime              string `json:"cycle_reset_time" yaml:"cycle_reset_time" env:"CYCLE_RESET_TIME"`
	ResetIntakeOnCycle          *bool  `json:"reset_intake_on_cycle" yaml:"reset_intake_on_cycle" env:"RESET_INTAKE_ON_CYCLE"`
	ReplyTimeoutSeconds         int    `json:"reply_timeout_seconds" yaml:"reply_timeout_seconds" env:"REPLY_TIMEOUT_SECONDS"`
	ReplyPollIntervalSeconds    int    `json:"reply_poll_interval_seconds" yaml:"reply_poll_interval_seconds" env:"REPLY_POLL_INTERVAL_SECONDS"`

	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway" envPrefix:"GATEWAY_"`
	Quotes   QuotesConfig   `json:"quotes" yaml:"quotes" envPrefix:"QUOTES_"`
	Store    StoreConfig    `json:"store" yaml:"store" envPrefix:"STORE_"`
	Redis    RedisConfig    `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram" envPrefix:"TELEGRAM_"`
	HTTP     HTTPConfig     `json:"http" yaml:"http" envPrefix:"HTTP_"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging" envPrefix:"LOG_"`
}

type GatewayConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Sender         string `json:"sender" yaml:"sender" env:"SENDER"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
}

type QuotesConfig struct {
	BaseURL        string   `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	APIKey         string   `json:"api_key" yaml:"api_key" env:"API_KEY"`
	Categories     []string `json:"categories" yaml:"categories" env:"CATEGORIES" envSeparator:","`
	MaxAttempts    int      `json:"max_attempts" yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	MaxLength      int      `json:"max_length" yaml:"max_length" env:"MAX_LENGTH"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
}

// StoreConfig selects the user store backend: "json", "sqlite" or "postgres".
type StoreConfig struct {
	Driver   string         `json:"driver" yaml:"driver" env:"DRIVER"`
	Path     string         `json:"path" yaml:"path" env:"PATH"`
	Database DatabaseConfig `json:"database" yaml:"database" envPrefix:"DB_"`
}

type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host" env:"HOST"`
	User     string `json:"user" yaml:"user" env:"USER"`
	Password string `json:"password" yaml:"password" env:"PASSWORD"`
	DBName   string `json:"dbname" yaml:"dbname" env:"NAME"`
	Port     int    `json:"port" yaml:"port" env:"PORT"`
	SSLMode  string `json:"sslmode" yaml:"sslmode" env:"SSLMODE"`
}

// RedisConfig enables the shared store lock when Addr is set.
type RedisConfig struct {
	Addr           string `json:"addr" yaml:"addr" env:"ADDR"`
	Password       string `json:"password" yaml:"password" env:"PASSWORD"`
	DB             int    `json:"db" yaml:"db" env:"DB"`
	LockKey        string `json:"lock_key" yaml:"lock_key" env:"LOCK_KEY"`
	LockTTLSeconds int    `json:"lock_ttl_seconds" yaml:"lock_ttl_seconds" env:"LOCK_TTL_SECONDS"`
}

// TelegramConfig configures operator alerts. Alerts are off without a token.
type TelegramConfig struct {
	Token       string `json:"token" yaml:"token" env:"TOKEN"`
	AlertChatID int64  `json:"alert_chat_id" yaml:"alert_chat_id" env:"ALERT_CHAT_ID"`
}

type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`
}

type LoggingConfig struct {
	Level     string `json:"level" yaml:"level" env:"LEVEL"`
	File      string `json:"file" yaml:"file" env:"FILE"`
	GormLevel string `json:"gorm_level" yaml:"gorm_level" env:"GORM_LEVEL"`
}

var AppConfig Config

// LoadConfig decodes filename (JSON, or YAML by extension) into AppConfig,
// then applies .env and AQUAMIND_* environment overrides and defaults.
func LoadConfig(filename string) error {
	cfg, err := Load(filename)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

func Load(filename string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(filename) != "" {
		if err := decodeFile(filename, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("failed to load .env file", "error", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		logger.Error("failed to parse environment overrides", "error", err)
		return Config{}, err
	}
	// The quote API key has historically been provided as a bare API_KEY.
	if cfg.Quotes.APIKey == "" {
		cfg.Quotes.APIKey = os.Getenv("API_KEY")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(filename string, cfg *Config) error {
	file, err := os.Open(filename)
	if err != nil {
		logger.Error("failed to open config file", "error", err)
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			logger.Error("failed to decode config file", "error", err)
			return err
		}
	default:
		decoder := json.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			logger.Error("failed to decode config file", "error", err)
			return err
		}
	}
	return nil
}

func (c *Config) ApplyDefaults() {
	if c.NotificationLimit == 0 {
		c.NotificationLimit = 3
	}
	if c.NotificationIntervalMinutes == 0 {
		c.NotificationIntervalMinutes = 1
	}
	if c.DailySummaryTime == "" {
		c.DailySummaryTime = "20:00"
	}
	if c.CycleResetTime == "" {
		c.CycleResetTime = "00:00"
	}
	if c.ResetIntakeOnCycle == nil {
		reset := true
		c.ResetIntakeOnCycle = &reset
	}
	if c.ReplyTimeoutSeconds == 0 {
		c.ReplyTimeoutSeconds = 120
	}
	if c.ReplyPollIntervalSeconds == 0 {
		c.ReplyPollIntervalSeconds = 10
	}
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = "http://hackathons.masterschool.com:3030"
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 10
	}
	if c.Quotes.BaseURL == "" {
		c.Quotes.BaseURL = "https://api.api-ninjas.com"
	}
	if len(c.Quotes.Categories) == 0 {
		c.Quotes.Categories = []string{"inspirational", "life", "success", "health", "fitness", "happiness"}
	}
	if c.Quotes.MaxAttempts == 0 {
		c.Quotes.MaxAttempts = 10
	}
	if c.Quotes.MaxLength == 0 {
		c.Quotes.MaxLength = 100
	}
	if c.Quotes.TimeoutSeconds == 0 {
		c.Quotes.TimeoutSeconds = 5
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "json"
	}
	if c.Store.Path == "" {
		switch c.Store.Driver {
		case "sqlite":
			c.Store.Path = "aquamind.db"
		default:
			c.Store.Path = "user_data.json"
		}
	}
	if c.Redis.LockKey == "" {
		c.Redis.LockKey = "aquamind:store:lock"
	}
	if c.Redis.LockTTLSeconds == 0 {
		c.Redis.LockTTLSeconds = 30
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.NotificationLimit <= 0 {
		errs = append(errs, fmt.Errorf("notification_limit must be positive, got %d", c.NotificationLimit))
	}
	if c.NotificationIntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("notification_interval_minutes must be positive, got %d", c.NotificationIntervalMinutes))
	}
	if _, _, err := ParseClock(c.DailySummaryTime); err != nil {
		errs = append(errs, fmt.Errorf("daily_summary_time: %w", err))
	}
	if _, _, err := ParseClock(c.CycleResetTime); err != nil {
		errs = append(errs, fmt.Errorf("cycle_reset_time: %w", err))
	}
	if c.ReplyTimeoutSeconds < 0 || c.ReplyPollIntervalSeconds <= 0 {
		errs = append(errs, errors.New("reply timeout and poll interval must be positive"))
	}
	switch c.Store.Driver {
	case "json", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

// ParseClock parses an "HH:MM" wall-clock value.
func ParseClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock value %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}

func (c Config) NotificationInterval() time.Duration {
	return time.Duration(c.NotificationIntervalMinutes) * time.Minute
}

func (c Config) ReplyTimeout() time.Duration {
	return time.Duration(c.ReplyTimeoutSeconds) * time.Second
}

func (c Config) ReplyPollInterval() time.Duration {
	return time.Duration(c.ReplyPollIntervalSeconds) * time.Second
}

func (c Config) ResetIntake() bool {
	return c.ResetIntakeOnCycle == nil || *c.ResetIntakeOnCycle
}
