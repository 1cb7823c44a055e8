// cmd/aquamind/main.go
package main

import (
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smith3v/aquamind/pkg/alerts"
	"github.com/smith3v/aquamind/pkg/config"
	"github.com/smith3v/aquamind/pkg/db"
	"github.com/smith3v/aquamind/pkg/gateway"
	"github.com/smith3v/aquamind/pkg/logger"
	"github.com/smith3v/aquamind/pkg/quotes"
	"github.com/smith3v/aquamind/pkg/reminders"
	"github.com/smith3v/aquamind/pkg/store"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "aquamind",
	Short:         "SMS water intake reminders",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configFile); err != nil {
			return err
		}
		if err := logger.Configure(logger.Options{
			Level: config.AppConfig.Logging.Level,
			File:  config.AppConfig.Logging.File,
		}); err != nil {
			logger.Error("failed to configure logger", "error", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.json", "config file (JSON or YAML)")
	rootCmd.AddCommand(runCmd, registerCmd, resetCmd, summaryCmd, teamCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app holds the collaborators every subcommand builds from AppConfig.
type app struct {
	registry *store.Registry
	gateway  *gateway.Client
	engine   *reminders.Engine
	close    func()
}

func newApp() (*app, error) {
	cfg := config.AppConfig

	backend, err := openBackend(cfg.Store)
	if err != nil {
		return nil, err
	}
	locker, closeLocker := newLocker(cfg.Redis)

	registry := store.NewRegistry(backend, locker)
	gw := newGatewayClient()
	engine := reminders.NewEngine(registry, gw, newQuoteProvider(cfg.Quotes), engineOptions(cfg),
		reminders.WithAlerts(newNotifier(cfg.Telegram)),
	)
	return &app{registry: registry, gateway: gw, engine: engine, close: closeLocker}, nil
}

func openBackend(cfg config.StoreConfig) (store.Backend, error) {
	if cfg.Driver == "json" {
		logger.Info("using json user store", "path", cfg.Path)
		return store.NewFileStore(cfg.Path), nil
	}
	if err := db.InitDB(cfg); err != nil {
		logger.Error("failed to initialize database", "error", err)
		return nil, err
	}
	return store.NewDBStore(db.DB), nil
}

func newLocker(cfg config.RedisConfig) (store.Locker, func()) {
	if cfg.Addr == "" {
		return &store.LocalLocker{}, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	locker := store.NewRedisLocker(client, cfg.LockKey, time.Duration(cfg.LockTTLSeconds)*time.Second)
	locker.OnLost(func(err error) {
		logger.Warn("store lock expired while held", "key", cfg.LockKey, "error", err)
	})
	logger.Info("using redis store lock", "addr", cfg.Addr, "key", cfg.LockKey)
	return locker, func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}
}

func newQuoteProvider(cfg config.QuotesConfig) quotes.Provider {
	if cfg.APIKey == "" {
		logger.Info("no quotes api key configured, using fallback quote")
		return quotes.NewStatic(quotes.Fallback)
	}
	return quotes.NewClient(cfg.BaseURL, cfg.APIKey,
		quotes.WithCategories(cfg.Categories...),
		quotes.WithMaxAttempts(cfg.MaxAttempts),
		quotes.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
	)
}

func newNotifier(cfg config.TelegramConfig) alerts.Notifier {
	if cfg.Token == "" {
		return alerts.Nop{}
	}
	n, err := alerts.NewTelegram(cfg.Token, cfg.AlertChatID)
	if err != nil {
		logger.Error("telegram alerts disabled", "error", err)
		return alerts.Nop{}
	}
	return n
}

func engineOptions(cfg config.Config) reminders.Options {
	// Validate already rejected malformed clock values.
	summaryHour, summaryMinute, _ := config.ParseClock(cfg.DailySummaryTime)
	resetHour, resetMinute, _ := config.ParseClock(cfg.CycleResetTime)
	return reminders.Options{
		NotificationLimit:    cfg.NotificationLimit,
		NotificationInterval: cfg.NotificationInterval(),
		SummaryHour:          summaryHour,
		SummaryMinute:        summaryMinute,
		ResetHour:            resetHour,
		ResetMinute:          resetMinute,
		ResetIntakeOnCycle:   cfg.ResetIntake(),
		ReplyTimeout:         cfg.ReplyTimeout(),
		QuoteMaxLength:       cfg.Quotes.MaxLength,
	}
}
