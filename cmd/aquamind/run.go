package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/smith3v/aquamind/pkg/config"
	"github.com/smith3v/aquamind/pkg/db"
	"github.com/smith3v/aquamind/pkg/httpapi"
	"github.com/smith3v/aquamind/pkg/inbox"
	"github.com/smith3v/aquamind/pkg/logger"
	"github.com/smith3v/aquamind/pkg/reminders"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reminder scheduler, inbox poller and optional HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx)
	},
}

func run(ctx context.Context) error {
	cfg := config.AppConfig
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	log := logger.With("run_id", uuid.NewString())
	log.Info("starting aquamind",
		"team", cfg.TeamName,
		"store", cfg.Store.Driver,
		"notification_limit", cfg.NotificationLimit,
	)

	scheduler := reminders.NewScheduler()
	if err := a.engine.Schedule(ctx, scheduler, time.Now()); err != nil {
		log.Error("failed to schedule users", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})

	if cfg.TeamName != "" {
		poller := inbox.NewPoller(a.gateway, cfg.TeamName, a.engine,
			inbox.WithOnboarding(inbox.NewOnboarding(a.registry, a.gateway)),
			inbox.WithInterval(cfg.ReplyPollInterval()),
		)
		g.Go(func() error {
			poller.Run(ctx)
			return nil
		})
	} else {
		log.Warn("team_name not set, replies are only accepted over HTTP")
	}

	if cfg.HTTP.Addr != "" {
		g.Go(func() error {
			return httpapi.ListenAndServe(ctx, cfg.HTTP.Addr, httpapi.New(a.engine))
		})
	}

	if db.DB != nil {
		g.Go(func() error {
			db.StartReplyLogCleanup(ctx, db.ReplyLogCleanupInterval, db.ReplyLogRetention)
			return nil
		})
	}

	err = g.Wait()
	log.Info("aquamind stopped")
	return err
}
