package relay

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lordrhodos/apicurio-studio/internal/cmd/base"
	"github.com/lordrhodos/apicurio-studio/pkg/events"
)

type Command struct {
	*base.Command

	flagConfig      string
	flagOnce        bool
	flagRetryFailed int
}

func (c *Command) Synopsis() string {
	return "Relay design events from the outbox to Kafka"
}

func (c *Command) Help() string {
	return `Usage: designhub relay [options]

  Publish design events recorded in the outbox table to the configured
  Kafka or Redpanda brokers. Published events older than the configured
  retention are removed on every run.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("relay", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to the designhub config file.",
	)
	f.BoolVar(
		&c.flagOnce, "once", false,
		"Publish a single batch, print outbox stats and exit.",
	)
	f.IntVar(
		&c.flagRetryFailed, "retry-failed", 0,
		"Requeue up to this many failed events before starting.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.Bootstrap(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error parsing config: %v", err))
		return 1
	}
	if len(cfg.Events.Brokers) == 0 {
		c.UI.Error("events brokers must be configured")
		return 1
	}
	db, err := c.ConnectDB(cfg)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	r, err := events.New(events.Config{
		DB:           db,
		Brokers:      cfg.Events.Brokers,
		Topic:        cfg.Events.Topic,
		PollInterval: cfg.Events.PollInterval(),
		BatchSize:    cfg.Events.BatchSize,
		Logger:       c.Log,
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating relay: %v", err))
		return 1
	}

	if c.flagRetryFailed > 0 {
		n, err := r.RetryFailed(c.flagRetryFailed)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error requeuing failed events: %v", err))
			return 1
		}
		c.UI.Info(fmt.Sprintf("requeued %d failed events", n))
	}

	if removed, err := r.CleanupOldEntries(cfg.Events.Retention()); err != nil {
		c.Log.Warn("error removing published events", "error", err)
	} else if removed > 0 {
		c.Log.Info("removed published events", "count", removed)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if c.flagOnce {
		defer r.Stop()
		n, err := r.ProcessBatch(ctx)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error publishing events: %v", err))
			return 1
		}
		stats, err := r.GetStats()
		if err != nil {
			c.UI.Error(fmt.Sprintf("error reading outbox stats: %v", err))
			return 1
		}
		c.UI.Output(fmt.Sprintf("published %d events (pending=%d published=%d failed=%d)",
			n, stats.Pending, stats.Published, stats.Failed))
		return 0
	}

	err = r.Start(ctx)
	r.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		c.UI.Error(fmt.Sprintf("relay stopped: %v", err))
		return 1
	}
	return 0
}
