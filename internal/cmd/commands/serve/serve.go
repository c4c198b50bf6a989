package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	apiv2 "github.com/lordrhodos/apicurio-studio/internal/api/v2"
	"github.com/lordrhodos/apicurio-studio/internal/cmd/base"
	"github.com/lordrhodos/apicurio-studio/internal/config"
	"github.com/lordrhodos/apicurio-studio/internal/migrate"
	"github.com/lordrhodos/apicurio-studio/internal/server"
	"github.com/lordrhodos/apicurio-studio/pkg/connector"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/local"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/rawurl"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/s3"
	"github.com/lordrhodos/apicurio-studio/pkg/designs"
	"github.com/lordrhodos/apicurio-studio/pkg/events"
	"github.com/lordrhodos/apicurio-studio/pkg/session"
	"github.com/lordrhodos/apicurio-studio/pkg/storage"
)

type Command struct {
	*base.Command

	flagConfig  string
	flagMigrate bool
}

func (c *Command) Synopsis() string {
	return "Run the designhub server"
}

func (c *Command) Help() string {
	return `Usage: designhub serve [options]

  Run the designhub API server. When events are enabled in the config the
  outbox relay runs in the same process.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to the designhub config file. Settings may also come from\nDESIGNHUB_* environment variables.",
	)
	f.BoolVar(
		&c.flagMigrate, "migrate", true,
		"Apply pending schema migrations before serving.",
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

	db, err := c.ConnectDB(cfg)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	sqlDB, err := db.DB()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error getting database handle: %v", err))
		return 1
	}
	defer sqlDB.Close()

	if c.flagMigrate {
		if err := migrate.RunMigrations(sqlDB, cfg.Database.Driver); err != nil {
			c.UI.Error(fmt.Sprintf("error running migrations: %v", err))
			return 1
		}
	}

	connectors, err := newConnectors(cfg, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing connectors: %v", err))
		return 1
	}

	sessions, err := session.NewCoordinator([]byte(cfg.Session.SigningKey), c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing sessions: %v", err))
		return 1
	}

	svc, err := designs.New(designs.Config{
		Store:      storage.New(db, c.Log),
		Sessions:   sessions,
		Connectors: connectors,
		Logger:     c.Log,
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing design service: %v", err))
		return 1
	}

	hub := session.NewHub(c.Log)
	srv := server.Server{
		Config:  cfg,
		DB:      db,
		Designs: svc,
		Hub:     hub,
		Logger:  c.Log,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Events.Enabled {
		r, err := events.New(events.Config{
			DB:           db,
			Brokers:      cfg.Events.Brokers,
			Topic:        cfg.Events.Topic,
			PollInterval: cfg.Events.PollInterval(),
			BatchSize:    cfg.Events.BatchSize,
			Logger:       c.Log,
		})
		if err != nil {
			c.UI.Error(fmt.Sprintf("error initializing events relay: %v", err))
			return 1
		}
		go func() {
			if err := r.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.Log.Error("events relay stopped", "error", err)
			}
		}()
		defer r.Stop()
	}

	httpSrv := newHTTPServer(cfg.Server.Addr, srv)

	errCh := make(chan error, 1)
	go func() {
		c.Log.Info("listening", "addr", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			c.UI.Error(fmt.Sprintf("error starting listener: %v", err))
			return 1
		}
	case <-ctx.Done():
		c.Log.Info("shutting down server")
		shutdownCtx, done := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
		defer done()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			c.UI.Error(fmt.Sprintf("error shutting down server: %v", err))
			return 1
		}
	}
	return 0
}

// newHTTPServer serves the API for srv. Shutdown does not track hijacked
// connections, so editing sockets are closed through the hub.
func newHTTPServer(addr string, srv server.Server) *http.Server {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           apiv2.Routes(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpSrv.RegisterOnShutdown(func() { srv.Hub.Close() })
	return httpSrv
}

// newConnectors registers the configured external repositories. The raw URL
// connector is always available for imports.
func newConnectors(cfg *config.Config, log hclog.Logger) (*connector.Factory, error) {
	f := connector.NewFactory(rawurl.New(cfg.Connectors.URL, log))

	if cfg.Connectors.S3 != nil {
		conn, err := s3.New(cfg.Connectors.S3, log)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		f.Register(conn)
	}
	if cfg.Connectors.Local != nil {
		conn, err := local.New(cfg.Connectors.Local, log)
		if err != nil {
			return nil, fmt.Errorf("local: %w", err)
		}
		f.Register(conn)
	}
	return f, nil
}
