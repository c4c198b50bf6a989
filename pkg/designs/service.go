// Package designs is the entry point for every design operation. It gates
// each call through the collaboration registry and composes the content
// store, replay engine, session coordinator and publication recorder.
package designs

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/auth"
	"github.com/lordrhodos/apicurio-studio/pkg/collab"
	"github.com/lordrhodos/apicurio-studio/pkg/connector"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
	"github.com/lordrhodos/apicurio-studio/pkg/publication"
	"github.com/lordrhodos/apicurio-studio/pkg/replay"
	"github.com/lordrhodos/apicurio-studio/pkg/session"
	"github.com/lordrhodos/apicurio-studio/pkg/storage"
)

// Default page bounds for activity and publication listings.
const (
	DefaultPageStart = 0
	DefaultPageEnd   = 20
)

// Service implements the design operations.
type Service struct {
	store      *storage.Store
	registry   *collab.Registry
	sessions   *session.Coordinator
	recorder   *publication.Recorder
	connectors *connector.Factory
	logger     hclog.Logger
}

// Config holds the dependencies of a Service.
type Config struct {
	Store      *storage.Store
	Sessions   *session.Coordinator
	Connectors *connector.Factory
	Logger     hclog.Logger
}

// New returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session coordinator is required")
	}
	if cfg.Connectors == nil {
		cfg.Connectors = connector.NewFactory()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Service{
		store:      cfg.Store,
		registry:   collab.NewRegistry(cfg.Store, cfg.Logger),
		sessions:   cfg.Sessions,
		recorder:   publication.NewRecorder(cfg.Store, cfg.Logger),
		connectors: cfg.Connectors,
		logger:     cfg.Logger.Named("designs"),
	}, nil
}

// Registry returns the collaboration registry the service authorizes with.
func (s *Service) Registry() *collab.Registry { return s.registry }

// Sessions returns the session coordinator.
func (s *Service) Sessions() *session.Coordinator { return s.sessions }

// materialize replays the latest content of a design. The caller must have
// authorized the read.
func (s *Service) materialize(ctx context.Context, op string, id designid.ID) (string, int64, error) {
	c, err := s.store.GetLatestSnapshot(ctx, id)
	if err != nil {
		return "", 0, err
	}

	cmds := make([]replay.Command, len(c.Commands))
	for i, cmd := range c.Commands {
		cmds[i] = replay.Command{Version: cmd.Version, Payload: cmd.Payload}
	}

	doc, err := replay.Materialize(c.Document, c.BaseVersion, cmds)
	if err != nil {
		s.logger.Error("error materializing design content",
			"op", op,
			"design_id", id,
			"base_version", c.BaseVersion,
			"version", c.Version,
			"error", err,
		)
		return "", 0, err
	}
	return doc, c.Version, nil
}

// ListContributors returns the distinct authors of a design's commands.
func (s *Service) ListContributors(ctx context.Context, caller auth.Identity, id designid.ID) ([]models.Contributor, error) {
	const op = "ListContributors"
	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapRead); err != nil {
		return nil, err
	}
	return s.store.ListContributors(ctx, id)
}

// ListActivity returns command log entries start (inclusive) through end
// (exclusive), newest first. Nil bounds default to 0 and 20.
func (s *Service) ListActivity(ctx context.Context, caller auth.Identity, id designid.ID, start, end *int) ([]models.DesignCommand, error) {
	const op = "ListActivity"
	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapWrite); err != nil {
		return nil, err
	}
	from, to, err := pageBounds(op, start, end)
	if err != nil {
		return nil, err
	}
	return s.store.ListCommands(ctx, id, from, to-from)
}

// ListPublications returns publication records start (inclusive) through
// end (exclusive), newest first. Nil bounds default to 0 and 20.
func (s *Service) ListPublications(ctx context.Context, caller auth.Identity, id designid.ID, start, end *int) ([]models.Publication, error) {
	const op = "ListPublications"
	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapWrite); err != nil {
		return nil, err
	}
	from, to, err := pageBounds(op, start, end)
	if err != nil {
		return nil, err
	}
	return s.recorder.List(ctx, id, from, to)
}

func pageBounds(op string, start, end *int) (int, int, error) {
	from, to := DefaultPageStart, DefaultPageEnd
	if start != nil {
		from = *start
	}
	if end != nil {
		to = *end
	}
	if from < 0 || to < from {
		return 0, 0, apierrors.E(op, apierrors.ErrInvalidInput, "invalid range", nil)
	}
	return from, to, nil
}
