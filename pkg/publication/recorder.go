// Package publication keeps the audit trail of designs pushed to external
// repositories.
package publication

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

// Store is the persistence the recorder needs.
type Store interface {
	CreatePublication(ctx context.Context, p *models.Publication) error
	ListPublications(ctx context.Context, designID designid.ID, offset, limit int) ([]models.Publication, error)
}

// Recorder appends and lists publication records.
type Recorder struct {
	store  Store
	logger hclog.Logger
}

// NewRecorder returns a Recorder over store.
func NewRecorder(store Store, logger hclog.Logger) *Recorder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Recorder{
		store:  store,
		logger: logger.Named("publication"),
	}
}

// Record appends an audit record for a publish that already succeeded.
// A failure to record is logged and otherwise ignored; the returned record
// is nil in that case.
func (r *Recorder) Record(ctx context.Context, designID designid.ID, user string, target *Target) *models.Publication {
	format := target.Format
	if format == "" {
		format = "json"
	}
	p := &models.Publication{
		DesignID:      designID,
		CreatedBy:     user,
		Type:          target.Type,
		Format:        format,
		CommitMessage: target.CommitMessage,
		Target:        target.Metadata(),
	}
	if err := r.store.CreatePublication(ctx, p); err != nil {
		r.logger.Error("error recording publication",
			"design_id", designID,
			"user", user,
			"type", target.Type,
			"url", target.URL,
			"error", err,
		)
		return nil
	}

	r.logger.Info("recorded publication",
		"design_id", designID,
		"publication_id", p.ID,
		"type", p.Type,
		"user", user,
	)
	return p
}

// List returns records start (inclusive) through end (exclusive), newest
// first.
func (r *Recorder) List(ctx context.Context, designID designid.ID, start, end int) ([]models.Publication, error) {
	if start < 0 || end < start {
		return nil, apierrors.E("ListPublications", apierrors.ErrInvalidInput, "invalid range", nil)
	}
	return r.store.ListPublications(ctx, designID, start, end-start)
}
