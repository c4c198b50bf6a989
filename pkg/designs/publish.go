package designs

import (
	"context"
	"errors"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/auth"
	"github.com/lordrhodos/apicurio-studio/pkg/collab"
	"github.com/lordrhodos/apicurio-studio/pkg/connector"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/format"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
	"github.com/lordrhodos/apicurio-studio/pkg/publication"
)

// PublishDesign pushes the current content of a design to an external
// repository and records the publication. The returned record is nil when
// the push succeeded but recording it failed.
func (s *Service) PublishDesign(ctx context.Context, caller auth.Identity, id designid.ID, rawTarget map[string]interface{}) (*models.Publication, error) {
	const op = "PublishDesign"

	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapWrite); err != nil {
		return nil, err
	}

	target, err := publication.DecodeTarget(rawTarget)
	if err != nil {
		return nil, apierrors.E(op, apierrors.ErrInvalidInput, err.Error(), nil)
	}
	f, err := format.Parse(target.Format)
	if err != nil {
		return nil, apierrors.E(op, apierrors.ErrInvalidInput, err.Error(), nil)
	}
	conn, err := s.connectors.ForType(target.Type)
	if err != nil {
		return nil, apierrors.E(op, apierrors.ErrInvalidInput, err.Error(), nil)
	}

	doc, version, err := s.materialize(ctx, op, id)
	if err != nil {
		return nil, err
	}
	content, err := format.Convert(doc, f)
	if err != nil {
		return nil, apierrors.E(op, apierrors.ErrCommandApplication, "error converting content", err)
	}

	previous, err := conn.GetResourceContent(ctx, target.URL)
	switch {
	case err == nil:
		err = conn.UpdateResourceContent(ctx, target.URL, target.CommitMessage, previous, content)
	case errors.Is(err, connector.ErrResourceNotFound):
		err = conn.CreateResourceContent(ctx, target.URL, target.CommitMessage, content)
	}
	if err != nil {
		s.logger.Error("error publishing design",
			"design_id", id,
			"type", target.Type,
			"url", target.URL,
			"error", err,
		)
		return nil, connectorError(op, err)
	}

	s.logger.Info("published design",
		"design_id", id,
		"version", version,
		"type", target.Type,
		"url", target.URL,
		"format", f,
		"user", caller.Login,
	)

	target.Format = string(f)
	return s.recorder.Record(ctx, id, caller.Login, target), nil
}
