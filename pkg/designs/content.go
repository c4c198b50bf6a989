package designs

import (
	"context"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/auth"
	"github.com/lordrhodos/apicurio-studio/pkg/collab"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/format"
	"github.com/lordrhodos/apicurio-studio/pkg/replay"
)

// EditingHandshake is returned when a client opens a design for editing.
type EditingHandshake struct {
	SessionID      string `json:"sessionId"`
	Token          string `json:"token"`
	ContentVersion int64  `json:"contentVersion"`
	Content        string `json:"content"`
}

// EditDesign opens an editing session on the current content of a design.
func (s *Service) EditDesign(ctx context.Context, caller auth.Identity, id designid.ID) (*EditingHandshake, error) {
	const op = "EditDesign"

	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapWrite); err != nil {
		return nil, err
	}
	doc, version, err := s.materialize(ctx, op, id)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.CreateSession(id, caller.Login, caller.Secret, version)
	if err != nil {
		return nil, apierrors.E(op, apierrors.ErrStorage, "error creating editing session", err)
	}

	return &EditingHandshake{
		SessionID:      sess.ID,
		Token:          sess.Token,
		ContentVersion: version,
		Content:        doc,
	}, nil
}

// GetContent returns the materialized content of a design in f.
func (s *Service) GetContent(ctx context.Context, caller auth.Identity, id designid.ID, f format.Format) (string, error) {
	const op = "GetContent"

	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapRead); err != nil {
		return "", err
	}
	doc, _, err := s.materialize(ctx, op, id)
	if err != nil {
		return "", err
	}
	out, err := format.Convert(doc, f)
	if err != nil {
		return "", apierrors.E(op, apierrors.ErrCommandApplication, "error converting content", err)
	}
	return out, nil
}

// AppendCommand appends payload on top of expectedVersion and returns the
// new content version. The command must apply cleanly to the current
// content, so the stored log never holds a command replay would reject.
func (s *Service) AppendCommand(ctx context.Context, caller auth.Identity, id designid.ID, expectedVersion int64, payload string) (int64, error) {
	const op = "AppendCommand"

	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapWrite); err != nil {
		return 0, err
	}
	if _, err := replay.Parse(payload); err != nil {
		return 0, &replay.CommandError{Version: expectedVersion + 1, Reason: err.Error()}
	}

	c, err := s.store.GetLatestSnapshot(ctx, id)
	if err != nil {
		return 0, err
	}
	if c.Version != expectedVersion {
		return 0, apierrors.E(op, apierrors.ErrVersionConflict, "stale base version", nil)
	}

	cmds := make([]replay.Command, 0, len(c.Commands)+1)
	for _, cmd := range c.Commands {
		cmds = append(cmds, replay.Command{Version: cmd.Version, Payload: cmd.Payload})
	}
	cmds = append(cmds, replay.Command{Version: expectedVersion + 1, Payload: payload})
	if _, err := replay.Materialize(c.Document, c.BaseVersion, cmds); err != nil {
		return 0, err
	}

	return s.store.AppendCommand(ctx, id, expectedVersion, payload, caller.Login)
}

// Rebase folds the command log into a new base snapshot at the current
// version. Only owners may do this.
func (s *Service) Rebase(ctx context.Context, caller auth.Identity, id designid.ID) (int64, error) {
	const op = "Rebase"

	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapRebase); err != nil {
		return 0, err
	}
	doc, version, err := s.materialize(ctx, op, id)
	if err != nil {
		return 0, err
	}
	if err := s.store.Rebase(ctx, id, version, doc, caller.Login); err != nil {
		return 0, err
	}
	return version, nil
}
