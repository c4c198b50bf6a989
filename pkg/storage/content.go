package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

// Content is a design's latest base snapshot plus every command appended
// after it.
type Content struct {
	DesignID designid.ID

	// Document and BaseVersion come from the latest snapshot.
	Document    string
	BaseVersion int64

	// Version is the head of the command log.
	Version int64

	// Commands are ordered by ascending version starting at BaseVersion+1.
	Commands []models.DesignCommand
}

// GetLatestSnapshot returns the latest snapshot and the commands after it,
// read in a single transaction.
func (s *Store) GetLatestSnapshot(ctx context.Context, id designid.ID) (*Content, error) {
	const op = "GetLatestSnapshot"

	var c *Content
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&models.Design{ID: id}).Get(tx); err != nil {
			return err
		}

		snap, err := models.GetLatestDesignSnapshot(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierrors.E(op, apierrors.ErrStorage, "design has no base snapshot", nil)
			}
			return err
		}

		cmds, err := models.GetDesignCommandsAfter(tx, id, snap.Version)
		if err != nil {
			return err
		}

		c = &Content{
			DesignID:    id,
			Document:    snap.Document,
			BaseVersion: snap.Version,
			Version:     snap.Version,
			Commands:    cmds,
		}
		if n := len(cmds); n > 0 {
			c.Version = cmds[n-1].Version
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return c, nil
}

// HeadVersion returns the current content version of a design.
func (s *Store) HeadVersion(ctx context.Context, id designid.ID) (int64, error) {
	const op = "HeadVersion"

	var head int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&models.Design{ID: id}).Get(tx); err != nil {
			return err
		}
		v, err := models.GetDesignHeadVersion(tx, id)
		head = v
		return err
	})
	if err != nil {
		return 0, wrap(op, err)
	}
	return head, nil
}

// AppendCommand appends payload at expectedBaseVersion+1 and returns the new
// version. It fails with ErrVersionConflict when expectedBaseVersion is not
// the current head, including when a concurrent append wins the race for
// the same version.
func (s *Store) AppendCommand(ctx context.Context, id designid.ID, expectedBaseVersion int64, payload, author string) (int64, error) {
	const op = "AppendCommand"

	var version int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&models.Design{ID: id}).Get(tx); err != nil {
			return err
		}

		head, err := models.GetDesignHeadVersion(tx, id)
		if err != nil {
			return err
		}
		if head != expectedBaseVersion {
			return apierrors.E(op, apierrors.ErrVersionConflict,
				fmt.Sprintf("expected base version %d, head is %d", expectedBaseVersion, head), nil)
		}

		cmd := &models.DesignCommand{
			DesignID: id,
			Version:  head + 1,
			Payload:  payload,
			Author:   author,
		}
		if err := tx.Create(cmd).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apierrors.E(op, apierrors.ErrVersionConflict,
					fmt.Sprintf("version %d was appended concurrently", cmd.Version), nil)
			}
			return err
		}

		version = cmd.Version
		return outbox(tx, id, models.DesignEventCommandAppended, map[string]interface{}{
			"designId": id.String(),
			"version":  cmd.Version,
			"author":   author,
			"command":  payload,
		})
	})
	if err != nil {
		if errors.Is(err, apierrors.ErrVersionConflict) {
			s.logger.Debug("append lost version race",
				"design_id", id,
				"expected_base_version", expectedBaseVersion,
			)
		}
		return 0, wrap(op, err)
	}

	s.logger.Debug("appended command", "design_id", id, "version", version, "author", author)
	return version, nil
}

// Rebase stores document as the new base snapshot at version. Commands up to
// version stay in the log for auditing but are no longer replayed.
func (s *Store) Rebase(ctx context.Context, id designid.ID, version int64, document, by string) error {
	const op = "Rebase"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snap, err := models.GetLatestDesignSnapshot(tx, id)
		if err != nil {
			return err
		}
		if snap.Version >= version {
			return apierrors.E(op, apierrors.ErrConflict,
				fmt.Sprintf("snapshot is already at version %d", snap.Version), nil)
		}

		head, err := models.GetDesignHeadVersion(tx, id)
		if err != nil {
			return err
		}
		if head != version {
			return apierrors.E(op, apierrors.ErrVersionConflict,
				fmt.Sprintf("rebase at %d, head is %d", version, head), nil)
		}

		if err := tx.Create(&models.DesignSnapshot{
			DesignID:  id,
			Version:   version,
			Document:  document,
			CreatedBy: by,
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apierrors.E(op, apierrors.ErrConflict, "concurrent rebase", nil)
			}
			return err
		}
		return outbox(tx, id, models.DesignEventRebased, map[string]interface{}{
			"designId": id.String(),
			"version":  version,
			"by":       by,
		})
	})
	if err != nil {
		return wrap(op, err)
	}

	s.logger.Info("rebased design", "design_id", id, "version", version)
	return nil
}

// ListCommands returns a page of the command log, newest first.
func (s *Store) ListCommands(ctx context.Context, id designid.ID, offset, limit int) ([]models.DesignCommand, error) {
	cmds, err := models.DesignCommandPage(s.db.WithContext(ctx), id, offset, limit)
	if err != nil {
		return nil, wrap("ListCommands", err)
	}
	return cmds, nil
}

// ListContributors aggregates command authors of a design.
func (s *Store) ListContributors(ctx context.Context, id designid.ID) ([]models.Contributor, error) {
	contributors, err := models.GetDesignContributors(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, wrap("ListContributors", err)
	}
	return contributors, nil
}
