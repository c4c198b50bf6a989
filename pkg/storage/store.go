// Package storage persists designs, their command logs and collaboration
// records with gorm. Every multi-row change runs in one transaction and
// writes its design event to the outbox in that same transaction.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

// Store is the gorm backed design store. It is safe for concurrent use;
// ordering between writers is enforced by the database.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// New returns a Store using db. The connection should be opened with
// TranslateError so that unique violations surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		db:     db,
		logger: logger.Named("storage"),
	}
}

// DB exposes the underlying connection for health checks and migrations.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// wrap maps gorm errors to error kinds. Errors that already carry a kind
// pass through unchanged.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case apierrors.KindOf(err) != nil:
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apierrors.NotFound(op, "")
	default:
		return apierrors.Storage(op, err)
	}
}

// outbox records a design event inside tx.
func outbox(tx *gorm.DB, designID designid.ID, eventType string, payload map[string]interface{}) error {
	entry, err := models.NewDesignEvent(designID, eventType, payload)
	if err != nil {
		return err
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}
	return nil
}

// CreateDesign inserts d with its initial snapshot at version 0 and the
// owner permission for d.CreatedBy.
func (s *Store) CreateDesign(ctx context.Context, d *models.Design, document, ownerRole string) error {
	const op = "CreateDesign"

	if err := d.Validate(); err != nil {
		return apierrors.E(op, apierrors.ErrInvalidInput, err.Error(), nil)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.DesignSnapshot{
			DesignID:  d.ID,
			Version:   0,
			Document:  document,
			CreatedBy: d.CreatedBy,
		}).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.Permission{
			DesignID: d.ID,
			UserID:   d.CreatedBy,
			Role:     ownerRole,
		}).Error; err != nil {
			return err
		}
		return outbox(tx, d.ID, models.DesignEventCreated, map[string]interface{}{
			"designId":  d.ID.String(),
			"name":      d.Name,
			"createdBy": d.CreatedBy,
		})
	})
	if err != nil {
		return wrap(op, err)
	}

	s.logger.Debug("created design", "design_id", d.ID, "created_by", d.CreatedBy)
	return nil
}

// GetDesign loads a design. Missing designs return ErrNotFound.
func (s *Store) GetDesign(ctx context.Context, id designid.ID) (*models.Design, error) {
	d := &models.Design{ID: id}
	if err := d.Get(s.db.WithContext(ctx)); err != nil {
		return nil, wrap("GetDesign", err)
	}
	return d, nil
}

// ListDesigns returns the designs user holds any permission on, newest first.
func (s *Store) ListDesigns(ctx context.Context, user string) ([]models.Design, error) {
	var designs []models.Design
	err := s.db.WithContext(ctx).
		Joins("JOIN permissions ON permissions.design_id = designs.id").
		Where("permissions.user_id = ?", user).
		Order("designs.created_on DESC").
		Find(&designs).Error
	if err != nil {
		return nil, wrap("ListDesigns", err)
	}
	return designs, nil
}

// DeleteDesign removes a design with its content and collaboration records.
// Publication records are kept as audit history.
func (s *Store) DeleteDesign(ctx context.Context, id designid.ID, by string) error {
	const op = "DeleteDesign"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Design{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		for _, m := range []interface{}{
			&models.DesignCommand{},
			&models.DesignSnapshot{},
			&models.Invitation{},
			&models.Permission{},
		} {
			if err := tx.Where("design_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return outbox(tx, id, models.DesignEventDeleted, map[string]interface{}{
			"designId":  id.String(),
			"deletedBy": by,
		})
	})
	if err != nil {
		return wrap(op, err)
	}

	s.logger.Info("deleted design", "design_id", id, "deleted_by", by)
	return nil
}
