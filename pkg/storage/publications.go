package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

// CreatePublication appends a publication audit record.
func (s *Store) CreatePublication(ctx context.Context, p *models.Publication) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		return outbox(tx, p.DesignID, models.DesignEventPublished, map[string]interface{}{
			"designId":      p.DesignID.String(),
			"publicationId": p.ID,
			"type":          p.Type,
			"format":        p.Format,
			"createdBy":     p.CreatedBy,
			"target":        p.Target,
		})
	})
	return wrap("CreatePublication", err)
}

// ListPublications returns a page of publication records, newest first.
func (s *Store) ListPublications(ctx context.Context, designID designid.ID, offset, limit int) ([]models.Publication, error) {
	pubs, err := models.GetPublications(s.db.WithContext(ctx), designID, offset, limit)
	if err != nil {
		return nil, wrap("ListPublications", err)
	}
	return pubs, nil
}
