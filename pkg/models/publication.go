package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/designid"
)

// Publication is an audit record of a design pushed to an external
// repository. Rows are only ever inserted.
type Publication struct {
	ID uint `gorm:"primaryKey" json:"id"`

	DesignID  designid.ID `gorm:"type:varchar(36);not null;index:idx_publications_design_id" json:"designId"`
	CreatedBy string      `gorm:"type:varchar(255);not null" json:"createdBy"`
	CreatedOn time.Time   `gorm:"not null" json:"createdOn"`

	// Type is the connector type the design was published through.
	Type          string `gorm:"type:varchar(50);not null" json:"type"`
	Format        string `gorm:"type:varchar(10);not null" json:"format"`
	CommitMessage string `gorm:"type:text" json:"commitMessage,omitempty"`

	// Target holds connector specific location fields, e.g. bucket and key.
	Target map[string]interface{} `gorm:"serializer:json;type:text" json:"target"`
}

// TableName specifies the table name.
func (Publication) TableName() string {
	return "publications"
}

// BeforeCreate sets the creation time.
func (p *Publication) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedOn.IsZero() {
		p.CreatedOn = time.Now().UTC()
	}
	return nil
}

// GetPublications returns publications newest first.
func GetPublications(db *gorm.DB, designID designid.ID, offset, limit int) ([]Publication, error) {
	var pubs []Publication
	err := db.
		Where("design_id = ?", designID).
		Order("created_on DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&pubs).Error
	return pubs, err
}
