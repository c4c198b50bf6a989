package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/designid"
)

// Design is an API design document shared between collaborators. Its content
// lives in DesignSnapshot and DesignCommand rows.
type Design struct {
	ID designid.ID `gorm:"type:varchar(36);primaryKey" json:"id"`

	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	// CreatedBy is the owner of the design.
	CreatedBy string    `gorm:"type:varchar(255);not null;index:idx_designs_created_by" json:"createdBy"`
	CreatedOn time.Time `gorm:"not null" json:"createdOn"`

	Tags []string `gorm:"serializer:json;type:text" json:"tags,omitempty"`
}

// TableName specifies the table name.
func (Design) TableName() string {
	return "designs"
}

// BeforeCreate assigns an ID and creation time when missing.
func (d *Design) BeforeCreate(tx *gorm.DB) error {
	if d.ID.IsZero() {
		d.ID = designid.New()
	}
	if d.CreatedOn.IsZero() {
		d.CreatedOn = time.Now().UTC()
	}
	return nil
}

// Validate checks the fields required to persist a design.
func (d *Design) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&d.CreatedBy, validation.Required),
	)
}

// Create inserts the design.
func (d *Design) Create(db *gorm.DB) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return db.Create(d).Error
}

// Get loads the design by its ID.
func (d *Design) Get(db *gorm.DB) error {
	if err := validation.Validate(d.ID, validation.Required); err != nil {
		return err
	}
	return db.Where("id = ?", d.ID).First(d).Error
}
