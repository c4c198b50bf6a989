package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/designid"
)

// Permission grants a user a role on a design.
type Permission struct {
	ID uint `gorm:"primaryKey" json:"-"`

	DesignID designid.ID `gorm:"type:varchar(36);not null;uniqueIndex:idx_permissions_design_user" json:"designId"`
	UserID   string      `gorm:"type:varchar(255);not null;uniqueIndex:idx_permissions_design_user;index:idx_permissions_user" json:"userId"`
	Role     string      `gorm:"type:varchar(20);not null" json:"role"`

	CreatedOn time.Time `gorm:"not null" json:"createdOn"`
}

// TableName specifies the table name.
func (Permission) TableName() string {
	return "permissions"
}

// BeforeCreate sets the creation time.
func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedOn.IsZero() {
		p.CreatedOn = time.Now().UTC()
	}
	return nil
}

// GetPermission returns the permission of userID on designID.
func GetPermission(db *gorm.DB, designID designid.ID, userID string) (*Permission, error) {
	var p Permission
	err := db.
		Where("design_id = ? AND user_id = ?", designID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPermissions lists the permissions of a design ordered by creation.
func GetPermissions(db *gorm.DB, designID designid.ID) ([]Permission, error) {
	var perms []Permission
	err := db.
		Where("design_id = ?", designID).
		Order("created_on ASC, id ASC").
		Find(&perms).Error
	return perms, err
}
