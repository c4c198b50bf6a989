package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/designid"
)

// Invitation offers a role on a design to whoever accepts it first.
type Invitation struct {
	ID uint `gorm:"primaryKey" json:"-"`

	InviteID   designid.ID `gorm:"type:varchar(36);not null;uniqueIndex" json:"inviteId"`
	DesignID   designid.ID `gorm:"type:varchar(36);not null;index:idx_invitations_design_id" json:"designId"`
	DesignName string      `gorm:"type:varchar(255)" json:"designName"`

	CreatedBy     string    `gorm:"type:varchar(255);not null" json:"createdBy"`
	CreatedByName string    `gorm:"type:varchar(255)" json:"createdByName,omitempty"`
	CreatedOn     time.Time `gorm:"not null" json:"createdOn"`

	// Role and Status hold the labels of collab.Role and collab.InviteStatus.
	Role   string `gorm:"type:varchar(20);not null" json:"role"`
	Status string `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	ModifiedBy string     `gorm:"type:varchar(255)" json:"modifiedBy,omitempty"`
	ModifiedOn *time.Time `json:"modifiedOn,omitempty"`
}

// TableName specifies the table name.
func (Invitation) TableName() string {
	return "invitations"
}

// BeforeCreate assigns an invite ID and creation time when missing.
func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.InviteID.IsZero() {
		i.InviteID = designid.New()
	}
	if i.CreatedOn.IsZero() {
		i.CreatedOn = time.Now().UTC()
	}
	return nil
}

// GetInvitation loads an invitation of a design.
func GetInvitation(db *gorm.DB, designID, inviteID designid.ID) (*Invitation, error) {
	var inv Invitation
	err := db.
		Where("design_id = ? AND invite_id = ?", designID, inviteID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvitations lists all invitations of a design, newest first.
func GetInvitations(db *gorm.DB, designID designid.ID) ([]Invitation, error) {
	var invs []Invitation
	err := db.
		Where("design_id = ?", designID).
		Order("created_on DESC").
		Find(&invs).Error
	return invs, err
}

// CompareAndSetInvitationStatus moves an invitation from one status to
// another. It reports false when the invitation was not in the from status,
// which is how concurrent accept and reject calls lose.
func CompareAndSetInvitationStatus(db *gorm.DB, designID, inviteID designid.ID, from, to, modifiedBy string) (bool, error) {
	now := time.Now().UTC()
	res := db.Model(&Invitation{}).
		Where("design_id = ? AND invite_id = ? AND status = ?", designID, inviteID, from).
		Updates(map[string]interface{}{
			"status":      to,
			"modified_by": modifiedBy,
			"modified_on": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
