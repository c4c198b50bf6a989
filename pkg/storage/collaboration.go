package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

// CreateInvitation inserts inv.
func (s *Store) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return wrap("CreateInvitation", err)
	}
	return nil
}

// GetInvitation loads an invitation of a design.
func (s *Store) GetInvitation(ctx context.Context, designID, inviteID designid.ID) (*models.Invitation, error) {
	inv, err := models.GetInvitation(s.db.WithContext(ctx), designID, inviteID)
	if err != nil {
		return nil, wrap("GetInvitation", err)
	}
	return inv, nil
}

// ListInvitations lists the invitations of a design.
func (s *Store) ListInvitations(ctx context.Context, designID designid.ID) ([]models.Invitation, error) {
	invs, err := models.GetInvitations(s.db.WithContext(ctx), designID)
	if err != nil {
		return nil, wrap("ListInvitations", err)
	}
	return invs, nil
}

// UpdateInvitationStatus moves an invitation from one status to another and
// reports whether this call made the transition.
func (s *Store) UpdateInvitationStatus(ctx context.Context, designID, inviteID designid.ID, from, to, by string) (bool, error) {
	ok, err := models.CompareAndSetInvitationStatus(s.db.WithContext(ctx), designID, inviteID, from, to, by)
	if err != nil {
		return false, wrap("UpdateInvitationStatus", err)
	}
	return ok, nil
}

// ResolveInvitation atomically moves an invitation from -> to and grants
// user the invited role. It returns false, without granting anything, when
// the invitation was no longer in the from status. role must match the role
// stored on the invitation.
func (s *Store) ResolveInvitation(ctx context.Context, designID, inviteID designid.ID, from, to, user, role string) (bool, error) {
	const op = "ResolveInvitation"

	var won bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := models.GetInvitation(tx, designID, inviteID)
		if err != nil {
			return err
		}
		if inv.Role != role {
			return apierrors.E(op, apierrors.ErrConflict, "granted role does not match the invitation", nil)
		}

		ok, err := models.CompareAndSetInvitationStatus(tx, designID, inviteID, from, to, user)
		if err != nil || !ok {
			return err
		}
		if err := tx.Create(&models.Permission{
			DesignID: designID,
			UserID:   user,
			Role:     role,
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apierrors.E(op, apierrors.ErrConflict, "user already has a permission on this design", nil)
			}
			return err
		}
		won = true
		return nil
	})
	if err != nil {
		return false, wrap(op, err)
	}
	return won, nil
}

// GetPermission returns user's permission on a design, or ErrNotFound.
func (s *Store) GetPermission(ctx context.Context, designID designid.ID, user string) (*models.Permission, error) {
	p, err := models.GetPermission(s.db.WithContext(ctx), designID, user)
	if err != nil {
		return nil, wrap("GetPermission", err)
	}
	return p, nil
}

// ListPermissions lists every permission on a design.
func (s *Store) ListPermissions(ctx context.Context, designID designid.ID) ([]models.Permission, error) {
	perms, err := models.GetPermissions(s.db.WithContext(ctx), designID)
	if err != nil {
		return nil, wrap("ListPermissions", err)
	}
	return perms, nil
}

// UpdatePermissionRole changes the role of an existing permission.
func (s *Store) UpdatePermissionRole(ctx context.Context, designID designid.ID, user, role string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Permission{}).
		Where("design_id = ? AND user_id = ?", designID, user).
		Update("role", role)
	if res.Error != nil {
		return wrap("UpdatePermissionRole", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierrors.NotFound("UpdatePermissionRole", "no permission for user")
	}
	return nil
}

// DeletePermission revokes user's permission on a design.
func (s *Store) DeletePermission(ctx context.Context, designID designid.ID, user string) error {
	res := s.db.WithContext(ctx).
		Where("design_id = ? AND user_id = ?", designID, user).
		Delete(&models.Permission{})
	if res.Error != nil {
		return wrap("DeletePermission", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierrors.NotFound("DeletePermission", "no permission for user")
	}
	return nil
}
