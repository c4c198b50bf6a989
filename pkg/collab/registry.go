// Package collab decides who may read, write and administer a design, and
// runs the invitation workflow that hands out those rights.
package collab

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

// Store is the persistence the registry needs. *storage.Store implements it.
type Store interface {
	GetDesign(ctx context.Context, id designid.ID) (*models.Design, error)

	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitation(ctx context.Context, designID, inviteID designid.ID) (*models.Invitation, error)
	ListInvitations(ctx context.Context, designID designid.ID) ([]models.Invitation, error)
	UpdateInvitationStatus(ctx context.Context, designID, inviteID designid.ID, from, to, by string) (bool, error)
	ResolveInvitation(ctx context.Context, designID, inviteID designid.ID, from, to, user, role string) (bool, error)

	GetPermission(ctx context.Context, designID designid.ID, user string) (*models.Permission, error)
	ListPermissions(ctx context.Context, designID designid.ID) ([]models.Permission, error)
	UpdatePermissionRole(ctx context.Context, designID designid.ID, user, role string) error
	DeletePermission(ctx context.Context, designID designid.ID, user string) error
}

// Registry gates design operations by role and manages invitations.
type Registry struct {
	store  Store
	logger hclog.Logger
}

// NewRegistry returns a Registry over store.
func NewRegistry(store Store, logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		store:  store,
		logger: logger.Named("collab"),
	}
}

// RoleOf returns user's role on a design, RoleUnspecified when they hold
// none.
func (r *Registry) RoleOf(ctx context.Context, designID designid.ID, user string) (Role, error) {
	p, err := r.store.GetPermission(ctx, designID, user)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			return RoleUnspecified, nil
		}
		return RoleUnspecified, err
	}
	role, err := ParseRole(p.Role)
	if err != nil {
		return RoleUnspecified, apierrors.E("RoleOf", apierrors.ErrStorage, "corrupt permission", err)
	}
	return role, nil
}

// Authorize checks that user's role grants c. Read and write denials are
// reported as ErrNotFound so unauthorized callers cannot probe for designs;
// every other denial is ErrAccessDenied.
func (r *Registry) Authorize(ctx context.Context, op string, designID designid.ID, user string, c Capability) error {
	role, err := r.RoleOf(ctx, designID, user)
	if err != nil {
		return err
	}
	if role.Can(c) {
		return nil
	}

	r.logger.Debug("permission denied",
		"op", op,
		"design_id", designID,
		"user", user,
		"role", role,
	)
	if c == CapRead || c == CapWrite {
		return apierrors.NotFound(op, "design not found")
	}
	return apierrors.AccessDenied(op, "owner permission required")
}

// HasWritePermission reports whether user may edit the design.
func (r *Registry) HasWritePermission(ctx context.Context, user string, designID designid.ID) (bool, error) {
	role, err := r.RoleOf(ctx, designID, user)
	return role.Can(CapWrite), err
}

// HasOwnerPermission reports whether user owns the design.
func (r *Registry) HasOwnerPermission(ctx context.Context, user string, designID designid.ID) (bool, error) {
	role, err := r.RoleOf(ctx, designID, user)
	return role == RoleOwner, err
}

// CreateInvitation creates a pending invitation for role. Only owners may
// invite; role defaults to collaborator and ownership cannot be offered.
func (r *Registry) CreateInvitation(ctx context.Context, designID designid.ID, inviter, inviterName string, role Role) (*models.Invitation, error) {
	const op = "CreateInvitation"

	if err := r.Authorize(ctx, op, designID, inviter, CapInvite); err != nil {
		return nil, err
	}
	if role == RoleUnspecified {
		role = RoleCollaborator
	}
	if !role.Grantable() {
		return nil, apierrors.E(op, apierrors.ErrInvalidInput,
			fmt.Sprintf("role %q cannot be granted", role), nil)
	}

	d, err := r.store.GetDesign(ctx, designID)
	if err != nil {
		return nil, err
	}

	inv := &models.Invitation{
		DesignID:      designID,
		DesignName:    d.Name,
		CreatedBy:     inviter,
		CreatedByName: inviterName,
		Role:          role.String(),
		Status:        StatusPending.String(),
	}
	if err := r.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	r.logger.Info("created invitation",
		"design_id", designID,
		"invite_id", inv.InviteID,
		"role", inv.Role,
		"created_by", inviter,
	)
	return inv, nil
}

// GetInvitation returns an invitation. Invitees are not yet collaborators,
// so no permission is required.
func (r *Registry) GetInvitation(ctx context.Context, designID, inviteID designid.ID) (*models.Invitation, error) {
	return r.store.GetInvitation(ctx, designID, inviteID)
}

// ListInvitations lists the invitations of a design for a collaborator.
func (r *Registry) ListInvitations(ctx context.Context, designID designid.ID, user string) ([]models.Invitation, error) {
	const op = "ListInvitations"
	if err := r.Authorize(ctx, op, designID, user, CapRead); err != nil {
		return nil, err
	}
	return r.store.ListInvitations(ctx, designID)
}

// AcceptInvitation grants user the invited role. It fails with ErrNotFound
// when the invitation is missing or no longer pending, and when user already
// holds a permission on the design. Only one of any set of concurrent
// accept and reject calls succeeds.
func (r *Registry) AcceptInvitation(ctx context.Context, designID, inviteID designid.ID, user string) (*models.Invitation, error) {
	const op = "AcceptInvitation"

	inv, role, err := r.pendingInvitation(ctx, op, designID, inviteID)
	if err != nil {
		return nil, err
	}
	if !role.Grantable() {
		return nil, apierrors.E(op, apierrors.ErrInvalidInput,
			fmt.Sprintf("role %q cannot be granted", role), nil)
	}

	current, err := r.RoleOf(ctx, designID, user)
	if err != nil {
		return nil, err
	}
	if current != RoleUnspecified {
		return nil, apierrors.NotFound(op, "user is already a collaborator")
	}

	won, err := r.store.ResolveInvitation(ctx, designID, inviteID,
		StatusPending.String(), StatusAccepted.String(), user, role.String())
	if err != nil {
		if errors.Is(err, apierrors.ErrConflict) {
			return nil, apierrors.NotFound(op, "user is already a collaborator")
		}
		return nil, err
	}
	if !won {
		return nil, apierrors.NotFound(op, "invitation is no longer pending")
	}

	r.logger.Info("accepted invitation",
		"design_id", designID,
		"invite_id", inviteID,
		"user", user,
		"role", role,
	)
	return r.store.GetInvitation(ctx, inv.DesignID, inv.InviteID)
}

// RejectInvitation declines a pending invitation.
func (r *Registry) RejectInvitation(ctx context.Context, designID, inviteID designid.ID, user string) error {
	const op = "RejectInvitation"

	if _, _, err := r.pendingInvitation(ctx, op, designID, inviteID); err != nil {
		return err
	}

	won, err := r.store.UpdateInvitationStatus(ctx, designID, inviteID,
		StatusPending.String(), StatusRejected.String(), user)
	if err != nil {
		return err
	}
	if !won {
		return apierrors.NotFound(op, "invitation is no longer pending")
	}

	r.logger.Info("rejected invitation", "design_id", designID, "invite_id", inviteID, "user", user)
	return nil
}

func (r *Registry) pendingInvitation(ctx context.Context, op string, designID, inviteID designid.ID) (*models.Invitation, Role, error) {
	inv, err := r.store.GetInvitation(ctx, designID, inviteID)
	if err != nil {
		return nil, RoleUnspecified, err
	}
	status, err := ParseInviteStatus(inv.Status)
	if err != nil {
		return nil, RoleUnspecified, apierrors.E(op, apierrors.ErrStorage, "corrupt invitation", err)
	}
	if !status.CanTransition(StatusAccepted) {
		return nil, RoleUnspecified, apierrors.NotFound(op, "invitation is no longer pending")
	}
	role, err := ParseRole(inv.Role)
	if err != nil {
		return nil, RoleUnspecified, apierrors.E(op, apierrors.ErrStorage, "corrupt invitation", err)
	}
	return inv, role, nil
}

// ListPermissions lists the collaborators of a design. Callers without
// write access get ErrNotFound.
func (r *Registry) ListPermissions(ctx context.Context, designID designid.ID, user string) ([]models.Permission, error) {
	const op = "ListPermissions"
	if err := r.Authorize(ctx, op, designID, user, CapWrite); err != nil {
		return nil, err
	}
	return r.store.ListPermissions(ctx, designID)
}

// UpdatePermission changes a collaborator's role. Only owners may do this,
// the design creator's permission is fixed and nobody else can be made owner.
func (r *Registry) UpdatePermission(ctx context.Context, designID designid.ID, actor, userID string, role Role) error {
	const op = "UpdatePermission"

	if role == RoleUnspecified {
		return apierrors.E(op, apierrors.ErrInvalidInput, "role is required", nil)
	}
	if !role.Grantable() {
		return apierrors.E(op, apierrors.ErrInvalidInput,
			fmt.Sprintf("role %q cannot be granted", role), nil)
	}
	if err := r.guardCollaboratorChange(ctx, op, designID, actor, userID); err != nil {
		return err
	}
	if err := r.store.UpdatePermissionRole(ctx, designID, userID, role.String()); err != nil {
		return err
	}

	r.logger.Info("updated permission", "design_id", designID, "user", userID, "role", role, "by", actor)
	return nil
}

// DeletePermission revokes a collaborator. Only owners may do this, and the
// design creator cannot be removed.
func (r *Registry) DeletePermission(ctx context.Context, designID designid.ID, actor, userID string) error {
	const op = "DeletePermission"

	if err := r.guardCollaboratorChange(ctx, op, designID, actor, userID); err != nil {
		return err
	}
	if err := r.store.DeletePermission(ctx, designID, userID); err != nil {
		return err
	}

	r.logger.Info("deleted permission", "design_id", designID, "user", userID, "by", actor)
	return nil
}

func (r *Registry) guardCollaboratorChange(ctx context.Context, op string, designID designid.ID, actor, userID string) error {
	if err := r.Authorize(ctx, op, designID, actor, CapManageCollaborators); err != nil {
		return err
	}
	d, err := r.store.GetDesign(ctx, designID)
	if err != nil {
		return err
	}
	if d.CreatedBy == userID {
		return apierrors.E(op, apierrors.ErrConflict, "the design owner's permission cannot be changed", nil)
	}
	return nil
}
