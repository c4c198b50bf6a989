package designs

import (
	"context"

	"github.com/lordrhodos/apicurio-studio/pkg/auth"
	"github.com/lordrhodos/apicurio-studio/pkg/collab"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

// CreateInvitation invites a new collaborator to a design.
func (s *Service) CreateInvitation(ctx context.Context, caller auth.Identity, id designid.ID, role collab.Role) (*models.Invitation, error) {
	return s.registry.CreateInvitation(ctx, id, caller.Login, caller.Name, role)
}

// GetInvitation returns an invitation.
func (s *Service) GetInvitation(ctx context.Context, id, inviteID designid.ID) (*models.Invitation, error) {
	return s.registry.GetInvitation(ctx, id, inviteID)
}

// ListInvitations lists the invitations of a design.
func (s *Service) ListInvitations(ctx context.Context, caller auth.Identity, id designid.ID) ([]models.Invitation, error) {
	return s.registry.ListInvitations(ctx, id, caller.Login)
}

// AcceptInvitation makes the caller a collaborator on the design.
func (s *Service) AcceptInvitation(ctx context.Context, caller auth.Identity, id, inviteID designid.ID) (*models.Invitation, error) {
	return s.registry.AcceptInvitation(ctx, id, inviteID, caller.Login)
}

// RejectInvitation declines an invitation.
func (s *Service) RejectInvitation(ctx context.Context, caller auth.Identity, id, inviteID designid.ID) error {
	return s.registry.RejectInvitation(ctx, id, inviteID, caller.Login)
}

// ListCollaborators lists the permissions granted on a design.
func (s *Service) ListCollaborators(ctx context.Context, caller auth.Identity, id designid.ID) ([]models.Permission, error) {
	return s.registry.ListPermissions(ctx, id, caller.Login)
}

// UpdateCollaborator changes a collaborator's role.
func (s *Service) UpdateCollaborator(ctx context.Context, caller auth.Identity, id designid.ID, userID string, role collab.Role) error {
	return s.registry.UpdatePermission(ctx, id, caller.Login, userID, role)
}

// DeleteCollaborator revokes a collaborator's access.
func (s *Service) DeleteCollaborator(ctx context.Context, caller auth.Identity, id designid.ID, userID string) error {
	return s.registry.DeletePermission(ctx, id, caller.Login, userID)
}
