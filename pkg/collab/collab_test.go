package collab

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/database"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
	"github.com/lordrhodos/apicurio-studio/pkg/storage"
)

func setupRegistry(t *testing.T) (*Registry, *storage.Store, *models.Design) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))

	s := storage.New(db, nil)
	d := &models.Design{Name: "Pet Store", CreatedBy: "alice"}
	require.NoError(t, s.CreateDesign(context.Background(), d, `{}`, RoleOwner.String()))

	return NewRegistry(s, nil), s, d
}

func TestRole_Lattice(t *testing.T) {
	assert.True(t, RoleOwner.Includes(RoleCollaborator))
	assert.True(t, RoleOwner.Includes(RoleOwner))
	assert.False(t, RoleCollaborator.Includes(RoleOwner))
	assert.True(t, RoleCollaborator.Includes(RoleUnspecified))

	assert.True(t, RoleCollaborator.Can(CapWrite))
	assert.False(t, RoleCollaborator.Can(CapInvite))
	assert.False(t, RoleUnspecified.Can(CapRead))

	for _, r := range []Role{RoleOwner, RoleCollaborator} {
		parsed, err := ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseRole("admin")
	assert.Error(t, err)
}

func TestInviteStatus_Transitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusAccepted))
	assert.True(t, StatusPending.CanTransition(StatusRejected))
	assert.False(t, StatusAccepted.CanTransition(StatusRejected))
	assert.False(t, StatusRejected.CanTransition(StatusAccepted))
	assert.False(t, StatusPending.CanTransition(StatusPending))

	assert.True(t, StatusAccepted.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusPending.Terminal())

	s, err := ParseInviteStatus("Accepted")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, s)
}

func TestRegistry_Authorize(t *testing.T) {
	ctx := context.Background()
	r, _, d := setupRegistry(t)

	assert.NoError(t, r.Authorize(ctx, "op", d.ID, "alice", CapDelete))

	err := r.Authorize(ctx, "op", d.ID, "mallory", CapRead)
	assert.ErrorIs(t, err, apierrors.ErrNotFound, "read denial is masked")

	err = r.Authorize(ctx, "op", d.ID, "mallory", CapInvite)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied, "owner actions are denied outright")

	inv, err := r.CreateInvitation(ctx, d.ID, "alice", "", RoleCollaborator)
	require.NoError(t, err)
	_, err = r.AcceptInvitation(ctx, d.ID, inv.InviteID, "bob")
	require.NoError(t, err)

	err = r.Authorize(ctx, "op", d.ID, "bob", CapInvite)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)
	assert.NoError(t, r.Authorize(ctx, "op", d.ID, "bob", CapWrite))

	ok, err := r.HasOwnerPermission(ctx, "alice", d.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.HasWritePermission(ctx, "carol", d.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// Scenario: an owner invites, the invitee accepts, a second accept fails.
func TestRegistry_InviteAcceptFlow(t *testing.T) {
	ctx := context.Background()
	r, _, d := setupRegistry(t)

	_, err := r.CreateInvitation(ctx, d.ID, "bob", "Bob", RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied, "strangers cannot invite")

	inv, err := r.CreateInvitation(ctx, d.ID, "alice", "Alice", RoleUnspecified)
	require.NoError(t, err)
	assert.Equal(t, "pending", inv.Status)
	assert.Equal(t, "collaborator", inv.Role)
	assert.Equal(t, "Pet Store", inv.DesignName)

	got, err := r.GetInvitation(ctx, d.ID, inv.InviteID)
	require.NoError(t, err)
	assert.Equal(t, inv.InviteID, got.InviteID)

	accepted, err := r.AcceptInvitation(ctx, d.ID, inv.InviteID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)
	assert.Equal(t, "bob", accepted.ModifiedBy)

	ok, err := r.HasWritePermission(ctx, "bob", d.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.CreateInvitation(ctx, d.ID, "bob", "Bob", RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied, "only owners invite")

	_, err = r.AcceptInvitation(ctx, d.ID, inv.InviteID, "carol")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
	ok, err = r.HasWritePermission(ctx, "carol", d.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	err = r.RejectInvitation(ctx, d.ID, inv.InviteID, "carol")
	assert.ErrorIs(t, err, apierrors.ErrNotFound, "accepted is terminal")
}

func TestRegistry_AcceptByExistingCollaborator(t *testing.T) {
	ctx := context.Background()
	r, _, d := setupRegistry(t)

	inv, err := r.CreateInvitation(ctx, d.ID, "alice", "", RoleCollaborator)
	require.NoError(t, err)

	_, err = r.AcceptInvitation(ctx, d.ID, inv.InviteID, "alice")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	got, err := r.GetInvitation(ctx, d.ID, inv.InviteID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status, "a refused accept leaves the invitation open")
}

func TestRegistry_RejectFlow(t *testing.T) {
	ctx := context.Background()
	r, _, d := setupRegistry(t)

	inv, err := r.CreateInvitation(ctx, d.ID, "alice", "", RoleCollaborator)
	require.NoError(t, err)

	require.NoError(t, r.RejectInvitation(ctx, d.ID, inv.InviteID, "bob"))
	_, err = r.AcceptInvitation(ctx, d.ID, inv.InviteID, "bob")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	err = r.RejectInvitation(ctx, d.ID, designid.New(), "bob")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
}

func TestRegistry_ConcurrentAcceptReject(t *testing.T) {
	ctx := context.Background()
	r, _, d := setupRegistry(t)

	inv, err := r.CreateInvitation(ctx, d.ID, "alice", "", RoleCollaborator)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		acceptErr error
		rejectErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = r.AcceptInvitation(ctx, d.ID, inv.InviteID, "bob")
	}()
	go func() {
		defer wg.Done()
		rejectErr = r.RejectInvitation(ctx, d.ID, inv.InviteID, "carol")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range []error{acceptErr, rejectErr} {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, apierrors.ErrNotFound), "loser sees not found: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestRegistry_ManageCollaborators(t *testing.T) {
	ctx := context.Background()
	r, _, d := setupRegistry(t)

	inv, err := r.CreateInvitation(ctx, d.ID, "alice", "", RoleCollaborator)
	require.NoError(t, err)
	_, err = r.AcceptInvitation(ctx, d.ID, inv.InviteID, "bob")
	require.NoError(t, err)

	perms, err := r.ListPermissions(ctx, d.ID, "bob")
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	_, err = r.ListPermissions(ctx, d.ID, "mallory")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	err = r.UpdatePermission(ctx, d.ID, "bob", "alice", RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied, "collaborators cannot manage")

	err = r.UpdatePermission(ctx, d.ID, "alice", "alice", RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrConflict, "creator's row is fixed")

	err = r.DeletePermission(ctx, d.ID, "alice", "alice")
	assert.ErrorIs(t, err, apierrors.ErrConflict)

	err = r.UpdatePermission(ctx, d.ID, "alice", "bob", RoleOwner)
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput, "ownership is not transferable")
	ok, err := r.HasOwnerPermission(ctx, "bob", d.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, r.UpdatePermission(ctx, d.ID, "alice", "bob", RoleCollaborator))

	err = r.UpdatePermission(ctx, d.ID, "alice", "nobody", RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	require.NoError(t, r.DeletePermission(ctx, d.ID, "alice", "bob"))
	ok, err = r.HasWritePermission(ctx, "bob", d.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_SingleOwner(t *testing.T) {
	ctx := context.Background()
	r, s, d := setupRegistry(t)

	_, err := r.CreateInvitation(ctx, d.ID, "alice", "Alice", RoleOwner)
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	invs, err := r.ListInvitations(ctx, d.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, invs)

	// A stored owner invitation is never honoured.
	inv := &models.Invitation{DesignID: d.ID, CreatedBy: "alice", Role: RoleOwner.String(), Status: StatusPending.String()}
	require.NoError(t, s.CreateInvitation(ctx, inv))

	_, err = r.AcceptInvitation(ctx, d.ID, inv.InviteID, "bob")
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	ok, err := r.HasWritePermission(ctx, "bob", d.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.GetInvitation(ctx, d.ID, inv.InviteID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending.String(), got.Status)
}
