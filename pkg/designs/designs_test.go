package designs

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/auth"
	"github.com/lordrhodos/apicurio-studio/pkg/collab"
	"github.com/lordrhodos/apicurio-studio/pkg/connector"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/mock"
	"github.com/lordrhodos/apicurio-studio/pkg/database"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/format"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
	"github.com/lordrhodos/apicurio-studio/pkg/replay"
	"github.com/lordrhodos/apicurio-studio/pkg/session"
	"github.com/lordrhodos/apicurio-studio/pkg/storage"
)

var (
	alice   = auth.Identity{Login: "alice", Name: "Alice", Secret: "alice-secret"}
	bob     = auth.Identity{Login: "bob", Name: "Bob", Secret: "bob-secret"}
	mallory = auth.Identity{Login: "mallory", Name: "Mallory"}
)

type testEnv struct {
	svc   *Service
	store *storage.Store
	mock  *mock.Connector
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := storage.New(db, hclog.NewNullLogger())
	sessions, err := session.NewCoordinator([]byte("test-signing-key"), hclog.NewNullLogger())
	require.NoError(t, err)
	m := mock.New()

	svc, err := New(Config{
		Store:      store,
		Sessions:   sessions,
		Connectors: connector.NewFactory(m),
		Logger:     hclog.NewNullLogger(),
	})
	require.NoError(t, err)
	return &testEnv{svc: svc, store: store, mock: m}
}

func setCmd(t *testing.T, path string, value interface{}) string {
	t.Helper()
	payload, err := replay.Build(replay.OpSet, path, value)
	require.NoError(t, err)
	return payload
}

func addCollaborator(t *testing.T, svc *Service, id designid.ID, who auth.Identity) {
	t.Helper()
	ctx := context.Background()
	inv, err := svc.CreateInvitation(ctx, alice, id, collab.RoleCollaborator)
	require.NoError(t, err)
	_, err = svc.AcceptInvitation(ctx, who, id, inv.InviteID)
	require.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

// Scenario: a design created without a spec version gets the 2.0 template.
func TestCreateDesign_DefaultsToSwagger2(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store", Description: "Pets"})
	require.NoError(t, err)
	assert.False(t, d.ID.IsZero())

	got, err := env.svc.GetDesign(ctx, alice, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "Pet Store", got.Name)
	assert.Equal(t, "alice", got.CreatedBy)

	doc, err := env.svc.GetContent(ctx, alice, d.ID, format.JSON)
	require.NoError(t, err)
	assert.Equal(t, "2.0", gjson.Get(doc, "swagger").String())
	assert.Equal(t, "Pet Store", gjson.Get(doc, "info.title").String())
	assert.Equal(t, "Pets", gjson.Get(doc, "info.description").String())
	assert.Equal(t, "1.0.0", gjson.Get(doc, "info.version").String())
	assert.False(t, gjson.Get(doc, "openapi").Exists())
}

func TestCreateDesign_SpecVersions(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "v3", SpecVersion: "3.0.2"})
	require.NoError(t, err)
	doc, err := env.svc.GetContent(ctx, alice, d.ID, format.JSON)
	require.NoError(t, err)
	assert.Equal(t, "3.0.2", gjson.Get(doc, "openapi").String())
	assert.False(t, gjson.Get(doc, "swagger").Exists())

	_, err = env.svc.CreateDesign(ctx, alice, NewDesign{Name: "bad", SpecVersion: "1.2"})
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)
}

func TestGetContent_YAML(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	out, err := env.svc.GetContent(ctx, alice, d.ID, format.YAML)
	require.NoError(t, err)
	assert.Contains(t, out, "swagger: \"2.0\"")
	assert.Contains(t, out, "title: Pet Store")

	_, err = env.svc.GetContent(ctx, mallory, d.ID, format.JSON)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
}

// Scenario: commands 1..3 apply in order on top of the base document.
func TestAppendCommand_ReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	cmds := []string{
		setCmd(t, "info.title", "Pets"),
		setCmd(t, "paths./pets.get.summary", "List pets"),
		setCmd(t, "info.version", "2.0.0"),
	}
	for i, c := range cmds {
		v, err := env.svc.AppendCommand(ctx, alice, d.ID, int64(i), c)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), v)
	}

	doc, err := env.svc.GetContent(ctx, alice, d.ID, format.JSON)
	require.NoError(t, err)
	assert.Equal(t, "Pets", gjson.Get(doc, "info.title").String())
	assert.Equal(t, "List pets", gjson.Get(doc, `paths./pets.get.summary`).String())
	assert.Equal(t, "2.0.0", gjson.Get(doc, "info.version").String())

	_, err = env.svc.AppendCommand(ctx, alice, d.ID, 1, setCmd(t, "x", 1))
	assert.ErrorIs(t, err, apierrors.ErrVersionConflict)

	_, err = env.svc.AppendCommand(ctx, alice, d.ID, 5, setCmd(t, "x", 1))
	assert.ErrorIs(t, err, apierrors.ErrVersionConflict, "skipping versions is rejected")

	activity, err := env.svc.ListActivity(ctx, alice, d.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, activity, 3)
	assert.Equal(t, int64(3), activity[0].Version)
}

func TestAppendCommand_RejectsUnapplicableCommands(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	_, err = env.svc.AppendCommand(ctx, alice, d.ID, 0, `{"op":"explode"}`)
	assert.ErrorIs(t, err, apierrors.ErrCommandApplication)

	_, err = env.svc.AppendCommand(ctx, alice, d.ID, 0, `{"op":"delete","path":"missing.key"}`)
	assert.ErrorIs(t, err, apierrors.ErrCommandApplication)

	var cmdErr *replay.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, int64(1), cmdErr.Version)

	head, err := env.store.HeadVersion(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), head, "rejected commands are never stored")
}

func TestAppendCommand_Permissions(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	_, err = env.svc.AppendCommand(ctx, mallory, d.ID, 0, setCmd(t, "a", 1))
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	addCollaborator(t, env.svc, d.ID, bob)
	v, err := env.svc.AppendCommand(ctx, bob, d.ID, 0, setCmd(t, "a", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	contributors, err := env.svc.ListContributors(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Len(t, contributors, 1)
	assert.Equal(t, "bob", contributors[0].Author)
}

// Scenario: two appends race on the same base version; exactly one wins.
func TestAppendCommand_Concurrent(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)
	addCollaborator(t, env.svc, d.ID, bob)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      []int64
		conflicts int
	)
	for _, who := range []auth.Identity{alice, bob} {
		wg.Add(1)
		go func(who auth.Identity) {
			defer wg.Done()
			v, err := env.svc.AppendCommand(ctx, who, d.ID, 0, setCmd(t, "info.title", who.Name))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins = append(wins, v)
				return
			}
			if errors.Is(err, apierrors.ErrVersionConflict) {
				conflicts++
			}
		}(who)
	}
	wg.Wait()

	assert.Equal(t, []int64{1}, wins)
	assert.Equal(t, 1, conflicts)
}

func TestEditDesign_Handshake(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)
	_, err = env.svc.AppendCommand(ctx, alice, d.ID, 0, setCmd(t, "info.title", "Pets"))
	require.NoError(t, err)

	h, err := env.svc.EditDesign(ctx, alice, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.ContentVersion)
	assert.NotEmpty(t, h.SessionID)
	assert.Equal(t, "Pets", gjson.Get(h.Content, "info.title").String())

	sess, err := env.svc.Sessions().ParseToken(h.Token)
	require.NoError(t, err)
	assert.Equal(t, d.ID, sess.DesignID)
	assert.Equal(t, "alice", sess.User)
	assert.Equal(t, int64(1), sess.BaseVersion)

	_, err = env.svc.EditDesign(ctx, mallory, d.ID)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
}

func TestRebase(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)
	addCollaborator(t, env.svc, d.ID, bob)

	for i, title := range []string{"A", "B"} {
		_, err := env.svc.AppendCommand(ctx, bob, d.ID, int64(i), setCmd(t, "info.title", title))
		require.NoError(t, err)
	}

	_, err = env.svc.Rebase(ctx, bob, d.ID)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)

	v, err := env.svc.Rebase(ctx, alice, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	c, err := env.store.GetLatestSnapshot(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.BaseVersion)
	assert.Empty(t, c.Commands)
	assert.Equal(t, "B", gjson.Get(c.Document, "info.title").String())

	next, err := env.svc.AppendCommand(ctx, bob, d.ID, 2, setCmd(t, "info.title", "C"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)
}

func TestImportDesign(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	yamlDoc := "openapi: 3.0.2\ninfo:\n  title: Imported Pets\n  description: From YAML\ntags:\n  - name: pets\n  - name: store\n"
	d, err := env.svc.ImportDesign(ctx, alice, ImportDesign{Data: base64.StdEncoding.EncodeToString([]byte(yamlDoc))})
	require.NoError(t, err)
	assert.Equal(t, "Imported Pets", d.Name)
	assert.Equal(t, "From YAML", d.Description)
	assert.Equal(t, []string{"pets", "store"}, []string(d.Tags))

	doc, err := env.svc.GetContent(ctx, alice, d.ID, format.JSON)
	require.NoError(t, err)
	assert.Equal(t, "3.0.2", gjson.Get(doc, "openapi").String())

	env.mock.Put("mock://repo/apis/untitled.json", `{"swagger":"2.0"}`)
	d, err = env.svc.ImportDesign(ctx, alice, ImportDesign{URL: "mock://repo/apis/untitled.json"})
	require.NoError(t, err)
	assert.Equal(t, "untitled.json", d.Name)

	_, err = env.svc.ImportDesign(ctx, alice, ImportDesign{URL: "mock://repo/missing.json"})
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	_, err = env.svc.ImportDesign(ctx, alice, ImportDesign{Data: "%%%"})
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	_, err = env.svc.ImportDesign(ctx, alice, ImportDesign{URL: "ftp://example.com/api.json"})
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	_, err = env.svc.ImportDesign(ctx, alice, ImportDesign{})
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)
}

func TestDeleteDesign(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)
	addCollaborator(t, env.svc, d.ID, bob)

	err = env.svc.DeleteDesign(ctx, bob, d.ID)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)

	list, err := env.svc.ListDesigns(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, env.svc.DeleteDesign(ctx, alice, d.ID))
	_, err = env.svc.GetDesign(ctx, alice, d.ID)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	list, err = env.svc.ListDesigns(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// Scenario: a non-owner cannot invite, and no invitation is created.
func TestCreateInvitation_NonOwner(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	_, err = env.svc.CreateInvitation(ctx, mallory, d.ID, collab.RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)

	addCollaborator(t, env.svc, d.ID, bob)
	before, err := env.svc.ListInvitations(ctx, alice, d.ID)
	require.NoError(t, err)

	_, err = env.svc.CreateInvitation(ctx, bob, d.ID, collab.RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)

	after, err := env.svc.ListInvitations(ctx, alice, d.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// Scenario: an accepted invitation makes the user a collaborator once.
func TestInvitation_AcceptOnce(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	inv, err := env.svc.CreateInvitation(ctx, alice, d.ID, collab.RoleUnspecified)
	require.NoError(t, err)
	assert.Equal(t, "pending", inv.Status)
	assert.Equal(t, "Alice", inv.CreatedByName)

	accepted, err := env.svc.AcceptInvitation(ctx, bob, d.ID, inv.InviteID)
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)

	perms, err := env.svc.ListCollaborators(ctx, alice, d.ID)
	require.NoError(t, err)
	roles := map[string]string{}
	for _, p := range perms {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, "owner", roles["alice"])
	assert.Equal(t, "collaborator", roles["bob"])

	_, err = env.svc.AcceptInvitation(ctx, bob, d.ID, inv.InviteID)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	inv2, err := env.svc.CreateInvitation(ctx, alice, d.ID, collab.RoleCollaborator)
	require.NoError(t, err)
	require.NoError(t, env.svc.RejectInvitation(ctx, mallory, d.ID, inv2.InviteID))
	err = env.svc.RejectInvitation(ctx, mallory, d.ID, inv2.InviteID)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
}

func TestCollaborators(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)
	addCollaborator(t, env.svc, d.ID, bob)

	err = env.svc.UpdateCollaborator(ctx, bob, d.ID, "alice", collab.RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)
	err = env.svc.DeleteCollaborator(ctx, bob, d.ID, "alice")
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)

	require.NoError(t, env.svc.DeleteCollaborator(ctx, alice, d.ID, "bob"))
	_, err = env.svc.GetDesign(ctx, bob, d.ID)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
}

// Scenario: ownership cannot be handed out, so a design keeps exactly one owner.
func TestCollaborators_SingleOwner(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	_, err = env.svc.CreateInvitation(ctx, alice, d.ID, collab.RoleOwner)
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	addCollaborator(t, env.svc, d.ID, bob)
	addCollaborator(t, env.svc, d.ID, mallory)

	err = env.svc.UpdateCollaborator(ctx, alice, d.ID, "mallory", collab.RoleOwner)
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	perms, err := env.svc.ListCollaborators(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Len(t, perms, 3)
	var owners []string
	for _, p := range perms {
		if p.Role == collab.RoleOwner.String() {
			owners = append(owners, p.UserID)
		}
	}
	assert.Equal(t, []string{"alice"}, owners)

	_, err = env.svc.CreateInvitation(ctx, bob, d.ID, collab.RoleCollaborator)
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)
	err = env.svc.DeleteCollaborator(ctx, bob, d.ID, "mallory")
	assert.ErrorIs(t, err, apierrors.ErrAccessDenied)
}

func TestPublishDesign(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	pub, err := env.svc.PublishDesign(ctx, alice, d.ID, map[string]interface{}{
		"type":           "mock",
		"url":            "mock://repo/petstore.yaml",
		"format":         "YAML",
		"commit_message": "initial publish",
		"branch":         "main",
	})
	require.NoError(t, err)
	require.NotNil(t, pub)
	assert.Equal(t, "yaml", pub.Format)
	assert.Equal(t, "initial publish", pub.CommitMessage)
	assert.Equal(t, "main", pub.Target["branch"])

	_, err = env.svc.AppendCommand(ctx, alice, d.ID, 0, setCmd(t, "info.title", "Pets"))
	require.NoError(t, err)
	_, err = env.svc.PublishDesign(ctx, alice, d.ID, map[string]interface{}{
		"type": "mock",
		"url":  "mock://repo/petstore.yaml",
	})
	require.NoError(t, err)

	writes := env.mock.Writes()
	require.Len(t, writes, 2)
	assert.False(t, writes[0].Update)
	assert.Contains(t, writes[0].Content, "title: Pet Store")
	assert.True(t, writes[1].Update)
	assert.Equal(t, "Pets", gjson.Get(writes[1].Content, "info.title").String())

	pubs, err := env.svc.ListPublications(ctx, alice, d.ID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, pubs, 2)

	start, end := 5, 1
	_, err = env.svc.ListPublications(ctx, alice, d.ID, &start, &end)
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)
}

func TestPublishDesign_Failures(t *testing.T) {
	ctx := context.Background()
	env := setupService(t)

	d, err := env.svc.CreateDesign(ctx, alice, NewDesign{Name: "Pet Store"})
	require.NoError(t, err)

	target := map[string]interface{}{"type": "mock", "url": "mock://repo/a.json"}

	_, err = env.svc.PublishDesign(ctx, mallory, d.ID, target)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)

	_, err = env.svc.PublishDesign(ctx, alice, d.ID, map[string]interface{}{"type": "git", "url": "x"})
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	_, err = env.svc.PublishDesign(ctx, alice, d.ID, map[string]interface{}{"type": "mock"})
	assert.ErrorIs(t, err, apierrors.ErrInvalidInput)

	env.mock.FailWrites = errors.New("repository offline")
	_, err = env.svc.PublishDesign(ctx, alice, d.ID, target)
	assert.ErrorIs(t, err, apierrors.ErrStorage)

	pubs, err := env.svc.ListPublications(ctx, alice, d.ID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, pubs, "failed publishes are not recorded")
}
