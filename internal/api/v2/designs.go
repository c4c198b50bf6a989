package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/araddon/dateparse"

	"github.com/lordrhodos/apicurio-studio/internal/server"
	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/auth"
	"github.com/lordrhodos/apicurio-studio/pkg/collab"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/designs"
	"github.com/lordrhodos/apicurio-studio/pkg/format"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
)

const designsPath = "/api/v2/designs"

// Headers returned with an editing session handshake.
const (
	EditingSessionHeader = "X-Designhub-Editing-Session"
	ContentVersionHeader = "X-Designhub-Content-Version"
)

// AppendCommandRequest appends one command to a design's log.
type AppendCommandRequest struct {
	ExpectedVersion int64  `json:"expectedVersion"`
	Command         string `json:"command"`
}

// AppendCommandResponse carries the new content version.
type AppendCommandResponse struct {
	Version int64 `json:"version"`
}

// RoleRequest names a collaboration role.
type RoleRequest struct {
	Role string `json:"role"`
}

// DesignsHandler serves the design API.
// Routes:
//
//	GET    /api/v2/designs                                  - List the caller's designs
//	POST   /api/v2/designs                                  - Create a design
//	POST   /api/v2/designs/import                           - Import a design
//	GET    /api/v2/designs/:id                              - Get a design
//	DELETE /api/v2/designs/:id                              - Delete a design
//	GET    /api/v2/designs/:id/content?format=json|yaml     - Materialized content
//	GET    /api/v2/designs/:id/session                      - Open an editing session
//	POST   /api/v2/designs/:id/commands                     - Append a command
//	POST   /api/v2/designs/:id/rebase                       - Fold the log into a snapshot
//	GET    /api/v2/designs/:id/activity?start&end&since     - Command log
//	GET    /api/v2/designs/:id/contributors                 - Distinct command authors
//	GET    /api/v2/designs/:id/publications?start&end       - Publication records
//	POST   /api/v2/designs/:id/publications                 - Publish a design
//	GET    /api/v2/designs/:id/invitations                  - List invitations
//	POST   /api/v2/designs/:id/invitations                  - Create an invitation
//	GET    /api/v2/designs/:id/invitations/:inviteID        - Get an invitation
//	PUT    /api/v2/designs/:id/invitations/:inviteID        - Accept an invitation
//	DELETE /api/v2/designs/:id/invitations/:inviteID        - Reject an invitation
//	GET    /api/v2/designs/:id/collaborators                - List collaborators
//	PUT    /api/v2/designs/:id/collaborators/:userID        - Change a collaborator's role
//	DELETE /api/v2/designs/:id/collaborators/:userID        - Remove a collaborator
func DesignsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		caller, ok := identity(w, r, srv, logArgs)
		if !ok {
			return
		}
		logArgs = append(logArgs, "user", caller.Login)

		parts := splitPath(r.URL.Path, designsPath)

		switch {
		case len(parts) == 0:
			switch r.Method {
			case http.MethodGet:
				list, err := srv.Designs.ListDesigns(r.Context(), caller)
				if err != nil {
					respondError(w, srv, "Error listing designs", err, logArgs)
					return
				}
				if list == nil {
					list = []models.Design{}
				}
				respondJSON(w, http.StatusOK, list)
			case http.MethodPost:
				createDesign(w, r, srv, caller, logArgs)
			default:
				methodNotAllowed(w)
			}
			return

		case len(parts) == 1 && parts[0] == "import":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			importDesign(w, r, srv, caller, logArgs)
			return
		}

		id, err := parseDesignID(parts[0])
		if err != nil {
			respondError(w, srv, "Bad request", err, logArgs)
			return
		}
		logArgs = append(logArgs, "design_id", id)

		if len(parts) == 1 {
			switch r.Method {
			case http.MethodGet:
				d, err := srv.Designs.GetDesign(r.Context(), caller, id)
				if err != nil {
					respondError(w, srv, "Error getting design", err, logArgs)
					return
				}
				respondJSON(w, http.StatusOK, d)
			case http.MethodDelete:
				if err := srv.Designs.DeleteDesign(r.Context(), caller, id); err != nil {
					respondError(w, srv, "Error deleting design", err, logArgs)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			default:
				methodNotAllowed(w)
			}
			return
		}

		switch parts[1] {
		case "content":
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			getContent(w, r, srv, caller, id, logArgs)

		case "session":
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			editDesign(w, r, srv, caller, id, logArgs)

		case "commands":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			appendCommand(w, r, srv, caller, id, logArgs)

		case "rebase":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			v, err := srv.Designs.Rebase(r.Context(), caller, id)
			if err != nil {
				respondError(w, srv, "Error rebasing design", err, logArgs)
				return
			}
			respondJSON(w, http.StatusOK, AppendCommandResponse{Version: v})

		case "activity":
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			listActivity(w, r, srv, caller, id, logArgs)

		case "contributors":
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			list, err := srv.Designs.ListContributors(r.Context(), caller, id)
			if err != nil {
				respondError(w, srv, "Error listing contributors", err, logArgs)
				return
			}
			if list == nil {
				list = []models.Contributor{}
			}
			respondJSON(w, http.StatusOK, list)

		case "publications":
			publications(w, r, srv, caller, id, logArgs)

		case "invitations":
			invitations(w, r, srv, caller, id, parts[2:], logArgs)

		case "collaborators":
			collaborators(w, r, srv, caller, id, parts[2:], logArgs)

		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})
}

func createDesign(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, logArgs []any) {
	var req designs.NewDesign
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, srv, "Bad request",
			apierrors.E("createDesign", apierrors.ErrInvalidInput, "", err), logArgs)
		return
	}
	d, err := srv.Designs.CreateDesign(r.Context(), caller, req)
	if err != nil {
		respondError(w, srv, "Error creating design", err, logArgs)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func importDesign(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, logArgs []any) {
	var req designs.ImportDesign
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, srv, "Bad request",
			apierrors.E("importDesign", apierrors.ErrInvalidInput, "", err), logArgs)
		return
	}
	d, err := srv.Designs.ImportDesign(r.Context(), caller, req)
	if err != nil {
		respondError(w, srv, "Error importing design", err, logArgs)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func getContent(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, id designid.ID, logArgs []any) {
	f, err := format.Parse(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, srv, "Bad request",
			apierrors.E("getContent", apierrors.ErrInvalidInput, err.Error(), nil), logArgs)
		return
	}
	content, err := srv.Designs.GetContent(r.Context(), caller, id, f)
	if err != nil {
		respondError(w, srv, "Error getting design content", err, logArgs)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

func editDesign(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, id designid.ID, logArgs []any) {
	h, err := srv.Designs.EditDesign(r.Context(), caller, id)
	if err != nil {
		respondError(w, srv, "Error opening editing session", err, logArgs)
		return
	}
	w.Header().Set(EditingSessionHeader, h.SessionID)
	w.Header().Set(ContentVersionHeader, strconv.FormatInt(h.ContentVersion, 10))
	respondJSON(w, http.StatusOK, h)
}

func appendCommand(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, id designid.ID, logArgs []any) {
	var req AppendCommandRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, srv, "Bad request",
			apierrors.E("appendCommand", apierrors.ErrInvalidInput, "", err), logArgs)
		return
	}
	v, err := srv.Designs.AppendCommand(r.Context(), caller, id, req.ExpectedVersion, req.Command)
	if err != nil {
		respondError(w, srv, "Error appending command", err,
			append(logArgs, "expected_version", req.ExpectedVersion))
		return
	}
	respondJSON(w, http.StatusOK, AppendCommandResponse{Version: v})
}

func listActivity(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, id designid.ID, logArgs []any) {
	start, end, err := parseRange(r)
	if err != nil {
		respondError(w, srv, "Bad request", err, logArgs)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		if since, err = dateparse.ParseAny(raw); err != nil {
			respondError(w, srv, "Bad request",
				apierrors.E("listActivity", apierrors.ErrInvalidInput, "since is not a date", err), logArgs)
			return
		}
	}

	cmds, err := srv.Designs.ListActivity(r.Context(), caller, id, start, end)
	if err != nil {
		respondError(w, srv, "Error listing activity", err, logArgs)
		return
	}

	// Entries are newest first.
	out := make([]models.DesignCommand, 0, len(cmds))
	for _, c := range cmds {
		if !since.IsZero() && c.CreatedAt.Before(since) {
			break
		}
		out = append(out, c)
	}
	respondJSON(w, http.StatusOK, out)
}

func publications(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, id designid.ID, logArgs []any) {
	switch r.Method {
	case http.MethodGet:
		start, end, err := parseRange(r)
		if err != nil {
			respondError(w, srv, "Bad request", err, logArgs)
			return
		}
		list, err := srv.Designs.ListPublications(r.Context(), caller, id, start, end)
		if err != nil {
			respondError(w, srv, "Error listing publications", err, logArgs)
			return
		}
		if list == nil {
			list = []models.Publication{}
		}
		respondJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var target map[string]any
		if err := decodeRequest(r, &target); err != nil {
			respondError(w, srv, "Bad request",
				apierrors.E("publishDesign", apierrors.ErrInvalidInput, "", err), logArgs)
			return
		}
		pub, err := srv.Designs.PublishDesign(r.Context(), caller, id, target)
		if err != nil {
			respondError(w, srv, "Error publishing design", err, logArgs)
			return
		}
		if pub == nil {
			// Published, but the audit record was lost.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		respondJSON(w, http.StatusCreated, pub)

	default:
		methodNotAllowed(w)
	}
}

func invitations(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, id designid.ID, rest []string, logArgs []any) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			list, err := srv.Designs.ListInvitations(ctx, caller, id)
			if err != nil {
				respondError(w, srv, "Error listing invitations", err, logArgs)
				return
			}
			if list == nil {
				list = []models.Invitation{}
			}
			respondJSON(w, http.StatusOK, list)
		case http.MethodPost:
			var req RoleRequest
			if r.ContentLength != 0 {
				if err := decodeRequest(r, &req); err != nil {
					respondError(w, srv, "Bad request",
						apierrors.E("createInvitation", apierrors.ErrInvalidInput, "", err), logArgs)
					return
				}
			}
			role, err := parseOptionalRole(req.Role)
			if err != nil {
				respondError(w, srv, "Bad request", err, logArgs)
				return
			}
			inv, err := srv.Designs.CreateInvitation(ctx, caller, id, role)
			if err != nil {
				respondError(w, srv, "Error creating invitation", err, logArgs)
				return
			}
			respondJSON(w, http.StatusCreated, inv)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(rest) != 1 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	inviteID, err := parseDesignID(rest[0])
	if err != nil {
		respondError(w, srv, "Bad request", err, logArgs)
		return
	}
	logArgs = append(logArgs, "invite_id", inviteID)

	switch r.Method {
	case http.MethodGet:
		inv, err := srv.Designs.GetInvitation(ctx, id, inviteID)
		if err != nil {
			respondError(w, srv, "Error getting invitation", err, logArgs)
			return
		}
		respondJSON(w, http.StatusOK, inv)
	case http.MethodPut:
		inv, err := srv.Designs.AcceptInvitation(ctx, caller, id, inviteID)
		if err != nil {
			respondError(w, srv, "Error accepting invitation", err, logArgs)
			return
		}
		respondJSON(w, http.StatusOK, inv)
	case http.MethodDelete:
		if err := srv.Designs.RejectInvitation(ctx, caller, id, inviteID); err != nil {
			respondError(w, srv, "Error rejecting invitation", err, logArgs)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func collaborators(w http.ResponseWriter, r *http.Request, srv server.Server, caller auth.Identity, id designid.ID, rest []string, logArgs []any) {
	ctx := r.Context()

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		list, err := srv.Designs.ListCollaborators(ctx, caller, id)
		if err != nil {
			respondError(w, srv, "Error listing collaborators", err, logArgs)
			return
		}
		if list == nil {
			list = []models.Permission{}
		}
		respondJSON(w, http.StatusOK, list)
		return
	}

	if len(rest) != 1 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	userID := rest[0]
	logArgs = append(logArgs, "collaborator", userID)

	switch r.Method {
	case http.MethodPut:
		var req RoleRequest
		if err := decodeRequest(r, &req); err != nil {
			respondError(w, srv, "Bad request",
				apierrors.E("updateCollaborator", apierrors.ErrInvalidInput, "", err), logArgs)
			return
		}
		role, err := collab.ParseRole(req.Role)
		if err != nil {
			respondError(w, srv, "Bad request",
				apierrors.E("updateCollaborator", apierrors.ErrInvalidInput, err.Error(), nil), logArgs)
			return
		}
		if err := srv.Designs.UpdateCollaborator(ctx, caller, id, userID, role); err != nil {
			respondError(w, srv, "Error updating collaborator", err, logArgs)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := srv.Designs.DeleteCollaborator(ctx, caller, id, userID); err != nil {
			respondError(w, srv, "Error removing collaborator", err, logArgs)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func parseOptionalRole(s string) (collab.Role, error) {
	if s == "" {
		return collab.RoleUnspecified, nil
	}
	role, err := collab.ParseRole(s)
	if err != nil {
		return collab.RoleUnspecified, apierrors.E("parseRole", apierrors.ErrInvalidInput, err.Error(), nil)
	}
	return role, nil
}
