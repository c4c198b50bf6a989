package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/lordrhodos/apicurio-studio/internal/server"
	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/auth"
	"github.com/lordrhodos/apicurio-studio/pkg/session"
)

const editingPath = "/api/v2/editing"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// EditingHandler upgrades a live editing connection. The client presents the
// token from its session handshake; commands it sends are appended to the
// design and broadcast to the other editors.
// Routes:
//
//	GET /api/v2/editing/:designID?token=... - Live editing socket
func EditingHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
		}

		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		parts := splitPath(r.URL.Path, editingPath)
		if len(parts) != 1 {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		id, err := parseDesignID(parts[0])
		if err != nil {
			respondError(w, srv, "Bad request", err, logArgs)
			return
		}
		logArgs = append(logArgs, "design_id", id)

		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		sess, err := srv.Designs.Sessions().ParseToken(token)
		if err != nil || sess.DesignID != id {
			srv.Logger.Warn("rejected editing session", append([]any{"error", err}, logArgs...)...)
			http.Error(w, "Invalid editing session", http.StatusUnauthorized)
			return
		}

		// Write access may have been revoked since the handshake.
		canWrite, err := srv.Designs.Registry().HasWritePermission(r.Context(), sess.User, id)
		if err != nil {
			respondError(w, srv, "Error checking permission", err, logArgs)
			return
		}
		if !canWrite {
			respondError(w, srv, "Error opening editing socket",
				apierrors.NotFound("EditingHandler", "design not found"), logArgs)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			srv.Logger.Error("error upgrading connection", append([]any{"error", err}, logArgs...)...)
			return
		}

		srv.Logger.Info("editing session connected",
			append([]any{"session_id", sess.ID, "user", sess.User}, logArgs...)...)

		ctx, cancel := context.WithCancel(context.Background())
		client := srv.Hub.Join(sess, conn)
		go client.WritePump(ctx)

		caller := auth.Identity{Login: sess.User}
		client.ReadLoop(func(msg session.Message) {
			handleEditingMessage(ctx, srv, client, caller, msg)
		})
		cancel()
	})
}

func handleEditingMessage(ctx context.Context, srv server.Server, c *session.Client, caller auth.Identity, msg session.Message) {
	sess := c.Session()

	if msg.Type != session.MessageCommand {
		c.Reply(session.Message{Type: session.MessageError, Error: "unsupported message type " + msg.Type})
		return
	}

	v, err := srv.Designs.AppendCommand(ctx, caller, sess.DesignID, msg.ExpectedVersion, string(msg.Command))
	switch {
	case err == nil:
		c.Reply(session.Message{Type: session.MessageAck, Version: v})
		srv.Hub.Broadcast(sess.DesignID, sess.ID, session.Message{
			Type:      session.MessageCommand,
			SessionID: sess.ID,
			User:      sess.User,
			Version:   v,
			Command:   msg.Command,
		})

	case errors.Is(err, apierrors.ErrVersionConflict):
		c.Reply(session.Message{
			Type:            session.MessageConflict,
			ExpectedVersion: msg.ExpectedVersion,
			Error:           "stale base version",
		})

	default:
		srv.Logger.Warn("error applying live command",
			"design_id", sess.DesignID,
			"session_id", sess.ID,
			"error", err,
		)
		reply := session.Message{Type: session.MessageError, Error: "command rejected"}
		if apierrors.HTTPStatus(err) < http.StatusInternalServerError {
			reply.Error = err.Error()
		}
		c.Reply(reply)
	}
}
