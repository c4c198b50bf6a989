package api

import (
	"net/http"
	"strings"

	"github.com/lordrhodos/apicurio-studio/internal/server"
	"github.com/lordrhodos/apicurio-studio/pkg/auth"
)

// AuthnMiddleware trusts the identity asserted by the authenticating proxy
// in front of the server. The user login comes from the configured user
// header and the caller's bearer credential, if any, is kept as the
// identity secret so editing sessions can be bound to it.
//
// Usage:
//
//	handler := AuthnMiddleware(srv, DesignsHandler(srv))
func AuthnMiddleware(srv server.Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login := strings.TrimSpace(r.Header.Get(srv.Config.Server.UserHeader))
		if login == "" {
			srv.Logger.Warn("missing user identity header",
				"path", r.URL.Path,
				"method", r.Method,
				"header", srv.Config.Server.UserHeader,
			)
			http.Error(w, "No authorization information in request", http.StatusUnauthorized)
			return
		}

		id := auth.Identity{
			Login: login,
			Name:  strings.TrimSpace(r.Header.Get(srv.Config.Server.NameHeader)),
		}
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			id.Secret = strings.TrimPrefix(h, "Bearer ")
		}
		if id.Name == "" {
			id.Name = id.Login
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// identity returns the caller, writing a 401 when there is none.
func identity(w http.ResponseWriter, r *http.Request, srv server.Server, logArgs []any) (auth.Identity, bool) {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		srv.Logger.Error("identity not found in request context", logArgs...)
		http.Error(w, "No authorization information in request", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	return id, true
}
