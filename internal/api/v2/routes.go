package api

import (
	"net/http"

	"github.com/lordrhodos/apicurio-studio/internal/server"
)

// HealthHandler reports that the server is up and the database reachable.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := srv.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			srv.Logger.Error("health check failed", "error", err)
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Routes returns the handler for every API endpoint.
func Routes(srv server.Server) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", HealthHandler(srv))

	designs := AuthnMiddleware(srv, DesignsHandler(srv))
	mux.Handle(designsPath, designs)
	mux.Handle(designsPath+"/", designs)

	// Editing sockets authenticate with their session token.
	mux.Handle(editingPath+"/", EditingHandler(srv))

	return mux
}
