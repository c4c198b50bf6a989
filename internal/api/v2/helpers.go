package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lordrhodos/apicurio-studio/internal/server"
	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
)

// maxRequestBytes bounds request bodies; imported designs arrive inline.
const maxRequestBytes = 16 << 20

// decodeRequest decodes the JSON body of r into v.
func decodeRequest(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return err
	}
	return nil
}

// respondJSON writes v as the JSON response body with status code.
func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// respondError logs err and writes the status its kind maps to. Storage
// failures are reported without detail.
func respondError(
	w http.ResponseWriter, srv server.Server, msg string, err error, logArgs []any,
) {
	code := apierrors.HTTPStatus(err)
	args := append([]any{"error", err, "status", code}, logArgs...)
	if code >= http.StatusInternalServerError {
		srv.Logger.Error(msg, args...)
		http.Error(w, msg, code)
		return
	}
	srv.Logger.Warn(msg, args...)

	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) && apiErr.Msg != "" {
		http.Error(w, fmt.Sprintf("%s: %s", msg, apiErr.Msg), code)
		return
	}
	http.Error(w, fmt.Sprintf("%s: %s", msg, err), code)
}

// splitPath returns the non-empty segments of path after prefix.
func splitPath(path, prefix string) []string {
	path = strings.TrimPrefix(path, prefix)
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// parseDesignID parses a design or invitation ID path segment.
func parseDesignID(s string) (designid.ID, error) {
	id, err := designid.Parse(s)
	if err != nil {
		return "", apierrors.E("parseDesignID", apierrors.ErrInvalidInput, "invalid ID", err)
	}
	return id, nil
}

// parseRange reads the optional start and end query parameters.
func parseRange(r *http.Request) (start, end *int, err error) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  **int
	}{
		{"start", &start},
		{"end", &end},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return nil, nil, apierrors.E("parseRange", apierrors.ErrInvalidInput,
				fmt.Sprintf("%s must be an integer", p.name), convErr)
		}
		*p.dst = &v
	}
	return start, end, nil
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
