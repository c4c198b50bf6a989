package rawurl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordrhodos/apicurio-studio/pkg/connector"
)

func newTestConnector() *Connector {
	c := New(&Config{MaxRetries: 2}, nil)
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func TestConnector_GetResourceContent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flaky.yaml":
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("ETag", `"abc"`)
			w.Write([]byte("swagger: \"2.0\"\n"))
		case "/down.yaml":
			w.WriteHeader(http.StatusInternalServerError)
		case "/forbidden.yaml":
			w.WriteHeader(http.StatusForbidden)
		case "/plain.json":
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestConnector()
	ctx := context.Background()

	t.Run("retries server errors", func(t *testing.T) {
		got, err := c.GetResourceContent(ctx, srv.URL+"/flaky.yaml")
		require.NoError(t, err)
		assert.Equal(t, "swagger: \"2.0\"\n", got.Content)
		assert.Equal(t, `"abc"`, got.Revision)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		_, err := c.GetResourceContent(ctx, srv.URL+"/down.yaml")
		assert.ErrorContains(t, err, "unexpected status 500")
	})

	t.Run("not found is permanent", func(t *testing.T) {
		_, err := c.GetResourceContent(ctx, srv.URL+"/missing.yaml")
		assert.ErrorIs(t, err, connector.ErrResourceNotFound)
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		_, err := c.GetResourceContent(ctx, srv.URL+"/forbidden.yaml")
		assert.ErrorContains(t, err, "unexpected status 403")
	})

	t.Run("revision falls back to a content hash", func(t *testing.T) {
		got, err := c.GetResourceContent(ctx, srv.URL+"/plain.json")
		require.NoError(t, err)
		assert.Equal(t, connector.Revision(`{}`), got.Revision)
	})

	t.Run("validate", func(t *testing.T) {
		info, err := c.ValidateResourceExists(ctx, srv.URL+"/plain.json")
		require.NoError(t, err)
		assert.Equal(t, "plain.json", info.Name)
	})
}

func TestConnector_ReadOnly(t *testing.T) {
	c := newTestConnector()
	assert.ErrorIs(t, c.CreateResourceContent(context.Background(), "https://example.com/a", "", ""), connector.ErrUnsupported)
	assert.ErrorIs(t, c.UpdateResourceContent(context.Background(), "https://example.com/a", "", nil, ""), connector.ErrUnsupported)
}
