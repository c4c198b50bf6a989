package serve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordrhodos/apicurio-studio/internal/config"
	"github.com/lordrhodos/apicurio-studio/internal/server"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/local"
	"github.com/lordrhodos/apicurio-studio/pkg/connector/s3"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/session"
)

func TestNewConnectors(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()

	f, err := newConnectors(cfg, hclog.NewNullLogger())
	require.NoError(t, err)

	_, err = f.ForURL("https://example.com/petstore.json")
	assert.NoError(t, err)
	_, err = f.ForType("s3")
	assert.Error(t, err, "s3 is only registered when configured")

	cfg.Connectors.S3 = &s3.Config{Region: "us-east-1", Endpoint: "http://localhost:9000"}
	cfg.Connectors.Local = &local.Config{Root: t.TempDir()}
	cfg.SetDefaults()

	f, err = newConnectors(cfg, hclog.NewNullLogger())
	require.NoError(t, err)

	for _, typ := range []string{"s3", "local", "url"} {
		_, err := f.ForType(typ)
		assert.NoError(t, err, typ)
	}
	conn, err := f.ForURL("s3://designs/petstore.json")
	require.NoError(t, err)
	assert.Equal(t, "s3", conn.Type())
}

func TestNewHTTPServer_ShutdownClosesEditingSockets(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	hub := session.NewHub(hclog.NewNullLogger())
	coord, err := session.NewCoordinator([]byte("0123456789abcdef0123456789abcdef"), nil)
	require.NoError(t, err)
	designID := designid.New()

	upgrader := websocket.Upgrader{}
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := coord.ParseToken(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := hub.Join(s, conn)
		go c.WritePump(context.Background())
		c.ReadLoop(func(session.Message) {})
	}))
	defer ws.Close()

	s, err := coord.CreateSession(designID, "alice", "", 0)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ws.URL, "http")+"?token="+s.Token, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients(designID) == 1 }, 5*time.Second, 10*time.Millisecond)

	httpSrv := newHTTPServer("127.0.0.1:0", server.Server{Config: cfg, Hub: hub, Logger: hclog.NewNullLogger()})
	require.NoError(t, httpSrv.Shutdown(context.Background()))

	assert.Eventually(t, func() bool { return hub.Clients(designID) == 0 }, 5*time.Second, 10*time.Millisecond)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var m session.Message
		if err := conn.ReadJSON(&m); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure),
				"unexpected error: %v", err)
			break
		}
	}
}
