package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/catalog"
	"github.com/jclararobles/AppListVideos/application/livesync"
	"github.com/jclararobles/AppListVideos/infrastructure/identity"
	"github.com/jclararobles/AppListVideos/infrastructure/messaging/eventbridge"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/memory"
	"github.com/jclararobles/AppListVideos/interfaces/http/dto"
)

type fixture struct {
	srv        *httptest.Server
	ws         *Server
	subscriber *livesync.Subscriber
	catalog    *catalog.Manager
}

func newFixture(t *testing.T, cfg *ServerConfig) *fixture {
	t.Helper()
	store := memory.NewStore(zap.NewNop())
	ids := identity.NewContextProvider()
	subscriber := livesync.NewSubscriber(store, ids, zap.NewNop(), nil)
	ws := NewServer(subscriber, cfg, zap.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := r.URL.Query().Get("user"); user != "" {
				r = r.WithContext(identity.WithIdentity(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/ws/{kind}/{screen}", ws.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ws.Close()
		subscriber.Close()
		srv.Close()
	})
	return &fixture{
		srv:        srv,
		ws:         ws,
		subscriber: subscriber,
		catalog:    catalog.NewManager(store, ids, eventbridge.NoopPublisher{}, zap.NewNop(), nil),
	}
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readSnapshot(t *testing.T, conn *websocket.Conn) dto.SnapshotResponse {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, TypeSnapshot, msg.Type, string(msg.Data))
	var snap dto.SnapshotResponse
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	return snap
}

func TestHandleWebSocket_StreamsSnapshots(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.dial(t, "/ws/videos/home?user=u1")

	// Connection message first
	msg := read(t, conn)
	require.Equal(t, TypeConnectionEstablished, msg.Type)
	var hello map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &hello))
	assert.Equal(t, "u1", hello["userId"])
	assert.Equal(t, "videos", hello["kind"])
	assert.Equal(t, "home", hello["screen"])

	// Then the initial, empty result set
	snap := readSnapshot(t, conn)
	assert.Equal(t, "videos", snap.Kind)
	assert.Equal(t, "home", snap.Screen)
	assert.Empty(t, snap.Videos)

	// A write by the same user is pushed
	_, err := f.catalog.Add(identity.WithIdentity(context.Background(), "u1"), catalog.AddVideoInput{
		Title:       "Clip",
		Description: "d",
		URL:         "https://youtu.be/dQw4w9WgXcQ",
		Platform:    "YouTube",
	})
	require.NoError(t, err)

	snap = readSnapshot(t, conn)
	require.Len(t, snap.Videos, 1)
	assert.Equal(t, "Clip", snap.Videos[0].Title)
	assert.Greater(t, snap.Version, uint64(1))

	// refresh re-delivers the same set with a new version
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "refresh"}))
	refreshed := readSnapshot(t, conn)
	assert.Len(t, refreshed.Videos, 1)
	assert.Greater(t, refreshed.Version, snap.Version)
}

func TestHandleWebSocket_CloseReleasesLease(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.dial(t, "/ws/lists/library?user=u1")
	read(t, conn)
	readSnapshot(t, conn)

	key := livesync.Key{Kind: livesync.KindLists, OwnerID: "u1", Screen: "library"}
	require.True(t, f.subscriber.Active(key))
	assert.Equal(t, 1, f.ws.GetConnectionCount("u1"))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool {
		return !f.subscriber.Active(key) && f.ws.GetConnectionCount("u1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWebSocket_Rejections(t *testing.T) {
	f := newFixture(t, &ServerConfig{ReadBufferSize: 1024, WriteBufferSize: 1024, MaxConnectionsPerUser: 1})

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "no identity", path: "/ws/videos/home", status: http.StatusUnauthorized},
		{name: "unknown kind", path: "/ws/photos/home?user=u1", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + tt.path
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	t.Run("connection limit", func(t *testing.T) {
		conn := f.dial(t, "/ws/videos/home?user=u2")
		read(t, conn)

		url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/videos/other?user=u2"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	})
}

func TestHandleWebSocket_SecondConnectionSupersedesFirst(t *testing.T) {
	f := newFixture(t, nil)
	first := f.dial(t, "/ws/videos/home?user=u1")
	read(t, first)
	readSnapshot(t, first)

	second := f.dial(t, "/ws/videos/home?user=u1")
	read(t, second)
	readSnapshot(t, second)

	// The first connection lost its lease and is closed by the server
	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := first.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
	}
	assert.True(t, f.subscriber.Active(livesync.Key{Kind: livesync.KindVideos, OwnerID: "u1", Screen: "home"}))
}

func TestAllowOrigins(t *testing.T) {
	check := AllowOrigins([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws/videos/home", nil)
	assert.True(t, check(req), "same-origin requests carry no Origin header")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, AllowOrigins([]string{"*"})(req))
}
