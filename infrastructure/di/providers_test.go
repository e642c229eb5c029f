package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/livesync"
	"github.com/jclararobles/AppListVideos/infrastructure/config"
	"github.com/jclararobles/AppListVideos/infrastructure/identity"
	"github.com/jclararobles/AppListVideos/infrastructure/messaging/eventbridge"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/resilient"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Environment = "test"
	cfg.ServiceName = "app-list.videos"
	cfg.Auth.DevIdentity = "dev-user"
	cfg.EnableMetrics = true
	return cfg
}

func TestInitializeContainer_MemoryBackend(t *testing.T) {
	// Arrange
	cfg := testConfig()

	// Act
	container, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	// Assert
	assert.IsType(t, &resilient.Store{}, container.Store)
	assert.Equal(t, eventbridge.NoopPublisher{}, container.Publisher)

	srv := httptest.NewServer(container.Router.Setup())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/videos")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "dev identity applies without a JWT key")
}

func TestInitializeContainer_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "sqlite"

	_, _, err := InitializeContainer(context.Background(), cfg)

	assert.ErrorContains(t, err, "unknown store backend")
}

func TestSessionChangeReleasesSubscriptions(t *testing.T) {
	container, cleanup, err := InitializeContainer(context.Background(), testConfig())
	require.NoError(t, err)
	defer cleanup()

	lease, err := container.Subscriber.Acquire(context.Background(), livesync.KindVideos, "home", nil)
	require.NoError(t, err)
	key := lease.Key()
	assert.Equal(t, "dev-user", key.OwnerID)

	container.Session.SignIn("someone-else")

	select {
	case <-lease.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("lease was not released on identity change")
	}
	assert.False(t, container.Subscriber.Active(key))
	_, cached := container.Subscriber.Snapshot(key)
	assert.False(t, cached)
}

func TestProvideJWTValidator(t *testing.T) {
	cfg := testConfig()

	v, err := ProvideJWTValidator(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, v)

	cfg.Auth.JWTSecret = "secret"
	v, err = ProvideJWTValidator(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, v)

	token, err := identity.SignHS256("secret", "u1", cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, time.Minute)
	require.NoError(t, err)
	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	cfg.Auth.SigningMethod = "RS256"
	cfg.Auth.JWTPublicKey = "not a pem"
	_, err = ProvideJWTValidator(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestProvideEventPublisher(t *testing.T) {
	cfg := testConfig()
	client := awseventbridge.New(awseventbridge.Options{Region: "us-west-2"})

	assert.Equal(t, eventbridge.NoopPublisher{}, ProvideEventPublisher(client, cfg, zap.NewNop()))

	cfg.EventBusName = "videos"
	assert.IsType(t, &eventbridge.Publisher{}, ProvideEventPublisher(client, cfg, zap.NewNop()))
}

func TestProvideRemoteStore_WithoutResilience(t *testing.T) {
	cfg := testConfig()
	cfg.Resilience.Enabled = false

	store, cleanup, err := ProvideRemoteStore(cfg, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	defer cleanup()

	_, isResilient := store.(*resilient.Store)
	assert.False(t, isResilient)
}
