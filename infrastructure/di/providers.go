package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/catalog"
	"github.com/jclararobles/AppListVideos/application/lists"
	"github.com/jclararobles/AppListVideos/application/livesync"
	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/domain/core/thumbnail"
	"github.com/jclararobles/AppListVideos/infrastructure/config"
	"github.com/jclararobles/AppListVideos/infrastructure/identity"
	"github.com/jclararobles/AppListVideos/infrastructure/messaging/eventbridge"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/dynamodb"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/memory"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/postgres"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/resilient"
	"github.com/jclararobles/AppListVideos/interfaces/http/rest"
	"github.com/jclararobles/AppListVideos/interfaces/websocket"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

// Logging pairs the process logger with its adjustable level
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel
}

// ProvideLogging creates the process logger
func ProvideLogging(cfg *config.Config) (*Logging, func(), error) {
	logger, level, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = logger.Sync()
	}
	return &Logging{Logger: logger, Level: level}, cleanup, nil
}

// ProvideLogger unwraps the logger
func ProvideLogger(l *Logging) *zap.Logger {
	return l.Logger
}

// ProvideConfigWatcher reloads the config file and applies log level
// changes without a restart.
func ProvideConfigWatcher(cfg *config.Config, l *Logging) (*config.Watcher, func(), error) {
	w, err := config.NewWatcher(cfg, l.Logger)
	if err != nil {
		return nil, nil, err
	}
	config.ApplyLogLevel(w, l.Level)
	return w, w.Stop, nil
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	namespace := strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(cfg.ServiceName)
	return observability.NewCollector(namespace)
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Store.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client. DYNAMODB_ENDPOINT points
// it at DynamoDB Local.
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.Store.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Store.DynamoDBEndpoint)
		}
	})
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideRemoteStore selects the configured backend and wraps it with the
// retry and circuit breaker decorator.
func ProvideRemoteStore(
	cfg *config.Config,
	client *awsdynamodb.Client,
	logger *zap.Logger,
	metrics *observability.Collector,
) (ports.RemoteStore, func(), error) {
	var (
		store   ports.RemoteStore
		cleanup = func() {}
	)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		store = memory.NewStore(logger)
	case config.BackendDynamoDB:
		store = dynamodb.NewStore(client, dynamodb.Options{
			TableName:    cfg.Store.DynamoDBTable,
			PollInterval: cfg.Store.PollInterval,
		}, logger)
	case config.BackendPostgres:
		pg, err := postgres.Open(cfg.Store.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		store = pg
		cleanup = func() {
			if err := pg.Close(); err != nil {
				logger.Warn("Failed to close postgres store", zap.Error(err))
			}
		}
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	logger.Info("Remote store selected",
		zap.String("backend", cfg.Store.Backend),
		zap.Bool("resilience", cfg.Resilience.Enabled),
	)

	if !cfg.Resilience.Enabled {
		return store, cleanup, nil
	}
	return resilient.New(store, resilient.Config{
		Name:        cfg.Store.Backend,
		MaxRetries:  uint(cfg.Resilience.MaxRetries),
		RetryDelay:  cfg.Resilience.RetryDelay,
		MaxFailures: uint32(cfg.Resilience.BreakerMaxFailures),
		OpenTimeout: cfg.Resilience.BreakerTimeout,
	}, logger, metrics), cleanup, nil
}

// ProvideEventPublisher publishes domain events to EventBridge, or drops
// them when no bus is configured.
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		logger.Debug("No event bus configured, domain events are not published")
		return eventbridge.NoopPublisher{}
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideSession creates the fallback identity used when a request carries
// none, signed in as the dev identity if one is configured.
func ProvideSession(cfg *config.Config) *identity.Session {
	return identity.NewSession(cfg.Auth.DevIdentity)
}

// ProvideIdentityProvider exposes the session as the managers' identity
// source. A request identity always wins over the session's.
func ProvideIdentityProvider(session *identity.Session) ports.IdentityProvider {
	return session
}

// ProvideJWTValidator creates the bearer token validator. Without key
// material it returns nil, which puts the API in dev identity mode; config
// validation rejects that in production.
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*identity.JWTValidator, error) {
	if cfg.Auth.JWTSecret == "" && cfg.Auth.JWTPublicKey == "" {
		logger.Warn("No JWT key configured, requests are attributed to the X-User-ID header")
		return nil, nil
	}
	return identity.NewJWTValidator(identity.JWTConfig{
		SigningMethod: cfg.Auth.SigningMethod,
		PublicKey:     cfg.Auth.JWTPublicKey,
		SecretKey:     cfg.Auth.JWTSecret,
		Issuer:        cfg.Auth.JWTIssuer,
		Audience:      cfg.Auth.JWTAudience,
	})
}

// ProvideCatalogManager creates the video catalog manager
func ProvideCatalogManager(
	store ports.RemoteStore,
	ids ports.IdentityProvider,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	metrics *observability.Collector,
	cfg *config.Config,
) *catalog.Manager {
	opts := []catalog.Option{
		catalog.WithResolver(thumbnail.NewResolver(cfg.Sync.InstagramPlaceholder)),
	}
	if cfg.Sync.StrictFavoriteToggle {
		opts = append(opts, catalog.WithStrictFavoriteToggle())
	}
	return catalog.NewManager(store, ids, publisher, logger, metrics, opts...)
}

// ProvideListManager creates the list manager
func ProvideListManager(
	store ports.RemoteStore,
	ids ports.IdentityProvider,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	metrics *observability.Collector,
) *lists.Manager {
	return lists.NewManager(store, ids, publisher, logger, metrics)
}

// ProvideSubscriber creates the live sync subscriber. Signing the session
// out or switching users drops the previous user's subscriptions and cache.
func ProvideSubscriber(
	store ports.RemoteStore,
	ids ports.IdentityProvider,
	session *identity.Session,
	logger *zap.Logger,
	metrics *observability.Collector,
) (*livesync.Subscriber, func()) {
	subscriber := livesync.NewSubscriber(store, ids, logger, metrics)
	session.OnChange(func(previous, next string) {
		if previous != "" {
			subscriber.ReleaseOwner(previous)
		}
	})
	return subscriber, subscriber.Close
}

// ProvideWebSocketServer creates the live sync websocket endpoint
func ProvideWebSocketServer(subscriber *livesync.Subscriber, cfg *config.Config, logger *zap.Logger) (*websocket.Server, func()) {
	wsConfig := websocket.DefaultServerConfig()
	wsConfig.CheckOrigin = websocket.AllowOrigins(cfg.AllowedOrigins)
	server := websocket.NewServer(subscriber, wsConfig, logger)
	return server, server.Close
}

// ProvideRouterOptions maps configuration onto router options
func ProvideRouterOptions(cfg *config.Config) rest.Options {
	return rest.Options{
		EnableCORS:     cfg.EnableCORS,
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.EnableMetrics,
		DevIdentity:    cfg.Auth.DevIdentity,
	}
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	catalogManager *catalog.Manager,
	listManager *lists.Manager,
	subscriber *livesync.Subscriber,
	live *websocket.Server,
	validator *identity.JWTValidator,
	metrics *observability.Collector,
	logger *zap.Logger,
	opts rest.Options,
) *rest.Router {
	return rest.NewRouter(catalogManager, listManager, subscriber, live, validator, metrics, logger, opts)
}
