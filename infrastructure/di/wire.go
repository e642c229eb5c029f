//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/jclararobles/AppListVideos/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogging,
	ProvideLogger,
	ProvideConfigWatcher,
	ProvideMetrics,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideRemoteStore,
	ProvideEventPublisher,
	ProvideSession,
	ProvideIdentityProvider,
	ProvideJWTValidator,
	ProvideCatalogManager,
	ProvideListManager,
	ProvideSubscriber,
	ProvideWebSocketServer,
	ProvideRouterOptions,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The returned func
// releases everything in reverse order of construction.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
