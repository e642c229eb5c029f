package di

import (
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/catalog"
	"github.com/jclararobles/AppListVideos/application/lists"
	"github.com/jclararobles/AppListVideos/application/livesync"
	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/infrastructure/config"
	"github.com/jclararobles/AppListVideos/infrastructure/identity"
	"github.com/jclararobles/AppListVideos/interfaces/http/rest"
	"github.com/jclararobles/AppListVideos/interfaces/websocket"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Watcher    *config.Watcher
	Metrics    *observability.Collector
	Store      ports.RemoteStore
	Publisher  ports.EventPublisher
	Session    *identity.Session
	Catalog    *catalog.Manager
	Lists      *lists.Manager
	Subscriber *livesync.Subscriber
	Live       *websocket.Server
	Router     *rest.Router
}
