// Package rest exposes the catalog, list and live sync managers over HTTP.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/swaggo/swag"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/catalog"
	"github.com/jclararobles/AppListVideos/application/lists"
	"github.com/jclararobles/AppListVideos/application/livesync"
	apidocs "github.com/jclararobles/AppListVideos/docs/swagger"
	"github.com/jclararobles/AppListVideos/infrastructure/identity"
	"github.com/jclararobles/AppListVideos/interfaces/http/rest/handlers"
	"github.com/jclararobles/AppListVideos/interfaces/http/rest/middleware"
	"github.com/jclararobles/AppListVideos/interfaces/websocket"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

// Options toggles the optional parts of the router
type Options struct {
	EnableCORS     bool
	AllowedOrigins []string
	EnableMetrics  bool
	// DevIdentity is used when no JWT validator is configured
	DevIdentity string
}

// Router creates and configures the HTTP router
type Router struct {
	catalog    *catalog.Manager
	lists      *lists.Manager
	subscriber *livesync.Subscriber
	live       *websocket.Server
	validator  *identity.JWTValidator
	metrics    *observability.Collector
	logger     *zap.Logger
	opts       Options
}

// NewRouter creates a new router instance. validator may be nil outside
// production, in which case requests are attributed to the X-User-ID
// header or opts.DevIdentity.
func NewRouter(
	catalog *catalog.Manager,
	lists *lists.Manager,
	subscriber *livesync.Subscriber,
	live *websocket.Server,
	validator *identity.JWTValidator,
	metrics *observability.Collector,
	logger *zap.Logger,
	opts Options,
) *Router {
	return &Router{
		catalog:    catalog,
		lists:      lists,
		subscriber: subscriber,
		live:       live,
		validator:  validator,
		metrics:    metrics,
		logger:     logger,
		opts:       opts,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.EnableMetrics {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if rt.opts.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.DevUserHeader},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.healthCheck)
	router.Get("/swagger/doc.json", rt.apiDoc)
	if rt.opts.EnableMetrics {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.validator, rt.opts.DevIdentity, rt.logger))

		r.Route("/videos", func(r chi.Router) {
			videoHandler := handlers.NewVideoHandler(rt.catalog, rt.logger)
			r.Get("/", videoHandler.ListVideos)
			r.Post("/", videoHandler.AddVideo)
			r.Get("/{videoID}", videoHandler.GetVideo)
			r.Post("/{videoID}/favorite", videoHandler.ToggleFavorite)
			r.Delete("/{videoID}", videoHandler.DeleteVideo)
		})

		r.Route("/lists", func(r chi.Router) {
			listHandler := handlers.NewListHandler(rt.lists, rt.logger)
			r.Get("/", listHandler.ListLists)
			r.Post("/", listHandler.CreateList)
			r.Get("/candidates", listHandler.ListCandidates)
			r.Get("/{listID}", listHandler.GetList)
			r.Delete("/{listID}", listHandler.DeleteList)
		})

		r.Route("/sync/{kind}/{screen}", func(r chi.Router) {
			syncHandler := handlers.NewSyncHandler(rt.subscriber, rt.logger)
			r.Get("/", syncHandler.GetSnapshot)
			r.Post("/refresh", syncHandler.Refresh)
		})

		if rt.live != nil {
			r.Get("/ws/{kind}/{screen}", rt.live.HandleWebSocket)
		}
	})

	return router
}

func (rt *Router) apiDoc(w http.ResponseWriter, req *http.Request) {
	doc, err := swag.ReadDoc(apidocs.SwaggerInfo.InstanceName())
	if err != nil {
		rt.logger.Error("Failed to render API description", zap.Error(err))
		http.Error(w, "API description unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}

func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
