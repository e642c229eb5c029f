package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the sync core.
//
// Every collector owns its registry so several can coexist in one process
// (tests, multiple hosts). All methods are safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Business metrics
	VideosAdded        prometheus.Counter
	VideosDeleted      prometheus.Counter
	FavoritesToggled   prometheus.Counter
	ListsCreated       prometheus.Counter
	ListsDeleted       prometheus.Counter
	ValidationFailures *prometheus.CounterVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec

	// Live sync metrics
	ActiveSubscriptions *prometheus.GaugeVec
	SyncPushes          *prometheus.CounterVec
	SyncErrors          *prometheus.CounterVec
}

// NewCollector creates a collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		VideosAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_added_total",
			Help:      "Total number of videos added to catalogs",
		}),
		VideosDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_deleted_total",
			Help:      "Total number of videos deleted from catalogs",
		}),
		FavoritesToggled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorites_toggled_total",
			Help:      "Total number of favorite flag writes",
		}),
		ListsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lists_created_total",
			Help:      "Total number of lists created",
		}),
		ListsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lists_deleted_total",
			Help:      "Total number of lists deleted",
		}),
		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Rejected inputs by validation reason",
			},
			[]string{"reason"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of remote store operations",
			},
			[]string{"operation", "collection", "status"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Remote store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "collection"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"breaker"},
		),
		ActiveSubscriptions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_active_subscriptions",
				Help:      "Live subscriptions currently held",
			},
			[]string{"kind"},
		),
		SyncPushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_pushes_total",
				Help:      "Result sets applied to the live cache",
			},
			[]string{"kind"},
		),
		SyncErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_errors_total",
				Help:      "Subscriptions ended by a transport failure",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.VideosAdded,
		c.VideosDeleted,
		c.FavoritesToggled,
		c.ListsCreated,
		c.ListsDeleted,
		c.ValidationFailures,
		c.StoreOperations,
		c.StoreDuration,
		c.BreakerState,
		c.ActiveSubscriptions,
		c.SyncPushes,
		c.SyncErrors,
	)

	return c
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTP records one served request
func (c *Collector) RecordHTTP(method, route, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordStoreOperation records one remote store call
func (c *Collector) RecordStoreOperation(operation, collection string, err error, d time.Duration) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.StoreOperations.WithLabelValues(operation, collection, status).Inc()
	c.StoreDuration.WithLabelValues(operation, collection).Observe(d.Seconds())
}

// RecordValidationFailure counts a rejected input
func (c *Collector) RecordValidationFailure(reason string) {
	if c == nil {
		return
	}
	c.ValidationFailures.WithLabelValues(reason).Inc()
}

// BusinessEvent names one of the business counters
type BusinessEvent int

const (
	VideoAdded BusinessEvent = iota
	VideoDeleted
	FavoriteToggled
	ListCreated
	ListDeleted
)

// RecordBusinessEvent increments the counter for ev
func (c *Collector) RecordBusinessEvent(ev BusinessEvent) {
	if c == nil {
		return
	}
	switch ev {
	case VideoAdded:
		c.VideosAdded.Inc()
	case VideoDeleted:
		c.VideosDeleted.Inc()
	case FavoriteToggled:
		c.FavoritesToggled.Inc()
	case ListCreated:
		c.ListsCreated.Inc()
	case ListDeleted:
		c.ListsDeleted.Inc()
	}
}

// SubscriptionOpened tracks a new live subscription of kind
func (c *Collector) SubscriptionOpened(kind string) {
	if c == nil {
		return
	}
	c.ActiveSubscriptions.WithLabelValues(kind).Inc()
}

// SubscriptionClosed tracks a released live subscription of kind
func (c *Collector) SubscriptionClosed(kind string) {
	if c == nil {
		return
	}
	c.ActiveSubscriptions.WithLabelValues(kind).Dec()
}

// RecordPush counts a result set applied to the cache
func (c *Collector) RecordPush(kind string) {
	if c == nil {
		return
	}
	c.SyncPushes.WithLabelValues(kind).Inc()
}

// RecordSyncError counts a subscription ended by failure
func (c *Collector) RecordSyncError(kind string) {
	if c == nil {
		return
	}
	c.SyncErrors.WithLabelValues(kind).Inc()
}

// SetBreakerState publishes a circuit breaker state
func (c *Collector) SetBreakerState(name string, state float64) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(state)
}
