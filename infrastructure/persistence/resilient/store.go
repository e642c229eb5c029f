// Package resilient decorates a RemoteStore with a circuit breaker and read
// retries.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/ports"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

// Config controls the decorator
type Config struct {
	Name string
	// MaxRetries is the number of extra attempts for Query and Get
	MaxRetries  uint
	RetryDelay  time.Duration
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
}

// DefaultConfig returns conservative defaults
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRetries:  2,
		RetryDelay:  100 * time.Millisecond,
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}
}

// Store wraps another RemoteStore. Only STORE errors count as failures;
// NOT_FOUND, CONFLICT and validation results pass straight through.
//
// Writes are never retried since Insert is not idempotent and a retried
// guarded write could report CONFLICT for its own first attempt.
type Store struct {
	next    ports.RemoteStore
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *observability.Collector
}

// New creates the decorator
func New(next ports.RemoteStore, cfg Config, logger *zap.Logger, metrics *observability.Collector) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultConfig(cfg.Name).MaxFailures
	}
	s := &Store{next: next, cfg: cfg, logger: logger, metrics: metrics}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !appErrors.IsStore(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerState(name, float64(to))
		},
	})
	metrics.SetBreakerState(cfg.Name, float64(gobreaker.StateClosed))
	return s
}

// State exposes the breaker state
func (s *Store) State() gobreaker.State {
	return s.breaker.State()
}

func (s *Store) Query(ctx context.Context, collection string, filters []ports.Filter) ([]ports.Record, error) {
	var records []ports.Record
	err := s.retry(ctx, "query", func() error {
		var err error
		records, err = execute(s, "query", func() ([]ports.Record, error) {
			return s.next.Query(ctx, collection, filters)
		})
		return err
	})
	return records, err
}

func (s *Store) Get(ctx context.Context, collection, id string) (ports.Record, error) {
	var rec ports.Record
	err := s.retry(ctx, "get", func() error {
		var err error
		rec, err = execute(s, "get", func() (ports.Record, error) {
			return s.next.Get(ctx, collection, id)
		})
		return err
	})
	return rec, err
}

func (s *Store) Insert(ctx context.Context, collection string, doc ports.Document) (string, error) {
	return execute(s, "insert", func() (string, error) {
		return s.next.Insert(ctx, collection, doc)
	})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields ports.Document, conds ...ports.Filter) error {
	_, err := execute(s, "update", func() (struct{}, error) {
		return struct{}{}, s.next.Update(ctx, collection, id, fields, conds...)
	})
	return err
}

func (s *Store) Delete(ctx context.Context, collection, id string, conds ...ports.Filter) error {
	_, err := execute(s, "delete", func() (struct{}, error) {
		return struct{}{}, s.next.Delete(ctx, collection, id, conds...)
	})
	return err
}

// Subscribe is guarded by the breaker only. A subscription that fails later
// is reported by the subscription itself.
func (s *Store) Subscribe(ctx context.Context, collection string, filters []ports.Filter) (ports.Subscription, error) {
	return execute(s, "subscribe", func() (ports.Subscription, error) {
		return s.next.Subscribe(ctx, collection, filters)
	})
}

// execute runs fn through the breaker and maps breaker rejections to STORE
// errors.
func execute[T any](s *Store, op string, fn func() (T, error)) (T, error) {
	var zero T
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, appErrors.NewStoreError(op, err)
		}
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(s.cfg.MaxRetries+1),
		retry.Delay(s.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return appErrors.IsStore(err) && !errors.Is(err, gobreaker.ErrOpenState)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("Retrying store read",
				zap.String("operation", op),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
}
