// Package catalog manages the current user's video records.
package catalog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/application/validation"
	"github.com/jclararobles/AppListVideos/domain/core/entities"
	"github.com/jclararobles/AppListVideos/domain/core/thumbnail"
	"github.com/jclararobles/AppListVideos/domain/events"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithResolver overrides the thumbnail resolver
func WithResolver(r thumbnail.Resolver) Option {
	return func(m *Manager) { m.resolver = r }
}

// WithStrictFavoriteToggle makes ToggleFavorite a compare-and-swap on the
// stored flag. A caller holding a stale value gets a CONFLICT error instead
// of flipping the flag back.
func WithStrictFavoriteToggle() Option {
	return func(m *Manager) { m.strictToggle = true }
}

// Manager implements the video catalog operations. Every call is scoped to
// the identity returned by the IdentityProvider.
type Manager struct {
	store        ports.RemoteStore
	identity     ports.IdentityProvider
	publisher    ports.EventPublisher
	logger       *zap.Logger
	metrics      *observability.Collector
	resolver     thumbnail.Resolver
	now          func() time.Time
	strictToggle bool
}

// NewManager creates a catalog manager
func NewManager(
	store ports.RemoteStore,
	identity ports.IdentityProvider,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	metrics *observability.Collector,
	opts ...Option,
) *Manager {
	m := &Manager{
		store:     store,
		identity:  identity,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// List returns every video owned by the current user. The result is never
// nil.
func (m *Manager) List(ctx context.Context) (videos []entities.Video, err error) {
	ctx, span := observability.StartSpan(ctx, "catalog.List")
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return m.query(ctx, ports.Eq(ports.FieldOwnerID, owner))
}

// Favorites returns the current user's videos flagged as favorite
func (m *Manager) Favorites(ctx context.Context) (videos []entities.Video, err error) {
	ctx, span := observability.StartSpan(ctx, "catalog.Favorites")
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return m.query(ctx,
		ports.Eq(ports.FieldOwnerID, owner),
		ports.Eq(entities.FieldIsFavorite, true),
	)
}

// Get fetches one of the current user's videos. Videos of other users are
// reported as not found.
func (m *Manager) Get(ctx context.Context, videoID string) (video entities.Video, err error) {
	ctx, span := observability.StartSpan(ctx, "catalog.Get", attribute.String("video.id", videoID))
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return entities.Video{}, err
	}
	return m.get(ctx, owner, videoID)
}

// Add validates the input, derives the thumbnail and writes a new
// non-favorite video. Nothing is written when validation fails.
func (m *Manager) Add(ctx context.Context, in AddVideoInput) (video entities.Video, err error) {
	ctx, span := observability.StartSpan(ctx, "catalog.Add")
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return entities.Video{}, err
	}

	in = in.normalized()
	if err := validation.Struct(in); err != nil {
		m.metrics.RecordValidationFailure(appErrors.ValidationReason(err))
		return entities.Video{}, err
	}

	platform, ok := entities.ParsePlatform(in.Platform)
	if !ok {
		m.metrics.RecordValidationFailure(appErrors.ReasonThumbnailFailed)
		return entities.Video{}, appErrors.NewThumbnailError(in.URL, in.Platform)
	}
	thumb, err := m.resolver.Resolve(in.URL, platform)
	if err != nil {
		m.metrics.RecordValidationFailure(appErrors.ReasonThumbnailFailed)
		return entities.Video{}, appErrors.NewThumbnailError(in.URL, in.Platform).WithCause(err)
	}

	video = entities.NewVideo(owner, in.Title, in.Description, in.URL, platform, thumb, m.now().UTC())

	start := time.Now()
	id, err := m.store.Insert(ctx, ports.CollectionVideos, video.Document())
	m.metrics.RecordStoreOperation("insert", ports.CollectionVideos, err, time.Since(start))
	if err != nil {
		m.logger.Error("Failed to add video", zap.String("ownerID", owner), zap.Error(err))
		return entities.Video{}, appErrors.FromStore("insert video", err)
	}
	video = video.WithID(id)

	m.metrics.RecordBusinessEvent(observability.VideoAdded)
	m.logger.Info("Video added",
		zap.String("videoID", id),
		zap.String("ownerID", owner),
		zap.String("platform", platform.String()),
	)
	m.publish(ctx, events.NewVideoAdded(id, owner, platform.String(), video.URL(), thumb, video.CreatedAt()))

	return video, nil
}

// ToggleFavorite writes the negation of current as the video's favorite
// flag. current is the value the caller last saw.
//
// By default this is last-write-wins: two callers holding the same stale
// value both write the same result. With WithStrictFavoriteToggle the write
// only happens when the stored flag still equals current.
func (m *Manager) ToggleFavorite(ctx context.Context, videoID string, current bool) (err error) {
	ctx, span := observability.StartSpan(ctx, "catalog.ToggleFavorite",
		attribute.String("video.id", videoID),
		attribute.Bool("video.favorite.current", current),
	)
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if videoID == "" {
		return appErrors.NewNotFoundError(ports.CollectionVideos, videoID)
	}

	conds := []ports.Filter{ports.Eq(ports.FieldOwnerID, owner)}
	if m.strictToggle {
		conds = append(conds, ports.Eq(entities.FieldIsFavorite, current))
	}

	start := time.Now()
	err = m.store.Update(ctx, ports.CollectionVideos, videoID, ports.Document{entities.FieldIsFavorite: !current}, conds...)
	m.metrics.RecordStoreOperation("update", ports.CollectionVideos, err, time.Since(start))
	if err != nil {
		return m.classifyGuardFailure(ctx, owner, videoID, err)
	}

	m.metrics.RecordBusinessEvent(observability.FavoriteToggled)
	m.logger.Debug("Favorite toggled",
		zap.String("videoID", videoID),
		zap.String("ownerID", owner),
		zap.Bool("isFavorite", !current),
	)
	m.publish(ctx, events.NewVideoFavoriteToggled(videoID, owner, !current, m.now().UTC()))
	return nil
}

// Delete removes one of the current user's videos. Lists that embedded the
// video keep their snapshot.
func (m *Manager) Delete(ctx context.Context, videoID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "catalog.Delete", attribute.String("video.id", videoID))
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if videoID == "" {
		return appErrors.NewNotFoundError(ports.CollectionVideos, videoID)
	}

	start := time.Now()
	err = m.store.Delete(ctx, ports.CollectionVideos, videoID, ports.Eq(ports.FieldOwnerID, owner))
	m.metrics.RecordStoreOperation("delete", ports.CollectionVideos, err, time.Since(start))
	if err != nil {
		// The only condition is ownership, so any failed condition means the
		// record belongs to someone else.
		if appErrors.IsConflict(err) {
			return appErrors.NewNotFoundError(ports.CollectionVideos, videoID)
		}
		return appErrors.FromStore("delete video", err)
	}

	m.metrics.RecordBusinessEvent(observability.VideoDeleted)
	m.logger.Info("Video deleted", zap.String("videoID", videoID), zap.String("ownerID", owner))
	m.publish(ctx, events.NewVideoDeleted(videoID, owner, m.now().UTC()))
	return nil
}

// classifyGuardFailure turns a failed guarded update into NOT_FOUND when the
// record is missing or foreign and CONFLICT when only the favorite
// precondition failed.
func (m *Manager) classifyGuardFailure(ctx context.Context, owner, videoID string, err error) error {
	if !appErrors.IsConflict(err) {
		return appErrors.FromStore("update video", err)
	}
	if !m.strictToggle {
		return appErrors.NewNotFoundError(ports.CollectionVideos, videoID)
	}
	if _, getErr := m.get(ctx, owner, videoID); getErr != nil {
		return getErr
	}
	return appErrors.NewConflictError("favorite flag changed since it was read").
		WithCode("STALE_FAVORITE").
		WithDetails(map[string]interface{}{"id": videoID})
}

func (m *Manager) get(ctx context.Context, owner, videoID string) (entities.Video, error) {
	if videoID == "" {
		return entities.Video{}, appErrors.NewNotFoundError(ports.CollectionVideos, videoID)
	}
	start := time.Now()
	rec, err := m.store.Get(ctx, ports.CollectionVideos, videoID)
	m.metrics.RecordStoreOperation("get", ports.CollectionVideos, err, time.Since(start))
	if err != nil {
		return entities.Video{}, appErrors.FromStore("get video", err)
	}
	video, err := entities.VideoFromDocument(rec.ID, rec.Data)
	if err != nil {
		return entities.Video{}, appErrors.NewInternalError("stored video is malformed").WithCause(err)
	}
	if video.OwnerID() != owner {
		return entities.Video{}, appErrors.NewNotFoundError(ports.CollectionVideos, videoID)
	}
	return video, nil
}

func (m *Manager) query(ctx context.Context, filters ...ports.Filter) ([]entities.Video, error) {
	start := time.Now()
	records, err := m.store.Query(ctx, ports.CollectionVideos, filters)
	m.metrics.RecordStoreOperation("query", ports.CollectionVideos, err, time.Since(start))
	if err != nil {
		return nil, appErrors.FromStore("query videos", err)
	}
	return DecodeVideos(records, m.logger), nil
}

// DecodeVideos converts store records, skipping malformed ones. The result
// is never nil.
func DecodeVideos(records []ports.Record, logger *zap.Logger) []entities.Video {
	videos := make([]entities.Video, 0, len(records))
	for _, rec := range records {
		v, err := entities.VideoFromDocument(rec.ID, rec.Data)
		if err != nil {
			logger.Warn("Skipping malformed video record", zap.String("videoID", rec.ID), zap.Error(err))
			continue
		}
		videos = append(videos, v)
	}
	return videos
}

// publish forwards events after a successful write. The write already
// happened, so a failed publish is logged and not returned.
func (m *Manager) publish(ctx context.Context, evts ...events.DomainEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, evts...); err != nil {
		m.logger.Warn("Failed to publish video events", zap.Error(err))
	}
}
