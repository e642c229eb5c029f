// Package lists manages named groupings of video snapshots.
package lists

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/catalog"
	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/application/validation"
	"github.com/jclararobles/AppListVideos/domain/core/entities"
	"github.com/jclararobles/AppListVideos/domain/events"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

// createInput carries the validated shape of a Create call
type createInput struct {
	Title  string           `json:"title" validate:"required"`
	Videos []entities.Video `json:"videos" validate:"required,min=1"`
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager implements the list operations for the current user.
type Manager struct {
	store     ports.RemoteStore
	identity  ports.IdentityProvider
	publisher ports.EventPublisher
	logger    *zap.Logger
	metrics   *observability.Collector
	now       func() time.Time
}

// NewManager creates a list manager
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

// ListAll returns every list owned by the current user. The result is never
// nil.
func (m *Manager) ListAll(ctx context.Context) (result []entities.List, err error) {
	ctx, span := observability.StartSpan(ctx, "lists.ListAll")
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := m.store.Query(ctx, ports.CollectionLists, []ports.Filter{ports.Eq(ports.FieldOwnerID, owner)})
	m.metrics.RecordStoreOperation("query", ports.CollectionLists, err, time.Since(start))
	if err != nil {
		return nil, appErrors.FromStore("query lists", err)
	}
	return DecodeLists(records, m.logger), nil
}

// ListCandidateVideos returns the user's full catalog for selection
func (m *Manager) ListCandidateVideos(ctx context.Context) (videos []entities.Video, err error) {
	ctx, span := observability.StartSpan(ctx, "lists.ListCandidateVideos")
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := m.store.Query(ctx, ports.CollectionVideos, []ports.Filter{ports.Eq(ports.FieldOwnerID, owner)})
	m.metrics.RecordStoreOperation("query", ports.CollectionVideos, err, time.Since(start))
	if err != nil {
		return nil, appErrors.FromStore("query videos", err)
	}
	return catalog.DecodeVideos(records, m.logger), nil
}

// Create writes a list embedding full copies of selected as they are now.
// Duplicate selections collapse to the first occurrence. Titles need not be
// unique.
func (m *Manager) Create(ctx context.Context, title string, selected []entities.Video) (list entities.List, err error) {
	ctx, span := observability.StartSpan(ctx, "lists.Create", attribute.Int("list.selected", len(selected)))
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return entities.List{}, err
	}

	in := createInput{Title: strings.TrimSpace(title), Videos: dedupe(selected)}
	if err := validation.Struct(in); err != nil {
		m.metrics.RecordValidationFailure(appErrors.ValidationReason(err))
		return entities.List{}, err
	}

	// Never embed another user's record
	for _, v := range in.Videos {
		if v.ID() == "" || v.OwnerID() != owner {
			return entities.List{}, appErrors.NewNotFoundError(ports.CollectionVideos, v.ID())
		}
	}

	list = entities.NewList(owner, in.Title, in.Videos, m.now().UTC())

	start := time.Now()
	id, err := m.store.Insert(ctx, ports.CollectionLists, list.Document())
	m.metrics.RecordStoreOperation("insert", ports.CollectionLists, err, time.Since(start))
	if err != nil {
		m.logger.Error("Failed to create list", zap.String("ownerID", owner), zap.Error(err))
		return entities.List{}, appErrors.FromStore("insert list", err)
	}
	list = list.WithID(id)

	m.metrics.RecordBusinessEvent(observability.ListCreated)
	m.logger.Info("List created",
		zap.String("listID", id),
		zap.String("ownerID", owner),
		zap.Int("videos", len(in.Videos)),
	)
	m.publish(ctx, events.NewListCreated(id, owner, list.Title(), list.VideoIDs(), list.CreatedAt()))

	return list, nil
}

// Get fetches one of the current user's lists with its snapshots
func (m *Manager) Get(ctx context.Context, listID string) (list entities.List, err error) {
	ctx, span := observability.StartSpan(ctx, "lists.Get", attribute.String("list.id", listID))
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return entities.List{}, err
	}
	if listID == "" {
		return entities.List{}, appErrors.NewNotFoundError(ports.CollectionLists, listID)
	}

	start := time.Now()
	rec, err := m.store.Get(ctx, ports.CollectionLists, listID)
	m.metrics.RecordStoreOperation("get", ports.CollectionLists, err, time.Since(start))
	if err != nil {
		return entities.List{}, appErrors.FromStore("get list", err)
	}
	list, err = entities.ListFromDocument(rec.ID, rec.Data)
	if err != nil {
		return entities.List{}, appErrors.NewInternalError("stored list is malformed").WithCause(err)
	}
	if list.OwnerID() != owner {
		return entities.List{}, appErrors.NewNotFoundError(ports.CollectionLists, listID)
	}
	return list, nil
}

// Delete removes one of the current user's lists. Embedded videos are
// snapshots, so the catalog is not touched.
func (m *Manager) Delete(ctx context.Context, listID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "lists.Delete", attribute.String("list.id", listID))
	defer func() { observability.EndSpan(span, err) }()

	owner, err := m.identity.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if listID == "" {
		return appErrors.NewNotFoundError(ports.CollectionLists, listID)
	}

	start := time.Now()
	err = m.store.Delete(ctx, ports.CollectionLists, listID, ports.Eq(ports.FieldOwnerID, owner))
	m.metrics.RecordStoreOperation("delete", ports.CollectionLists, err, time.Since(start))
	if err != nil {
		if appErrors.IsConflict(err) {
			return appErrors.NewNotFoundError(ports.CollectionLists, listID)
		}
		return appErrors.FromStore("delete list", err)
	}

	m.metrics.RecordBusinessEvent(observability.ListDeleted)
	m.logger.Info("List deleted", zap.String("listID", listID), zap.String("ownerID", owner))
	m.publish(ctx, events.NewListDeleted(listID, owner, m.now().UTC()))
	return nil
}

// DecodeLists converts store records, skipping malformed ones. The result
// is never nil.
func DecodeLists(records []ports.Record, logger *zap.Logger) []entities.List {
	out := make([]entities.List, 0, len(records))
	for _, rec := range records {
		l, err := entities.ListFromDocument(rec.ID, rec.Data)
		if err != nil {
			logger.Warn("Skipping malformed list record", zap.String("listID", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, l)
	}
	return out
}

func dedupe(videos []entities.Video) []entities.Video {
	if videos == nil {
		return nil
	}
	seen := make(map[string]bool, len(videos))
	out := make([]entities.Video, 0, len(videos))
	for _, v := range videos {
		if seen[v.ID()] {
			continue
		}
		seen[v.ID()] = true
		out = append(out, v)
	}
	return out
}

func (m *Manager) publish(ctx context.Context, evts ...events.DomainEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, evts...); err != nil {
		m.logger.Warn("Failed to publish list events", zap.Error(err))
	}
}
