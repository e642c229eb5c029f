package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/domain/core/entities"
	"github.com/jclararobles/AppListVideos/domain/events"
	"github.com/jclararobles/AppListVideos/infrastructure/identity"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/memory"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	args := m.Called(ctx, evts)
	return args.Error(0)
}

func (m *mockPublisher) published() []events.DomainEvent {
	var out []events.DomainEvent
	for _, c := range m.Calls {
		out = append(out, c.Arguments.Get(1).([]events.DomainEvent)...)
	}
	return out
}

type fixture struct {
	store   *memory.Store
	pub     *mockPublisher
	manager *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore(zap.NewNop())
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{
		store:   store,
		pub:     pub,
		manager: NewManager(store, identity.NewContextProvider(), pub, zap.NewNop(), observability.NewCollector("test"), opts...),
	}
}

func as(user string) context.Context {
	return identity.WithIdentity(context.Background(), user)
}

func validInput() AddVideoInput {
	return AddVideoInput{
		Title:       "Never gonna",
		Description: "classic",
		URL:         "https://youtu.be/dQw4w9WgXcQ",
		Platform:    "YouTube",
	}
}

func TestManager_List_EmptyIsNotNil(t *testing.T) {
	f := newFixture(t)

	videos, err := f.manager.List(as("u1"))

	require.NoError(t, err)
	assert.NotNil(t, videos)
	assert.Empty(t, videos)
}

func TestManager_Add(t *testing.T) {
	// Arrange
	f := newFixture(t)

	// Act
	video, err := f.manager.Add(as("u1"), validInput())

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, video.ID())
	assert.Equal(t, "u1", video.OwnerID())
	assert.Equal(t, "https://img.youtube.com/vi/dQw4w9WgXcQ/0.jpg", video.ThumbnailURL())
	assert.False(t, video.IsFavorite())
	assert.Equal(t, fixedNow, video.CreatedAt())
	assert.Equal(t, 1, f.store.Writes())

	listed, err := f.manager.List(as("u1"))
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, video, listed[0])

	published := f.pub.published()
	require.Len(t, published, 1)
	assert.Equal(t, "video.added", published[0].GetEventType())
	assert.Equal(t, video.ID(), published[0].GetAggregateID())
}

func TestManager_Add_Instagram(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.URL = "https://www.instagram.com/reel/xyz/"
	in.Platform = "instagram"

	video, err := f.manager.Add(as("u1"), in)

	require.NoError(t, err)
	assert.Equal(t, entities.PlatformInstagram, video.Platform())
	assert.Equal(t, "asset://instagram_thumbnail.jpg", video.ThumbnailURL())
}

func TestManager_Add_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AddVideoInput)
		fields []string
	}{
		{"title", func(in *AddVideoInput) { in.Title = "" }, []string{"title"}},
		{"blank description", func(in *AddVideoInput) { in.Description = "   " }, []string{"description"}},
		{"url", func(in *AddVideoInput) { in.URL = "" }, []string{"url"}},
		{"platform", func(in *AddVideoInput) { in.Platform = "" }, []string{"platform"}},
		{"everything", func(in *AddVideoInput) { *in = AddVideoInput{} }, []string{"description", "platform", "title", "url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			tt.mutate(&in)

			_, err := f.manager.Add(as("u1"), in)

			require.Error(t, err)
			assert.Equal(t, appErrors.ReasonMissingFields, appErrors.ValidationReason(err))
			assert.Equal(t, tt.fields, appErrors.MissingFields(err))
			assert.Equal(t, 0, f.store.Writes())
			f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestManager_Add_ThumbnailFailed(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		platform string
	}{
		{"not a url", "not-a-url", "YouTube"},
		{"youtube without id", "https://www.youtube.com/feed/trending", "YouTube"},
		{"unknown platform", "https://vimeo.com/1", "Vimeo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			in.URL = tt.url
			in.Platform = tt.platform

			_, err := f.manager.Add(as("u1"), in)

			assert.True(t, appErrors.IsValidation(err))
			assert.Equal(t, appErrors.ReasonThumbnailFailed, appErrors.ValidationReason(err))
			assert.Equal(t, 0, f.store.Writes())
		})
	}
}

func TestManager_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Add(ctx, validInput())
	assert.True(t, appErrors.IsUnauthenticated(err))
	_, err = f.manager.List(ctx)
	assert.True(t, appErrors.IsUnauthenticated(err))
	assert.True(t, appErrors.IsUnauthenticated(f.manager.ToggleFavorite(ctx, "v1", false)))
	assert.True(t, appErrors.IsUnauthenticated(f.manager.Delete(ctx, "v1")))

	assert.Equal(t, 0, f.store.Writes())
}

func TestManager_List_ScopedToOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Add(as("u1"), validInput())
	require.NoError(t, err)
	_, err = f.manager.Add(as("u2"), validInput())
	require.NoError(t, err)

	videos, err := f.manager.List(as("u1"))

	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "u1", videos[0].OwnerID())
}

func TestManager_ToggleFavorite_TwiceRestores(t *testing.T) {
	f := newFixture(t)
	video, err := f.manager.Add(as("u1"), validInput())
	require.NoError(t, err)

	require.NoError(t, f.manager.ToggleFavorite(as("u1"), video.ID(), false))
	got, err := f.manager.Get(as("u1"), video.ID())
	require.NoError(t, err)
	assert.True(t, got.IsFavorite())

	favorites, err := f.manager.Favorites(as("u1"))
	require.NoError(t, err)
	assert.Len(t, favorites, 1)

	require.NoError(t, f.manager.ToggleFavorite(as("u1"), video.ID(), true))
	got, err = f.manager.Get(as("u1"), video.ID())
	require.NoError(t, err)
	assert.False(t, got.IsFavorite())
	assert.Equal(t, video, got)
}

func TestManager_ToggleFavorite_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	video, err := f.manager.Add(as("u1"), validInput())
	require.NoError(t, err)

	// Two callers both saw false
	require.NoError(t, f.manager.ToggleFavorite(as("u1"), video.ID(), false))
	require.NoError(t, f.manager.ToggleFavorite(as("u1"), video.ID(), false))

	got, err := f.manager.Get(as("u1"), video.ID())
	require.NoError(t, err)
	assert.True(t, got.IsFavorite())
}

func TestManager_ToggleFavorite_Strict(t *testing.T) {
	f := newFixture(t, WithStrictFavoriteToggle())
	video, err := f.manager.Add(as("u1"), validInput())
	require.NoError(t, err)

	require.NoError(t, f.manager.ToggleFavorite(as("u1"), video.ID(), false))
	err = f.manager.ToggleFavorite(as("u1"), video.ID(), false)

	assert.True(t, appErrors.IsConflict(err))
	assert.Equal(t, "STALE_FAVORITE", appErrors.GetAppError(err).Code)
	got, err := f.manager.Get(as("u1"), video.ID())
	require.NoError(t, err)
	assert.True(t, got.IsFavorite())

	assert.True(t, appErrors.IsNotFound(f.manager.ToggleFavorite(as("u2"), video.ID(), true)))
	assert.True(t, appErrors.IsNotFound(f.manager.ToggleFavorite(as("u1"), "missing", true)))
}

func TestManager_ToggleFavorite_NotFound(t *testing.T) {
	f := newFixture(t)
	video, err := f.manager.Add(as("u1"), validInput())
	require.NoError(t, err)
	writes := f.store.Writes()

	assert.True(t, appErrors.IsNotFound(f.manager.ToggleFavorite(as("u1"), "missing", false)))
	assert.True(t, appErrors.IsNotFound(f.manager.ToggleFavorite(as("u2"), video.ID(), false)))
	assert.True(t, appErrors.IsNotFound(f.manager.ToggleFavorite(as("u1"), "", false)))
	assert.Equal(t, writes, f.store.Writes())
}

func TestManager_Delete(t *testing.T) {
	f := newFixture(t)
	keep, err := f.manager.Add(as("u1"), validInput())
	require.NoError(t, err)
	drop, err := f.manager.Add(as("u1"), validInput())
	require.NoError(t, err)

	require.NoError(t, f.manager.Delete(as("u1"), drop.ID()))

	videos, err := f.manager.List(as("u1"))
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, keep.ID(), videos[0].ID())

	assert.True(t, appErrors.IsNotFound(f.manager.Delete(as("u1"), drop.ID())))
	_, err = f.manager.Get(as("u1"), drop.ID())
	assert.True(t, appErrors.IsNotFound(err))
}

func TestManager_Delete_ForeignIsNotFound(t *testing.T) {
	f := newFixture(t)
	video, err := f.manager.Add(as("u1"), validInput())
	require.NoError(t, err)

	assert.True(t, appErrors.IsNotFound(f.manager.Delete(as("u2"), video.ID())))

	_, err = f.manager.Get(as("u1"), video.ID())
	assert.NoError(t, err)
}

func TestManager_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext("query", errors.New("unreachable"))

	_, err := f.manager.List(as("u1"))

	assert.True(t, appErrors.IsStore(err))
}

func TestManager_PublishFailureDoesNotFailWrite(t *testing.T) {
	store := memory.NewStore(zap.NewNop())
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))
	m := NewManager(store, identity.NewContextProvider(), pub, zap.NewNop(), nil)

	video, err := m.Add(as("u1"), validInput())

	require.NoError(t, err)
	assert.NotEmpty(t, video.ID())
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestDecodeVideos_SkipsMalformed(t *testing.T) {
	records := []ports.Record{
		{ID: "ok", Data: ports.Document{"ownerId": "u1", "title": "t"}},
		{ID: "bad", Data: ports.Document{"ownerId": "u1", "createdAt": "not a time"}},
	}

	videos := DecodeVideos(records, zap.NewNop())

	require.Len(t, videos, 1)
	assert.Equal(t, "ok", videos[0].ID())
}
