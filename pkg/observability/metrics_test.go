package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector("test")

	c.RecordBusinessEvent(VideoAdded)
	c.RecordBusinessEvent(VideoAdded)
	c.RecordBusinessEvent(ListCreated)
	c.RecordValidationFailure("missingFields")
	c.RecordStoreOperation("query", "videos", nil, time.Millisecond)
	c.RecordStoreOperation("query", "videos", errors.New("boom"), time.Millisecond)
	c.SubscriptionOpened("videos")
	c.SubscriptionOpened("videos")
	c.SubscriptionClosed("videos")
	c.RecordPush("lists")
	c.RecordSyncError("lists")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.VideosAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ListsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ValidationFailures.WithLabelValues("missingFields")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StoreOperations.WithLabelValues("query", "videos", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActiveSubscriptions.WithLabelValues("videos")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SyncPushes.WithLabelValues("lists")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SyncErrors.WithLabelValues("lists")))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")

	a.RecordBusinessEvent(VideoDeleted)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.VideosDeleted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.VideosDeleted))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordBusinessEvent(FavoriteToggled)
		c.RecordHTTP("GET", "/videos", "200", time.Second)
		c.SubscriptionOpened("videos")
		c.SetBreakerState("store", 2)
	})
	assert.Nil(t, c.GetRegistry())
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("applistvideos")
	c.RecordBusinessEvent(ListDeleted)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "applistvideos_lists_deleted_total 1")
}
