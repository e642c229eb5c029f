package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jclararobles/AppListVideos/application/ports"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

func records(ids ...string) []ports.Record {
	out := make([]ports.Record, len(ids))
	for i, id := range ids {
		out[i] = ports.Record{ID: id}
	}
	return out
}

func TestFeed_LatestWins(t *testing.T) {
	f := New("videos", nil)

	f.Deliver(records("a"))
	f.Deliver(records("a", "b"))

	got := <-f.Updates()
	assert.Len(t, got, 2)
	select {
	case <-f.Updates():
		t.Fatal("stale set still buffered")
	default:
	}
}

func TestFeed_CloseCallsStop(t *testing.T) {
	stopped := 0
	f := New("videos", func() { stopped++ })

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	assert.Equal(t, 2, stopped)
	assert.True(t, f.Ended())
	assert.NoError(t, f.Err())
	_, open := <-f.Updates()
	assert.False(t, open)

	f.Deliver(records("late"))
}

func TestFeed_EndWithError(t *testing.T) {
	f := New("lists", nil)

	f.End(errors.New("connection reset"))
	f.End(errors.New("second"))

	assert.True(t, appErrors.IsSync(f.Err()))
	assert.Contains(t, f.Err().Error(), "connection reset")
	<-f.Done()
}
