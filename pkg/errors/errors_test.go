package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingFieldsError(t *testing.T) {
	err := NewMissingFieldsError("url", "title")

	assert.True(t, IsValidation(err))
	assert.Equal(t, ReasonMissingFields, ValidationReason(err))
	assert.Equal(t, []string{"title", "url"}, MissingFields(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestThumbnailError(t *testing.T) {
	err := NewThumbnailError("not-a-url", "YouTube")

	assert.True(t, IsValidation(err))
	assert.Equal(t, ReasonThumbnailFailed, ValidationReason(err))
	assert.Nil(t, MissingFields(err))
}

func TestPredicatesSurviveWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewNotFoundError("videos", "v1"), IsNotFound},
		{"conflict", NewConflictError("stale"), IsConflict},
		{"unauthenticated", NewUnauthenticatedError(""), IsUnauthenticated},
		{"sync", NewSyncError("videos", errors.New("reset")), IsSync},
		{"store", NewStoreError("Query", errors.New("timeout")), IsStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.Equal(t, "", ValidationReason(wrapped))
		})
	}
}

func TestHTTPStatusDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewNotFoundError("lists", "l1")))
}

func TestSyncErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewSyncError("lists", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))

	wrapped := Wrap(NewNotFoundError("videos", "v1"), "toggle favorite")
	assert.True(t, IsNotFound(wrapped))
	assert.Contains(t, wrapped.Error(), "toggle favorite")

	plain := Wrap(errors.New("boom"), "decode")
	assert.True(t, IsType(plain, ErrorTypeInternal))
}

func TestFromStore(t *testing.T) {
	assert.Nil(t, FromStore("get", nil))

	nf := NewNotFoundError("videos", "v1")
	assert.Same(t, nf, FromStore("get", nf))

	err := FromStore("query", errors.New("dial tcp: timeout"))
	assert.True(t, IsStore(err))
	assert.Contains(t, err.Error(), "query")
}
