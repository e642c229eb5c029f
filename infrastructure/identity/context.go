// Package identity supplies the current user id to the sync core.
package identity

import (
	"context"
	"sync"

	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

type ctxKey struct{}

// WithIdentity returns a context carrying userID
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// FromContext returns the identity stored by WithIdentity
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// ContextProvider reads the identity placed on the request context by the
// authentication middleware.
type ContextProvider struct{}

// NewContextProvider creates a ContextProvider
func NewContextProvider() *ContextProvider {
	return &ContextProvider{}
}

// CurrentIdentity implements ports.IdentityProvider
func (ContextProvider) CurrentIdentity(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", appErrors.NewUnauthenticatedError("")
	}
	return id, nil
}

// Session is a single-user provider for embedded clients. The identity is
// replaced by SignIn and cleared by SignOut; listeners are told about every
// change so per-user state can be dropped.
type Session struct {
	mu        sync.RWMutex
	current   string
	listeners []func(previous, next string)
}

// NewSession starts a session signed in as userID, or signed out when empty
func NewSession(userID string) *Session {
	return &Session{current: userID}
}

// CurrentIdentity implements ports.IdentityProvider. A context identity,
// when present, takes precedence.
func (s *Session) CurrentIdentity(ctx context.Context) (string, error) {
	if id, ok := FromContext(ctx); ok {
		return id, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == "" {
		return "", appErrors.NewUnauthenticatedError("")
	}
	return s.current, nil
}

// OnChange registers fn to run after every identity change
func (s *Session) OnChange(fn func(previous, next string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SignIn switches the session to userID
func (s *Session) SignIn(userID string) {
	s.set(userID)
}

// SignOut clears the session
func (s *Session) SignOut() {
	s.set("")
}

func (s *Session) set(next string) {
	s.mu.Lock()
	previous := s.current
	s.current = next
	listeners := append([]func(string, string){}, s.listeners...)
	s.mu.Unlock()

	if previous == next {
		return
	}
	for _, fn := range listeners {
		fn(previous, next)
	}
}
