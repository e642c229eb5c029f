package ports

import (
	"context"

	"github.com/jclararobles/AppListVideos/domain/events"
)

// IdentityProvider supplies the current user's opaque identifier.
// Implementations return an UNAUTHENTICATED error when there is none.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (string, error)
}

// EventPublisher forwards domain events after a successful write.
type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.DomainEvent) error
}
