package livesync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/ports"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

// Lease is the handle for one acquired key
type Lease struct {
	key        Key
	collection string
	owner      *Subscriber
	storeSub   ports.Subscription
	observer   Observer
	cancel     context.CancelFunc

	once     sync.Once
	done     chan struct{}
	mu       sync.Mutex
	released bool
	err      error
}

// Key returns the key this lease holds
func (l *Lease) Key() Key { return l.key }

// Done is closed when the lease has ended for any reason
func (l *Lease) Done() <-chan struct{} { return l.done }

// Err returns the SYNC error that ended the lease, or nil
func (l *Lease) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Released reports whether the lease has ended
func (l *Lease) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

// Release ends the lease and closes its store subscription. It is safe to
// call more than once and from the observer.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.mu.Lock()
		l.released = true
		l.mu.Unlock()

		l.owner.detach(l)
		l.cancel()
		if err := l.storeSub.Close(); err != nil {
			l.owner.logger.Warn("Failed to close store subscription",
				zap.String("collection", l.collection),
				zap.Error(err),
			)
		}
		l.owner.metrics.SubscriptionClosed(string(l.key.Kind))
		close(l.done)
	})
}

func (l *Lease) pump() {
	for records := range l.storeSub.Updates() {
		snap, ok := l.owner.apply(l, records)
		if !ok {
			continue
		}
		l.owner.metrics.RecordPush(string(l.key.Kind))
		l.notify(snap.clone(), nil)
	}

	if l.Released() {
		return
	}
	err := l.storeSub.Err()
	if err == nil {
		// Closed without a failure, e.g. the context ended
		l.Release()
		return
	}
	if !appErrors.IsSync(err) {
		err = appErrors.NewSyncError(l.collection, err)
	}

	l.mu.Lock()
	l.err = err
	l.mu.Unlock()

	l.owner.metrics.RecordSyncError(string(l.key.Kind))
	l.owner.logger.Warn("Subscription failed",
		zap.String("kind", string(l.key.Kind)),
		zap.String("ownerID", l.key.OwnerID),
		zap.String("screen", l.key.Screen),
		zap.Error(err),
	)
	l.notify(Snapshot{Key: l.key}, err)
	l.Release()
}

func (l *Lease) notify(snap Snapshot, err error) {
	if l.observer == nil {
		return
	}
	if err == nil && l.Released() {
		return
	}
	l.observer(snap, err)
}
