// Package livesync keeps a per-screen cache of the user's videos and lists
// current by holding one remote subscription per screen.
package livesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/catalog"
	"github.com/jclararobles/AppListVideos/application/lists"
	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/domain/core/entities"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

// Kind selects the collection a subscription follows
type Kind string

const (
	KindVideos Kind = "videos"
	KindLists  Kind = "lists"
)

func (k Kind) collection() (string, error) {
	switch k {
	case KindVideos:
		return ports.CollectionVideos, nil
	case KindLists:
		return ports.CollectionLists, nil
	default:
		return "", appErrors.NewInternalError(fmt.Sprintf("unknown subscription kind %q", k))
	}
}

// Key identifies one cached view. Screen distinguishes consumers of the same
// collection so each holds its own subscription.
type Key struct {
	Kind    Kind
	OwnerID string
	Screen  string
}

// Snapshot is a full result set for a key. Exactly one of Videos or Lists
// is populated, matching Key.Kind.
type Snapshot struct {
	Key       Key
	Videos    []entities.Video
	Lists     []entities.List
	Version   uint64
	UpdatedAt time.Time
}

func (s Snapshot) clone() Snapshot {
	if s.Videos != nil {
		s.Videos = append([]entities.Video(nil), s.Videos...)
	}
	if s.Lists != nil {
		s.Lists = append([]entities.List(nil), s.Lists...)
	}
	return s
}

// Observer is told about every snapshot applied for its lease, and once
// with a SYNC error if the subscription fails.
type Observer func(snap Snapshot, err error)

// Subscriber owns the subscriptions and the cache.
type Subscriber struct {
	store    ports.RemoteStore
	identity ports.IdentityProvider
	logger   *zap.Logger
	metrics  *observability.Collector
	now      func() time.Time

	mu     sync.Mutex
	leases map[Key]*Lease
	cache  map[Key]Snapshot
	closed bool
}

// NewSubscriber creates a subscriber with an empty cache
func NewSubscriber(store ports.RemoteStore, identity ports.IdentityProvider, logger *zap.Logger, metrics *observability.Collector) *Subscriber {
	return &Subscriber{
		store:    store,
		identity: identity,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		leases:   make(map[Key]*Lease),
		cache:    make(map[Key]Snapshot),
	}
}

// Acquire opens the subscription for (current identity, kind, screen).
//
// An existing lease on the same key is released first, so a key never holds
// more than one store subscription. The lease ends when Release is called,
// ctx is cancelled, the owner is released, the subscriber is closed, or the
// transport fails. Failures are reported once and never retried.
func (s *Subscriber) Acquire(ctx context.Context, kind Kind, screen string, observer Observer) (*Lease, error) {
	collection, err := kind.collection()
	if err != nil {
		return nil, err
	}
	owner, err := s.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	key := Key{Kind: kind, OwnerID: owner, Screen: screen}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSubscriberClosed()
	}
	prev := s.leases[key]
	s.mu.Unlock()
	if prev != nil {
		prev.Release()
	}

	subCtx, cancel := context.WithCancel(ctx)
	storeSub, err := s.store.Subscribe(subCtx, collection, []ports.Filter{ports.Eq(ports.FieldOwnerID, owner)})
	if err != nil {
		cancel()
		s.metrics.RecordSyncError(string(kind))
		if appErrors.IsSync(err) {
			return nil, err
		}
		return nil, appErrors.NewSyncError(collection, err)
	}

	lease := &Lease{
		key:        key,
		collection: collection,
		owner:      s,
		storeSub:   storeSub,
		observer:   observer,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		storeSub.Close()
		return nil, errSubscriberClosed()
	}
	// A concurrent Acquire for the same key may have won the race
	raced := s.leases[key]
	s.leases[key] = lease
	s.mu.Unlock()
	if raced != nil {
		raced.Release()
	}

	s.metrics.SubscriptionOpened(string(kind))
	s.logger.Debug("Subscription acquired",
		zap.String("kind", string(kind)),
		zap.String("ownerID", owner),
		zap.String("screen", screen),
	)

	go lease.pump()
	go func() {
		select {
		case <-ctx.Done():
			lease.Release()
		case <-lease.done:
		}
	}()

	return lease, nil
}

// Refresh re-queries key directly. When key holds a lease the result
// replaces the cached view and the lease's observer is told about it;
// otherwise it is returned as version 1 and nothing is cached.
func (s *Subscriber) Refresh(ctx context.Context, key Key) (Snapshot, error) {
	collection, err := key.Kind.collection()
	if err != nil {
		return Snapshot{}, err
	}
	owner, err := s.identity.CurrentIdentity(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if owner != key.OwnerID {
		return Snapshot{}, appErrors.NewUnauthenticatedError("key belongs to another identity")
	}

	start := time.Now()
	records, err := s.store.Query(ctx, collection, []ports.Filter{ports.Eq(ports.FieldOwnerID, owner)})
	s.metrics.RecordStoreOperation("query", collection, err, time.Since(start))
	if err != nil {
		return Snapshot{}, appErrors.FromStore("refresh "+collection, err)
	}

	snap := s.decode(key, records)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errSubscriberClosed()
	}
	lease := s.leases[key]
	if lease == nil {
		s.mu.Unlock()
		snap.Version = 1
		snap.UpdatedAt = s.now().UTC()
		return snap, nil
	}
	snap = s.storeLocked(snap)
	s.mu.Unlock()

	lease.notify(snap.clone(), nil)
	return snap.clone(), nil
}

// Snapshot returns the cached view for key. Only keys holding a lease have
// one.
func (s *Subscriber) Snapshot(key Key) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.cache[key]
	if !ok {
		return Snapshot{}, false
	}
	return snap.clone(), true
}

// Active reports whether key currently holds a lease
func (s *Subscriber) Active(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.leases[key]
	return ok
}

// ReleaseOwner ends every lease of owner and drops its cached views. Called
// when the identity changes.
func (s *Subscriber) ReleaseOwner(owner string) {
	s.mu.Lock()
	var victims []*Lease
	for key, lease := range s.leases {
		if key.OwnerID == owner {
			victims = append(victims, lease)
		}
	}
	s.mu.Unlock()

	for _, l := range victims {
		l.Release()
	}

	s.logger.Debug("Owner subscriptions released", zap.String("ownerID", owner), zap.Int("leases", len(victims)))
}

// Close releases every lease and clears the cache. Further Acquire calls
// fail.
func (s *Subscriber) Close() {
	s.mu.Lock()
	s.closed = true
	victims := make([]*Lease, 0, len(s.leases))
	for _, l := range s.leases {
		victims = append(victims, l)
	}
	s.mu.Unlock()

	for _, l := range victims {
		l.Release()
	}

	s.mu.Lock()
	s.cache = make(map[Key]Snapshot)
	s.mu.Unlock()
}

// apply replaces the cache entry for lease's key unless the lease has been
// superseded or released.
func (s *Subscriber) apply(l *Lease, records []ports.Record) (Snapshot, bool) {
	snap := s.decode(l.key, records)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leases[l.key] != l {
		return Snapshot{}, false
	}
	return s.storeLocked(snap), true
}

func (s *Subscriber) storeLocked(snap Snapshot) Snapshot {
	snap.Version = s.cache[snap.Key].Version + 1
	snap.UpdatedAt = s.now().UTC()
	s.cache[snap.Key] = snap
	return snap
}

func (s *Subscriber) decode(key Key, records []ports.Record) Snapshot {
	snap := Snapshot{Key: key}
	switch key.Kind {
	case KindVideos:
		snap.Videos = catalog.DecodeVideos(records, s.logger)
	case KindLists:
		snap.Lists = lists.DecodeLists(records, s.logger)
	}
	return snap
}

// detach removes l from the lease table along with the view it kept
// current. It reports whether l was the registered lease for its key.
func (s *Subscriber) detach(l *Lease) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leases[l.key] != l {
		return false
	}
	delete(s.leases, l.key)
	delete(s.cache, l.key)
	return true
}

func errSubscriberClosed() error {
	return appErrors.NewInternalError("live sync subscriber is closed")
}
