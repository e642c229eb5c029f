// Package memory provides an in-process RemoteStore used for local
// development and as the reference behaviour in tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/feed"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

type storedDoc struct {
	seq  uint64
	data ports.Document
}

// Store keeps collections in maps guarded by a single mutex.
// Every document crossing the API boundary is deep-copied.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]storedDoc
	seq         uint64
	subs        map[*subscription]struct{}
	failures    map[string]error
	writes      int
	logger      *zap.Logger
}

// NewStore creates an empty store
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		collections: make(map[string]map[string]storedDoc),
		subs:        make(map[*subscription]struct{}),
		failures:    make(map[string]error),
		logger:      logger,
	}
}

// FailNext makes the next call of op ("query", "get", "insert", "update",
// "delete", "subscribe") fail with err as a transport error.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// BreakSubscriptions ends every open subscription on collection with err.
func (s *Store) BreakSubscriptions(collection string, err error) {
	s.mu.Lock()
	var broken []*subscription
	for sub := range s.subs {
		if sub.collection == collection {
			broken = append(broken, sub)
			delete(s.subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range broken {
		sub.End(err)
	}
}

// Writes reports how many successful insert, update and delete calls were made.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// OpenSubscriptions reports how many subscriptions are live.
func (s *Store) OpenSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Query returns matching records in insertion order
func (s *Store) Query(ctx context.Context, collection string, filters []ports.Filter) ([]ports.Record, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("query"); err != nil {
		return nil, err
	}
	return s.queryLocked(collection, filters), nil
}

// Get returns a single record
func (s *Store) Get(ctx context.Context, collection, id string) (ports.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("get"); err != nil {
		return ports.Record{}, err
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return ports.Record{}, appErrors.NewNotFoundError(collection, id)
	}
	return ports.Record{ID: id, Data: copyDoc(doc.data)}, nil
}

// Insert stores doc under a fresh uuid
func (s *Store) Insert(ctx context.Context, collection string, doc ports.Document) (string, error) {
	s.mu.Lock()
	if err := s.takeFailure("insert"); err != nil {
		s.mu.Unlock()
		return "", err
	}
	id := uuid.New().String()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]storedDoc)
	}
	s.seq++
	s.collections[collection][id] = storedDoc{seq: s.seq, data: copyDoc(doc)}
	s.writes++
	s.notifyLocked(collection)
	s.mu.Unlock()

	s.logger.Debug("document inserted", zap.String("collection", collection), zap.String("id", id))
	return id, nil
}

// Update merges fields into an existing record when conds hold
func (s *Store) Update(ctx context.Context, collection, id string, fields ports.Document, conds ...ports.Filter) error {
	if err := validateFilters(conds); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.takeFailure("update"); err != nil {
		s.mu.Unlock()
		return err
	}
	doc, err := s.guardLocked(collection, id, conds)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	merged := copyDoc(doc.data)
	for k, v := range copyDoc(fields) {
		merged[k] = v
	}
	doc.data = merged
	s.collections[collection][id] = doc
	s.writes++
	s.notifyLocked(collection)
	s.mu.Unlock()
	return nil
}

// Delete removes a record when conds hold
func (s *Store) Delete(ctx context.Context, collection, id string, conds ...ports.Filter) error {
	if err := validateFilters(conds); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.takeFailure("delete"); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, err := s.guardLocked(collection, id, conds); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.collections[collection], id)
	s.writes++
	s.notifyLocked(collection)
	s.mu.Unlock()
	return nil
}

// Subscribe emits the current result set and then a full result set after
// every write to collection. Slow readers only ever see the latest set.
func (s *Store) Subscribe(ctx context.Context, collection string, filters []ports.Filter) (ports.Subscription, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	var sub *subscription
	sub = &subscription{
		Feed:       feed.New(collection, func() { s.unsubscribe(sub) }),
		collection: collection,
		filters:    append([]ports.Filter(nil), filters...),
	}

	s.mu.Lock()
	if err := s.takeFailure("subscribe"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.subs[sub] = struct{}{}
	sub.Deliver(s.queryLocked(collection, filters))
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.unsubscribe(sub)
		case <-sub.Done():
		}
	}()
	return sub, nil
}

func (s *Store) unsubscribe(sub *subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	sub.End(nil)
}

// notifyLocked pushes the current result set to every subscription on
// collection. Delivery happens under s.mu so sets reach each feed in write
// order; Deliver never blocks.
func (s *Store) notifyLocked(collection string) {
	for sub := range s.subs {
		if sub.collection == collection {
			sub.Deliver(s.queryLocked(collection, sub.filters))
		}
	}
}

func (s *Store) queryLocked(collection string, filters []ports.Filter) []ports.Record {
	docs := s.collections[collection]
	type seqRecord struct {
		seq uint64
		rec ports.Record
	}
	matched := make([]seqRecord, 0, len(docs))
	for id, doc := range docs {
		if ports.MatchesAll(doc.data, filters) {
			matched = append(matched, seqRecord{seq: doc.seq, rec: ports.Record{ID: id, Data: copyDoc(doc.data)}})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	records := make([]ports.Record, len(matched))
	for i, m := range matched {
		records[i] = m.rec
	}
	return records
}

// guardLocked loads id and checks conds. Missing is NOT_FOUND, a failed
// condition on an existing record is CONFLICT.
func (s *Store) guardLocked(collection, id string, conds []ports.Filter) (storedDoc, error) {
	doc, ok := s.collections[collection][id]
	if !ok {
		return storedDoc{}, appErrors.NewNotFoundError(collection, id)
	}
	if !ports.MatchesAll(doc.data, conds) {
		return storedDoc{}, appErrors.NewConflictError("condition failed for " + collection + "/" + id)
	}
	return doc, nil
}

func (s *Store) takeFailure(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return appErrors.NewStoreError(op, err)
}

func validateFilters(filters []ports.Filter) error {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return appErrors.NewInternalError("invalid filter").WithCause(err)
		}
	}
	return nil
}

// copyDoc deep-copies through JSON so nested slices and maps are never
// shared with callers.
func copyDoc(doc ports.Document) ports.Document {
	if doc == nil {
		return ports.Document{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		// Documents are built from JSON-compatible values only.
		panic(err)
	}
	out := ports.Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

type subscription struct {
	*feed.Feed
	collection string
	filters    []ports.Filter
}
