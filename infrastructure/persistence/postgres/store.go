// Package postgres implements the RemoteStore on a single JSONB documents
// table. A trigger raises NOTIFY on every write so subscriptions are pushed
// through a pq.Listener instead of polling.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/ports"
	"github.com/jclararobles/AppListVideos/infrastructure/persistence/feed"
	appErrors "github.com/jclararobles/AppListVideos/pkg/errors"
)

const notifyChannel = "documents_changed"

// Store implements ports.RemoteStore.
type Store struct {
	db     *sql.DB
	dsn    string
	logger *zap.Logger

	mu       sync.Mutex
	subs     map[*subscription]struct{}
	listener *pq.Listener
}

// Open connects to dsn and applies pending migrations
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	s, err := NewStore(db, dsn, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps db. dsn is used for the notification listener.
func NewStore(db *sql.DB, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:     db,
		dsn:    dsn,
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}
	if err := s.migrate(migrations); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close stops the listener and closes the pool
func (s *Store) Close() error {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*subscription]struct{})
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.End(nil)
	}
	if listener != nil {
		listener.Close()
	}
	return s.db.Close()
}

// Query returns matching records in insertion order
func (s *Store) Query(ctx context.Context, collection string, filters []ports.Filter) ([]ports.Record, error) {
	where, args, err := whereClause(filters, 2)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, data FROM documents WHERE collection = $1` + where + ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, append([]interface{}{collection}, args...)...)
	if err != nil {
		return nil, appErrors.NewStoreError("query", err)
	}
	defer rows.Close()

	records := []ports.Record{}
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, appErrors.NewStoreError("query", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			s.logger.Warn("Skipping undecodable document", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
			continue
		}
		records = append(records, ports.Record{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.NewStoreError("query", err)
	}
	return records, nil
}

// Get returns a single record
func (s *Store) Get(ctx context.Context, collection, id string) (ports.Record, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Record{}, appErrors.NewNotFoundError(collection, id)
	}
	if err != nil {
		return ports.Record{}, appErrors.NewStoreError("get", err)
	}
	doc, err := decodeDoc(raw)
	if err != nil {
		return ports.Record{}, appErrors.NewInternalError("failed to decode document").WithCause(err)
	}
	return ports.Record{ID: id, Data: doc}, nil
}

// Insert stores doc under a fresh uuid
func (s *Store) Insert(ctx context.Context, collection string, doc ports.Document) (string, error) {
	if doc == nil {
		doc = ports.Document{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", appErrors.NewInternalError("failed to encode document").WithCause(err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`, collection, id, string(raw))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return "", appErrors.NewConflictError("record already exists: " + collection + "/" + id)
		}
		return "", appErrors.NewStoreError("insert", err)
	}

	s.logger.Debug("Document inserted", zap.String("collection", collection), zap.String("id", id))
	return id, nil
}

// Update merges fields into an existing record when conds hold
func (s *Store) Update(ctx context.Context, collection, id string, fields ports.Document, conds ...ports.Filter) error {
	if err := validateFilters(conds); err != nil {
		return err
	}
	if fields == nil {
		fields = ports.Document{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return appErrors.NewInternalError("failed to encode fields").WithCause(err)
	}

	return s.guarded(ctx, "update", collection, id, conds, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
			collection, id, string(raw))
		return err
	})
}

// Delete removes a record when conds hold
func (s *Store) Delete(ctx context.Context, collection, id string, conds ...ports.Filter) error {
	if err := validateFilters(conds); err != nil {
		return err
	}
	return s.guarded(ctx, "delete", collection, id, conds, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
		return err
	})
}

// guarded locks the row, checks it exists and satisfies conds, then runs
// write in the same transaction.
func (s *Store) guarded(ctx context.Context, op, collection, id string, conds []ports.Filter, write func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return appErrors.NewStoreError(op, err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NewNotFoundError(collection, id)
	}
	if err != nil {
		return appErrors.NewStoreError(op, err)
	}
	doc, err := decodeDoc(raw)
	if err != nil {
		return appErrors.NewInternalError("failed to decode document").WithCause(err)
	}
	if !ports.MatchesAll(doc, conds) {
		return appErrors.NewConflictError("condition failed for " + collection + "/" + id)
	}

	if err := write(tx); err != nil {
		return appErrors.NewStoreError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return appErrors.NewStoreError(op, err)
	}
	return nil
}

// whereClause renders filters as JSONB containment tests with placeholders
// numbered from first.
func whereClause(filters []ports.Filter, first int) (string, []interface{}, error) {
	if err := validateFilters(filters); err != nil {
		return "", nil, err
	}
	var (
		b    strings.Builder
		args []interface{}
	)
	for i, f := range filters {
		raw, err := json.Marshal(map[string]interface{}{f.Field: f.Value})
		if err != nil {
			return "", nil, appErrors.NewInternalError("failed to encode filter").WithCause(err)
		}
		n := first + i
		if f.Op == ports.OpNotEqual {
			fmt.Fprintf(&b, " AND NOT (data @> $%d::jsonb)", n)
		} else {
			fmt.Fprintf(&b, " AND data @> $%d::jsonb", n)
		}
		args = append(args, string(raw))
	}
	return b.String(), args, nil
}

func validateFilters(filters []ports.Filter) error {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return appErrors.NewInternalError("invalid filter").WithCause(err)
		}
	}
	return nil
}

func decodeDoc(raw []byte) (ports.Document, error) {
	doc := ports.Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Subscribe emits the current result set and then a fresh one whenever the
// documents trigger reports a write to collection.
func (s *Store) Subscribe(ctx context.Context, collection string, filters []ports.Filter) (ports.Subscription, error) {
	if err := s.ensureListener(); err != nil {
		return nil, appErrors.NewSyncError(collection, err)
	}

	var sub *subscription
	sub = &subscription{
		Feed:       feed.New(collection, func() { s.unsubscribe(sub) }),
		collection: collection,
		filters:    append([]ports.Filter(nil), filters...),
		ctx:        ctx,
	}
	// Registered before the first query so no notification is missed
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	ticket := sub.ticket()
	initial, err := s.Query(ctx, collection, filters)
	if err != nil {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		return nil, err
	}
	sub.deliver(ticket, initial)

	go func() {
		select {
		case <-ctx.Done():
			s.unsubscribe(sub)
		case <-sub.Done():
		}
	}()
	return sub, nil
}

type subscription struct {
	*feed.Feed
	collection string
	filters    []ports.Filter
	ctx        context.Context

	mu        sync.Mutex
	issued    uint64
	delivered uint64
}

// ticket numbers a query before it runs
func (sub *subscription) ticket() uint64 {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.issued++
	return sub.issued
}

// deliver drops results of a query that started before the last delivered
// one, so a slow query never overwrites a newer result set.
func (sub *subscription) deliver(ticket uint64, records []ports.Record) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if ticket < sub.delivered {
		return false
	}
	sub.delivered = ticket
	sub.Deliver(records)
	return true
}

func (s *Store) unsubscribe(sub *subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	sub.End(nil)
}

func (s *Store) ensureListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			s.logger.Warn("Notification listener connection problem", zap.Error(err))
		case pq.ListenerEventReconnected:
			s.logger.Info("Notification listener reconnected")
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return err
	}
	s.listener = listener
	go s.listen(listener)
	return nil
}

func (s *Store) listen(listener *pq.Listener) {
	keepalive := time.NewTicker(90 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect: notifications may have been missed
			if n == nil {
				s.refresh("")
				continue
			}
			s.refresh(n.Extra)
		case <-keepalive.C:
			go func() {
				if err := listener.Ping(); err != nil {
					s.logger.Warn("Notification listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// refresh re-queries the subscriptions on collection, or all of them when
// collection is empty. A failed query ends that subscription.
func (s *Store) refresh(collection string) {
	s.mu.Lock()
	var targets []*subscription
	for sub := range s.subs {
		if collection == "" || sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		ticket := sub.ticket()
		records, err := s.Query(sub.ctx, sub.collection, sub.filters)
		if err != nil {
			if sub.ctx.Err() != nil {
				continue
			}
			s.logger.Warn("Subscription refresh failed", zap.String("collection", sub.collection), zap.Error(err))
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			sub.End(err)
			continue
		}
		sub.deliver(ticket, records)
	}
}
