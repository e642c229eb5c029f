package ports

import (
	"context"
	"fmt"
	"reflect"
)

// Collections owned by the sync core.
const (
	CollectionVideos = "videos"
	CollectionLists  = "lists"
)

// FieldOwnerID is the scoping field every query and guarded write uses.
const FieldOwnerID = "ownerId"

// Document is a schemaless record body as stored remotely.
type Document map[string]interface{}

// Record is a stored document together with its store-assigned identifier.
type Record struct {
	ID   string
	Data Document
}

// Op is a filter comparison operator.
type Op string

const (
	OpEqual    Op = "=="
	OpNotEqual Op = "!="
)

// Filter is a single {field, op, value} clause. Filters passed together are
// combined with AND.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Eq is shorthand for an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Matches evaluates the filter against a document. A missing field never
// equals anything.
func (f Filter) Matches(doc Document) bool {
	got, ok := doc[f.Field]
	switch f.Op {
	case OpEqual:
		return ok && valuesEqual(got, f.Value)
	case OpNotEqual:
		return !ok || !valuesEqual(got, f.Value)
	default:
		return false
	}
}

// Validate rejects operators stores do not understand.
func (f Filter) Validate() error {
	if f.Field == "" {
		return fmt.Errorf("filter field is empty")
	}
	if f.Op != OpEqual && f.Op != OpNotEqual {
		return fmt.Errorf("unsupported filter operator %q on %s", f.Op, f.Field)
	}
	return nil
}

// MatchesAll reports whether doc satisfies every filter.
func MatchesAll(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

// OwnerFilter returns the owner equality clause if one is present.
func OwnerFilter(filters []Filter) (string, bool) {
	for _, f := range filters {
		if f.Field == FieldOwnerID && f.Op == OpEqual {
			if owner, ok := f.Value.(string); ok {
				return owner, true
			}
		}
	}
	return "", false
}

func valuesEqual(a, b interface{}) bool {
	// Numbers come back as float64 from JSON and DynamoDB decoding.
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// RemoteStore is the generic per-record CRUD, filtered query and change
// subscription contract over named collections.
//
// Update and Delete accept optional conditions evaluated against the stored
// document. A missing record yields a NOT_FOUND error, an existing record that
// fails a condition yields a CONFLICT error. Transport failures are STORE
// errors.
type RemoteStore interface {
	Query(ctx context.Context, collection string, filters []Filter) ([]Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	Update(ctx context.Context, collection, id string, fields Document, conds ...Filter) error
	Delete(ctx context.Context, collection, id string, conds ...Filter) error
	Subscribe(ctx context.Context, collection string, filters []Filter) (Subscription, error)
}

// Subscription streams full result sets for a query.
//
// The first value on Updates is the result set at subscription time; each
// later value replaces the previous one entirely. Updates is closed when the
// subscription ends, after which Err reports the transport failure that ended
// it (nil after Close or context cancellation).
type Subscription interface {
	Updates() <-chan []Record
	Err() error
	Close() error
}
