package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Matches(t *testing.T) {
	doc := Document{"ownerId": "u1", "isFavorite": true, "count": 3.0}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"equal string", Eq("ownerId", "u1"), true},
		{"equal string mismatch", Eq("ownerId", "u2"), false},
		{"equal bool", Eq("isFavorite", true), true},
		{"int against float", Eq("count", 3), true},
		{"missing field never equals", Eq("title", ""), false},
		{"not equal", Filter{Field: "ownerId", Op: OpNotEqual, Value: "u2"}, true},
		{"not equal on missing field", Filter{Field: "title", Op: OpNotEqual, Value: "x"}, true},
		{"unknown op", Filter{Field: "ownerId", Op: ">", Value: "u1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(doc))
		})
	}
}

func TestMatchesAll(t *testing.T) {
	doc := Document{"ownerId": "u1", "isFavorite": false}

	assert.True(t, MatchesAll(doc, nil))
	assert.True(t, MatchesAll(doc, []Filter{Eq("ownerId", "u1"), Eq("isFavorite", false)}))
	assert.False(t, MatchesAll(doc, []Filter{Eq("ownerId", "u1"), Eq("isFavorite", true)}))
}

func TestFilter_Validate(t *testing.T) {
	assert.NoError(t, Eq("ownerId", "u1").Validate())
	assert.Error(t, Filter{Op: OpEqual}.Validate())
	assert.Error(t, Filter{Field: "x", Op: "<"}.Validate())
}

func TestOwnerFilter(t *testing.T) {
	owner, ok := OwnerFilter([]Filter{Eq("isFavorite", true), Eq(FieldOwnerID, "u7")})
	assert.True(t, ok)
	assert.Equal(t, "u7", owner)

	_, ok = OwnerFilter([]Filter{{Field: FieldOwnerID, Op: OpNotEqual, Value: "u7"}})
	assert.False(t, ok)
}
