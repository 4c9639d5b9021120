package domain

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// FilterOperator is the closed set of payload filter comparisons.
type FilterOperator string

// Supported filter operators.
const (
	OpEqual    FilterOperator = "=="
	OpNotEqual FilterOperator = "!="
	OpIn       FilterOperator = "in"
	OpNotIn    FilterOperator = "not_in"
)

// IsValid returns true if the operator is recognised.
func (o FilterOperator) IsValid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpIn, OpNotIn:
		return true
	default:
		return false
	}
}

// IsSetOperator returns true for in/not_in which take a list value.
func (o FilterOperator) IsSetOperator() bool {
	return o == OpIn || o == OpNotIn
}

// IsNegated returns true for != and not_in.
func (o FilterOperator) IsNegated() bool {
	return o == OpNotEqual || o == OpNotIn
}

// String returns the string representation.
func (o FilterOperator) String() string {
	return string(o)
}

// ParseFilterOperator converts user input into a FilterOperator.
// An empty string defaults to equality.
func ParseFilterOperator(s string) (FilterOperator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "==", "=", "eq":
		return OpEqual, nil
	case "!=", "ne":
		return OpNotEqual, nil
	case "in":
		return OpIn, nil
	case "not_in", "nin":
		return OpNotIn, nil
	default:
		return "", NewValidationError("operator", fmt.Sprintf("unsupported filter operator %q", s))
	}
}

// SearchFilter restricts search hits by a payload field.
// Field may be dotted, e.g. "metadata.access_level".
type SearchFilter struct {
	Field    string         `json:"field"`
	Value    any            `json:"value"`
	Operator FilterOperator `json:"operator"`
}

// NewFilter builds a validated filter.
func NewFilter(field string, op FilterOperator, value any) (SearchFilter, error) {
	f := SearchFilter{Field: field, Value: value, Operator: op}
	if err := f.Validate(); err != nil {
		return SearchFilter{}, err
	}
	return f, nil
}

// Validate checks the filter is well formed.
func (f SearchFilter) Validate() error {
	if strings.TrimSpace(f.Field) == "" {
		return NewValidationError("filters.field", "field is required")
	}
	if !f.Operator.IsValid() {
		return NewValidationError("filters.operator", fmt.Sprintf("unsupported filter operator %q", f.Operator))
	}
	if f.Value == nil {
		return NewValidationError("filters.value", "value is required")
	}
	if f.Operator.IsSetOperator() {
		if _, ok := toList(f.Value); !ok {
			return NewValidationError("filters.value", fmt.Sprintf("operator %s requires a list value", f.Operator))
		}
	}
	return nil
}

// Values returns the filter value as a list. Scalars become single-element lists.
func (f SearchFilter) Values() []any {
	if list, ok := toList(f.Value); ok {
		return list
	}
	return []any{f.Value}
}

// Matches evaluates the filter against a payload map.
// A missing field never satisfies == or in, and always satisfies != and not_in.
func (f SearchFilter) Matches(payload map[string]any) bool {
	actual, found := LookupField(payload, f.Field)
	var hit bool
	if found {
		for _, want := range f.Values() {
			if valueMatches(actual, want) {
				hit = true
				break
			}
		}
	}
	if f.Operator.IsNegated() {
		return !hit
	}
	return hit
}

// MatchesAll reports whether every filter matches (logical AND).
func MatchesAll(filters []SearchFilter, payload map[string]any) bool {
	for _, f := range filters {
		if !f.Matches(payload) {
			return false
		}
	}
	return true
}

// LookupField resolves a dotted path inside nested maps.
func LookupField(payload map[string]any, path string) (any, bool) {
	var cur any = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// valueMatches compares a payload value against a wanted value.
// When the payload value is a list, any element may match.
func valueMatches(actual, want any) bool {
	if list, ok := toList(actual); ok {
		for _, item := range list {
			if scalarEqual(item, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(actual, want)
}

func scalarEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return math.Abs(af-bf) < 1e-9
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// SearchQuery is a semantic similarity query.
type SearchQuery struct {
	Query string `json:"query"`

	// CollectionName pins the search to one collection.
	// When empty the document_type filter or all collections are used.
	CollectionName string `json:"collection_name,omitempty"`

	Filters []SearchFilter `json:"filters,omitempty"`

	// MaxResults falls back to the service default when <= 0.
	MaxResults int `json:"max_results,omitempty"`

	// SimilarityThreshold falls back to the service default when nil.
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`

	// HybridSearch is reserved and currently ignored.
	HybridSearch bool `json:"hybrid_search,omitempty"`
}

// Validate checks the query text and filters.
func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return NewValidationError("query", "query text is required")
	}
	if q.MaxResults < 0 {
		return NewValidationError("max_results", "must not be negative")
	}
	if q.SimilarityThreshold != nil && (*q.SimilarityThreshold < 0 || *q.SimilarityThreshold > 1) {
		return NewValidationError("similarity_threshold", "must be within [0, 1]")
	}
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DocumentTypeFilter returns the type pinned by a document_type == filter, if any.
func (q SearchQuery) DocumentTypeFilter() (DocumentType, bool) {
	for _, f := range q.Filters {
		if f.Field != "document_type" || f.Operator != OpEqual {
			continue
		}
		t := DocumentType(fmt.Sprint(f.Value))
		if t.IsValid() {
			return t, true
		}
	}
	return "", false
}

// Float64 returns a pointer to v. Handy for SimilarityThreshold literals.
func Float64(v float64) *float64 {
	return &v
}

// SearchResult is a single similarity hit.
type SearchResult struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Content    string         `json:"content"`
	Score      float64        `json:"score"`
	Collection string         `json:"collection,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResponse aggregates hits for a query.
type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	SearchTimeMs float64        `json:"search_time_ms"`
	Cached       bool           `json:"cached"`
}
