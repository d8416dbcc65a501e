package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Filter is an equality condition on a top level field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from a single collection. Queries are immutable:
// every builder method returns a copy.
type Query struct {
	collection *CollectionRef
	filters    []Filter
	orderBy    string
	descending bool
	limit      int
}

// Collection returns the collection the query runs on.
func (q *Query) Collection() *CollectionRef { return q.collection }

// Filters returns the equality filters of the query.
func (q *Query) Filters() []Filter { return append([]Filter(nil), q.filters...) }

// Order returns the order-by field and direction. The field is empty when the
// query is ordered by document id.
func (q *Query) Order() (field string, descending bool) { return q.orderBy, q.descending }

// Max returns the limit of the query, zero meaning unlimited.
func (q *Query) Max() int { return q.limit }

// Where adds an equality filter.
func (q *Query) Where(field string, value any) *Query {
	c := q.clone()
	c.filters = append(c.filters, Filter{Field: field, Value: value})
	return c
}

// OrderBy sorts the results by the given top level field.
func (q *Query) OrderBy(field string, descending bool) *Query {
	c := q.clone()
	c.orderBy, c.descending = field, descending
	return c
}

// Limit caps the number of results.
func (q *Query) Limit(n int) *Query {
	c := q.clone()
	c.limit = n
	return c
}

// String returns a stable description of the query, used as its path in
// permission errors and logs.
func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.collection.Path())
	for _, f := range q.filters {
		fmt.Fprintf(&sb, " %s==%v", f.Field, f.Value)
	}
	if q.orderBy != "" {
		fmt.Fprintf(&sb, " orderBy %s", q.orderBy)
		if q.descending {
			sb.WriteString(" desc")
		}
	}
	if q.limit > 0 {
		fmt.Fprintf(&sb, " limit %d", q.limit)
	}
	return sb.String()
}

func (q *Query) clone() *Query {
	c := *q
	c.filters = append([]Filter(nil), q.filters...)
	return &c
}

// Matches reports whether the document data satisfies every filter.
func (q *Query) Matches(data Document) bool {
	for _, f := range q.filters {
		if !sameValue(data[f.Field], f.Value) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits the given snapshots in memory. Backends
// without native query support use it over the documents of the collection.
func (q *Query) Apply(snaps []*Snapshot) []*Snapshot {
	res := make([]*Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.Exists && q.Matches(s.Data) {
			res = append(res, s)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		var less bool
		if q.orderBy == "" {
			less = res[i].Ref.ID() < res[j].Ref.ID()
		} else {
			less = lessValue(res[i].Data[q.orderBy], res[j].Data[q.orderBy])
		}
		if q.descending {
			if q.orderBy == "" {
				return res[j].Ref.ID() < res[i].Ref.ID()
			}
			return lessValue(res[j].Data[q.orderBy], res[i].Data[q.orderBy])
		}
		return less
	})
	if q.limit > 0 && len(res) > q.limit {
		res = res[:q.limit]
	}
	return res
}

// sameValue compares two values by their JSON representation, so 1 and 1.0
// are considered equal as they would be after a round trip through any
// backend.
func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

func lessValue(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
