package storage

import (
	"context"
	"sort"

	"clipit/pkg/types"
)

// ResultSet is an in-memory snapshot of fetched entries. Filter and Sort
// never modify the receiver.
type ResultSet struct {
	source  Querier
	query   Filter
	steps   []func([]types.Entry) []types.Entry
	entries []types.Entry
}

// NewResultSet wraps entries fetched from source with query
func NewResultSet(source Querier, query Filter, entries []types.Entry) *ResultSet {
	return &ResultSet{
		source:  source,
		query:   query,
		entries: entries,
	}
}

func (r *ResultSet) derive(step func([]types.Entry) []types.Entry) *ResultSet {
	steps := make([]func([]types.Entry) []types.Entry, len(r.steps), len(r.steps)+1)
	copy(steps, r.steps)
	return &ResultSet{
		source:  r.source,
		query:   r.query,
		steps:   append(steps, step),
		entries: step(r.entries),
	}
}

// Filter keeps the entries matching f
func (r *ResultSet) Filter(f Filter) *ResultSet {
	return r.derive(func(in []types.Entry) []types.Entry {
		out := make([]types.Entry, 0, len(in))
		for _, e := range in {
			if f.Match(e) {
				out = append(out, e)
			}
		}
		return out
	})
}

// Sort orders entries by field. The sort is stable, so equal keys keep
// their storage order.
func (r *ResultSet) Sort(field Field, reverse bool) *ResultSet {
	return r.derive(func(in []types.Entry) []types.Entry {
		out := make([]types.Entry, len(in))
		copy(out, in)
		sort.SliceStable(out, func(i, j int) bool {
			if reverse {
				return field.less(out[j], out[i])
			}
			return field.less(out[i], out[j])
		})
		return out
	})
}

// All returns a copy of the entries
func (r *ResultSet) All() []types.Entry {
	out := make([]types.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// First returns the first entry or ErrNotFound
func (r *ResultSet) First() (types.Entry, error) {
	if len(r.entries) == 0 {
		return types.Entry{}, ErrNotFound
	}
	return r.entries[0], nil
}

func (r *ResultSet) Len() int {
	return len(r.entries)
}

// IDs returns entry ids in set order
func (r *ResultSet) IDs() []int64 {
	ids := make([]int64, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}

// Source returns the handle that produced the set
func (r *ResultSet) Source() Querier {
	return r.source
}

// Reload fetches the query again from the source and replays every
// Filter and Sort applied since.
func (r *ResultSet) Reload(ctx context.Context) (*ResultSet, error) {
	fresh, err := r.source.Fetch(ctx, r.query)
	if err != nil {
		return nil, err
	}
	entries := fresh.entries
	for _, step := range r.steps {
		entries = step(entries)
	}
	return &ResultSet{
		source:  r.source,
		query:   r.query,
		steps:   r.steps,
		entries: entries,
	}, nil
}
