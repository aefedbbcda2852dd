package query

import (
	"github.com/beevik/etree"
)

// Kind names a query group; it becomes the group's element tag.
type Kind string

const (
	KindQuery  Kind = "Query"
	KindLookup Kind = "LookupQuery"
)

// Query is one group of filters.
type Query struct {
	Kind    Kind
	Filters []Filter
}

// NewQuery groups filters into a plain Query.
func NewQuery(filters ...Filter) Query {
	return Query{Kind: KindQuery, Filters: filters}
}

// NewLookupQuery groups filters into a LookupQuery.
func NewLookupQuery(filters ...Filter) Query {
	return Query{Kind: KindLookup, Filters: filters}
}

// LookupCodes selects lookups by code.
func LookupCodes(codes ...string) Query {
	values := make([]any, len(codes))
	for i, code := range codes {
		values[i] = code
	}
	return NewLookupQuery(Any("code", values...))
}

func (q Query) element() (*etree.Element, error) {
	el := etree.NewElement(string(q.Kind))
	for _, f := range q.Filters {
		child, err := f.Element()
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}
