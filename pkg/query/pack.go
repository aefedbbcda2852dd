package query

import (
	"github.com/beevik/etree"
)

// ObjectTypeContentPack is the object type of content pack bundles.
const ObjectTypeContentPack = "contentPack"

// Pack is a content pack request spanning several query kinds.
// Filters of queries with the same kind are merged, in first-seen order.
type Pack struct {
	queries []Query
}

// NewPack builds a content pack from queries.
func NewPack(queries ...Query) Pack {
	var merged []Query
	index := make(map[Kind]int)

	for _, q := range queries {
		if i, ok := index[q.Kind]; ok {
			merged[i].Filters = append(merged[i].Filters, q.Filters...)
			continue
		}
		index[q.Kind] = len(merged)
		merged = append(merged, Query{Kind: q.Kind, Filters: append([]Filter(nil), q.Filters...)})
	}

	return Pack{queries: merged}
}

func (Pack) isRequest() {}

// Queries returns the merged query groups.
func (p Pack) Queries() []Query {
	return append([]Query(nil), p.queries...)
}

// Bundle returns the whole pack as a single contentPack bundle.
func (p Pack) Bundle() (Bundle, error) {
	if len(p.queries) == 0 {
		return Bundle{}, ErrEmptyPack
	}
	return NewBundle(ObjectTypeContentPack, nil, p.queries...)
}

// Bundles returns one contentPack bundle per query kind.
func (p Pack) Bundles() ([]Bundle, error) {
	if len(p.queries) == 0 {
		return nil, ErrEmptyPack
	}

	bundles := make([]Bundle, 0, len(p.queries))
	for _, q := range p.queries {
		b, err := NewBundle(ObjectTypeContentPack, nil, q)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

// Element renders the whole pack as one NikuDataBus.
func (p Pack) Element() (*etree.Element, error) {
	b, err := p.Bundle()
	if err != nil {
		return nil, err
	}
	return b.Element()
}
