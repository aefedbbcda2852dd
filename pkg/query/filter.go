// Package query models XOG read requests: filters grouped into queries,
// single object type bundles (NikuDataBus documents) and content packs that
// span several object types.
package query

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/xog-migrate/pkg/xog"
	"github.com/beevik/etree"
)

// Criteria is the comparison a Filter applies.
type Criteria string

const (
	CriteriaEquals  Criteria = "EQUALS"
	CriteriaOr      Criteria = "OR"
	CriteriaBetween Criteria = "BETWEEN"
	CriteriaAfter   Criteria = "AFTER"
)

// Filter restricts a read on one column.
type Filter struct {
	Column   string
	Criteria Criteria
	Values   []any

	// CustomField targets a custom attribute (FilterByCustomInfo).
	CustomField bool
}

// Equals matches column == value.
func Equals(column string, value any) Filter {
	return Filter{Column: column, Criteria: CriteriaEquals, Values: []any{value}}
}

// Any matches column against any of values.
func Any(column string, values ...any) Filter {
	return Filter{Column: column, Criteria: CriteriaOr, Values: values}
}

// Between matches start <= column <= end.
func Between(column string, start, end any) Filter {
	return Filter{Column: column, Criteria: CriteriaBetween, Values: []any{start, end}}
}

// After matches column > value.
func After(column string, value any) Filter {
	return Filter{Column: column, Criteria: CriteriaAfter, Values: []any{value}}
}

// Custom returns a copy of f targeting a custom attribute.
func (f Filter) Custom() Filter {
	f.CustomField = true
	return f
}

// Element renders the filter. Values are comma separated without spaces.
func (f Filter) Element() (*etree.Element, error) {
	tag := "Filter"
	if f.CustomField {
		tag = "FilterByCustomInfo"
	}

	values := make([]string, 0, len(f.Values))
	for _, v := range f.Values {
		s, err := xog.SerializeValue(v, f.CustomField)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Column, err)
		}
		values = append(values, s)
	}

	el := etree.NewElement(tag)
	el.CreateAttr("name", f.Column)
	el.CreateAttr("criteria", string(f.Criteria))
	el.SetText(strings.Join(values, ","))

	return el, nil
}
