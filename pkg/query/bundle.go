package query

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Sternrassler/xog-migrate/pkg/xog"
	"github.com/beevik/etree"
)

var (
	// ErrNoQueries is returned for a bundle without any query group.
	ErrNoQueries = errors.New("bundle requires at least one query")

	// ErrEmptyPack is returned for a content pack without any query.
	ErrEmptyPack = errors.New("content pack requires at least one query")

	// ErrUnsupportedRequest is returned for a Request that is neither a Bundle nor a Pack.
	ErrUnsupportedRequest = errors.New("unsupported request")
)

// ArgSkip is the header argument carrying the pagination offset.
const ArgSkip = "skip"

// Header defaults.
const (
	DefaultVersion        = "8.0"
	DefaultAction         = "read"
	DefaultExternalSource = "NIKU"
)

// Request is something the migration pipeline can read from a source.
// It is implemented by Bundle and Pack only.
type Request interface {
	Element() (*etree.Element, error)
	isRequest()
}

// Arg is a named header argument such as order_by_1 or skip.
type Arg struct {
	Name  string
	Value any
}

// Header describes what a bundle reads.
type Header struct {
	ObjectType     string
	Version        string
	Action         string
	ExternalSource string
	Args           []Arg
}

// Bundle is a single object type read request, rendered as a NikuDataBus.
type Bundle struct {
	Header  Header
	Queries []Query
}

// NewBundle builds a read bundle for objectType.
func NewBundle(objectType string, args []Arg, queries ...Query) (Bundle, error) {
	b := Bundle{
		Header: Header{
			ObjectType:     objectType,
			Version:        DefaultVersion,
			Action:         DefaultAction,
			ExternalSource: DefaultExternalSource,
			Args:           args,
		},
		Queries: queries,
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

func (Bundle) isRequest() {}

// Validate checks the bundle carries at least one query group.
func (b Bundle) Validate() error {
	if len(b.Queries) == 0 {
		return fmt.Errorf("%s: %w", b.Header.ObjectType, ErrNoQueries)
	}
	return nil
}

// Arg returns the value of a header argument.
func (b Bundle) Arg(name string) (any, bool) {
	for _, a := range b.Header.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// WithArg returns a copy of b with the named argument set to value.
// b itself is never modified.
func (b Bundle) WithArg(name string, value any) Bundle {
	args := slices.Clone(b.Header.Args)

	i := slices.IndexFunc(args, func(a Arg) bool { return a.Name == name })
	if i >= 0 {
		args[i].Value = value
	} else {
		args = append(args, Arg{Name: name, Value: value})
	}

	b.Header.Args = args
	return b
}

// WithSkip returns a copy of b reading from offset skip.
func (b Bundle) WithSkip(skip int) Bundle {
	return b.WithArg(ArgSkip, skip)
}

// Element renders the bundle as a NikuDataBus element.
func (b Bundle) Element() (*etree.Element, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	databus := etree.NewElement("NikuDataBus")

	header := databus.CreateElement("Header")
	header.CreateAttr("version", orDefault(b.Header.Version, DefaultVersion))
	header.CreateAttr("action", orDefault(b.Header.Action, DefaultAction))
	header.CreateAttr("objectType", b.Header.ObjectType)
	header.CreateAttr("externalSource", orDefault(b.Header.ExternalSource, DefaultExternalSource))

	for _, a := range b.Header.Args {
		value, err := xog.SerializeValue(a.Value, false)
		if err != nil {
			return nil, fmt.Errorf("arg %s: %w", a.Name, err)
		}
		arg := header.CreateElement("args")
		arg.CreateAttr("name", a.Name)
		arg.CreateAttr("value", value)
	}

	for _, q := range b.Queries {
		el, err := q.element()
		if err != nil {
			return nil, err
		}
		databus.AddChild(el)
	}

	return databus, nil
}

func orDefault(s, dflt string) string {
	if s == "" {
		return dflt
	}
	return s
}

// Bundles normalizes a request into the bundles that have to be migrated, in order.
func Bundles(req Request) ([]Bundle, error) {
	switch r := req.(type) {
	case Bundle:
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return []Bundle{r}, nil
	case *Bundle:
		return Bundles(*r)
	case Pack:
		return r.Bundles()
	case *Pack:
		return r.Bundles()
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedRequest, req)
	}
}
