package xog

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// Common errors returned by the codec and classifier.
var (
	// ErrUnsupportedValueType is returned when a value has no XOG text encoding.
	ErrUnsupportedValueType = errors.New("unsupported value type")

	// ErrMalformedResponse is returned when a response body is not a usable XML document.
	ErrMalformedResponse = errors.New("malformed XOG response")
)

// Default values used when a failure envelope omits its detail fields.
const (
	DefaultSeverity    = "FATAL"
	DefaultDescription = "Failed running XOG"
)

// FailureError is returned when XOG reports a FAILURE status without any
// ErrorInformation explaining why.
type FailureError struct {
	// Doc is the full response document.
	Doc *etree.Document
}

// Error implements the error interface. The message is the default
// description XOG would have given.
func (e *FailureError) Error() string {
	return "xog: " + DefaultDescription
}

// ProtocolError is a failure XOG classified itself, with a severity and a
// human readable description.
type ProtocolError struct {
	Severity    string
	Description string

	// Doc is the full response document.
	Doc *etree.Document
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("xog %s: %s", e.Severity, e.Description)
}

// RawDocument renders a response document for diagnostics.
// Returns an empty string for a nil document.
func RawDocument(doc *etree.Document) string {
	if doc == nil {
		return ""
	}
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}
