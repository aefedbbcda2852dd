package client

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/xog-migrate/pkg/xog"
	"github.com/beevik/etree"
)

// ErrorClass represents a classification of call failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx HTTP errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx HTTP errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connection faults and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassProtocol represents a failure XOG described with ErrorInformation.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassUnclassified represents a FAILURE status without ErrorInformation.
	ErrorClassUnclassified ErrorClass = "unclassified"

	// ErrorClassMalformed represents a response body that could not be parsed.
	ErrorClassMalformed ErrorClass = "malformed"
)

// TransportError is returned when the HTTP exchange itself fails, before any
// XOG classification happens.
type TransportError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xog transport %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("xog transport %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError is returned by Login when the credentials were rejected or the
// response carried no session ID.
type AuthError struct {
	// Doc is the response document that caused the failure.
	Doc *etree.Document

	// Err is the protocol error XOG reported, if any.
	Err error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return "invalid username or password"
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// classOf maps any error returned by Call to its ErrorClass.
func classOf(err error) ErrorClass {
	var transportErr *TransportError
	var protocolErr *xog.ProtocolError
	var failureErr *xog.FailureError

	switch {
	case errors.As(err, &transportErr):
		return transportErr.ErrorClass
	case errors.As(err, &protocolErr):
		return ErrorClassProtocol
	case errors.As(err, &failureErr):
		return ErrorClassUnclassified
	case errors.Is(err, xog.ErrMalformedResponse):
		return ErrorClassMalformed
	default:
		return ErrorClassNetwork
	}
}

// classifyStatus categorizes an HTTP status code of a failed exchange.
func classifyStatus(statusCode int) ErrorClass {
	if statusCode >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}
