package payclient

import (
	"context"
	"errors"
	"fmt"
	"net"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
)

// ErrorKind classifies why a charge attempt (or the whole call) failed.
type ErrorKind int

const (
	// ErrorKindNone is the zero value and means no failure.
	ErrorKindNone ErrorKind = iota

	// ErrorKindTimeout means an attempt exceeded its deadline.
	ErrorKindTimeout

	// ErrorKindConnection means the payment service was unreachable or
	// dropped the connection.
	ErrorKindConnection

	// ErrorKindClient means the payment service rejected the request as
	// malformed or unauthorized (4xx other than 429). Not retryable.
	ErrorKindClient

	// ErrorKindServer means the payment service reported an internal
	// error (5xx or an incoherent reply). Retryable.
	ErrorKindServer

	// ErrorKindRateLimited means the payment service throttled the
	// request (429). Retryable and never counted against the breaker.
	ErrorKindRateLimited

	// ErrorKindCircuitOpen means the breaker rejected the call before
	// any attempt was made.
	ErrorKindCircuitOpen

	// ErrorKindMaxRetriesExceeded means the attempt budget ran out
	// without reaching a terminal outcome.
	ErrorKindMaxRetriesExceeded

	// ErrorKindCancelled means the caller's context ended the call.
	ErrorKindCancelled
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindConnection:
		return "connection_error"
	case ErrorKindClient:
		return "client_error"
	case ErrorKindServer:
		return "server_error"
	case ErrorKindRateLimited:
		return "rate_limited"
	case ErrorKindCircuitOpen:
		return "circuit_open"
	case ErrorKindMaxRetriesExceeded:
		return "max_retries_exceeded"
	case ErrorKindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed. Client errors
// and breaker rejections are terminal on first occurrence.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindConnection, ErrorKindServer, ErrorKindRateLimited:
		return true
	default:
		return false
	}
}

// TripsBreaker reports whether the failure counts toward opening the
// circuit. Rate limits are expected transient pushback and do not count;
// client errors do, because a burst of them can indicate a degraded
// counterpart even though they are not retried.
func (k ErrorKind) TripsBreaker() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindConnection, ErrorKindServer, ErrorKindClient:
		return true
	default:
		return false
	}
}

// ChargeError carries a classified failure through the retry loop. The
// transport and the status mapping produce these; the client folds the
// final one into a ChargeResult.
type ChargeError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

// Error implements the error interface.
func (e *ChargeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
	return e.Kind.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *ChargeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status associated with the failure, or 0.
func (e *ChargeError) StatusCode() int {
	return e.Status
}

// NewChargeError wraps err with a classification and optional status code.
func NewChargeError(kind ErrorKind, status int, err error) *ChargeError {
	return &ChargeError{Kind: kind, Status: status, Err: err}
}

// KindOf extracts the classification from an error, or ErrorKindNone when
// the error carries none.
func KindOf(err error) ErrorKind {
	var ce *ChargeError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorKindNone
}

// ClassifyStatus maps a payment-service HTTP status to an error kind.
// 2xx maps to ErrorKindNone. Statuses outside the known classes are
// treated as server errors: an incoherent reply is evidence of a
// degraded counterpart.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return ErrorKindNone
	case status == 429:
		return ErrorKindRateLimited
	case status >= 400 && status < 500:
		return ErrorKindClient
	default:
		return ErrorKindServer
	}
}

// ClassifyError maps a transport-level error to an error kind. Deadline
// errors are timeouts; everything else that went wrong on the wire is a
// connection error.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if kind := KindOf(err); kind != ErrorKindNone {
		return kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || pkgerrors.IsTimeout(err) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}
	if errors.Is(err, pkgerrors.ErrRateLimited) {
		return ErrorKindRateLimited
	}
	return ErrorKindConnection
}
