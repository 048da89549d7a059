package vector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// BackendError wraps a backend failure with a retry classification. The
// sync coordinator retries transient errors with backoff and fails fast on
// permanent ones.
type BackendError struct {
	// Backend names the adapter kind that produced the error.
	Backend string

	// Op is the failing operation (upsert, delete, query, health).
	Op string

	// Transient marks errors worth retrying: timeouts, connection
	// failures, 5xx responses. Auth failures and malformed requests are
	// permanent.
	Transient bool

	// Err is the underlying cause.
	Err error
}

func (e *BackendError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Backend, e.Op, kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a transient BackendError.
// Unclassified errors count as transient so unknown failures get retried.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	return true
}

// transientErr builds a retryable BackendError.
func transientErr(backend, op string, err error) *BackendError {
	return &BackendError{Backend: backend, Op: op, Transient: true, Err: err}
}

// permanentErr builds a non-retryable BackendError.
func permanentErr(backend, op string, err error) *BackendError {
	return &BackendError{Backend: backend, Op: op, Transient: false, Err: err}
}

// classifyHTTPStatus maps an HTTP response code to a BackendError. 5xx and
// 429 are transient; other 4xx are permanent.
func classifyHTTPStatus(backend, op string, status int, body string) *BackendError {
	err := fmt.Errorf("status %d: %s", status, body)
	if status >= 500 || status == http.StatusTooManyRequests {
		return transientErr(backend, op, err)
	}
	return permanentErr(backend, op, err)
}

// classifyNetErr maps a transport-level error. Context cancellation passes
// through untouched so callers can distinguish their own cancellation.
func classifyNetErr(backend, op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return transientErr(backend, op, err)
	}
	// Unknown transport failure, assume retryable.
	return transientErr(backend, op, err)
}
