package client

import "fmt"

// AuthError indicates rejected or expired credentials. It is not retryable;
// callers must re-authenticate (the client already retries once internally
// when a session token expires mid-flight).
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("authentication failed (%d)", e.Status)
}

// NotFoundError indicates the server no longer knows the requested resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// TransportError covers network failures, timeouts, redirects and other
// HTTP-level errors. Retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportErrf(op, format string, args ...interface{}) *TransportError {
	return &TransportError{Op: op, Err: fmt.Errorf(format, args...)}
}
