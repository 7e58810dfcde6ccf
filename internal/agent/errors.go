package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind is the coarse category of a failed model call.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindTimeout   ErrorKind = "timeout"
	KindRateLimit ErrorKind = "rate_limit"
	KindOther     ErrorKind = "other"
)

// Error is returned by every Processor call that fails.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("model call failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the category of err. Errors that did not come from a
// Processor are treated as timeouts when a deadline expired and as
// KindOther otherwise.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}
	if isTimeout(err) {
		return KindTimeout
	}
	return KindOther
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
