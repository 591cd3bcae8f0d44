package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Class is the retry disposition of an error.
type Class int

const (
	ClassPermanent Class = iota
	ClassTransient
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassCanceled:
		return "canceled"
	default:
		return "permanent"
	}
}

// TransientError marks an upstream failure as retryable. StatusCode is the
// HTTP status that caused it, or 0.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PermanentError marks an upstream rejection that another attempt cannot
// fix, such as a bad request or a rejected credential.
type PermanentError struct {
	Err        error
	StatusCode int
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError marks err as not retryable.
func NewPermanentError(err error, statusCode int) *PermanentError {
	return &PermanentError{Err: err, StatusCode: statusCode}
}

// droppedConn matches messages of wrapped transport errors that lost their
// syscall error on the way up.
var droppedConn = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
}

var droppedErrno = []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED}

// Classify decides whether err is worth another attempt. A canceled
// context is never retried; an expired deadline counts as a timeout.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassPermanent
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	}

	var pe *PermanentError
	if errors.As(err, &pe) {
		return ClassPermanent
	}
	var te *TransientError
	if errors.As(err, &te) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	for _, errno := range droppedErrno {
		if errors.Is(err, errno) {
			return ClassTransient
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range droppedConn {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}
	return ClassPermanent
}

// IsPermanent reports whether err carries an explicit PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether Classify(err) is ClassTransient.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
// 529 is the Messages API's overloaded status.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 529:
		return true
	}
	return statusCode >= 500 && statusCode <= 504
}
