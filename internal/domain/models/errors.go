package models

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrStorageUnavailable means both the remote and the local backend failed
// for a single call. Surfaced to the caller, never swallowed.
var ErrStorageUnavailable = errors.New("storage unavailable: remote and local backends unreachable")

// FieldViolation describes one invalid field on a record.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError rejects a malformed record. Caller's fault; never retried.
type ValidationError struct {
	Kind       Kind
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, "; "))
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConnectivityError marks a transient backend reachability failure. It
// triggers the single local-fallback retry in the selector.
type ConnectivityError struct {
	Backend string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s backend unreachable: %v", e.Backend, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity classifies an error as a reachability problem rather than a
// query/data problem. Timeouts count: an ambiguous commit (request sent, ack
// never seen) surfaces as a deadline error and must take the idempotent
// retry path.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var dns *net.DNSError
	return errors.As(err, &dns)
}
