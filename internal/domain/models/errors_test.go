package models

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestIsConnectivity(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("constraint violated"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"bad conn", driver.ErrBadConn, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"econnrefused", syscall.ECONNREFUSED, true},
		{"econnreset", syscall.ECONNRESET, true},
		{"epipe", syscall.EPIPE, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "db.example.com"}, true},
		{"op error", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"connectivity wrapper", &ConnectivityError{Backend: "remote", Err: errors.New("down")}, true},
		{"canceled", context.Canceled, false},
	}

	for _, tc := range cases {
		if got := IsConnectivity(tc.err); got != tc.want {
			t.Fatalf("%s: IsConnectivity=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestConnectivityErrorUnwrap(t *testing.T) {
	inner := syscall.ECONNRESET
	err := &ConnectivityError{Backend: "remote", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("expected unwrap to inner error")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Kind: KindPosition,
		Violations: []FieldViolation{
			{Field: "Ticker", Reason: "is required"},
		},
	}
	if !IsValidation(err) {
		t.Fatalf("expected IsValidation true")
	}
	if IsValidation(errors.New("other")) {
		t.Fatalf("expected IsValidation false for plain error")
	}
	if err.Error() == "" {
		t.Fatalf("expected non-empty message")
	}
}
