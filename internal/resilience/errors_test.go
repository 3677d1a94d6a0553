package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid input"), false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("call: %w", NewTransientError(errors.New("slow"), 429)), true},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"ftp 421", fmt.Errorf("ftp: %w", &textproto.Error{Code: 421, Msg: "too many users"}), true},
		{"ftp 550", fmt.Errorf("ftp: %w", &textproto.Error{Code: 550, Msg: "no such file"}), false},
		{"message pattern", errors.New("read: connection reset by peer"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for code, want := range map[int]bool{200: false, 404: false, 408: true, 429: true, 500: true, 503: true, 501: false} {
		if got := IsTransientHTTPStatus(code); got != want {
			t.Errorf("status %d: got %v, want %v", code, got, want)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root")
	te := NewTransientError(inner, 502)
	if !errors.Is(te, inner) {
		t.Error("expected Unwrap to expose inner error")
	}
	if te.Error() != "root" {
		t.Errorf("unexpected message %q", te.Error())
	}
}
