package nvue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantType    ErrorType
		wantSubtype NetworkErrorSubtype
	}{
		{
			name:        "connection refused",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			wantType:    ErrTypeConnectionRefused,
			wantSubtype: NetworkErrorConnectionRefused,
		},
		{
			name:        "host unreachable",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH},
			wantType:    ErrTypeNetwork,
			wantSubtype: NetworkErrorHostUnreachable,
		},
		{
			name:        "network unreachable",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ENETUNREACH},
			wantType:    ErrTypeNetwork,
			wantSubtype: NetworkErrorNetworkUnreachable,
		},
		{
			name:        "dns",
			err:         &net.DNSError{Err: "no such host", Name: "leaf99", IsNotFound: true},
			wantType:    ErrTypeDNS,
			wantSubtype: NetworkErrorDNS,
		},
		{
			name:        "timeout",
			err:         &net.DNSError{Err: "i/o timeout", Name: "leaf01", IsTimeout: true},
			wantType:    ErrTypeTimeout,
			wantSubtype: NetworkErrorTimeout,
		},
		{
			name: "wrapped in url.Error",
			err: &url.Error{Op: "Patch", URL: "https://leaf01:8765/nvue_v1/revision/1",
				Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}},
			wantType:    ErrTypeConnectionRefused,
			wantSubtype: NetworkErrorConnectionRefused,
		},
		{
			name:        "generic",
			err:         errors.New("tls: handshake failure"),
			wantType:    ErrTypeNetwork,
			wantSubtype: NetworkErrorGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetworkError(tt.err, "leaf01")
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.NetworkSubtype != tt.wantSubtype {
				t.Errorf("NetworkSubtype = %v, want %v", got.NetworkSubtype, tt.wantSubtype)
			}
			if got.Host != "leaf01" {
				t.Errorf("Host = %q, want leaf01", got.Host)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error should wrap the original")
			}
			if !IsNetworkError(got) {
				t.Errorf("IsNetworkError() = false")
			}
		})
	}

	if ClassifyNetworkError(nil, "leaf01") != nil {
		t.Error("ClassifyNetworkError(nil) should return nil")
	}
}

func TestNewNetworkError_KeepsMessage(t *testing.T) {
	err := NewNetworkError("request failed", "leaf01", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED})
	if err.Message != "request failed" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Type != ErrTypeConnectionRefused {
		t.Errorf("Type = %v", err.Type)
	}

	bare := NewNetworkError("no response", "leaf01", nil)
	if bare.Type != ErrTypeNetwork || bare.Err != nil {
		t.Errorf("NewNetworkError(nil) = %+v", bare)
	}
}

func TestErrorPredicatesThroughWrapping(t *testing.T) {
	transport := fmt.Errorf("patch revision rev1: %w", NewTransportError(409, "409 Conflict", `{"detail":"locked"}`))
	shape := fmt.Errorf("create revision: %w", NewShapeError("two entries"))
	validation := NewValidationError("revision id is required")

	if !IsTransportError(transport) || IsShapeError(transport) {
		t.Errorf("transport predicates wrong")
	}
	if StatusCode(transport) != 409 {
		t.Errorf("StatusCode() = %d, want 409", StatusCode(transport))
	}
	if !IsShapeError(shape) || IsTransportError(shape) {
		t.Errorf("shape predicates wrong")
	}
	if !IsValidationError(validation) || IsNetworkError(validation) {
		t.Errorf("validation predicates wrong")
	}
	if IsTransportError(context.Canceled) || StatusCode(context.Canceled) != 0 {
		t.Errorf("plain errors must not match")
	}
}

func TestErrorMessages(t *testing.T) {
	enc := NewEncodeError("failed to encode payload", errors.New("unsupported type: chan int"))
	if got := enc.Error(); got != "Encode error: failed to encode payload (caused by: unsupported type: chan int)" {
		t.Errorf("Error() = %q", got)
	}

	if got := NewShapeError("not an object").Error(); got != "Unexpected response shape: not an object" {
		t.Errorf("Error() = %q", got)
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "refused", err: &Error{Type: ErrTypeConnectionRefused}, want: "8765"},
		{name: "timeout", err: &Error{Type: ErrTypeTimeout}, want: "nvued"},
		{name: "dns", err: &Error{Type: ErrTypeDNS}, want: "IP address"},
		{name: "unreachable", err: &Error{Type: ErrTypeNetwork, NetworkSubtype: NetworkErrorHostUnreachable}, want: "not reachable"},
		{name: "auth", err: NewTransportError(401, "", ""), want: "NVUE_PASSWORD"},
		{name: "not found", err: NewTransportError(404, "", ""), want: "revision id"},
		{name: "server", err: NewTransportError(500, "", ""), want: "internal error"},
		{name: "bad request", err: NewTransportError(400, "", ""), want: "HTTP 400"},
		{name: "shape", err: NewShapeError("x"), want: "unexpected document"},
		{name: "foreign", err: errors.New("boom"), want: "unexpected error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if hint := GetTroubleshootingHint(tt.err); !strings.Contains(hint, tt.want) {
				t.Errorf("hint %q does not mention %q", hint, tt.want)
			}
		})
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: NewTransportError(503, "", ""), want: "Device error (HTTP 503)"},
		{err: &Error{Type: ErrTypeTimeout}, want: "Device not responding (timeout)"},
		{err: NewValidationError("wait must be >= 0"), want: "wait must be >= 0"},
		{err: errors.New("plain"), want: "plain"},
	}

	for _, tt := range tests {
		if got := GetShortErrorMessage(tt.err); got != tt.want {
			t.Errorf("GetShortErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
