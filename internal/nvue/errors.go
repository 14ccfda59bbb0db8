package nvue

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeTransport indicates the server answered with an HTTP error status
	ErrTypeTransport ErrorType = iota
	// ErrTypeNetwork indicates a network-level failure (no HTTP response at all)
	ErrTypeNetwork
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the device refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeShape indicates a response that does not have the shape its context requires
	ErrTypeShape
	// ErrTypeEncode indicates a payload that could not be serialized to JSON
	ErrTypeEncode
	// ErrTypeValidation indicates an invalid request (unknown operation, empty revision id)
	ErrTypeValidation
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeTransport:
		return "Connection error"
	case ErrTypeNetwork:
		return "Network error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection refused"
	case ErrTypeDNS:
		return "DNS error"
	case ErrTypeShape:
		return "Unexpected response shape"
	case ErrTypeEncode:
		return "Encode error"
	case ErrTypeValidation:
		return "Validation error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is returned by every failing operation of the transaction client.
type Error struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (transport errors only)
	Status         string              // HTTP status line text (transport errors only)
	Body           string              // Decoded or raw response body, kept for diagnostics
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Host           string              // Device host (for context)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Type == ErrTypeTransport {
		return fmt.Sprintf("%s: %s, data: %s", e.Type, e.Message, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransportError creates an error for a non-success HTTP outcome. body is the
// decoded value or raw text of the response, rendered verbatim in the message.
func NewTransportError(statusCode int, status string, body string) *Error {
	msg := status
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", statusCode)
	} else if !strings.HasPrefix(msg, fmt.Sprint(statusCode)) {
		msg = fmt.Sprintf("HTTP %d %s", statusCode, status)
	} else {
		msg = "HTTP " + status
	}
	return &Error{
		Type:       ErrTypeTransport,
		Message:    msg,
		StatusCode: statusCode,
		Status:     status,
		Body:       body,
	}
}

// NewShapeError creates an error for a response whose shape violates the protocol
func NewShapeError(message string) *Error {
	return &Error{
		Type:    ErrTypeShape,
		Message: message,
	}
}

// NewEncodeError creates an error for a payload that cannot be serialized
func NewEncodeError(message string, err error) *Error {
	return &Error{
		Type:    ErrTypeEncode,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *Error {
	return &Error{
		Type:    ErrTypeValidation,
		Message: message,
	}
}

// ClassifyNetworkError analyzes an error returned by the HTTP stack and returns a more
// specific error type
func ClassifyNetworkError(err error, host string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &Error{
			Type:           ErrTypeTimeout,
			Message:        "request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Host:           host,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Host:           host,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &Error{
				Type:           ErrTypeConnectionRefused,
				Message:        "device refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Host:           host,
			}
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return &Error{
				Type:           ErrTypeNetwork,
				Message:        "host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Host:           host,
			}
		}
		if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return &Error{
				Type:           ErrTypeNetwork,
				Message:        "network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Host:           host,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		classified := ClassifyNetworkError(urlErr.Err, host)
		classified.Err = err
		return classified
	}

	return &Error{
		Type:           ErrTypeNetwork,
		Message:        "network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Host:           host,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, host string, err error) *Error {
	classified := ClassifyNetworkError(err, host)
	if classified == nil {
		return &Error{Type: ErrTypeNetwork, Message: message, Host: host}
	}
	classified.Message = message
	return classified
}

func typeOf(err error) (ErrorType, bool) {
	var nvErr *Error
	if errors.As(err, &nvErr) {
		return nvErr.Type, true
	}
	return 0, false
}

// IsTransportError checks if an error is an HTTP error outcome
func IsTransportError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeTransport
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	if !ok {
		return false
	}
	return t == ErrTypeNetwork ||
		t == ErrTypeTimeout ||
		t == ErrTypeConnectionRefused ||
		t == ErrTypeDNS
}

// IsShapeError checks if an error is a response shape violation
func IsShapeError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeShape
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeValidation
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var nvErr *Error
	if errors.As(err, &nvErr) {
		return nvErr.StatusCode
	}
	return 0
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var nvErr *Error
	if !errors.As(err, &nvErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch nvErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The device did not respond in time.",
			"Troubleshooting:",
			"  • Check that nvued is running on the switch (systemctl status nvued)",
			"  • Try increasing --timeout",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The device refused the connection.",
			"Troubleshooting:",
			"  • Ensure the NVUE REST API is enabled (nv set system api state enabled)",
			"  • Verify the port number (default is 8765)",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the device hostname.",
			"Troubleshooting:",
			"  • Use the management IP address instead of the hostname",
			"  • Check your DNS settings",
		}, "\n")

	case ErrTypeNetwork:
		switch nvErr.NetworkSubtype {
		case NetworkErrorHostUnreachable, NetworkErrorNetworkUnreachable:
			return strings.Join([]string{
				"The device is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the device address is correct",
				"  • Check routing to the management network",
			}, "\n")
		default:
			return "Network communication failed. Check your connection to the device."
		}

	case ErrTypeTransport:
		switch {
		case nvErr.StatusCode == 401 || nvErr.StatusCode == 403:
			return "Authentication failed. Check --user and the NVUE_PASSWORD environment variable."
		case nvErr.StatusCode == 404:
			return "The resource or revision does not exist. Check the path and the revision id."
		case nvErr.StatusCode >= 500:
			return "The NVUE API reported an internal error. Inspect the response data above and the nvued logs."
		default:
			return fmt.Sprintf("The NVUE API rejected the request (HTTP %d). Check the payload.", nvErr.StatusCode)
		}

	case ErrTypeShape:
		return "The NVUE API answered with an unexpected document. This may indicate an unsupported NVUE release."

	case ErrTypeEncode, ErrTypeValidation:
		return "The request is invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var nvErr *Error
	if !errors.As(err, &nvErr) {
		return err.Error()
	}

	switch nvErr.Type {
	case ErrTypeTimeout:
		return "Device not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Device refused connection - is the API enabled?"
	case ErrTypeDNS:
		return "Cannot resolve device hostname"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeTransport:
		return fmt.Sprintf("Device error (HTTP %d)", nvErr.StatusCode)
	case ErrTypeShape:
		return "Unexpected response from device"
	default:
		return nvErr.Message
	}
}
