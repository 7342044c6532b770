package mdm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// Sentinel errors for the remote API; callers match them with errors.Is.
var (
	ErrInvalidURL           = errors.New("mdm: invalid URL")
	ErrAuthenticationFailed = errors.New("mdm: authentication failed")
	ErrNetworkUnavailable   = errors.New("mdm: network unavailable")
	ErrInvalidResponse      = errors.New("mdm: invalid response")
)

// DecodingError is returned when a 2xx body cannot be decoded into the operation's result.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string { return fmt.Sprintf("mdm: decoding failed: %v", e.Err) }

func (e *DecodingError) Unwrap() error { return e.Err }

// ServerError is returned for 4xx/5xx responses other than 401. Message is empty when the
// body carried no readable message.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mdm: server error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("mdm: server error (status %d): %s", e.StatusCode, e.Message)
}

// UnknownError wraps a transport failure that could not be classified.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string { return fmt.Sprintf("mdm: request failed: %v", e.Err) }

func (e *UnknownError) Unwrap() error { return e.Err }

// ErrorKind names a category of the remote error taxonomy.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindInvalidURL           ErrorKind = "invalid_url"
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindNetworkUnavailable   ErrorKind = "network_unavailable"
	KindInvalidResponse      ErrorKind = "invalid_response"
	KindDecodingFailed       ErrorKind = "decoding_failed"
	KindServerError          ErrorKind = "server_error"
	KindUnknown              ErrorKind = "unknown"
)

// Kind classifies err into the remote error taxonomy. Errors not produced by this package are KindUnknown.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		decErr *DecodingError
		srvErr *ServerError
	)
	switch {
	case errors.Is(err, ErrInvalidURL):
		return KindInvalidURL
	case errors.Is(err, ErrAuthenticationFailed):
		return KindAuthenticationFailed
	case errors.Is(err, ErrNetworkUnavailable):
		return KindNetworkUnavailable
	case errors.Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	case errors.As(err, &decErr):
		return KindDecodingFailed
	case errors.As(err, &srvErr):
		return KindServerError
	default:
		return KindUnknown
	}
}

// classifyTransportError maps an http.Client.Do failure onto the taxonomy.
// Connectivity, DNS and timeout failures become ErrNetworkUnavailable; the rest UnknownError.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &UnknownError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &UnknownError{Err: urlErr.Err}
	}
	return &UnknownError{Err: err}
}
