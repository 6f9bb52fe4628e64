package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Request-level failures. Resolver errors wrap one of these together with
// the matching common HTTP error.
var (
	ErrRouteNotFound  = errors.New("route not found")
	ErrRouteDisabled  = errors.New("route disabled")
	ErrRouteEmpty     = errors.New("route has no enabled channels")
	ErrTemplateSyntax = errors.New("template syntax error")
	ErrTemplateRender = errors.New("template render error")
	ErrAdapterConfig  = errors.New("adapter config error")
)

// ErrorKind classifies a per-channel failure.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuth           ErrorKind = "auth"
	KindRateLimited    ErrorKind = "rate_limited"
	KindTimeout        ErrorKind = "timeout"
	KindInvalidPayload ErrorKind = "invalid_payload"
	KindUnknown        ErrorKind = "unknown"

	// Recorded only; never returned by an adapter.
	KindTemplateRender ErrorKind = "template_render"
	KindAdapterConfig  ErrorKind = "adapter_config"
)

// Retryable reports whether the engine may try again after this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited:
		return true
	}
	return false
}

// DeliveryError is the typed failure an adapter returns from Send.
type DeliveryError struct {
	Kind       ErrorKind
	Provider   string
	Message    string
	StatusCode int
	// RetryAfter is the provider's backoff hint, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError builds a DeliveryError with a formatted message.
func NewDeliveryError(provider string, kind ErrorKind, format string, args ...any) *DeliveryError {
	return &DeliveryError{Provider: provider, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsDeliveryError normalizes any error returned by an adapter. Untyped
// errors are transport errors only when they come from the network or a
// deadline; anything else is unknown and not retried.
func AsDeliveryError(provider string, err error) *DeliveryError {
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de
	}
	if isTransport(err) {
		return TransportError(provider, err)
	}
	return &DeliveryError{Provider: provider, Kind: KindUnknown, Err: err}
}

func isTransport(err error) bool {
	var (
		netErr net.Error
		urlErr *url.Error
	)
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr) ||
		errors.As(err, &urlErr)
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout, code >= 500:
		return KindNetwork
	case code == http.StatusBadRequest, code == http.StatusNotFound,
		code == http.StatusRequestEntityTooLarge, code == http.StatusUnprocessableEntity:
		return KindInvalidPayload
	}
	return KindUnknown
}

// StatusError builds a DeliveryError from a non-2xx provider response.
func StatusError(provider string, resp *http.Response, message string) *DeliveryError {
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &DeliveryError{
		Provider:   provider,
		Kind:       KindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    message,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// ParseRetryAfter reads a Retry-After header in delta-seconds form.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// TransportError classifies an error raised before a response was read.
func TransportError(provider string, err error) *DeliveryError {
	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindUnknown
	}
	return &DeliveryError{Provider: provider, Kind: kind, Err: err}
}
