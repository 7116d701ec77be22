// Package apierror translates upstream failures into the caller's own error
// vocabulary and decides retryability and credential rotation.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the gateway's internal error taxonomy.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindRateLimit      Kind = "rate_limit"
	KindUpstreamAPI    Kind = "upstream_api"
	KindNetwork        Kind = "network"
	KindInternal       Kind = "internal"
)

// Envelope is constructed once per failure and immediately serialized into
// the outbound protocol's error shape.
type Envelope struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	Retryable  bool
	RotateKey  bool
}

func (e *Envelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Validation builds a validation envelope. The field path is folded into the
// message verbatim so callers can locate the offending field.
func Validation(field, message string) *Envelope {
	return &Envelope{
		Kind:       KindValidation,
		HTTPStatus: http.StatusBadRequest,
		Message:    fmt.Sprintf("%s: %s", field, message),
	}
}

// Authentication builds an auth failure envelope.
func Authentication(message string) *Envelope {
	return &Envelope{
		Kind:       KindAuthentication,
		HTTPStatus: http.StatusUnauthorized,
		Message:    message,
		RotateKey:  true,
	}
}

// RateLimited builds a rate-limit envelope.
func RateLimited(message string) *Envelope {
	return &Envelope{
		Kind:       KindRateLimit,
		HTTPStatus: http.StatusTooManyRequests,
		Message:    message,
		Retryable:  true,
		RotateKey:  true,
	}
}

// Internal builds an internal error envelope.
func Internal(message string) *Envelope {
	return &Envelope{
		Kind:       KindInternal,
		HTTPStatus: http.StatusInternalServerError,
		Message:    message,
	}
}

// Translate maps an upstream HTTP status into an envelope.
func Translate(status int, message string) *Envelope {
	if message == "" {
		message = http.StatusText(status)
	}
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		return &Envelope{Kind: KindValidation, HTTPStatus: status, Message: message}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Envelope{Kind: KindAuthentication, HTTPStatus: status, Message: message, RotateKey: true}
	case http.StatusTooManyRequests:
		return &Envelope{Kind: KindRateLimit, HTTPStatus: status, Message: message, Retryable: true, RotateKey: true}
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &Envelope{Kind: KindUpstreamAPI, HTTPStatus: status, Message: message, Retryable: true}
	default:
		return &Envelope{Kind: KindInternal, HTTPStatus: http.StatusInternalServerError, Message: message}
	}
}

// TranslateNetwork maps a transport-level failure (timeout, connection reset,
// DNS) into a retryable network envelope.
func TranslateNetwork(err error) *Envelope {
	msg := "upstream request failed"
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "upstream request timed out"
	case errors.As(err, &netErr) && netErr.Timeout():
		msg = "upstream request timed out"
	}
	return &Envelope{
		Kind:       KindNetwork,
		HTTPStatus: http.StatusBadGateway,
		Message:    msg,
		Retryable:  true,
	}
}
