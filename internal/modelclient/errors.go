package modelclient

import (
	"fmt"
	"net/http"
	"strings"
)

// Code classifies a model-call failure, mirroring the retryable/non-retryable
// split the teacher's llm.Error carries, narrowed to what a single
// OpenAI-compatible endpoint can return.
type Code string

const (
	CodeUnauthorized        Code = "unauthorized"
	CodeRateLimited         Code = "rate_limited"
	CodeQuotaExceeded       Code = "quota_exceeded"
	CodeInvalidRequest      Code = "invalid_request"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeModelOverloaded     Code = "model_overloaded"
)

// Error is a structured model-call failure.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Retryable  bool
	Provider   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("modelclient[%s]: %s (%s)", e.Provider, e.Message, e.Code)
}

func mapHTTPError(status int, msg, provider string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Code: CodeUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &Error{Code: CodeRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		if containsAny(strings.ToLower(msg), "quota", "credit", "limit") {
			return &Error{Code: CodeQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &Error{Code: CodeInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &Error{Code: CodeUpstreamUnavailable, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case 529:
		return &Error{Code: CodeModelOverloaded, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &Error{Code: CodeUpstreamUnavailable, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err is a modelclient Error marked retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
