// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the mapping from domain errors to status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"accountbook/internal/auth"
	"accountbook/internal/core"
	applog "accountbook/internal/log"
	"accountbook/internal/middleware/trace"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       interface{}
	raw        []byte
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets v as the body, encoded when written.
func (b *ResponseBuilder) JSON(v interface{}) *ResponseBuilder {
	b.body = v
	return b
}

// Bytes sets a pre-rendered body with its content type.
func (b *ResponseBuilder) Bytes(contentType string, data []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.raw = data
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.raw != nil {
		w.WriteHeader(b.statusCode)
		_, _ = w.Write(b.raw)
		return
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

const unavailableMessage = "일시적으로 서비스를 사용할 수 없습니다. 잠시 후 다시 시도해주세요."

// ErrorResponse classifies err and builds the matching response.
func ErrorResponse(ctx context.Context, err error, locale string) *ResponseBuilder {
	status, body := classify(err, locale)
	body.RequestID = trace.GetRequestID(ctx)

	logger := applog.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(ctx, "Request failed", applog.FieldError, err, applog.FieldStatusCode, status)
	case status == http.StatusBadRequest:
		logger.DebugContext(ctx, "Request rejected", applog.FieldError, err)
	}
	return NewResponse().Status(status).JSON(body)
}

func classify(err error, locale string) (int, ErrorBody) {
	var (
		verr *core.ValidationError
		nerr *core.NotFoundError
		aerr *core.AuthError
	)
	switch {
	case errors.As(err, &verr):
		msg, ok := auth.ErrorMessage(err, locale)
		if !ok {
			msg = verr.Error()
		}
		return http.StatusBadRequest, ErrorBody{Error: msg, Code: "validation", Field: verr.Field}
	case errors.As(err, &nerr):
		return http.StatusNotFound, ErrorBody{Error: nerr.Error(), Code: "not-found"}
	case errors.As(err, &aerr):
		msg, _ := auth.ErrorMessage(err, locale)
		return authStatus(aerr.Code), ErrorBody{Error: msg, Code: aerr.Code}
	case errors.Is(err, core.ErrBackendUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorBody{Error: unavailableMessage, Code: "unavailable"}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: http.StatusText(http.StatusInternalServerError), Code: "internal"}
	}
}

func authStatus(code string) int {
	switch code {
	case auth.CodeEmailAlreadyInUse, auth.CodeAccountExists:
		return http.StatusConflict
	case auth.CodeUnverifiedEmail:
		return http.StatusForbidden
	case auth.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case auth.CodeFederationDisabled:
		return http.StatusNotImplemented
	default:
		return http.StatusUnauthorized
	}
}

// BadRequestError creates a 400 response for a problem found in the
// transport layer itself.
func BadRequestError(message string) *ResponseBuilder {
	return NewResponse().Status(http.StatusBadRequest).JSON(ErrorBody{Error: message, Code: "bad-request"})
}

// NotFoundError creates a 404 response.
func NotFoundError(message string) *ResponseBuilder {
	return NewResponse().Status(http.StatusNotFound).JSON(ErrorBody{Error: message, Code: "not-found"})
}
