// Package jsonapi provides JSON:API error documents for the HTTP surface.
package jsonapi

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ContentType is the JSON:API media type.
const ContentType = "application/vnd.api+json"

// Error represents a JSON:API error object.
type Error struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
	Meta   Meta   `json:"meta,omitempty"`
}

// Meta holds free-form metadata on an error.
type Meta map[string]any

// ErrorDocument is a top-level document carrying only errors.
type ErrorDocument struct {
	Errors []Error `json:"errors"`
}

// StatusCode returns the HTTP status code as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// NewError creates an Error with the given status, code, and title.
func NewError(status int, code, title string) Error {
	return Error{
		Status: strconv.Itoa(status),
		Code:   code,
		Title:  title,
	}
}

// WithDetail returns a copy of the error carrying a detail message.
func (e Error) WithDetail(detail string) Error {
	e.Detail = detail
	return e
}

// WithMeta returns a copy of the error with one metadata entry added.
func (e Error) WithMeta(key string, value any) Error {
	meta := make(Meta, len(e.Meta)+1)
	for k, v := range e.Meta {
		meta[k] = v
	}
	meta[key] = value
	e.Meta = meta
	return e
}

// Common error constructors

// ErrBadRequest creates a 400 Bad Request error.
func ErrBadRequest(detail string) Error {
	return NewError(400, "bad_request", "Bad Request").WithDetail(detail)
}

// ErrForbidden creates a 403 Forbidden error.
func ErrForbidden(detail string) Error {
	if detail == "" {
		detail = "Access denied"
	}
	return NewError(403, "forbidden", "Forbidden").WithDetail(detail)
}

// ErrNotFound creates a 404 Not Found error.
func ErrNotFound(resourceType string) Error {
	return NewError(404, "not_found", "Not Found").
		WithDetail("The requested " + resourceType + " was not found")
}

// ErrConflict creates a 409 Conflict error.
func ErrConflict(detail string) Error {
	return NewError(409, "conflict", "Conflict").WithDetail(detail)
}

// ErrPayloadTooLarge creates a 413 Payload Too Large error.
func ErrPayloadTooLarge(detail string) Error {
	if detail == "" {
		detail = "Payload exceeds maximum size"
	}
	return NewError(413, "payload_too_large", "Payload Too Large").WithDetail(detail)
}

// ErrRateLimited creates a 429 Too Many Requests error.
func ErrRateLimited(detail string) Error {
	if detail == "" {
		detail = "Rate limit exceeded"
	}
	return NewError(429, "rate_limit_exceeded", "Too Many Requests").WithDetail(detail)
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(detail string) Error {
	if detail == "" {
		detail = "An internal error occurred"
	}
	return NewError(500, "internal_error", "Internal Server Error").WithDetail(detail)
}

// ErrServiceUnavailable creates a 503 Service Unavailable error.
func ErrServiceUnavailable(detail string) Error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return NewError(503, "service_unavailable", "Service Unavailable").WithDetail(detail)
}

// WriteError writes an error response with one or more errors.
// The HTTP status is derived from the first error's status field.
func WriteError(w http.ResponseWriter, errs ...Error) {
	if len(errs) == 0 {
		errs = []Error{ErrInternal("")}
	}

	status := errs[0].StatusCode()
	if status == 0 {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorDocument{Errors: errs})
}
