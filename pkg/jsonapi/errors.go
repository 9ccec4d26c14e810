package jsonapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Error is a JSON:API error object. It implements the error interface so a
// server-reported error can travel through ordinary Go error paths.
type Error struct {
	ID     string         `json:"id,omitempty"`
	Status string         `json:"status,omitempty"`
	Code   string         `json:"code,omitempty"`
	Title  string         `json:"title,omitempty"`
	Detail string         `json:"detail,omitempty"`
	Source *ErrorSource   `json:"source,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// ErrorSource points at the part of the request document that caused an error
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Title
	if msg == "" {
		msg = e.Detail
	} else if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	if e.Status != "" {
		return fmt.Sprintf("jsonapi error %s: %s", e.Status, msg)
	}
	return "jsonapi error: " + msg
}

// StatusCode returns the numeric status, or 0 when absent or malformed
func (e *Error) StatusCode() int {
	code, err := strconv.Atoi(e.Status)
	if err != nil {
		return 0
	}
	return code
}

// NewError builds an error object for the given HTTP status and title
func NewError(statusCode int, title string) *Error {
	return &Error{
		Status: strconv.Itoa(statusCode),
		Code:   errorCodeFromStatus(statusCode),
		Title:  title,
	}
}

// NewTransportError normalizes a non-JSON:API failure into a single error
// object with a generated id. A zero statusCode falls back to 500.
func NewTransportError(statusCode int, err error) *Error {
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	title := http.StatusText(statusCode)
	if err != nil {
		title = err.Error()
	}

	e := NewError(statusCode, title)
	e.ID = uuid.NewString()
	return e
}

// ErrorDocument wraps errors into a document with no primary data
func ErrorDocument(errs ...*Error) *Document {
	return &Document{Errors: errs}
}

// AttributePointer builds a JSON pointer to an attribute of the primary resource
func AttributePointer(field string) string {
	return "/data/attributes/" + escapeJSONPointer(field)
}

// escapeJSONPointer escapes special characters per RFC 6901
func escapeJSONPointer(token string) string {
	// Order matters: escape ~ before /
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	return token
}

func errorCodeFromStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_error"
	case http.StatusTooManyRequests:
		return "rate_limit_exceeded"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}
