// Package apperr defines the error type surfaced by the page service. Every failure that reaches a
// caller carries a Kind, and every Kind maps to exactly one HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	// KindInternal is an unclassified failure, reported as 500.
	KindInternal Kind = iota
	// KindHTTP carries an explicit status, usually reported by a backend.
	KindHTTP
	// KindMetadataMissing means a page was requested for a document that was never page-counted.
	KindMetadataMissing
	// KindPageOutOfRange means the requested page is beyond the document's last page.
	KindPageOutOfRange
	// KindUpstreamRender means the renderer could not produce a page or a document.
	KindUpstreamRender
	// KindBadRequest means the request itself is malformed.
	KindBadRequest
	// KindNotFound means the addressed resource does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindHTTP:
		return "http"
	case KindMetadataMissing:
		return "metadata_missing"
	case KindPageOutOfRange:
		return "page_out_of_range"
	case KindUpstreamRender:
		return "upstream_render"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindHTTP:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusInternalServerError
	case KindMetadataMissing, KindBadRequest:
		return http.StatusBadRequest
	case KindPageOutOfRange, KindNotFound:
		return http.StatusNotFound
	case KindUpstreamRender, KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// HTTP builds a structured error carrying status.
func HTTP(status int, message string, err error) *Error {
	return &Error{Kind: KindHTTP, Status: status, Message: message, Err: err}
}

// Internal builds a 500-class error.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// MetadataMissing reports a page request for an unknown document.
func MetadataMissing(key string) *Error {
	return &Error{Kind: KindMetadataMissing, Message: fmt.Sprintf("no metadata for document %s", key)}
}

// PageOutOfRange reports a page beyond the document's page count.
func PageOutOfRange(page int) *Error {
	return &Error{Kind: KindPageOutOfRange, Message: fmt.Sprintf("document does not contain page: %d", page)}
}

// UpstreamRender reports a renderer failure.
func UpstreamRender(message string, err error) *Error {
	return &Error{Kind: KindUpstreamRender, Message: message, Err: err}
}

// BadRequest reports a malformed request.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// NotFound reports a missing resource.
func NotFound(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsHTTP reports whether err carries a backend-reported status.
func IsHTTP(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == KindHTTP
}

// Wrap passes classified errors through and wraps everything else as internal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Internal(message, err)
}

// StatusCode maps any error to an HTTP status. Unclassified errors are 500.
func StatusCode(err error) int {
	if e, ok := As(err); ok {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}
