package services

import (
	"errors"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
)

// Renderer failures that callers distinguish.
var (
	ErrMalformedDocument   = errors.New("document is not a valid PDF")
	ErrDocumentUnreachable = errors.New("document could not be retrieved")
)

// classifyLoadError maps a document load failure to the error reported to callers.
func classifyLoadError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrDocumentUnreachable):
		return apperr.NotFound("PDF with provided key not found", err)
	case errors.Is(err, ErrMalformedDocument):
		return apperr.UpstreamRender("document is not a valid PDF", err)
	default:
		return apperr.UpstreamRender("error encountered creating PDF document", err)
	}
}
