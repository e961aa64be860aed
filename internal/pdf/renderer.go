// Package pdf loads PDF documents and rasterizes their pages. MuPDF (through go-fitz) does the
// rendering; pdfcpu parses document structure for validation, outlines and page labels.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/services"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
)

const (
	// DefaultScale renders pages at three times their natural size.
	DefaultScale = 3.0
	// DefaultQuality is the JPEG quality used for page images.
	DefaultQuality = 99

	pointsPerInch = 72.0
)

// Config holds configuration for the renderer.
type Config struct {
	Scale      float64
	Quality    int
	HTTPClient *http.Client
}

// Renderer opens documents from URLs or local files.
type Renderer struct {
	config Config
	log    zerolog.Logger
}

// NewRenderer creates a Renderer, applying defaults for zero values.
func NewRenderer(config Config, log zerolog.Logger) *Renderer {
	if config.Scale <= 0 {
		config.Scale = DefaultScale
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultQuality
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Renderer{
		config: config,
		log:    log.With().Str("component", "pdf-renderer").Logger(),
	}
}

// LoadFromLocation downloads the document at location.
func (r *Renderer) LoadFromLocation(ctx context.Context, location string, opts services.LoadOptions) (services.Document, error) {
	data, err := r.fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	doc, err := r.open(location, data, opts)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadFromFile opens the document stored at path.
func (r *Renderer) LoadFromFile(ctx context.Context, path string, opts services.LoadOptions) (services.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", services.ErrDocumentUnreachable, path)
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	doc, err := r.open(path, data, opts)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *Renderer) fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build document request: %w", err)
	}
	resp, err := r.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned %d", services.ErrDocumentUnreachable, location, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected response fetching document: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document body: %w", err)
	}
	return data, nil
}

func (r *Renderer) open(source string, data []byte, opts services.LoadOptions) (*Document, error) {
	logCtx := r.log.With().Str("source", source).Logger()

	if opts.Strict {
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		if err := api.Validate(bytes.NewReader(data), conf); err != nil {
			logCtx.Debug().Err(err).Msg("Document failed structural validation")
			return nil, fmt.Errorf("%w: %v", services.ErrMalformedDocument, err)
		}
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		logCtx.Debug().Err(err).Msg("Document could not be opened")
		return nil, fmt.Errorf("%w: %v", services.ErrMalformedDocument, err)
	}

	logCtx.Debug().Int("pages", doc.NumPage()).Int("bytes", len(data)).Msg("Document loaded")
	return &Document{
		doc:     doc,
		data:    data,
		dpi:     pointsPerInch * r.config.Scale,
		quality: r.config.Quality,
		log:     logCtx,
	}, nil
}
