package services

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/rs/zerolog"
)

const (
	// maxRenderAttempts bounds how often a request waits on another caller's render before giving up.
	maxRenderAttempts = 3

	// DefaultRenderTimeout bounds a single render and upload.
	DefaultRenderTimeout = 5 * time.Minute
)

// PageRendererConfig holds configuration for the page renderer.
type PageRendererConfig struct {
	ScratchDir string
	// RenderTimeout bounds the leader's render and upload. The leader does not inherit the
	// caller's deadline, so this is what keeps a stalled upload from pinning the key.
	RenderTimeout time.Duration
}

// PageRenderer serves page images from the object store, rendering and publishing each missing
// page at most once at a time per storage key.
type PageRenderer struct {
	store    ObjectStore
	catalog  *DocumentCatalog
	renderer Renderer
	cache    *RenderCache
	config   PageRendererConfig
	log      zerolog.Logger
}

// NewPageRenderer wires a PageRenderer. The cache is owned by the caller.
func NewPageRenderer(store ObjectStore, catalog *DocumentCatalog, renderer Renderer, cache *RenderCache, config PageRendererConfig, log zerolog.Logger) *PageRenderer {
	if config.ScratchDir == "" {
		config.ScratchDir = os.TempDir()
	}
	if config.RenderTimeout <= 0 {
		config.RenderTimeout = DefaultRenderTimeout
	}
	return &PageRenderer{
		store:    store,
		catalog:  catalog,
		renderer: renderer,
		cache:    cache,
		config:   config,
		log:      log.With().Str("component", "page-renderer").Logger(),
	}
}

// GetPage returns the JPEG stream for page of the document at location. The caller must close it.
func (p *PageRenderer) GetPage(ctx context.Context, name string, page int, location string) (io.ReadCloser, error) {
	key := DeriveStorageKey(location, name, page)
	logCtx := p.log.With().Str("pageKey", key).Int("page", page).Logger()

	rc, found, err := p.read(ctx, logCtx, key)
	if err != nil || found {
		return rc, err
	}

	if entry, ok := p.cache.Lookup(key); ok {
		logCtx.Debug().Msg("Page key found in cache, awaiting resolution")
		if err := entry.Wait(ctx); err != nil {
			return nil, err
		}
		rc, found, err := p.read(ctx, logCtx, key)
		if err != nil || found {
			return rc, err
		}
		logCtx.Warn().Msg("Resolved page is not readable from the store, rendering again")
	}

	for attempt := 0; attempt < maxRenderAttempts; attempt++ {
		entry, leader := p.cache.Claim(key)
		if leader {
			renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.RenderTimeout)
			rc, err := p.render(renderCtx, logCtx, key, location, page)
			cancel()
			p.cache.Resolve(key, entry, err)
			return rc, err
		}

		logCtx.Debug().Msg("Render already in flight, awaiting it")
		if err := entry.Wait(ctx); err != nil {
			return nil, err
		}
		rc, found, err := p.read(ctx, logCtx, key)
		if err != nil || found {
			return rc, err
		}
	}
	return nil, apperr.Internal("rendered page did not become available", nil)
}

// RenderDirect renders page without consulting or populating the render cache or object store.
func (p *PageRenderer) RenderDirect(ctx context.Context, page int, location string) (io.ReadCloser, error) {
	doc, err := p.renderer.LoadFromLocation(ctx, location, LoadOptions{})
	if err != nil {
		return nil, classifyLoadError(err)
	}
	if page > doc.PageCount() {
		_ = doc.Close()
		return nil, apperr.PageOutOfRange(page)
	}
	img, err := doc.RenderPage(ctx, page)
	if err != nil {
		_ = doc.Close()
		return nil, apperr.UpstreamRender("failed to render page", err)
	}
	return &documentStream{ReadCloser: img, doc: doc}, nil
}

// read treats 403/404 as a miss (the adapter already reports them as not found) and tolerates
// transport failures as a miss too, since a render can still satisfy the caller. Backend
// statuses are propagated.
func (p *PageRenderer) read(ctx context.Context, logCtx zerolog.Logger, key string) (io.ReadCloser, bool, error) {
	rc, found, err := p.store.ReadObject(ctx, key)
	if err != nil {
		if apperr.IsHTTP(err) {
			return nil, false, err
		}
		logCtx.Warn().Err(err).Msg("Failed to read page from object store, treating as missing")
		return nil, false, nil
	}
	return rc, found, nil
}

func (p *PageRenderer) render(ctx context.Context, logCtx zerolog.Logger, key, location string, page int) (io.ReadCloser, error) {
	meta, err := p.catalog.Lookup(ctx, location)
	if err != nil {
		if errors.Is(err, models.ErrMetadataNotFound) {
			return nil, apperr.MetadataMissing(models.CanonicalLocation(location))
		}
		return nil, err
	}
	if page > meta.TotalPages {
		return nil, apperr.PageOutOfRange(page)
	}

	doc, err := p.renderer.LoadFromLocation(ctx, location, LoadOptions{})
	if err != nil {
		logCtx.Error().Err(err).Msg("Error creating PDF document")
		return nil, classifyLoadError(err)
	}
	defer doc.Close()

	img, err := doc.RenderPage(ctx, page)
	if err != nil {
		logCtx.Error().Err(err).Msg("Error rendering page")
		return nil, apperr.UpstreamRender("failed to render page", err)
	}
	// The object store needs the content length up front, so the image goes to disk first.
	scratch, size, err := writeScratchFile(p.config.ScratchDir, "page-*.jpeg", img)
	_ = img.Close()
	if err != nil {
		logCtx.Error().Err(err).Msg("Error writing image to temporary file")
		return nil, apperr.Internal("error writing image to temporary file", err)
	}
	logCtx.Debug().Int64("contentLength", size).Msg("Page image written to scratch file")

	persisted, err := p.upload(ctx, logCtx, key, scratch, size)
	if err != nil {
		scratch.remove()
		return nil, err
	}
	if persisted {
		p.catalog.RecordRendered(ctx, location, page)
	}

	rc, err := scratch.open()
	if err != nil {
		scratch.remove()
		return nil, apperr.Internal("failed to read rendered page", err)
	}
	return rc, nil
}

// upload publishes the scratch file and reports whether it was stored. Only backend-reported
// statuses fail the request; anything else is logged, since the scratch file can still serve
// the caller.
func (p *PageRenderer) upload(ctx context.Context, logCtx zerolog.Logger, key string, scratch *scratchFile, size int64) (bool, error) {
	f, err := os.Open(scratch.path)
	if err != nil {
		return false, apperr.Internal("failed to open rendered page", err)
	}
	defer f.Close()

	if err := p.store.WriteObject(ctx, key, f, size); err != nil {
		if apperr.IsHTTP(err) {
			logCtx.Error().Err(err).Msg("Object store rejected page upload")
			return false, err
		}
		logCtx.Error().Err(err).Msg("Failed to upload page, serving from scratch file")
		return false, nil
	}
	logCtx.Info().Msg("Page uploaded to object store")
	return true, nil
}

// documentStream closes the document once its page stream is closed.
type documentStream struct {
	io.ReadCloser
	doc Document
}

func (s *documentStream) Close() error {
	err := s.ReadCloser.Close()
	if docErr := s.doc.Close(); err == nil {
		err = docErr
	}
	return err
}
