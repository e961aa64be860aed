package services

import (
	"context"
	"errors"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DocumentCatalog resolves DocumentMetadata, creating the record the first time a document is seen.
type DocumentCatalog struct {
	store    MetadataStore
	renderer Renderer
	inits    singleflight.Group
	log      zerolog.Logger
}

// NewDocumentCatalog creates a catalog over store, loading unseen documents with renderer.
func NewDocumentCatalog(store MetadataStore, renderer Renderer, log zerolog.Logger) *DocumentCatalog {
	return &DocumentCatalog{
		store:    store,
		renderer: renderer,
		log:      log.With().Str("component", "document-catalog").Logger(),
	}
}

// Lookup returns the stored record for location without initializing it.
// A missing record is reported as models.ErrMetadataNotFound.
func (c *DocumentCatalog) Lookup(ctx context.Context, location string) (*models.DocumentMetadata, error) {
	m, err := c.store.FindByKey(ctx, models.CanonicalLocation(location))
	if err != nil {
		if errors.Is(err, models.ErrMetadataNotFound) {
			return nil, err
		}
		c.log.Error().Err(err).Str("location", location).Msg("Error while retrieving metadata from the database")
		return nil, apperr.Internal("failed to retrieve document metadata", err)
	}
	return m, nil
}

// Metadata returns the record for location, initializing it on first sight.
func (c *DocumentCatalog) Metadata(ctx context.Context, location string) (*models.DocumentMetadata, error) {
	m, err := c.Lookup(ctx, location)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, models.ErrMetadataNotFound) {
		return nil, err
	}
	c.log.Debug().Str("location", location).Msg("No pre-existing metadata found. Initializing")
	return c.initialize(ctx, location)
}

// PageCount returns the total pages of the document at location.
func (c *DocumentCatalog) PageCount(ctx context.Context, location string) (int, error) {
	m, err := c.Metadata(ctx, location)
	if err != nil {
		return 0, err
	}
	return m.TotalPages, nil
}

// RecordRendered advances the pages-generated watermark. It is informational, so failures are
// only logged.
func (c *DocumentCatalog) RecordRendered(ctx context.Context, location string, page int) {
	if err := c.store.AdvancePagesGenerated(ctx, models.CanonicalLocation(location), page); err != nil {
		c.log.Warn().Err(err).Str("location", location).Int("page", page).Msg("Failed to advance pages generated")
	}
}

// initialize loads the document once per key within this process. A concurrent create from
// another process surfaces as ErrMetadataExists and the winner's record is returned.
func (c *DocumentCatalog) initialize(ctx context.Context, location string) (*models.DocumentMetadata, error) {
	key := models.CanonicalLocation(location)
	v, err, shared := c.inits.Do(key, func() (interface{}, error) {
		return c.create(context.WithoutCancel(ctx), key, location)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug().Str("key", key).Msg("Joined in-flight metadata initialization")
	}
	return v.(*models.DocumentMetadata), nil
}

func (c *DocumentCatalog) create(ctx context.Context, key, location string) (*models.DocumentMetadata, error) {
	logCtx := c.log.With().Str("key", key).Logger()

	doc, err := c.renderer.LoadFromLocation(ctx, location, LoadOptions{})
	if err != nil {
		logCtx.Error().Err(err).Msg("Error initializing page metadata")
		return nil, classifyLoadError(err)
	}
	defer doc.Close()

	m := &models.DocumentMetadata{
		Key:        key,
		TotalPages: doc.PageCount(),
		CreatedAt:  time.Now().UTC(),
	}
	logCtx.Debug().Int("pages", m.TotalPages).Msg("Pages detected")

	if m.Outline, err = doc.Outline(); err != nil {
		logCtx.Warn().Err(err).Msg("Failed to read document outline, storing without it")
		m.Outline = nil
	}
	if m.PageLabels, err = doc.PageLabels(); err != nil {
		logCtx.Warn().Err(err).Msg("Failed to read page labels, storing without them")
		m.PageLabels = nil
	}
	m.StripNulls()

	err = c.store.Save(ctx, m)
	switch {
	case err == nil:
		logCtx.Debug().Msg("PDF metadata initialization complete")
		return m, nil
	case errors.Is(err, models.ErrMetadataExists):
		logCtx.Info().Msg("Metadata was initialized concurrently, using stored record")
		existing, findErr := c.store.FindByKey(ctx, key)
		if findErr != nil {
			return nil, apperr.Internal("failed to read concurrently initialized metadata", findErr)
		}
		return existing, nil
	default:
		logCtx.Error().Err(err).Msg("Error storing page metadata")
		return nil, apperr.Internal("failed to store document metadata", err)
	}
}
