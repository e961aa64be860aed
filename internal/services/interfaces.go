package services

import (
	"context"
	"io"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/models"
)

// ObjectStore reads and writes rendered pages in durable storage.
type ObjectStore interface {
	// ReadObject returns found=false, with no error, when the object does not exist.
	ReadObject(ctx context.Context, key string) (rc io.ReadCloser, found bool, err error)
	// WriteObject stores size bytes read from r under key.
	WriteObject(ctx context.Context, key string, r io.Reader, size int64) error
}

// MetadataStore persists one DocumentMetadata per canonical location.
type MetadataStore interface {
	// FindByKey returns models.ErrMetadataNotFound when no record exists.
	FindByKey(ctx context.Context, key string) (*models.DocumentMetadata, error)
	// Save creates the record, returning models.ErrMetadataExists if another writer got there first.
	Save(ctx context.Context, m *models.DocumentMetadata) error
	// AdvancePagesGenerated raises pagesGenerated to page if it is lower.
	AdvancePagesGenerated(ctx context.Context, key string, page int) error
}

// LoadOptions control how a document is opened.
type LoadOptions struct {
	// Strict rejects documents with structural errors that a lenient load would repair.
	Strict bool
}

// Renderer opens documents from a network location or a local file.
type Renderer interface {
	LoadFromLocation(ctx context.Context, location string, opts LoadOptions) (Document, error)
	LoadFromFile(ctx context.Context, path string, opts LoadOptions) (Document, error)
}

// Document is an opened PDF. Implementations are not safe for concurrent use.
type Document interface {
	PageCount() int
	// RenderPage rasterizes a 1-based page and returns the encoded JPEG stream.
	RenderPage(ctx context.Context, page int) (io.ReadCloser, error)
	Outline() ([]models.OutlineItem, error)
	PageLabels() ([]string, error)
	Close() error
}

// StatusStore keeps the latest ValidationStatus per key for polling clients.
type StatusStore interface {
	// Get returns found=false when no status is recorded.
	Get(ctx context.Context, key string) (models.ValidationStatus, bool, error)
	Put(ctx context.Context, status models.ValidationStatus, ttl time.Duration) error
}
