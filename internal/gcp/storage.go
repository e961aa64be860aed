package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// PageImageContentType is the content type of every object written by the page store.
const PageImageContentType = "image/jpeg"

// ObjectStore keeps rendered page images in a Cloud Storage bucket.
type ObjectStore struct {
	bucket *storage.BucketHandle
	retry  RetryPolicy
	log    zerolog.Logger
}

// NewStorageClient creates a Cloud Storage client using application default credentials.
func NewStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

// NewObjectStore returns an ObjectStore over bucket.
func NewObjectStore(client *storage.Client, bucket string, log zerolog.Logger) (*ObjectStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create an object store")
	}
	return &ObjectStore{
		bucket: client.Bucket(bucket),
		retry:  DefaultRetryPolicy,
		log:    log.With().Str("component", "object-store").Str("bucket", bucket).Logger(),
	}, nil
}

// ReadObject opens key for reading. A missing object is reported as found=false; so is a
// forbidden one, because a bucket without list permission answers 403 for objects that do not
// exist.
func (s *ObjectStore) ReadObject(ctx context.Context, key string) (io.ReadCloser, bool, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		absent, classified := classifyReadError(err)
		if absent {
			s.log.Debug().Str("key", key).Msg("Object not present in bucket")
			return nil, false, nil
		}
		return nil, false, classified
	}
	return r, true, nil
}

// WriteObject uploads size bytes from r to key. Keys are content addressed, so an existing
// object is left in place and the write counts as a success. Transient failures are retried
// when r can be rewound.
func (s *ObjectStore) WriteObject(ctx context.Context, key string, r io.Reader, size int64) error {
	policy := s.retry
	seeker, rewindable := r.(io.Seeker)
	if !rewindable {
		policy.Attempts = 1
	}
	logCtx := s.log.With().Str("key", key).Logger()

	return policy.do(ctx, logCtx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return apperr.Internal("failed to rewind upload", err)
			}
		}
		return s.writeOnce(ctx, key, r, size)
	})
}

func (s *ObjectStore) writeOnce(ctx context.Context, key string, r io.Reader, size int64) error {
	w := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = PageImageContentType
	// Disables resumable uploads; the size is known up front.
	w.ChunkSize = 0

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return s.writeFailure(key, err)
	}
	if n != size {
		_ = w.Close()
		return apperr.Internal(fmt.Sprintf("short write for %s: wrote %d of %d bytes", key, n, size), nil)
	}
	if err := w.Close(); err != nil {
		return s.writeFailure(key, err)
	}
	return nil
}

func (s *ObjectStore) writeFailure(key string, err error) error {
	classified := classifyWriteError(err)
	if classified == nil {
		s.log.Debug().Str("key", key).Msg("Object already exists, skipping")
		return nil
	}
	s.log.Error().Err(err).Str("key", key).Msg("Failed to write object")
	return classified
}

// classifyReadError reports whether err means the object is absent, and otherwise the error to
// surface: a structured HTTP error when the backend supplied a status, a generic failure if not.
func classifyReadError(err error) (bool, error) {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true, nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusForbidden:
			return true, nil
		default:
			return false, apperr.HTTP(gerr.Code, "failed to read object", err)
		}
	}
	return false, apperr.Internal("failed to read object", err)
}

// classifyWriteError returns nil when the object already exists.
func classifyWriteError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return apperr.HTTP(gerr.Code, "failed to write object", err)
	}
	return apperr.Internal("failed to write object", err)
}
