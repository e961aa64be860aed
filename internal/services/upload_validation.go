package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// UploadValidatorConfig holds configuration for the upload validator.
type UploadValidatorConfig struct {
	ScratchDir string
	StatusTTL  time.Duration
}

// UploadValidator runs the validation pipeline against documents that are uploaded, stored
// locally or published at a location.
type UploadValidator struct {
	validator *Validator
	renderer  Renderer
	statuses  StatusStore
	config    UploadValidatorConfig
	starts    singleflight.Group
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewUploadValidator wires an UploadValidator.
func NewUploadValidator(validator *Validator, renderer Renderer, statuses StatusStore, config UploadValidatorConfig, log zerolog.Logger) *UploadValidator {
	if config.ScratchDir == "" {
		config.ScratchDir = os.TempDir()
	}
	if config.StatusTTL <= 0 {
		config.StatusTTL = time.Hour
	}
	return &UploadValidator{
		validator: validator,
		renderer:  renderer,
		statuses:  statuses,
		config:    config,
		log:       log.With().Str("component", "upload-validator").Logger(),
	}
}

// ValidateUpload buffers body to a scratch file keyed by its sha256 digest and validates it in
// the background. The returned status is the first one recorded for that key, so re-posting a
// document already seen returns its latest status without validating it again.
func (u *UploadValidator) ValidateUpload(ctx context.Context, body io.Reader) (models.ValidationStatus, error) {
	hash := sha256.New()
	scratch, size, err := writeScratchFile(u.config.ScratchDir, "upload-*.pdf", io.TeeReader(body, hash))
	if err != nil {
		return models.ValidationStatus{}, apperr.Internal("failed to buffer uploaded document", err)
	}
	key := hex.EncodeToString(hash.Sum(nil))
	logCtx := u.log.With().Str("key", key).Int64("contentLength", size).Logger()

	// Concurrent uploads of the same bytes share one status lookup, so only one of them starts a
	// validation. Whichever scratch file is not handed to that validation is removed here.
	started := false
	v, err, _ := u.starts.Do(key, func() (interface{}, error) {
		existing, found, err := u.statuses.Get(ctx, key)
		if err != nil {
			return nil, apperr.Internal("failed to read validation status", err)
		}
		if found {
			logCtx.Debug().Msg("Document already validated, returning stored status")
			return existing, nil
		}

		initial := models.ValidationStatus{Key: key}
		if err := u.statuses.Put(ctx, initial, u.config.StatusTTL); err != nil {
			return nil, apperr.Internal("failed to record validation status", err)
		}
		u.start(ctx, logCtx, key, scratch)
		started = true
		return initial, nil
	})
	if !started {
		scratch.remove()
	}
	if err != nil {
		return models.ValidationStatus{}, err
	}
	if started {
		logCtx.Info().Msg("Accepted document for validation")
	}
	return v.(models.ValidationStatus), nil
}

// start validates the scratch file in the background, recording every update, and removes the
// file afterwards.
func (u *UploadValidator) start(ctx context.Context, logCtx zerolog.Logger, key string, scratch *scratchFile) {
	bg := context.WithoutCancel(ctx)
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer scratch.remove()
		u.ValidateFile(bg, key, scratch.path, func(status models.ValidationStatus) {
			if err := u.statuses.Put(bg, status, u.config.StatusTTL); err != nil {
				logCtx.Error().Err(err).Msg("Failed to record validation status")
			}
		})
	}()
}

// Status returns the latest recorded status for key.
func (u *UploadValidator) Status(ctx context.Context, key string) (models.ValidationStatus, bool, error) {
	status, found, err := u.statuses.Get(ctx, key)
	if err != nil {
		return models.ValidationStatus{}, false, apperr.Internal("failed to read validation status", err)
	}
	return status, found, nil
}

// ValidateFile validates the document stored at path.
func (u *UploadValidator) ValidateFile(ctx context.Context, key, path string, onUpdate func(models.ValidationStatus)) {
	u.validator.Validate(ctx, key, func(ctx context.Context) (Document, error) {
		return u.renderer.LoadFromFile(ctx, path, LoadOptions{Strict: true})
	}, onUpdate)
}

// ValidateLocation validates the document published at location and returns its terminal status.
// A document that cannot be fetched is an error; a document that cannot be parsed is invalid.
func (u *UploadValidator) ValidateLocation(ctx context.Context, location string, onUpdate func(models.ValidationStatus)) (models.ValidationStatus, error) {
	key := models.CanonicalLocation(location)
	opts := LoadOptions{Strict: true}

	first, err := u.renderer.LoadFromLocation(ctx, location, opts)
	if err != nil && !errors.Is(err, ErrMalformedDocument) {
		u.log.Error().Err(err).Str("location", location).Msg("Error loading document for validation")
		return models.ValidationStatus{}, classifyLoadError(err)
	}

	var terminal models.ValidationStatus
	load := func(ctx context.Context) (Document, error) {
		if first != nil {
			doc := first
			first = nil
			return doc, nil
		}
		if err != nil {
			return nil, err
		}
		return u.renderer.LoadFromLocation(ctx, location, opts)
	}
	u.validator.Validate(ctx, key, load, func(status models.ValidationStatus) {
		if status.ValidationComplete {
			terminal = status
		}
		if onUpdate != nil {
			onUpdate(status)
		}
	})
	return terminal, nil
}

// Wait blocks until background validations started by ValidateUpload have finished.
func (u *UploadValidator) Wait() {
	u.wg.Wait()
}
