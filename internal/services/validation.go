package services

import (
	"context"
	"io"

	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/rs/zerolog"
)

// DefaultReloadInterval is how many pages are rendered before the document handle is reacquired.
const DefaultReloadInterval = 20

// DocumentLoader acquires a fresh handle on the document being validated.
type DocumentLoader func(ctx context.Context) (Document, error)

// Validator renders every page of a document sequentially to decide whether it is usable.
type Validator struct {
	reloadInterval int
	log            zerolog.Logger
}

// NewValidator creates a Validator. A non-positive interval falls back to DefaultReloadInterval.
func NewValidator(reloadInterval int, log zerolog.Logger) *Validator {
	if reloadInterval <= 0 {
		reloadInterval = DefaultReloadInterval
	}
	return &Validator{
		reloadInterval: reloadInterval,
		log:            log.With().Str("component", "validator").Logger(),
	}
}

// Validate reports progress for key through onUpdate, ending with exactly one terminal status.
// Rendering failures produce an invalid result rather than an error.
func (v *Validator) Validate(ctx context.Context, key string, load DocumentLoader, onUpdate func(models.ValidationStatus)) {
	logCtx := v.log.With().Str("key", key).Logger()

	doc, err := load(ctx)
	if err != nil {
		logCtx.Warn().Err(err).Msg("Unable to load document for validation")
		onUpdate(models.ValidationStatus{
			Key:                key,
			ValidationComplete: true,
			Valid:              models.Bool(false),
			PagesValidated:     models.Int(0),
		})
		return
	}
	defer func() {
		if doc != nil {
			_ = doc.Close()
		}
	}()

	total := doc.PageCount()
	logCtx.Info().Int("pages", total).Msg("Validating document")

	for page := 1; page <= total; page++ {
		if page%v.reloadInterval == 0 {
			logCtx.Debug().Int("page", page).Msg("Reloading document")
			_ = doc.Close()
			if doc, err = load(ctx); err != nil {
				logCtx.Warn().Err(err).Msg("Unable to reload document during validation")
				onUpdate(invalidStatus(key, total, page-1))
				return
			}
		}

		if err := renderAndDiscard(ctx, doc, page); err != nil {
			logCtx.Info().Err(err).Int("page", page).Msg("Page failed to render, document is invalid")
			onUpdate(invalidStatus(key, total, page-1))
			return
		}
		onUpdate(models.ValidationStatus{
			Key:            key,
			TotalPages:     models.Int(total),
			PagesValidated: models.Int(page),
		})
	}

	logCtx.Info().Msg("Document validated")
	onUpdate(models.ValidationStatus{
		Key:                key,
		ValidationComplete: true,
		Valid:              models.Bool(true),
		TotalPages:         models.Int(total),
		PagesValidated:     models.Int(total),
	})
}

func invalidStatus(key string, total, validated int) models.ValidationStatus {
	return models.ValidationStatus{
		Key:                key,
		ValidationComplete: true,
		Valid:              models.Bool(false),
		TotalPages:         models.Int(total),
		PagesValidated:     models.Int(validated),
	}
}

func renderAndDiscard(ctx context.Context, doc Document, page int) error {
	img, err := doc.RenderPage(ctx, page)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(io.Discard, img)
	closeErr := img.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
