package services

import (
	"context"
	"io"

	"github.com/rs/zerolog"
)

// PageSource serves a single page image.
type PageSource interface {
	GetPage(ctx context.Context, name string, page int, location string) (io.ReadCloser, error)
}

// PageCounter resolves the number of pages in a document.
type PageCounter interface {
	PageCount(ctx context.Context, location string) (int, error)
}

// SweepResult summarizes a finished prerender sweep.
type SweepResult struct {
	Pages    int   `json:"pages"`
	Rendered int   `json:"rendered"`
	Failed   []int `json:"failed,omitempty"`
}

// Sweep is a prerender running in the background.
type Sweep struct {
	done   chan struct{}
	result SweepResult
}

// Done is closed when every page has been attempted.
func (s *Sweep) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the sweep finishes or ctx is done.
func (s *Sweep) Wait(ctx context.Context) (SweepResult, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	}
}

// Prerenderer renders every page of a document ahead of demand.
type Prerenderer struct {
	pages   PageSource
	counter PageCounter
	log     zerolog.Logger
}

// NewPrerenderer creates a Prerenderer.
func NewPrerenderer(pages PageSource, counter PageCounter, log zerolog.Logger) *Prerenderer {
	return &Prerenderer{
		pages:   pages,
		counter: counter,
		log:     log.With().Str("component", "prerenderer").Logger(),
	}
}

// Start resolves the page count and, if that succeeds, returns immediately while the pages are
// rendered one at a time in the background. A failed page is logged and the sweep moves on.
// The sweep outlives ctx cancellation.
func (p *Prerenderer) Start(ctx context.Context, name, location string) (*Sweep, error) {
	total, err := p.counter.PageCount(ctx, location)
	if err != nil {
		p.log.Error().Err(err).Str("location", location).Msg("Prerender rejected, unable to resolve page count")
		return nil, err
	}

	s := &Sweep{done: make(chan struct{}), result: SweepResult{Pages: total}}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(s.done)
		p.sweep(bg, s, name, location, total)
	}()
	return s, nil
}

func (p *Prerenderer) sweep(ctx context.Context, s *Sweep, name, location string, total int) {
	logCtx := p.log.With().Str("name", name).Str("location", location).Logger()
	logCtx.Info().Int("pages", total).Msg("Prerendering document")

	for page := 1; page <= total; page++ {
		if err := p.renderOne(ctx, name, page, location); err != nil {
			logCtx.Error().Err(err).Int("page", page).Msg("Failed to prerender page")
			s.result.Failed = append(s.result.Failed, page)
			continue
		}
		s.result.Rendered++
	}
	logCtx.Info().Int("rendered", s.result.Rendered).Int("failed", len(s.result.Failed)).Msg("Prerender complete")
}

func (p *Prerenderer) renderOne(ctx context.Context, name string, page int, location string) error {
	rc, err := p.pages.GetPage(ctx, name, page, location)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(io.Discard, rc)
	closeErr := rc.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
