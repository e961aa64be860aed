// Package server exposes the page, metadata and validation services over HTTP and WebSockets.
package server

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/Lllllllleong/pdfpageservice/internal/config"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/Lllllllleong/pdfpageservice/internal/services"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PageService serves page images.
type PageService interface {
	GetPage(ctx context.Context, name string, page int, location string) (io.ReadCloser, error)
	RenderDirect(ctx context.Context, page int, location string) (io.ReadCloser, error)
}

// MetadataService resolves document metadata.
type MetadataService interface {
	PageCount(ctx context.Context, location string) (int, error)
	Metadata(ctx context.Context, location string) (*models.DocumentMetadata, error)
}

// PrerenderService starts background prerender sweeps.
type PrerenderService interface {
	Start(ctx context.Context, name, location string) (*services.Sweep, error)
}

// ValidationService validates uploaded, local and published documents.
type ValidationService interface {
	ValidateUpload(ctx context.Context, body io.Reader) (models.ValidationStatus, error)
	Status(ctx context.Context, key string) (models.ValidationStatus, bool, error)
	ValidateFile(ctx context.Context, key, path string, onUpdate func(models.ValidationStatus))
	ValidateLocation(ctx context.Context, location string, onUpdate func(models.ValidationStatus)) (models.ValidationStatus, error)
}

// Dependencies are the services behind the routes.
type Dependencies struct {
	Pages      PageService
	Metadata   MetadataService
	Prerender  PrerenderService
	Validation ValidationService
}

// Options configure routing and request limits.
type Options struct {
	RoutePrefix    string
	CMS            config.CMSConfig
	Development    bool
	MaxUploadBytes int64
	ScratchDir     string
}

// Health routes answer 200 whenever the process is serving.
const (
	HealthPath       = "/health"
	LegacyHealthPath = "/.well-known/express/server-health"
)

type handler struct {
	deps     Dependencies
	opts     Options
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewRouter creates the HTTP handler with all routes configured.
func NewRouter(deps Dependencies, opts Options, log zerolog.Logger) http.Handler {
	h := &handler{
		deps: deps,
		opts: opts,
		log:  log.With().Str("component", "http").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(chimiddleware.Recoverer)

	r.Get(HealthPath, h.health)
	r.Get(LegacyHealthPath, h.health)

	prefix := "/" + strings.Trim(opts.RoutePrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	r.Route(prefix+"/v2", func(r chi.Router) {
		r.Route("/validate", func(r chi.Router) {
			r.With(allowedContentTypes(h.log, "application/pdf"), contentLengthFilter(h.log, opts.MaxUploadBytes)).
				Post("/", h.postValidate)
			r.Get("/", h.uploadValidationSession)
			r.Get("/{key}", h.validationStatus)
		})

		r.Route("/{path}/{pdfName}", func(r chi.Router) {
			r.Use(allowedPaths(opts.CMS))
			r.Get("/pages", h.pageCount)
			r.Get("/metadata", h.metadata)
			r.Get("/prerender", h.prerender)
			r.Get("/validate", h.validateLocation)
			r.Get("/page/{page}", h.page)
			r.Get("/render-page/{page}", h.renderPage)
		})
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
