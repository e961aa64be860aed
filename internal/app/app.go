// Package app wires configuration into the service graph shared by the HTTP server, the CLI and
// the prerender trigger.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/cache"
	"github.com/Lllllllleong/pdfpageservice/internal/config"
	"github.com/Lllllllleong/pdfpageservice/internal/gcp"
	"github.com/Lllllllleong/pdfpageservice/internal/pdf"
	"github.com/Lllllllleong/pdfpageservice/internal/server"
	"github.com/Lllllllleong/pdfpageservice/internal/services"
	"github.com/Lllllllleong/pdfpageservice/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// App holds the constructed services and the resources that must be released on shutdown.
type App struct {
	Config     *config.Config
	Renderer   *pdf.Renderer
	Catalog    *services.DocumentCatalog
	Pages      *services.PageRenderer
	Validation *services.UploadValidator
	Prerender  *services.Prerenderer

	renderCache *services.RenderCache
	statusCache cache.Client
	closers     []io.Closer
	log         zerolog.Logger
}

// New builds every service described by cfg. The caller must Close the result.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	metadata, err := a.openMetadataStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, storageClient)
	objects, err := gcp.NewObjectStore(storageClient, cfg.Storage.Bucket, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.statusCache, err = a.openStatusCache()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.statusCache)

	a.Renderer = pdf.NewRenderer(pdf.Config{
		Scale:   cfg.Render.Scale,
		Quality: cfg.JPEGQuality(),
	}, log)
	a.renderCache = services.NewRenderCache(cfg.Render.CacheTTL)
	a.Catalog = services.NewDocumentCatalog(metadata, a.Renderer, log)
	a.Pages = services.NewPageRenderer(objects, a.Catalog, a.Renderer, a.renderCache,
		services.PageRendererConfig{ScratchDir: cfg.Server.ScratchDir, RenderTimeout: cfg.Render.Timeout}, log)
	a.Validation = services.NewUploadValidator(
		services.NewValidator(cfg.Validation.ReloadInterval, log),
		a.Renderer,
		cache.NewStatusStore(a.statusCache),
		services.UploadValidatorConfig{ScratchDir: cfg.Server.ScratchDir, StatusTTL: cfg.Validation.StatusTTL},
		log,
	)
	a.Prerender = services.NewPrerenderer(a.Pages, a.Catalog, log)

	return a, nil
}

func (a *App) openMetadataStore(ctx context.Context) (services.MetadataStore, error) {
	db := a.Config.Database
	switch db.Driver {
	case config.DriverFirestore:
		client, err := gcp.NewFirestoreClient(ctx, db.ProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		return gcp.NewFirestoreMetadataStore(client, db.Collection, a.log), nil
	default:
		s, err := store.Open(db.Driver, a.Config.DatabaseDSN(), a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		if err := s.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate metadata store: %w", err)
		}
		return s, nil
	}
}

func (a *App) openStatusCache() (cache.Client, error) {
	if a.Config.Validation.StatusStore == "redis" {
		r := a.Config.Redis
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return cache.NewMemoryClient(0), nil
}

// Router returns the HTTP handler over the app's services.
func (a *App) Router() http.Handler {
	return server.NewRouter(server.Dependencies{
		Pages:      a.Pages,
		Metadata:   a.Catalog,
		Prerender:  a.Prerender,
		Validation: a.Validation,
	}, server.Options{
		RoutePrefix:    a.Config.Server.RoutePrefix,
		CMS:            a.Config.CMS,
		Development:    a.Config.IsDevelopment(),
		MaxUploadBytes: a.Config.Server.MaxUploadBytes,
		ScratchDir:     a.Config.Server.ScratchDir,
	}, a.log)
}

// RunMaintenance sweeps expired render cache and in-memory status entries until ctx is done.
func (a *App) RunMaintenance(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.renderCache.Run(ctx, a.Config.Render.CacheCheckPeriod)
	})
	if mem, ok := a.statusCache.(*cache.MemoryClient); ok {
		g.Go(func() error {
			return mem.Run(ctx, time.Minute)
		})
	}
	return g.Wait()
}

// Close waits for background validations and releases clients in reverse order of creation.
func (a *App) Close() {
	if a.Validation != nil {
		a.Validation.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}
