package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/pdfpageservice/internal/app"
	"github.com/Lllllllleong/pdfpageservice/internal/config"
	"github.com/Lllllllleong/pdfpageservice/internal/observability"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/rs/zerolog"
)

// objectEvent is the payload of a Cloud Storage object finalized event.
type objectEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

var (
	instance *app.App
	logger   zerolog.Logger
	once     sync.Once
	initErr  error
)

func init() {
	functions.CloudEvent("PrerenderDocument", prerenderDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func setup(ctx context.Context) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		initErr = fmt.Errorf("load config: %w", err)
		return
	}
	logger = observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      "json",
		ServiceName: cfg.Observability.ServiceName + "-prerender-trigger",
	})
	instance, initErr = app.New(ctx, cfg, logger)
}

// prerenderDocument renders every page of a PDF uploaded under an allowed CMS path.
func prerenderDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		setup(context.Background())
	})
	if initErr != nil {
		fmt.Fprintf(os.Stderr, "Critical error during function initialization: %v\n", initErr)
		return initErr
	}

	var event objectEvent
	if err := json.Unmarshal(e.Data(), &event); err != nil {
		logger.Error().Err(err).Str("data", string(e.Data())).Msg("Failed to unmarshal event data")
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	cms := instance.Config.CMS
	dir, name, ok := documentPath(event.Name)
	if !ok || !cms.AllowsPath(dir) {
		logger.Debug().Str("object", event.Name).Msg("Ignoring object outside the served documents")
		return nil
	}
	location, err := cms.Location(dir, name)
	if err != nil {
		return err
	}

	logCtx := logger.With().Str("bucket", event.Bucket).Str("object", event.Name).Logger()
	logCtx.Info().Msg("Prerendering uploaded document")

	sweep, err := instance.Prerender.Start(ctx, name, location)
	if err != nil {
		logCtx.Error().Err(err).Msg("Prerender rejected")
		return err
	}
	result, err := sweep.Wait(ctx)
	if err != nil {
		return err
	}
	logCtx.Info().Int("pages", result.Pages).Int("rendered", result.Rendered).Ints("failed", result.Failed).Msg("Prerender finished")
	return nil
}

// documentPath splits an object name of the form <path>/<name>.pdf.
func documentPath(object string) (dir, name string, ok bool) {
	dir, name = path.Split(object)
	dir = strings.Trim(dir, "/")
	if dir == "" || strings.Contains(dir, "/") || name == "" {
		return "", "", false
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		return "", "", false
	}
	return dir, name, true
}
