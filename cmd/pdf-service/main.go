// Package main provides the PDF page service entrypoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/pdfpageservice/internal/app"
	"github.com/Lllllllleong/pdfpageservice/internal/config"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/Lllllllleong/pdfpageservice/internal/observability"
	"github.com/Lllllllleong/pdfpageservice/internal/pdf"
	"github.com/Lllllllleong/pdfpageservice/internal/services"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	cfgFile   string
	logFormat string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pdf-service",
	Short: "Serve rendered PDF pages, document metadata and validation",
	Long: `pdf-service renders pages of CMS-hosted PDF documents to JPEG on demand, caches them
in Cloud Storage and tracks per-document metadata.

Commands:
- serve starts the HTTP and WebSocket API
- validate checks that every page of a local PDF renders
- prerender renders and stores every page of a CMS document`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		format := cfg.Observability.LogFormat
		if logFormat != "" {
			format = logFormat
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      format,
			ServiceName: cfg.Observability.ServiceName,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override the log format (json or console)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newPrerenderCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize service: %w", err)
			}
			defer a.Close()

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           a.Router(),
				ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
				IdleTimeout:       cfg.Server.IdleTimeout,
			}

			logger.Info().
				Int("port", cfg.Server.Port).
				Str("prefix", cfg.Server.RoutePrefix).
				Str("metadata", cfg.Database.Driver).
				Str("bucket", cfg.Storage.Bucket).
				Bool("development", cfg.IsDevelopment()).
				Msg("Starting PDF page service")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info().Str("addr", addr).Msg("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return a.RunMaintenance(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info().Msg("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("Graceful shutdown failed")
					return srv.Close()
				}
				return nil
			})

			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info().Msg("Server stopped")
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that every page of a local PDF renders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			renderer := pdf.NewRenderer(pdf.Config{Scale: cfg.Render.Scale, Quality: cfg.JPEGQuality()}, logger)
			validator := services.NewValidator(cfg.Validation.ReloadInterval, logger)

			enc := json.NewEncoder(cmd.OutOrStdout())
			var terminal models.ValidationStatus
			validator.Validate(cmd.Context(), args[0], func(ctx context.Context) (services.Document, error) {
				return renderer.LoadFromFile(ctx, args[0], services.LoadOptions{Strict: true})
			}, func(status models.ValidationStatus) {
				if status.Terminal() {
					terminal = status
				}
				_ = enc.Encode(status)
			})

			if !terminal.IsValid() {
				return fmt.Errorf("%s is not a valid PDF", args[0])
			}
			return nil
		},
	}
}

func newPrerenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prerender <path> <name>",
		Short: "Render and store every page of a CMS document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, name := args[0], args[1]
			if !cfg.CMS.AllowsPath(path) {
				return fmt.Errorf("path %q is not an allowed CMS path", path)
			}
			location, err := cfg.CMS.Location(path, name)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize service: %w", err)
			}
			defer a.Close()

			sweep, err := a.Prerender.Start(ctx, name, location)
			if err != nil {
				return err
			}
			result, err := sweep.Wait(ctx)
			if err != nil {
				return err
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			if err := out.Encode(result); err != nil {
				return err
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d of %d pages failed to render", len(result.Failed), result.Pages)
			}
			return nil
		},
	}
}
