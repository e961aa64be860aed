package server

import (
	"mime"
	"net/http"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/config"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("requestId", chimiddleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("Request handled")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// allowedContentTypes rejects requests whose media type is not listed with 415.
func allowedContentTypes(log zerolog.Logger, types ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err == nil {
				for _, t := range types {
					if mediaType == t {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			log.Debug().Str("contentType", r.Header.Get("Content-Type")).Strs("allowed", types).Msg("Rejecting request content type")
			http.Error(w, http.StatusText(http.StatusUnsupportedMediaType), http.StatusUnsupportedMediaType)
		})
	}
}

// contentLengthFilter rejects declared bodies over maxLength with 413 and caps undeclared ones.
func contentLengthFilter(log zerolog.Logger, maxLength int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxLength > 0 {
				if r.ContentLength > maxLength {
					log.Warn().Int64("contentLength", r.ContentLength).Int64("max", maxLength).Msg("Request exceeds maximum length")
					http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxLength)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allowedPaths answers 404 for CMS path segments that are not configured.
func allowedPaths(cms config.CMSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cms.AllowsPath(chi.URLParam(r, "path")) {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
