package pdf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/pdfpageservice/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromLocation_MissingDocumentIsUnreachable(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		r := NewRenderer(Config{}, zerolog.Nop())

		_, err := r.LoadFromLocation(context.Background(), srv.URL+"/assets/missing.pdf", services.LoadOptions{})
		srv.Close()

		require.Error(t, err)
		assert.ErrorIs(t, err, services.ErrDocumentUnreachable, "status %d", status)
	}
}

func TestLoadFromLocation_ServerErrorIsNotUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	r := NewRenderer(Config{}, zerolog.Nop())

	_, err := r.LoadFromLocation(context.Background(), srv.URL+"/assets/doc.pdf", services.LoadOptions{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, services.ErrDocumentUnreachable)
	assert.NotErrorIs(t, err, services.ErrMalformedDocument)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	r := NewRenderer(Config{}, zerolog.Nop())
	_, err := r.LoadFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), services.LoadOptions{})
	assert.ErrorIs(t, err, services.ErrDocumentUnreachable)
}

func TestNewRenderer_Defaults(t *testing.T) {
	r := NewRenderer(Config{Quality: 250}, zerolog.Nop())
	assert.Equal(t, DefaultScale, r.config.Scale)
	assert.Equal(t, DefaultQuality, r.config.Quality)
	assert.NotNil(t, r.config.HTTPClient)
}
