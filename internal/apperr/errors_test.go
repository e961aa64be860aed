package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode_Kinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{MetadataMissing("http://cms/assets/a.pdf"), http.StatusBadRequest},
		{PageOutOfRange(6), http.StatusNotFound},
		{UpstreamRender("render failed", errors.New("boom")), http.StatusInternalServerError},
		{HTTP(http.StatusBadGateway, "upstream", nil), http.StatusBadGateway},
		{HTTP(0, "no status", nil), http.StatusInternalServerError},
		{BadRequest("Page must be numeric"), http.StatusBadRequest},
		{NotFound("missing", nil), http.StatusNotFound},
		{Internal("oops", nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusCode(tc.err), tc.err.Error())
	}
}

func TestStatusCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("getting page: %w", PageOutOfRange(3))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestWrap_PassesClassifiedErrorsThrough(t *testing.T) {
	original := HTTP(http.StatusForbidden, "denied", nil)
	assert.Same(t, original, Wrap(original, "ignored"))

	wrapped := Wrap(errors.New("disk full"), "writing scratch file")
	e, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "writing scratch file: disk full", wrapped.Error())

	assert.NoError(t, Wrap(nil, "nothing"))
}

func TestIsHTTP(t *testing.T) {
	assert.True(t, IsHTTP(fmt.Errorf("upload: %w", HTTP(503, "unavailable", nil))))
	assert.False(t, IsHTTP(Internal("x", nil)))
	assert.False(t, IsHTTP(errors.New("x")))
}
