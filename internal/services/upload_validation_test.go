package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploadFixture(t *testing.T, r *fakeRenderer) (*UploadValidator, *memoryStatuses, string) {
	t.Helper()
	statuses := newMemoryStatuses()
	dir := t.TempDir()
	u := NewUploadValidator(NewValidator(20, zerolog.Nop()), r, statuses, UploadValidatorConfig{ScratchDir: dir, StatusTTL: time.Minute}, zerolog.Nop())
	return u, statuses, dir
}

func TestValidateUpload_KeysByDigestAndRecordsProgress(t *testing.T) {
	u, statuses, dir := newUploadFixture(t, &fakeRenderer{pages: 3})
	body := "%PDF-1.7 fake document"
	sum := sha256.Sum256([]byte(body))
	key := hex.EncodeToString(sum[:])

	initial, err := u.ValidateUpload(context.Background(), strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, key, initial.Key)
	assert.False(t, initial.Terminal())

	u.Wait()
	final, found, err := u.Status(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, final.Terminal())
	assert.True(t, final.IsValid())
	assert.Len(t, statuses.history, 5, "initial, three pages, terminal")
	assert.Equal(t, 0, scratchEntries(t, dir))
}

func TestValidateUpload_ReturnsStoredStatusForKnownDocument(t *testing.T) {
	r := &fakeRenderer{pages: 1}
	u, _, dir := newUploadFixture(t, r)

	_, err := u.ValidateUpload(context.Background(), strings.NewReader("same bytes"))
	require.NoError(t, err)
	u.Wait()

	again, err := u.ValidateUpload(context.Background(), strings.NewReader("same bytes"))
	require.NoError(t, err)
	u.Wait()
	assert.True(t, again.Terminal())
	assert.EqualValues(t, 1, r.loads)
	assert.Equal(t, 0, scratchEntries(t, dir))
}

func TestValidateUpload_ConcurrentIdenticalUploadsValidateOnce(t *testing.T) {
	r := &fakeRenderer{pages: 2}
	u, statuses, dir := newUploadFixture(t, r)
	statuses.getDelay = 20 * time.Millisecond

	const callers = 8
	keys := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, err := u.ValidateUpload(context.Background(), strings.NewReader("identical upload"))
			assert.NoError(t, err)
			keys[i] = status.Key
		}(i)
	}
	wg.Wait()
	u.Wait()

	for _, key := range keys {
		assert.Equal(t, keys[0], key)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&r.loads))
	assert.Equal(t, 0, scratchEntries(t, dir))
}

func TestStatus_UnknownKey(t *testing.T) {
	u, _, _ := newUploadFixture(t, &fakeRenderer{pages: 1})
	_, found, err := u.Status(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestValidateLocation(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		r := &fakeRenderer{pages: 2}
		u, _, _ := newUploadFixture(t, r)

		var updates int
		status, err := u.ValidateLocation(context.Background(), testLocation, func(s models.ValidationStatus) { updates++ })
		require.NoError(t, err)
		assert.True(t, status.IsValid())
		assert.Equal(t, "https://cms.example.com/assets/manual.pdf", status.Key)
		assert.Equal(t, 3, updates)
		assert.EqualValues(t, 1, r.loads, "the probing load is reused")
	})

	t.Run("malformed document is invalid", func(t *testing.T) {
		u, _, _ := newUploadFixture(t, &fakeRenderer{loadErr: ErrMalformedDocument})
		status, err := u.ValidateLocation(context.Background(), testLocation, nil)
		require.NoError(t, err)
		assert.True(t, status.Terminal())
		assert.False(t, status.IsValid())
	})

	t.Run("unreachable document is not found", func(t *testing.T) {
		u, _, _ := newUploadFixture(t, &fakeRenderer{loadErr: ErrDocumentUnreachable})
		_, err := u.ValidateLocation(context.Background(), testLocation, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))
	})
}
