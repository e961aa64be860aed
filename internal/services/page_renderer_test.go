package services

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/apperr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLocation = "https://cms.example.com/assets/Manual.pdf"

type rendererFixture struct {
	objects  *fakeObjectStore
	metadata *fakeMetadataStore
	renderer *fakeRenderer
	cache    *RenderCache
	scratch  string
	pages    *PageRenderer
}

func newRendererFixture(t *testing.T, pages int) *rendererFixture {
	t.Helper()
	f := &rendererFixture{
		objects:  newFakeObjectStore(),
		metadata: newFakeMetadataStore(),
		renderer: &fakeRenderer{pages: pages},
		cache:    NewRenderCache(100 * time.Second),
		scratch:  t.TempDir(),
	}
	f.metadata.put(testLocation, pages)
	catalog := NewDocumentCatalog(f.metadata, f.renderer, zerolog.Nop())
	f.pages = NewPageRenderer(f.objects, catalog, f.renderer, f.cache, PageRendererConfig{ScratchDir: f.scratch}, zerolog.Nop())
	return f
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	return string(data)
}

func scratchEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestGetPage_RendersEveryPageThenServesFromStore(t *testing.T) {
	f := newRendererFixture(t, 5)
	ctx := context.Background()

	for page := 1; page <= 5; page++ {
		rc, err := f.pages.GetPage(ctx, "Manual", page, testLocation)
		require.NoError(t, err)
		assert.Equal(t, "jpeg page "+string(rune('0'+page)), readAll(t, rc))
	}
	assert.EqualValues(t, 5, f.renderer.renders)
	assert.EqualValues(t, 5, f.objects.writes)

	rc, err := f.pages.GetPage(ctx, "Manual", 3, testLocation)
	require.NoError(t, err)
	assert.Equal(t, "jpeg page 3", readAll(t, rc))
	assert.EqualValues(t, 5, f.renderer.renders, "a stored page is not rendered again")
	assert.Equal(t, 0, scratchEntries(t, f.scratch))
	assert.Equal(t, 5, f.metadata.advanced["https://cms.example.com/assets/manual.pdf"])
}

func TestGetPage_ConcurrentCallersShareOneRender(t *testing.T) {
	f := newRendererFixture(t, 3)
	f.renderer.gate = make(chan struct{})
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc, err := f.pages.GetPage(ctx, "Manual", 2, testLocation)
			if !assert.NoError(t, err) {
				return
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			results <- string(data)
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.renderer.renders) == 1 }, time.Second, time.Millisecond)
	close(f.renderer.gate)
	wg.Wait()
	close(results)

	for r := range results {
		assert.Equal(t, "jpeg page 2", r)
	}
	assert.EqualValues(t, 1, f.renderer.renders)
	assert.EqualValues(t, 1, f.objects.writes)
}

func TestGetPage_BoundsChecksSkipTheRenderer(t *testing.T) {
	f := newRendererFixture(t, 5)
	ctx := context.Background()

	_, err := f.pages.GetPage(ctx, "Manual", 6, testLocation)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))

	_, err = f.pages.GetPage(ctx, "Unknown", 1, "https://cms.example.com/assets/unknown.pdf")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.StatusCode(err))

	assert.EqualValues(t, 0, f.renderer.loads)
	assert.EqualValues(t, 0, f.renderer.renders)
	assert.Equal(t, 0, f.cache.Len(), "failed renders are not cached")
}

func TestGetPage_ReadTransportErrorIsTreatedAsMiss(t *testing.T) {
	f := newRendererFixture(t, 2)
	f.objects.readErr = errTransport

	rc, err := f.pages.GetPage(context.Background(), "Manual", 1, testLocation)
	require.NoError(t, err)
	assert.Equal(t, "jpeg page 1", readAll(t, rc))
}

func TestGetPage_ReadStatusErrorPropagates(t *testing.T) {
	f := newRendererFixture(t, 2)
	f.objects.readErr = apperr.HTTP(http.StatusServiceUnavailable, "backend unavailable", nil)

	_, err := f.pages.GetPage(context.Background(), "Manual", 1, testLocation)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apperr.StatusCode(err))
	assert.EqualValues(t, 0, f.renderer.renders)
}

func TestGetPage_UploadFailureStillServesPage(t *testing.T) {
	f := newRendererFixture(t, 2)
	f.objects.writeErr = errTransport

	rc, err := f.pages.GetPage(context.Background(), "Manual", 2, testLocation)
	require.NoError(t, err)
	assert.Equal(t, "jpeg page 2", readAll(t, rc))
	assert.Equal(t, 0, scratchEntries(t, f.scratch))
}

func TestGetPage_UploadFailureLeavesWatermark(t *testing.T) {
	f := newRendererFixture(t, 3)
	f.objects.writeErr = errTransport

	rc, err := f.pages.GetPage(context.Background(), "Manual", 3, testLocation)
	require.NoError(t, err)
	readAll(t, rc)
	assert.Equal(t, 0, f.metadata.generated("https://cms.example.com/assets/manual.pdf"))
}

func TestGetPage_StalledUploadIsBoundedByRenderTimeout(t *testing.T) {
	f := newRendererFixture(t, 2)
	f.objects.stall = true
	catalog := NewDocumentCatalog(f.metadata, f.renderer, zerolog.Nop())
	f.pages = NewPageRenderer(f.objects, catalog, f.renderer, f.cache,
		PageRendererConfig{ScratchDir: f.scratch, RenderTimeout: 50 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	type result struct {
		rc  io.ReadCloser
		err error
	}
	done := make(chan result, 1)
	go func() {
		rc, err := f.pages.GetPage(ctx, "Manual", 1, testLocation)
		done <- result{rc, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "jpeg page 1", readAll(t, res.rc))
	case <-time.After(2 * time.Second):
		t.Fatal("GetPage did not return after the render timeout")
	}

	entry, ok := f.cache.Lookup(DeriveStorageKey(testLocation, "Manual", 1))
	require.True(t, ok)
	assert.False(t, entry.pending())
	assert.Equal(t, 0, f.metadata.generated("https://cms.example.com/assets/manual.pdf"))
	assert.Equal(t, 0, scratchEntries(t, f.scratch))
}

func TestGetPage_UploadStatusErrorFailsAndCleansUp(t *testing.T) {
	f := newRendererFixture(t, 2)
	f.objects.writeErr = apperr.HTTP(http.StatusForbidden, "bucket is read only", nil)

	_, err := f.pages.GetPage(context.Background(), "Manual", 2, testLocation)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, apperr.StatusCode(err))
	assert.Equal(t, 0, scratchEntries(t, f.scratch))
	assert.Equal(t, 0, f.cache.Len())
}

func TestGetPage_RenderFailureIsServerError(t *testing.T) {
	f := newRendererFixture(t, 2)
	f.renderer.failPages = map[int]bool{1: true}

	_, err := f.pages.GetPage(context.Background(), "Manual", 1, testLocation)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperr.StatusCode(err))
	assert.Equal(t, 0, f.cache.Len())
}

func TestRenderDirect_BypassesStore(t *testing.T) {
	f := newRendererFixture(t, 2)

	rc, err := f.pages.RenderDirect(context.Background(), 2, testLocation)
	require.NoError(t, err)
	assert.Equal(t, "jpeg page 2", readAll(t, rc))
	assert.EqualValues(t, 0, f.objects.writes)

	_, err = f.pages.RenderDirect(context.Background(), 3, testLocation)
	assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))
}
