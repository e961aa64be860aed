package app

import (
	"context"
	"testing"

	"github.com/Lllllllleong/pdfpageservice/internal/cache"
	"github.com/Lllllllleong/pdfpageservice/internal/config"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/Lllllllleong/pdfpageservice/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(mutate func(*config.Config)) *App {
	cfg := config.DefaultConfig()
	cfg.Database.DSN = ":memory:"
	if mutate != nil {
		mutate(cfg)
	}
	return &App{Config: cfg, log: zerolog.Nop()}
}

func TestOpenMetadataStore_SQLiteIsMigrated(t *testing.T) {
	a := testApp(nil)
	defer a.Close()

	s, err := a.openMetadataStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &store.SQLMetadataStore{}, s)
	assert.Len(t, a.closers, 1)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &models.DocumentMetadata{Key: "https://cms/a.pdf", TotalPages: 2}))
	m, err := s.FindByKey(ctx, "https://cms/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalPages)
}

func TestOpenStatusCache(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		c, err := testApp(nil).openStatusCache()
		require.NoError(t, err)
		assert.IsType(t, &cache.MemoryClient{}, c)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, err := testApp(func(cfg *config.Config) {
			cfg.Validation.StatusStore = "redis"
			cfg.Redis.Addr = mr.Addr()
		}).openStatusCache()
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &cache.RedisClient{}, c)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		c, err := testApp(func(cfg *config.Config) {
			cfg.Validation.StatusStore = "redis"
			cfg.Redis.Addr = "127.0.0.1:1"
		}).openStatusCache()
		assert.Error(t, err)
		assert.Nil(t, c)
	})
}
