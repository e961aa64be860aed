//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestSQLMetadataStore_Postgres(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pdf_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/pdf_test?sslmode=disable", host, port.Port())
	s, err := Open(DriverPostgres, dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	m := sampleMetadata()
	require.NoError(t, s.Save(ctx, m))
	assert.ErrorIs(t, s.Save(ctx, sampleMetadata()), models.ErrMetadataExists)
	require.NoError(t, s.AdvancePagesGenerated(ctx, m.Key, 4))

	got, err := s.FindByKey(ctx, m.Key)
	require.NoError(t, err)
	assert.Equal(t, 12, got.TotalPages)
	assert.Equal(t, 4, got.PagesGenerated)
	assert.Equal(t, "Chapter 1", got.Outline[0].Title)
	assert.Equal(t, []string{"i", "ii", "1"}, got.PageLabels)
}
