// Package store implements the relational metadata store on Postgres or SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/models"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLMetadataStore keeps DocumentMetadata in the pdf_metadata table.
type SQLMetadataStore struct {
	db     *sql.DB
	driver string
	log    zerolog.Logger
}

// Open connects to the database and returns a store over it. SQLite is limited to a single
// connection so that in-memory databases are shared by every query.
func Open(driver, dsn string, log zerolog.Logger) (*SQLMetadataStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return New(db, driver, log), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, driver string, log zerolog.Logger) *SQLMetadataStore {
	return &SQLMetadataStore{
		db:     db,
		driver: driver,
		log:    log.With().Str("component", "sql-metadata").Str("driver", driver).Logger(),
	}
}

// Migrate creates the pdf_metadata table if it does not exist.
func (s *SQLMetadataStore) Migrate(ctx context.Context) error {
	jsonType, timeType := "TEXT", "TIMESTAMP"
	if s.driver == DriverPostgres {
		jsonType, timeType = "JSONB", "TIMESTAMPTZ"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pdf_metadata (
	pdf_location VARCHAR PRIMARY KEY,
	total_pages INTEGER NOT NULL,
	pages_generated INTEGER NOT NULL DEFAULT 0,
	outline %[1]s,
	page_labels %[1]s,
	created_at %[2]s NOT NULL
)`, jsonType, timeType)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate pdf_metadata: %w", err)
	}
	return nil
}

// Ping verifies the connection.
func (s *SQLMetadataStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLMetadataStore) Close() error {
	return s.db.Close()
}

// FindByKey returns the record for key or models.ErrMetadataNotFound.
func (s *SQLMetadataStore) FindByKey(ctx context.Context, key string) (*models.DocumentMetadata, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT pdf_location, total_pages, pages_generated, outline, page_labels, created_at
		FROM pdf_metadata WHERE pdf_location = ?`), key)

	var (
		m               models.DocumentMetadata
		outline, labels sql.NullString
	)
	if err := row.Scan(&m.Key, &m.TotalPages, &m.PagesGenerated, &outline, &labels, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrMetadataNotFound
		}
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	if outline.Valid {
		if err := json.Unmarshal([]byte(outline.String), &m.Outline); err != nil {
			return nil, fmt.Errorf("failed to decode outline: %w", err)
		}
	}
	if labels.Valid {
		if err := json.Unmarshal([]byte(labels.String), &m.PageLabels); err != nil {
			return nil, fmt.Errorf("failed to decode page labels: %w", err)
		}
	}
	return &m, nil
}

// Save inserts the record, reporting models.ErrMetadataExists if the key is already present.
func (s *SQLMetadataStore) Save(ctx context.Context, m *models.DocumentMetadata) error {
	outline, err := jsonColumn(m.Outline, len(m.Outline) > 0)
	if err != nil {
		return fmt.Errorf("failed to encode outline: %w", err)
	}
	labels, err := jsonColumn(m.PageLabels, len(m.PageLabels) > 0)
	if err != nil {
		return fmt.Errorf("failed to encode page labels: %w", err)
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO pdf_metadata (pdf_location, total_pages, pages_generated, outline, page_labels, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (pdf_location) DO NOTHING`),
		m.Key, m.TotalPages, m.PagesGenerated, outline, labels, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		return models.ErrMetadataExists
	}
	s.log.Debug().Str("key", m.Key).Int("pages", m.TotalPages).Msg("Metadata record inserted")
	return nil
}

// AdvancePagesGenerated raises pages_generated to page if it is currently lower.
func (s *SQLMetadataStore) AdvancePagesGenerated(ctx context.Context, key string, page int) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE pdf_metadata SET pages_generated = ? WHERE pdf_location = ? AND pages_generated < ?`),
		page, key, page)
	if err != nil {
		return fmt.Errorf("failed to update pages generated: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLMetadataStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// jsonColumn encodes v for a JSON column. Postgres rejects the \u0000 escape in jsonb, so it is
// removed from the encoded text as well as from the values themselves.
func jsonColumn(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: strings.ReplaceAll(string(data), `\u0000`, ""), Valid: true}, nil
}
