package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/models"
)

type fakeObjectStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	writes   int32
	readErr  error
	writeErr error
	// stall makes WriteObject block until its context is done.
	stall bool
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (s *fakeObjectStore) ReadObject(_ context.Context, key string) (io.ReadCloser, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, false, s.readErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(data)), true, nil
}

func (s *fakeObjectStore) WriteObject(ctx context.Context, key string, r io.Reader, size int64) error {
	atomic.AddInt32(&s.writes, 1)
	if s.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: got %d want %d", len(data), size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.objects[key] = data
	return nil
}

type fakeMetadataStore struct {
	mu       sync.Mutex
	records  map[string]*models.DocumentMetadata
	saves    int32
	findErr  error
	saveErr  error
	advanced map[string]int
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{records: map[string]*models.DocumentMetadata{}, advanced: map[string]int{}}
}

func (s *fakeMetadataStore) put(location string, pages int) {
	key := models.CanonicalLocation(location)
	s.records[key] = &models.DocumentMetadata{Key: key, TotalPages: pages}
}

func (s *fakeMetadataStore) FindByKey(_ context.Context, key string) (*models.DocumentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	m, ok := s.records[key]
	if !ok {
		return nil, models.ErrMetadataNotFound
	}
	copied := *m
	return &copied, nil
}

func (s *fakeMetadataStore) Save(_ context.Context, m *models.DocumentMetadata) error {
	atomic.AddInt32(&s.saves, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.records[m.Key]; ok {
		return models.ErrMetadataExists
	}
	copied := *m
	s.records[m.Key] = &copied
	return nil
}

func (s *fakeMetadataStore) generated(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanced[key]
}

func (s *fakeMetadataStore) AdvancePagesGenerated(_ context.Context, key string, page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page > s.advanced[key] {
		s.advanced[key] = page
	}
	return nil
}

type fakeDocument struct {
	pages     int
	failPages map[int]bool
	renders   *int32
	gate      chan struct{}
	outline   []models.OutlineItem
	labels    []string
	closed    int32
}

func (d *fakeDocument) PageCount() int { return d.pages }

func (d *fakeDocument) RenderPage(_ context.Context, page int) (io.ReadCloser, error) {
	if d.renders != nil {
		atomic.AddInt32(d.renders, 1)
	}
	if d.gate != nil {
		<-d.gate
	}
	if d.failPages[page] {
		return nil, fmt.Errorf("page %d is corrupt", page)
	}
	return io.NopCloser(bytes.NewReader([]byte(fmt.Sprintf("jpeg page %d", page)))), nil
}

func (d *fakeDocument) Outline() ([]models.OutlineItem, error) { return d.outline, nil }

func (d *fakeDocument) PageLabels() ([]string, error) { return d.labels, nil }

func (d *fakeDocument) Close() error {
	atomic.AddInt32(&d.closed, 1)
	return nil
}

type fakeRenderer struct {
	pages     int
	failPages map[int]bool
	loadErr   error
	gate      chan struct{}
	outline   []models.OutlineItem
	labels    []string
	loads     int32
	renders   int32
	strict    int32
}

func (r *fakeRenderer) load(opts LoadOptions) (Document, error) {
	atomic.AddInt32(&r.loads, 1)
	if opts.Strict {
		atomic.AddInt32(&r.strict, 1)
	}
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return &fakeDocument{
		pages:     r.pages,
		failPages: r.failPages,
		renders:   &r.renders,
		gate:      r.gate,
		outline:   r.outline,
		labels:    r.labels,
	}, nil
}

func (r *fakeRenderer) LoadFromLocation(_ context.Context, _ string, opts LoadOptions) (Document, error) {
	return r.load(opts)
}

func (r *fakeRenderer) LoadFromFile(_ context.Context, _ string, opts LoadOptions) (Document, error) {
	return r.load(opts)
}

type memoryStatuses struct {
	mu       sync.Mutex
	statuses map[string]models.ValidationStatus
	history  []models.ValidationStatus
	getDelay time.Duration
}

func newMemoryStatuses() *memoryStatuses {
	return &memoryStatuses{statuses: map[string]models.ValidationStatus{}}
}

func (m *memoryStatuses) Get(_ context.Context, key string) (models.ValidationStatus, bool, error) {
	time.Sleep(m.getDelay)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[key]
	return s, ok, nil
}

func (m *memoryStatuses) Put(_ context.Context, status models.ValidationStatus, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.Key] = status
	m.history = append(m.history, status)
	return nil
}

var errTransport = errors.New("connection reset by peer")
