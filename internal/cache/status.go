package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/pdfpageservice/internal/models"
)

const statusKeyPrefix = "validation:"

// StatusStore records the latest ValidationStatus per key as JSON in a Client.
type StatusStore struct {
	client Client
}

// NewStatusStore returns a StatusStore over client.
func NewStatusStore(client Client) *StatusStore {
	return &StatusStore{client: client}
}

// Get returns the latest status for key.
func (s *StatusStore) Get(ctx context.Context, key string) (models.ValidationStatus, bool, error) {
	data, err := s.client.Get(ctx, statusKeyPrefix+key)
	if errors.Is(err, ErrCacheMiss) {
		return models.ValidationStatus{}, false, nil
	}
	if err != nil {
		return models.ValidationStatus{}, false, err
	}
	var status models.ValidationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return models.ValidationStatus{}, false, fmt.Errorf("decode validation status: %w", err)
	}
	return status, true, nil
}

// Put replaces the status for status.Key.
func (s *StatusStore) Put(ctx context.Context, status models.ValidationStatus, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode validation status: %w", err)
	}
	return s.client.Set(ctx, statusKeyPrefix+status.Key, data, ttl)
}
