package gcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreMetadataStore keeps DocumentMetadata in a Firestore collection. Document IDs are the
// sha256 of the key, since locations contain slashes.
type FirestoreMetadataStore struct {
	client     *firestore.Client
	collection string
	log        zerolog.Logger
}

// NewFirestoreMetadataStore returns a store over collection.
func NewFirestoreMetadataStore(client *firestore.Client, collection string, log zerolog.Logger) *FirestoreMetadataStore {
	return &FirestoreMetadataStore{
		client:     client,
		collection: collection,
		log:        log.With().Str("component", "firestore-metadata").Logger(),
	}
}

// DocumentID maps a metadata key to its Firestore document ID.
func DocumentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *FirestoreMetadataStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(DocumentID(key))
}

// FindByKey returns the record for key or models.ErrMetadataNotFound.
func (s *FirestoreMetadataStore) FindByKey(ctx context.Context, key string) (*models.DocumentMetadata, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, models.ErrMetadataNotFound
		}
		return nil, fmt.Errorf("failed to get metadata document: %w", err)
	}
	var m models.DocumentMetadata
	if err := snap.DataTo(&m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata document: %w", err)
	}
	return &m, nil
}

// Save creates the record, reporting models.ErrMetadataExists if another writer got there first.
func (s *FirestoreMetadataStore) Save(ctx context.Context, m *models.DocumentMetadata) error {
	if _, err := s.doc(m.Key).Create(ctx, m); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return models.ErrMetadataExists
		}
		return fmt.Errorf("failed to create metadata document: %w", err)
	}
	s.log.Debug().Str("key", m.Key).Msg("Metadata document created")
	return nil
}

// AdvancePagesGenerated raises pagesGenerated to page if it is currently lower.
func (s *FirestoreMetadataStore) AdvancePagesGenerated(ctx context.Context, key string, page int) error {
	ref := s.doc(key)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var m models.DocumentMetadata
		if err := snap.DataTo(&m); err != nil {
			return err
		}
		if page <= m.PagesGenerated {
			return nil
		}
		return tx.Update(ref, []firestore.Update{{Path: "pagesGenerated", Value: page}})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.ErrMetadataNotFound
		}
		return fmt.Errorf("failed to advance pages generated: %w", err)
	}
	return nil
}
