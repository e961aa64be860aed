package models

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrMetadataNotFound is returned by metadata stores when no record exists for a key.
	ErrMetadataNotFound = errors.New("document metadata not found")
	// ErrMetadataExists is returned when a create loses the race against another writer.
	ErrMetadataExists = errors.New("document metadata already exists")
)

// DocumentMetadata is the durable record kept for every document that has been page-counted.
// Key is the lower-cased document location.
type DocumentMetadata struct {
	Key            string        `firestore:"key" json:"key"`
	TotalPages     int           `firestore:"totalPages" json:"totalPages"`
	PagesGenerated int           `firestore:"pagesGenerated" json:"pagesGenerated"`
	Outline        []OutlineItem `firestore:"outline,omitempty" json:"outline,omitempty"`
	PageLabels     []string      `firestore:"pageLabels,omitempty" json:"pageLabels,omitempty"`
	CreatedAt      time.Time     `firestore:"createdAt,omitempty" json:"-"`
}

// OutlineItem is a node of a document's table of contents.
type OutlineItem struct {
	Title  string        `firestore:"title" json:"title"`
	Bold   bool          `firestore:"bold" json:"bold"`
	Italic bool          `firestore:"italic" json:"italic"`
	Color  *OutlineColor `firestore:"color,omitempty" json:"color,omitempty"`
	Page   int           `firestore:"page" json:"page"`
	Items  []OutlineItem `firestore:"items,omitempty" json:"items"`
}

// OutlineColor is an RGB color with 8-bit channels.
type OutlineColor struct {
	R uint8 `firestore:"r" json:"r"`
	G uint8 `firestore:"g" json:"g"`
	B uint8 `firestore:"b" json:"b"`
}

// CanonicalLocation lower-cases a document location so that case variants share one identity.
func CanonicalLocation(location string) string {
	return strings.ToLower(location)
}

// StripNulls removes NUL characters from titles and labels. Postgres rejects \u0000 inside jsonb
// and text columns, and some producers pad outline titles with them.
func (m *DocumentMetadata) StripNulls() {
	m.Outline = stripOutlineNulls(m.Outline)
	for i, label := range m.PageLabels {
		m.PageLabels[i] = strings.ReplaceAll(label, "\x00", "")
	}
}

func stripOutlineNulls(items []OutlineItem) []OutlineItem {
	for i := range items {
		items[i].Title = strings.ReplaceAll(items[i].Title, "\x00", "")
		items[i].Items = stripOutlineNulls(items[i].Items)
	}
	return items
}
