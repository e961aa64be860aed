package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentPath(t *testing.T) {
	tests := []struct {
		object string
		dir    string
		name   string
		ok     bool
	}{
		{"assets/Guide.pdf", "assets", "Guide.pdf", true},
		{"thumbnail/scan.PDF", "thumbnail", "scan.PDF", true},
		{"Guide.pdf", "", "", false},
		{"assets/nested/Guide.pdf", "", "", false},
		{"assets/image.png", "", "", false},
		{"assets/", "", "", false},
	}
	for _, tt := range tests {
		dir, name, ok := documentPath(tt.object)
		assert.Equal(t, tt.ok, ok, tt.object)
		assert.Equal(t, tt.dir, dir, tt.object)
		assert.Equal(t, tt.name, name, tt.object)
	}
}
