package models

// These structs define the JSON payloads exchanged with HTTP and WebSocket clients.

// ValidationStatus reports the progress of a single validation run. Nil fields serialize as null.
type ValidationStatus struct {
	Key                string `json:"key"`
	ValidationComplete bool   `json:"validationComplete"`
	Valid              *bool  `json:"valid"`
	TotalPages         *int   `json:"totalPages"`
	PagesValidated     *int   `json:"pagesValidated"`
}

// Terminal reports whether no further statuses will follow for this key.
func (s ValidationStatus) Terminal() bool {
	return s.ValidationComplete
}

// IsValid is false until a terminal status reports the document valid.
func (s ValidationStatus) IsValid() bool {
	return s.Valid != nil && *s.Valid
}

// PageCountResponse is the output of the page count endpoint.
type PageCountResponse struct {
	Pages int `json:"pages"`
}

// MetadataResponse is the client view of DocumentMetadata.
type MetadataResponse struct {
	TotalPages int           `json:"totalPages"`
	Outline    []OutlineItem `json:"outline,omitempty"`
	PageLabels []string      `json:"pageLabels,omitempty"`
}

// NewMetadataResponse maps the stored record to its client view.
func NewMetadataResponse(m *DocumentMetadata) MetadataResponse {
	return MetadataResponse{
		TotalPages: m.TotalPages,
		Outline:    m.Outline,
		PageLabels: m.PageLabels,
	}
}

// LocationValidationResponse is the output of synchronous validation of a CMS document.
type LocationValidationResponse struct {
	ValidationStatus
	ProcessingTime int64 `json:"processingTime"`
}

// Bool returns a pointer to v, for optional status fields.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v, for optional status fields.
func Int(v int) *int { return &v }
