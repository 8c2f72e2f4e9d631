package searchdb

import (
	"encoding/json"
	"time"
)

// Document is the shape imported into the local index. The hosted engine stores the same fields.
type Document struct {
	Fullname    string    `json:"fullname"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Source      string    `json:"source"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	URL         string    `json:"url"`
}

type Request struct {
	Index      string
	Credential string
	Query      string
	// Page is 1-based.
	Page        int
	HitsPerPage int
	// SearchableAttributes restricts matching; empty means every field.
	SearchableAttributes []string
	// AttributesToSnippet holds "field:words" pairs.
	AttributesToSnippet   []string
	AttributesToHighlight []string
	// SortBy is either the bare index name (relevance) or "<index>:<field>:<asc|desc>".
	SortBy      string
	Facets      []string
	Refinements map[string][]string
}

// FieldValue is one entry of a hit's formatted (highlighted or cropped) fields, kept in
// the order the engine returned them.
type FieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type Hit struct {
	Fullname    string                     `json:"fullname"`
	Title       string                     `json:"title,omitempty"`
	Description string                     `json:"description,omitempty"`
	Category    string                     `json:"category,omitempty"`
	Source      string                     `json:"source"`
	URL         string                     `json:"url,omitempty"`
	Highlighted []FieldValue               `json:"highlighted"`
	Extra       map[string]json.RawMessage `json:"extra,omitempty"`
}

// Formatted returns the marked-up value of field, if the engine produced one.
func (h Hit) Formatted(field string) (string, bool) {
	for _, fv := range h.Highlighted {
		if fv.Field == field {
			return fv.Value, true
		}
	}
	return "", false
}

type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type Response struct {
	Hits           []Hit                   `json:"hits"`
	TotalHits      int                     `json:"total_hits"`
	Page           int                     `json:"page"`
	TotalPages     int                     `json:"total_pages"`
	HitsPerPage    int                     `json:"hits_per_page"`
	ProcessingTime time.Duration           `json:"processing_time"`
	Query          string                  `json:"query"`
	Facets         map[string][]FacetValue `json:"facets,omitempty"`
}
