package search

import (
	"slices"
	"strings"
)

type Field string

const (
	FieldTitle     Field = "title"
	FieldSource    Field = "source"
	FieldCreatedBy Field = "created_by"
)

// AllFields is the canonical order of the user-toggleable searchable fields.
var AllFields = []Field{FieldTitle, FieldSource, FieldCreatedBy}

var DefaultFields = []Field{FieldTitle, FieldSource}

type SortKey string

const (
	SortRelevance     SortKey = "relevance"
	SortCreatedAtDesc SortKey = "created_at-desc"
	SortCreatedAtAsc  SortKey = "created_at-asc"
	SortTitleAsc      SortKey = "title-asc"
	SortTitleDesc     SortKey = "title-desc"
)

var SortKeys = []SortKey{SortRelevance, SortCreatedAtDesc, SortCreatedAtAsc, SortTitleAsc, SortTitleDesc}

const DefaultHitsPerPage = 10

var PageSizes = []int{10, 20, 50}

func ValidField(field string) bool {
	return slices.Contains(AllFields, Field(field))
}

func ValidSortKey(key string) bool {
	return slices.Contains(SortKeys, SortKey(key))
}

// ConstrainPageSize maps any size outside PageSizes to DefaultHitsPerPage.
func ConstrainPageSize(size int) int {
	if slices.Contains(PageSizes, size) {
		return size
	}
	return DefaultHitsPerPage
}

// Settings are the user-adjustable search settings of one session.
type Settings struct {
	APIKey      string  `json:"apiKey"`
	IndexName   string  `json:"indexName"`
	Fields      []Field `json:"fields"`
	HitsPerPage int     `json:"hitsPerPage"`
	Sort        SortKey `json:"sort"`
}

func DefaultSettings(apiKey string, indexName string) Settings {
	return Settings{
		APIKey:      apiKey,
		IndexName:   indexName,
		Fields:      slices.Clone(DefaultFields),
		HitsPerPage: DefaultHitsPerPage,
		Sort:        SortRelevance,
	}
}

// Normalize drops unknown fields and duplicates, keeps the canonical field order and
// falls back to defaults for page size and sort. An empty field set stays empty.
func (s Settings) Normalize() Settings {
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.IndexName = strings.TrimSpace(s.IndexName)
	s.HitsPerPage = ConstrainPageSize(s.HitsPerPage)
	if !ValidSortKey(string(s.Sort)) {
		s.Sort = SortRelevance
	}

	fields := make([]Field, 0, len(AllFields))
	for _, field := range AllFields {
		if slices.Contains(s.Fields, field) {
			fields = append(fields, field)
		}
	}
	s.Fields = fields
	return s
}

func (s Settings) HasField(field Field) bool {
	return slices.Contains(s.Fields, field)
}

// SortExpression renders the sort key in the engine grammar: the bare index for relevance,
// "<index>:<field>:<asc|desc>" otherwise.
func SortExpression(index string, key SortKey) string {
	switch key {
	case SortCreatedAtDesc:
		return index + ":created_at:desc"
	case SortCreatedAtAsc:
		return index + ":created_at:asc"
	case SortTitleAsc:
		return index + ":title:asc"
	case SortTitleDesc:
		return index + ":title:desc"
	default:
		return index
	}
}
