package search

import (
	"slices"
	"strings"

	"github.com/r74tech/raven-front/db/searchdb"
)

// Query is what the user submits on top of the session settings.
type Query struct {
	Text        string
	Page        int
	Refinements map[string][]string
	ShowMore    bool
}

// QueryConfig is the configuration handed to the search collaborator.
type QueryConfig struct {
	HitsPerPage                  int      `json:"hitsPerPage"`
	RestrictSearchableAttributes []string `json:"restrictSearchableAttributes,omitempty"`
	AttributesToSnippet          []string `json:"attributesToSnippet"`
	AttributesToHighlight        []string `json:"attributesToHighlight"`
	Sort                         string   `json:"sort"`
	Facets                       []string `json:"facets,omitempty"`
}

// BuildConfig maps settings to a query configuration. An empty field set omits the
// restriction so every field is searched.
func BuildConfig(settings Settings, policy DisplayPolicy) QueryConfig {
	config := QueryConfig{
		HitsPerPage:           ConstrainPageSize(settings.HitsPerPage),
		AttributesToSnippet:   slices.Clone(policy.SnippetAttributes),
		AttributesToHighlight: []string{"*"},
		Sort:                  SortExpression(settings.IndexName, settings.Sort),
		Facets:                slices.Clone(policy.Facets),
	}

	for _, field := range settings.Normalize().Fields {
		config.RestrictSearchableAttributes = append(config.RestrictSearchableAttributes, string(field))
	}

	return config
}

func NewRequest(settings Settings, config QueryConfig, query Query) searchdb.Request {
	return searchdb.Request{
		Index:                 settings.IndexName,
		Credential:            settings.APIKey,
		Query:                 strings.TrimSpace(query.Text),
		Page:                  max(query.Page, 1),
		HitsPerPage:           config.HitsPerPage,
		SearchableAttributes:  config.RestrictSearchableAttributes,
		AttributesToSnippet:   config.AttributesToSnippet,
		AttributesToHighlight: config.AttributesToHighlight,
		SortBy:                config.Sort,
		Facets:                config.Facets,
		Refinements:           query.Refinements,
	}
}

// QueryKey identifies everything about a query except its page.
type QueryKey struct {
	Text        string
	Index       string
	HitsPerPage int
	Sort        SortKey
	Fields      string
	Refinements string
}

func NewQueryKey(settings Settings, query Query) QueryKey {
	settings = settings.Normalize()
	fields := make([]string, 0, len(settings.Fields))
	for _, field := range settings.Fields {
		fields = append(fields, string(field))
	}
	return QueryKey{
		Text:        strings.TrimSpace(query.Text),
		Index:       settings.IndexName,
		HitsPerPage: settings.HitsPerPage,
		Sort:        settings.Sort,
		Fields:      strings.Join(fields, ","),
		Refinements: searchdb.BuildFilter(query.Refinements),
	}
}

// NextPage keeps the requested page only when nothing but the page changed. Any other change
// (text, page size, sort, fields, refinements, index) starts again at page 1.
func NextPage(previous QueryKey, next QueryKey, requested int) int {
	if previous != next {
		return 1
	}
	return max(requested, 1)
}
