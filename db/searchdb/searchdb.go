package searchdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	HighlightPreTag  = "<mark>"
	HighlightPostTag = "</mark>"
	CropMarker       = "..."
)

var (
	ErrMissingCredential = errors.New("missing search credential")
	ErrTransport         = errors.New("search engine request failed")
)

// Engine is the search collaborator: it runs queries and lists indexes, nothing else.
type Engine interface {
	Search(ctx context.Context, request Request) (*Response, error)
	ListIndexes(ctx context.Context, credential string) ([]string, error)
	Close() error
}

// TransportError wraps any failure reported by the engine so callers can tell it apart
// from a successful zero-hit response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ParseSortBy splits a sort expression of the form "<index>:<field>:<asc|desc>".
// A bare index name (or anything unparseable) means relevance and returns ok=false.
func ParseSortBy(sortBy string) (field string, direction string, ok bool) {
	parts := strings.Split(sortBy, ":")
	if len(parts) != 3 {
		return "", "", false
	}
	field, direction = parts[1], parts[2]
	if field == "" || (direction != "asc" && direction != "desc") {
		return "", "", false
	}
	return field, direction, true
}

// ParseSnippet splits a "field:words" pair. Missing or invalid word counts return words=0.
func ParseSnippet(attribute string) (field string, words int) {
	field, count, found := strings.Cut(attribute, ":")
	if !found {
		return field, 0
	}
	words, err := strconv.Atoi(count)
	if err != nil || words < 0 {
		return field, 0
	}
	return field, words
}

func escapeFilterValue(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}

// BuildFilter turns refinements into a filter expression: values of one attribute are
// OR-ed, attributes are AND-ed. Attribute order is sorted so the output is stable.
func BuildFilter(refinements map[string][]string) string {
	attributes := make([]string, 0, len(refinements))
	for attribute, values := range refinements {
		if len(values) > 0 {
			attributes = append(attributes, attribute)
		}
	}
	sort.Strings(attributes)

	groups := make([]string, 0, len(attributes))
	for _, attribute := range attributes {
		values := refinements[attribute]
		terms := make([]string, 0, len(values))
		for _, value := range values {
			terms = append(terms, fmt.Sprintf("%s = \"%s\"", attribute, escapeFilterValue(value)))
		}
		group := strings.Join(terms, " OR ")
		if len(terms) > 1 && len(attributes) > 1 {
			group = "(" + group + ")"
		}
		groups = append(groups, group)
	}

	return strings.Join(groups, " AND ")
}

func totalPages(totalHits int, hitsPerPage int) int {
	if hitsPerPage <= 0 {
		return 0
	}
	return (totalHits + hitsPerPage - 1) / hitsPerPage
}

// sortFacetValues orders facet values by count, then value, matching the engine's default.
func sortFacetValues(counts map[string]int) []FacetValue {
	values := make([]FacetValue, 0, len(counts))
	for value, count := range counts {
		values = append(values, FacetValue{Value: value, Count: count})
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	return values
}
