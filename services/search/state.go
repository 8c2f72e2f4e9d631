package search

import (
	"time"

	"github.com/r74tech/raven-front/db/searchdb"
)

type StateKind string

const (
	StateInitial   StateKind = "initial"
	StateEmpty     StateKind = "empty"
	StatePopulated StateKind = "populated"
)

// QueryResult is one completed round trip, or the synthetic placeholder that precedes the
// first query of a session.
type QueryResult struct {
	Query          string
	TotalHits      int
	ProcessingTime time.Duration
	Hits           []searchdb.Hit
	Page           int
	TotalPages     int
	HitsPerPage    int
	Facets         map[string][]searchdb.FacetValue
	Synthetic      bool
}

func SyntheticResult() QueryResult {
	return QueryResult{Synthetic: true, Page: 1}
}

func NewQueryResult(response *searchdb.Response) QueryResult {
	if response == nil {
		return QueryResult{Page: 1}
	}
	return QueryResult{
		Query:          response.Query,
		TotalHits:      response.TotalHits,
		ProcessingTime: response.ProcessingTime,
		Hits:           response.Hits,
		Page:           max(response.Page, 1),
		TotalPages:     response.TotalPages,
		HitsPerPage:    response.HitsPerPage,
		Facets:         response.Facets,
	}
}

// PresentationState is exactly one of Initial, Empty or Populated. Result is set only
// for Populated.
type PresentationState struct {
	Kind   StateKind
	Result *QueryResult
}

// Resolve is a pure function of its two inputs. The blank query never shows a result list,
// whatever the hit count.
func Resolve(lastQuery string, result QueryResult) PresentationState {
	if lastQuery == "" {
		return PresentationState{Kind: StateInitial}
	}
	if result.TotalHits == 0 {
		return PresentationState{Kind: StateEmpty}
	}
	return PresentationState{Kind: StatePopulated, Result: &result}
}
