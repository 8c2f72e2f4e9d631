package search

import (
	"fmt"
	"slices"
	"strings"
)

const paginationPadding = 2

type Pagination struct {
	CurrentPage  int   `json:"current_page"`
	PageSize     int   `json:"page_size"`
	TotalPages   int   `json:"total_pages"`
	HasNextPage  bool  `json:"has_next_page"`
	HasPrevPage  bool  `json:"has_prev_page"`
	TotalResults int   `json:"total_results"`
	Pages        []int `json:"pages"`
}

func calculatePagination(total, pageSize, currentPage int) Pagination {
	pageSize = max(pageSize, 1)
	currentPage = max(currentPage, 1)
	totalPages := (total + pageSize - 1) / pageSize

	if totalPages == 0 {
		totalPages = 1
	}

	first := max(1, currentPage-paginationPadding)
	last := min(totalPages, currentPage+paginationPadding)
	pages := make([]int, 0, last-first+1)
	for page := first; page <= last; page++ {
		pages = append(pages, page)
	}

	return Pagination{
		CurrentPage:  currentPage,
		PageSize:     pageSize,
		TotalPages:   totalPages,
		HasNextPage:  currentPage < totalPages,
		HasPrevPage:  currentPage > 1,
		TotalResults: total,
		Pages:        pages,
	}
}

type FacetValueView struct {
	Value    string `json:"value"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
}

type FacetView struct {
	Attribute   string           `json:"attribute"`
	Values      []FacetValueView `json:"values"`
	CanShowMore bool             `json:"canShowMore"`
	ShowingMore bool             `json:"showingMore"`
}

// View is everything a renderer needs for one result update.
type View struct {
	Policy         string      `json:"policy"`
	State          StateKind   `json:"state"`
	Query          string      `json:"query"`
	Stats          string      `json:"stats,omitempty"`
	TotalHits      int         `json:"totalHits"`
	ProcessingTime int64       `json:"processingTimeMs"`
	Hits           []HitView   `json:"hits"`
	Pagination     *Pagination `json:"pagination,omitempty"`
	Facets         []FacetView `json:"facets,omitempty"`
	Refined        bool        `json:"refined"`
}

func StatsLine(totalHits int, processingTimeMs int64) string {
	return fmt.Sprintf("%d results found (%d ms)", totalHits, processingTimeMs)
}

// Present resolves the state for query.Text and shapes the result for one view. The hit
// list never exceeds the configured page size.
func Present(policy DisplayPolicy, link LinkTemplate, settings Settings, query Query, result QueryResult) View {
	query.Text = strings.TrimSpace(query.Text)
	state := policy.Resolve(query.Text, result)
	view := View{
		Policy:  policy.Name,
		State:   state.Kind,
		Query:   query.Text,
		Hits:    []HitView{},
		Refined: hasRefinements(query.Refinements),
	}

	// facets stay visible on an empty result so refinements can be cleared
	if state.Kind != StateInitial {
		view.Facets = presentFacets(policy, query, result)
	}

	if state.Kind != StatePopulated {
		return view
	}

	pageSize := ConstrainPageSize(settings.HitsPerPage)
	hits := state.Result.Hits
	if len(hits) > pageSize {
		hits = hits[:pageSize]
	}
	for _, hit := range hits {
		view.Hits = append(view.Hits, ShapeHit(policy, link, settings.IndexName, hit))
	}

	view.TotalHits = state.Result.TotalHits
	view.ProcessingTime = state.Result.ProcessingTime.Milliseconds()
	view.Stats = StatsLine(view.TotalHits, view.ProcessingTime)
	pagination := calculatePagination(state.Result.TotalHits, pageSize, state.Result.Page)
	view.Pagination = &pagination

	return view
}

func hasRefinements(refinements map[string][]string) bool {
	for _, values := range refinements {
		if len(values) > 0 {
			return true
		}
	}
	return false
}

func presentFacets(policy DisplayPolicy, query Query, result QueryResult) []FacetView {
	var facets []FacetView
	for _, attribute := range policy.Facets {
		values := result.Facets[attribute]
		selected := query.Refinements[attribute]

		limit := policy.FacetLimit
		if query.ShowMore && policy.ShowMoreLimit > 0 {
			limit = policy.ShowMoreLimit
		}

		facet := FacetView{
			Attribute:   attribute,
			CanShowMore: policy.ShowMoreLimit > policy.FacetLimit && len(values) > policy.FacetLimit,
			ShowingMore: query.ShowMore,
			Values:      []FacetValueView{},
		}
		for i, value := range values {
			if limit > 0 && i >= limit {
				break
			}
			facet.Values = append(facet.Values, FacetValueView{
				Value:    value.Value,
				Count:    value.Count,
				Selected: slices.Contains(selected, value.Value),
			})
		}
		facets = append(facets, facet)
	}
	return facets
}
