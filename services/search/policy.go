package search

// DisplayPolicy parameterises hit shaping and state resolution for one view.
type DisplayPolicy struct {
	Name              string
	SnippetAttributes []string
	Facets            []string
	FacetLimit        int
	ShowMoreLimit     int
	ShowMatchedFields bool
	ShowDescription   bool
	ShowCategory      bool
	// SuppressBlankQuery hides any result list for the blank query.
	SuppressBlankQuery bool
	// LinkFromDocumentURL prefers the hit's own url over the derived link target.
	LinkFromDocumentURL bool
}

const categoryFacet = "category"

var HomePolicy = DisplayPolicy{
	Name:              "home",
	SnippetAttributes: []string{"source:5", "fullname:5"},
	Facets:            []string{categoryFacet},
	FacetLimit:        10,
	ShowMoreLimit:     1000,
	ShowMatchedFields: true,
}

var EmbedPolicy = DisplayPolicy{
	Name:                "embed",
	SnippetAttributes:   []string{"source:5"},
	ShowDescription:     true,
	ShowCategory:        true,
	SuppressBlankQuery:  true,
	LinkFromDocumentURL: true,
}

// Resolve applies the policy to the pure state function. Without suppression, a blank but
// real (non-synthetic) query resolves like any other query.
func (p DisplayPolicy) Resolve(lastQuery string, result QueryResult) PresentationState {
	if p.SuppressBlankQuery || result.Synthetic || lastQuery != "" {
		return Resolve(lastQuery, result)
	}
	if result.TotalHits == 0 {
		return PresentationState{Kind: StateEmpty}
	}
	return PresentationState{Kind: StatePopulated, Result: &result}
}
