package search

import (
	"fmt"
	"strings"

	"github.com/r74tech/raven-front/db/searchdb"
)

const indexPrefix = "site_"

type LinkTemplate struct {
	Scheme     string
	HostSuffix string
}

var DefaultLinkTemplate = LinkTemplate{Scheme: "http", HostSuffix: "wikidot.com"}

// StripIndexPrefix removes a single leading "site_". Case-sensitive.
func StripIndexPrefix(index string) string {
	return strings.TrimPrefix(index, indexPrefix)
}

func (l LinkTemplate) Target(fullname string, index string) string {
	return fmt.Sprintf("%s://%s.%s/%s", l.Scheme, StripIndexPrefix(index), l.HostSuffix, fullname)
}

// DisplayTitle never returns an empty heading while the hit has a fullname.
func DisplayTitle(hit searchdb.Hit) string {
	if strings.TrimSpace(hit.Title) != "" {
		return hit.Title
	}
	return hit.Fullname
}

func hasMarkedSpan(value string) bool {
	start := strings.Index(value, searchdb.HighlightPreTag)
	if start < 0 {
		return false
	}
	return strings.Contains(value[start+len(searchdb.HighlightPreTag):], searchdb.HighlightPostTag)
}

// MatchedFields lists, in the engine's field order, the fields whose formatted value holds
// at least one marked span. noHighlights is true when there are none.
func MatchedFields(hit searchdb.Hit) (fields []string, noHighlights bool) {
	for _, fieldValue := range hit.Highlighted {
		if hasMarkedSpan(fieldValue.Value) {
			fields = append(fields, fieldValue.Field)
		}
	}
	return fields, len(fields) == 0
}

type HitView struct {
	Fullname      string   `json:"fullname"`
	Title         string   `json:"title"`
	TitleMarkup   string   `json:"titleMarkup"`
	Link          string   `json:"link"`
	Snippet       string   `json:"snippet"`
	NameSnippet   string   `json:"nameSnippet,omitempty"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty"`
	MatchedFields []string `json:"matchedFields,omitempty"`
	NoHighlights  bool     `json:"noHighlights,omitempty"`
}

func formattedOr(hit searchdb.Hit, field string, fallback string) string {
	if value, ok := hit.Formatted(field); ok && value != "" {
		return value
	}
	return fallback
}

func ShapeHit(policy DisplayPolicy, link LinkTemplate, index string, hit searchdb.Hit) HitView {
	view := HitView{
		Fullname: hit.Fullname,
		Title:    DisplayTitle(hit),
		Link:     link.Target(hit.Fullname, index),
		Snippet:  formattedOr(hit, "source", hit.Source),
	}
	view.TitleMarkup = view.Title
	if strings.TrimSpace(hit.Title) != "" {
		view.TitleMarkup = formattedOr(hit, "title", hit.Title)
	}

	if policy.LinkFromDocumentURL && hit.URL != "" {
		view.Link = hit.URL
	}
	if policy.ShowMatchedFields {
		view.NameSnippet = formattedOr(hit, "fullname", hit.Fullname)
		view.MatchedFields, view.NoHighlights = MatchedFields(hit)
	}
	if policy.ShowDescription {
		view.Description = hit.Description
	}
	if policy.ShowCategory {
		view.Category = hit.Category
	}
	return view
}
