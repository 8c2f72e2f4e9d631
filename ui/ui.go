package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"

	"github.com/r74tech/raven-front/db/searchdb"
	"github.com/r74tech/raven-front/services/search"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

const (
	HomeTemplate  = "home.html"
	EmbedTemplate = "embed.html"

	resultsTemplate = "results"
)

var (
	escapedPreTag  = template.HTMLEscapeString(searchdb.HighlightPreTag)
	escapedPostTag = template.HTMLEscapeString(searchdb.HighlightPostTag)
)

var fieldLabels = map[search.Field]string{
	search.FieldTitle:     "Title",
	search.FieldSource:    "Source",
	search.FieldCreatedBy: "Created by",
}

var sortLabels = map[search.SortKey]string{
	search.SortRelevance:     "Relevance",
	search.SortCreatedAtDesc: "Newest first",
	search.SortCreatedAtAsc:  "Oldest first",
	search.SortTitleAsc:      "Title (A-Z)",
	search.SortTitleDesc:     "Title (Z-A)",
}

// HomePage is the data of the full search page.
type HomePage struct {
	View     search.View
	Settings search.Settings
	Fields   []search.Field
	Form     SettingsForm
	Indexes  []string
	Notice   string
	Error    string
}

// SettingsForm holds what the settings form shows, saved or not.
type SettingsForm struct {
	APIKey    string
	APIKeySet bool
	IndexName string
}

// EmbedPage is the data of the iframe search page.
type EmbedPage struct {
	View         search.View
	Settings     search.Settings
	SortKeys     []search.SortKey
	PageSizes    []int
	ParentOrigin string
	LivePath     string
	Error        string
}

type Renderer struct {
	templates *template.Template
}

func New() (*Renderer, error) {
	templates, err := template.New("").Funcs(templateFuncs()).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("could not parse templates: %w", err)
	}
	return &Renderer{templates: templates}, nil
}

// Templates is handed to gin for full page rendering.
func (r *Renderer) Templates() *template.Template {
	return r.templates
}

// RenderResults renders the result region alone, as pushed over the live channel.
func (r *Renderer) RenderResults(view search.View) (string, error) {
	var buf strings.Builder
	if err := r.templates.ExecuteTemplate(&buf, resultsTemplate, view); err != nil {
		return "", fmt.Errorf("could not render results: %w", err)
	}
	return buf.String(), nil
}

// Static returns the embedded static assets rooted at the static directory.
func Static() fs.FS {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return static
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"highlight":  Highlight,
		"join":       strings.Join,
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"fieldLabel": func(field search.Field) string { return fieldLabels[field] },
		"sortLabel":  func(key search.SortKey) string { return sortLabels[key] },
	}
}

// Highlight escapes value and then restores the highlight markers, so engine output can
// only ever contribute <mark> elements to the page.
func Highlight(value string) template.HTML {
	escaped := template.HTMLEscapeString(value)
	escaped = strings.ReplaceAll(escaped, escapedPreTag, searchdb.HighlightPreTag)
	escaped = strings.ReplaceAll(escaped, escapedPostTag, searchdb.HighlightPostTag)
	return template.HTML(escaped)
}
