package searchdb

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	htmlhighlighter "github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/r74tech/raven-front/config"
	"github.com/r74tech/raven-front/logger"
)

const IndexingBatchSize = 100
const maxFacetValues = 1000

const (
	indexFieldFullname    = "fullname"
	indexFieldTitle       = "title"
	indexFieldTitleKey    = "title_key"
	indexFieldDescription = "description"
	indexFieldCategory    = "category"
	indexFieldSource      = "source"
	indexFieldCreatedBy   = "created_by"
	indexFieldCreatedAt   = "created_at"
	indexFieldURL         = "url"
)

// text fields searched when a request carries no restriction, in formatted-output order
var textFields = []string{
	indexFieldCategory,
	indexFieldCreatedBy,
	indexFieldDescription,
	indexFieldFullname,
	indexFieldSource,
	indexFieldTitle,
}

var storedFields = []string{
	indexFieldFullname,
	indexFieldTitle,
	indexFieldDescription,
	indexFieldCategory,
	indexFieldSource,
	indexFieldCreatedBy,
	indexFieldURL,
}

var sortFields = map[string]string{
	indexFieldCreatedAt: indexFieldCreatedAt,
	indexFieldTitle:     indexFieldTitleKey,
}

type indexedDocument struct {
	Fullname    string     `json:"fullname"`
	Title       string     `json:"title"`
	TitleKey    string     `json:"title_key"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Source      string     `json:"source"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	URL         string     `json:"url"`
}

// BleveDB is the local search engine: same contract as the hosted one, backed by a bleve index.
type BleveDB struct {
	indexName string
	indexPath string
	logger    logger.Logger
	index     bleve.Index
}

func New(logger logger.Logger, cfg *config.Config) (*BleveDB, error) {
	indexMapping := createIndexMapping()
	indexPath := filepath.Join(cfg.GetStoragePath(), cfg.GetIndexPath())
	index, err := bleve.New(indexPath, indexMapping)
	if err != nil {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Error("could not open index", "err", err.Error())
			return nil, err
		}
	}
	return &BleveDB{indexName: cfg.GetDefaultIndex(), indexPath: indexPath, logger: logger, index: index}, nil
}

func NewInMemory(logger logger.Logger, indexName string) (*BleveDB, error) {
	index, err := bleve.NewMemOnly(createIndexMapping())
	if err != nil {
		logger.Error("could not create in-memory index", "err", err.Error())
		return nil, err
	}
	return &BleveDB{indexName: indexName, logger: logger, index: index}, nil
}

func (b *BleveDB) BuildIndex(documents []Document) error {

	batch := b.index.NewBatch()

	for i, doc := range documents {
		if doc.Fullname == "" {
			b.logger.Warn("skipping document without fullname", "position", i)
			continue
		}

		err := batch.Index(doc.Fullname, toIndexedDocument(doc))
		if err != nil {
			b.logger.Error("could not index document", "fullname", doc.Fullname, "err", err.Error())
			return err
		}

		// Execute batch when it reaches the batch size
		if batch.Size() >= IndexingBatchSize {
			if err := b.index.Batch(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not index document", "err", err.Error())
			return err
		}
	}

	return nil
}

func toIndexedDocument(doc Document) indexedDocument {
	indexed := indexedDocument{
		Fullname:    doc.Fullname,
		Title:       doc.Title,
		TitleKey:    strings.ToLower(doc.Title),
		Description: doc.Description,
		Category:    doc.Category,
		Source:      doc.Source,
		CreatedBy:   doc.CreatedBy,
		URL:         doc.URL,
	}
	if !doc.CreatedAt.IsZero() {
		createdAt := doc.CreatedAt
		indexed.CreatedAt = &createdAt
	}
	return indexed
}

func createIndexMapping() mapping.IndexMapping {

	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	for _, field := range []string{indexFieldFullname, indexFieldTitle, indexFieldDescription, indexFieldSource, indexFieldCreatedBy} {
		textFieldMapping := bleve.NewTextFieldMapping()
		textFieldMapping.Analyzer = standard.Name
		textFieldMapping.Store = true
		textFieldMapping.IncludeTermVectors = true
		docMapping.AddFieldMappingsAt(field, textFieldMapping)
	}

	// Category is a facet - not analyzed (exact match)
	categoryFieldMapping := bleve.NewTextFieldMapping()
	categoryFieldMapping.Analyzer = keyword.Name
	categoryFieldMapping.Store = true
	categoryFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(indexFieldCategory, categoryFieldMapping)

	titleKeyFieldMapping := bleve.NewTextFieldMapping()
	titleKeyFieldMapping.Analyzer = keyword.Name
	titleKeyFieldMapping.Store = false
	docMapping.AddFieldMappingsAt(indexFieldTitleKey, titleKeyFieldMapping)

	urlFieldMapping := bleve.NewTextFieldMapping()
	urlFieldMapping.Index = false
	urlFieldMapping.Store = true
	docMapping.AddFieldMappingsAt(indexFieldURL, urlFieldMapping)

	createdAtFieldMapping := bleve.NewDateTimeFieldMapping()
	docMapping.AddFieldMappingsAt(indexFieldCreatedAt, createdAtFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

func (b *BleveDB) Search(ctx context.Context, request Request) (*Response, error) {
	if request.Index != "" && request.Index != b.indexName {
		return nil, &TransportError{Op: "search", Err: fmt.Errorf("index %q not found", request.Index)}
	}

	hitsPerPage := request.HitsPerPage
	if hitsPerPage <= 0 {
		hitsPerPage = 10
	}
	page := max(request.Page, 1)

	searchRequest := bleve.NewSearchRequestOptions(b.buildSearchQuery(request), hitsPerPage, (page-1)*hitsPerPage, false)
	searchRequest.Fields = storedFields

	searchRequest.Highlight = bleve.NewHighlightWithStyle(htmlhighlighter.Name)
	if !highlightsEverything(request.AttributesToHighlight) {
		for _, field := range request.AttributesToHighlight {
			searchRequest.Highlight.AddField(field)
		}
	}

	if field, direction, ok := ParseSortBy(request.SortBy); ok {
		if indexField, sortable := sortFields[field]; sortable {
			if direction == "desc" {
				indexField = "-" + indexField
			}
			searchRequest.SortBy([]string{indexField, "-_score"})
		}
	}

	for _, facet := range request.Facets {
		searchRequest.AddFacet(facet, bleve.NewFacetRequest(facet, maxFacetValues))
	}

	searchResult, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		b.logger.Error("search failed", "err", err.Error())
		return nil, &TransportError{Op: "search", Err: err}
	}

	snippets := make(map[string]int, len(request.AttributesToSnippet))
	for _, attribute := range request.AttributesToSnippet {
		field, words := ParseSnippet(attribute)
		snippets[field] = words
	}

	hits := make([]Hit, 0, len(searchResult.Hits))
	for _, match := range searchResult.Hits {
		hit := Hit{
			Fullname:    stringField(match.Fields, indexFieldFullname),
			Title:       stringField(match.Fields, indexFieldTitle),
			Description: stringField(match.Fields, indexFieldDescription),
			Category:    stringField(match.Fields, indexFieldCategory),
			Source:      stringField(match.Fields, indexFieldSource),
			URL:         stringField(match.Fields, indexFieldURL),
		}
		if hit.Fullname == "" {
			hit.Fullname = match.ID
		}

		for _, field := range textFields {
			value := stringField(match.Fields, field)
			if fragments, ok := match.Fragments[field]; ok && len(fragments) > 0 {
				// fragments arrive HTML-escaped around the marks; hits carry raw text
				value = html.UnescapeString(fragments[0])
			}
			if words, ok := snippets[field]; ok && words > 0 {
				value = cropWords(value, words)
			}
			hit.Highlighted = append(hit.Highlighted, FieldValue{Field: field, Value: value})
		}

		hits = append(hits, hit)
	}

	response := &Response{
		Hits:           hits,
		TotalHits:      int(searchResult.Total),
		Page:           page,
		HitsPerPage:    hitsPerPage,
		TotalPages:     totalPages(int(searchResult.Total), hitsPerPage),
		ProcessingTime: searchResult.Took,
		Query:          request.Query,
	}

	if len(searchResult.Facets) > 0 {
		response.Facets = make(map[string][]FacetValue, len(searchResult.Facets))
		for name, facetResult := range searchResult.Facets {
			values, err := decodeTermFacets(facetResult.Terms)
			if err != nil {
				b.logger.Warn("could not decode facet", "facet", name, "err", err.Error())
				continue
			}
			response.Facets[name] = values
		}
	}

	return response, nil
}

func (b *BleveDB) buildSearchQuery(request Request) query.Query {

	const (
		boostForTitle       = 3.0
		boostForFullname    = 2.0
		boostForOther       = 1.0
		boostForPhraseMatch = 5.0
	)

	var textQuery query.Query
	queryString := strings.TrimSpace(request.Query)

	if queryString == "" {
		textQuery = bleve.NewMatchAllQuery()
	} else {
		fields := request.SearchableAttributes
		if len(fields) == 0 {
			fields = textFields
		}

		phrases, remaining := parseQuotedQuery(queryString)
		disjunctQuery := bleve.NewDisjunctionQuery()
		for _, field := range fields {
			boost := boostForOther
			switch field {
			case indexFieldTitle:
				boost = boostForTitle
			case indexFieldFullname:
				boost = boostForFullname
			}

			if remaining != "" {
				matchQuery := bleve.NewMatchQuery(remaining)
				matchQuery.SetField(field)
				matchQuery.SetBoost(boost)
				disjunctQuery.AddQuery(matchQuery)
			}

			for _, phrase := range phrases {
				phraseQuery := bleve.NewMatchPhraseQuery(phrase)
				phraseQuery.SetField(field)
				phraseQuery.SetBoost(boostForPhraseMatch)
				disjunctQuery.AddQuery(phraseQuery)
			}
		}
		textQuery = disjunctQuery
	}

	filters := b.buildRefinementQueries(request.Refinements)
	if len(filters) == 0 {
		return textQuery
	}

	return bleve.NewConjunctionQuery(append([]query.Query{textQuery}, filters...)...)
}

func (b *BleveDB) buildRefinementQueries(refinements map[string][]string) []query.Query {
	attributes := make([]string, 0, len(refinements))
	for attribute, values := range refinements {
		if len(values) > 0 {
			attributes = append(attributes, attribute)
		}
	}
	sort.Strings(attributes)

	queries := make([]query.Query, 0, len(attributes))
	for _, attribute := range attributes {
		anyOf := bleve.NewDisjunctionQuery()
		for _, value := range refinements[attribute] {
			termQuery := bleve.NewTermQuery(value)
			termQuery.SetField(attribute)
			anyOf.AddQuery(termQuery)
		}
		queries = append(queries, anyOf)
	}
	return queries
}

var quotedPhrase = regexp.MustCompile(`"([^"]*)"`)

// parseQuotedQuery pulls "quoted phrases" out of a query and returns them with the remaining terms.
func parseQuotedQuery(input string) ([]string, string) {
	var phrases []string
	for _, match := range quotedPhrase.FindAllStringSubmatch(input, -1) {
		phrase := strings.Join(strings.Fields(match[1]), " ")
		if phrase != "" {
			phrases = append(phrases, phrase)
		}
	}

	remaining := quotedPhrase.ReplaceAllString(input, " ")
	return phrases, strings.Join(strings.Fields(remaining), " ")
}

func highlightsEverything(attributes []string) bool {
	if len(attributes) == 0 {
		return true
	}
	for _, attribute := range attributes {
		if attribute == "*" {
			return true
		}
	}
	return false
}

func stringField(fields map[string]interface{}, name string) string {
	if value, ok := fields[name].(string); ok {
		return value
	}
	return ""
}

// cropWords keeps a window of at most words words, centred on the first highlighted word
// when there is one, and marks cut ends with CropMarker.
func cropWords(value string, words int) string {
	tokens := strings.Fields(value)
	if len(tokens) <= words {
		return strings.Join(tokens, " ")
	}

	focus := 0
	for i, token := range tokens {
		if strings.Contains(token, HighlightPreTag) {
			focus = i
			break
		}
	}

	start := max(0, focus-(words-1)/2)
	if start+words > len(tokens) {
		start = len(tokens) - words
	}
	end := start + words

	cropped := strings.Join(tokens[start:end], " ")
	if start > 0 {
		cropped = CropMarker + cropped
	}
	if end < len(tokens) {
		cropped = cropped + CropMarker
	}
	return cropped
}

// decodeTermFacets reads bleve term facets through their JSON form, which is stable across
// bleve versions.
func decodeTermFacets(terms any) ([]FacetValue, error) {
	raw, err := json.Marshal(terms)
	if err != nil {
		return nil, err
	}

	var decoded []struct {
		Term  string `json:"term"`
		Count int    `json:"count"`
	}
	if string(raw) != "null" {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
	}

	counts := make(map[string]int, len(decoded))
	for _, term := range decoded {
		counts[term.Term] = term.Count
	}
	return sortFacetValues(counts), nil
}

func (b *BleveDB) ListIndexes(_ context.Context, _ string) ([]string, error) {
	return []string{b.indexName}, nil
}

func (b *BleveDB) GetDocCount() (uint64, error) {
	return b.index.DocCount()
}

func (b *BleveDB) Close() error {

	if b.index != nil {
		if err := b.index.Close(); err != nil {
			b.logger.Error("could not close search index", "err", err.Error())
			return err
		}
	}
	return nil
}
