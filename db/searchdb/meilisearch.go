package searchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"github.com/r74tech/raven-front/config"
	"github.com/r74tech/raven-front/logger"
)

const maxListedIndexes = 1000

// fields decoded into Hit; everything else is passed through in Hit.Extra.
var knownHitFields = map[string]bool{
	"fullname":    true,
	"title":       true,
	"description": true,
	"category":    true,
	"source":      true,
	"url":         true,
	"_formatted":  true,
}

type MeiliDB struct {
	host    string
	logger  logger.Logger
	mu      sync.Mutex
	clients map[string]meilisearch.ServiceManager
}

func NewMeili(logger logger.Logger, cfg *config.Config) *MeiliDB {
	return NewMeiliWithHost(logger, cfg.GetMeilisearchURL())
}

func NewMeiliWithHost(logger logger.Logger, host string) *MeiliDB {
	return &MeiliDB{
		host:    strings.TrimRight(host, "/"),
		logger:  logger,
		clients: make(map[string]meilisearch.ServiceManager),
	}
}

// client returns the cached client for a credential. Settings can change the credential at
// any time, so clients are keyed by it rather than created once.
func (m *MeiliDB) client(credential string) (meilisearch.ServiceManager, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[credential]; ok {
		return client, nil
	}
	client := meilisearch.New(m.host, meilisearch.WithAPIKey(credential))
	m.clients[credential] = client
	return client, nil
}

func (m *MeiliDB) Search(ctx context.Context, request Request) (*Response, error) {
	client, err := m.client(request.Credential)
	if err != nil {
		return nil, err
	}

	searchRequest := buildMeiliRequest(request)
	result, err := client.Index(request.Index).SearchWithContext(ctx, request.Query, searchRequest)
	if err != nil {
		m.logger.Error("meilisearch search failed", "index", request.Index, "err", err.Error())
		return nil, &TransportError{Op: "search", Err: err}
	}

	response := &Response{
		Hits:           make([]Hit, 0, len(result.Hits)),
		TotalHits:      int(result.TotalHits),
		Page:           int(result.Page),
		TotalPages:     int(result.TotalPages),
		HitsPerPage:    int(result.HitsPerPage),
		ProcessingTime: time.Duration(result.ProcessingTimeMs) * time.Millisecond,
		Query:          request.Query,
	}
	if response.TotalHits == 0 && result.EstimatedTotalHits > 0 {
		response.TotalHits = int(result.EstimatedTotalHits)
	}
	if response.TotalPages == 0 {
		response.TotalPages = totalPages(response.TotalHits, request.HitsPerPage)
	}

	for _, rawHit := range result.Hits {
		hit, err := decodeMeiliHit(rawHit)
		if err != nil {
			m.logger.Warn("skipping malformed hit", "index", request.Index, "err", err.Error())
			continue
		}
		response.Hits = append(response.Hits, hit)
	}

	facets, err := decodeFacetDistribution(result.FacetDistribution)
	if err != nil {
		m.logger.Warn("could not decode facet distribution", "index", request.Index, "err", err.Error())
	}
	response.Facets = facets

	return response, nil
}

func buildMeiliRequest(request Request) *meilisearch.SearchRequest {
	searchRequest := &meilisearch.SearchRequest{
		Page:                  int64(request.Page),
		HitsPerPage:           int64(request.HitsPerPage),
		AttributesToSearchOn:  request.SearchableAttributes,
		AttributesToCrop:      request.AttributesToSnippet,
		CropMarker:            CropMarker,
		AttributesToHighlight: request.AttributesToHighlight,
		HighlightPreTag:       HighlightPreTag,
		HighlightPostTag:      HighlightPostTag,
		Facets:                request.Facets,
	}
	if searchRequest.Page < 1 {
		searchRequest.Page = 1
	}

	if field, direction, ok := ParseSortBy(request.SortBy); ok {
		searchRequest.Sort = []string{field + ":" + direction}
	}

	if filter := BuildFilter(request.Refinements); filter != "" {
		searchRequest.Filter = filter
	}

	return searchRequest
}

func decodeMeiliHit(rawHit meilisearch.Hit) (Hit, error) {
	hit := Hit{}
	targets := map[string]*string{
		"fullname":    &hit.Fullname,
		"title":       &hit.Title,
		"description": &hit.Description,
		"category":    &hit.Category,
		"source":      &hit.Source,
		"url":         &hit.URL,
	}

	for key, raw := range rawHit {
		if target, ok := targets[key]; ok {
			// null or non-string values leave the field empty
			var value any
			if err := json.Unmarshal(raw, &value); err != nil {
				return Hit{}, fmt.Errorf("field %s: %w", key, err)
			}
			if s, ok := value.(string); ok {
				*target = s
			}
			continue
		}
		if knownHitFields[key] {
			continue
		}
		if hit.Extra == nil {
			hit.Extra = make(map[string]json.RawMessage)
		}
		hit.Extra[key] = json.RawMessage(raw)
	}

	if hit.Fullname == "" {
		return Hit{}, fmt.Errorf("hit has no fullname")
	}

	if formatted, ok := rawHit["_formatted"]; ok {
		highlighted, err := decodeOrderedStrings(formatted)
		if err != nil {
			return Hit{}, fmt.Errorf("_formatted: %w", err)
		}
		hit.Highlighted = highlighted
	}

	return hit, nil
}

// decodeOrderedStrings reads a JSON object and keeps its string members in document order.
func decodeOrderedStrings(raw []byte) ([]FieldValue, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", token)
	}

	var values []FieldValue
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", keyToken)
		}

		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return nil, err
		}
		// only string fields carry markup
		var s any
		if err := json.Unmarshal(value, &s); err != nil {
			continue
		}
		if str, ok := s.(string); ok {
			values = append(values, FieldValue{Field: key, Value: str})
		}
	}

	return values, nil
}

func decodeFacetDistribution(distribution any) (map[string][]FacetValue, error) {
	raw, err := json.Marshal(distribution)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var counts map[string]map[string]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, err
	}

	facets := make(map[string][]FacetValue, len(counts))
	for attribute, values := range counts {
		facets[attribute] = sortFacetValues(values)
	}
	return facets, nil
}

func (m *MeiliDB) ListIndexes(ctx context.Context, credential string) ([]string, error) {
	client, err := m.client(credential)
	if err != nil {
		return nil, err
	}

	result, err := client.ListIndexesWithContext(ctx, &meilisearch.IndexesQuery{Limit: maxListedIndexes})
	if err != nil {
		m.logger.Error("meilisearch index listing failed", "err", err.Error())
		return nil, &TransportError{Op: "list indexes", Err: err}
	}

	indexes := make([]string, 0, len(result.Results))
	for _, index := range result.Results {
		indexes = append(indexes, index.UID)
	}
	return indexes, nil
}

func (m *MeiliDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = make(map[string]meilisearch.ServiceManager)
	return nil
}
