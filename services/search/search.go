package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/r74tech/raven-front/db/searchdb"
	"github.com/r74tech/raven-front/logger"
)

var ErrNotConfigured = errors.New("search is not configured")

type Service struct {
	logger logger.Logger
	engine searchdb.Engine
	link   LinkTemplate
}

func New(logger logger.Logger, engine searchdb.Engine, link LinkTemplate) *Service {
	return &Service{
		logger: logger,
		engine: engine,
		link:   link,
	}
}

// Search runs one round trip. Engine failures come back as errors wrapping
// searchdb.ErrTransport and are never turned into a zero-hit result.
func (s *Service) Search(ctx context.Context, settings Settings, policy DisplayPolicy, query Query) (QueryResult, error) {
	settings = settings.Normalize()
	if settings.IndexName == "" {
		return QueryResult{}, fmt.Errorf("%w: no index selected", ErrNotConfigured)
	}

	request := NewRequest(settings, BuildConfig(settings, policy), query)
	response, err := s.engine.Search(ctx, request)
	if err != nil {
		if errors.Is(err, searchdb.ErrMissingCredential) {
			return QueryResult{}, fmt.Errorf("%w: %w", ErrNotConfigured, err)
		}
		s.logger.Error("search failed", "index", settings.IndexName, "err", err.Error())
		return QueryResult{}, fmt.Errorf("could not search index %s: %w", settings.IndexName, err)
	}

	s.logger.Debug("search completed", "index", settings.IndexName, "query", request.Query, "hits", response.TotalHits)
	return NewQueryResult(response), nil
}

func (s *Service) Indexes(ctx context.Context, credential string) ([]string, error) {
	indexes, err := s.engine.ListIndexes(ctx, credential)
	if err != nil {
		if errors.Is(err, searchdb.ErrMissingCredential) {
			return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
		}
		s.logger.Warn("index discovery failed", "err", err.Error())
		return nil, fmt.Errorf("could not list indexes: %w", err)
	}
	return indexes, nil
}

func (s *Service) Present(policy DisplayPolicy, settings Settings, query Query, result QueryResult) View {
	return Present(policy, s.link, settings.Normalize(), query, result)
}
