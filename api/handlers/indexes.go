package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/settings"
	"golang.org/x/time/rate"
)

type IndexesRequest struct {
	APIKey string `form:"apiKey"`
}

type IndexesResponse struct {
	Indexes []string `json:"indexes"`
	// Cached is set when discovery failed and the last successful list is returned instead.
	Cached bool `json:"cached"`
}

func SetupIndexes(router *gin.Engine, logger logger.Logger, service *search.Service, store *settings.Store, limiter *rate.Limiter) {
	router.GET("/api/indexes", handleIndexes(service, store, limiter, logger))

}

func handleIndexes(service *search.Service, store *settings.Store, limiter *rate.Limiter, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := IndexesRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from indexes request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request query parameters"})
			return
		}

		if err := limiter.Wait(c.Request.Context()); err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusTooManyRequests, []string{"too many index discovery requests"})
			return
		}

		indexes, err := discoverIndexes(c.Request.Context(), service, store, sessionID(c), request.APIKey)
		if err != nil {
			status, message := searchFailure(err)
			logger.Warn("index discovery failed", "status", status, "err", err.Error())
			c.Abort()
			writeResponse(c, IndexesResponse{Indexes: indexes, Cached: true}, status, []string{message})
			return
		}

		writeResponse(c, IndexesResponse{Indexes: indexes}, http.StatusOK, nil)
	}
}

// discoverIndexes lists the indexes the credential can see and caches them for the session.
// On failure it returns the previously cached list together with the error. A blank
// credential falls back to the saved one.
func discoverIndexes(ctx context.Context, service *search.Service, store *settings.Store, session string, credential string) ([]string, error) {
	if credential == "" {
		saved, err := store.Load(session)
		if err != nil {
			return []string{}, err
		}
		credential = saved.APIKey
	}

	indexes, err := service.Indexes(ctx, credential)
	if err != nil {
		cached, cacheErr := store.LoadIndexes(session)
		if cacheErr != nil {
			cached = []string{}
		}
		return cached, err
	}

	if session != "" {
		_ = store.SaveIndexes(session, indexes)
	}
	return indexes, nil
}
