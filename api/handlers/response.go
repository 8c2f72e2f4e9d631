package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r74tech/raven-front/db/searchdb"
	"github.com/r74tech/raven-front/services/search"
)

type response struct {
	Data   any      `json:"data"`
	Errors []string `json:"errors"`
}

func writeResponse(c *gin.Context, data interface{}, statusCode int, errors []string) {

	if statusCode == http.StatusNoContent {
		c.JSON(statusCode, nil)
		return

	}

	response := response{
		Data:   data,
		Errors: errors,
	}

	c.JSON(statusCode, response)
}

// searchFailure maps a search or discovery error to a status and a message safe to show.
// A failed round trip is never reported as a successful empty result.
func searchFailure(err error) (int, string) {
	switch {
	case errors.Is(err, search.ErrNotConfigured):
		return http.StatusServiceUnavailable, "search is not configured: set an API key and choose an index"
	case errors.Is(err, searchdb.ErrTransport):
		return http.StatusBadGateway, "the search engine could not be reached"
	default:
		return http.StatusBadGateway, "search failed"
	}
}
