package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/settings"
	"github.com/r74tech/raven-front/validation"
)

// SettingsRequest updates the session settings. Omitted values keep their saved value; a
// blank API key keeps the saved one.
type SettingsRequest struct {
	APIKey      string   `json:"apiKey" form:"apiKey"`
	IndexName   string   `json:"indexName" form:"indexName" validate:"valid_index"`
	Fields      []string `json:"fields" form:"fields" validate:"valid_fields"`
	HitsPerPage int      `json:"hitsPerPage" form:"hitsPerPage" validate:"oneof=0 10 20 50"`
	Sort        string   `json:"sort" form:"sort" validate:"valid_sort"`
}

// SettingsResponse never carries the API key itself.
type SettingsResponse struct {
	IndexName   string         `json:"indexName"`
	Fields      []search.Field `json:"fields"`
	HitsPerPage int            `json:"hitsPerPage"`
	Sort        search.SortKey `json:"sort"`
	APIKeySet   bool           `json:"apiKeySet"`
}

func newSettingsResponse(settings search.Settings) SettingsResponse {
	return SettingsResponse{
		IndexName:   settings.IndexName,
		Fields:      settings.Fields,
		HitsPerPage: settings.HitsPerPage,
		Sort:        settings.Sort,
		APIKeySet:   settings.APIKey != "",
	}
}

// merge applies the request to the saved settings. The server default credential is never
// written into a session's saved copy.
func (r *SettingsRequest) merge(saved search.Settings, defaults search.Settings) search.Settings {
	updated := saved
	switch {
	case r.APIKey != "":
		updated.APIKey = r.APIKey
	case updated.APIKey == defaults.APIKey:
		updated.APIKey = ""
	}

	updated.IndexName = r.IndexName
	if r.Fields != nil {
		updated.Fields = make([]search.Field, 0, len(r.Fields))
		for _, field := range r.Fields {
			updated.Fields = append(updated.Fields, search.Field(field))
		}
	}
	if r.HitsPerPage != 0 {
		updated.HitsPerPage = r.HitsPerPage
	}
	if r.Sort != "" {
		updated.Sort = search.SortKey(r.Sort)
	}
	return updated
}

func SetupSettings(router *gin.Engine, logger logger.Logger, store *settings.Store, validator *validation.Validator) {
	router.GET("/api/settings", handleGetSettings(store, logger))
	router.PUT("/api/settings", handlePutSettings(store, logger, validator))
	router.DELETE("/api/settings", handleDeleteSettings(store, logger))
}

func handleGetSettings(store *settings.Store, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		saved, err := store.Load(sessionID(c))
		if err != nil {
			logger.Error("could not load settings", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{"could not load settings"})
			return
		}

		writeResponse(c, newSettingsResponse(saved), http.StatusOK, nil)
	}
}

func handlePutSettings(store *settings.Store, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := SettingsRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected params from settings request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate settings request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		saved, err := saveSettings(store, sessionID(c), request)
		if err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{"could not save settings"})
			return
		}

		writeResponse(c, newSettingsResponse(saved), http.StatusOK, nil)
	}
}

// handleDeleteSettings returns the session to the defaults and drops its index cache.
func handleDeleteSettings(store *settings.Store, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Reset(sessionID(c)); err != nil {
			logger.Error("could not reset settings", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{"could not reset settings"})
			return
		}

		writeResponse(c, newSettingsResponse(store.Defaults()), http.StatusOK, nil)
	}
}

// saveSettings persists the merged settings and returns them as the next Load will see them.
func saveSettings(store *settings.Store, session string, request SettingsRequest) (search.Settings, error) {
	saved, err := store.Load(session)
	if err != nil {
		return search.Settings{}, err
	}

	if _, err := store.Save(session, request.merge(saved, store.Defaults())); err != nil {
		return search.Settings{}, err
	}

	return store.Load(session)
}
