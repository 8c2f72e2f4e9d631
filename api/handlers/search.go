package handlers

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/settings"
	"github.com/r74tech/raven-front/validation"
)

const (
	viewHome  = "home"
	viewEmbed = "embed"
)

type SearchRequest struct {
	Query            string   `form:"q" json:"q" validate:"valid_query"`
	Page             int      `form:"page" json:"page" validate:"min=0"`
	HitsPerPage      int      `form:"hitsPerPage" json:"hitsPerPage" validate:"oneof=0 10 20 50"`
	Sort             string   `form:"sort" json:"sort" validate:"valid_sort"`
	Fields           []string `form:"fields" json:"fields" validate:"valid_fields"`
	ShowMore         bool     `form:"show_more" json:"show_more"`
	ClearRefinements bool     `form:"clear_refinements" json:"clear_refinements"`
	View             string   `form:"view" json:"view" validate:"omitempty,oneof=home embed"`
}

// setDefaults drops the blank values the field toggles submit alongside the checked ones.
func (r *SearchRequest) setDefaults() {
	r.Fields = slices.DeleteFunc(r.Fields, func(field string) bool {
		return strings.TrimSpace(field) == ""
	})

	if r.View == "" {
		r.View = viewHome
	}
}

// settings overlays the request on the session settings. The field set is replaced only when
// the request names it, so an explicitly empty set searches every field.
func (r *SearchRequest) settings(saved search.Settings, fieldsGiven bool) search.Settings {
	if r.HitsPerPage != 0 {
		saved.HitsPerPage = r.HitsPerPage
	}
	if r.Sort != "" {
		saved.Sort = search.SortKey(r.Sort)
	}
	if fieldsGiven {
		saved.Fields = make([]search.Field, 0, len(r.Fields))
		for _, field := range r.Fields {
			saved.Fields = append(saved.Fields, search.Field(field))
		}
	}
	return saved.Normalize()
}

func (r *SearchRequest) query(c *gin.Context, policy search.DisplayPolicy) search.Query {
	query := search.Query{
		Text:        r.Query,
		Page:        r.Page,
		ShowMore:    r.ShowMore,
		Refinements: map[string][]string{},
	}
	if r.ClearRefinements {
		return query
	}

	for _, attribute := range policy.Facets {
		values := slices.DeleteFunc(c.QueryArray(attribute), func(value string) bool {
			return strings.TrimSpace(value) == ""
		})
		if len(values) > 0 {
			query.Refinements[attribute] = values
		}
	}
	return query
}

func policyFor(view string) search.DisplayPolicy {
	if view == viewEmbed {
		return search.EmbedPolicy
	}
	return search.HomePolicy
}

func fieldsGiven(c *gin.Context) bool {
	_, ok := c.GetQueryArray("fields")
	return ok
}

// runSearch skips the engine when the policy would hide the result anyway.
func runSearch(ctx context.Context, service *search.Service, settings search.Settings, policy search.DisplayPolicy, query search.Query) (search.QueryResult, error) {
	if policy.SuppressBlankQuery && strings.TrimSpace(query.Text) == "" {
		return search.SyntheticResult(), nil
	}
	return service.Search(ctx, settings, policy, query)
}

func SetupSearch(router *gin.Engine, logger logger.Logger, service *search.Service, store *settings.Store, validator *validation.Validator) {
	router.GET("/api/search", handleSearch(service, store, logger, validator))

}

func handleSearch(service *search.Service, store *settings.Store, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := SearchRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request query parameters"})
			return
		}
		request.setDefaults()

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		saved, err := store.Load(sessionID(c))
		if err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{"could not load settings"})
			return
		}

		policy := policyFor(request.View)
		settings := request.settings(saved, fieldsGiven(c))
		query := request.query(c, policy)

		result, err := runSearch(c.Request.Context(), service, settings, policy, query)
		if err != nil {
			status, message := searchFailure(err)
			logger.Warn("search request failed", "status", status, "err", err.Error())
			c.Abort()
			writeResponse(c, nil, status, []string{message})
			return
		}

		writeResponse(c, service.Present(policy, settings, query, result), http.StatusOK, nil)
	}
}
