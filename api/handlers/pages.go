package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/settings"
	"github.com/r74tech/raven-front/services/viewport"
	"github.com/r74tech/raven-front/ui"
	"github.com/r74tech/raven-front/validation"
)

const (
	actionDiscover = "discover"
	actionSave     = "save"

	livePath = "/api/live"
)

type settingsFormRequest struct {
	APIKey    string `form:"apiKey"`
	IndexName string `form:"indexName"`
	Action    string `form:"action"`
}

type pages struct {
	logger         logger.Logger
	service        *search.Service
	store          *settings.Store
	validator      *validation.Validator
	allowedOrigins []string
}

func SetupPages(router *gin.Engine, logger logger.Logger, service *search.Service, store *settings.Store, validator *validation.Validator, allowedOrigins []string) {
	p := &pages{
		logger:         logger,
		service:        service,
		store:          store,
		validator:      validator,
		allowedOrigins: allowedOrigins,
	}
	router.GET("/", p.handleHome())
	router.GET("/embed/search", p.handleEmbed())
	router.POST("/settings", p.handleSettingsForm())

}

// homePage fills everything but the view. The index list is the cached discovery result
// plus the selected index.
func (p *pages) homePage(session string, saved search.Settings) ui.HomePage {
	indexes, err := p.store.LoadIndexes(session)
	if err != nil {
		indexes = []string{}
	}
	if saved.IndexName != "" && !slices.Contains(indexes, saved.IndexName) {
		indexes = append(indexes, saved.IndexName)
	}

	return ui.HomePage{
		View:     p.service.Present(search.HomePolicy, saved, search.Query{}, search.SyntheticResult()),
		Settings: saved,
		Fields:   search.AllFields,
		Form:     ui.SettingsForm{APIKeySet: saved.APIKey != "", IndexName: saved.IndexName},
		Indexes:  indexes,
	}
}

func (p *pages) handleHome() gin.HandlerFunc {
	return func(c *gin.Context) {
		saved, err := p.store.Load(sessionID(c))
		if err != nil {
			c.String(http.StatusInternalServerError, "could not load settings")
			return
		}
		page := p.homePage(sessionID(c), saved)

		request := SearchRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			p.logger.Warn("could not extract expected params from home request", "err", err.Error())
			page.Error = "the search could not be read"
			c.HTML(http.StatusUnprocessableEntity, ui.HomeTemplate, page)
			return
		}
		request.setDefaults()
		request.View = viewHome

		if err := p.validator.Validate(request); err != nil {
			page.Error = err.Error()
			c.HTML(http.StatusNotAcceptable, ui.HomeTemplate, page)
			return
		}

		policy := search.HomePolicy
		settings := request.settings(saved, fieldsGiven(c))
		query := request.query(c, policy)
		page.Settings = settings

		result, err := runSearch(c.Request.Context(), p.service, settings, policy, query)
		if err != nil {
			status, message := searchFailure(err)
			p.logger.Warn("home search failed", "status", status, "err", err.Error())
			page.Error = message
			// keep the initial state so the failure never reads as an empty result
			page.View.Query = strings.TrimSpace(query.Text)
			c.HTML(status, ui.HomeTemplate, page)
			return
		}

		page.View = p.service.Present(policy, settings, query, result)
		c.HTML(http.StatusOK, ui.HomeTemplate, page)
	}
}

func (p *pages) frameAncestors() string {
	sources := append([]string{"'self'"}, p.allowedOrigins...)
	return fmt.Sprintf("frame-ancestors %s", strings.Join(sources, " "))
}

func (p *pages) handleEmbed() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", p.frameAncestors())

		saved, err := p.store.Load(sessionID(c))
		if err != nil {
			c.String(http.StatusInternalServerError, "could not load settings")
			return
		}

		policy := search.EmbedPolicy
		page := ui.EmbedPage{
			View:      p.service.Present(policy, saved, search.Query{}, search.SyntheticResult()),
			Settings:  saved,
			SortKeys:  search.SortKeys,
			PageSizes: search.PageSizes,
			LivePath:  livePath + "?view=" + viewEmbed,
		}
		if origin := c.Query("parentOrigin"); viewport.OriginAllowed(origin, p.allowedOrigins) {
			page.ParentOrigin = origin
		}

		request := SearchRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			p.logger.Warn("could not extract expected params from embed request", "err", err.Error())
			page.Error = "the search could not be read"
			c.HTML(http.StatusUnprocessableEntity, ui.EmbedTemplate, page)
			return
		}
		request.setDefaults()
		request.View = viewEmbed

		if err := p.validator.Validate(request); err != nil {
			page.Error = err.Error()
			c.HTML(http.StatusNotAcceptable, ui.EmbedTemplate, page)
			return
		}

		settings := request.settings(saved, fieldsGiven(c))
		query := request.query(c, policy)
		page.Settings = settings

		result, err := runSearch(c.Request.Context(), p.service, settings, policy, query)
		if err != nil {
			status, message := searchFailure(err)
			p.logger.Warn("embed search failed", "status", status, "err", err.Error())
			page.Error = message
			page.View.Query = strings.TrimSpace(query.Text)
			c.HTML(status, ui.EmbedTemplate, page)
			return
		}

		page.View = p.service.Present(policy, settings, query, result)
		c.HTML(http.StatusOK, ui.EmbedTemplate, page)
	}
}

// handleSettingsForm serves the settings form of the home page. Discovery never saves
// anything; only the save action persists the form.
func (p *pages) handleSettingsForm() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessionID(c)
		saved, err := p.store.Load(session)
		if err != nil {
			c.String(http.StatusInternalServerError, "could not load settings")
			return
		}
		page := p.homePage(session, saved)

		form := settingsFormRequest{}
		if err := c.ShouldBind(&form); err != nil {
			p.logger.Warn("could not extract expected params from settings form", "err", err.Error())
			page.Error = "the settings form could not be read"
			c.HTML(http.StatusUnprocessableEntity, ui.HomeTemplate, page)
			return
		}
		page.Form.APIKey = form.APIKey
		page.Form.IndexName = form.IndexName

		switch form.Action {
		case actionDiscover:
			indexes, err := discoverIndexes(c.Request.Context(), p.service, p.store, session, form.APIKey)
			found := len(indexes)
			if form.IndexName != "" && !slices.Contains(indexes, form.IndexName) {
				indexes = append(indexes, form.IndexName)
			}
			page.Indexes = indexes
			if err != nil {
				status, message := searchFailure(err)
				p.logger.Warn("index discovery failed", "status", status, "err", err.Error())
				page.Error = message
				c.HTML(status, ui.HomeTemplate, page)
				return
			}
			page.Notice = fmt.Sprintf("%d indexes found", found)
			c.HTML(http.StatusOK, ui.HomeTemplate, page)

		case actionSave:
			request := SettingsRequest{APIKey: form.APIKey, IndexName: form.IndexName}
			if err := p.validator.Validate(request); err != nil {
				page.Error = err.Error()
				c.HTML(http.StatusNotAcceptable, ui.HomeTemplate, page)
				return
			}
			if _, err := saveSettings(p.store, session, request); err != nil {
				page.Error = "could not save settings"
				c.HTML(http.StatusInternalServerError, ui.HomeTemplate, page)
				return
			}
			c.Redirect(http.StatusSeeOther, "/")

		default:
			page.Error = "unknown settings action"
			c.HTML(http.StatusNotAcceptable, ui.HomeTemplate, page)
		}
	}
}
