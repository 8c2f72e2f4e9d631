package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r74tech/raven-front/api/handlers"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/settings"
	"github.com/r74tech/raven-front/ui"
	"github.com/r74tech/raven-front/validation"
	"golang.org/x/time/rate"
)

type routeDependencies struct {
	service        *search.Service
	store          *settings.Store
	validator      *validation.Validator
	renderer       *ui.Renderer
	indexesLimiter *rate.Limiter
	allowedOrigins []string
	live           handlers.LiveOptions
}

func setupRoutes(router *gin.Engine, logger logger.Logger, deps routeDependencies) {
	router.GET("/health", health())

	router.SetHTMLTemplate(deps.renderer.Templates())
	router.StaticFS("/static", http.FS(ui.Static()))

	handlers.SetupPages(router, logger, deps.service, deps.store, deps.validator, deps.allowedOrigins)
	handlers.SetupSearch(router, logger, deps.service, deps.store, deps.validator)
	handlers.SetupSettings(router, logger, deps.store, deps.validator)
	handlers.SetupIndexes(router, logger, deps.service, deps.store, deps.indexesLimiter)
	handlers.SetupLive(router, logger, deps.service, deps.store, deps.renderer, deps.live)

}

func health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

func newRouter(logger logger.Logger, allowedOrigins []string, secureCookies bool) *gin.Engine {
	router := gin.New()
	router.UseRawPath = true
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(_CORSMiddleware(allowedOrigins))
	router.Use(handlers.Session(secureCookies))

	return router
}
