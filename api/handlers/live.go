package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/live"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/settings"
	"github.com/r74tech/raven-front/services/viewport"
)

type LiveOptions struct {
	AllowedOrigins []string
	PollInterval   time.Duration
	QueryRate      float64
}

type LiveRequest struct {
	View string `form:"view"`
}

func SetupLive(router *gin.Engine, logger logger.Logger, service *search.Service, store *settings.Store, renderer live.Renderer, options LiveOptions) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return sameOrigin(r) || viewport.OriginAllowed(r.Header.Get("Origin"), options.AllowedOrigins)
		},
	}
	router.GET(livePath, handleLive(upgrader, service, store, renderer, options, logger))

}

// sameOrigin accepts the pages this server renders itself, plus clients that send no origin.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return parsed.Host == r.Host
}

func handleLive(upgrader websocket.Upgrader, service *search.Service, store *settings.Store, renderer live.Renderer, options LiveOptions, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := LiveRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request query parameters"})
			return
		}

		saved, err := store.Load(sessionID(c))
		if err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{"could not load settings"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("could not upgrade live connection", "err", err.Error())
			return
		}

		session := live.NewSession(conn, live.Options{
			Searcher:       service,
			Renderer:       renderer,
			Settings:       saved,
			Policy:         policyFor(request.View),
			AllowedOrigins: options.AllowedOrigins,
			PollInterval:   options.PollInterval,
			QueryRate:      options.QueryRate,
			Logger:         logger,
		})
		logger.Info("live session started", "session", session.ID(), "view", request.View)

		if err := session.Run(c.Request.Context()); err != nil {
			logger.Warn("live session ended with error", "session", session.ID(), "err", err.Error())
			return
		}
		logger.Info("live session ended", "session", session.ID())
	}
}
