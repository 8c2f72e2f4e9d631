package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/r74tech/raven-front/api/handlers"
	"github.com/r74tech/raven-front/config"
	"github.com/r74tech/raven-front/db/kvdb"
	"github.com/r74tech/raven-front/db/searchdb"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/settings"
	"github.com/r74tech/raven-front/ui"
	"github.com/r74tech/raven-front/validation"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testAllowedOrigin = "https://parent.example"

func setupTestRouter(t *testing.T, assert *require.Assertions) *gin.Engine {
	t.Setenv("ENV", "test")
	cfg, err := config.Load()
	assert.NoError(err)

	log := logger.Discard()
	engine, err := searchdb.NewInMemory(log, cfg.GetDefaultIndex())
	assert.NoError(err)
	kvDB, err := kvdb.Open(log, filepath.Join(t.TempDir(), "settings.db"))
	assert.NoError(err)
	validator, err := validation.New(log)
	assert.NoError(err)
	renderer, err := ui.New()
	assert.NoError(err)
	t.Cleanup(func() {
		engine.Close()
		kvDB.Close()
	})

	gin.SetMode(gin.TestMode)
	router := newRouter(log, cfg.GetAllowedOrigins(), false)
	setupRoutes(router, log, routeDependencies{
		service:        search.New(log, engine, search.DefaultLinkTemplate),
		store:          settings.New(log, kvDB, search.DefaultSettings(cfg.GetMeilisearchAPIKey(), cfg.GetDefaultIndex())),
		validator:      validator,
		renderer:       renderer,
		indexesLimiter: rate.NewLimiter(rate.Inf, 1),
		allowedOrigins: cfg.GetAllowedOrigins(),
		live:           handlers.LiveOptions{AllowedOrigins: cfg.GetAllowedOrigins()},
	})
	return router
}

func serve(router *gin.Engine, method string, path string, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	assert := require.New(t)
	router := setupTestRouter(t, assert)

	testCases := []struct {
		name           string
		path           string
		expectedStatus int
		expectedType   string
	}{
		{name: "Health", path: "/health", expectedStatus: http.StatusOK, expectedType: "text/plain"},
		{name: "Home", path: "/", expectedStatus: http.StatusOK, expectedType: "text/html"},
		{name: "Embed", path: "/embed/search", expectedStatus: http.StatusOK, expectedType: "text/html"},
		{name: "Script", path: "/static/live.js", expectedStatus: http.StatusOK, expectedType: "javascript"},
		{name: "Stylesheet", path: "/static/style.css", expectedStatus: http.StatusOK, expectedType: "text/css"},
		{name: "Settings", path: "/api/settings", expectedStatus: http.StatusOK, expectedType: "application/json"},
		{name: "Unknown", path: "/ui/index.html", expectedStatus: http.StatusNotFound},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			w := serve(router, http.MethodGet, testCase.path, "")
			assert.Equal(testCase.expectedStatus, w.Code, w.Body.String())
			if testCase.expectedType != "" {
				assert.Contains(w.Header().Get("Content-Type"), testCase.expectedType)
			}
		})
	}
}

func TestSessionCookieIsIssued(t *testing.T) {
	assert := require.New(t)
	router := setupTestRouter(t, assert)

	w := serve(router, http.MethodGet, "/api/settings", "")
	cookies := w.Result().Cookies()
	assert.Len(cookies, 1)
	assert.Equal(handlers.SessionCookie, cookies[0].Name)
	assert.True(cookies[0].HttpOnly)
	assert.Equal(http.SameSiteLaxMode, cookies[0].SameSite)
}

func TestCORSMiddleware(t *testing.T) {
	assert := require.New(t)
	router := setupTestRouter(t, assert)

	t.Run("AllowedOrigin", func(t *testing.T) {
		assert := require.New(t)
		w := serve(router, http.MethodGet, "/api/settings", testAllowedOrigin)
		assert.Equal(http.StatusOK, w.Code)
		assert.Equal(testAllowedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal("true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(w.Header().Values("Vary"), "Origin")
	})

	t.Run("Preflight", func(t *testing.T) {
		assert := require.New(t)
		w := serve(router, http.MethodOptions, "/api/settings", testAllowedOrigin)
		assert.Equal(http.StatusNoContent, w.Code)
		assert.Contains(w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
		assert.Contains(w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
	})

	t.Run("OtherOrigin", func(t *testing.T) {
		assert := require.New(t)
		w := serve(router, http.MethodGet, "/api/settings", "https://evil.example")
		assert.Equal(http.StatusOK, w.Code)
		assert.Empty(w.Header().Get("Access-Control-Allow-Origin"))
	})
}
