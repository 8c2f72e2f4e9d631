// Common test helpers
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
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

const (
	testSession     = "0b8d3a5e-6a57-4a5c-9d0c-3c1f9e2b7a10"
	testOtherOrigin = "https://evil.example"
)

var defaultTestRequestHeaders = map[string]string{
	"Content-Type": "application/json",
	"Cookie":       SessionCookie + "=" + testSession,
}

var testDocuments = []searchdb.Document{
	{
		Fullname:  "scp-173",
		Title:     "SCP-173",
		Category:  "scp",
		Source:    "The sculpture is constructed from concrete and rebar",
		CreatedBy: "Moto42",
		CreatedAt: time.Date(2008, 7, 19, 0, 0, 0, 0, time.UTC),
	},
	{
		Fullname:  "scp-049",
		Title:     "SCP-049",
		Category:  "scp",
		Source:    "A humanoid entity resembling a plague doctor",
		CreatedBy: "Gabriel Jade",
		CreatedAt: time.Date(2009, 3, 2, 0, 0, 0, 0, time.UTC),
	},
	{
		Fullname:    "tale:concrete-dreams",
		Title:       "Concrete Dreams",
		Description: "A tale",
		Category:    "tale",
		Source:      "a story about grey concrete walls",
		CreatedBy:   "someone",
		CreatedAt:   time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
	},
	{
		Fullname:  "untitled-page",
		Category:  "tale",
		Source:    "a concrete floor",
		CreatedAt: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC),
	},
}

type testCase struct {
	name             string
	requestHeaders   map[string]string
	requestBody      map[string]any
	queryParams      url.Values
	expectedStatus   int
	expectedResponse map[string]any
}

// testEngine is the local engine with the hosted engine's credential check and a switch to
// simulate an unreachable engine.
type testEngine struct {
	*searchdb.BleveDB
	mu      sync.Mutex
	down    bool
	indexes []string
}

func (e *testEngine) setDown(down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.down = down
}

func (e *testEngine) failure(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return &searchdb.TransportError{Op: op, Err: context.DeadlineExceeded}
	}
	return nil
}

func (e *testEngine) Search(ctx context.Context, request searchdb.Request) (*searchdb.Response, error) {
	if request.Credential == "" {
		return nil, searchdb.ErrMissingCredential
	}
	if err := e.failure("search"); err != nil {
		return nil, err
	}
	return e.BleveDB.Search(ctx, request)
}

func (e *testEngine) ListIndexes(_ context.Context, credential string) ([]string, error) {
	if credential == "" {
		return nil, searchdb.ErrMissingCredential
	}
	if err := e.failure("list indexes"); err != nil {
		return nil, err
	}
	return e.indexes, nil
}

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

// testServerOption adjusts the server default settings.
type testServerOption func(defaults *search.Settings)

func withoutAPIKey(defaults *search.Settings) {
	defaults.APIKey = ""
}

func setupTestServer(t *testing.T, assert *require.Assertions, options ...testServerOption) (*gin.Engine, *testEngine) {

	t.Setenv("ENV", "test")

	cfg, err := config.Load()
	assert.NoError(err, "could not load config")

	testLogger := newTestLogger()

	index, err := searchdb.NewInMemory(testLogger, cfg.GetDefaultIndex())
	assert.NoError(err, "could not create search database")
	assert.NoError(index.BuildIndex(testDocuments), "could not index test documents")
	engine := &testEngine{BleveDB: index, indexes: []string{"site_scp-en", cfg.GetDefaultIndex()}}

	kvDB, err := kvdb.Open(testLogger, filepath.Join(t.TempDir(), "settings.db"))
	assert.NoError(err, "could not create kv database")

	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	renderer, err := ui.New()
	assert.NoError(err, "could not parse templates")

	defaults := search.DefaultSettings(cfg.GetMeilisearchAPIKey(), cfg.GetDefaultIndex())
	for _, option := range options {
		option(&defaults)
	}
	store := settings.New(testLogger, kvDB, defaults)
	service := search.New(testLogger, engine, search.LinkTemplate{Scheme: cfg.GetLinkScheme(), HostSuffix: cfg.GetLinkHostSuffix()})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.SetHTMLTemplate(renderer.Templates())
	router.Use(Session(false))

	SetupSearch(router, testLogger, service, store, validator)
	SetupSettings(router, testLogger, store, validator)
	SetupIndexes(router, testLogger, service, store, rate.NewLimiter(rate.Inf, 1))
	SetupPages(router, testLogger, service, store, validator, cfg.GetAllowedOrigins())
	SetupLive(router, testLogger, service, store, renderer, LiveOptions{
		AllowedOrigins: cfg.GetAllowedOrigins(),
		PollInterval:   10 * time.Millisecond,
	})

	t.Cleanup(func() {
		assert.NoError(index.Close(), "could not close search database")
		assert.NoError(kvDB.Close(), "could not close kv database")
	})

	return router, engine
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]interface{}, queryParams url.Values) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		endpoint = endpoint + "?" + queryParams.Encode()
	}
	var jsonBody []byte
	var req *http.Request
	if requestBodyMap != nil {
		jsonBody, err = json.Marshal(requestBodyMap)
		assert.NoError(err)
	}

	slog.Info("Making test request", "method", method, "endpoint", endpoint, "headers", headers, "body", string(jsonBody))

	if len(jsonBody) > 0 {
		req, err = http.NewRequest(method, endpoint, bytes.NewBuffer(jsonBody))
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(w, req)

	return w
}

func decodeResponse(assert *require.Assertions, w *httptest.ResponseRecorder) map[string]any {
	var responseMap map[string]any
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &responseMap), "response was %s", w.Body.String())
	return responseMap
}

// assertSubset checks that every key of expected is present in actual with the same value,
// descending into nested maps.
func assertSubset(assert *require.Assertions, expected map[string]any, actual map[string]any) {
	for key, expectedValue := range expected {
		actualValue, exists := actual[key]
		assert.True(exists, "expected field %s not found", key)

		if expectedMap, ok := expectedValue.(map[string]any); ok {
			actualMap, ok := actualValue.(map[string]any)
			assert.True(ok, "field %s is not an object", key)
			assertSubset(assert, expectedMap, actualMap)
			continue
		}
		assert.Equal(expectedValue, actualValue, "field %s mismatch", key)
	}
}
