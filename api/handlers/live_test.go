package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type liveTestClient struct {
	conn *websocket.Conn
}

func dialLive(t *testing.T, server *httptest.Server, view string, origin string) (*liveTestClient, *http.Response, error) {
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + livePath
	if view != "" {
		endpoint += "?view=" + view
	}

	header := http.Header{}
	header.Set("Cookie", defaultTestRequestHeaders["Cookie"])
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, response, err := websocket.DefaultDialer.Dial(endpoint, header)
	if err != nil {
		return nil, response, err
	}
	t.Cleanup(func() { conn.Close() })
	return &liveTestClient{conn: conn}, response, nil
}

func (c *liveTestClient) send(assert *require.Assertions, message map[string]any) {
	assert.NoError(c.conn.WriteJSON(message))
}

// next returns the next message of the given type, skipping others.
func (c *liveTestClient) next(assert *require.Assertions, messageType string) map[string]any {
	assert.NoError(c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	for {
		message := map[string]any{}
		assert.NoError(c.conn.ReadJSON(&message), "no %s message arrived", messageType)
		if message["type"] == messageType {
			return message
		}
	}
}

func TestHandleLiveQuery(t *testing.T) {
	assert := require.New(t)
	router, _ := setupTestServer(t, assert)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client, _, err := dialLive(t, server, "", server.URL)
	assert.NoError(err, "a page served by this host may connect")

	client.send(assert, map[string]any{"type": "query", "query": "concrete"})
	message := client.next(assert, "state")
	assert.Equal("populated", message["state"])
	assert.Equal("concrete", message["query"])
	assert.Equal(float64(3), message["totalHits"])
	assert.Contains(message["html"], `data-state="populated"`)

	client.send(assert, map[string]any{"type": "query", "query": "xyzzy"})
	message = client.next(assert, "state")
	assert.Equal("empty", message["state"])
}

func TestHandleLiveEmbedViewport(t *testing.T) {
	assert := require.New(t)
	router, _ := setupTestServer(t, assert)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client, _, err := dialLive(t, server, viewEmbed, "https://parent.example")
	assert.NoError(err, "an allowed parent may connect")

	client.send(assert, map[string]any{"type": "query", "query": "   "})
	message := client.next(assert, "state")
	assert.Equal("initial", message["state"], "the embed view shows nothing for a blank query")

	client.send(assert, map[string]any{"type": "hello", "origin": "https://parent.example"})
	ready := client.next(assert, "ready")
	assert.Equal("polling", ready["strategy"])

	resize := client.next(assert, "resize")
	assert.Equal("https://parent.example", resize["targetOrigin"])
	assert.Greater(resize["pageHeight"], float64(0))

	client.send(assert, map[string]any{"type": "hello", "origin": testOtherOrigin})
	failure := client.next(assert, "error")
	assert.Contains(failure["error"], "origin")
}

func TestHandleLiveRejectsUnknownOrigin(t *testing.T) {
	assert := require.New(t)
	router, _ := setupTestServer(t, assert)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	_, response, err := dialLive(t, server, viewEmbed, testOtherOrigin)
	assert.ErrorIs(err, websocket.ErrBadHandshake)
	assert.NotNil(response)
	assert.Equal(http.StatusForbidden, response.StatusCode)
}

func TestHandleLiveNotConfigured(t *testing.T) {
	assert := require.New(t)
	router, _ := setupTestServer(t, assert, withoutAPIKey)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client, _, err := dialLive(t, server, "", "")
	assert.NoError(err)

	client.send(assert, map[string]any{"type": "query", "query": "concrete"})
	message := client.next(assert, "error")
	assert.Equal(true, message["notConfigured"])
	assert.Equal("search is not configured", message["error"])
}
