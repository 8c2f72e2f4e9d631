package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/r74tech/raven-front/db/searchdb"
	"github.com/r74tech/raven-front/services/search"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://parent.example"

type fakeConn struct {
	in        chan inbound
	out       chan map[string]any
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan inbound, 16),
		out:    make(chan map[string]any, 1024),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case message := <-c.in:
		raw, err := json.Marshal(message)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, v)
	case <-c.closed:
		return io.EOF
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	c.out <- decoded
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// next returns the next outbound message of the given type, skipping others.
func (c *fakeConn) next(t *testing.T, messageType string) map[string]any {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case message := <-c.out:
			if message["type"] == messageType {
				return message
			}
		case <-timeout:
			t.Fatalf("no %s message received", messageType)
			return nil
		}
	}
}

type fakeSearcher struct {
	mu      sync.Mutex
	release map[string]chan struct{}
	fail    map[string]error
}

func (f *fakeSearcher) Search(_ context.Context, settings search.Settings, _ search.DisplayPolicy, query search.Query) (search.QueryResult, error) {
	f.mu.Lock()
	wait := f.release[query.Text]
	err := f.fail[query.Text]
	f.mu.Unlock()

	if wait != nil {
		<-wait
	}
	if err != nil {
		return search.QueryResult{}, err
	}

	hits := []searchdb.Hit{}
	for i := 0; i < len(query.Text); i++ {
		hits = append(hits, searchdb.Hit{Fullname: fmt.Sprintf("%s-%d", query.Text, i)})
	}
	return search.QueryResult{Query: query.Text, TotalHits: len(hits), Hits: hits, Page: max(query.Page, 1)}, nil
}

func (f *fakeSearcher) Present(policy search.DisplayPolicy, settings search.Settings, query search.Query, result search.QueryResult) search.View {
	return search.Present(policy, search.DefaultLinkTemplate, settings, query, result)
}

type fakeRenderer struct{}

func (fakeRenderer) RenderResults(view search.View) (string, error) {
	return fmt.Sprintf("<p>%s:%d</p>", view.State, len(view.Hits)), nil
}

// gatedRenderer holds the rendering of the listed queries until their gate is closed.
type gatedRenderer struct {
	entered chan string
	gates   map[string]chan struct{}
}

func (r gatedRenderer) RenderResults(view search.View) (string, error) {
	if gate, ok := r.gates[view.Query]; ok {
		r.entered <- view.Query
		<-gate
	}
	return fakeRenderer{}.RenderResults(view)
}

func startSession(t *testing.T, searcher *fakeSearcher) (*fakeConn, chan error) {
	t.Helper()
	_, conn, done := startSessionWithRenderer(t, searcher, fakeRenderer{})
	return conn, done
}

func startSessionWithRenderer(t *testing.T, searcher *fakeSearcher, renderer Renderer) (*Session, *fakeConn, chan error) {
	t.Helper()
	conn := newFakeConn()
	session := NewSession(conn, Options{
		Searcher:       searcher,
		Renderer:       renderer,
		Settings:       search.DefaultSettings("key", "site_scp-jp"),
		Policy:         search.EmbedPolicy,
		AllowedOrigins: []string{testOrigin},
		PollInterval:   10 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()
	t.Cleanup(func() {
		conn.Close()
		<-done
	})
	return session, conn, done
}

func TestLiveQueryRendersState(t *testing.T) {
	assert := require.New(t)
	conn, _ := startSession(t, &fakeSearcher{})

	conn.in <- inbound{Type: typeQuery, Query: "scp"}
	state := conn.next(t, typeState)
	assert.Equal("populated", state["state"])
	assert.Equal("<p>populated:3</p>", state["html"])
	assert.EqualValues(3, state["totalHits"])
	assert.NotEmpty(state["id"])

	conn.in <- inbound{Type: typeQuery, Query: ""}
	state = conn.next(t, typeState)
	assert.Equal("initial", state["state"], "the blank query never shows a list")
}

func TestLivePageResetsWhenSortChanges(t *testing.T) {
	assert := require.New(t)
	conn, _ := startSession(t, &fakeSearcher{})

	conn.in <- inbound{Type: typeQuery, Query: "scp", Page: 1}
	conn.next(t, typeState)

	conn.in <- inbound{Type: typeQuery, Query: "scp", Page: 4}
	assert.EqualValues(4, conn.next(t, typeState)["page"])

	conn.in <- inbound{Type: typeQuery, Query: "scp", Page: 4, Sort: string(search.SortTitleAsc)}
	assert.EqualValues(1, conn.next(t, typeState)["page"])
}

func TestLiveDiscardsStaleResult(t *testing.T) {
	assert := require.New(t)
	release := make(chan struct{})
	searcher := &fakeSearcher{release: map[string]chan struct{}{"slow": release}}
	conn, _ := startSession(t, searcher)

	conn.in <- inbound{Type: typeQuery, Query: "slow"}
	time.Sleep(20 * time.Millisecond)
	conn.in <- inbound{Type: typeQuery, Query: "fast!"}

	state := conn.next(t, typeState)
	assert.Equal("fast!", state["query"])

	close(release)
	select {
	case message := <-conn.out:
		assert.NotEqual("slow", message["query"], "stale result must not be pushed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLiveSlowRenderIsNotSentAfterNewerQuery(t *testing.T) {
	assert := require.New(t)
	renderer := gatedRenderer{
		entered: make(chan string, 1),
		gates:   map[string]chan struct{}{"aaa": make(chan struct{})},
	}
	_, conn, _ := startSessionWithRenderer(t, &fakeSearcher{}, renderer)

	conn.in <- inbound{Type: typeQuery, Query: "aaa"}
	select {
	case query := <-renderer.entered:
		assert.Equal("aaa", query)
	case <-time.After(2 * time.Second):
		t.Fatal("aaa never reached the renderer")
	}

	conn.in <- inbound{Type: typeQuery, Query: "bb"}
	state := conn.next(t, typeState)
	assert.Equal("bb", state["query"])

	close(renderer.gates["aaa"])
	select {
	case message := <-conn.out:
		assert.NotEqual("aaa", message["query"], "an overtaken render must not replace the newer results")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLiveWhitespaceQueryStaysInitial(t *testing.T) {
	assert := require.New(t)
	session, conn, _ := startSessionWithRenderer(t, &fakeSearcher{}, fakeRenderer{})

	conn.in <- inbound{Type: typeQuery, Query: "   "}
	state := conn.next(t, typeState)
	assert.Equal("initial", state["state"])
	assert.Equal("", state["query"])

	_, _, tracked := session.tracker.Current()
	assert.Equal(search.StateInitial, tracked.Kind, "the tracked state matches the rendered one")
}

func TestLiveTransportErrorKeepsState(t *testing.T) {
	assert := require.New(t)
	searcher := &fakeSearcher{fail: map[string]error{
		"down": fmt.Errorf("could not search: %w", &searchdb.TransportError{Op: "search", Err: errors.New("connection refused")}),
		"nokey": fmt.Errorf("%w: %w", search.ErrNotConfigured, searchdb.ErrMissingCredential),
	}}
	conn, _ := startSession(t, searcher)

	conn.in <- inbound{Type: typeQuery, Query: "down"}
	message := conn.next(t, typeError)
	assert.Equal("search failed", message["error"])
	assert.Nil(message["notConfigured"])

	conn.in <- inbound{Type: typeQuery, Query: "nokey"}
	message = conn.next(t, typeError)
	assert.Equal(true, message["notConfigured"])
}

func TestLiveViewportPolling(t *testing.T) {
	assert := require.New(t)
	conn, _ := startSession(t, &fakeSearcher{})

	conn.in <- inbound{Type: typeHello, Origin: testOrigin}
	ready := conn.next(t, typeReady)
	assert.Equal("polling", ready["strategy"])

	first := conn.next(t, typeResize)
	second := conn.next(t, typeResize)
	assert.Equal(testOrigin, first["targetOrigin"])
	assert.Equal(first["pageHeight"], second["pageHeight"], "unchanged height is still reported")
}

func TestLiveViewportObserver(t *testing.T) {
	assert := require.New(t)
	conn, _ := startSession(t, &fakeSearcher{})

	conn.in <- inbound{Type: typeHello, Origin: testOrigin, ResizeObserver: true}
	assert.Equal("observer", conn.next(t, typeReady)["strategy"])

	conn.in <- inbound{Type: typeHeight, Height: 777}
	assert.EqualValues(777, conn.next(t, typeResize)["pageHeight"])
}

func TestLiveRejectsUnlistedOrigin(t *testing.T) {
	assert := require.New(t)
	conn, _ := startSession(t, &fakeSearcher{})

	conn.in <- inbound{Type: typeHello, Origin: "*"}
	message := conn.next(t, typeError)
	assert.Equal("target origin is not allowed", message["error"])
}

func TestLiveTeardownStopsReports(t *testing.T) {
	assert := require.New(t)
	conn, done := startSession(t, &fakeSearcher{})

	conn.in <- inbound{Type: typeHello, Origin: testOrigin}
	conn.next(t, typeResize)

	conn.Close()
	assert.NoError(<-done)
	done <- nil

	for len(conn.out) > 0 {
		<-conn.out
	}
	time.Sleep(50 * time.Millisecond)
	assert.Zero(len(conn.out), "no report may follow teardown")
}

func TestEstimateHeight(t *testing.T) {
	assert := require.New(t)

	initial := EstimateHeight(search.View{State: search.StateInitial})
	empty := EstimateHeight(search.View{State: search.StateEmpty})
	populated := EstimateHeight(search.View{
		State:      search.StatePopulated,
		Hits:       []search.HitView{{Fullname: "a"}, {Fullname: "b", Description: "d"}},
		Pagination: &search.Pagination{TotalPages: 3},
	})

	assert.Equal(searchBoxHeight, initial)
	assert.Greater(empty, initial)
	assert.Equal(searchBoxHeight+statsLineHeight+2*hitHeight+hitDetailHeight+paginationHeight, populated)
}
