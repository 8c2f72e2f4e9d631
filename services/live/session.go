package live

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/viewport"
	"golang.org/x/time/rate"
)

const queryBurst = 5

// Conn is the part of a websocket connection a session uses.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Searcher interface {
	Search(ctx context.Context, settings search.Settings, policy search.DisplayPolicy, query search.Query) (search.QueryResult, error)
	Present(policy search.DisplayPolicy, settings search.Settings, query search.Query, result search.QueryResult) search.View
}

type Renderer interface {
	RenderResults(view search.View) (string, error)
}

type Options struct {
	Searcher       Searcher
	Renderer       Renderer
	Settings       search.Settings
	Policy         search.DisplayPolicy
	AllowedOrigins []string
	PollInterval   time.Duration
	QueryRate      float64
	Logger         logger.Logger
}

// Session drives one live search connection: queries in, rendered state and page height
// reports out.
type Session struct {
	id      string
	conn    Conn
	options Options
	logger  logger.Logger

	writeMu sync.Mutex
	tracker *search.Tracker
	limiter *rate.Limiter
	content *content

	mu           sync.Mutex
	subscription *viewport.Subscription
	lastKey      *search.QueryKey

	inflight sync.WaitGroup
}

func NewSession(conn Conn, options Options) *Session {
	log := options.Logger
	if log == nil {
		log = logger.Discard()
	}

	limit := rate.Inf
	if options.QueryRate > 0 {
		limit = rate.Limit(options.QueryRate)
	}

	return &Session{
		id:      uuid.NewString(),
		conn:    conn,
		options: options,
		logger:  log,
		tracker: search.NewTracker(options.Policy),
		limiter: rate.NewLimiter(limit, queryBurst),
		content: newContent(),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Run reads messages until the connection closes or ctx is done, then tears everything
// down: in-flight queries are cancelled and the viewport notifier is stopped.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer s.close(cancel)

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		var message inbound
		if err := s.conn.ReadJSON(&message); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			s.logger.Debug("live session read failed", "session", s.id, "err", err.Error())
			return err
		}

		switch message.Type {
		case typeHello:
			if err := s.hello(message); err != nil {
				s.writeError("", err)
			}
		case typeQuery:
			s.query(ctx, message)
		case typeHeight:
			if message.Height > 0 {
				s.content.report(message.Height)
			}
		default:
			s.logger.Warn("ignoring unknown live message", "session", s.id, "type", message.Type)
		}
	}
}

func (s *Session) close(cancel context.CancelFunc) {
	cancel()
	s.tracker.Close()
	s.inflight.Wait()

	s.mu.Lock()
	subscription := s.subscription
	s.subscription = nil
	s.mu.Unlock()
	if subscription != nil {
		subscription.Stop()
	}

	s.conn.Close()
	s.logger.Debug("live session closed", "session", s.id)
}

// hello (re)starts the viewport notifier. The strategy follows the client's capability.
func (s *Session) hello(message inbound) error {
	var element viewport.Element = s.content
	if message.ResizeObserver {
		element = observedContent{s.content}
	}

	subscription, err := viewport.Start(element, sessionParent{s}, viewport.Options{
		Origin:         message.Origin,
		AllowedOrigins: s.options.AllowedOrigins,
		PollInterval:   s.options.PollInterval,
		Logger:         s.logger,
	})
	if err != nil {
		s.logger.Warn("refusing viewport notifier", "session", s.id, "origin", message.Origin, "err", err.Error())
		return err
	}

	s.mu.Lock()
	previous := s.subscription
	s.subscription = subscription
	s.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}

	return s.write(readyMessage{Type: typeReady, Session: s.id, Strategy: string(subscription.Strategy())})
}

func (s *Session) settingsFor(message inbound) search.Settings {
	settings := s.options.Settings
	if message.HitsPerPage != 0 {
		settings.HitsPerPage = message.HitsPerPage
	}
	if message.Sort != "" {
		settings.Sort = search.SortKey(message.Sort)
	}
	return settings.Normalize()
}

func (s *Session) query(ctx context.Context, message inbound) {
	settings := s.settingsFor(message)
	query := search.Query{
		Text:        strings.TrimSpace(message.Query),
		Page:        message.Page,
		Refinements: message.Refinements,
		ShowMore:    message.ShowMore,
	}

	key := search.NewQueryKey(settings, query)
	s.mu.Lock()
	if s.lastKey != nil {
		query.Page = search.NextPage(*s.lastKey, key, message.Page)
	}
	s.lastKey = &key
	s.mu.Unlock()

	ticket, queryCtx := s.tracker.Begin(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.run(queryCtx, ticket, settings, query)
	}()
}

func (s *Session) run(ctx context.Context, ticket search.Ticket, settings search.Settings, query search.Query) {
	if err := s.limiter.Wait(ctx); err != nil {
		// superseded while throttled
		return
	}

	result, err := s.options.Searcher.Search(ctx, settings, s.options.Policy, query)
	if err != nil {
		if errors.Is(err, context.Canceled) || !s.tracker.Fail(ticket, err) {
			return
		}
		s.writeCurrent(ticket, newErrorMessage(uuid.NewString(), err))
		return
	}

	if _, ok := s.tracker.Complete(ticket, query, result); !ok {
		s.logger.Debug("discarding stale live result", "session", s.id, "query", query.Text)
		return
	}

	view := s.options.Searcher.Present(s.options.Policy, settings, query, result)
	html, err := s.options.Renderer.RenderResults(view)
	if err != nil {
		s.logger.Error("could not render live results", "session", s.id, "err", err.Error())
		s.writeCurrent(ticket, newErrorMessage(uuid.NewString(), err))
		return
	}

	if !s.publish(ticket, view, html) {
		s.logger.Debug("discarding superseded live result", "session", s.id, "query", query.Text)
	}
}

// publish writes the rendered view while ticket is still the latest query. The height
// estimate moves with the write so it always describes what the client shows.
func (s *Session) publish(ticket search.Ticket, view search.View, html string) bool {
	page := 1
	if view.Pagination != nil {
		page = view.Pagination.CurrentPage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.tracker.IsCurrent(ticket) {
		return false
	}
	s.content.setEstimate(EstimateHeight(view))
	s.writeLocked(stateMessage{
		Type:      typeState,
		ID:        uuid.NewString(),
		State:     string(view.State),
		Query:     view.Query,
		Page:      page,
		TotalHits: view.TotalHits,
		HTML:      html,
	})
	return true
}

func (s *Session) writeError(id string, err error) {
	s.write(newErrorMessage(id, err))
}

func newErrorMessage(id string, err error) errorMessage {
	message := errorMessage{
		Type:          typeError,
		ID:            id,
		Error:         "search failed",
		NotConfigured: errors.Is(err, search.ErrNotConfigured),
	}
	if errors.Is(err, viewport.ErrOriginNotAllowed) {
		message.Error = viewport.ErrOriginNotAllowed.Error()
	}
	if message.NotConfigured {
		message.Error = "search is not configured"
	}
	return message
}

func (s *Session) write(message any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(message)
}

// writeCurrent writes message only while ticket is the latest query.
func (s *Session) writeCurrent(ticket search.Ticket, message any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.tracker.IsCurrent(ticket) {
		s.writeLocked(message)
	}
}

func (s *Session) writeLocked(message any) error {
	if err := s.conn.WriteJSON(message); err != nil {
		s.logger.Debug("live session write failed", "session", s.id, "err", err.Error())
		return err
	}
	return nil
}

// sessionParent relays height reports to the client, which forwards them to its embedding
// window using TargetOrigin.
type sessionParent struct {
	session *Session
}

func (p sessionParent) PostMessage(message viewport.Message, targetOrigin string) error {
	return p.session.write(resizeMessage{Type: typeResize, PageHeight: message.PageHeight, TargetOrigin: targetOrigin})
}
