package viewport

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/r74tech/raven-front/logger"
)

const DefaultPollInterval = 250 * time.Millisecond

var ErrOriginNotAllowed = errors.New("target origin is not allowed")

// Message is the payload posted to the embedding parent.
type Message struct {
	PageHeight int `json:"pageHeight"`
}

// Element is the observed content. Height must be safe to call from any goroutine.
type Element interface {
	Height() int
}

// Observable is an Element that can push size changes itself. The returned function
// disconnects the observer.
type Observable interface {
	Element
	Observe(onResize func(height int)) (disconnect func())
}

// Parent receives height reports. Delivery is fire and forget.
type Parent interface {
	PostMessage(message Message, targetOrigin string) error
}

type Options struct {
	Origin         string
	AllowedOrigins []string
	PollInterval   time.Duration
	Logger         logger.Logger
}

type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyObserver Strategy = "observer"
	StrategyPolling  Strategy = "polling"
)

// Subscription is one running notifier. Stop must be called exactly when the observed
// content goes away; it is safe to call more than once.
type Subscription struct {
	strategy Strategy
	parent   Parent
	origin   string
	logger   logger.Logger

	mu         sync.Mutex
	stopped    bool
	stopOnce   sync.Once
	quit       chan struct{}
	done       chan struct{}
	disconnect func()
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}

// OriginAllowed reports whether origin is an explicit member of allowed. The wildcard is
// never accepted, on either side.
func OriginAllowed(origin string, allowed []string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" || origin == "*" {
		return false
	}
	return slices.ContainsFunc(allowed, func(candidate string) bool {
		candidate = normalizeOrigin(candidate)
		return candidate != "*" && candidate == origin
	})
}

// Start picks the observer strategy when element is Observable and polling otherwise. A nil
// element yields an inert subscription.
func Start(element Element, parent Parent, options Options) (*Subscription, error) {
	log := options.Logger
	if log == nil {
		log = logger.Discard()
	}

	subscription := &Subscription{
		strategy: StrategyNone,
		parent:   parent,
		origin:   normalizeOrigin(options.Origin),
		logger:   log,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if element == nil || parent == nil {
		log.Debug("viewport notifier skipped, nothing to observe")
		close(subscription.done)
		return subscription, nil
	}

	if !OriginAllowed(options.Origin, options.AllowedOrigins) {
		close(subscription.done)
		return nil, fmt.Errorf("%w: %q", ErrOriginNotAllowed, options.Origin)
	}

	if observable, ok := element.(Observable); ok {
		subscription.strategy = StrategyObserver
		close(subscription.done)
		subscription.report(observable.Height())
		subscription.disconnect = observable.Observe(subscription.report)
		return subscription, nil
	}

	interval := options.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	subscription.strategy = StrategyPolling
	subscription.report(element.Height())
	go subscription.poll(element, interval)

	return subscription, nil
}

func (s *Subscription) poll(element Element, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			// unconditional: every tick reports, changed or not
			s.report(element.Height())
		}
	}
}

func (s *Subscription) report(height int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if err := s.parent.PostMessage(Message{PageHeight: height}, s.origin); err != nil {
		s.logger.Debug("could not post page height", "origin", s.origin, "err", err.Error())
	}
}

func (s *Subscription) Strategy() Strategy {
	return s.strategy
}

// Stop tears the notifier down. No report is delivered once Stop has returned.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		disconnect := s.disconnect
		s.mu.Unlock()

		close(s.quit)
		<-s.done
		if disconnect != nil {
			disconnect()
		}
	})
}
