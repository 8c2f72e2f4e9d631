package search

import (
	"context"
	"sync"
)

type Ticket uint64

// Tracker keeps the presentation state of one session and applies last-query-wins: only
// the result of the most recently issued ticket may change it.
type Tracker struct {
	mu         sync.Mutex
	policy     DisplayPolicy
	generation Ticket
	cancel     context.CancelFunc
	lastQuery  Query
	result     QueryResult
	state      PresentationState
}

func NewTracker(policy DisplayPolicy) *Tracker {
	result := SyntheticResult()
	return &Tracker{
		policy: policy,
		result: result,
		state:  policy.Resolve("", result),
	}
}

// Begin issues a new ticket. The previous ticket's context is cancelled; its result, if it
// still arrives, is discarded.
func (t *Tracker) Begin(parent context.Context) (Ticket, context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	t.generation++
	t.cancel = cancel
	return t.generation, ctx
}

// Complete stores result as the session's state when ticket is still current. ok is false
// for a stale ticket, which leaves the state untouched.
func (t *Tracker) Complete(ticket Ticket, query Query, result QueryResult) (state PresentationState, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ticket != t.generation {
		return t.state, false
	}
	t.release()
	t.lastQuery = query
	t.result = result
	t.state = t.policy.Resolve(query.Text, result)
	return t.state, true
}

// Fail reports whether a failed ticket was current. The last known state is kept either way.
func (t *Tracker) Fail(ticket Ticket, _ error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ticket != t.generation {
		return false
	}
	t.release()
	return true
}

// IsCurrent reports whether no later ticket has been issued since ticket.
func (t *Tracker) IsCurrent(ticket Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ticket == t.generation
}

func (t *Tracker) Current() (Query, QueryResult, PresentationState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastQuery, t.result, t.state
}

// Close cancels the in-flight query, if any, and invalidates every issued ticket.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release()
	t.generation++
}

func (t *Tracker) release() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
