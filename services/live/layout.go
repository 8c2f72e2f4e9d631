package live

import (
	"sync"

	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/viewport"
)

const (
	searchBoxHeight   = 64
	statsLineHeight   = 28
	hitHeight         = 88
	hitDetailHeight   = 22
	paginationHeight  = 48
	emptyStateHeight  = 40
	facetHeaderHeight = 32
	facetValueHeight  = 24
)

// EstimateHeight approximates the pixel height of a rendered view for clients that cannot
// measure it themselves.
func EstimateHeight(view search.View) int {
	height := searchBoxHeight
	for _, facet := range view.Facets {
		height += facetHeaderHeight + len(facet.Values)*facetValueHeight
	}

	switch view.State {
	case search.StateEmpty:
		height += emptyStateHeight
	case search.StatePopulated:
		height += statsLineHeight
		for _, hit := range view.Hits {
			height += hitHeight
			if hit.Description != "" {
				height += hitDetailHeight
			}
			if hit.Category != "" {
				height += hitDetailHeight
			}
			if len(hit.MatchedFields) > 0 || hit.NoHighlights {
				height += hitDetailHeight
			}
		}
		if view.Pagination != nil && view.Pagination.TotalPages > 1 {
			height += paginationHeight
		}
	}
	return height
}

// content is the session's observed element. A client-reported height wins over the
// estimate of the last rendered view.
type content struct {
	mu       sync.Mutex
	estimate int
	reported int
	onResize func(height int)
}

func newContent() *content {
	return &content{estimate: searchBoxHeight}
}

func (c *content) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reported > 0 {
		return c.reported
	}
	return c.estimate
}

func (c *content) setEstimate(height int) {
	c.mu.Lock()
	c.estimate = height
	c.mu.Unlock()
}

func (c *content) report(height int) {
	c.mu.Lock()
	c.reported = height
	callback := c.onResize
	c.mu.Unlock()
	if callback != nil {
		callback(height)
	}
}

func (c *content) observe(onResize func(height int)) func() {
	c.mu.Lock()
	c.onResize = onResize
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.onResize = nil
		c.mu.Unlock()
	}
}

// observedContent exposes content as a viewport.Observable for clients with a native
// resize observer.
type observedContent struct {
	*content
}

func (o observedContent) Observe(onResize func(height int)) func() {
	return o.content.observe(onResize)
}

var (
	_ viewport.Element    = (*content)(nil)
	_ viewport.Observable = observedContent{}
)
