package live

const (
	typeHello  = "hello"
	typeQuery  = "query"
	typeHeight = "height"

	typeReady  = "ready"
	typeState  = "state"
	typeError  = "error"
	typeResize = "resize"
)

// inbound is every message a client may send; Type selects which fields matter.
type inbound struct {
	Type string `json:"type"`

	// hello
	Origin         string `json:"origin,omitempty"`
	ResizeObserver bool   `json:"resizeObserver,omitempty"`

	// query
	Query       string              `json:"query,omitempty"`
	Page        int                 `json:"page,omitempty"`
	HitsPerPage int                 `json:"hitsPerPage,omitempty"`
	Sort        string              `json:"sort,omitempty"`
	Refinements map[string][]string `json:"refinements,omitempty"`
	ShowMore    bool                `json:"showMore,omitempty"`

	// height
	Height int `json:"height,omitempty"`
}

type readyMessage struct {
	Type     string `json:"type"`
	Session  string `json:"session"`
	Strategy string `json:"strategy"`
}

type stateMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	State     string `json:"state"`
	Query     string `json:"query"`
	Page      int    `json:"page"`
	TotalHits int    `json:"totalHits"`
	HTML      string `json:"html"`
}

type errorMessage struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	Error         string `json:"error"`
	NotConfigured bool   `json:"notConfigured,omitempty"`
}

type resizeMessage struct {
	Type         string `json:"type"`
	PageHeight   int    `json:"pageHeight"`
	TargetOrigin string `json:"targetOrigin"`
}
