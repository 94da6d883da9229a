package models

// ErrorResponse is the body returned on any failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DetectResponse is the response for POST /api/detect-wordpress.
type DetectResponse struct {
	URL          string       `json:"url"`
	IsWordPress  bool         `json:"is_wordpress"`
	Version      string       `json:"version,omitempty"`
	Theme        string       `json:"theme,omitempty"`
	Plugins      []string     `json:"plugins,omitempty"`
	Technologies []Technology `json:"technologies"`
}

// StyleResponse is the response for POST /api/get-style.
type StyleResponse struct {
	URL      string            `json:"url"`
	Selector string            `json:"selector"`
	Styles   map[string]string `json:"styles"`
}

// BoundingBox is the element geometry returned by the visibility probe.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// VisibleResponse is the response for POST /api/is-visible.
type VisibleResponse struct {
	URL      string       `json:"url"`
	Selector string       `json:"selector"`
	Visible  bool         `json:"visible"`
	Box      *BoundingBox `json:"box,omitempty"`
}

// SessionStats reports the state of the browser session pool.
type SessionStats struct {
	MaxSessions    int `json:"max_sessions"`
	ActiveSessions int `json:"active_sessions"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string       `json:"status"` // "healthy" or "degraded"
	Uptime   string       `json:"uptime"`
	Sessions SessionStats `json:"sessions"`
	Version  string       `json:"version"`
}
