package analyzer

// Request is the immutable input of one analysis.
type Request struct {
	URL string
}

// Report holds everything we learn about a webpage.
//
// For an unreachable page only URL, Reachable, StatusCode and StatusText are
// populated; Headings is nil and all link counts are zero.
type Report struct {
	URL          string         `json:"url"`
	Reachable    bool           `json:"reachable"`
	StatusCode   int            `json:"status_code"`
	StatusText   string         `json:"status_text"`
	Title        string         `json:"title,omitempty"`
	HTMLVersion  string         `json:"html_version,omitempty"`
	Headings     map[string]int `json:"headings,omitempty"` // "h1".."h6" → count
	Links        LinkCounts     `json:"links"`
	HasLoginForm bool           `json:"has_login_form"`
}

// LinkCounts breaks down the <a href> links found on a page.
type LinkCounts struct {
	Total        int `json:"total"`
	Internal     int `json:"internal"`     // relative paths or same origin
	External     int `json:"external"`     // always Total - Internal
	Inaccessible int `json:"inaccessible"` // probe failed or returned >= 400
}

// ResolvedLink is a non-empty raw href turned into an absolute URL.
type ResolvedLink struct {
	Href     string
	URL      string
	Relative bool
}

// LinkStatus is the outcome of classifying and probing one link.
type LinkStatus struct {
	Link       ResolvedLink
	Internal   bool
	Reachable  bool
	StatusCode int
}

// headingTags lists the heading levels in order.
var headingTags = [...]string{"h1", "h2", "h3", "h4", "h5", "h6"}
