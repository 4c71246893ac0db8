package analyzer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultProbeTimeout = 5 * time.Second
	defaultMaxBodyBytes = 5 << 20
	defaultUserAgent    = "url-analyzer/1.0"
)

// FetcherConfig tunes the HTTP side of an analysis.
type FetcherConfig struct {
	FetchTimeout time.Duration // whole GET of the analyzed page
	ProbeTimeout time.Duration // one HEAD probe
	MaxBodyBytes int64
	UserAgent    string

	// Client replaces the default client when set. Its CheckRedirect is
	// ignored for probes, which never follow redirects.
	Client *http.Client
}

// FetchResult is the outcome of fetching the analyzed page.
//
// Transport failures never surface as errors: they come back with
// Reachable=false, StatusCode=0 and a diagnostic StatusText. Err keeps the
// underlying cause for logging.
type FetchResult struct {
	URL         string
	StatusCode  int
	StatusText  string
	ContentType string
	Body        []byte
	Reachable   bool
	Err         error
}

// ProbeResult is the outcome of a HEAD liveness check.
type ProbeResult struct {
	StatusCode int
	Reachable  bool
	Err        error
}

// Prober checks whether a link is alive.
type Prober interface {
	ProbeHead(ctx context.Context, url string) ProbeResult
}

// Fetcher issues the GET for the page and HEAD probes for its links. It is
// safe for concurrent use; all requests share one connection pool.
type Fetcher struct {
	client       *http.Client
	probeClient  *http.Client
	fetchTimeout time.Duration
	probeTimeout time.Duration
	maxBodyBytes int64
	userAgent    string
}

// NewFetcher builds a Fetcher, filling unset config fields with defaults.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: newTransport()}
	}

	// Same transport, but stop at the first response: a redirect means the
	// link answered, which is all a probe wants to know.
	probeClient := &http.Client{
		Transport: client.Transport,
		Jar:       client.Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Fetcher{
		client:       client,
		probeClient:  probeClient,
		fetchTimeout: cfg.FetchTimeout,
		probeTimeout: cfg.ProbeTimeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		userAgent:    cfg.UserAgent,
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ProbeTimeout reports the per-probe deadline.
func (f *Fetcher) ProbeTimeout() time.Duration { return f.probeTimeout }

// Fetch downloads the page at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) FetchResult {
	result := FetchResult{URL: url}

	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	req, err := f.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return transportFailure(result, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return transportFailure(result, err)
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.StatusText = statusText(resp)
	result.ContentType = resp.Header.Get("Content-Type")

	if resp.StatusCode >= 400 {
		// Body is irrelevant for an error page; drain a little so the
		// connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return transportFailure(result, fmt.Errorf("read body: %w", err))
	}
	result.Body = body
	result.Reachable = true
	return result
}

// ProbeHead issues a HEAD request for url. Any failure to get an answer
// counts as not reachable.
func (f *Fetcher) ProbeHead(ctx context.Context, url string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	req, err := f.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return ProbeResult{Err: err}
	}

	resp, err := f.probeClient.Do(req)
	if err != nil {
		return ProbeResult{Err: err}
	}
	resp.Body.Close()

	return ProbeResult{
		StatusCode: resp.StatusCode,
		Reachable:  resp.StatusCode < 400,
	}
}

func (f *Fetcher) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	return req, nil
}

func transportFailure(result FetchResult, err error) FetchResult {
	result.StatusCode = 0
	result.StatusText = err.Error()
	result.Reachable = false
	result.Body = nil
	result.Err = err
	return result
}

// statusText returns the reason phrase, e.g. "Not Found".
func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	// "599 Custom Reason" → "Custom Reason"
	if _, reason, ok := strings.Cut(resp.Status, " "); ok {
		return reason
	}
	return resp.Status
}
