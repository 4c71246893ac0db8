package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// LinkClassifier decides for every resolved link whether it is internal and
// whether it answers a HEAD probe.
type LinkClassifier struct {
	prober       Prober
	pool         workerPool
	probeTimeout time.Duration
	observer     Observer
}

// ClassifierConfig configures a LinkClassifier.
type ClassifierConfig struct {
	Workers      int
	ProbeTimeout time.Duration // upper bound for a single probe
	ProbeRPS     float64       // probe starts per second, 0 = unlimited
}

// NewLinkClassifier builds a classifier probing through p.
func NewLinkClassifier(p Prober, cfg ClassifierConfig, obs Observer) *LinkClassifier {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	var limiter *rate.Limiter
	if cfg.ProbeRPS > 0 {
		burst := int(cfg.ProbeRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ProbeRPS), burst)
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &LinkClassifier{
		prober:       p,
		pool:         newWorkerPool(cfg.Workers, limiter),
		probeTimeout: cfg.ProbeTimeout,
		observer:     obs,
	}
}

// Classify probes every link exactly once, concurrently, and returns one
// status per link in input order. If ctx ends first, the statuses gathered
// so far are dropped and ErrCanceled is returned. ErrDeadline means the
// probe rate limit could not fit every link before ctx's deadline.
func (c *LinkClassifier) Classify(ctx context.Context, links []ResolvedLink, baseOrigin string) ([]LinkStatus, error) {
	statuses := make([]LinkStatus, len(links))

	err := c.pool.run(ctx, len(links), func(ctx context.Context, i int) {
		link := links[i]

		probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
		res := c.prober.ProbeHead(probeCtx, link.URL)
		cancel()

		// Each job owns its slot; no locking needed.
		statuses[i] = LinkStatus{
			Link:       link,
			Internal:   IsInternal(link, baseOrigin),
			Reachable:  res.Reachable,
			StatusCode: res.StatusCode,
		}
		c.observer.LinkProbed(ctx, statuses[i], res.Err)
	})
	if errors.Is(err, ErrDeadline) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return statuses, nil
}

// IsInternal reports whether link points back at baseOrigin. Relative links
// are internal by construction; absolute ones match on host, or on the
// origin appearing anywhere in the original href.
func IsInternal(link ResolvedLink, baseOrigin string) bool {
	if link.Relative {
		return true
	}
	if baseOrigin == "" {
		return false
	}
	if u, err := url.Parse(link.URL); err == nil && strings.EqualFold(u.Host, baseOrigin) {
		return true
	}
	return strings.Contains(link.Href, baseOrigin)
}

// Summarize folds per-link statuses into page counts. total is the number
// of raw links on the page, empty hrefs included.
func Summarize(total int, statuses []LinkStatus) LinkCounts {
	counts := LinkCounts{Total: total}
	for _, s := range statuses {
		if s.Internal {
			counts.Internal++
		}
		if !s.Reachable {
			counts.Inaccessible++
		}
	}
	counts.External = counts.Total - counts.Internal
	return counts
}
