package analyzer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer receives diagnostics from an analysis. The core never logs or
// records metrics itself; everything goes through here.
//
// Methods may be called from several goroutines at once.
type Observer interface {
	PageFetched(ctx context.Context, res FetchResult)
	PageParsed(ctx context.Context, url string, page PageStructure)
	LinkProbed(ctx context.Context, status LinkStatus, err error)
	AnalysisFinished(ctx context.Context, url string, report *Report, err error, elapsed time.Duration)
	CacheLookup(ctx context.Context, key string, hit bool, err error)
	CacheStored(ctx context.Context, key string, err error)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) PageFetched(context.Context, FetchResult) {}
func (NopObserver) PageParsed(context.Context, string, PageStructure) {}
func (NopObserver) LinkProbed(context.Context, LinkStatus, error) {}
func (NopObserver) AnalysisFinished(context.Context, string, *Report, error, time.Duration) {}
func (NopObserver) CacheLookup(context.Context, string, bool, error) {}
func (NopObserver) CacheStored(context.Context, string, error) {}

// Observers fans every event out to each member.
type Observers []Observer

func (o Observers) PageFetched(ctx context.Context, res FetchResult) {
	for _, obs := range o {
		obs.PageFetched(ctx, res)
	}
}

func (o Observers) PageParsed(ctx context.Context, url string, page PageStructure) {
	for _, obs := range o {
		obs.PageParsed(ctx, url, page)
	}
}

func (o Observers) LinkProbed(ctx context.Context, status LinkStatus, err error) {
	for _, obs := range o {
		obs.LinkProbed(ctx, status, err)
	}
}

func (o Observers) AnalysisFinished(ctx context.Context, url string, report *Report, err error, elapsed time.Duration) {
	for _, obs := range o {
		obs.AnalysisFinished(ctx, url, report, err, elapsed)
	}
}

func (o Observers) CacheLookup(ctx context.Context, key string, hit bool, err error) {
	for _, obs := range o {
		obs.CacheLookup(ctx, key, hit, err)
	}
}

func (o Observers) CacheStored(ctx context.Context, key string, err error) {
	for _, obs := range o {
		obs.CacheStored(ctx, key, err)
	}
}

// LogObserver writes events to a logrus logger.
type LogObserver struct {
	Log *logrus.Logger
}

func (l LogObserver) entry(ctx context.Context) *logrus.Entry {
	e := l.Log.WithContext(ctx)
	if id := RequestIDFromContext(ctx); id != "" {
		e = e.WithField("request_id", id)
	}
	return e
}

func (l LogObserver) PageFetched(ctx context.Context, res FetchResult) {
	e := l.entry(ctx).WithFields(logrus.Fields{
		"url":         res.URL,
		"status":      res.StatusCode,
		"status_text": res.StatusText,
		"reachable":   res.Reachable,
		"bytes":       len(res.Body),
	})
	if res.Err != nil {
		e.WithError(res.Err).Warn("Page fetch failed")
		return
	}
	e.Info("Page fetched")
}

func (l LogObserver) PageParsed(ctx context.Context, url string, page PageStructure) {
	l.entry(ctx).WithFields(logrus.Fields{
		"url":        url,
		"title":      page.Title,
		"doctype":    HTMLVersion(page.DocType),
		"headings":   page.Headings,
		"links":      len(page.RawLinks),
		"login_form": page.HasLoginForm,
	}).Debug("Page parsed")
}

func (l LogObserver) LinkProbed(ctx context.Context, status LinkStatus, err error) {
	e := l.entry(ctx).WithFields(logrus.Fields{
		"href":      status.Link.Href,
		"link":      status.Link.URL,
		"relative":  status.Link.Relative,
		"internal":  status.Internal,
		"status":    status.StatusCode,
		"reachable": status.Reachable,
	})
	if err != nil {
		e = e.WithError(err)
	}
	e.Debug("Link probed")
}

func (l LogObserver) AnalysisFinished(ctx context.Context, url string, report *Report, err error, elapsed time.Duration) {
	e := l.entry(ctx).WithFields(logrus.Fields{
		"url":      url,
		"duration": elapsed,
	})
	if err != nil {
		e.WithError(err).Warn("Analysis failed")
		return
	}
	e.WithFields(logrus.Fields{
		"reachable":          report.Reachable,
		"status":             report.StatusCode,
		"total_links":        report.Links.Total,
		"internal_links":     report.Links.Internal,
		"external_links":     report.Links.External,
		"inaccessible_links": report.Links.Inaccessible,
	}).Info("Analysis complete")
}

func (l LogObserver) CacheLookup(ctx context.Context, key string, hit bool, err error) {
	e := l.entry(ctx).WithFields(logrus.Fields{"key": key, "hit": hit})
	if err != nil {
		e.WithError(err).Warn("Cache unavailable, analyzing without it")
		return
	}
	e.Debug("Cache lookup")
}

func (l LogObserver) CacheStored(ctx context.Context, key string, err error) {
	e := l.entry(ctx).WithField("key", key)
	if err != nil {
		e.WithError(err).Warn("Storing report in cache failed")
		return
	}
	e.Debug("Report cached")
}

type requestIDKey struct{}

// WithRequestID tags ctx with a request id for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
