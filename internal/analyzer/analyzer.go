package analyzer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Service analyzes a webpage. *Analyzer and *CachedService implement it.
type Service interface {
	Analyze(ctx context.Context, req Request) (*Report, error)
}

// PageFetcher downloads the analyzed page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) FetchResult
}

// Parser extracts the structure of an HTML document.
type Parser interface {
	Parse(body []byte, contentType string) PageStructure
}

// ResolverKind selects how raw hrefs are turned into absolute URLs.
type ResolverKind string

const (
	// ResolverStrip trims dots and slashes and appends to the origin.
	ResolverStrip ResolverKind = "strip"
	// ResolverRFC3986 resolves against the page URL like a browser.
	ResolverRFC3986 ResolverKind = "rfc3986"
)

// Options assembles an Analyzer. Zero fields get defaults.
type Options struct {
	Fetcher PageFetcher // default: NewFetcher(FetcherConfig{})
	Prober  Prober      // default: Fetcher, when it can probe
	Parser  Parser      // default: PageParser{}

	Resolver       ResolverKind
	RelativeScheme string // scheme for ResolverStrip, default https

	Classifier ClassifierConfig
	Observer   Observer
}

// Analyzer runs the fetch → parse → classify pipeline for one URL at a time.
// It holds no per-request state and is safe for concurrent use.
type Analyzer struct {
	fetcher        PageFetcher
	parser         Parser
	classifier     *LinkClassifier
	resolver       ResolverKind
	relativeScheme string
	observer       Observer
}

// NewAnalyzer wires the pipeline components.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.Fetcher == nil {
		opts.Fetcher = NewFetcher(FetcherConfig{})
	}
	if opts.Prober == nil {
		p, ok := opts.Fetcher.(Prober)
		if !ok {
			return nil, fmt.Errorf("fetcher %T cannot probe links and no prober given", opts.Fetcher)
		}
		opts.Prober = p
	}
	if opts.Parser == nil {
		opts.Parser = PageParser{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	switch opts.Resolver {
	case "":
		opts.Resolver = ResolverStrip
	case ResolverStrip, ResolverRFC3986:
	default:
		return nil, fmt.Errorf("unknown link resolver %q", opts.Resolver)
	}
	if opts.Classifier.ProbeTimeout <= 0 {
		if f, ok := opts.Prober.(*Fetcher); ok {
			opts.Classifier.ProbeTimeout = f.ProbeTimeout()
		}
	}

	return &Analyzer{
		fetcher:        opts.Fetcher,
		parser:         opts.Parser,
		classifier:     NewLinkClassifier(opts.Prober, opts.Classifier, opts.Observer),
		resolver:       opts.Resolver,
		relativeScheme: opts.RelativeScheme,
		observer:       opts.Observer,
	}, nil
}

// Analyze fetches req.URL and reports on it.
//
// An unreachable page is a normal outcome: the report has Reachable=false
// and only status fields set. Errors are returned only for an invalid URL
// (ErrInvalidURL), when ctx ends first (ErrCanceled) or when the probe rate
// limit cannot finish before ctx's deadline (ErrDeadline).
func (a *Analyzer) Analyze(ctx context.Context, req Request) (report *Report, err error) {
	start := time.Now()
	defer func() {
		a.observer.AnalysisFinished(ctx, req.URL, report, err, time.Since(start))
	}()

	target, err := ParseTarget(req.URL)
	if err != nil {
		return nil, err
	}

	// Fetching
	res := a.fetcher.Fetch(ctx, target.String())
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: fetching page: %w", ErrCanceled, ctx.Err())
	}
	a.observer.PageFetched(ctx, res)

	report = &Report{
		URL:        req.URL,
		Reachable:  res.Reachable,
		StatusCode: res.StatusCode,
		StatusText: res.StatusText,
	}
	if !res.Reachable {
		return report, nil
	}

	// Parsing
	page := a.parser.Parse(res.Body, res.ContentType)
	a.observer.PageParsed(ctx, req.URL, page)

	// LinkAnalysis
	baseOrigin := target.Host
	resolver := a.resolverFor(target)
	links := make([]ResolvedLink, 0, len(page.RawLinks))
	for _, href := range page.RawLinks {
		if link, ok := resolver.Resolve(href, baseOrigin); ok {
			links = append(links, link)
		}
	}

	statuses, err := a.classifier.Classify(ctx, links, baseOrigin)
	if err != nil {
		return nil, err
	}

	// Complete
	report.Title = page.Title
	report.HTMLVersion = HTMLVersion(page.DocType)
	report.Headings = page.Headings
	report.Links = Summarize(len(page.RawLinks), statuses)
	report.HasLoginForm = page.HasLoginForm
	return report, nil
}

func (a *Analyzer) resolverFor(target *url.URL) LinkResolver {
	if a.resolver == ResolverRFC3986 {
		return ReferenceResolver{Base: target}
	}
	return StripResolver{Scheme: a.relativeScheme}
}

// ParseTarget validates a caller supplied URL: it must be absolute, use
// http or https and name a host.
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}
