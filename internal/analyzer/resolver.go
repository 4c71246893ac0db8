package analyzer

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkResolver turns a raw href into an absolute URL. ok is false for an
// empty href, which is counted but never resolved or probed.
type LinkResolver interface {
	Resolve(href, baseOrigin string) (link ResolvedLink, ok bool)
}

var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://`)

// StripResolver is the legacy resolution rule: trim leading and trailing
// dots and slashes, then either keep the href (it carries a scheme) or glue
// it onto the page origin.
//
// It does not implement real relative resolution. "../../x" and "./x" both
// become "<origin>/x", and the page path is ignored.
type StripResolver struct {
	// Scheme used for relative links. Defaults to https.
	Scheme string
}

func (r StripResolver) Resolve(href, baseOrigin string) (ResolvedLink, bool) {
	if href == "" {
		return ResolvedLink{}, false
	}

	stripped := strings.Trim(href, "./")
	if schemePrefix.MatchString(stripped) {
		return ResolvedLink{Href: href, URL: stripped}, true
	}

	scheme := r.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return ResolvedLink{
		Href:     href,
		URL:      scheme + "://" + baseOrigin + "/" + stripped,
		Relative: true,
	}, true
}

// ReferenceResolver resolves hrefs against the page URL per RFC 3986.
type ReferenceResolver struct {
	Base *url.URL
}

func (r ReferenceResolver) Resolve(href, baseOrigin string) (ResolvedLink, bool) {
	if href == "" {
		return ResolvedLink{}, false
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		// The probe will fail on it and count it inaccessible.
		return ResolvedLink{Href: href, URL: href}, true
	}

	base := r.Base
	if base == nil {
		base = &url.URL{Scheme: "https", Host: baseOrigin, Path: "/"}
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""

	return ResolvedLink{
		Href:     href,
		URL:      abs.String(),
		Relative: !ref.IsAbs() && ref.Host == "",
	}, true
}
