package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// test template that prints either the error or a compact summary of fields
const testTpl = `{{if .Error}}ERR: {{.Error}}{{else if .Report}}URL={{.URL}}|HTML={{.Report.HTMLVersion}}|Title={{.Report.Title}}|HasLogin={{.Report.HasLoginForm}}|Links={{.Report.Links.Total}}{{else}}FORM{{end}}`

// serviceFunc adapts a function to the Service interface.
type serviceFunc func(ctx context.Context, req Request) (*Report, error)

func (f serviceFunc) Analyze(ctx context.Context, req Request) (*Report, error) { return f(ctx, req) }

func useTestTemplate(t *testing.T) {
	t.Helper()
	orig := Tmpl
	// Override the global template to make output deterministic in tests.
	Tmpl = template.Must(template.New("test").Parse(testTpl))
	t.Cleanup(func() { Tmpl = orig })
}

func formRequest(method, rawURL string) *http.Request {
	if method == http.MethodGet {
		return httptest.NewRequest(method, "/analyze?url="+url.QueryEscape(rawURL), nil)
	}
	req := httptest.NewRequest(method, "/analyze", strings.NewReader("url="+url.QueryEscape(rawURL)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAnalyzeHandler(t *testing.T) {
	useTestTemplate(t)

	logger, _ := test.NewNullLogger()
	var gotURL string
	svc := serviceFunc(func(ctx context.Context, req Request) (*Report, error) {
		gotURL = req.URL
		if RequestIDFromContext(ctx) == "" {
			return nil, errors.New("request id missing from context")
		}
		return &Report{
			URL:          req.URL,
			Reachable:    true,
			StatusCode:   200,
			StatusText:   "OK",
			Title:        "Demo Page",
			HTMLVersion:  "HTML5",
			Headings:     map[string]int{"h1": 1, "h2": 0, "h3": 0, "h4": 0, "h5": 0, "h6": 0},
			Links:        LinkCounts{Total: 2, Internal: 1, External: 1},
			HasLoginForm: true,
		}, nil
	})
	h := AnalyzeHandler(svc, logger, time.Minute)

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/analyze", nil)
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rr.Code)
		}
		if allow := rr.Header().Get("Allow"); allow != "GET, POST" {
			t.Fatalf("expected Allow header, got %q", allow)
		}
	})

	t.Run("missing URL", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(""))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if got := rr.Body.String(); !strings.Contains(got, "ERR: URL is required") {
			t.Fatalf("expected error message, got: %q", got)
		}
	})

	t.Run("invalid URL format", func(t *testing.T) {
		for _, raw := range []string{"not-a-url", "ftp://example.com/", "http://"} {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, formRequest(http.MethodPost, raw))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("%s: expected 400, got %d", raw, rr.Code)
			}
			if got := rr.Body.String(); !strings.Contains(got, "ERR: Invalid URL format") {
				t.Fatalf("%s: expected invalid URL error, got: %q", raw, got)
			}
		}
	})

	t.Run("happy path renders data via template", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, formRequest(http.MethodPost, "  https://example.com  "))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d; body: %s", rr.Code, rr.Body.String())
		}
		want := "URL=https://example.com|HTML=HTML5|Title=Demo Page|HasLogin=true|Links=2"
		if got := rr.Body.String(); got != want {
			t.Fatalf("expected %q, got: %q", want, got)
		}
		if gotURL != "https://example.com" {
			t.Fatalf("expected trimmed URL to reach the service, got %q", gotURL)
		}
	})

	t.Run("GET query works like the form", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, formRequest(http.MethodGet, "https://example.com/a?b=c"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if gotURL != "https://example.com/a?b=c" {
			t.Fatalf("unexpected URL %q", gotURL)
		}
	})

	t.Run("JSON on request", func(t *testing.T) {
		for _, req := range []*http.Request{
			httptest.NewRequest(http.MethodGet, "/analyze?format=json&url="+url.QueryEscape("https://example.com"), nil),
			func() *http.Request {
				r := formRequest(http.MethodGet, "https://example.com")
				r.Header.Set("Accept", "application/json")
				return r
			}(),
		} {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected JSON content type, got %q", ct)
			}
			var report Report
			if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if report.Title != "Demo Page" || report.Links.Total != 2 || !report.HasLoginForm {
				t.Fatalf("unexpected report: %+v", report)
			}
		}
	})

	t.Run("JSON errors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analyze?format=json", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != "URL is required" || body["request_id"] != "abc-123" {
			t.Fatalf("unexpected error body: %v", body)
		}
	})

	t.Run("request id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, formRequest(http.MethodGet, "https://example.com"))
		if rr.Header().Get(requestIDHeader) == "" {
			t.Fatal("expected a generated request id")
		}

		req := formRequest(http.MethodGet, "https://example.com")
		req.Header.Set(requestIDHeader, "from-client")
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get(requestIDHeader); got != "from-client" {
			t.Fatalf("expected client request id echoed, got %q", got)
		}
	})
}

func TestAnalyzeHandlerErrors(t *testing.T) {
	useTestTemplate(t)

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"invalid", fmt.Errorf("%w: unsupported scheme", ErrInvalidURL), http.StatusBadRequest, "Invalid URL format"},
		{"canceled", fmt.Errorf("%w: %w", ErrCanceled, context.DeadlineExceeded), http.StatusGatewayTimeout, "Analysis timed out"},
		{"deadline", fmt.Errorf("%w: rate: Wait(n=1) would exceed context deadline", ErrDeadline), http.StatusGatewayTimeout, "Analysis timed out"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			h := AnalyzeHandler(serviceFunc(func(context.Context, Request) (*Report, error) {
				return nil, tc.err
			}), logger, 0)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, formRequest(http.MethodPost, "https://example.com"))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if got := rr.Body.String(); !strings.Contains(got, "ERR: "+tc.msg) {
				t.Fatalf("expected %q, got: %q", tc.msg, got)
			}
			if tc.status == http.StatusInternalServerError {
				if last := hook.LastEntry(); last == nil || last.Level != logrus.ErrorLevel {
					t.Fatalf("expected the failure to be logged at error level")
				}
			}
		})
	}
}

func TestAnalyzeHandlerTimeout(t *testing.T) {
	useTestTemplate(t)

	logger, _ := test.NewNullLogger()
	h := AnalyzeHandler(serviceFunc(func(ctx context.Context, _ Request) (*Report, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}), logger, 20*time.Millisecond)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, formRequest(http.MethodGet, "https://example.com"))

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rr.Code)
	}
}

func TestAnalyzeHandlerEndToEnd(t *testing.T) {
	html := `<!doctype html>
<html>
<head><title>Demo Page</title></head>
<body>
<h1>Hi</h1>
<form action="/login"><input type="text" name="user"><input type="password" name="pw"></form>
<a href="/rel">rel</a>
</body></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(html))
	}))
	defer ts.Close()

	a, err := NewAnalyzer(Options{RelativeScheme: "http"})
	if err != nil {
		t.Fatal(err)
	}
	logger, _ := test.NewNullLogger()
	h := AnalyzeHandler(a, logger, 10*time.Second)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, formRequest(http.MethodPost, ts.URL))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rr.Code, rr.Body.String())
	}
	out := rr.Body.String()
	for _, want := range []string{"Demo Page", "HTML5", ts.URL} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in render, got: %q", want, out)
		}
	}
}

func TestIndexHandler(t *testing.T) {
	useTestTemplate(t)
	logger, _ := test.NewNullLogger()
	h := IndexHandler(logger)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "FORM" {
		t.Fatalf("expected form, got %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %q", rr.Code, rr.Body.String())
	}
}

func TestEmbeddedTemplate(t *testing.T) {
	tmpl := LoadTemplate()
	var b strings.Builder
	err := tmpl.Execute(&b, pageData{
		URL: "https://example.com",
		Report: &Report{
			Reachable:   true,
			StatusCode:  200,
			StatusText:  "OK",
			Title:       "T",
			HTMLVersion: "HTML5",
			Headings:    map[string]int{"h1": 2},
		},
		Headings:  headingRows(map[string]int{"h1": 2}),
		RequestID: "rid",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(b.String(), "HTML5") {
		t.Fatalf("expected report fields in output")
	}
}
