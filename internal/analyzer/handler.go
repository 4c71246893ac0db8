package analyzer

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//go:embed templates/results.html
var templateFS embed.FS

type pageData struct {
	URL       string
	Report    *Report
	Headings  []headingRow
	Error     string
	RequestID string
}

type headingRow struct {
	Tag   string
	Count int
}

// Tmpl renders both the form and the results page. Tests may replace it.
var Tmpl = LoadTemplate()

// LoadTemplate parses the embedded results template.
func LoadTemplate() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/results.html"))
}

const requestIDHeader = "X-Request-ID"

// IndexHandler serves the empty analysis form.
func IndexHandler(log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if err := Tmpl.Execute(w, pageData{}); err != nil {
			log.WithError(err).Error("Template render failed")
		}
	}
}

// AnalyzeHandler answers GET /analyze?url=... (and the form POST) with a
// report, rendered as HTML or, on request, JSON.
//
// timeout bounds the whole analysis; 0 means only the client's own
// cancellation applies.
func AnalyzeHandler(svc Service, log *logrus.Logger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		rawURL := strings.TrimSpace(r.FormValue("url"))
		entry := log.WithFields(logrus.Fields{
			"request_id": requestID,
			"url":        rawURL,
		})
		asJSON := wantsJSON(r)

		if rawURL == "" {
			writeError(w, asJSON, http.StatusBadRequest, rawURL, requestID, "URL is required")
			return
		}
		if _, err := ParseTarget(rawURL); err != nil {
			writeError(w, asJSON, http.StatusBadRequest, rawURL, requestID, "Invalid URL format")
			return
		}

		entry.Info("Starting analysis")

		ctx := WithRequestID(r.Context(), requestID)
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		report, err := svc.Analyze(ctx, Request{URL: rawURL})
		switch {
		case errors.Is(err, ErrInvalidURL):
			writeError(w, asJSON, http.StatusBadRequest, rawURL, requestID, "Invalid URL format")
			return
		case errors.Is(err, ErrCanceled), errors.Is(err, ErrDeadline):
			entry.WithError(err).Warn("Analysis did not finish")
			writeError(w, asJSON, http.StatusGatewayTimeout, rawURL, requestID, "Analysis timed out")
			return
		case err != nil:
			entry.WithError(err).Error("Analysis failed")
			writeError(w, asJSON, http.StatusInternalServerError, rawURL, requestID, "Internal server error")
			return
		}

		if asJSON {
			writeJSON(w, http.StatusOK, report)
			return
		}

		data := pageData{
			URL:       rawURL,
			Report:    report,
			Headings:  headingRows(report.Headings),
			RequestID: requestID,
		}
		if err := Tmpl.Execute(w, data); err != nil {
			entry.WithError(err).Error("Template render failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeError(w http.ResponseWriter, asJSON bool, status int, rawURL, requestID, msg string) {
	if asJSON {
		writeJSON(w, status, map[string]string{"error": msg, "request_id": requestID})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = Tmpl.Execute(w, pageData{URL: rawURL, Error: msg, RequestID: requestID}) // already on an error path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func headingRows(headings map[string]int) []headingRow {
	if headings == nil {
		return nil
	}
	rows := make([]headingRow, 0, len(headingTags))
	for _, tag := range headingTags {
		rows = append(rows, headingRow{Tag: tag, Count: headings[tag]})
	}
	return rows
}
