package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_nilReceiver(t *testing.T) {
	var m *Metrics
	m.IncRequests()
	m.ObserveFetch(ResultOK, 10)
	m.SetBufferedAhead("video", 2)
}

func TestMetrics_fetchAndGauges(t *testing.T) {
	m := New()
	m.ObserveFetch(ResultOK, 100)
	m.ObserveFetch(ResultError, 0)
	m.IncSeeks()

	body := scrape(t, m)
	for _, want := range []string{
		`player_fetch_requests_total{result="ok"} 1`,
		`player_fetch_requests_total{result="error"} 1`,
		`player_fetch_bytes_total 100`,
		`player_seeks_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in scrape:\n%s", want, body)
		}
	}
}

func TestRequestMiddleware_countsErrors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	body := scrape(t, m)
	if !strings.Contains(body, "player_api_requests_total 1") || !strings.Contains(body, "player_api_errors_total 1") {
		t.Errorf("unexpected scrape:\n%s", body)
	}
}
