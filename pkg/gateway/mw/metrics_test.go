package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vaani-ai/vaani/pkg/gateway/metrics"
)

func TestMetrics_RecordsKnownPath(t *testing.T) {
	m := metrics.New("mwtest")
	h := Metrics(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	mr := httptest.NewRecorder()
	m.Handler().ServeHTTP(mr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := mr.Body.String()
	if !strings.Contains(body, `path="/healthz"`) {
		t.Errorf("expected /healthz series, got:\n%s", body)
	}
	if !strings.Contains(body, `status="418"`) {
		t.Errorf("expected status label 418, got:\n%s", body)
	}
}

func TestMetrics_BucketsUnknownPaths(t *testing.T) {
	m := metrics.New("mwtest")
	h := Metrics(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, p := range []string{"/scan1", "/admin.php", "/v2/anything"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, p, nil))
	}

	mr := httptest.NewRecorder()
	m.Handler().ServeHTTP(mr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := mr.Body.String()
	if !strings.Contains(body, `path="other"`) {
		t.Errorf("expected unknown paths under one label, got:\n%s", body)
	}
	if strings.Contains(body, `path="/scan1"`) {
		t.Errorf("raw scan path leaked into labels:\n%s", body)
	}
}

func TestMetrics_NilMetricsPassesThrough(t *testing.T) {
	called := false
	h := Metrics(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !called {
		t.Fatal("next handler not called with nil metrics")
	}
}
