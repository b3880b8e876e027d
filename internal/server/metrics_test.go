package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// gatherCounter returns the value of the counter name whose labels include
// every pair in want.
func gatherCounter(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metric
				}
			}
			return m.GetCounter().GetValue(), true
		}
	}
	return 0, false
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "scout_active_sessions") {
		t.Error("scout_active_sessions missing from /metrics")
	}
}

func Test_Metrics_RequestsCountedByPattern(t *testing.T) {
	t.Parallel()
	s, reg := newAPIServer(t, nil)
	c := &client{t: t, h: s.handler}

	c.do(http.MethodPost, "/api/ask", `{"question":"q"}`)
	c.do(http.MethodPost, "/api/ask", `{"question":"q"}`)

	v, ok := gatherCounter(t, reg, "scout_http_requests_total", map[string]string{
		"method":     http.MethodPost,
		labelHandler: "POST /api/ask",
		"code":       "409",
	})
	if !ok {
		t.Fatal(`scout_http_requests_total{handler="POST /api/ask",code="409"} not found`)
	}
	if v != 2 {
		t.Errorf("want counter=2, got %v", v)
	}
}

func Test_Metrics_UnmatchedRoute(t *testing.T) {
	t.Parallel()
	s, reg := newAPIServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/does/not/exist", nil)
	s.handler.ServeHTTP(httptest.NewRecorder(), req)

	if _, ok := gatherCounter(t, reg, "scout_http_requests_total", map[string]string{labelHandler: "unmatched"}); !ok {
		t.Error(`scout_http_requests_total{handler="unmatched"} not found`)
	}
}

func Test_Metrics_ActiveSessionsGauge(t *testing.T) {
	t.Parallel()
	s, reg := newAPIServer(t, nil)

	for range 2 {
		(&client{t: t, h: s.handler}).do(http.MethodPost, "/api/process", `{"urls":["https://a.example"]}`)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "scout_active_sessions" {
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 2 {
				t.Errorf("want active_sessions=2, got %v", v)
			}
			return
		}
	}
	t.Error("scout_active_sessions not found in gathered metrics")
}
