package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/insight-scout/internal/rag"
	"github.com/54b3r/insight-scout/internal/scout"
	"github.com/54b3r/insight-scout/internal/session"
	"github.com/54b3r/insight-scout/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// stubIndex is an empty rag.Index.
type stubIndex struct{}

func (stubIndex) Search(context.Context, []float32, int) ([]rag.ScoredChunk, error) { return nil, nil }
func (stubIndex) Len() int                                                          { return 1 }
func (stubIndex) Close(context.Context) error                                       { return nil }

// fakeActions mimics the Assistant's outcome rules without any backend.
type fakeActions struct {
	history store.HistoryStore
}

func (f *fakeActions) MaxURLs() int { return 3 }

func (f *fakeActions) Process(ctx context.Context, st *session.State, urls []string) scout.Outcome {
	urls = scout.CleanURLs(urls, 3)
	switch {
	case len(urls) == 0:
		return scout.Outcome{Level: scout.LevelWarning, Kind: scout.KindInputMissing, Message: scout.MsgNoURLs}
	case urls[0] == "https://broken.example":
		return scout.Outcome{Level: scout.LevelError, Kind: scout.KindFetch, Message: "Error: status 404"}
	case urls[0] == "https://index-down.example":
		return scout.Outcome{Level: scout.LevelError, Kind: scout.KindIndex, Message: "Error: qdrant unavailable"}
	}
	_ = st.Replace(ctx, &session.Snapshot{Index: stubIndex{}, Sources: urls, Documents: len(urls), Chunks: 2 * len(urls)})
	return scout.Outcome{Level: scout.LevelSuccess, Title: scout.TitleProcessed, Documents: len(urls), Chunks: 2 * len(urls)}
}

func (f *fakeActions) Ask(ctx context.Context, st *session.State, q string) scout.Outcome {
	if strings.TrimSpace(q) == "" {
		return scout.Outcome{Level: scout.LevelWarning, Kind: scout.KindInputMissing, Message: scout.MsgNoQuestion}
	}
	var sources []string
	err := st.View(func(s *session.Snapshot) error {
		sources = s.Sources
		return nil
	})
	if err != nil {
		return scout.Outcome{Level: scout.LevelWarning, Kind: scout.KindNotReady, Message: scout.MsgNotReady}
	}
	if q == "explode" {
		return scout.Outcome{Level: scout.LevelError, Kind: scout.KindInference, Message: "Error generating answer: boom"}
	}
	if f.history != nil {
		_ = f.history.Append(ctx, st.ID(), store.Turn{Question: q, Answer: "answer: " + q, Sources: sources})
	}
	return scout.Outcome{Level: scout.LevelSuccess, Title: scout.TitleAnswer, Answer: "answer: " + q}
}

// memHistory is an in-memory store.HistoryStore.
type memHistory struct {
	turns map[string][]store.Turn
}

func (h *memHistory) Append(_ context.Context, id string, t store.Turn) error {
	h.turns[id] = append(h.turns[id], t)
	return nil
}
func (h *memHistory) Recent(_ context.Context, id string, _ int) ([]store.Turn, error) {
	return h.turns[id], nil
}
func (h *memHistory) Forget(_ context.Context, id string) error {
	delete(h.turns, id)
	return nil
}
func (h *memHistory) Close() error { return nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newTestServer builds a bare *Server for handler-level tests.
func newTestServer() *Server {
	return &Server{cfg: &Config{}, log: slog.Default()}
}

// newAPIServer builds a fully wired Server around fakeActions.
func newAPIServer(t *testing.T, history store.HistoryStore) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(&fakeActions{history: history}, &Config{
		Logger:          discardLogger(),
		History:         history,
		RateLimit:       1000,
		RateBurst:       1000,
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.close)
	return s, reg
}

// client is a cookie-carrying caller of the wrapped handler.
type client struct {
	t       *testing.T
	h       http.Handler
	cookies []*http.Cookie
}

func (c *client) do(method, path, body string) (*httptest.ResponseRecorder, scout.Outcome) {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}

	var o scout.Outcome
	if strings.HasPrefix(path, "/api/process") || strings.HasPrefix(path, "/api/ask") {
		if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
			c.t.Fatalf("%s %s: body is not an Outcome: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, o
}

// ---------------------------------------------------------------------------
// POST /api/process and /api/ask
// ---------------------------------------------------------------------------

func TestAPI_StatusCodes(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, nil)

	tests := []struct {
		name     string
		setup    []string
		path     string
		body     string
		wantCode int
		wantKind scout.Kind
	}{
		{"no urls", nil, "/api/process", `{"urls":["",""]}`, http.StatusBadRequest, scout.KindInputMissing},
		{"fetch failure", nil, "/api/process", `{"urls":["https://broken.example"]}`, http.StatusBadGateway, scout.KindFetch},
		{"index failure", nil, "/api/process", `{"urls":["https://index-down.example"]}`, http.StatusBadGateway, scout.KindIndex},
		{"process ok", nil, "/api/process", `{"urls":["https://a.example"]}`, http.StatusOK, ""},
		{"ask before process", nil, "/api/ask", `{"question":"why?"}`, http.StatusConflict, scout.KindNotReady},
		{"blank question", []string{`{"urls":["https://a.example"]}`}, "/api/ask", `{"question":"  "}`, http.StatusBadRequest, scout.KindInputMissing},
		{"generation failure", []string{`{"urls":["https://a.example"]}`}, "/api/ask", `{"question":"explode"}`, http.StatusBadGateway, scout.KindInference},
		{"ask ok", []string{`{"urls":["https://a.example"]}`}, "/api/ask", `{"question":"why?"}`, http.StatusOK, ""},
		{"bad json", nil, "/api/process", `{"urls":`, http.StatusBadRequest, scout.KindInputMissing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := &client{t: t, h: s.handler}
			for _, body := range tc.setup {
				if w, _ := c.do(http.MethodPost, "/api/process", body); w.Code != http.StatusOK {
					t.Fatalf("setup process: %d", w.Code)
				}
			}
			w, o := c.do(http.MethodPost, tc.path, tc.body)
			if w.Code != tc.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.wantCode, w.Body.String())
			}
			if o.Kind != tc.wantKind {
				t.Errorf("kind = %q, want %q", o.Kind, tc.wantKind)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestAPI_SessionsAreIsolated(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, nil)
	alice := &client{t: t, h: s.handler}
	bob := &client{t: t, h: s.handler}

	if w, _ := alice.do(http.MethodPost, "/api/process", `{"urls":["https://a.example"]}`); w.Code != http.StatusOK {
		t.Fatalf("alice process: %d", w.Code)
	}
	if len(alice.cookies) != 1 || alice.cookies[0].Name != sessionCookie || !alice.cookies[0].HttpOnly {
		t.Fatalf("session cookie = %+v", alice.cookies)
	}

	if w, o := alice.do(http.MethodPost, "/api/ask", `{"question":"q"}`); w.Code != http.StatusOK || o.Title != scout.TitleAnswer {
		t.Errorf("alice ask: %d %+v", w.Code, o)
	}
	if w, o := bob.do(http.MethodPost, "/api/ask", `{"question":"q"}`); w.Code != http.StatusConflict || o.Message != scout.MsgNotReady {
		t.Errorf("bob must not see alice's index: %d %+v", w.Code, o)
	}
}

func TestAPI_SessionInfo(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, nil)
	c := &client{t: t, h: s.handler}

	w, _ := c.do(http.MethodGet, "/api/session", "")
	var info session.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Ready || len(c.cookies) != 0 {
		t.Errorf("GET /api/session must not create a session: %+v cookies=%v", info, c.cookies)
	}

	c.do(http.MethodPost, "/api/process", `{"urls":["https://a.example","https://b.example"]}`)
	w, _ = c.do(http.MethodGet, "/api/session", "")
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !info.Ready || info.Chunks != 4 || len(info.Sources) != 2 {
		t.Errorf("info = %+v", info)
	}
}

func TestAPI_History(t *testing.T) {
	t.Parallel()
	h := &memHistory{turns: map[string][]store.Turn{}}
	s, _ := newAPIServer(t, h)
	c := &client{t: t, h: s.handler}

	c.do(http.MethodPost, "/api/process", `{"urls":["https://a.example"]}`)
	c.do(http.MethodPost, "/api/ask", `{"question":"first"}`)
	c.do(http.MethodPost, "/api/ask", `{"question":"second"}`)

	w, _ := c.do(http.MethodGet, "/api/history", "")
	var resp historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Enabled || len(resp.Turns) != 2 || resp.Turns[1].Question != "second" {
		t.Errorf("history = %+v", resp)
	}
}

func TestAPI_HistoryDisabled(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, nil)
	w, _ := (&client{t: t, h: s.handler}).do(http.MethodGet, "/api/history", "")

	var resp historyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Enabled || resp.Turns == nil || len(resp.Turns) != 0 {
		t.Errorf("history = %+v, want disabled with empty turns", resp)
	}
}

// ---------------------------------------------------------------------------
// GET /
// ---------------------------------------------------------------------------

func TestHandleIndex_RendersPage(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, nil)
	w, _ := (&client{t: t, h: s.handler}).do(http.MethodGet, "/", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Process URLs", "Get Answer", `id="url-3"`, "What's this app about?"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, `id="url-4"`) {
		t.Error("page renders more URL fields than allowed")
	}
}

func TestUnknownPath_NotFound(t *testing.T) {
	t.Parallel()
	s, _ := newAPIServer(t, nil)
	w, _ := (&client{t: t, h: s.handler}).do(http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		o    scout.Outcome
		want int
	}{
		{scout.Outcome{Level: scout.LevelSuccess}, http.StatusOK},
		{scout.Outcome{Level: scout.LevelWarning, Kind: scout.KindInputMissing}, http.StatusBadRequest},
		{scout.Outcome{Level: scout.LevelWarning, Kind: scout.KindNotReady}, http.StatusConflict},
		{scout.Outcome{Level: scout.LevelError, Kind: scout.KindFetch}, http.StatusBadGateway},
		{scout.Outcome{Level: scout.LevelError, Kind: scout.KindInference}, http.StatusBadGateway},
		{scout.Outcome{Level: scout.LevelError, Kind: scout.KindIndex}, http.StatusBadGateway},
	}
	for _, tc := range tests {
		if got := statusFor(tc.o); got != tc.want {
			t.Errorf("statusFor(%+v) = %d, want %d", tc.o, got, tc.want)
		}
	}
}
