package scout

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/insight-scout/internal/answer"
	"github.com/54b3r/insight-scout/internal/chunker"
	"github.com/54b3r/insight-scout/internal/ingestion"
	"github.com/54b3r/insight-scout/internal/rag"
	"github.com/54b3r/insight-scout/internal/session"
	"github.com/54b3r/insight-scout/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// pageLoader serves fixed documents keyed by URL.
type pageLoader struct {
	pages map[string]rag.Document
	err   error
	calls int
}

func (l *pageLoader) Load(_ context.Context, urls []string) ([]rag.Document, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	docs := make([]rag.Document, 0, len(urls))
	for _, u := range urls {
		d, ok := l.pages[u]
		if !ok {
			return nil, errors.New("ingestion: " + u + ": status 404")
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// wordEmbedder hashes words into a small bag-of-words vector so texts that
// share words score as similar.
type wordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 64)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
			v[h.Sum32()%64]++
		}
		out[i] = v
	}
	return out, nil
}

// echoModel answers with a fixed reply and records the prompt.
type echoModel struct {
	mu     sync.Mutex
	reply  string
	err    error
	calls  int
	prompt string
}

func (m *echoModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	m.prompt = in[len(in)-1].Content
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *echoModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("echoModel: streaming not supported")
}

// memHistory is an in-memory store.HistoryStore.
type memHistory struct {
	mu    sync.Mutex
	turns map[string][]store.Turn
}

func (h *memHistory) Append(_ context.Context, id string, t store.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.turns == nil {
		h.turns = map[string][]store.Turn{}
	}
	h.turns[id] = append(h.turns[id], t)
	return nil
}

func (h *memHistory) Recent(_ context.Context, id string, _ int) ([]store.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.turns[id], nil
}

func (h *memHistory) Forget(context.Context, string) error { return nil }
func (h *memHistory) Close() error                         { return nil }

// failingBuilder always fails to build an index.
type failingBuilder struct{}

func (failingBuilder) Build(context.Context, []rag.Chunk, [][]float32) (rag.Index, error) {
	return nil, errors.New("qdrant: create collection: unavailable")
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const (
	urlRates  = "https://news.example/markets/rate-hike-explained"
	urlCrops  = "https://farm.example/crops"
	urlTravel = "https://travel.example/trains"
)

type harness struct {
	assistant *Assistant
	loader    *pageLoader
	embedder  *wordEmbedder
	model     *echoModel
	history   *memHistory
	reg       *prometheus.Registry
}

func newHarness(t *testing.T, builder rag.IndexBuilder) *harness {
	t.Helper()
	h := &harness{
		loader: &pageLoader{pages: map[string]rag.Document{
			urlRates: {
				SourceURL: urlRates,
				Title:     "Why the central bank raised rates",
				Text:      "The central bank raised interest rates by half a point.\nInflation stayed high through the spring.\nMarkets expected the hike.",
			},
			urlCrops: {
				SourceURL: urlCrops,
				Text:      "Wheat harvests fell after a dry summer.\nFarmers planted more barley.",
			},
			urlTravel: {
				SourceURL: urlTravel,
				Text:      "Night trains returned to several routes.",
			},
		}},
		embedder: &wordEmbedder{},
		model:    &echoModel{reply: " The bank raised rates by half a point. "},
		history:  &memHistory{},
		reg:      prometheus.NewRegistry(),
	}
	if builder == nil {
		builder = rag.NewMemoryBuilder()
	}

	splitter, err := chunker.New(chunker.Config{Separator: "\n", ChunkSize: 80, ChunkOverlap: 20})
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	pipeline, err := ingestion.NewPipeline(h.loader, splitter, h.embedder, builder, ingestion.Config{})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	retriever, err := rag.NewRetriever(h.embedder, 0)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	answerer, err := answer.New(&answer.Config{ChatModel: h.model, MaxLength: 512})
	if err != nil {
		t.Fatalf("answer.New: %v", err)
	}
	h.assistant, err = New(&Config{
		Indexer:    pipeline,
		Retriever:  retriever,
		Generator:  answerer,
		History:    h.history,
		Registerer: h.reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestProcess_NoURLs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	st := session.NewState()

	for _, urls := range [][]string{nil, {}, {"", "  ", "\t"}} {
		got := h.assistant.Process(context.Background(), st, urls)
		if got.Level != LevelWarning || got.Kind != KindInputMissing || got.Message != MsgNoURLs {
			t.Errorf("Process(%q) = %+v, want input-missing warning", urls, got)
		}
	}
	if st.Info().Ready {
		t.Error("session must stay empty")
	}
	if h.loader.calls != 0 {
		t.Errorf("loader called %d times, want 0", h.loader.calls)
	}
	if v := counterValue(t, h.reg, "scout_process_total", string(KindInputMissing)); v != 3 {
		t.Errorf("scout_process_total{outcome=input_missing} = %v, want 3", v)
	}
}

func TestProcessThenAsk(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	st := session.NewState()

	got := h.assistant.Process(ctx, st, []string{" " + urlRates + " ", "", urlCrops})
	if !got.OK() {
		t.Fatalf("Process = %+v, want success", got)
	}
	if got.Documents != 2 || got.Chunks == 0 {
		t.Errorf("Documents=%d Chunks=%d", got.Documents, got.Chunks)
	}
	if len(got.Steps) != 3 || got.Steps[0] != "Fetching content from URLs..." {
		t.Errorf("Steps = %q", got.Steps)
	}
	if got.Sources[0].Label != "Why the central bank raised rates" || got.Sources[1].Label != "crops" {
		t.Errorf("Sources = %+v", got.Sources)
	}
	if info := st.Info(); !info.Ready || info.Chunks != got.Chunks {
		t.Errorf("Info = %+v", info)
	}

	question := "Why did the central bank raise interest rates?"
	ans := h.assistant.Ask(ctx, st, question)
	if !ans.OK() {
		t.Fatalf("Ask = %+v, want success", ans)
	}
	if ans.Title != TitleAnswer || ans.Answer != "The bank raised rates by half a point." {
		t.Errorf("Ask = %+v", ans)
	}
	if !strings.HasSuffix(h.model.prompt, " Question: "+question) {
		t.Errorf("prompt %q must end with the question", h.model.prompt)
	}
	if !strings.HasPrefix(h.model.prompt, "The central bank raised interest rates") {
		t.Errorf("prompt %q should lead with the best chunk", h.model.prompt)
	}
	if len(ans.Sources) == 0 || ans.Sources[0].URL != urlRates {
		t.Errorf("answer sources = %+v", ans.Sources)
	}

	turns, _ := h.history.Recent(ctx, st.ID(), 10)
	if len(turns) != 1 || turns[0].Question != question {
		t.Errorf("history = %+v", turns)
	}
	if v := counterValue(t, h.reg, "scout_ask_total", "ok"); v != 1 {
		t.Errorf("scout_ask_total{outcome=ok} = %v, want 1", v)
	}
}

func TestAsk_NotReady(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	got := h.assistant.Ask(context.Background(), session.NewState(), "anything?")
	if got.Level != LevelWarning || got.Kind != KindNotReady || got.Message != MsgNotReady {
		t.Errorf("Ask = %+v, want not-ready warning", got)
	}
	if h.model.calls != 0 || h.embedder.calls != 0 {
		t.Errorf("model calls=%d embedder calls=%d, want none", h.model.calls, h.embedder.calls)
	}
}

func TestProcess_LoadFailureKeepsPreviousIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		st := session.NewState()
		got := h.assistant.Process(ctx, st, []string{"https://missing.example/page"})
		if got.Level != LevelError || got.Kind != KindFetch {
			t.Fatalf("Process = %+v, want fetch failure", got)
		}
		if !strings.Contains(got.Message, "https://missing.example/page") {
			t.Errorf("message %q should describe the failure", got.Message)
		}
		if st.Info().Ready {
			t.Error("session must stay empty")
		}
	})

	t.Run("previous index", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		st := session.NewState()
		if got := h.assistant.Process(ctx, st, []string{urlRates}); !got.OK() {
			t.Fatalf("first Process = %+v", got)
		}
		before := st.Info()

		got := h.assistant.Process(ctx, st, []string{urlTravel, "https://missing.example/page"})
		if got.Kind != KindFetch {
			t.Fatalf("Process = %+v, want fetch failure", got)
		}
		after := st.Info()
		if after.Chunks != before.Chunks || after.Sources[0] != urlRates {
			t.Errorf("session changed after failure: before %+v after %+v", before, after)
		}
		if ans := h.assistant.Ask(ctx, st, "What did the bank do?"); !ans.OK() {
			t.Errorf("Ask after failed re-process = %+v", ans)
		}
	})

	t.Run("malformed url", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		h.loader.err = ingestion.ErrInvalidURL
		got := h.assistant.Process(ctx, session.NewState(), []string{"not a url"})
		if got.Kind != KindFetch || !strings.HasPrefix(got.Message, "Error: ") {
			t.Errorf("Process = %+v, want fetch failure", got)
		}
	})
}

func TestAsk_EmptyQuestion(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	st := session.NewState()
	if got := h.assistant.Process(ctx, st, []string{urlRates}); !got.OK() {
		t.Fatalf("Process = %+v", got)
	}
	embedCalls := h.embedder.calls

	for _, q := range []string{"", "   ", "\n"} {
		got := h.assistant.Ask(ctx, st, q)
		if got.Level != LevelWarning || got.Kind != KindInputMissing {
			t.Errorf("Ask(%q) = %+v, want input-missing warning", q, got)
		}
	}
	if h.embedder.calls != embedCalls || h.model.calls != 0 {
		t.Error("blank question must not retrieve or generate")
	}
}

// ---------------------------------------------------------------------------
// Failure kinds
// ---------------------------------------------------------------------------

func TestProcess_FailureKinds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("embedding", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		h.embedder.err = errors.New("embedder: ollama returned status 500")
		got := h.assistant.Process(ctx, session.NewState(), []string{urlRates})
		if got.Kind != KindInference {
			t.Errorf("Kind = %q, want %q", got.Kind, KindInference)
		}
		if !strings.Contains(got.Message, "status 500") {
			t.Errorf("message %q should carry the cause", got.Message)
		}
	})

	t.Run("index", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, failingBuilder{})
		got := h.assistant.Process(ctx, session.NewState(), []string{urlRates})
		if got.Kind != KindIndex {
			t.Errorf("Kind = %q, want %q", got.Kind, KindIndex)
		}
		if len(got.Steps) != 2 {
			t.Errorf("Steps = %q, want the steps reached before failing", got.Steps)
		}
	})
}

func TestAsk_GenerationFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	st := session.NewState()
	if got := h.assistant.Process(ctx, st, []string{urlRates}); !got.OK() {
		t.Fatalf("Process = %+v", got)
	}

	h.model.err = errors.New("context deadline exceeded")
	got := h.assistant.Ask(ctx, st, "What happened?")
	if got.Level != LevelError || got.Kind != KindInference {
		t.Fatalf("Ask = %+v, want inference failure", got)
	}
	if !strings.HasPrefix(got.Message, "Error generating answer: ") || !strings.Contains(got.Message, "deadline exceeded") {
		t.Errorf("Message = %q", got.Message)
	}
	if turns, _ := h.history.Recent(ctx, st.ID(), 10); len(turns) != 0 {
		t.Error("failed ask must not be persisted")
	}
}

func TestProcess_IdempotentReprocess(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	st := session.NewState()
	urls := []string{urlRates, urlCrops}

	first := h.assistant.Process(ctx, st, urls)
	second := h.assistant.Process(ctx, st, urls)
	if !first.OK() || !second.OK() {
		t.Fatalf("Process = %+v / %+v", first, second)
	}
	if first.Chunks != second.Chunks || first.Documents != second.Documents {
		t.Errorf("re-processing changed the result: %+v vs %+v", first, second)
	}
}

func TestProcess_CapsURLs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	got := h.assistant.Process(context.Background(), session.NewState(),
		[]string{urlRates, urlCrops, urlTravel, "https://fourth.example/ignored"})
	if !got.OK() {
		t.Fatalf("Process = %+v", got)
	}
	if got.Documents != 3 {
		t.Errorf("Documents = %d, want 3", got.Documents)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestCleanURLs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    []string
		limit int
		want  []string
	}{
		{"trims and drops empties", []string{" a ", "", "b"}, 3, []string{"a", "b"}},
		{"caps", []string{"a", "b", "c", "d"}, 3, []string{"a", "b", "c"}},
		{"nil", nil, 3, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := CleanURLs(tc.in, tc.limit)
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("CleanURLs = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	err := &Error{Kind: KindIndex, Err: errors.New("boom")}
	wrapped := errors.Join(errors.New("outer"), err)
	if KindOf(wrapped) != KindIndex {
		t.Errorf("KindOf = %q", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain error should have no kind")
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	if _, err := New(&Config{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
