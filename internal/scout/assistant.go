// Package scout is the action boundary of Insight Scout. An Assistant runs
// the two user actions against a session: process (load, chunk, embed and
// index up to MaxURLs pages) and ask (retrieve and answer). Every failure is
// turned into an Outcome here; callers only render it.
package scout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/insight-scout/internal/answer"
	"github.com/54b3r/insight-scout/internal/ingestion"
	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/rag"
	"github.com/54b3r/insight-scout/internal/session"
	"github.com/54b3r/insight-scout/internal/store"
)

// Indexer builds an index from a batch of URLs.
type Indexer interface {
	Build(ctx context.Context, urls []string, progress func(msg string)) (*ingestion.Result, error)
}

// Retriever finds the chunks of an index most similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, idx rag.Index, query string, topK int) ([]rag.ScoredChunk, error)
}

// Generator answers a question from retrieved chunks.
type Generator interface {
	Answer(ctx context.Context, question string, chunks []rag.ScoredChunk) (*answer.Answer, error)
}

// Config holds the dependencies required to construct an Assistant.
type Config struct {
	// Indexer runs the process pipeline.
	Indexer Indexer

	// Retriever searches a session's index.
	Retriever Retriever

	// Generator produces answers.
	Generator Generator

	// History is the optional Q&A store. If nil, turns are not persisted.
	History store.HistoryStore

	// MaxURLs caps the URLs of one process action. Defaults to 3 if zero.
	MaxURLs int

	// TopK is the number of chunks retrieved per question. Defaults to 4 if
	// zero.
	TopK int

	// Registerer receives the action metrics. Defaults to a private registry.
	Registerer prometheus.Registerer
}

// Assistant runs process and ask actions. It holds no per-user state and is
// safe for concurrent use across sessions.
type Assistant struct {
	indexer   Indexer
	retriever Retriever
	generator Generator
	history   store.HistoryStore
	maxURLs   int
	topK      int
	metrics   *Metrics
}

// New constructs an Assistant from cfg.
func New(cfg *Config) (*Assistant, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("scout: config must not be nil")
	case cfg.Indexer == nil:
		return nil, fmt.Errorf("scout: Indexer must not be nil")
	case cfg.Retriever == nil:
		return nil, fmt.Errorf("scout: Retriever must not be nil")
	case cfg.Generator == nil:
		return nil, fmt.Errorf("scout: Generator must not be nil")
	}

	maxURLs := cfg.MaxURLs
	if maxURLs <= 0 {
		maxURLs = DefaultMaxURLs
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Assistant{
		indexer:   cfg.Indexer,
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		history:   cfg.History,
		maxURLs:   maxURLs,
		topK:      topK,
		metrics:   NewMetrics(reg),
	}, nil
}

// MaxURLs returns the per-action URL cap.
func (a *Assistant) MaxURLs() int { return a.maxURLs }

// CleanURLs trims every entry, drops empty ones and keeps at most limit.
func CleanURLs(urls []string, limit int) []string {
	out := make([]string, 0, min(len(urls), limit))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u == "" {
			continue
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Process loads urls into a fresh index and publishes it to st. On any
// failure st keeps whatever index it had.
func (a *Assistant) Process(ctx context.Context, st *session.State, urls []string) (out Outcome) {
	start := time.Now()
	log := logging.FromContext(ctx).With(slog.String("session", st.ID()))
	ctx = logging.WithLogger(ctx, log)
	defer func() { a.recordProcess(log, out, time.Since(start)) }()

	cleaned := CleanURLs(urls, a.maxURLs)
	if len(cleaned) == 0 {
		return warning(KindInputMissing, MsgNoURLs)
	}

	var steps []string
	progress := func(msg string) {
		steps = append(steps, msg)
		log.Info("process: "+msg, slog.Int("urls", len(cleaned)))
	}

	var res *ingestion.Result
	err := st.Process(ctx, func(ctx context.Context) (*session.Snapshot, error) {
		r, err := a.indexer.Build(ctx, cleaned, progress)
		if err != nil {
			return nil, &Error{Kind: processKind(err), Err: err}
		}
		res = r
		titles := make(map[string]string, len(r.Documents))
		for _, d := range r.Documents {
			if d.Title != "" {
				titles[d.SourceURL] = d.Title
			}
		}
		return &session.Snapshot{
			Index:     r.Index,
			Sources:   r.Sources(),
			Titles:    titles,
			Documents: len(r.Documents),
			Chunks:    len(r.Chunks),
		}, nil
	})
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindIndex
		}
		o := failure(kind, "Error: "+cause(err).Error())
		o.Steps = steps
		return o
	}

	sources := make([]ingestion.SourceInfo, len(res.Documents))
	for i, d := range res.Documents {
		sources[i] = ingestion.InferSource(d.SourceURL, d.Title)
	}
	return Outcome{
		Level:     LevelSuccess,
		Title:     TitleProcessed,
		Message:   fmt.Sprintf("Indexed %d chunks from %d documents.", len(res.Chunks), len(res.Documents)),
		Sources:   sources,
		Documents: len(res.Documents),
		Chunks:    len(res.Chunks),
		Steps:     steps,
	}
}

// Ask answers question from st's current index. The question is passed to
// the model as entered.
func (a *Assistant) Ask(ctx context.Context, st *session.State, question string) (out Outcome) {
	start := time.Now()
	log := logging.FromContext(ctx).With(slog.String("session", st.ID()))
	ctx = logging.WithLogger(ctx, log)
	defer func() { a.recordAsk(log, out, time.Since(start)) }()

	if strings.TrimSpace(question) == "" {
		return warning(KindInputMissing, MsgNoQuestion)
	}

	var (
		ans    *answer.Answer
		titles map[string]string
	)
	err := st.View(func(snap *session.Snapshot) error {
		chunks, err := a.retriever.Retrieve(ctx, snap.Index, question, a.topK)
		if err != nil {
			return &Error{Kind: KindInference, Err: err}
		}
		ans, err = a.generator.Answer(ctx, question, chunks)
		if err != nil {
			return &Error{Kind: KindInference, Err: err}
		}
		titles = snap.Titles
		return nil
	})
	switch {
	case errors.Is(err, session.ErrNotReady):
		return warning(KindNotReady, MsgNotReady)
	case err != nil:
		return failure(KindInference, "Error generating answer: "+cause(err).Error())
	}

	sources := make([]ingestion.SourceInfo, len(ans.Sources))
	for i, u := range ans.Sources {
		sources[i] = ingestion.InferSource(u, titles[u])
	}

	if a.history != nil {
		turn := store.Turn{Question: question, Answer: ans.Text, Sources: ans.Sources}
		if err := a.history.Append(ctx, st.ID(), turn); err != nil {
			log.Warn("history: failed to persist turn", slog.Any("error", err))
		}
	}

	return Outcome{
		Level:   LevelSuccess,
		Title:   TitleAnswer,
		Answer:  ans.Text,
		Sources: sources,
		Chunks:  len(ans.Chunks),
	}
}

// processKind maps a pipeline stage to the error kind shown to the user.
func processKind(err error) Kind {
	switch ingestion.StageOf(err) {
	case ingestion.StageLoad, ingestion.StageChunk:
		return KindFetch
	case ingestion.StageEmbed:
		return KindInference
	default:
		return KindIndex
	}
}

// cause strips the scout.Error wrapper so messages carry only the failure.
func cause(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}

func (a *Assistant) recordProcess(log *slog.Logger, o Outcome, d time.Duration) {
	label := outcomeLabel(o)
	a.metrics.processTotal.WithLabelValues(label).Inc()
	a.metrics.processDuration.WithLabelValues(label).Observe(d.Seconds())
	if o.OK() {
		a.metrics.indexedChunks.Observe(float64(o.Chunks))
	}
	logOutcome(log, "process", o, d)
}

func (a *Assistant) recordAsk(log *slog.Logger, o Outcome, d time.Duration) {
	label := outcomeLabel(o)
	a.metrics.askTotal.WithLabelValues(label).Inc()
	a.metrics.askDuration.WithLabelValues(label).Observe(d.Seconds())
	logOutcome(log, "ask", o, d)
}

func logOutcome(log *slog.Logger, action string, o Outcome, d time.Duration) {
	attrs := []any{
		slog.String("action", action),
		slog.String("level", string(o.Level)),
		slog.Duration("duration", d),
	}
	switch o.Level {
	case LevelSuccess:
		log.Info(action+": completed", append(attrs, slog.Int("chunks", o.Chunks))...)
	case LevelWarning:
		log.Warn(action+": rejected", append(attrs, slog.String("kind", string(o.Kind)))...)
	default:
		log.Error(action+": failed", append(attrs,
			slog.String("kind", string(o.Kind)),
			slog.String("error", o.Message),
		)...)
	}
}
