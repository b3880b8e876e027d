package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/insight-scout/internal/answer"
	"github.com/54b3r/insight-scout/internal/chunker"
	"github.com/54b3r/insight-scout/internal/embedder"
	"github.com/54b3r/insight-scout/internal/ingestion"
	"github.com/54b3r/insight-scout/internal/provider"
	"github.com/54b3r/insight-scout/internal/rag"
	"github.com/54b3r/insight-scout/internal/scout"
	"github.com/54b3r/insight-scout/internal/server"
	"github.com/54b3r/insight-scout/internal/store"
	"github.com/54b3r/insight-scout/internal/tracing"
)

// app holds the components built once at start-up.
type app struct {
	settings    scout.Settings
	assistant   *scout.Assistant
	chatModel   model.BaseChatModel
	providerCfg *provider.Config
	embedder    rag.Embedder
	qdrant      *rag.QdrantBuilder
	history     store.HistoryStore
	closers     []func()
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// history opens the Q&A store unless SCOUT_HISTORY_DB disables it.
	history bool
	// registerer receives the action metrics. Nil uses a private registry.
	registerer prometheus.Registerer
}

// buildApp wires the models, pipeline and assistant from the environment.
// The caller must call close on the result.
func buildApp(ctx context.Context, log *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.settings, err = scout.SettingsFromEnv()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, tracing.Install(log))

	a.chatModel, a.providerCfg, err = provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(a.providerCfg.Backend)),
		slog.String("model", a.providerCfg.Model()),
	)

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	a.embedder, err = embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", embedder.Backend()),
		slog.Int("default_dimensions", embedder.DefaultDimensions(embedder.Backend())),
	)

	builder, err := a.indexBuilder(log)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.New(a.settings.Chunk)
	if err != nil {
		return nil, err
	}
	pipeline, err := ingestion.NewPipeline(newLoader(a.settings), splitter, a.embedder, builder,
		ingestion.Config{EmbedBatchSize: a.settings.EmbedBatchSize})
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(a.embedder, a.settings.TopK)
	if err != nil {
		return nil, err
	}
	answerer, err := answer.New(&answer.Config{
		ChatModel:        a.chatModel,
		MaxLength:        a.providerCfg.GenerationLimit(),
		MaxContextTokens: a.settings.MaxContextTokens,
	})
	if err != nil {
		return nil, err
	}

	if opts.history {
		a.history = openHistory(a.settings.HistoryDB, log)
		if a.history != nil {
			hs := a.history
			a.closers = append(a.closers, func() { _ = hs.Close() })
		}
	}

	a.assistant, err = scout.New(&scout.Config{
		Indexer:    pipeline,
		Retriever:  retriever,
		Generator:  answerer,
		History:    a.history,
		MaxURLs:    a.settings.MaxURLs,
		TopK:       a.settings.TopK,
		Registerer: opts.registerer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise assistant: %w", err)
	}
	return a, nil
}

// indexBuilder returns the configured index backend.
func (a *app) indexBuilder(log *slog.Logger) (rag.IndexBuilder, error) {
	if a.settings.IndexBackend != scout.BackendQdrant {
		log.Info("index backend", slog.String("backend", scout.BackendMemory))
		return rag.NewMemoryBuilder(), nil
	}
	qb, err := rag.NewQdrantBuilder(a.settings.Qdrant)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	a.qdrant = qb
	a.closers = append(a.closers, func() { _ = qb.Close() })
	log.Info("index backend",
		slog.String("backend", scout.BackendQdrant),
		slog.String("host", a.settings.Qdrant.Host),
		slog.Int("port", a.settings.Qdrant.Port),
	)
	return qb, nil
}

// close releases everything buildApp opened, in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// pingers returns the readiness probes for the configured backends.
func (a *app) pingers() []server.Pinger {
	hc := a.providerCfg.HealthCheck(&http.Client{Timeout: 5 * time.Second})
	ps := []server.Pinger{
		server.NewLLMPinger(a.chatModel, hc, string(a.providerCfg.Backend)),
		server.NewEmbedderPinger(a.embedder, "embedder:"+embedder.Backend()),
	}
	if a.qdrant != nil {
		ps = append(ps, a.qdrant)
	}
	return ps
}

func newLoader(s scout.Settings) *ingestion.Loader {
	return ingestion.NewLoader(ingestion.LoaderConfig{
		Timeout:   s.FetchTimeout,
		UserAgent: s.UserAgent,
	})
}

// openHistory opens the Q&A store. SCOUT_HISTORY_DB overrides the default
// path (~/.scout/history.db); "disabled" turns it off. Failures disable
// history rather than aborting start-up.
func openHistory(path string, log *slog.Logger) store.HistoryStore {
	if path == scout.HistoryDisabled {
		log.Info("history: disabled via SCOUT_HISTORY_DB=disabled")
		return nil
	}
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	hs, err := store.Open(path)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", path))
	return hs
}
