package scout

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/insight-scout/internal/chunker"
	"github.com/54b3r/insight-scout/internal/ingestion"
	"github.com/54b3r/insight-scout/internal/rag"
	"github.com/54b3r/insight-scout/internal/session"
	"github.com/54b3r/insight-scout/internal/version"
)

const (
	// DefaultMaxURLs is how many URLs one process action accepts.
	DefaultMaxURLs = 3
	// DefaultFetchTimeout bounds each page fetch.
	DefaultFetchTimeout = 30 * time.Second

	// BackendMemory selects the in-process brute-force index.
	BackendMemory = "memory"
	// BackendQdrant selects per-build Qdrant collections.
	BackendQdrant = "qdrant"

	// HistoryDisabled turns the Q&A history store off when used as HistoryDB.
	HistoryDisabled = "disabled"
)

// Settings are the Insight Scout options resolved once at start-up. Model
// and embedding backends are configured by their own packages.
type Settings struct {
	// MaxURLs caps the URLs of one process action.
	MaxURLs int

	// TopK is the number of chunks retrieved per question.
	TopK int

	// Chunk configures the splitter.
	Chunk chunker.Config

	// EmbedBatchSize is the number of chunks per embedding request.
	EmbedBatchSize int

	// IndexBackend is BackendMemory or BackendQdrant.
	IndexBackend string

	// Qdrant is used when IndexBackend is BackendQdrant.
	Qdrant rag.QdrantConfig

	// FetchTimeout bounds each page fetch.
	FetchTimeout time.Duration

	// UserAgent is sent with every page fetch.
	UserAgent string

	// MaxContextTokens is the optional prompt budget. Zero disables it.
	MaxContextTokens int

	// SessionTTL evicts idle web sessions.
	SessionTTL time.Duration

	// HistoryDB is the SQLite path of the Q&A history. Empty uses the default
	// location; HistoryDisabled turns history off.
	HistoryDB string
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxURLs:        DefaultMaxURLs,
		TopK:           rag.DefaultTopK,
		Chunk:          chunker.DefaultConfig(),
		EmbedBatchSize: ingestion.DefaultEmbedBatchSize,
		IndexBackend:   BackendMemory,
		FetchTimeout:   DefaultFetchTimeout,
		UserAgent:      "insight-scout/" + version.Version,
		SessionTTL:     session.DefaultTTL,
	}
}

// SettingsFromEnv reads Settings from environment variables, falling back to
// DefaultSettings for anything unset. Malformed values are errors.
func SettingsFromEnv() (Settings, error) {
	s := DefaultSettings()
	var errs []string
	intVar := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	durVar := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	intVar("SCOUT_MAX_URLS", &s.MaxURLs)
	intVar("SCOUT_TOP_K", &s.TopK)
	intVar("SCOUT_CHUNK_SIZE", &s.Chunk.ChunkSize)
	intVar("SCOUT_CHUNK_OVERLAP", &s.Chunk.ChunkOverlap)
	intVar("SCOUT_EMBED_BATCH_SIZE", &s.EmbedBatchSize)
	intVar("SCOUT_MAX_CONTEXT_TOKENS", &s.MaxContextTokens)
	intVar("QDRANT_PORT", &s.Qdrant.Port)
	durVar("SCOUT_FETCH_TIMEOUT", &s.FetchTimeout)
	durVar("SCOUT_SESSION_TTL", &s.SessionTTL)

	if v, ok := os.LookupEnv("SCOUT_CHUNK_SEPARATOR"); ok && v != "" {
		sep, err := unescape(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("SCOUT_CHUNK_SEPARATOR=%q: %v", v, err))
		} else {
			s.Chunk.Separator = sep
		}
	}
	if v := os.Getenv("SCOUT_INDEX_BACKEND"); v != "" {
		s.IndexBackend = strings.ToLower(v)
	}
	if v := os.Getenv("SCOUT_USER_AGENT"); v != "" {
		s.UserAgent = v
	}
	s.HistoryDB = os.Getenv("SCOUT_HISTORY_DB")

	s.Qdrant.Host = os.Getenv("QDRANT_HOST")
	s.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")
	s.Qdrant.CollectionPrefix = os.Getenv("QDRANT_COLLECTION_PREFIX")
	if v := os.Getenv("QDRANT_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("QDRANT_TLS=%q is not a boolean", v))
		}
		s.Qdrant.UseTLS = b
	}

	if len(errs) > 0 {
		return Settings{}, fmt.Errorf("scout: invalid settings: %s", strings.Join(errs, "; "))
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	if s.MaxURLs <= 0 {
		return fmt.Errorf("scout: SCOUT_MAX_URLS must be positive, got %d", s.MaxURLs)
	}
	if s.TopK <= 0 {
		return fmt.Errorf("scout: SCOUT_TOP_K must be positive, got %d", s.TopK)
	}
	if s.EmbedBatchSize <= 0 {
		return fmt.Errorf("scout: SCOUT_EMBED_BATCH_SIZE must be positive, got %d", s.EmbedBatchSize)
	}
	if s.MaxContextTokens < 0 {
		return fmt.Errorf("scout: SCOUT_MAX_CONTEXT_TOKENS must not be negative, got %d", s.MaxContextTokens)
	}
	if s.FetchTimeout <= 0 {
		return fmt.Errorf("scout: SCOUT_FETCH_TIMEOUT must be positive, got %s", s.FetchTimeout)
	}
	switch s.IndexBackend {
	case BackendMemory, BackendQdrant:
	default:
		return fmt.Errorf("scout: unsupported SCOUT_INDEX_BACKEND %q (supported: %s, %s)",
			s.IndexBackend, BackendMemory, BackendQdrant)
	}
	if _, err := chunker.New(s.Chunk); err != nil {
		return fmt.Errorf("scout: %w", err)
	}
	return nil
}

// unescape reverses the Go-escaping config files use for separators, so
// `\n` in an env var means a newline.
func unescape(v string) (string, error) {
	if !strings.Contains(v, `\`) {
		return v, nil
	}
	return strconv.Unquote(`"` + strings.ReplaceAll(v, `"`, `\"`) + `"`)
}
