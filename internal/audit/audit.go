// Package audit writes one structured log line per CLI command recording the
// command, the config file in use and the settings that decide which models,
// index backend and stores a run talks to.
//
// Secrets are logged as presence only. URLs are logged without credentials.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// redaction says how a setting may appear in the log.
type redaction int

const (
	// plain values are logged as-is.
	plain redaction = iota
	// secret values are logged as "set" or "unset".
	secret
	// endpoint values are logged with any userinfo stripped.
	endpoint
)

// auditKeys is the ordered list of settings included in every audit line.
var auditKeys = []struct {
	key string
	how redaction
}{
	{"MODEL_PROVIDER", plain},
	{"OLLAMA_HOST", endpoint},
	{"OLLAMA_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"OPENAI_BASE_URL", endpoint},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", endpoint},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"MODEL_MAX_LENGTH", plain},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_ENDPOINT", endpoint},
	{"EMBEDDING_API_KEY", secret},
	{"SCOUT_MAX_URLS", plain},
	{"SCOUT_CHUNK_SIZE", plain},
	{"SCOUT_CHUNK_OVERLAP", plain},
	{"SCOUT_TOP_K", plain},
	{"SCOUT_MAX_CONTEXT_TOKENS", plain},
	{"SCOUT_FETCH_TIMEOUT", plain},
	{"SCOUT_SESSION_TTL", plain},
	{"SCOUT_INDEX_BACKEND", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_API_KEY", secret},
	{"SCOUT_HISTORY_DB", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_HOST", endpoint},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

var redactions = func() map[string]redaction {
	m := make(map[string]redaction, len(auditKeys))
	for _, e := range auditKeys {
		m[e.key] = e.how
	}
	return m
}()

// LogCommandStart emits the audit line for a starting command.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range auditKeys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the loggable form of value for the setting key:
// "set"/"unset" for secrets, a credential-free URL for endpoints, and the
// value itself (or "unset") otherwise. Unknown keys are treated as plain.
func SanitiseKey(key, value string) string {
	if value == "" {
		return "unset"
	}
	switch redactions[key] {
	case secret:
		return "set"
	case endpoint:
		return stripUserinfo(value)
	default:
		return value
	}
}

// stripUserinfo removes user:password@ from a URL. Values that do not parse
// as URLs with a host are returned unchanged.
func stripUserinfo(v string) string {
	u, err := url.Parse(v)
	if err != nil || u.Host == "" || u.User == nil {
		return v
	}
	u.User = nil
	return u.String()
}

// sanitiseConfigPath returns the config path with the home directory
// abbreviated, or "none".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if rel, err := filepath.Rel(home, p); err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) {
		return filepath.ToSlash(filepath.Join("~", rel))
	}
	return p
}
