package server

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/version"
)

//go:embed ui/index.html
var uiFS embed.FS

// pageTemplate renders the single-page web UI.
var pageTemplate = template.Must(template.ParseFS(uiFS, "ui/index.html"))

// About is the "What's this app about?" text shown on the page and in the
// CLI help.
const About = `Insight Scout answers questions about the articles you give it.
Paste up to three article links and press "Process URLs": each page is
fetched, its text is split into overlapping chunks and every chunk is
embedded into a search index kept for your session. Then ask a question and
press "Get Answer": the passages closest to your question are handed to a
language model together with the question, and its answer is shown with the
articles it drew on. Processing new links replaces the previous index.`

// pageData is the template input for the web UI.
type pageData struct {
	// URLFields numbers the URL inputs, one per allowed URL.
	URLFields []int
	// About is the help text.
	About string
	// Version is the running build version.
	Version string
}

// handleIndex serves the web UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	fields := make([]int, s.assistant.MaxURLs())
	for i := range fields {
		fields[i] = i + 1
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageData{URLFields: fields, About: About, Version: version.Version}); err != nil {
		logging.FromContext(r.Context()).Error("render page", slog.Any("error", err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
