package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/rag"
)

var (
	// ErrInvalidURL is returned when a URL is malformed or not http(s).
	ErrInvalidURL = errors.New("invalid URL")

	// ErrNoContent is returned when a page yields no extractable text.
	ErrNoContent = errors.New("no extractable text")

	// ErrUnsupportedContent is returned for non-text responses.
	ErrUnsupportedContent = errors.New("unsupported content type")
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "insight-scout/1.0 (+article question answering)"
	defaultMaxBodyBytes = 10 << 20
)

// LoaderConfig holds the settings for fetching pages.
type LoaderConfig struct {
	// Timeout bounds each page fetch. Defaults to 30s if zero.
	Timeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// MaxBodyBytes caps the size of a fetched page. Defaults to 10 MiB.
	MaxBodyBytes int64

	// HTTPClient overrides the client used for fetching. Its Timeout is
	// replaced by Timeout when that is set.
	HTTPClient *http.Client
}

// Loader fetches URLs and extracts their readable text.
type Loader struct {
	// cfg holds the resolved loader configuration.
	cfg LoaderConfig

	// httpClient is the HTTP client used for fetching pages.
	httpClient *http.Client
}

// NewLoader constructs a Loader, applying defaults for zero fields.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	client := &http.Client{}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		client = &c
	}
	client.Timeout = cfg.Timeout
	return &Loader{cfg: cfg, httpClient: client}
}

// Load fetches every URL in order and returns one Document per URL. All URLs
// are validated before any network I/O. The first failure aborts the batch
// and no partial results are returned.
func (l *Loader) Load(ctx context.Context, urls []string) ([]rag.Document, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("ingestion: no URLs to load")
	}
	for _, u := range urls {
		if err := ValidateURL(u); err != nil {
			return nil, err
		}
	}

	log := logging.FromContext(ctx)
	docs := make([]rag.Document, 0, len(urls))
	for _, u := range urls {
		start := time.Now()
		doc, err := l.loadOne(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("ingestion: %s: %w", u, err)
		}
		log.Debug("ingestion: page loaded",
			slog.String("url", u),
			slog.String("title", doc.Title),
			slog.Int("chars", len(doc.Text)),
			slog.Duration("duration", time.Since(start)),
		)
		docs = append(docs, doc)
	}
	return docs, nil
}

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("ingestion: %q: %w: %v", raw, ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ingestion: %q: %w: scheme must be http or https", raw, ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("ingestion: %q: %w: missing host", raw, ErrInvalidURL)
	}
	return nil
}

// loadOne fetches one page and extracts its text.
func (l *Loader) loadOne(ctx context.Context, rawURL string) (rag.Document, error) {
	body, contentType, err := l.fetch(ctx, rawURL)
	if err != nil {
		return rag.Document{}, err
	}
	title, text, err := Extract(body, contentType)
	if err != nil {
		return rag.Document{}, err
	}
	return rag.Document{SourceURL: rawURL, Title: title, Text: text}, nil
}

// fetch retrieves the raw body and Content-Type of a URL.
func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, text/plain;q=0.9, text/*;q=0.8")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > l.cfg.MaxBodyBytes {
		return nil, "", fmt.Errorf("response body exceeds %d bytes", l.cfg.MaxBodyBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}

// Extract returns the title and plain text of body. HTML is reduced to its
// readable text; other text/* types are returned verbatim after decoding.
func Extract(body []byte, contentType string) (title, text string, err error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", "", fmt.Errorf("decoding %s body: %w", mediaType, err)
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		title, text, err = extractHTML(r)
		if err != nil {
			return "", "", fmt.Errorf("parsing html: %w", err)
		}
	case strings.HasPrefix(mediaType, "text/"):
		raw, err := io.ReadAll(r)
		if err != nil {
			return "", "", fmt.Errorf("reading text: %w", err)
		}
		text = normalizeLines(string(raw), false)
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}

	if strings.TrimSpace(text) == "" {
		return "", "", ErrNoContent
	}
	return title, text, nil
}

// skipped elements never contribute readable text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Iframe:   true,
	atom.Template: true,
	atom.Form:     true,
	atom.Button:   true,
}

// blocks start on a new line.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Main: true, atom.Aside: true,
	atom.Table: true, atom.Tr: true, atom.Pre: true, atom.Blockquote: true, atom.Hr: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figure: true, atom.Figcaption: true,
	atom.Body: true,
}

func extractHTML(r io.Reader) (title, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	title = findTitle(doc)

	var sb strings.Builder
	var walk func(n *html.Node, pre bool)
	walk = func(n *html.Node, pre bool) {
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Pre {
				pre = true
			}
			if blocks[n.DataAtom] {
				sb.WriteByte('\n')
			}
		}
		if n.Type == html.TextNode {
			if pre {
				sb.WriteString(n.Data)
			} else {
				sb.WriteString(strings.Map(flattenSpace, n.Data))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, pre)
		}
		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			sb.WriteByte('\n')
		}
	}
	walk(doc, false)

	return title, normalizeLines(sb.String(), true), nil
}

// flattenSpace turns line breaks and tabs outside <pre> into spaces.
func flattenSpace(r rune) rune {
	switch r {
	case '\n', '\r', '\t', '\f':
		return ' '
	}
	return r
}

// findTitle returns the whitespace-normalised text of the first <title>.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return strings.Join(strings.Fields(textOf(n)), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// textOf concatenates all text beneath n.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// normalizeLines unifies line endings, trims every line and drops blank
// lines. collapse also squeezes runs of spaces within a line.
func normalizeLines(s string, collapse bool) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if collapse {
			line = strings.Join(strings.Fields(line), " ")
		} else {
			line = strings.TrimSpace(line)
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
