// Package chunker splits document text into bounded, overlapping chunks on a
// separator boundary. Splitting is pure and deterministic.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/54b3r/insight-scout/internal/rag"
)

const (
	// DefaultSeparator splits text into lines.
	DefaultSeparator = "\n"
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the target overlap between consecutive chunks.
	DefaultChunkOverlap = 200
)

// ErrInvalidConfig is returned by New for unusable size or overlap settings.
var ErrInvalidConfig = errors.New("chunker: invalid configuration")

// Config controls how text is split. Lengths are counted in characters
// (runes), not bytes.
type Config struct {
	// Separator is the boundary text is split on. Empty splits per character.
	Separator string

	// ChunkSize is the maximum length of a chunk.
	ChunkSize int

	// ChunkOverlap is the maximum length shared by consecutive chunks.
	ChunkOverlap int
}

// DefaultConfig returns the line-based 1000/200 configuration.
func DefaultConfig() Config {
	return Config{
		Separator:    DefaultSeparator,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Span is a chunk's position in the text it was cut from. Text equals
// source[Start:End].
type Span struct {
	Text  string
	Start int
	End   int
}

// Splitter splits text according to a validated Config.
type Splitter struct {
	cfg Config
}

// New validates cfg and returns a Splitter.
func New(cfg Config) (*Splitter, error) {
	switch {
	case cfg.ChunkSize <= 0:
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidConfig, cfg.ChunkSize)
	case cfg.ChunkOverlap < 0:
		return nil, fmt.Errorf("%w: chunk overlap %d must not be negative", ErrInvalidConfig, cfg.ChunkOverlap)
	case cfg.ChunkOverlap >= cfg.ChunkSize:
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrInvalidConfig, cfg.ChunkOverlap, cfg.ChunkSize)
	}
	return &Splitter{cfg: cfg}, nil
}

// Config returns the splitter's configuration.
func (s *Splitter) Config() Config { return s.cfg }

// Split chunks every document, preserving document order. DocIndex refers to
// the position of the source document in docs.
func (s *Splitter) Split(docs []rag.Document) []rag.Chunk {
	var out []rag.Chunk
	for d, doc := range docs {
		for pos, sp := range s.SplitText(doc.Text) {
			out = append(out, rag.Chunk{
				ID:       ChunkID(doc.SourceURL, pos),
				Text:     sp.Text,
				Source:   doc.SourceURL,
				DocIndex: d,
				Position: pos,
				Start:    sp.Start,
				End:      sp.End,
			})
		}
	}
	return out
}

// SplitText cuts text into spans of at most ChunkSize characters.
//
// The text is broken into separator-delimited pieces; pieces longer than
// ChunkSize are cut on character boundaries. Pieces are merged greedily into
// a window while the covered text fits. The next window starts at the
// earliest piece of the current one whose tail is within ChunkOverlap and
// that still leaves room for the following piece.
func (s *Splitter) SplitText(text string) []Span {
	pieces := s.pieces(text)
	if len(pieces) == 0 {
		return nil
	}

	// runes[b] is the number of runes before byte offset b.
	runes := make([]int, len(text)+1)
	n := 0
	for b := range text {
		runes[b] = n
		n++
	}
	runes[len(text)] = n
	span := func(i, j int) int { return runes[pieces[j].end] - runes[pieces[i].start] }

	var out []Span
	for i := 0; i < len(pieces); {
		j := i
		for j+1 < len(pieces) && span(i, j+1) <= s.cfg.ChunkSize {
			j++
		}
		if sp, ok := trimmed(text, pieces[i].start, pieces[j].end); ok {
			out = append(out, sp)
		}
		if j == len(pieces)-1 {
			break
		}

		next := j + 1
		for k := i + 1; k <= j; k++ {
			if span(k, j) <= s.cfg.ChunkOverlap && span(k, j+1) <= s.cfg.ChunkSize {
				next = k
				break
			}
		}
		i = next
	}
	return out
}

type piece struct{ start, end int }

// pieces returns the non-empty separator-delimited byte ranges of text, with
// oversized ranges cut into ChunkSize-rune parts.
func (s *Splitter) pieces(text string) []piece {
	var out []piece
	add := func(start, end int) {
		for start < end {
			cut, count := start, 0
			for cut < end && count < s.cfg.ChunkSize {
				_, w := utf8.DecodeRuneInString(text[cut:])
				cut += w
				count++
			}
			out = append(out, piece{start, cut})
			start = cut
		}
	}

	sep := s.cfg.Separator
	if sep == "" {
		for b, r := range text {
			add(b, b+utf8.RuneLen(r))
		}
		return out
	}

	start := 0
	for {
		idx := strings.Index(text[start:], sep)
		if idx < 0 {
			add(start, len(text))
			return out
		}
		add(start, start+idx)
		start += idx + len(sep)
	}
}

// trimmed returns text[start:end] without surrounding whitespace, with the
// offsets narrowed to match. ok is false when nothing but whitespace remains.
func trimmed(text string, start, end int) (Span, bool) {
	s := text[start:end]
	left := len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
	s = strings.TrimSpace(s)
	if s == "" {
		return Span{}, false
	}
	return Span{Text: s, Start: start + left, End: start + left + len(s)}, true
}

// Join reassembles a document from its chunks in order, dropping the text
// consecutive chunks share and inserting sep where they do not touch.
//
// The result equals the source only for normalised text: pieces separated by
// exactly one sep with no surrounding whitespace, as the loader produces.
// Otherwise runs of separators collapse to one and trimmed whitespace is lost.
func Join(chunks []rag.Chunk, sep string) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(chunks[0].Text)
	cursor := chunks[0].End
	for _, c := range chunks[1:] {
		switch {
		case c.End <= cursor:
			continue
		case c.Start <= cursor:
			sb.WriteString(c.Text[cursor-c.Start:])
		default:
			sb.WriteString(sep)
			sb.WriteString(c.Text)
		}
		cursor = c.End
	}
	return sb.String()
}

// ChunkID derives a stable identifier from a source URL and chunk position.
func ChunkID(source string, position int) string {
	sum := sha256.Sum256([]byte(source + "#" + strconv.Itoa(position)))
	return hex.EncodeToString(sum[:16])
}
