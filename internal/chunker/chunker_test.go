package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/54b3r/insight-scout/internal/rag"
)

// article builds a deterministic multi-line text with lines of varying length.
func article(lines int) string {
	var sb strings.Builder
	for i := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		n := (i*7)%23 + 1
		for w := range n {
			if w > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "w%d", (i+w)%10)
		}
	}
	return sb.String()
}

func mustSplitter(t *testing.T, cfg Config) *Splitter {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero size", Config{Separator: "\n", ChunkSize: 0, ChunkOverlap: 0}},
		{"negative overlap", Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: -1}},
		{"overlap equals size", Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 10}},
		{"overlap exceeds size", Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("want ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNew_AcceptsDefaults(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, DefaultConfig())
	if s.Config().ChunkSize != 1000 || s.Config().ChunkOverlap != 200 || s.Config().Separator != "\n" {
		t.Errorf("unexpected defaults: %+v", s.Config())
	}
}

// ---------------------------------------------------------------------------
// SplitText
// ---------------------------------------------------------------------------

func TestSplitText_SlidingWindow(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 5})
	got := s.SplitText("aaaa\nbbbb\ncccc\ndddd")
	want := []Span{
		{Text: "aaaa\nbbbb", Start: 0, End: 9},
		{Text: "bbbb\ncccc", Start: 5, End: 14},
		{Text: "cccc\ndddd", Start: 10, End: 19},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d spans %+v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("span[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSplitText_NoOverlap(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 0})
	got := s.SplitText("aaaa\nbbbb\ncccc\ndddd")
	if len(got) != 2 {
		t.Fatalf("got %d spans, want 2: %+v", len(got), got)
	}
	if got[1].Start < got[0].End {
		t.Errorf("chunks overlap with overlap disabled: %+v", got)
	}
}

func TestSplitText_CutsOversizedPiece(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 3})
	text := strings.Repeat("x", 25)
	got := s.SplitText(text)
	if len(got) != 3 {
		t.Fatalf("got %d spans, want 3", len(got))
	}
	for _, sp := range got {
		if utf8.RuneCountInString(sp.Text) > 10 {
			t.Errorf("span longer than chunk size: %q", sp.Text)
		}
	}
	if Join(toChunks(got), "\n") != text {
		t.Error("round trip of an oversized piece failed")
	}
}

func TestSplitText_CountsRunes(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 5, ChunkOverlap: 0})
	got := s.SplitText("ééééé\nééééé")
	if len(got) != 2 {
		t.Fatalf("got %d spans, want 2", len(got))
	}
	for _, sp := range got {
		if utf8.RuneCountInString(sp.Text) != 5 {
			t.Errorf("span %q has %d runes, want 5", sp.Text, utf8.RuneCountInString(sp.Text))
		}
	}
}

func TestSplitText_DropsWhitespaceOnly(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 2})
	if got := s.SplitText("   \n  \n"); len(got) != 0 {
		t.Errorf("want no spans for whitespace-only text, got %+v", got)
	}
	if got := s.SplitText(""); len(got) != 0 {
		t.Errorf("want no spans for empty text, got %+v", got)
	}
}

func TestSplitText_TrimsAndKeepsOffsets(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 20, ChunkOverlap: 2})
	text := "  hello world  "
	got := s.SplitText(text)
	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1", len(got))
	}
	if got[0].Text != "hello world" || text[got[0].Start:got[0].End] != got[0].Text {
		t.Errorf("span = %+v", got[0])
	}
}

func TestSplitText_EmptySeparatorSplitsPerCharacter(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "", ChunkSize: 4, ChunkOverlap: 2})
	text := "abcdefghij"
	got := s.SplitText(text)
	if len(got) < 2 {
		t.Fatalf("got %d spans, want several", len(got))
	}
	if Join(toChunks(got), "") != text {
		t.Errorf("round trip = %q", Join(toChunks(got), ""))
	}
}

// ---------------------------------------------------------------------------
// Properties over a realistic document
// ---------------------------------------------------------------------------

func TestSplitText_Properties(t *testing.T) {
	t.Parallel()
	texts := map[string]string{
		"ascii":     article(200),
		"multibyte": strings.ReplaceAll(article(200), "w", "ω"),
	}
	cfgs := []Config{
		{Separator: "\n", ChunkSize: 1000, ChunkOverlap: 200},
		{Separator: "\n", ChunkSize: 120, ChunkOverlap: 40},
		{Separator: "\n", ChunkSize: 80, ChunkOverlap: 0},
		{Separator: " ", ChunkSize: 50, ChunkOverlap: 20},
	}
	for name, text := range texts {
		for _, cfg := range cfgs {
			t.Run(fmt.Sprintf("%s/%q/%d/%d", name, cfg.Separator, cfg.ChunkSize, cfg.ChunkOverlap), func(t *testing.T) {
				t.Parallel()
				s := mustSplitter(t, cfg)
				spans := s.SplitText(text)
				if len(spans) == 0 {
					t.Fatal("no spans produced")
				}
				for i, sp := range spans {
					if n := utf8.RuneCountInString(sp.Text); n > cfg.ChunkSize {
						t.Errorf("span %d has %d chars, exceeds %d", i, n, cfg.ChunkSize)
					}
					if text[sp.Start:sp.End] != sp.Text {
						t.Errorf("span %d is not the substring at its offsets", i)
					}
					if i == 0 {
						continue
					}
					prev := spans[i-1]
					if sp.Start <= prev.Start {
						t.Errorf("span %d does not advance: %d <= %d", i, sp.Start, prev.Start)
					}
					if sp.Start >= prev.End {
						continue
					}
					if shared := utf8.RuneCountInString(text[sp.Start:prev.End]); shared > cfg.ChunkOverlap {
						t.Errorf("spans %d and %d share %d chars, exceeds overlap %d", i-1, i, shared, cfg.ChunkOverlap)
					}
				}
				if got := Join(toChunks(spans), cfg.Separator); got != text {
					t.Errorf("round trip mismatch:\n got %q\nwant %q", got, text)
				}
			})
		}
	}
}

func TestSplitText_OverlapIsUsed(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 120, ChunkOverlap: 40})
	spans := s.SplitText(article(100))
	overlapping := 0
	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].End {
			overlapping++
		}
	}
	if overlapping == 0 {
		t.Error("expected consecutive chunks to share text")
	}
}

func TestSplitText_Deterministic(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, DefaultConfig())
	text := article(300)
	a, b := s.SplitText(text), s.SplitText(text)
	if len(a) != len(b) {
		t.Fatalf("split lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("span %d differs between runs", i)
		}
	}
}

// ---------------------------------------------------------------------------
// Split
// ---------------------------------------------------------------------------

func TestSplit_AssignsProvenance(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 5})
	docs := []rag.Document{
		{SourceURL: "https://a.example", Text: "aaaa\nbbbb\ncccc"},
		{SourceURL: "https://b.example", Text: "zzzz"},
	}
	chunks := s.Split(docs)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if last.Source != "https://b.example" || last.DocIndex != 1 || last.Position != 0 {
		t.Errorf("unexpected provenance: %+v", last)
	}
	if chunks[1].Position != 1 || chunks[1].DocIndex != 0 {
		t.Errorf("unexpected provenance: %+v", chunks[1])
	}
	if chunks[0].ID != ChunkID("https://a.example", 0) {
		t.Errorf("chunk ID not derived from source and position")
	}
	if chunks[0].ID == chunks[1].ID {
		t.Error("chunk IDs must be distinct")
	}
}

func TestJoin_Empty(t *testing.T) {
	t.Parallel()
	if got := Join(nil, "\n"); got != "" {
		t.Errorf("Join(nil) = %q", got)
	}
}

func TestJoin_CollapsesUnnormalisedGaps(t *testing.T) {
	t.Parallel()
	s := mustSplitter(t, Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 3})
	tests := []struct {
		name string
		text string
		want string
	}{
		{"normalised", "aaaaaaa\nbbbbbbb\nccccccc", "aaaaaaa\nbbbbbbb\nccccccc"},
		{"blank line", "aaaaaaa\n\nbbbbbbb", "aaaaaaa\nbbbbbbb"},
		{"indented line", "aaaaaaa\n  bbbbbbb", "aaaaaaa\nbbbbbbb"},
		{"both", "aaaaaaa\n\nbbbbbbb\n  ccccccc", "aaaaaaa\nbbbbbbb\nccccccc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Join(toChunks(s.SplitText(tc.text)), "\n"); got != tc.want {
				t.Errorf("Join = %q, want %q", got, tc.want)
			}
		})
	}
}

func toChunks(spans []Span) []rag.Chunk {
	out := make([]rag.Chunk, len(spans))
	for i, sp := range spans {
		out[i] = rag.Chunk{Text: sp.Text, Start: sp.Start, End: sp.End, Position: i}
	}
	return out
}
