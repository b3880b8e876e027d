// Package answer turns retrieved chunks and a question into a generated
// answer. The prompt is the retrieved context followed by the question, sent
// to the chat model as a single user message.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/insight-scout/internal/budget"
	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/rag"
	"github.com/54b3r/insight-scout/internal/tracing"
)

// ErrEmptyAnswer is returned when the model produces no text.
var ErrEmptyAnswer = errors.New("answer: model returned an empty answer")

// questionMarker separates the retrieved context from the user's question.
const questionMarker = " Question: "

// Config holds the dependencies required to construct an Answerer.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// MaxLength caps the generated answer in tokens. Zero leaves the limit to
	// the backend.
	MaxLength int

	// MaxContextTokens is the estimated token budget for the prompt. When the
	// prompt is larger, the lowest-ranked chunks are dropped. Zero disables
	// the budget.
	MaxContextTokens int
}

// Answer is the result of one ask action.
type Answer struct {
	// Text is the trimmed generated answer.
	Text string

	// Sources lists the distinct source URLs of the chunks used in the prompt.
	Sources []string

	// Chunks are the chunks that made it into the prompt, best first.
	Chunks []rag.ScoredChunk

	// PromptTokens is the estimated size of the prompt.
	PromptTokens int
}

// Answerer generates answers with a chat model. It is immutable and safe
// for concurrent use.
type Answerer struct {
	// chatModel is the generator shared by every session.
	chatModel model.BaseChatModel

	// maxLength is passed as model.WithMaxTokens when positive.
	maxLength int

	// maxContextTokens is the optional prompt budget.
	maxContextTokens int
}

// New constructs an Answerer from cfg.
func New(cfg *Config) (*Answerer, error) {
	if cfg == nil || cfg.ChatModel == nil {
		return nil, fmt.Errorf("answer: ChatModel must not be nil")
	}
	return &Answerer{
		chatModel:        cfg.ChatModel,
		maxLength:        cfg.MaxLength,
		maxContextTokens: cfg.MaxContextTokens,
	}, nil
}

// BuildPrompt joins the chunk texts with a single space in the given order
// and appends the question.
func BuildPrompt(texts []string, question string) string {
	return strings.Join(texts, " ") + questionMarker + question
}

// Answer generates an answer to question from chunks, which must be ordered
// best first. Model errors are returned wrapped and are never retried.
func (a *Answerer) Answer(ctx context.Context, question string, chunks []rag.ScoredChunk) (*Answer, error) {
	log := logging.FromContext(ctx)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	build := func(ts []string) string { return BuildPrompt(ts, question) }

	keep := budget.FitContexts(texts, a.maxContextTokens, build)
	if dropped := len(texts) - keep; dropped > 0 {
		log.Warn("budget: dropped chunks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", keep),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}
	chunks = chunks[:keep]
	prompt := build(texts[:keep])

	msgs := []*schema.Message{schema.UserMessage(prompt)}
	tokens := budget.EstimateMessages(msgs)

	var opts []model.Option
	if a.maxLength > 0 {
		opts = append(opts, model.WithMaxTokens(a.maxLength))
	}

	log.Debug("answer: generating", slog.Int("chunks", keep), slog.Int("prompt_tokens", tokens))
	if log.Enabled(ctx, slog.LevelDebug) {
		log.Debug("answer: context", slog.String("context", rag.FormatContext(chunks)))
	}

	resp, err := a.chatModel.Generate(tracing.StartSpan(ctx, "scout.answer"), msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("answer: generate failed: %w", err)
	}
	if resp == nil {
		return nil, ErrEmptyAnswer
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, ErrEmptyAnswer
	}

	return &Answer{
		Text:         text,
		Sources:      rag.Sources(chunks),
		Chunks:       chunks,
		PromptTokens: tokens,
	}, nil
}
