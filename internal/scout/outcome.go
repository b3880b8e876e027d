package scout

import "github.com/54b3r/insight-scout/internal/ingestion"

// Level is the severity an Outcome is presented with.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// User-facing messages.
const (
	MsgNoURLs      = "Please enter at least one valid URL."
	MsgNoQuestion  = "Please enter a question."
	MsgNotReady    = "Please process URLs first."
	TitleAnswer    = "Top Answer"
	TitleProcessed = "URLs Processed"
)

// Outcome is the result of one action, shaped for presentation. Every
// failure ends up here; nothing propagates past the Assistant.
type Outcome struct {
	// Level selects how the outcome is rendered.
	Level Level `json:"level"`

	// Kind is set for warnings and errors.
	Kind Kind `json:"kind,omitempty"`

	// Title is the card heading of a successful outcome.
	Title string `json:"title,omitempty"`

	// Message is the status or error text.
	Message string `json:"message,omitempty"`

	// Answer is the generated answer of a successful ask.
	Answer string `json:"answer,omitempty"`

	// Sources are the pages processed, or the pages an answer drew on.
	Sources []ingestion.SourceInfo `json:"sources,omitempty"`

	// Documents and Chunks count what a successful process indexed.
	Documents int `json:"documents,omitempty"`
	Chunks    int `json:"chunks,omitempty"`

	// Steps are the progress notes of a process action.
	Steps []string `json:"steps,omitempty"`
}

// OK reports whether the action succeeded.
func (o Outcome) OK() bool { return o.Level == LevelSuccess }

func warning(kind Kind, msg string) Outcome {
	return Outcome{Level: LevelWarning, Kind: kind, Message: msg}
}

func failure(kind Kind, msg string) Outcome {
	return Outcome{Level: LevelError, Kind: kind, Message: msg}
}
