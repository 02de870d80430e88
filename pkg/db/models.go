package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepKind tags a template step with the exercise flow it maps to.
type StepKind string

const (
	StepReadRespond StepKind = "read_respond"
	StepVocabDrill  StepKind = "vocab_drill"
	StepReview      StepKind = "review"
)

// Valid reports whether k is a known step kind.
func (k StepKind) Valid() bool {
	switch k {
	case StepReadRespond, StepVocabDrill, StepReview:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a run. Completed is terminal.
type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunCompleted RunStatus = "completed"
)

// SessionStatus is the lifecycle state of a session. Completed is terminal.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionCompleted SessionStatus = "completed"
)

// SourceType tags where a text came from.
type SourceType string

const (
	SourceNews SourceType = "news"
	SourceBook SourceType = "book"
)

// StepParams holds the kind-specific parameters of a template step,
// stored as JSON in template_steps.params.
type StepParams struct {
	// Source selects the text pool for read_respond steps (news|book).
	Source SourceType `json:"source,omitempty"`
	// Questions is the number of structured questions after the retell
	// in a read_respond step (0-3).
	Questions int `json:"questions,omitempty"`
	// ReviewCount is the sample size for review steps.
	ReviewCount int `json:"review_count,omitempty"`
}

// StepSpec is one planned exercise unit within a template.
type StepSpec struct {
	Order  int
	Kind   StepKind
	Params StepParams
}

// EncodeParams serializes the step parameters for storage.
func (s StepSpec) EncodeParams() (string, error) {
	b, err := json.Marshal(s.Params)
	if err != nil {
		return "", fmt.Errorf("encode step params: %w", err)
	}
	return string(b), nil
}

// Template is an immutable ordered plan of exercise steps. Many runs may
// reference one template; templates are never mutated after creation.
type Template struct {
	ID          uuid.UUID
	Name        string
	Level       string
	Description string
	CreatedAt   time.Time
	Steps       []StepSpec
}

// Run is one learner's stateful traversal of a template.
type Run struct {
	ID          uuid.UUID
	TemplateID  uuid.UUID
	Learner     string
	Status      RunStatus
	CurrentStep int
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Text is an immutable source passage (news or book excerpt).
type Text struct {
	ID         uuid.UUID
	SourceType SourceType
	Title      string
	Content    string
	CreatedAt  time.Time
}

// Session is one concrete attempt at executing a step. Open until completed
// or swept as abandoned; never deleted.
type Session struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	StepOrder   int
	StepKind    StepKind
	TextID      *uuid.UUID
	Status      SessionStatus
	Outcome     string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// VocabItem is a term selected by a learner during an exercise.
type VocabItem struct {
	ID              uuid.UUID
	Learner         string
	Term            string
	Definition      string
	Example1        string
	Example2        string
	Difficulty      string
	Lang            string
	PracticeCount   int
	LastPracticedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
