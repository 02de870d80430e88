package path

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/db"
)

// Outcome results.
const (
	ResultCompleted = "completed"
	ResultAbandoned = "abandoned"
)

// Outcome is the final payload recorded when a session completes. The
// orchestrator treats it as opaque; the step executor fills it in and the
// report reads it back.
type Outcome struct {
	Result          string             `json:"result"`
	Transcript      string             `json:"transcript,omitempty"`
	AudioPath       string             `json:"audio_path,omitempty"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
	Stats           map[string]float64 `json:"stats,omitempty"`
	Flags           map[string]bool    `json:"flags,omitempty"`
	Terms           []string           `json:"terms,omitempty"`
	Feedback        string             `json:"feedback,omitempty"`
}

// Encode serializes the outcome for storage.
func (o Outcome) Encode() (string, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode outcome: %w", err)
	}
	return string(b), nil
}

// DecodeOutcome parses a stored outcome payload. An empty payload decodes
// to the zero Outcome.
func DecodeOutcome(s string) (Outcome, error) {
	var o Outcome
	if s == "" {
		return o, nil
	}
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return Outcome{}, fmt.Errorf("decode outcome: %w", err)
	}
	return o, nil
}

// Ledger records one session per step attempt and enforces the
// single-open-session invariant per run. Sessions are append-only history:
// completed rows are never mutated or deleted.
type Ledger struct {
	DB  *sql.DB
	Now func() time.Time
}

// NewLedger creates a session ledger over the given database.
func NewLedger(conn *sql.DB) *Ledger {
	return &Ledger{DB: conn, Now: time.Now}
}

// OpenSessionIn creates a session in open status inside the caller's
// transaction. It re-validates the single-open-session invariant even
// though the Run Manager is expected to have closed any prior session.
func (l *Ledger) OpenSessionIn(exec db.DBExecutor, runID uuid.UUID, spec db.StepSpec, textID *uuid.UUID) (db.Session, error) {
	open, err := db.OpenSessionForRun(exec, runID)
	if err != nil {
		return db.Session{}, err
	}
	if open != nil {
		return db.Session{}, fmt.Errorf("run %s step %d: %w", runID, open.StepOrder, ErrOpenSessionExists)
	}
	s := db.Session{
		ID:        uuid.New(),
		RunID:     runID,
		StepOrder: spec.Order,
		StepKind:  spec.Kind,
		TextID:    textID,
		Status:    db.SessionOpen,
		StartedAt: l.Now().UTC(),
	}
	if err := db.InsertSession(exec, s); err != nil {
		return db.Session{}, err
	}
	return s, nil
}

// CompleteSessionIn transitions an open session to completed inside the
// caller's transaction. This is the only legal way a session leaves open.
func (l *Ledger) CompleteSessionIn(exec db.DBExecutor, sessionID uuid.UUID, outcome Outcome) error {
	if outcome.Result == "" {
		outcome.Result = ResultCompleted
	}
	payload, err := outcome.Encode()
	if err != nil {
		return err
	}
	err = db.CompleteSessionRow(exec, sessionID, payload, l.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionNotOpen)
	}
	return err
}

// CompleteSession records a session's completion in its own short
// transaction. The blocking exercise work happens before this call.
func (l *Ledger) CompleteSession(sessionID uuid.UUID, outcome Outcome) error {
	return db.WithTx(l.DB, func(tx *sql.Tx) error {
		return l.CompleteSessionIn(tx, sessionID, outcome)
	})
}

// CloseStrayOpenSessionsIn force-completes every open session of the
// learner's runs with an abandoned outcome, inside the caller's
// transaction. Idempotent; safe to run unconditionally at process start.
func (l *Ledger) CloseStrayOpenSessionsIn(exec db.DBExecutor, learner string) (int, error) {
	payload, err := Outcome{Result: ResultAbandoned}.Encode()
	if err != nil {
		return 0, err
	}
	return db.CloseOpenSessionsForLearner(exec, learner, payload, l.Now().UTC())
}

// CloseStrayOpenSessions is the transaction-wrapped sweep used at process
// start and before a new run begins.
func (l *Ledger) CloseStrayOpenSessions(learner string) (int, error) {
	var n int
	err := db.WithTx(l.DB, func(tx *sql.Tx) error {
		var err error
		n, err = l.CloseStrayOpenSessionsIn(tx, learner)
		return err
	})
	return n, err
}
