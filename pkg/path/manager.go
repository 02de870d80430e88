// Package path orchestrates learning path runs: templates, runs, and the
// session ledger. The invariant throughout is at most one open session
// per run, enforced transactionally and backed by a partial unique index.
package path

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/db"
	"sprachpfad/pkg/texts"
	"sprachpfad/pkg/vocab"
)

// Step describes the learner's position in a run after a manager call:
// the step spec, its open session, and the material the step works on.
type Step struct {
	Run     db.Run
	Spec    db.StepSpec
	Session db.Session
	Text    *db.Text
	Items   []db.VocabItem
	// Done reports that the run completed and no further step was opened.
	Done bool
}

// Manager drives runs through their template steps. All blocking work
// (text fetch) happens before the transaction that mutates state; each
// mutating call is one short transaction.
type Manager struct {
	DB        *sql.DB
	Templates *Templates
	Ledger    *Ledger
	Texts     *texts.Provider
	Vocab     *vocab.Store
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewManager wires a run manager over the shared database handle.
func NewManager(conn *sql.DB, tpl *Templates, ledger *Ledger, provider *texts.Provider, store *vocab.Store) *Manager {
	return &Manager{
		DB:        conn,
		Templates: tpl,
		Ledger:    ledger,
		Texts:     provider,
		Vocab:     store,
		Logger:    slog.Default(),
		Now:       time.Now,
	}
}

// StartRun creates a run of the template for the learner and opens the
// session for its first step. A learner with an active run cannot start
// another; stray open sessions from crashed processes are swept first.
func (m *Manager) StartRun(ctx context.Context, learner string, templateID uuid.UUID) (Step, error) {
	tpl, err := m.Templates.Get(templateID)
	if err != nil {
		return Step{}, err
	}
	if len(tpl.Steps) == 0 {
		return Step{}, fmt.Errorf("template %q has no steps", tpl.Name)
	}

	active, err := db.ActiveRunsForLearner(m.DB, learner)
	if err != nil {
		return Step{}, err
	}
	if len(active) > 0 {
		return Step{}, fmt.Errorf("learner %q already has run %s: %w", learner, active[0].ID, ErrActiveRunExists)
	}

	if n, err := m.Ledger.CloseStrayOpenSessions(learner); err != nil {
		return Step{}, err
	} else if n > 0 {
		m.Logger.Warn("closed stray open sessions before new run", "learner", learner, "count", n)
	}

	first := tpl.Steps[0]
	sel, err := m.prefetch(ctx, first)
	if err != nil {
		return Step{}, err
	}

	run := db.Run{
		ID:          uuid.New(),
		TemplateID:  tpl.ID,
		Learner:     learner,
		Status:      db.RunActive,
		CurrentStep: 0,
		StartedAt:   m.Now().UTC(),
	}

	var step Step
	err = db.WithTx(m.DB, func(tx *sql.Tx) error {
		again, err := db.ActiveRunsForLearner(tx, learner)
		if err != nil {
			return err
		}
		if len(again) > 0 {
			return fmt.Errorf("learner %q already has run %s: %w", learner, again[0].ID, ErrActiveRunExists)
		}
		if err := db.InsertRun(tx, run); err != nil {
			return err
		}
		step, err = m.openStepIn(tx, run, first, sel)
		return err
	})
	if err != nil {
		return Step{}, err
	}
	m.Logger.Info("run started", "run", run.ID, "template", tpl.Name, "learner", learner)
	return step, nil
}

// AdvanceRun moves an active run past its current step. The current step
// must have a completed session; a still-open session or an abandoned-only
// step blocks advancement. Past the last step the run completes.
func (m *Manager) AdvanceRun(ctx context.Context, runID uuid.UUID) (Step, error) {
	run, err := m.activeRun(runID)
	if err != nil {
		return Step{}, err
	}
	tpl, err := m.Templates.Get(run.TemplateID)
	if err != nil {
		return Step{}, err
	}
	if err := m.requireStepCompleted(m.DB, run); err != nil {
		return Step{}, err
	}

	next := run.CurrentStep + 1
	if next >= len(tpl.Steps) {
		// the index moves past the last step; completed means
		// current_step equals the step count
		err := db.WithTx(m.DB, func(tx *sql.Tx) error {
			return db.CompleteRun(tx, run.ID, next, m.Now().UTC())
		})
		if err != nil {
			return Step{}, err
		}
		run.Status = db.RunCompleted
		run.CurrentStep = next
		m.Logger.Info("run completed", "run", run.ID, "learner", run.Learner)
		return Step{Run: run, Done: true}, nil
	}

	spec := tpl.Steps[next]
	sel, err := m.prefetch(ctx, spec)
	if err != nil {
		return Step{}, err
	}

	var step Step
	err = db.WithTx(m.DB, func(tx *sql.Tx) error {
		fresh, err := db.GetRun(tx, run.ID)
		if err != nil {
			return err
		}
		if fresh.Status != db.RunActive || fresh.CurrentStep != run.CurrentStep {
			return fmt.Errorf("run %s changed underneath advance: %w", run.ID, ErrRunNotActive)
		}
		if err := db.UpdateRunStep(tx, run.ID, next); err != nil {
			return err
		}
		fresh.CurrentStep = next
		step, err = m.openStepIn(tx, fresh, spec, sel)
		return err
	})
	if err != nil {
		return Step{}, err
	}
	m.Logger.Info("run advanced", "run", run.ID, "step", next, "kind", spec.Kind)
	return step, nil
}

// ResumeStep re-enters the current step of an active run. An open session
// is returned as-is; an abandoned attempt is reopened reusing its text so
// resuming never refetches; a completed step refuses with ErrStepCompleted.
func (m *Manager) ResumeStep(ctx context.Context, runID uuid.UUID) (Step, error) {
	run, err := m.activeRun(runID)
	if err != nil {
		return Step{}, err
	}
	tpl, err := m.Templates.Get(run.TemplateID)
	if err != nil {
		return Step{}, err
	}
	if run.CurrentStep >= len(tpl.Steps) {
		return Step{}, fmt.Errorf("run %s step %d out of range for template %q", run.ID, run.CurrentStep, tpl.Name)
	}
	spec := tpl.Steps[run.CurrentStep]

	open, err := db.OpenSessionForRun(m.DB, run.ID)
	if err != nil {
		return Step{}, err
	}
	if open != nil {
		return m.describeStep(run, spec, *open)
	}

	last, err := db.LatestSessionForStep(m.DB, run.ID, run.CurrentStep)
	if err != nil {
		return Step{}, err
	}
	var textID *uuid.UUID
	var sel *texts.Selection
	switch {
	case last == nil:
		// First entry into this step; fetch material as StartRun would.
		sel, err = m.prefetch(ctx, spec)
		if err != nil {
			return Step{}, err
		}
	default:
		outcome, err := DecodeOutcome(last.Outcome)
		if err != nil {
			return Step{}, err
		}
		if outcome.Result != ResultAbandoned {
			return Step{}, fmt.Errorf("run %s step %d: %w", run.ID, run.CurrentStep, ErrStepCompleted)
		}
		textID = last.TextID
	}

	var step Step
	err = db.WithTx(m.DB, func(tx *sql.Tx) error {
		if textID != nil {
			var err error
			step, err = m.openStepWithText(tx, run, spec, textID)
			return err
		}
		var err error
		step, err = m.openStepIn(tx, run, spec, sel)
		return err
	})
	if err != nil {
		return Step{}, err
	}
	m.Logger.Info("step resumed", "run", run.ID, "step", spec.Order, "kind", spec.Kind)
	return step, nil
}

// GetActiveRun returns the learner's single active run. More than one
// active run indicates corrupted state and is reported as such.
func (m *Manager) GetActiveRun(learner string) (db.Run, error) {
	runs, err := db.ActiveRunsForLearner(m.DB, learner)
	if err != nil {
		return db.Run{}, err
	}
	switch len(runs) {
	case 0:
		return db.Run{}, fmt.Errorf("learner %q: %w", learner, ErrNoActiveRun)
	case 1:
		return runs[0], nil
	default:
		return db.Run{}, fmt.Errorf("learner %q has %d active runs: %w", learner, len(runs), ErrMultipleActiveRuns)
	}
}

// Overview is a read-only snapshot of a run for status display.
type Overview struct {
	Run      db.Run
	Template db.Template
	Sessions []db.Session
}

// RunOverview loads a run with its template and full session history.
func (m *Manager) RunOverview(runID uuid.UUID) (Overview, error) {
	run, err := db.GetRun(m.DB, runID)
	if err != nil {
		return Overview{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	tpl, err := m.Templates.Get(run.TemplateID)
	if err != nil {
		return Overview{}, err
	}
	sessions, err := db.SessionsForRun(m.DB, runID)
	if err != nil {
		return Overview{}, err
	}
	return Overview{Run: run, Template: tpl, Sessions: sessions}, nil
}

func (m *Manager) activeRun(runID uuid.UUID) (db.Run, error) {
	run, err := db.GetRun(m.DB, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Run{}, fmt.Errorf("run %s not found: %w", runID, ErrRunNotActive)
	}
	if err != nil {
		return db.Run{}, err
	}
	if run.Status != db.RunActive {
		return db.Run{}, fmt.Errorf("run %s is %s: %w", runID, run.Status, ErrRunNotActive)
	}
	return run, nil
}

// requireStepCompleted verifies the current step has a successfully
// completed session. Abandoned attempts do not count.
func (m *Manager) requireStepCompleted(exec db.DBExecutor, run db.Run) error {
	open, err := db.OpenSessionForRun(exec, run.ID)
	if err != nil {
		return err
	}
	if open != nil {
		return fmt.Errorf("run %s step %d: %w", run.ID, open.StepOrder, ErrSessionStillOpen)
	}
	last, err := db.LatestSessionForStep(exec, run.ID, run.CurrentStep)
	if err != nil {
		return err
	}
	if last == nil {
		return fmt.Errorf("run %s step %d: %w", run.ID, run.CurrentStep, ErrStepNotAttempted)
	}
	outcome, err := DecodeOutcome(last.Outcome)
	if err != nil {
		return err
	}
	if outcome.Result == ResultAbandoned {
		return fmt.Errorf("run %s step %d only has abandoned attempts: %w", run.ID, run.CurrentStep, ErrStepNotAttempted)
	}
	return nil
}

// prefetch performs the blocking material selection for steps that need a
// text, before any transaction is opened. Nil for step kinds without one.
func (m *Manager) prefetch(ctx context.Context, spec db.StepSpec) (*texts.Selection, error) {
	if spec.Kind != db.StepReadRespond {
		return nil, nil
	}
	st := spec.Params.Source
	if st == "" {
		st = db.SourceNews
	}
	sel, err := m.Texts.Select(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("select text for step %d: %w", spec.Order, err)
	}
	return &sel, nil
}

// openStepIn materializes the prefetched text (if any) and opens the
// step's session inside the caller's transaction.
func (m *Manager) openStepIn(tx *sql.Tx, run db.Run, spec db.StepSpec, sel *texts.Selection) (Step, error) {
	var textID *uuid.UUID
	var text *db.Text
	if sel != nil {
		t, err := m.Texts.Materialize(tx, *sel)
		if err != nil {
			return Step{}, err
		}
		text = &t
		textID = &t.ID
	}
	session, err := m.Ledger.OpenSessionIn(tx, run.ID, spec, textID)
	if err != nil {
		return Step{}, err
	}
	items, err := m.stepItems(tx, run, spec)
	if err != nil {
		return Step{}, err
	}
	return Step{Run: run, Spec: spec, Session: session, Text: text, Items: items}, nil
}

// openStepWithText reopens a step against an already-materialized text.
func (m *Manager) openStepWithText(tx *sql.Tx, run db.Run, spec db.StepSpec, textID *uuid.UUID) (Step, error) {
	session, err := m.Ledger.OpenSessionIn(tx, run.ID, spec, textID)
	if err != nil {
		return Step{}, err
	}
	var text *db.Text
	if textID != nil {
		t, err := db.GetText(tx, *textID)
		if err != nil {
			return Step{}, err
		}
		text = &t
	}
	items, err := m.stepItems(tx, run, spec)
	if err != nil {
		return Step{}, err
	}
	return Step{Run: run, Spec: spec, Session: session, Text: text, Items: items}, nil
}

// describeStep rebuilds the Step view for an already-open session.
func (m *Manager) describeStep(run db.Run, spec db.StepSpec, session db.Session) (Step, error) {
	var text *db.Text
	if session.TextID != nil {
		t, err := db.GetText(m.DB, *session.TextID)
		if err != nil {
			return Step{}, err
		}
		text = &t
	}
	items, err := m.stepItems(m.DB, run, spec)
	if err != nil {
		return Step{}, err
	}
	return Step{Run: run, Spec: spec, Session: session, Text: text, Items: items}, nil
}

// stepItems loads the vocabulary a step works on: the previous step's
// selections for a drill, a run-wide sample for a review.
func (m *Manager) stepItems(exec db.DBExecutor, run db.Run, spec db.StepSpec) ([]db.VocabItem, error) {
	switch spec.Kind {
	case db.StepVocabDrill:
		return m.Vocab.ItemsForStep(exec, run.ID, spec.Order)
	case db.StepReview:
		n := spec.Params.ReviewCount
		if n <= 0 {
			n = 2
		}
		items, err := m.Vocab.SampleForReview(exec, run.ID, n)
		if errors.Is(err, vocab.ErrInsufficientVocabulary) {
			m.Logger.Warn("review step lacks vocabulary to sample", "run", run.ID, "want", n)
			return nil, nil
		}
		return items, err
	default:
		return nil, nil
	}
}
