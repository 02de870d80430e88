package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// ---- templates ----

// InsertTemplate persists a template and its ordered steps.
func InsertTemplate(exec DBExecutor, t Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name must be non-empty")
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("template %q has no steps", t.Name)
	}
	_, err := exec.Exec(
		`INSERT INTO templates (id, name, level, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID.String(), t.Name, t.Level, t.Description, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template %q: %w", t.Name, err)
	}
	for _, s := range t.Steps {
		if !s.Kind.Valid() {
			return fmt.Errorf("template %q step %d: unknown kind %q", t.Name, s.Order, s.Kind)
		}
		params, err := s.EncodeParams()
		if err != nil {
			return err
		}
		_, err = exec.Exec(
			`INSERT INTO template_steps (template_id, step_order, step_kind, params) VALUES (?, ?, ?, ?)`,
			t.ID.String(), s.Order, string(s.Kind), params,
		)
		if err != nil {
			return fmt.Errorf("insert step %d of template %q: %w", s.Order, t.Name, err)
		}
	}
	return nil
}

// GetTemplate loads a template with its steps in order.
func GetTemplate(exec DBExecutor, id uuid.UUID) (Template, error) {
	var t Template
	var desc sql.NullString
	err := exec.QueryRow(
		`SELECT id, name, level, description, created_at FROM templates WHERE id = ?`, id.String(),
	).Scan(&t.ID, &t.Name, &t.Level, &desc, &t.CreatedAt)
	if err != nil {
		return Template{}, err
	}
	t.Description = desc.String
	t.Steps, err = templateSteps(exec, t.ID)
	return t, err
}

// GetTemplateByName loads a template by its unique name.
func GetTemplateByName(exec DBExecutor, name string) (Template, error) {
	var id uuid.UUID
	err := exec.QueryRow(`SELECT id FROM templates WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return Template{}, err
	}
	return GetTemplate(exec, id)
}

// ListTemplates returns all templates (without steps) ordered by name.
func ListTemplates(exec DBExecutor) ([]Template, error) {
	rows, err := exec.Query(`SELECT id, name, level, description, created_at FROM templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		var t Template
		var desc sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &t.Level, &desc, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Description = desc.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func templateSteps(exec DBExecutor, templateID uuid.UUID) ([]StepSpec, error) {
	rows, err := exec.Query(
		`SELECT step_order, step_kind, params FROM template_steps WHERE template_id = ? ORDER BY step_order`,
		templateID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var steps []StepSpec
	for rows.Next() {
		var s StepSpec
		var kind string
		var params sql.NullString
		if err := rows.Scan(&s.Order, &kind, &params); err != nil {
			return nil, err
		}
		s.Kind = StepKind(kind)
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &s.Params); err != nil {
				return nil, fmt.Errorf("decode params of step %d: %w", s.Order, err)
			}
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// ---- runs ----

// InsertRun persists a new run.
func InsertRun(exec DBExecutor, r Run) error {
	_, err := exec.Exec(
		`INSERT INTO runs (id, template_id, learner, status, current_step, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.TemplateID.String(), r.Learner, string(r.Status), r.CurrentStep, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun loads a single run.
func GetRun(exec DBExecutor, id uuid.UUID) (Run, error) {
	row := exec.QueryRow(
		`SELECT id, template_id, learner, status, current_step, started_at, completed_at FROM runs WHERE id = ?`,
		id.String(),
	)
	return scanRun(row)
}

// ActiveRunsForLearner returns all runs in active status for the learner.
// The creation discipline keeps this at 0 or 1 rows; callers treat more
// than one as a storage integrity violation.
func ActiveRunsForLearner(exec DBExecutor, learner string) ([]Run, error) {
	rows, err := exec.Query(
		`SELECT id, template_id, learner, status, current_step, started_at, completed_at
		 FROM runs WHERE learner = ? AND status = ? ORDER BY started_at`,
		learner, string(RunActive),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.TemplateID, &r.Learner, &r.Status, &r.CurrentStep, &r.StartedAt, &completed); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRunStep advances the run's current step index.
func UpdateRunStep(exec DBExecutor, id uuid.UUID, step int) error {
	res, err := exec.Exec(`UPDATE runs SET current_step = ? WHERE id = ?`, step, id.String())
	if err != nil {
		return fmt.Errorf("update run step: %w", err)
	}
	return requireOneRow(res, "run", id)
}

// CompleteRun marks the run completed and records the completion time.
// Only an active run transitions; a second caller losing the race gets
// the zero-rows error.
func CompleteRun(exec DBExecutor, id uuid.UUID, step int, at time.Time) error {
	res, err := exec.Exec(
		`UPDATE runs SET status = ?, current_step = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(RunCompleted), step, at, id.String(), string(RunActive),
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return requireOneRow(res, "run", id)
}

func scanRun(row *sql.Row) (Run, error) {
	var r Run
	var completed sql.NullTime
	err := row.Scan(&r.ID, &r.TemplateID, &r.Learner, &r.Status, &r.CurrentStep, &r.StartedAt, &completed)
	if err != nil {
		return Run{}, err
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return r, nil
}

// ---- texts ----

// InsertText persists an immutable text record. Texts are never updated.
func InsertText(exec DBExecutor, t Text) error {
	if strings.TrimSpace(t.Content) == "" {
		return fmt.Errorf("text content must be non-empty")
	}
	_, err := exec.Exec(
		`INSERT INTO texts (id, source_type, title, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID.String(), string(t.SourceType), t.Title, t.Content, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert text: %w", err)
	}
	return nil
}

// GetText loads a text by id.
func GetText(exec DBExecutor, id uuid.UUID) (Text, error) {
	var t Text
	var title sql.NullString
	err := exec.QueryRow(
		`SELECT id, source_type, title, content, created_at FROM texts WHERE id = ?`, id.String(),
	).Scan(&t.ID, &t.SourceType, &title, &t.Content, &t.CreatedAt)
	if err != nil {
		return Text{}, err
	}
	t.Title = title.String
	return t, nil
}

// ---- sessions ----

// InsertSession persists a new session row.
func InsertSession(exec DBExecutor, s Session) error {
	var textID interface{}
	if s.TextID != nil {
		textID = s.TextID.String()
	}
	_, err := exec.Exec(
		`INSERT INTO sessions (id, run_id, step_order, step_kind, text_id, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.RunID.String(), s.StepOrder, string(s.StepKind), textID, string(s.Status), s.StartedAt,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("open session already exists for run %s: %w", s.RunID, err)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession loads a session by id.
func GetSession(exec DBExecutor, id uuid.UUID) (Session, error) {
	row := exec.QueryRow(
		`SELECT id, run_id, step_order, step_kind, text_id, status, outcome, started_at, completed_at
		 FROM sessions WHERE id = ?`, id.String(),
	)
	return scanSession(row)
}

// OpenSessionForRun returns the run's open session, or nil when none exists.
func OpenSessionForRun(exec DBExecutor, runID uuid.UUID) (*Session, error) {
	row := exec.QueryRow(
		`SELECT id, run_id, step_order, step_kind, text_id, status, outcome, started_at, completed_at
		 FROM sessions WHERE run_id = ? AND status = ?`, runID.String(), string(SessionOpen),
	)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestSessionForStep returns the most recent session for a run step, or nil.
func LatestSessionForStep(exec DBExecutor, runID uuid.UUID, stepOrder int) (*Session, error) {
	row := exec.QueryRow(
		`SELECT id, run_id, step_order, step_kind, text_id, status, outcome, started_at, completed_at
		 FROM sessions WHERE run_id = ? AND step_order = ? ORDER BY started_at DESC, id DESC LIMIT 1`,
		runID.String(), stepOrder,
	)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CompleteSessionRow transitions a session to completed. It refuses rows
// that are not open, making completion the only exit from the open state.
func CompleteSessionRow(exec DBExecutor, id uuid.UUID, outcome string, at time.Time) error {
	res, err := exec.Exec(
		`UPDATE sessions SET status = ?, outcome = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(SessionCompleted), outcome, at, id.String(), string(SessionOpen),
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CloseOpenSessionsForLearner force-completes every open session belonging
// to any run of the learner, stamping the given outcome. Returns the number
// of sessions closed; running it twice is a no-op the second time.
func CloseOpenSessionsForLearner(exec DBExecutor, learner, outcome string, at time.Time) (int, error) {
	res, err := exec.Exec(
		`UPDATE sessions SET status = ?, outcome = ?, completed_at = ?
		 WHERE status = ? AND run_id IN (SELECT id FROM runs WHERE learner = ?)`,
		string(SessionCompleted), outcome, at, string(SessionOpen), learner,
	)
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountOpenSessionsForRun reports how many sessions are open for a run.
// The partial unique index keeps this at 0 or 1; the count exists for
// defensive checks and tests.
func CountOpenSessionsForRun(exec DBExecutor, runID uuid.UUID) (int, error) {
	var n int
	err := exec.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE run_id = ? AND status = ?`,
		runID.String(), string(SessionOpen),
	).Scan(&n)
	return n, err
}

// SessionsForRun returns the run's full session history in step order,
// oldest attempt first within a step.
func SessionsForRun(exec DBExecutor, runID uuid.UUID) ([]Session, error) {
	rows, err := exec.Query(
		`SELECT id, run_id, step_order, step_kind, text_id, status, outcome, started_at, completed_at
		 FROM sessions WHERE run_id = ? ORDER BY step_order ASC, started_at ASC, id ASC`,
		runID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LastSessions returns the most recent completed sessions across all runs of
// the learner, newest first, optionally filtered by step kind.
func LastSessions(exec DBExecutor, learner string, limit int, kind StepKind) ([]Session, error) {
	q := `SELECT s.id, s.run_id, s.step_order, s.step_kind, s.text_id, s.status, s.outcome, s.started_at, s.completed_at
	      FROM sessions s JOIN runs r ON r.id = s.run_id
	      WHERE r.learner = ? AND s.status = ?`
	args := []interface{}{learner, string(SessionCompleted)}
	if kind != "" {
		q += ` AND s.step_kind = ?`
		args = append(args, string(kind))
	}
	q += ` ORDER BY s.started_at DESC, s.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := exec.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (Session, error) {
	var s Session
	var textID uuid.NullUUID
	var outcome sql.NullString
	var completed sql.NullTime
	err := row.Scan(&s.ID, &s.RunID, &s.StepOrder, &s.StepKind, &textID, &s.Status, &outcome, &s.StartedAt, &completed)
	if err != nil {
		return Session{}, err
	}
	if textID.Valid {
		id := textID.UUID
		s.TextID = &id
	}
	s.Outcome = outcome.String
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	return s, nil
}

func scanSessionRows(rows *sql.Rows) (Session, error) {
	var s Session
	var textID uuid.NullUUID
	var outcome sql.NullString
	var completed sql.NullTime
	err := rows.Scan(&s.ID, &s.RunID, &s.StepOrder, &s.StepKind, &textID, &s.Status, &outcome, &s.StartedAt, &completed)
	if err != nil {
		return Session{}, err
	}
	if textID.Valid {
		id := textID.UUID
		s.TextID = &id
	}
	s.Outcome = outcome.String
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	return s, nil
}

func requireOneRow(res sql.Result, entity string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, sql.ErrNoRows)
	}
	return nil
}
