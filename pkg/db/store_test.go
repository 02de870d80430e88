package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func testTemplate() Template {
	return Template{
		ID:        uuid.New(),
		Name:      "standard",
		Level:     "B1",
		CreatedAt: time.Now().UTC(),
		Steps: []StepSpec{
			{Order: 0, Kind: StepReadRespond, Params: StepParams{Source: SourceNews, Questions: 3}},
			{Order: 1, Kind: StepVocabDrill},
			{Order: 2, Kind: StepReview, Params: StepParams{ReviewCount: 2}},
		},
	}
}

func insertTestRun(t *testing.T, conn *sql.DB, tpl Template, learner string) Run {
	t.Helper()
	run := Run{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Learner:    learner,
		Status:     RunActive,
		StartedAt:  time.Now().UTC(),
	}
	if err := InsertRun(conn, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	return run
}

func TestTemplateRoundtrip(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	if err := InsertTemplate(conn, tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}

	got, err := GetTemplate(conn, tpl.ID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if got.Name != tpl.Name || len(got.Steps) != 3 {
		t.Fatalf("unexpected template: %+v", got)
	}
	if got.Steps[0].Params.Questions != 3 {
		t.Fatalf("step params lost: %+v", got.Steps[0])
	}
	if got.Steps[2].Kind != StepReview || got.Steps[2].Params.ReviewCount != 2 {
		t.Fatalf("review step mangled: %+v", got.Steps[2])
	}

	byName, err := GetTemplateByName(conn, "standard")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName.ID != tpl.ID {
		t.Fatalf("expected same template, got %s", byName.ID)
	}
}

func TestInsertTemplateRejectsBadSteps(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	tpl.Steps[1].Kind = "meditate"
	if err := InsertTemplate(conn, tpl); err == nil {
		t.Fatal("expected error for unknown step kind")
	}
}

func TestSingleOpenSessionIndex(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	if err := InsertTemplate(conn, tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	run := insertTestRun(t, conn, tpl, "anna")

	now := time.Now().UTC()
	first := Session{ID: uuid.New(), RunID: run.ID, StepOrder: 0, StepKind: StepReadRespond, Status: SessionOpen, StartedAt: now}
	if err := InsertSession(conn, first); err != nil {
		t.Fatalf("insert first session: %v", err)
	}

	second := Session{ID: uuid.New(), RunID: run.ID, StepOrder: 1, StepKind: StepVocabDrill, Status: SessionOpen, StartedAt: now}
	if err := InsertSession(conn, second); err == nil {
		t.Fatal("expected unique violation for second open session")
	}

	// completing the first frees the slot
	if err := CompleteSessionRow(conn, first.ID, `{"result":"completed"}`, now); err != nil {
		t.Fatalf("complete session: %v", err)
	}
	if err := InsertSession(conn, second); err != nil {
		t.Fatalf("insert after completion: %v", err)
	}

	n, err := CountOpenSessionsForRun(conn, run.ID)
	if err != nil {
		t.Fatalf("count open: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 open session, got %d", n)
	}
}

func TestCompleteSessionRowRefusesClosed(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	if err := InsertTemplate(conn, tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	run := insertTestRun(t, conn, tpl, "anna")

	now := time.Now().UTC()
	s := Session{ID: uuid.New(), RunID: run.ID, StepOrder: 0, StepKind: StepReadRespond, Status: SessionOpen, StartedAt: now}
	if err := InsertSession(conn, s); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	if err := CompleteSessionRow(conn, s.ID, `{"result":"completed"}`, now); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	err := CompleteSessionRow(conn, s.ID, `{"result":"completed"}`, now)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows on double complete, got %v", err)
	}

	got, err := GetSession(conn, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != SessionCompleted || got.CompletedAt == nil {
		t.Fatalf("session not completed: %+v", got)
	}
}

func TestCloseOpenSessionsForLearner(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	if err := InsertTemplate(conn, tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	runA := insertTestRun(t, conn, tpl, "anna")
	runB := insertTestRun(t, conn, tpl, "ben")

	now := time.Now().UTC()
	for _, r := range []Run{runA, runB} {
		s := Session{ID: uuid.New(), RunID: r.ID, StepOrder: 0, StepKind: StepReadRespond, Status: SessionOpen, StartedAt: now}
		if err := InsertSession(conn, s); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	n, err := CloseOpenSessionsForLearner(conn, "anna", `{"result":"abandoned"}`, now)
	if err != nil {
		t.Fatalf("close open sessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 closed, got %d", n)
	}

	// ben's session untouched
	open, err := OpenSessionForRun(conn, runB.ID)
	if err != nil {
		t.Fatalf("open session for run: %v", err)
	}
	if open == nil {
		t.Fatal("ben's open session was swept")
	}

	// idempotent
	n, err = CloseOpenSessionsForLearner(conn, "anna", `{"result":"abandoned"}`, now)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestLatestSessionForStep(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	if err := InsertTemplate(conn, tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	run := insertTestRun(t, conn, tpl, "anna")

	base := time.Now().UTC()
	older := Session{ID: uuid.New(), RunID: run.ID, StepOrder: 0, StepKind: StepReadRespond, Status: SessionCompleted, Outcome: `{"result":"abandoned"}`, StartedAt: base}
	newer := Session{ID: uuid.New(), RunID: run.ID, StepOrder: 0, StepKind: StepReadRespond, Status: SessionCompleted, Outcome: `{"result":"completed"}`, StartedAt: base.Add(time.Minute)}
	for _, s := range []Session{older, newer} {
		if err := InsertSession(conn, s); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	got, err := LatestSessionForStep(conn, run.ID, 0)
	if err != nil {
		t.Fatalf("latest session: %v", err)
	}
	if got == nil || got.ID != newer.ID {
		t.Fatalf("expected newest session, got %+v", got)
	}

	missing, err := LatestSessionForStep(conn, run.ID, 5)
	if err != nil {
		t.Fatalf("latest session (missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unattempted step, got %+v", missing)
	}
}

func TestActiveRunsForLearner(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	if err := InsertTemplate(conn, tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	run := insertTestRun(t, conn, tpl, "anna")

	active, err := ActiveRunsForLearner(conn, "anna")
	if err != nil {
		t.Fatalf("active runs: %v", err)
	}
	if len(active) != 1 || active[0].ID != run.ID {
		t.Fatalf("unexpected active runs: %+v", active)
	}

	if err := CompleteRun(conn, run.ID, 2, time.Now().UTC()); err != nil {
		t.Fatalf("complete run: %v", err)
	}
	active, err = ActiveRunsForLearner(conn, "anna")
	if err != nil {
		t.Fatalf("active runs after complete: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("completed run still listed: %+v", active)
	}

	got, err := GetRun(conn, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != RunCompleted || got.CompletedAt == nil {
		t.Fatalf("run not completed: %+v", got)
	}
}

func TestCompleteRunFiresOnce(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	if err := InsertTemplate(conn, tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	run := insertTestRun(t, conn, tpl, "anna")

	first := time.Now().UTC()
	if err := CompleteRun(conn, run.ID, 2, first); err != nil {
		t.Fatalf("complete run: %v", err)
	}

	// a second caller losing the race must not rewrite the completion
	err := CompleteRun(conn, run.ID, 2, first.Add(time.Hour))
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	got, err := GetRun(conn, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(first) {
		t.Fatalf("completed_at rewritten: %+v", got.CompletedAt)
	}
}
