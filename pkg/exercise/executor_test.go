package exercise

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/analysis"
	"sprachpfad/pkg/db"
	"sprachpfad/pkg/path"
	"sprachpfad/pkg/vocab"

	_ "github.com/mattn/go-sqlite3"
)

// scriptUI feeds canned answers and records everything shown.
type scriptUI struct {
	answers  []string
	said     []string
	warnings []*analysis.Warning
}

func (s *scriptUI) Say(format string, args ...any) {
	s.said = append(s.said, fmt.Sprintf(format, args...))
}

func (s *scriptUI) ShowText(title, content string) {
	s.said = append(s.said, title)
}

func (s *scriptUI) Prompt(msg string) (string, error) {
	if len(s.answers) == 0 {
		return "", fmt.Errorf("script exhausted at prompt %q", msg)
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func (s *scriptUI) ShowWarning(w *analysis.Warning) {
	if w != nil {
		s.warnings = append(s.warnings, w)
	}
}

func (s *scriptUI) saidContaining(sub string) bool {
	for _, line := range s.said {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	if err := db.InitDB(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// seedStep creates a run and an open session for the given step spec.
func seedStep(t *testing.T, conn *sql.DB, ledger *path.Ledger, spec db.StepSpec, text *db.Text) path.Step {
	t.Helper()
	tpl, err := path.NewTemplates(conn).Save("t-"+uuid.NewString()[:8], "B1", "", []db.StepSpec{spec})
	if err != nil {
		t.Fatalf("save template: %v", err)
	}
	run := db.Run{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Learner:    "anna",
		Status:     db.RunActive,
		StartedAt:  time.Now().UTC(),
	}
	if err := db.InsertRun(conn, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	var textID *uuid.UUID
	if text != nil {
		if err := db.InsertText(conn, *text); err != nil {
			t.Fatalf("insert text: %v", err)
		}
		textID = &text.ID
	}
	var session db.Session
	err = db.WithTx(conn, func(tx *sql.Tx) error {
		var err error
		session, err = ledger.OpenSessionIn(tx, run.ID, tpl.Steps[0], textID)
		return err
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return path.Step{Run: run, Spec: tpl.Steps[0], Session: session, Text: text}
}

func newTestExecutor(conn *sql.DB, ui UI) (*Executor, *path.Ledger, *vocab.Store) {
	ledger := path.NewLedger(conn)
	store := vocab.NewStore(conn)
	e := NewExecutor(conn, ledger, store, ui)
	e.Logger = slog.New(slog.DiscardHandler)
	return e, ledger, store
}

func completedOutcome(t *testing.T, conn *sql.DB, sessionID uuid.UUID) path.Outcome {
	t.Helper()
	session, err := db.GetSession(conn, sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Status != db.SessionCompleted {
		t.Fatalf("session status: %s", session.Status)
	}
	outcome, err := path.DecodeOutcome(session.Outcome)
	if err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	return outcome
}

func TestExecuteReadRespond(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	ui := &scriptUI{answers: []string{
		"Der Graf hat das ganze Dorf getäuscht und niemand hat die gefälschten Urkunden bemerkt punkt",
		"Die Kernaussage ist dass der Graf alle Leute systematisch getäuscht hat",
		"täuschen, Urkunde",
	}}
	e, ledger, _ := newTestExecutor(conn, ui)

	text := &db.Text{
		ID:         uuid.New(),
		SourceType: db.SourceNews,
		Title:      "Die Inszenierung",
		Content:    "Der Graf täuscht das ganze Dorf mit gefälschten Urkunden und einer inszenierten Geschichte.",
		CreatedAt:  time.Now().UTC(),
	}
	step := seedStep(t, conn, ledger, db.StepSpec{
		Kind:   db.StepReadRespond,
		Params: db.StepParams{Source: db.SourceNews, Questions: 1},
	}, text)

	if err := e.Execute(context.Background(), step); err != nil {
		t.Fatalf("execute: %v", err)
	}

	outcome := completedOutcome(t, conn, step.Session.ID)
	if outcome.Result != path.ResultCompleted {
		t.Fatalf("result: %s", outcome.Result)
	}
	if !strings.Contains(outcome.Transcript, "getäuscht") {
		t.Fatalf("transcript: %q", outcome.Transcript)
	}
	if strings.Contains(outcome.Transcript, "punkt") {
		t.Fatalf("stop mark not cut: %q", outcome.Transcript)
	}
	for _, key := range []string{"overlap_f1", "q1_word_count", "word_count"} {
		if _, ok := outcome.Stats[key]; !ok {
			t.Fatalf("stat %q missing: %v", key, outcome.Stats)
		}
	}
	if len(outcome.Terms) != 2 || outcome.Terms[0] != "täuschen" || outcome.Terms[1] != "urkunde" {
		t.Fatalf("terms: %v", outcome.Terms)
	}

	// picked terms are stored and linked to the session
	items, err := db.VocabForSession(conn, step.Session.ID)
	if err != nil {
		t.Fatalf("vocab for session: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("linked vocab: %+v", items)
	}
	if _, err := db.GetVocabByTerm(conn, "anna", "urkunde"); err != nil {
		t.Fatalf("stored term: %v", err)
	}

	if !ui.saidContaining("Die Inszenierung") {
		t.Fatal("text was not shown")
	}
	if !ui.saidContaining("(MOCK)") {
		t.Fatal("coach feedback was not shown")
	}
}

func TestExecuteVocabDrill(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	ui := &scriptUI{answers: []string{
		"Der Graf wollte alle Menschen im Dorf täuschen",
		"Das weiß ich leider nicht mehr",
	}}
	e, ledger, store := newTestExecutor(conn, ui)

	step := seedStep(t, conn, ledger, db.StepSpec{Kind: db.StepVocabDrill}, nil)
	for _, term := range []string{"täuschen", "inszenieren"} {
		id, err := store.Add(db.VocabItem{Learner: "anna", Term: term})
		if err != nil {
			t.Fatalf("add vocab: %v", err)
		}
		item, err := db.GetVocabByTerm(conn, "anna", term)
		if err != nil {
			t.Fatalf("get vocab %s: %v", id, err)
		}
		step.Items = append(step.Items, item)
	}

	if err := e.Execute(context.Background(), step); err != nil {
		t.Fatalf("execute: %v", err)
	}

	outcome := completedOutcome(t, conn, step.Session.ID)
	if outcome.Stats["drill_terms"] != 2 || outcome.Stats["drill_hits"] != 1 {
		t.Fatalf("drill stats: %v", outcome.Stats)
	}

	for _, term := range []string{"täuschen", "inszenieren"} {
		item, err := db.GetVocabByTerm(conn, "anna", term)
		if err != nil {
			t.Fatal(err)
		}
		if item.PracticeCount != 1 {
			t.Fatalf("%s practice count: %d", term, item.PracticeCount)
		}
	}
}

func TestExecuteVocabDrillNoItems(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	ui := &scriptUI{}
	e, ledger, _ := newTestExecutor(conn, ui)
	step := seedStep(t, conn, ledger, db.StepSpec{Kind: db.StepVocabDrill}, nil)

	if err := e.Execute(context.Background(), step); err != nil {
		t.Fatalf("execute: %v", err)
	}
	outcome := completedOutcome(t, conn, step.Session.ID)
	if outcome.Result != path.ResultCompleted {
		t.Fatalf("result: %s", outcome.Result)
	}
	if !ui.saidContaining("übersprungen") {
		t.Fatal("skip notice missing")
	}
}

func TestExecuteReview(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	ui := &scriptUI{answers: []string{
		"Täuschen",   // right, case-insensitive
		"verwandeln", // wrong
	}}
	e, ledger, store := newTestExecutor(conn, ui)

	step := seedStep(t, conn, ledger, db.StepSpec{Kind: db.StepReview, Params: db.StepParams{ReviewCount: 2}}, nil)
	for _, it := range []db.VocabItem{
		{Learner: "anna", Term: "täuschen", Definition: "jemanden bewusst in die Irre führen"},
		{Learner: "anna", Term: "inszenieren", Definition: ""},
	} {
		if _, err := store.Add(it); err != nil {
			t.Fatalf("add vocab: %v", err)
		}
		stored, err := db.GetVocabByTerm(conn, "anna", it.Term)
		if err != nil {
			t.Fatal(err)
		}
		step.Items = append(step.Items, stored)
	}

	if err := e.Execute(context.Background(), step); err != nil {
		t.Fatalf("execute: %v", err)
	}

	outcome := completedOutcome(t, conn, step.Session.ID)
	if outcome.Stats["review_terms"] != 2 || outcome.Stats["review_correct"] != 1 {
		t.Fatalf("review stats: %v", outcome.Stats)
	}
	// an item without a definition falls back to a first-letter hint
	if !ui.saidContaining("Anfangsbuchstabe") {
		t.Fatal("fallback hint missing")
	}
	if !ui.saidContaining("Gesucht war: inszenieren") {
		t.Fatal("correction missing")
	}
}

func TestExecuteUnknownKind(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	e, _, _ := newTestExecutor(conn, &scriptUI{})
	err := e.Execute(context.Background(), path.Step{Spec: db.StepSpec{Kind: db.StepKind("karaoke")}})
	if !errors.Is(err, ErrUnknownStepKind) {
		t.Fatalf("expected ErrUnknownStepKind, got %v", err)
	}
}

func TestExecuteShowsQualityWarning(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	ui := &scriptUI{answers: []string{
		"ja",       // far too short for a retell
		"täuschen", // keep one term anyway
	}}
	e, ledger, _ := newTestExecutor(conn, ui)

	text := &db.Text{
		ID:         uuid.New(),
		SourceType: db.SourceNews,
		Title:      "Kurz",
		Content:    "Der Graf täuscht das Dorf mit gefälschten Urkunden.",
		CreatedAt:  time.Now().UTC(),
	}
	step := seedStep(t, conn, ledger, db.StepSpec{
		Kind:   db.StepReadRespond,
		Params: db.StepParams{Source: db.SourceNews},
	}, text)

	if err := e.Execute(context.Background(), step); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(ui.warnings) == 0 {
		t.Fatal("no warning shown")
	}
	if ui.warnings[0].Cause != analysis.CauseEmpty {
		t.Fatalf("warning cause: %s", ui.warnings[0].Cause)
	}
	outcome := completedOutcome(t, conn, step.Session.ID)
	if !outcome.Flags["low_quality"] {
		t.Fatalf("flags: %v", outcome.Flags)
	}
}
