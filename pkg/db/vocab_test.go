package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

func TestCreateOrGetVocab(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	now := time.Now().UTC()
	item := VocabItem{Learner: "anna", Term: "inszenieren", Definition: "etwas bewusst in Szene setzen", CreatedAt: now, UpdatedAt: now}
	id1, err := CreateOrGetVocab(conn, item)
	if err != nil {
		t.Fatalf("create vocab: %v", err)
	}
	id2, err := CreateOrGetVocab(conn, item)
	if err != nil {
		t.Fatalf("upsert vocab: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %s and %s", id1, id2)
	}

	// same term for another learner is a new row
	other := item
	other.Learner = "ben"
	id3, err := CreateOrGetVocab(conn, other)
	if err != nil {
		t.Fatalf("create for other learner: %v", err)
	}
	if id3 == id1 {
		t.Fatal("vocab rows must be scoped per learner")
	}
}

func TestCreateOrGetVocabKeepsDefinition(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	now := time.Now().UTC()
	first := VocabItem{Learner: "anna", Term: "behaupten", Definition: "", CreatedAt: now, UpdatedAt: now}
	if _, err := CreateOrGetVocab(conn, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	// empty existing definition is filled from the new one
	second := first
	second.Definition = "etwas als wahr darstellen"
	if _, err := CreateOrGetVocab(conn, second); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := GetVocabByTerm(conn, "anna", "behaupten")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Definition != "etwas als wahr darstellen" {
		t.Fatalf("definition not backfilled: %q", got.Definition)
	}

	// a present definition is not overwritten
	third := first
	third.Definition = "something else"
	if _, err := CreateOrGetVocab(conn, third); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = GetVocabByTerm(conn, "anna", "behaupten")
	if got.Definition != "etwas als wahr darstellen" {
		t.Fatalf("definition overwritten: %q", got.Definition)
	}
}

func TestSessionVocabLinks(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	tpl := testTemplate()
	if err := InsertTemplate(conn, tpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	run := insertTestRun(t, conn, tpl, "anna")

	now := time.Now().UTC()
	s := Session{ID: uuid.New(), RunID: run.ID, StepOrder: 0, StepKind: StepReadRespond, Status: SessionCompleted, StartedAt: now}
	if err := InsertSession(conn, s); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	vocabID, err := CreateOrGetVocab(conn, VocabItem{Learner: "anna", Term: "täuschen", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("create vocab: %v", err)
	}
	if err := LinkSessionVocab(conn, s.ID, vocabID, "selected"); err != nil {
		t.Fatalf("link: %v", err)
	}
	// idempotent
	if err := LinkSessionVocab(conn, s.ID, vocabID, "selected"); err != nil {
		t.Fatalf("relink: %v", err)
	}

	items, err := VocabForSession(conn, s.ID)
	if err != nil {
		t.Fatalf("vocab for session: %v", err)
	}
	if len(items) != 1 || items[0].Term != "täuschen" {
		t.Fatalf("unexpected items: %+v", items)
	}

	byRun, err := VocabForRun(conn, run.ID)
	if err != nil {
		t.Fatalf("vocab for run: %v", err)
	}
	if len(byRun) != 1 {
		t.Fatalf("expected 1 item for run, got %d", len(byRun))
	}
}

func TestMarkVocabPracticed(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()

	now := time.Now().UTC()
	id, err := CreateOrGetVocab(conn, VocabItem{Learner: "anna", Term: "drohen", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("create vocab: %v", err)
	}

	if err := MarkVocabPracticed(conn, id, now); err != nil {
		t.Fatalf("mark practiced: %v", err)
	}
	if err := MarkVocabPracticed(conn, id, now.Add(time.Hour)); err != nil {
		t.Fatalf("mark practiced again: %v", err)
	}

	got, err := GetVocabByTerm(conn, "anna", "drohen")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PracticeCount != 2 || got.LastPracticedAt == nil {
		t.Fatalf("practice bookkeeping wrong: %+v", got)
	}

	err = MarkVocabPracticed(conn, uuid.New(), now)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown id, got %v", err)
	}
}
