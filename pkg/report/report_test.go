package report

import (
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/db"
	"sprachpfad/pkg/path"

	_ "github.com/mattn/go-sqlite3"
)

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

func seedRunForReport(t *testing.T, conn *sql.DB, learner string) db.Run {
	t.Helper()
	tpl, err := path.NewTemplates(conn).Save("standard", "B1", "", []db.StepSpec{
		{Kind: db.StepReadRespond, Params: db.StepParams{Source: db.SourceNews}},
	})
	if err != nil {
		t.Fatalf("save template: %v", err)
	}
	run := db.Run{
		ID:         uuid.New(),
		TemplateID: tpl.ID,
		Learner:    learner,
		Status:     db.RunActive,
		StartedAt:  time.Now().UTC(),
	}
	if err := db.InsertRun(conn, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	return run
}

func seedCompletedSession(t *testing.T, conn *sql.DB, runID uuid.UUID, kind db.StepKind, startedAt time.Time, outcome path.Outcome) uuid.UUID {
	t.Helper()
	payload, err := outcome.Encode()
	if err != nil {
		t.Fatalf("encode outcome: %v", err)
	}
	completed := startedAt.Add(3 * time.Minute)
	s := db.Session{
		ID:          uuid.New(),
		RunID:       runID,
		StepOrder:   0,
		StepKind:    kind,
		Status:      db.SessionCompleted,
		Outcome:     payload,
		StartedAt:   startedAt,
		CompletedAt: &completed,
	}
	if err := db.InsertSession(conn, s); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	return s.ID
}

func seedReportData(t *testing.T, conn *sql.DB) {
	t.Helper()
	run := seedRunForReport(t, conn, "anna")
	base := time.Now().UTC().Add(-time.Hour)

	seedCompletedSession(t, conn, run.ID, db.StepReadRespond, base, path.Outcome{
		Result:          path.ResultCompleted,
		DurationSeconds: 40,
		Stats:           map[string]float64{"word_count": 30, "unique_ratio": 0.8, "overlap_f1": 0.5},
		Flags:           map[string]bool{"low_quality": false},
	})
	seedCompletedSession(t, conn, run.ID, db.StepReadRespond, base.Add(time.Minute), path.Outcome{
		Result:          path.ResultCompleted,
		DurationSeconds: 10,
		Stats:           map[string]float64{"word_count": 4, "unique_ratio": 1.0},
		Flags:           map[string]bool{"low_quality": true, "asr_empty": true},
	})
	seedCompletedSession(t, conn, run.ID, db.StepVocabDrill, base.Add(2*time.Minute), path.Outcome{
		Result: path.ResultCompleted,
		Stats:  map[string]float64{"word_count": 12, "unique_ratio": 0.9},
	})
}

func TestFetchLastSessions(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()
	seedReportData(t, conn)

	rows, err := FetchLastSessions(conn, "anna", 10, Filter{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: %d", len(rows))
	}
	// newest first
	if rows[0].Kind != db.StepVocabDrill {
		t.Fatalf("order: %+v", rows[0])
	}
	if rows[1].WordCount != 4 || !rows[1].LowQuality || !rows[1].ASREmpty {
		t.Fatalf("flagged row: %+v", rows[1])
	}
	if rows[2].OverlapF1 != 0.5 || rows[2].Duration != 40 {
		t.Fatalf("metrics row: %+v", rows[2])
	}
	if rows[0].CompletedAt == "" {
		t.Fatal("completed timestamp missing")
	}
}

func TestFetchLastSessionsFilters(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()
	seedReportData(t, conn)

	rows, err := FetchLastSessions(conn, "anna", 10, Filter{Kind: db.StepReadRespond})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("kind filter: %d rows", len(rows))
	}

	rows, err = FetchLastSessions(conn, "anna", 10, Filter{OnlyLowQuality: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].LowQuality {
		t.Fatalf("lowq filter: %+v", rows)
	}

	rows, err = FetchLastSessions(conn, "anna", 10, Filter{OnlyEmpty: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].ASREmpty {
		t.Fatalf("empty filter: %+v", rows)
	}

	rows, err = FetchLastSessions(conn, "bernd", 10, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("other learner: %+v", rows)
	}
}

func TestFetchLastSessionsToleratesBadOutcome(t *testing.T) {
	conn := setupTestDB(t)
	defer conn.Close()
	run := seedRunForReport(t, conn, "anna")

	started := time.Now().UTC()
	completed := started.Add(time.Minute)
	s := db.Session{
		ID:          uuid.New(),
		RunID:       run.ID,
		StepKind:    db.StepReadRespond,
		Status:      db.SessionCompleted,
		Outcome:     "{broken",
		StartedAt:   started,
		CompletedAt: &completed,
	}
	if err := db.InsertSession(conn, s); err != nil {
		t.Fatal(err)
	}

	rows, err := FetchLastSessions(conn, "anna", 10, Filter{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].Result != "" || rows[0].WordCount != 0 {
		t.Fatalf("broken outcome row: %+v", rows)
	}
}

func TestSummarize(t *testing.T) {
	rows := []Row{
		{Kind: db.StepReadRespond, WordCount: 30, UniqueRatio: 0.8, OverlapF1: 0.5},
		{Kind: db.StepReadRespond, WordCount: 10, UniqueRatio: 0.6, OverlapF1: 0.3, LowQuality: true, ASREmpty: true},
		{Kind: db.StepVocabDrill, WordCount: 12},
	}
	summaries := Summarize(rows)
	if len(summaries) != 2 {
		t.Fatalf("summaries: %+v", summaries)
	}
	rr := summaries[0]
	if rr.Kind != db.StepReadRespond || rr.Count != 2 {
		t.Fatalf("first summary: %+v", rr)
	}
	if rr.AvgWords != 20 || rr.AvgUnique != 0.7 || rr.AvgF1 != 0.4 {
		t.Fatalf("averages: %+v", rr)
	}
	if rr.LowQRate != 0.5 || rr.EmptyRate != 0.5 {
		t.Fatalf("rates: %+v", rr)
	}

	if got := Summarize(nil); got != nil {
		t.Fatalf("empty input: %+v", got)
	}
}

func TestRenderTable(t *testing.T) {
	var b strings.Builder
	RenderTable(&b, nil)
	if !strings.Contains(b.String(), "Keine Sessions gefunden.") {
		t.Fatalf("empty table: %q", b.String())
	}

	b.Reset()
	RenderTable(&b, []Row{{CompletedAt: "2026-08-31 10:00", Kind: db.StepReadRespond, Result: "completed", WordCount: 30}})
	out := b.String()
	if !strings.Contains(out, "completed") || !strings.Contains(out, "read_respond") {
		t.Fatalf("table output:\n%s", out)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 3 {
		t.Fatalf("expected header, separator and one row:\n%s", out)
	}
}

func TestWriteCSV(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "report.csv")
	rows := []Row{{
		SessionID:   uuid.New(),
		CompletedAt: "2026-08-31 10:00",
		Kind:        db.StepReadRespond,
		Result:      "completed",
		WordCount:   30,
		UniqueRatio: 0.8125,
		OverlapF1:   0.5,
		Duration:    40.5,
		LowQuality:  true,
	}}
	if err := WriteCSV(rows, outPath); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records: %+v", records)
	}
	if records[0][0] != "session_id" {
		t.Fatalf("header: %v", records[0])
	}
	got := records[1]
	if got[2] != "read_respond" || got[4] != "30" || got[5] != "0.8125" || got[8] != "Y" || got[9] != "N" {
		t.Fatalf("row: %v", got)
	}
}
