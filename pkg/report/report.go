// Package report summarizes completed sessions: a recent-session table,
// per-kind averages, and CSV export.
package report

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sprachpfad/pkg/db"
	"sprachpfad/pkg/path"
)

// Row is one completed session flattened for display.
type Row struct {
	SessionID   uuid.UUID
	CompletedAt string
	Kind        db.StepKind
	Result      string
	WordCount   float64
	UniqueRatio float64
	OverlapF1   float64
	Duration    float64
	LowQuality  bool
	ASREmpty    bool
}

// Filter narrows which sessions a report includes.
type Filter struct {
	Kind db.StepKind
	// OnlyLowQuality keeps only flagged sessions; useful for spotting
	// recording problems.
	OnlyLowQuality bool
	// OnlyEmpty keeps only sessions whose recognition came back empty.
	OnlyEmpty bool
}

// FetchLastSessions loads the learner's most recent completed sessions,
// newest first, with outcome payloads decoded. Undecodable payloads keep
// the row with zeroed metrics rather than failing the report.
func FetchLastSessions(conn *sql.DB, learner string, last int, f Filter) ([]Row, error) {
	if last <= 0 {
		last = 20
	}
	sessions, err := db.LastSessions(conn, learner, last, f.Kind)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	var rows []Row
	for _, s := range sessions {
		r := Row{SessionID: s.ID, Kind: s.StepKind}
		if s.CompletedAt != nil {
			r.CompletedAt = s.CompletedAt.Format("2006-01-02 15:04")
		}
		outcome, err := path.DecodeOutcome(s.Outcome)
		if err == nil {
			r.Result = outcome.Result
			r.WordCount = outcome.Stats["word_count"]
			r.UniqueRatio = outcome.Stats["unique_ratio"]
			r.OverlapF1 = outcome.Stats["overlap_f1"]
			r.Duration = outcome.DurationSeconds
			r.LowQuality = outcome.Flags["low_quality"]
			r.ASREmpty = outcome.Flags["asr_empty"]
		}
		if f.OnlyLowQuality && !r.LowQuality {
			continue
		}
		if f.OnlyEmpty && !r.ASREmpty {
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// RenderTable writes an aligned plain-text table of the rows.
func RenderTable(w io.Writer, rows []Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "Keine Sessions gefunden.")
		return
	}
	headers := []string{"completed", "kind", "result", "words", "uniq", "f1", "dur_s", "lowq"}
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{
			r.CompletedAt,
			string(r.Kind),
			r.Result,
			strconv.Itoa(int(r.WordCount)),
			fmt.Sprintf("%.3f", r.UniqueRatio),
			fmt.Sprintf("%.3f", r.OverlapF1),
			fmt.Sprintf("%.1f", r.Duration),
			yn(r.LowQuality),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range data {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	writeRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = pad(c, widths[i])
		}
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}
	writeRow(headers)
	dashes := make([]string, len(headers))
	for i, width := range widths {
		dashes[i] = strings.Repeat("-", width)
	}
	writeRow(dashes)
	for _, row := range data {
		writeRow(row)
	}
}

// KindSummary aggregates rows of one step kind.
type KindSummary struct {
	Kind        db.StepKind
	Count       int
	AvgWords    float64
	AvgUnique   float64
	AvgF1       float64
	LowQRate    float64
	EmptyRate   float64
}

// Summarize computes per-kind averages over the rows.
func Summarize(rows []Row) []KindSummary {
	byKind := map[db.StepKind][]Row{}
	var order []db.StepKind
	for _, r := range rows {
		if _, seen := byKind[r.Kind]; !seen {
			order = append(order, r.Kind)
		}
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}

	var out []KindSummary
	for _, kind := range order {
		group := byKind[kind]
		s := KindSummary{Kind: kind, Count: len(group)}
		lowq, empty := 0, 0
		for _, r := range group {
			s.AvgWords += r.WordCount
			s.AvgUnique += r.UniqueRatio
			s.AvgF1 += r.OverlapF1
			if r.LowQuality {
				lowq++
			}
			if r.ASREmpty {
				empty++
			}
		}
		n := float64(len(group))
		s.AvgWords /= n
		s.AvgUnique /= n
		s.AvgF1 /= n
		s.LowQRate = float64(lowq) / n
		s.EmptyRate = float64(empty) / n
		out = append(out, s)
	}
	return out
}

// RenderSummary writes the per-kind aggregate lines.
func RenderSummary(w io.Writer, summaries []KindSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "Keine Sessions gefunden.")
		return
	}
	fmt.Fprintln(w, "SUMMARY (Durchschnittswerte):")
	for _, s := range summaries {
		fmt.Fprintf(w, "- %-12s | n=%3d | words=%.1f | uniq=%.3f | f1=%.3f | lowq=%.2f | empty=%.2f\n",
			s.Kind, s.Count, s.AvgWords, s.AvgUnique, s.AvgF1, s.LowQRate, s.EmptyRate)
	}
}

// WriteCSV exports the rows for external analysis.
func WriteCSV(rows []Row, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create csv %s: %w", outPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"session_id", "completed_at", "kind", "result", "word_count", "unique_ratio", "overlap_f1", "duration_seconds", "low_quality", "asr_empty"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.SessionID.String(),
			r.CompletedAt,
			string(r.Kind),
			r.Result,
			strconv.Itoa(int(r.WordCount)),
			fmt.Sprintf("%.4f", r.UniqueRatio),
			fmt.Sprintf("%.4f", r.OverlapF1),
			fmt.Sprintf("%.1f", r.Duration),
			yn(r.LowQuality),
			yn(r.ASREmpty),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
