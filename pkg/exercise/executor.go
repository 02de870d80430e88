// Package exercise executes the concrete step flows of a run: reading and
// retelling a text, drilling vocabulary, and reviewing old terms. All
// blocking work (recording, recognition, feedback) happens before the
// single transaction that completes the session.
package exercise

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/analysis"
	"sprachpfad/pkg/asr"
	"sprachpfad/pkg/audio"
	"sprachpfad/pkg/coach"
	"sprachpfad/pkg/db"
	"sprachpfad/pkg/path"
	"sprachpfad/pkg/vocab"
)

// ErrUnknownStepKind is returned for step kinds without a flow.
var ErrUnknownStepKind = errors.New("unknown step kind")

// result carries everything a finished flow wants persisted.
type result struct {
	outcome   path.Outcome
	selected  []db.VocabItem
	practiced []uuid.UUID
	relation  string
}

type flowFunc func(ctx context.Context, step path.Step) (result, error)

// Executor runs step flows and persists their outcome. Recorder and
// Transcriber may be nil; the executor then falls back to typed answers,
// which keeps the app usable without a microphone or ASR server.
type Executor struct {
	DB           *sql.DB
	Ledger       *path.Ledger
	Vocab        *vocab.Store
	UI           UI
	Recorder     audio.Recorder
	Transcriber  asr.Transcriber
	Coach        coach.Backend
	Thresholds   analysis.Thresholds
	WarnPriority []string
	AudioDir     string
	MaxRecordDur time.Duration
	CutAtMark    bool
	Logger       *slog.Logger

	flows map[db.StepKind]flowFunc
}

// NewExecutor wires an executor with the default flow table.
func NewExecutor(conn *sql.DB, ledger *path.Ledger, store *vocab.Store, ui UI) *Executor {
	e := &Executor{
		DB:           conn,
		Ledger:       ledger,
		Vocab:        store,
		UI:           ui,
		Coach:        coach.NewMockBackend(),
		Thresholds:   analysis.DefaultThresholds(),
		AudioDir:     "recordings",
		MaxRecordDur: 2 * time.Minute,
		CutAtMark:    true,
		Logger:       slog.Default(),
	}
	e.flows = map[db.StepKind]flowFunc{
		db.StepReadRespond: e.runReadRespond,
		db.StepVocabDrill:  e.runVocabDrill,
		db.StepReview:      e.runReview,
	}
	return e
}

// Execute runs the flow for the step's kind and completes its session.
// Cancellation mid-flow leaves the session open so it can be resumed;
// a completed flow is persisted atomically with its vocabulary links.
func (e *Executor) Execute(ctx context.Context, step path.Step) error {
	flow, ok := e.flows[step.Spec.Kind]
	if !ok {
		return fmt.Errorf("step kind %q: %w", step.Spec.Kind, ErrUnknownStepKind)
	}

	res, err := flow(ctx, step)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.Logger.Warn("step interrupted, session stays open", "session", step.Session.ID)
		}
		return err
	}

	learner := step.Run.Learner
	err = db.WithTx(e.DB, func(tx *sql.Tx) error {
		if err := e.Ledger.CompleteSessionIn(tx, step.Session.ID, res.outcome); err != nil {
			return err
		}
		if len(res.selected) > 0 {
			if _, err := e.Vocab.RecordSelectionIn(tx, step.Session.ID, learner, res.selected, vocab.RelationSelected); err != nil {
				return err
			}
		}
		if len(res.practiced) > 0 {
			if err := e.Vocab.MarkPracticedIn(tx, step.Session.ID, res.practiced, res.relation); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.Logger.Info("step finished",
		"session", step.Session.ID, "kind", step.Spec.Kind,
		"selected", len(res.selected), "practiced", len(res.practiced))
	return nil
}

// answer is one recorded or typed learner utterance plus its analysis.
type answer struct {
	Transcript string
	AudioPath  string
	Duration   time.Duration
	Stats      analysis.Stats
	Flags      analysis.Flags
}

// captureAnswer records (or reads) one utterance and judges it. The
// quality warning, if any, is shown immediately.
func (e *Executor) captureAnswer(ctx context.Context, mode analysis.Mode, label string, sessionID uuid.UUID) (answer, error) {
	var a answer

	if e.Recorder == nil || e.Transcriber == nil {
		text, err := e.UI.Prompt("Antwort (tippen):")
		if err != nil {
			return a, err
		}
		a.Transcript = text
	} else {
		e.UI.Say("Aufnahme läuft. Enter beendet sie.")
		recCtx, cancel := context.WithCancel(ctx)
		go func() {
			_, _ = e.UI.Prompt("")
			cancel()
		}()
		outPath := filepath.Join(e.AudioDir, fmt.Sprintf("%s-%s.wav", sessionID, label))
		rec, err := e.Recorder.Record(recCtx, outPath, e.MaxRecordDur)
		cancel()
		if err != nil {
			return a, fmt.Errorf("record %s: %w", label, err)
		}
		if ctx.Err() != nil {
			return a, ctx.Err()
		}
		a.AudioPath = rec.Path
		a.Duration = rec.Duration

		tr, err := e.Transcriber.Transcribe(ctx, rec.Path)
		if err != nil {
			return a, err
		}
		a.Transcript = tr.Text
	}

	if ctx.Err() != nil {
		return a, ctx.Err()
	}
	if e.CutAtMark {
		a.Transcript = analysis.CutAtMark(a.Transcript)
	}
	a.Stats = analysis.ComputeStats(a.Transcript)
	a.Flags = analysis.ComputeFlags(mode, a.Transcript, a.Stats, a.Duration.Seconds(), e.Thresholds)
	e.UI.ShowWarning(analysis.BuildWarning(mode, a.Flags, e.WarnPriority))
	return a, nil
}

// feedback asks the coach backend; failures are logged and swallowed so
// the session still completes.
func (e *Executor) feedback(ctx context.Context, req coach.Request) string {
	if e.Coach == nil {
		return ""
	}
	resp, err := e.Coach.Generate(ctx, req)
	if err != nil {
		e.Logger.Warn("coach feedback unavailable", "err", err)
		return ""
	}
	e.UI.Say("\n%s", resp.FeedbackText)
	return resp.FeedbackText
}

func statsPayload(a answer) map[string]float64 {
	return map[string]float64{
		"word_count":     float64(a.Stats.WordCount),
		"unique_words":   float64(a.Stats.UniqueWords),
		"unique_ratio":   a.Stats.UniqueRatio,
		"avg_word_len":   a.Stats.AvgWordLen,
		"filler_count":   float64(a.Stats.FillerCount),
		"stopword_ratio": a.Flags.StopwordRatio,
	}
}
