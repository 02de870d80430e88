package exercise

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sprachpfad/pkg/analysis"
	"sprachpfad/pkg/coach"
	"sprachpfad/pkg/db"
	"sprachpfad/pkg/path"
	"sprachpfad/pkg/vocab"
)

var questionPrompts = []string{
	"Frage 1: Was ist die Kernaussage? Antworte in einem Satz.",
	"Frage 2: Nenne zwei Details oder Argumente aus dem Text.",
	"Frage 3: Warum ist das so? Begründe mit weil oder deshalb.",
}

// runReadRespond shows a text, records a retell and optional follow-up
// questions, and collects the terms the learner wants to keep.
func (e *Executor) runReadRespond(ctx context.Context, step path.Step) (result, error) {
	if step.Text == nil {
		return result{}, fmt.Errorf("read_respond step %d has no text", step.Spec.Order)
	}
	e.UI.ShowText(step.Text.Title, step.Text.Content)

	e.UI.Say("Gib den Inhalt in eigenen Worten wieder (2-4 Sätze). Sag am Ende 'punkt'.")
	retell, err := e.captureAnswer(ctx, analysis.ModeRetell, "retell", step.Session.ID)
	if err != nil {
		return result{}, err
	}

	overlap := analysis.OverlapMetrics(step.Text.Content, retell.Transcript)
	feedbackText := e.feedback(ctx, coach.Request{
		Mode:       analysis.ModeRetell,
		Topic:      step.Text.Title,
		SourceText: step.Text.Content,
		Transcript: retell.Transcript,
		Stats:      retell.Stats,
		Flags:      retell.Flags,
	})

	flags := retell.Flags
	stats := statsPayload(retell)
	stats["overlap_precision"] = overlap.Precision
	stats["overlap_recall"] = overlap.Recall
	stats["overlap_f1"] = overlap.F1
	stats["duration_seconds"] = retell.Duration.Seconds()

	n := step.Spec.Params.Questions
	if n > len(questionPrompts) {
		n = len(questionPrompts)
	}
	for i := 0; i < n; i++ {
		e.UI.Say("\n%s", questionPrompts[i])
		qa, err := e.captureAnswer(ctx, analysis.ModeQuestion, fmt.Sprintf("q%d", i+1), step.Session.ID)
		if err != nil {
			return result{}, err
		}
		stats[fmt.Sprintf("q%d_word_count", i+1)] = float64(qa.Stats.WordCount)
		if qa.Flags.LowQuality {
			flags.LowQuality = true
		}
		e.feedback(ctx, coach.Request{
			Mode:       analysis.ModeQuestion,
			Topic:      step.Text.Title,
			SourceText: step.Text.Content,
			Transcript: qa.Transcript,
			Stats:      qa.Stats,
			Flags:      qa.Flags,
		})
	}

	targets := analysis.SuggestTargetTerms(step.Text.Content, retell.Transcript, 8)
	bonus := analysis.SuggestBonusTerms(step.Text.Content, 5)
	e.UI.Say("\nZielbegriffe: %s", strings.Join(targets, ", "))
	e.UI.Say("Bonusbegriffe: %s", strings.Join(bonus, ", "))

	selected, err := e.pickTerms(targets)
	if err != nil {
		return result{}, err
	}

	terms := make([]string, 0, len(selected))
	for _, it := range selected {
		terms = append(terms, it.Term)
	}
	return result{
		outcome: path.Outcome{
			Result:          path.ResultCompleted,
			Transcript:      retell.Transcript,
			AudioPath:       retell.AudioPath,
			DurationSeconds: retell.Duration.Seconds(),
			Stats:           stats,
			Flags:           flags.Map(),
			Terms:           terms,
			Feedback:        feedbackText,
		},
		selected: selected,
	}, nil
}

// pickTerms lets the learner choose which suggestions to keep. Empty
// input keeps the first three target terms.
func (e *Executor) pickTerms(targets []string) ([]db.VocabItem, error) {
	line, err := e.UI.Prompt("Welche Begriffe speichern? (Komma-getrennt, leer = Top 3)")
	if err != nil {
		return nil, err
	}
	var picked []string
	if strings.TrimSpace(line) == "" {
		if len(targets) > 3 {
			targets = targets[:3]
		}
		picked = targets
	} else {
		for _, t := range strings.Split(line, ",") {
			if t = strings.TrimSpace(t); t != "" {
				picked = append(picked, t)
			}
		}
	}
	items := make([]db.VocabItem, 0, len(picked))
	for _, term := range picked {
		items = append(items, db.VocabItem{Term: strings.ToLower(term)})
	}
	return items, nil
}

// runVocabDrill asks the learner to use each of the previous step's terms
// in a spoken sentence.
func (e *Executor) runVocabDrill(ctx context.Context, step path.Step) (result, error) {
	if len(step.Items) == 0 {
		e.UI.Say("Keine Begriffe aus dem vorherigen Schritt. Schritt wird übersprungen.")
		return result{outcome: path.Outcome{Result: path.ResultCompleted}}, nil
	}

	var practiced []uuid.UUID
	var terms []string
	hits := 0
	stats := map[string]float64{}

	for _, item := range step.Items {
		e.UI.Say("\nBegriff: %s", item.Term)
		if item.Definition != "" {
			e.UI.Say("Bedeutung: %s", item.Definition)
		}
		if item.Example1 != "" {
			e.UI.Say("Beispiel: %s", item.Example1)
		}
		e.UI.Say("Bilde einen eigenen Satz mit dem Begriff.")

		a, err := e.captureAnswer(ctx, analysis.ModeQuestion, "drill-"+item.Term, step.Session.ID)
		if err != nil {
			return result{}, err
		}
		usage := analysis.TermsUsed([]string{item.Term}, a.Transcript)
		if len(usage.Used) > 0 {
			hits++
			e.UI.Say("Gut, Begriff verwendet.")
		} else {
			e.UI.Say("Der Begriff kam nicht vor. Versuch ihn beim nächsten Mal einzubauen.")
		}
		practiced = append(practiced, item.ID)
		terms = append(terms, item.Term)
	}

	stats["drill_terms"] = float64(len(step.Items))
	stats["drill_hits"] = float64(hits)
	e.UI.Say("\nDrill fertig: %d von %d Begriffen verwendet.", hits, len(step.Items))

	return result{
		outcome: path.Outcome{
			Result: path.ResultCompleted,
			Stats:  stats,
			Terms:  terms,
		},
		practiced: practiced,
		relation:  vocab.RelationPracticed,
	}, nil
}

// runReview quizzes sampled terms definition-first.
func (e *Executor) runReview(ctx context.Context, step path.Step) (result, error) {
	if len(step.Items) == 0 {
		e.UI.Say("Noch kein Wortschatz zum Wiederholen. Schritt wird übersprungen.")
		return result{outcome: path.Outcome{Result: path.ResultCompleted}}, nil
	}

	var practiced []uuid.UUID
	var terms []string
	correct := 0

	for _, item := range step.Items {
		if ctx.Err() != nil {
			return result{}, ctx.Err()
		}
		prompt := item.Definition
		if prompt == "" {
			prompt = fmt.Sprintf("(keine Definition, Anfangsbuchstabe %q)", firstRune(item.Term))
		}
		e.UI.Say("\nGesucht: %s", prompt)
		guess, err := e.UI.Prompt("Begriff?")
		if err != nil {
			return result{}, err
		}
		if analysis.Normalize(guess) == analysis.Normalize(item.Term) {
			correct++
			e.UI.Say("Richtig.")
		} else {
			e.UI.Say("Gesucht war: %s", item.Term)
		}
		practiced = append(practiced, item.ID)
		terms = append(terms, item.Term)
	}

	e.UI.Say("\nWiederholung fertig: %d von %d richtig.", correct, len(step.Items))
	return result{
		outcome: path.Outcome{
			Result: path.ResultCompleted,
			Stats: map[string]float64{
				"review_terms":   float64(len(step.Items)),
				"review_correct": float64(correct),
			},
			Terms: terms,
		},
		practiced: practiced,
		relation:  vocab.RelationReviewed,
	}, nil
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
