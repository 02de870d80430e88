package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/asr"
	"sprachpfad/pkg/audio"
	"sprachpfad/pkg/coach"
	"sprachpfad/pkg/config"
	"sprachpfad/pkg/db"
	"sprachpfad/pkg/exercise"
	"sprachpfad/pkg/path"
	"sprachpfad/pkg/report"
	"sprachpfad/pkg/texts"
	"sprachpfad/pkg/vocab"
)

const usage = `sprachpfad - guided German practice paths

Usage:
  sprachpfad template add -name NAME -steps SPEC [-level LVL] [-desc TEXT]
  sprachpfad template list
  sprachpfad run start [-template NAME]
  sprachpfad run next
  sprachpfad run resume
  sprachpfad run status
  sprachpfad vocab add -term TERM [-def TEXT] [-example TEXT]
  sprachpfad vocab list
  sprachpfad vocab import -file PATH
  sprachpfad report [-last N] [-kind KIND] [-csv PATH] [-lowq] [-empty] [-summary]

Step spec format: comma-separated steps, e.g.
  read_respond:news:3,vocab_drill,review:2
`

// app bundles the wired components every command works with.
type app struct {
	cfg      *config.Config
	conn     *sql.DB
	tpls     *path.Templates
	ledger   *path.Ledger
	manager  *path.Manager
	vocab    *vocab.Store
	executor *exercise.Executor
}

func main() {
	cfgPath := os.Getenv("SPRACHPFAD_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.SetupLogging(cfg.Logging)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer a.conn.Close()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config) (*app, error) {
	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	tpls := path.NewTemplates(conn)
	ledger := path.NewLedger(conn)
	store := vocab.NewStore(conn)

	provider := texts.NewProvider()
	if len(cfg.Texts.NewsURLs) > 0 {
		provider.Register(db.SourceNews, texts.NewURLSource(cfg.Texts.NewsURLs))
	}
	provider.Register(db.SourceBook,
		texts.NewFilePool(cfg.Texts.BookDir, cfg.Texts.WordsPerChunk, cfg.Texts.ProgressPath))

	manager := path.NewManager(conn, tpls, ledger, provider, store)

	coachBackend, err := coach.New(cfg.Coach)
	if err != nil {
		return nil, err
	}

	exec := exercise.NewExecutor(conn, ledger, store, exercise.NewConsoleUI(os.Stdin, os.Stdout))
	exec.Coach = coachBackend
	exec.Thresholds = cfg.Quality.Thresholds
	exec.WarnPriority = cfg.Quality.WarnPriority
	exec.AudioDir = cfg.Audio.Dir
	exec.CutAtMark = cfg.Audio.CutAtPunkt
	if cfg.Audio.MaxMinutes > 0 {
		exec.MaxRecordDur = time.Duration(cfg.Audio.MaxMinutes * float64(time.Minute))
	}
	if cfg.Audio.Enabled {
		exec.Recorder = audio.NewMicRecorder()
		flavor := asr.FlavorOpenAI
		if cfg.ASR.Type == "webservice" {
			flavor = asr.FlavorWebservice
		}
		client := asr.NewWhisperClient(cfg.ASR.Endpoint, flavor)
		if cfg.ASR.Model != "" {
			client.Model = cfg.ASR.Model
		}
		if cfg.ASR.Language != "" {
			client.Language = cfg.ASR.Language
		}
		client.APIKey = cfg.ASR.APIKey
		exec.Transcriber = client
	}

	a := &app{
		cfg:      cfg,
		conn:     conn,
		tpls:     tpls,
		ledger:   ledger,
		manager:  manager,
		vocab:    store,
		executor: exec,
	}
	return a, a.startup()
}

// startup sweeps sessions left open by a crashed process, seeds the
// default template, and applies audio retention.
func (a *app) startup() error {
	if n, err := a.ledger.CloseStrayOpenSessions(a.cfg.Learner); err != nil {
		return err
	} else if n > 0 {
		slog.Warn("closed stray open sessions", "count", n)
	}
	if _, err := a.tpls.EnsureDefault(); err != nil {
		return err
	}
	if a.cfg.Audio.KeepLast > 0 || a.cfg.Audio.KeepDays > 0 {
		if n, err := audio.CleanupRetention(a.cfg.Audio.Dir, a.cfg.Audio.KeepLast, a.cfg.Audio.KeepDays); err == nil && n > 0 {
			slog.Info("cleaned old recordings", "deleted", n)
		}
	}
	return nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "template":
		return a.cmdTemplate(args)
	case "run":
		return a.cmdRun(ctx, args)
	case "vocab":
		return a.cmdVocab(args)
	case "report":
		return a.cmdReport(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) cmdTemplate(args []string) error {
	if len(args) == 0 {
		return errors.New("template needs a subcommand: add | list")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("template add", flag.ExitOnError)
		name := fs.String("name", "", "template name")
		level := fs.String("level", "B1", "CEFR level")
		desc := fs.String("desc", "", "description")
		stepsSpec := fs.String("steps", "", "step spec, e.g. read_respond:news:3,vocab_drill,review:2")
		_ = fs.Parse(args[1:])

		steps, err := parseSteps(*stepsSpec)
		if err != nil {
			return err
		}
		tpl, err := a.tpls.Save(*name, *level, *desc, steps)
		if err != nil {
			return err
		}
		fmt.Printf("Template %q angelegt (%d Schritte, id %s)\n", tpl.Name, len(tpl.Steps), tpl.ID)
		return nil
	case "list":
		tpls, err := a.tpls.List()
		if err != nil {
			return err
		}
		for _, t := range tpls {
			fmt.Printf("%-16s %-4s %d Schritte  %s\n", t.Name, t.Level, len(t.Steps), t.Description)
		}
		return nil
	default:
		return fmt.Errorf("unknown template subcommand %q", args[0])
	}
}

func (a *app) cmdRun(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("run needs a subcommand: start | next | resume | status")
	}
	learner := a.cfg.Learner
	switch args[0] {
	case "start":
		fs := flag.NewFlagSet("run start", flag.ExitOnError)
		tplName := fs.String("template", path.DefaultTemplateName, "template name")
		_ = fs.Parse(args[1:])

		tpl, err := a.tpls.GetByName(*tplName)
		if err != nil {
			return err
		}
		step, err := a.manager.StartRun(ctx, learner, tpl.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Run gestartet (Template %q). Schritt 1: %s\n", tpl.Name, step.Spec.Kind)
		return a.executor.Execute(ctx, step)
	case "next":
		run, err := a.manager.GetActiveRun(learner)
		if err != nil {
			return err
		}
		step, err := a.manager.AdvanceRun(ctx, run.ID)
		if err != nil {
			return err
		}
		if step.Done {
			fmt.Println("Run abgeschlossen. Gut gemacht!")
			return nil
		}
		fmt.Printf("Schritt %d: %s\n", step.Spec.Order+1, step.Spec.Kind)
		return a.executor.Execute(ctx, step)
	case "resume":
		run, err := a.manager.GetActiveRun(learner)
		if err != nil {
			return err
		}
		step, err := a.manager.ResumeStep(ctx, run.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Schritt %d fortgesetzt: %s\n", step.Spec.Order+1, step.Spec.Kind)
		return a.executor.Execute(ctx, step)
	case "status":
		run, err := a.manager.GetActiveRun(learner)
		if errors.Is(err, path.ErrNoActiveRun) {
			fmt.Println("Kein aktiver Run.")
			return nil
		}
		if err != nil {
			return err
		}
		ov, err := a.manager.RunOverview(run.ID)
		if err != nil {
			return err
		}
		// a completed run parks current_step at the step count
		fmt.Printf("Run %s (Template %q), Schritt %d/%d\n",
			ov.Run.ID, ov.Template.Name,
			min(ov.Run.CurrentStep+1, len(ov.Template.Steps)), len(ov.Template.Steps))
		for _, s := range ov.Sessions {
			outcome, _ := path.DecodeOutcome(s.Outcome)
			fmt.Printf("  Schritt %d %-12s %-9s %s\n", s.StepOrder+1, s.StepKind, s.Status, outcome.Result)
		}
		return nil
	default:
		return fmt.Errorf("unknown run subcommand %q", args[0])
	}
}

func (a *app) cmdVocab(args []string) error {
	if len(args) == 0 {
		return errors.New("vocab needs a subcommand: add | list | import")
	}
	learner := a.cfg.Learner
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("vocab add", flag.ExitOnError)
		term := fs.String("term", "", "term to add")
		def := fs.String("def", "", "definition")
		example := fs.String("example", "", "example sentence")
		_ = fs.Parse(args[1:])

		id, err := a.vocab.Add(db.VocabItem{
			ID:         uuid.New(),
			Learner:    learner,
			Term:       strings.ToLower(*term),
			Definition: *def,
			Example1:   *example,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Gespeichert: %s (%s)\n", *term, id)
		return nil
	case "list":
		items, err := a.vocab.List(learner)
		if err != nil {
			return err
		}
		for _, it := range items {
			practiced := "nie"
			if it.LastPracticedAt != nil {
				practiced = it.LastPracticedAt.Format("2006-01-02")
			}
			fmt.Printf("%-24s %3dx geübt (zuletzt %s)  %s\n", it.Term, it.PracticeCount, practiced, it.Definition)
		}
		return nil
	case "import":
		fs := flag.NewFlagSet("vocab import", flag.ExitOnError)
		file := fs.String("file", "", "JSON term file")
		_ = fs.Parse(args[1:])

		n, err := vocab.NewImporter(a.vocab).ImportFile(*file, learner)
		if err != nil {
			return err
		}
		fmt.Printf("%d Begriffe importiert.\n", n)
		return nil
	default:
		return fmt.Errorf("unknown vocab subcommand %q", args[0])
	}
}

func (a *app) cmdReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	last := fs.Int("last", 20, "number of sessions")
	kind := fs.String("kind", "", "filter by step kind")
	csvPath := fs.String("csv", "", "write CSV to path")
	lowq := fs.Bool("lowq", false, "only low-quality sessions")
	empty := fs.Bool("empty", false, "only empty-ASR sessions")
	summary := fs.Bool("summary", false, "print per-kind averages")
	_ = fs.Parse(args)

	rows, err := report.FetchLastSessions(a.conn, a.cfg.Learner, *last, report.Filter{
		Kind:           db.StepKind(*kind),
		OnlyLowQuality: *lowq,
		OnlyEmpty:      *empty,
	})
	if err != nil {
		return err
	}
	if *csvPath != "" {
		if err := report.WriteCSV(rows, *csvPath); err != nil {
			return err
		}
		fmt.Printf("CSV geschrieben: %s\n", *csvPath)
		return nil
	}
	if *summary {
		report.RenderSummary(os.Stdout, report.Summarize(rows))
		return nil
	}
	report.RenderTable(os.Stdout, rows)
	return nil
}

// parseSteps parses "kind[:source|count[:questions]]" elements. For
// read_respond the second field is the source and the third the question
// count; for review the second field is the sample size.
func parseSteps(spec string) ([]db.StepSpec, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, errors.New("-steps is required")
	}
	var steps []db.StepSpec
	for i, part := range strings.Split(spec, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		kind := db.StepKind(fields[0])
		if !kind.Valid() {
			return nil, fmt.Errorf("step %d: unknown kind %q", i+1, fields[0])
		}
		s := db.StepSpec{Order: i, Kind: kind}
		switch kind {
		case db.StepReadRespond:
			s.Params.Source = db.SourceNews
			if len(fields) > 1 && fields[1] != "" {
				s.Params.Source = db.SourceType(fields[1])
			}
			if len(fields) > 2 {
				q, err := strconv.Atoi(fields[2])
				if err != nil || q < 0 || q > 3 {
					return nil, fmt.Errorf("step %d: questions must be 0-3", i+1)
				}
				s.Params.Questions = q
			}
		case db.StepReview:
			if len(fields) > 1 {
				n, err := strconv.Atoi(fields[1])
				if err != nil || n <= 0 {
					return nil, fmt.Errorf("step %d: review count must be positive", i+1)
				}
				s.Params.ReviewCount = n
			}
		}
		steps = append(steps, s)
	}
	return steps, nil
}
