package analysis

import "strings"

// Warning is the single advisory block shown after a low-quality answer.
// At most one warning surfaces per recording regardless of how many flags
// fired; Cause names the flag that won.
type Warning struct {
	Cause   string
	Summary string
	Hints   []string
}

// Warning causes, in default priority order.
const (
	CauseEmpty         = "empty"
	CauseHallucination = "hallucination"
	CauseSilence       = "silence"
	CauseLowQuality    = "low_quality"
)

// DefaultWarnPriority orders causes from most to least specific.
var DefaultWarnPriority = []string{CauseEmpty, CauseHallucination, CauseSilence, CauseLowQuality}

// BuildWarning selects the highest-priority applicable warning, or nil
// when the answer passed. priority may be nil for the default order.
func BuildWarning(mode Mode, flags Flags, priority []string) *Warning {
	if !(flags.ASREmpty || flags.RetellEmpty || flags.TooShort || flags.LowQuality) {
		return nil
	}
	if len(priority) == 0 {
		priority = DefaultWarnPriority
	}
	for _, cause := range priority {
		if w := warningFor(cause, mode, flags); w != nil {
			return w
		}
	}
	return nil
}

func warningFor(cause string, mode Mode, flags Flags) *Warning {
	switch strings.ToLower(cause) {
	case CauseEmpty:
		if !(flags.ASREmpty || flags.RetellEmpty || flags.TooShort) {
			return nil
		}
		w := &Warning{Cause: CauseEmpty, Summary: "Antwort ist leer oder zu kurz."}
		if mode == ModeRetell && flags.RetellEmpty {
			w.Hints = append(w.Hints,
				"Gib den Inhalt in 2-4 ganzen Sätzen wieder.",
				"Starte direkt mit dem Kern: Was ist passiert, was ist die Aussage?",
				"Vermeide reine Abbruch-Sätze wie \"fertig\" oder \"das war's\".")
		}
		if mode == ModeQuestion && flags.TooShort {
			w.Hints = append(w.Hints,
				"Antworte vollständiger (mindestens 1-2 Sätze).",
				"Bleib beim Inhalt des Abschnitts und der Frage.")
		}
		if flags.ASREmpty {
			w.Hints = append(w.Hints,
				"Sprich lauter und näher ans Mikrofon.",
				"Prüfe das Input-Device.",
				"Sag am Ende deutlich 'punkt' oder teste ohne Schnittmarke.")
		}
		return w
	case CauseHallucination:
		if !flags.HallucinationHit {
			return nil
		}
		return &Warning{
			Cause:   CauseHallucination,
			Summary: "Antwort wirkt wie ASR-Geistertext (inhaltlich unzuverlässig).",
			Hints: []string{
				"Die Erkennung hat vermutlich aus Stille oder Hintergrundgeräusch Text geraten.",
				"Wiederhole 1-2 klare Sätze zum Inhalt.",
			},
		}
	case CauseSilence:
		if !flags.SuspectedSilence {
			return nil
		}
		return &Warning{
			Cause:   CauseSilence,
			Summary: "Aufnahme wirkt wie Stille oder Wiederholung (inhaltlich unzuverlässig).",
			Hints: []string{
				"Es klingt nach Stille oder Hintergrundgeräusch.",
				"Wiederhole kurz: 1-2 klare Sätze, näher ans Mikro.",
			},
		}
	case CauseLowQuality:
		if !flags.LowQuality {
			return nil
		}
		return &Warning{
			Cause:   CauseLowQuality,
			Summary: "Antwort wirkt inhaltlich unzuverlässig.",
			Hints: []string{
				"Wiederhole 1-2 klare Sätze zum Inhalt.",
				"Sprich ruhig, deutlich und näher ins Mikro.",
				"Prüfe das Input-Device.",
			},
		}
	}
	return nil
}
