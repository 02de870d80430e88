package analysis

import "strings"

// Mode distinguishes the answer being judged. Retell answers have a
// higher minimum length than short question answers.
type Mode string

const (
	ModeRetell   Mode = "retell"
	ModeQuestion Mode = "question"
)

// Transcript fragments that whisper-style ASR fabricates from silence.
var hallucinationPhrases = []string{
	"das ist der erste teil",
	"das ist der erste mal",
	"das ist der erste",
	"das war's",
	"das war es",
	"ich habe mich nicht verstanden",
	"ich habe mich verstanden",
	"ich bin in der stadt",
	"ich habe jetzt noch ein paar sachen zu tun",
	"ich kann mich nicht erinnern",
	"teil des videos",
}

// Thresholds tune the quality heuristics. Zero fields fall back to
// DefaultThresholds values so a partial config stays sane.
type Thresholds struct {
	MinChars             int     `mapstructure:"min_chars"`
	MinRetellWords       int     `mapstructure:"min_retell_words"`
	MinQuestionWords     int     `mapstructure:"min_question_words"`
	SilenceMinSeconds    float64 `mapstructure:"silence_min_seconds"`
	SilenceMaxWords      int     `mapstructure:"silence_max_words"`
	RepetitionUniqueMax  float64 `mapstructure:"repetition_unique_max"`
	StopwordHeavyRatio   float64 `mapstructure:"stopword_heavy_ratio"`
	StopwordHeavyMinLen  int     `mapstructure:"stopword_heavy_min_len"`
	LongRepetitionWords  int     `mapstructure:"long_repetition_words"`
	LongRepetitionUnique float64 `mapstructure:"long_repetition_unique"`
}

// DefaultThresholds returns the tuned production values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinChars:             5,
		MinRetellWords:       12,
		MinQuestionWords:     6,
		SilenceMinSeconds:    8.0,
		SilenceMaxWords:      2,
		RepetitionUniqueMax:  0.20,
		StopwordHeavyRatio:   0.75,
		StopwordHeavyMinLen:  8,
		LongRepetitionWords:  40,
		LongRepetitionUnique: 0.25,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MinChars <= 0 {
		t.MinChars = d.MinChars
	}
	if t.MinRetellWords <= 0 {
		t.MinRetellWords = d.MinRetellWords
	}
	if t.MinQuestionWords <= 0 {
		t.MinQuestionWords = d.MinQuestionWords
	}
	if t.SilenceMinSeconds <= 0 {
		t.SilenceMinSeconds = d.SilenceMinSeconds
	}
	if t.SilenceMaxWords <= 0 {
		t.SilenceMaxWords = d.SilenceMaxWords
	}
	if t.RepetitionUniqueMax <= 0 {
		t.RepetitionUniqueMax = d.RepetitionUniqueMax
	}
	if t.StopwordHeavyRatio <= 0 {
		t.StopwordHeavyRatio = d.StopwordHeavyRatio
	}
	if t.StopwordHeavyMinLen <= 0 {
		t.StopwordHeavyMinLen = d.StopwordHeavyMinLen
	}
	if t.LongRepetitionWords <= 0 {
		t.LongRepetitionWords = d.LongRepetitionWords
	}
	if t.LongRepetitionUnique <= 0 {
		t.LongRepetitionUnique = d.LongRepetitionUnique
	}
	return t
}

// Flags are the quality verdicts for one recorded answer. LowQuality is
// the aggregate "show a warning" flag; the individual flags stay set so
// the report can distinguish causes.
type Flags struct {
	ASREmpty         bool    `json:"asr_empty"`
	RetellEmpty      bool    `json:"retell_empty"`
	TooShort         bool    `json:"too_short"`
	SuspectedSilence bool    `json:"suspected_silence"`
	HallucinationHit bool    `json:"hallucination_hit"`
	StopwordRatio    float64 `json:"stopword_ratio"`
	LowQuality       bool    `json:"low_quality"`
}

// Map flattens the flags for storage in a session outcome.
func (f Flags) Map() map[string]bool {
	return map[string]bool{
		"asr_empty":         f.ASREmpty,
		"retell_empty":      f.RetellEmpty,
		"too_short":         f.TooShort,
		"suspected_silence": f.SuspectedSilence,
		"hallucination_hit": f.HallucinationHit,
		"low_quality":       f.LowQuality,
	}
}

// ComputeFlags judges one transcript. durationSeconds may be zero when the
// recording length is unknown; the silence heuristic then stays off.
func ComputeFlags(mode Mode, transcript string, stats Stats, durationSeconds float64, th Thresholds) Flags {
	th = th.withDefaults()
	t := strings.TrimSpace(transcript)
	tLower := strings.ToLower(t)
	asrChars := len([]rune(t))
	asrWords := 0
	if t != "" {
		asrWords = len(strings.Fields(t))
	}

	var f Flags
	f.ASREmpty = asrChars < th.MinChars || stats.WordCount == 0

	switch mode {
	case ModeRetell:
		f.RetellEmpty = f.ASREmpty || stats.WordCount < th.MinRetellWords
	case ModeQuestion:
		f.TooShort = f.ASREmpty || stats.WordCount < th.MinQuestionWords
	}

	words := Tokenize(t)
	stopCount := 0
	for _, w := range words {
		if stopwordsDE[w] {
			stopCount++
		}
	}
	if len(words) > 0 {
		f.StopwordRatio = round3(float64(stopCount) / float64(len(words)))
	}

	phraseHit := false
	for _, p := range hallucinationPhrases {
		if strings.Contains(tLower, p) {
			phraseHit = true
			break
		}
	}
	stopwordHeavy := len(words) >= th.StopwordHeavyMinLen && f.StopwordRatio >= th.StopwordHeavyRatio
	f.HallucinationHit = phraseHit || stopwordHeavy

	// long recording with almost no words, or many words with almost no
	// variety, both read as silence the ASR guessed over
	if durationSeconds >= th.SilenceMinSeconds && asrWords <= th.SilenceMaxWords {
		f.SuspectedSilence = true
	}
	if stats.WordCount >= th.MinRetellWords && stats.UniqueRatio < th.RepetitionUniqueMax {
		f.SuspectedSilence = true
	}

	switch {
	case f.ASREmpty || f.RetellEmpty || f.TooShort:
		f.LowQuality = true
	case stats.WordCount >= th.LongRepetitionWords && stats.UniqueRatio <= th.LongRepetitionUnique:
		f.LowQuality = true
	case stats.WordCount >= 30 && f.HallucinationHit:
		f.LowQuality = true
	case stats.WordCount >= th.MinRetellWords && f.StopwordRatio >= th.StopwordHeavyRatio:
		f.LowQuality = true
	case f.SuspectedSilence:
		f.LowQuality = true
	}
	return f
}
