package analysis

import (
	"math"
	"sort"
	"strings"
)

var fillerWordsDE = map[string]bool{
	"äh": true, "ähm": true, "hm": true, "also": true, "sozusagen": true,
	"quasi": true, "halt": true, "irgendwie": true, "nunja": true, "naja": true,
}

// Deliberately small stopword set; enough for diagnostics, not NLP.
var stopwordsDE = map[string]bool{
	"der": true, "die": true, "das": true, "ein": true, "eine": true,
	"einer": true, "einem": true, "einen": true, "eines": true,
	"und": true, "oder": true, "aber": true, "weil": true, "deshalb": true,
	"dass": true, "da": true, "so": true, "auch": true, "zu": true,
	"zum": true, "zur": true, "im": true, "in": true, "am": true, "an": true,
	"auf": true, "aus": true, "von": true, "mit": true, "für": true,
	"den": true, "dem": true, "des": true,
	"ich": true, "du": true, "er": true, "sie": true, "es": true,
	"wir": true, "ihr": true, "man": true, "sich": true,
	"ist": true, "sind": true, "war": true, "waren": true, "bin": true,
	"bist": true, "hat": true, "haben": true, "wird": true, "werden": true,
	"wurde": true, "nicht": true, "noch": true, "mehr": true, "mal": true,
	"jetzt": true, "hier": true, "dort": true,
	"als": true, "wie": true, "was": true, "wo": true, "wer": true,
	"wenn": true, "bei": true, "bis": true, "nach": true, "vor": true,
	"über": true, "unter": true, "gegen": true, "um": true,
}

// Stats are the surface measurements of one transcript.
type Stats struct {
	WordCount   int     `json:"word_count"`
	UniqueWords int     `json:"unique_words"`
	UniqueRatio float64 `json:"unique_ratio"`
	AvgWordLen  float64 `json:"avg_word_len"`
	FillerCount int     `json:"filler_count"`
}

// ComputeStats measures a transcript. The zero value is returned for
// empty input.
func ComputeStats(transcript string) Stats {
	words := Tokenize(transcript)
	if len(words) == 0 {
		return Stats{}
	}
	unique := toSet(words)
	totalLen := 0
	filler := 0
	for _, w := range words {
		totalLen += len([]rune(w))
		if fillerWordsDE[w] {
			filler++
		}
	}
	return Stats{
		WordCount:   len(words),
		UniqueWords: len(unique),
		UniqueRatio: round4(float64(len(unique)) / float64(len(words))),
		AvgWordLen:  round2(float64(totalLen) / float64(len(words))),
		FillerCount: filler,
	}
}

// SuggestTargetTerms picks up to k learnable words from a source text.
// Rare content words score highest; words missing from the learner's
// retell get a learning bonus, verb-looking words a slight one.
func SuggestTargetTerms(sourceText, spokenText string, k int) []string {
	var filtered []string
	for _, w := range Tokenize(sourceText) {
		if len([]rune(w)) < 5 || stopwordsDE[w] {
			continue
		}
		// skip inflected adjective and superlative forms
		if hasAnySuffix(w, "ste", "sten", "tem", "ten", "ter", "tes") {
			continue
		}
		filtered = append(filtered, w)
	}
	if len(filtered) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, w := range filtered {
		counts[w]++
	}
	spoken := toSet(Tokenize(spokenText))

	type scored struct {
		score float64
		word  string
	}
	list := make([]scored, 0, len(counts))
	for w, freq := range counts {
		score := 1.0 / float64(freq) // prefer rare words
		if !spoken[w] {
			score *= 2.0 // missing from the retell: worth learning
		}
		if strings.HasSuffix(w, "en") {
			score *= 1.2
		}
		list = append(list, scored{score, w})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].word > list[j].word
	})
	if k > len(list) {
		k = len(list)
	}
	out := make([]string, 0, k)
	for _, s := range list[:k] {
		out = append(out, s.word)
	}
	return out
}

// bonusVocab maps source keywords to curated expression-level terms.
var bonusVocab = []struct{ key, term string }{
	{"täusch", "täuschen"},
	{"manipulier", "manipulieren"},
	{"inszenier", "inszenieren"},
	{"plan", "strategie"},
	{"befehl", "anweisen"},
	{"droh", "einschüchtern"},
	{"besitz", "besitz"},
	{"graf", "ausgeben"},
	{"könig", "beeinflussen"},
	{"zauber", "verwandeln"},
	{"bestätig", "bestätigen"},
	{"behaupt", "behaupten"},
}

var bonusConnectors = []string{"weil", "deshalb", "dadurch", "allerdings", "somit"}

var bonusFallback = []string{"zusammenhang", "konsequenz", "ziel", "vorteil", "nachteil"}

// SuggestBonusTerms proposes up to k expression-level terms: two discourse
// connectors plus curated content words matched to the source text, padded
// from a generic fallback list.
func SuggestBonusTerms(sourceText string, k int) []string {
	src := strings.Join(Tokenize(sourceText), " ")

	out := make([]string, 0, k)
	out = append(out, bonusConnectors[:2]...)

	for _, bv := range bonusVocab {
		if len(out) >= k {
			break
		}
		if strings.Contains(src, bv.key) && !contains(out, bv.term) {
			out = append(out, bv.term)
		}
	}
	for _, t := range bonusFallback {
		if len(out) >= k {
			break
		}
		if !contains(out, t) {
			out = append(out, t)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// TermUsage reports which suggested terms the learner actually produced.
type TermUsage struct {
	Used    []string `json:"used"`
	Missing []string `json:"missing"`
	Rate    float64  `json:"rate"`
}

// TermsUsed checks each term against the transcript's word set.
func TermsUsed(terms []string, transcript string) TermUsage {
	if len(terms) == 0 {
		return TermUsage{}
	}
	words := toSet(anyWordRe.FindAllString(strings.ToLower(transcript), -1))
	var usage TermUsage
	for _, term := range terms {
		if words[strings.ToLower(term)] {
			usage.Used = append(usage.Used, term)
		} else {
			usage.Missing = append(usage.Missing, term)
		}
	}
	usage.Rate = round3(float64(len(usage.Used)) / float64(len(terms)))
	return usage
}

func hasAnySuffix(w string, suffixes ...string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(w, s) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round3(f float64) float64 { return math.Round(f*1000) / 1000 }
func round4(f float64) float64 { return math.Round(f*10000) / 10000 }
