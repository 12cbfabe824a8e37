// Package langdetect guesses the language of short text by stopword
// frequency. It covers the languages subtitle libraries most commonly
// carry and defaults to English when nothing matches.
package langdetect

import "strings"

// DefaultLanguage is returned when no language scores above zero.
const DefaultLanguage = "en"

// minWordsForDetection guards against guessing from one or two words.
const minWordsForDetection = 3

// stopwords maps language codes to high-frequency function words.
// Words unique to a language carry the most signal; overlaps (e.g.
// "a" in English and Spanish) are counted for both and wash out.
var stopwords = map[string][]string{
	"en": {"the", "and", "is", "in", "to", "of", "that", "it", "was", "for", "with", "his", "her", "you", "not", "are", "this", "have", "what"},
	"es": {"el", "la", "de", "que", "y", "en", "un", "una", "los", "las", "por", "con", "para", "es", "su", "se", "no", "como", "está"},
	"de": {"der", "die", "das", "und", "ist", "ich", "nicht", "ein", "eine", "mit", "von", "den", "dem", "sie", "auf", "für", "war", "aber", "wir"},
	"fr": {"le", "la", "les", "de", "et", "un", "une", "est", "que", "je", "ne", "pas", "dans", "pour", "avec", "vous", "il", "elle", "mais"},
}

// Detector scores text against built-in stopword lists.
type Detector struct {
	sets map[string]map[string]bool
}

// New builds a detector with the built-in stopword sets.
func New() *Detector {
	sets := make(map[string]map[string]bool, len(stopwords))
	for lang, words := range stopwords {
		set := make(map[string]bool, len(words))
		for _, w := range words {
			set[w] = true
		}
		sets[lang] = set
	}
	return &Detector{sets: sets}
}

// Detect returns the language code with the highest stopword hit rate,
// or DefaultLanguage when the text is too short or scores zero.
func (d *Detector) Detect(text string) string {
	lang, _ := d.DetectWithConfidence(text)
	return lang
}

// DetectWithConfidence returns the best-scoring language and the
// fraction of words that matched its stopword set, in [0,1].
func (d *Detector) DetectWithConfidence(text string) (string, float64) {
	words := tokenize(text)
	if len(words) < minWordsForDetection {
		return DefaultLanguage, 0
	}

	best := DefaultLanguage
	bestHits := 0
	// Iterate a fixed order so ties resolve deterministically.
	for _, lang := range []string{"en", "es", "de", "fr"} {
		set := d.sets[lang]
		hits := 0
		for _, w := range words {
			if set[w] {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = lang
		}
	}
	if bestHits == 0 {
		return DefaultLanguage, 0
	}
	return best, float64(bestHits) / float64(len(words))
}

// Supported returns the language codes the detector can distinguish.
func (d *Detector) Supported() []string {
	return []string{"en", "es", "de", "fr"}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
		return true
	}
	// Accented latin letters appear in the non-English stopword sets.
	return r >= 0x00c0 && r <= 0x024f
}
