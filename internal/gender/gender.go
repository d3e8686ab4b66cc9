// Package gender infers a character's grammatical gender from the name and
// optional descriptive text. Decision tiers, strongest first: built-in
// name/title dictionaries, gendered context in the description, name-ending
// morphology. Every tier maps to a fixed confidence.
package gender

import (
	_ "embed"
	"encoding/json"
	"regexp"
	"strings"
)

type Gender string

const (
	Male    Gender = "MALE"
	Female  Gender = "FEMALE"
	Unknown Gender = "UNKNOWN"
)

const (
	confDictionary = 0.95
	confContext    = 0.75
	confMorphology = 0.55
)

//go:embed dictionaries.json
var dictionariesJSON []byte

type dictionaries struct {
	Male   []string          `json:"male"`
	Female []string          `json:"female"`
	Titles map[string]string `json:"titles"`
}

var nameDict = loadDictionaries()

func loadDictionaries() map[string]Gender {
	var d dictionaries
	_ = json.Unmarshal(dictionariesJSON, &d)
	out := make(map[string]Gender, len(d.Male)+len(d.Female)+len(d.Titles))
	for _, n := range d.Male {
		out[n] = Male
	}
	for _, n := range d.Female {
		out[n] = Female
	}
	for t, g := range d.Titles {
		out[t] = Gender(g)
	}
	return out
}

// Pronoun matching is token-based: Go's \b is ASCII-only and never fires
// inside Cyrillic text.
var malePronounSet = map[string]struct{}{
	"он": {}, "его": {}, "ему": {}, "нём": {}, "нем": {},
	"he": {}, "him": {}, "his": {},
}

var femalePronounSet = map[string]struct{}{
	"она": {}, "её": {}, "ее": {}, "ей": {}, "ней": {},
	"she": {}, "her": {}, "hers": {},
}

var (
	maleAdjEnding = regexp.MustCompile(`^\p{Ll}+(ый|ий|ой)$`)
	femAdjEnding  = regexp.MustCompile(`^\p{Ll}+(ая|яя)$`)
)

// Recognized morphological suffixes in priority order. An ending outside
// this table stays UNKNOWN rather than being guessed from a bare consonant.
var suffixRules = []struct {
	suffix string
	gender Gender
}{
	{"ович", Male}, {"евич", Male}, {"ич", Male},
	{"овна", Female}, {"евна", Female}, {"ична", Female}, {"инична", Female},
	{"ова", Female}, {"ева", Female}, {"ина", Female}, {"ская", Female}, {"цкая", Female},
	{"ов", Male}, {"ев", Male}, {"ин", Male}, {"ский", Male}, {"цкий", Male},
	{"а", Female}, {"я", Female},
}

// Detect returns the inferred gender for the name, using the description as
// secondary evidence.
func Detect(name, description string) Gender {
	g, _ := detect(name, description)
	return g
}

// Confidence returns the confidence score of the decision tier that fired
// for this name and description.
func Confidence(name, description string) float64 {
	_, c := detect(name, description)
	return c
}

func detect(name, description string) (Gender, float64) {
	tokens := nameTokens(name)

	for _, tok := range tokens {
		if g, ok := nameDict[tok]; ok && g != Unknown {
			return g, confDictionary
		}
	}

	if g := contextGender(description); g != Unknown {
		return g, confContext
	}

	for _, tok := range tokens {
		if g := morphologyGender(tok); g != Unknown {
			return g, confMorphology
		}
	}
	return Unknown, 0.0
}

// contextGender looks for gendered pronouns and adjective agreement in the
// descriptive text.
func contextGender(description string) Gender {
	if strings.TrimSpace(description) == "" {
		return Unknown
	}
	lower := strings.ToLower(description)
	words := make([]string, 0, 16)
	for _, word := range strings.Fields(lower) {
		words = append(words, strings.Trim(word, ".,;:!?\"'()«»—"))
	}

	for _, word := range words {
		if g, ok := nameDict[word]; ok && g != Unknown {
			return g
		}
	}

	maleHits, femaleHits := 0, 0
	for _, word := range words {
		if _, ok := malePronounSet[word]; ok {
			maleHits++
		}
		if _, ok := femalePronounSet[word]; ok {
			femaleHits++
		}
	}
	switch {
	case maleHits > femaleHits:
		return Male
	case femaleHits > maleHits:
		return Female
	}

	// Russian adjective agreement: a leading gendered adjective describes
	// the subject ("молодой дворянин" / "молодая вдова").
	if len(words) > 0 {
		if maleAdjEnding.MatchString(words[0]) {
			return Male
		}
		if femAdjEnding.MatchString(words[0]) {
			return Female
		}
	}
	return Unknown
}

func morphologyGender(token string) Gender {
	for _, rule := range suffixRules {
		if len(token) > len(rule.suffix) && strings.HasSuffix(token, rule.suffix) {
			return rule.gender
		}
	}
	return Unknown
}

func nameTokens(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
