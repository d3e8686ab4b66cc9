// Package score ranks extracted characters. Cast-list membership earns a
// flat bonus; mention and dialogue volumes are log-normalized against the
// document maxima so the single most-mentioned character cannot dominate
// the scale.
package score

import (
	"math"
	"sort"

	"personae/internal/config"
	"personae/internal/extract"
)

// Rank fills ImportanceScore for every character and returns them sorted
// descending, ties broken by earlier first appearance. Scores are clamped
// to [0,1].
func Rank(chars []extract.CharacterData, params config.Params) []extract.CharacterData {
	if len(chars) == 0 {
		return chars
	}

	maxMentions, maxDialogue := 0, 0
	for _, c := range chars {
		if c.MentionsCount > maxMentions {
			maxMentions = c.MentionsCount
		}
		if c.DialogueWords > maxDialogue {
			maxDialogue = c.DialogueWords
		}
	}

	out := make([]extract.CharacterData, len(chars))
	copy(out, chars)
	for i := range out {
		s := 0.0
		if out[i].Source == extract.SourceCastList {
			s += params.CastBonus
		}
		s += params.MentionWeight * logNorm(out[i].MentionsCount, maxMentions)
		s += params.DialogueWeight * logNorm(out[i].DialogueWords, maxDialogue)
		out[i].ImportanceScore = clamp01(s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ImportanceScore == out[j].ImportanceScore {
			return out[i].FirstSeen < out[j].FirstSeen
		}
		return out[i].ImportanceScore > out[j].ImportanceScore
	})
	return out
}

func logNorm(v, max int) float64 {
	if v <= 0 || max <= 0 {
		return 0
	}
	return math.Log1p(float64(v)) / math.Log1p(float64(max))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
