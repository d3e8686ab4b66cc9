package extract

import "personae/internal/gender"

// Source records which detection method produced a character candidate.
type Source string

const (
	SourceCastList    Source = "cast_list"
	SourceDialogueTag Source = "dialogue_tag"
	SourceCapitalized Source = "capitalized_mention"
	SourceManual      Source = "manual"
)

// CharacterData is one extracted character. Immutable once returned from a
// run: merging happens only inside the extraction pass.
type CharacterData struct {
	Name            string        `json:"name"`
	Aliases         []string      `json:"aliases"`
	Source          Source        `json:"source"`
	MentionsCount   int           `json:"mentions_count"`
	ImportanceScore float64       `json:"importance_score"`
	Gender          gender.Gender `json:"gender"`
	Description     string        `json:"description,omitempty"`
	// FirstSeen is the element index of the earliest mention, used for
	// ranking tie-breaks.
	FirstSeen int `json:"first_seen"`
	// DialogueWords is the total word count of attributed speech.
	DialogueWords int `json:"dialogue_words"`
}

// SpeechData is one attributed dialogue line. CharacterName always resolves
// to a CharacterData.Name from the same extraction.
type SpeechData struct {
	CharacterName string  `json:"character_name"`
	Text          string  `json:"text"`
	Position      int     `json:"position"`
	Confidence    float64 `json:"attribution_confidence"`
}

// Result is the extractor's output before scoring and gender annotation.
type Result struct {
	Characters   []CharacterData
	Speech       []SpeechData
	Method       string
	Attributed   int
	Unattributed int
}
