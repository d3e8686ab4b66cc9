package extract

import (
	"strings"

	"personae/internal/config"
	"personae/internal/ingest"
)

// PlayParser is the higher-precision specialization for drama-formatted
// documents: the strict "SPEAKER: line" convention replaces the
// capitalized-mention heuristics entirely.
type PlayParser struct {
	params config.Params
}

func NewPlayParser(params config.Params) *PlayParser {
	return &PlayParser{params: params}
}

// isPlayFormat fires when a cast list exists and enough speaker-tag lines
// appear in the leading probe window.
func (e *Extractor) isPlayFormat(elements []ingest.Element, cast []castEntry) bool {
	if len(cast) == 0 {
		return false
	}
	window := e.params.PlayProbeWindow
	if window > len(elements) {
		window = len(elements)
	}
	tags := 0
	for i := 0; i < window; i++ {
		if m := speakerTagPattern.FindStringSubmatch(elements[i].Text); m != nil && validName(m[1]) {
			tags++
			if tags >= e.params.PlayMinTags {
				return true
			}
		}
	}
	return false
}

func (e *Extractor) runPlay(elements []ingest.Element, cast []castEntry) *Result {
	pp := NewPlayParser(e.params)
	groups := pp.characterGroups(elements, cast)
	res := e.assemble(elements, groups, pp.taggedSpeech(elements))
	if len(res.Characters) == 0 {
		res.Method = "none"
	} else {
		res.Method = "play_format"
	}
	return res
}

// ExtractCharacters returns the play's characters: every cast entry, plus
// any tagged speaker missing from the cast.
func (p *PlayParser) ExtractCharacters(elements []ingest.Element) []CharacterData {
	ex := &Extractor{params: p.params}
	cast := ex.detectCastList(elements)
	groups := p.characterGroups(elements, cast)
	out := make([]CharacterData, 0, len(groups))
	for _, g := range groups {
		out = append(out, CharacterData{
			Name:          g.canonical,
			Aliases:       g.aliases,
			Source:        g.source,
			MentionsCount: g.mentions,
			Description:   g.description,
			FirstSeen:     g.firstSeen,
		})
	}
	return out
}

// ExtractSpeech attributes tagged lines and their continuations to the
// given characters.
func (p *PlayParser) ExtractSpeech(elements []ingest.Element, characters []CharacterData) []SpeechData {
	groups := make([]*group, 0, len(characters))
	for _, c := range characters {
		groups = append(groups, &group{canonical: c.Name, aliases: c.Aliases, source: c.Source, mentions: c.MentionsCount, firstSeen: c.FirstSeen})
	}
	ex := &Extractor{params: p.params}
	res := ex.assemble(elements, groups, p.taggedSpeech(elements))
	return res.Speech
}

func (p *PlayParser) characterGroups(elements []ingest.Element, cast []castEntry) []*group {
	var cands []candidate
	for _, c := range cast {
		cands = append(cands, candidate{name: c.name, source: SourceCastList, mentions: 1, firstSeen: c.position, description: c.description})
	}
	for _, s := range p.taggedSpeech(elements) {
		cands = append(cands, candidate{name: s.speaker, source: SourceDialogueTag, mentions: 1, firstSeen: s.position})
	}
	return mergeCandidates(cands)
}

// taggedSpeech walks the elements once, collecting SPEAKER: lines and
// attaching plain continuation paragraphs to the current speaker until the
// next tag, heading, or stage direction.
func (p *PlayParser) taggedSpeech(elements []ingest.Element) []rawSpeech {
	var out []rawSpeech
	speaker := ""
	for _, el := range elements {
		switch el.Type {
		case ingest.ElementHeading, ingest.ElementStage, ingest.ElementCastEntry:
			speaker = ""
			continue
		}
		if m := speakerTagPattern.FindStringSubmatch(el.Text); m != nil && validName(m[1]) {
			speaker = strings.TrimSpace(m[1])
			out = append(out, rawSpeech{speaker: speaker, text: m[2], position: el.Position, confidence: 0.95})
			continue
		}
		if speaker != "" && el.Type == ingest.ElementDialogue {
			out = append(out, rawSpeech{speaker: speaker, text: el.Text, position: el.Position, confidence: 0.8})
			continue
		}
		if el.Type == ingest.ElementParagraph {
			speaker = ""
		}
	}
	return out
}
