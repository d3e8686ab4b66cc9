// Package extract implements the rule-based character and dialogue
// extraction passes: candidate detection (cast lists, dialogue tags,
// recurring capitalized mentions), alias merging, and bounded look-back
// speech attribution. Precision is deliberately traded for recall: every
// candidate with a real mention survives and the importance scorer ranks
// the weak ones low instead of dropping them.
package extract

import (
	_ "embed"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"personae/internal/config"
	"personae/internal/gender"
	"personae/internal/ingest"
)

//go:embed stopwords.json
var stopwordsJSON []byte

var stopwords = loadStopwords()

func loadStopwords() map[string]struct{} {
	var raw []string
	_ = json.Unmarshal(stopwordsJSON, &raw)
	out := make(map[string]struct{}, len(raw))
	for _, w := range raw {
		out[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return out
}

const speechVerbs = `сказал|сказала|ответил|ответила|спросил|спросила|воскликнул|воскликнула|прошептал|прошептала|крикнул|крикнула|заметил|заметила|промолвил|промолвила|произнёс|произнесла|said|asked|replied|whispered|shouted|murmured|answered|cried`

var (
	speakerTagPattern  = regexp.MustCompile(`^([\p{Lu}][\p{L} .]{0,40}?)\s*:\s+(\S.*)$`)
	attributionPattern = regexp.MustCompile(`^—\s*(.+?)[,.!?]?\s*—\s*(?:` + speechVerbs + `)\s+([\p{Lu}][\p{L} .]{1,40})`)
	capSeqPattern      = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:[ ]\p{Lu}\p{Ll}+){0,2}`)
	castEntryPattern   = regexp.MustCompile(`^([\p{L}][\p{L} .]{1,40}?)\s*(?:—|,)\s+(\S.{1,})$`)
	castHeadingWords   = regexp.MustCompile(`(?i)^\s*(действующие\s+лица|лица|персонажи|dramatis\s+personae|cast\s+of\s+characters|characters|cast)\s*[:.]?\s*$`)
	sentenceBreak      = `.!?…:;"'`
)

type castEntry struct {
	name        string
	description string
	position    int
}

type candidate struct {
	name        string
	source      Source
	mentions    int
	firstSeen   int
	description string
}

type rawSpeech struct {
	speaker    string // surface form, resolved after merging
	text       string
	position   int
	confidence float64
}

type Extractor struct {
	params config.Params
}

func New(params config.Params) *Extractor {
	return &Extractor{params: params}
}

// Run executes both extraction passes over the parsed document. A document
// with no candidates yields an empty result with Method "none".
func (e *Extractor) Run(sc *ingest.StructuredContent) *Result {
	elements := sc.Elements
	cast := e.detectCastList(elements)

	if e.isPlayFormat(elements, cast) {
		return e.runPlay(elements, cast)
	}

	var cands []candidate
	for _, c := range cast {
		cands = append(cands, candidate{name: c.name, source: SourceCastList, mentions: 1, firstSeen: c.position, description: c.description})
	}
	tagCands, speech := e.scanDialogueTags(elements)
	cands = append(cands, tagCands...)
	cands = append(cands, e.scanCapitalized(elements)...)

	groups := mergeCandidates(cands)
	res := e.assemble(elements, groups, speech)
	res.Method = methodFor(res.Characters, cast, tagCands)
	return res
}

// scanDialogueTags registers SPEAKER: and «— line, — сказал SPEAKER»
// candidates and records their dialogue as provisional speech.
func (e *Extractor) scanDialogueTags(elements []ingest.Element) ([]candidate, []rawSpeech) {
	byName := map[string]*candidate{}
	var order []string
	var speech []rawSpeech

	note := func(name string, pos int) {
		key := foldName(name)
		c, ok := byName[key]
		if !ok {
			c = &candidate{name: name, source: SourceDialogueTag, firstSeen: pos}
			byName[key] = c
			order = append(order, key)
		}
		c.mentions++
	}

	for _, el := range elements {
		if el.Type == ingest.ElementHeading || el.Type == ingest.ElementStage {
			continue
		}
		if m := speakerTagPattern.FindStringSubmatch(el.Text); m != nil && validName(m[1]) {
			note(strings.TrimSpace(m[1]), el.Position)
			speech = append(speech, rawSpeech{speaker: strings.TrimSpace(m[1]), text: m[2], position: el.Position, confidence: 0.9})
			continue
		}
		if m := attributionPattern.FindStringSubmatch(el.Text); m != nil {
			name := strings.TrimRight(strings.TrimSpace(m[2]), ".")
			if validName(name) {
				note(name, el.Position)
				speech = append(speech, rawSpeech{speaker: name, text: m[1], position: el.Position, confidence: 0.85})
			}
		}
	}

	out := make([]candidate, 0, len(order))
	for _, key := range order {
		out = append(out, *byName[key])
	}
	return out, speech
}

// scanCapitalized collects capitalized sequences recurring at least
// MinRecurrence times. Single words count toward qualification only away
// from sentence starts; stoplisted tokens are trimmed from the edges.
func (e *Extractor) scanCapitalized(elements []ingest.Element) []candidate {
	type tally struct {
		total      int
		qualifying int
		firstSeen  int
	}
	counts := map[string]*tally{}
	surface := map[string]string{}
	var order []string

	for _, el := range elements {
		if el.Type == ingest.ElementHeading {
			continue
		}
		for _, loc := range capSeqPattern.FindAllStringIndex(el.Text, -1) {
			name := trimStopTokens(el.Text[loc[0]:loc[1]])
			if name == "" || !validName(name) {
				continue
			}
			key := foldName(name)
			t, ok := counts[key]
			if !ok {
				t = &tally{firstSeen: el.Position}
				counts[key] = t
				surface[key] = name
				order = append(order, key)
			}
			t.total++
			multiWord := strings.Contains(name, " ")
			if multiWord || !sentenceInitial(el.Text, loc[0]) {
				t.qualifying++
			}
		}
	}

	var out []candidate
	for _, key := range order {
		t := counts[key]
		if t.qualifying < e.params.MinRecurrence {
			continue
		}
		out = append(out, candidate{name: surface[key], source: SourceCapitalized, mentions: t.total, firstSeen: t.firstSeen})
	}
	return out
}

// detectCastList finds a contiguous run of "NAME — description" lines near
// the document start, either under a cast heading or as an unheaded run of
// uppercase-named entries.
func (e *Extractor) detectCastList(elements []ingest.Element) []castEntry {
	window := e.params.CastScanWindow
	if window > len(elements) {
		window = len(elements)
	}

	var entries []castEntry
	afterHeading := false
	var pending []castEntry

	commit := func() {
		minRun := 2
		if afterHeading {
			minRun = 1
		}
		if len(pending) >= minRun {
			entries = append(entries, pending...)
		}
		pending = pending[:0]
	}

	for i := 0; i < window && len(entries) == 0; i++ {
		el := elements[i]
		if el.Type == ingest.ElementHeading {
			commit()
			afterHeading = castHeadingWords.MatchString(el.Text)
			continue
		}
		if ce, ok := parseCastEntry(el, afterHeading); ok {
			pending = append(pending, ce)
			continue
		}
		commit()
		afterHeading = false
	}
	if len(entries) == 0 {
		commit()
	}
	return entries
}

// tokenSubset reports whether short's tokens are a prefix or suffix of
// long's tokens, case-insensitively.
func tokenSubset(short, long string) bool {
	a := strings.Fields(foldName(short))
	b := strings.Fields(foldName(long))
	if len(a) == 0 || len(a) >= len(b) {
		return false
	}
	prefix, suffix := true, true
	for i := range a {
		if a[i] != b[i] {
			prefix = false
		}
		if a[len(a)-1-i] != b[len(b)-1-i] {
			suffix = false
		}
	}
	return prefix || suffix
}

func parseCastEntry(el ingest.Element, afterHeading bool) (castEntry, bool) {
	if el.Type == ingest.ElementCastEntry {
		if m := castEntryPattern.FindStringSubmatch(el.Text); m != nil && validName(strings.TrimSpace(m[1])) {
			return castEntry{name: strings.TrimSpace(m[1]), description: strings.TrimSpace(m[2]), position: el.Position}, true
		}
	}
	if el.Type != ingest.ElementParagraph && el.Type != ingest.ElementCastEntry {
		return castEntry{}, false
	}
	m := castEntryPattern.FindStringSubmatch(el.Text)
	if m == nil {
		return castEntry{}, false
	}
	name := strings.TrimSpace(m[1])
	if !validName(name) {
		return castEntry{}, false
	}
	// Unheaded runs accept only uppercase-dominant names; under a cast
	// heading Title Case entries qualify too.
	if !afterHeading && upperShare(name) < 0.8 {
		return castEntry{}, false
	}
	return castEntry{name: name, description: strings.TrimSpace(m[2]), position: el.Position}, true
}

// group is one merged character identity under construction.
type group struct {
	canonical   string
	aliases     []string
	source      Source
	mentions    int
	firstSeen   int
	description string
}

var sourceRank = map[Source]int{SourceCastList: 3, SourceDialogueTag: 2, SourceCapitalized: 1, SourceManual: 0}

// mergeCandidates folds candidates into identities: case-insensitive
// matches and prefix/suffix token subsets merge, the longest surface form
// becomes canonical, and equally long names keep the one seen first.
func mergeCandidates(cands []candidate) []*group {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].firstSeen < cands[j].firstSeen })

	var groups []*group
	for _, c := range cands {
		var target *group
		for _, g := range groups {
			if g.matches(c.name) {
				target = g
				break
			}
		}
		if target == nil {
			groups = append(groups, &group{
				canonical:   c.name,
				source:      c.source,
				mentions:    c.mentions,
				firstSeen:   c.firstSeen,
				description: c.description,
			})
			continue
		}
		target.absorb(c)
	}
	return groups
}

func (g *group) matches(name string) bool {
	for _, known := range append([]string{g.canonical}, g.aliases...) {
		if foldName(known) == foldName(name) || tokenSubset(known, name) || tokenSubset(name, known) {
			return true
		}
	}
	return false
}

func (g *group) absorb(c candidate) {
	g.mentions += c.mentions
	if c.firstSeen < g.firstSeen {
		g.firstSeen = c.firstSeen
	}
	if sourceRank[c.source] > sourceRank[g.source] {
		g.source = c.source
	}
	if g.description == "" {
		g.description = c.description
	}
	switch {
	case foldName(c.name) == foldName(g.canonical):
	case utf8.RuneCountInString(c.name) > utf8.RuneCountInString(g.canonical):
		g.addAlias(g.canonical)
		g.canonical = c.name
	default:
		g.addAlias(c.name)
	}
}

func (g *group) addAlias(name string) {
	for _, a := range g.aliases {
		if foldName(a) == foldName(name) {
			return
		}
	}
	if foldName(name) != foldName(g.canonical) {
		g.aliases = append(g.aliases, name)
	}
}

// assemble runs the attribution pass and builds the final result. Dialogue
// lines without an explicit tag are attributed to the nearest preceding
// named speaker within the look-back window; the rest are counted but
// dropped.
func (e *Extractor) assemble(elements []ingest.Element, groups []*group, tagged []rawSpeech) *Result {
	res := &Result{}
	if len(groups) == 0 {
		res.Method = "none"
		return res
	}

	resolver := map[string]string{}
	for _, g := range groups {
		resolver[foldName(g.canonical)] = g.canonical
		for _, a := range g.aliases {
			resolver[foldName(a)] = g.canonical
		}
	}
	resolve := func(surface string) (string, bool) {
		if canon, ok := resolver[foldName(surface)]; ok {
			return canon, true
		}
		// A tagged surface form may be a token subset of a known identity.
		for _, g := range groups {
			if tokenSubset(surface, g.canonical) {
				return g.canonical, true
			}
		}
		return "", false
	}

	attributedAt := map[int]struct{}{}
	speakerAt := map[int]string{} // explicit speaker events by element index
	for _, s := range tagged {
		if canon, ok := resolve(s.speaker); ok {
			res.Speech = append(res.Speech, SpeechData{CharacterName: canon, Text: normalizeSpeech(s.text), Position: s.position, Confidence: s.confidence})
			attributedAt[s.position] = struct{}{}
			speakerAt[s.position] = canon
		} else {
			res.Unattributed++
		}
	}

	// Narrative elements naming exactly one known character also count as
	// explicit speaker events for the look-back.
	for _, el := range elements {
		if el.Type == ingest.ElementDialogue || el.Type == ingest.ElementHeading {
			continue
		}
		if _, taken := speakerAt[el.Position]; taken {
			continue
		}
		if name, ok := soleCharacterIn(el.Text, groups); ok {
			speakerAt[el.Position] = name
		}
	}

	for _, el := range elements {
		if el.Type != ingest.ElementDialogue {
			continue
		}
		if _, done := attributedAt[el.Position]; done {
			continue
		}
		found := false
		for back := 1; back <= e.params.LookBack; back++ {
			idx := el.Position - back
			if idx < 0 {
				break
			}
			if name, ok := speakerAt[idx]; ok {
				conf := 0.6 - 0.05*float64(back-1)
				res.Speech = append(res.Speech, SpeechData{CharacterName: name, Text: normalizeSpeech(el.Text), Position: el.Position, Confidence: conf})
				found = true
				break
			}
		}
		if !found {
			res.Unattributed++
		}
	}

	sort.SliceStable(res.Speech, func(i, j int) bool { return res.Speech[i].Position < res.Speech[j].Position })
	res.Attributed = len(res.Speech)

	words := map[string]int{}
	for _, s := range res.Speech {
		words[s.CharacterName] += len(strings.Fields(s.Text))
	}
	for _, g := range groups {
		if g.mentions < 1 {
			continue
		}
		res.Characters = append(res.Characters, CharacterData{
			Name:          g.canonical,
			Aliases:       g.aliases,
			Source:        g.source,
			MentionsCount: g.mentions,
			Gender:        gender.Unknown,
			Description:   g.description,
			FirstSeen:     g.firstSeen,
			DialogueWords: words[g.canonical],
		})
	}
	return res
}

func methodFor(chars []CharacterData, cast []castEntry, tags []candidate) string {
	switch {
	case len(chars) == 0:
		return "none"
	case len(cast) > 0:
		return string(SourceCastList)
	case len(tags) > 0:
		return string(SourceDialogueTag)
	default:
		return string(SourceCapitalized)
	}
}

// soleCharacterIn reports the single known character named in the text, if
// exactly one is.
func soleCharacterIn(text string, groups []*group) (string, bool) {
	folded := " " + foldName(text) + " "
	found := ""
	for _, g := range groups {
		for _, name := range append([]string{g.canonical}, g.aliases...) {
			if containsWord(folded, foldName(name)) {
				if found != "" && found != g.canonical {
					return "", false
				}
				found = g.canonical
				break
			}
		}
	}
	return found, found != ""
}

func containsWord(foldedText, foldedName string) bool {
	idx := strings.Index(foldedText, foldedName)
	for idx >= 0 {
		before, _ := utf8.DecodeLastRuneInString(foldedText[:idx])
		after, _ := utf8.DecodeRuneInString(foldedText[idx+len(foldedName):])
		if !unicode.IsLetter(before) && !unicode.IsLetter(after) {
			return true
		}
		next := strings.Index(foldedText[idx+1:], foldedName)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func normalizeSpeech(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "—")
	return strings.TrimSpace(text)
}

// validName accepts 1–4 tokens, each starting uppercase and at least two
// runes, with at least one non-stoplisted token.
func validName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 40 {
		return false
	}
	tokens := strings.Fields(name)
	if len(tokens) == 0 || len(tokens) > 4 {
		return false
	}
	anyContent := false
	for _, tok := range tokens {
		r, _ := utf8.DecodeRuneInString(tok)
		if !unicode.IsUpper(r) {
			return false
		}
		if utf8.RuneCountInString(strings.TrimRight(tok, ".")) < 2 {
			return false
		}
		if !isStopword(tok) {
			anyContent = true
		}
	}
	return anyContent
}

// trimStopTokens strips stoplisted tokens from both ends of a candidate
// sequence.
func trimStopTokens(name string) string {
	tokens := strings.Fields(name)
	for len(tokens) > 0 && isStopword(tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && isStopword(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

func isStopword(tok string) bool {
	_, ok := stopwords[strings.ToLower(strings.Trim(tok, ".,;:!?\"'()"))]
	return ok
}

// sentenceInitial reports whether the match at offset starts the text or
// follows sentence-ending punctuation.
func sentenceInitial(text string, offset int) bool {
	rest := strings.TrimRight(text[:offset], " \t")
	if rest == "" {
		return true
	}
	last, _ := utf8.DecodeLastRuneInString(rest)
	return strings.ContainsRune(sentenceBreak, last) || last == '—'
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func upperShare(s string) float64 {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
