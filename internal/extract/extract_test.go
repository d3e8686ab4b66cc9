package extract

import (
	"testing"

	"personae/internal/config"
	"personae/internal/ingest"
)

// doc builds a StructuredContent from pre-typed lines, the way the txt
// parser would emit them.
func doc(lines ...ingest.Element) *ingest.StructuredContent {
	sc := &ingest.StructuredContent{}
	for _, el := range lines {
		el.Position = len(sc.Elements)
		sc.Elements = append(sc.Elements, el)
	}
	return sc
}

func par(text string) ingest.Element  { return ingest.Element{Type: ingest.ElementParagraph, Text: text} }
func dia(text string) ingest.Element  { return ingest.Element{Type: ingest.ElementDialogue, Text: text} }
func head(text string) ingest.Element { return ingest.Element{Type: ingest.ElementHeading, Text: text} }
func caste(text string) ingest.Element {
	return ingest.Element{Type: ingest.ElementCastEntry, Text: text}
}

func findChar(t *testing.T, res *Result, name string) CharacterData {
	t.Helper()
	for _, c := range res.Characters {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("character %q not found in %+v", name, res.Characters)
	return CharacterData{}
}

func TestEmptyDocumentYieldsNone(t *testing.T) {
	res := New(config.Defaults()).Run(doc())
	if res.Method != "none" {
		t.Fatalf("method: %q", res.Method)
	}
	if len(res.Characters) != 0 || len(res.Speech) != 0 {
		t.Fatalf("expected empty result: %+v", res)
	}
}

func TestNoCandidatesYieldsNone(t *testing.T) {
	res := New(config.Defaults()).Run(doc(
		par("шёл дождь и было темно"),
		par("ветер гнул деревья к земле"),
	))
	if res.Method != "none" || len(res.Characters) != 0 {
		t.Fatalf("got %+v", res)
	}
}

func TestAliasMergeKeepsLongestCanonical(t *testing.T) {
	cands := []candidate{
		{name: "Иван Петрович", source: SourceCapitalized, mentions: 3, firstSeen: 1},
		{name: "Иван", source: SourceCapitalized, mentions: 5, firstSeen: 4},
	}
	groups := mergeCandidates(cands)
	if len(groups) != 1 {
		t.Fatalf("got %d groups", len(groups))
	}
	g := groups[0]
	if g.canonical != "Иван Петрович" {
		t.Fatalf("canonical: %q", g.canonical)
	}
	if len(g.aliases) != 1 || g.aliases[0] != "Иван" {
		t.Fatalf("aliases: %v", g.aliases)
	}
	if g.mentions != 8 || g.firstSeen != 1 {
		t.Fatalf("merged counts: mentions=%d firstSeen=%d", g.mentions, g.firstSeen)
	}
}

func TestAliasMergeOrderIndependent(t *testing.T) {
	a := mergeCandidates([]candidate{
		{name: "Иван", source: SourceCapitalized, mentions: 5, firstSeen: 4},
		{name: "Иван Петрович", source: SourceCapitalized, mentions: 3, firstSeen: 1},
	})
	b := mergeCandidates([]candidate{
		{name: "Иван Петрович", source: SourceCapitalized, mentions: 3, firstSeen: 1},
		{name: "Иван", source: SourceCapitalized, mentions: 5, firstSeen: 4},
	})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("groups: %d and %d", len(a), len(b))
	}
	if a[0].canonical != b[0].canonical || a[0].mentions != b[0].mentions {
		t.Fatalf("merge depends on input order: %+v vs %+v", a[0], b[0])
	}
}

func TestMergeDoesNotJoinDistinctSurnames(t *testing.T) {
	groups := mergeCandidates([]candidate{
		{name: "Иван Петров", source: SourceCapitalized, mentions: 3, firstSeen: 1},
		{name: "Иван Сидоров", source: SourceCapitalized, mentions: 3, firstSeen: 2},
	})
	if len(groups) != 2 {
		t.Fatalf("distinct full names merged: %+v", groups)
	}
}

func TestCapitalizedRecurrenceThreshold(t *testing.T) {
	res := New(config.Defaults()).Run(doc(
		par("Весь день Обломов лежал на диване."),
		par("К вечеру Обломов всё же поднялся."),
		par("Мимо прошёл случайный Прохожий."),
	))
	if len(res.Characters) != 1 {
		t.Fatalf("characters: %+v", res.Characters)
	}
	c := res.Characters[0]
	if c.Name != "Обломов" {
		t.Fatalf("unexpected character: %+v", c)
	}
	if c.Source != SourceCapitalized {
		t.Fatalf("source: %s", c.Source)
	}
	if res.Method != string(SourceCapitalized) {
		t.Fatalf("method: %q", res.Method)
	}
}

func TestSentenceInitialSingleWordsDoNotQualify(t *testing.T) {
	// "Потом" opens every sentence; a sentence-initial capitalized word
	// alone must never become a character.
	res := New(config.Defaults()).Run(doc(
		par("Потом стало тихо."),
		par("Потом пошёл дождь."),
		par("Потом всё кончилось."),
	))
	for _, c := range res.Characters {
		if c.Name == "Потом" {
			t.Fatalf("stoplisted sentence opener extracted: %+v", res.Characters)
		}
	}
}

func TestTrimStopTokens(t *testing.T) {
	cases := map[string]string{
		"Потом Иван":   "Иван",
		"Иван":         "Иван",
		"Потом":        "",
		"Вчера Потом":  "",
		"Наконец Анна": "Анна",
	}
	for in, want := range cases {
		if got := trimStopTokens(in); got != want {
			t.Errorf("trimStopTokens(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStopTokensTrimmedFromSequences(t *testing.T) {
	// "Потом Иван" must fold into the same identity as a bare "Иван",
	// not spawn a two-word character.
	res := New(config.Defaults()).Run(doc(
		par("Утром к нему зашёл Иван. Потом Иван ушёл."),
		par("Вечером опять пришёл Иван. Потом Иван снова ушёл."),
	))
	if len(res.Characters) != 1 {
		t.Fatalf("characters: %+v", res.Characters)
	}
	c := findChar(t, res, "Иван")
	if c.MentionsCount != 4 {
		t.Fatalf("mentions: %d", c.MentionsCount)
	}
}

func TestDialogueTagCandidates(t *testing.T) {
	res := New(config.Defaults()).Run(doc(
		par("ГОРОДНИЧИЙ: Я пригласил вас, господа, с пренеприятным известием."),
		par("ГОРОДНИЧИЙ: К нам едет ревизор."),
	))
	c := findChar(t, res, "ГОРОДНИЧИЙ")
	if c.Source != SourceDialogueTag {
		t.Fatalf("source: %s", c.Source)
	}
	if len(res.Speech) != 2 {
		t.Fatalf("speech: %+v", res.Speech)
	}
	if res.Speech[0].Confidence < 0.9 {
		t.Fatalf("tagged confidence: %v", res.Speech[0].Confidence)
	}
	if res.Method != string(SourceDialogueTag) {
		t.Fatalf("method: %q", res.Method)
	}
}

func TestAttributionVerbPattern(t *testing.T) {
	res := New(config.Defaults()).Run(doc(
		dia("— Я всё видела, — сказала Мария."),
		dia("— Не может быть, — ответила Мария."),
	))
	c := findChar(t, res, "Мария")
	if c.Source != SourceDialogueTag {
		t.Fatalf("source: %s", c.Source)
	}
	if len(res.Speech) != 2 {
		t.Fatalf("speech: %+v", res.Speech)
	}
	if res.Speech[0].Text != "Я всё видела" {
		t.Fatalf("speech text: %q", res.Speech[0].Text)
	}
}

func TestLookBackAttribution(t *testing.T) {
	res := New(config.Defaults()).Run(doc(
		par("У окна стояла Настя."),
		dia("— Как же тут холодно."),
		par("Огонь в печи погас, и Настя поёжилась."),
		dia("— Надо затопить печь."),
	))
	c := findChar(t, res, "Настя")
	if c.DialogueWords == 0 {
		t.Fatal("look-back attributed no dialogue")
	}
	if len(res.Speech) != 2 {
		t.Fatalf("speech: %+v", res.Speech)
	}
	for _, s := range res.Speech {
		if s.CharacterName != "Настя" {
			t.Fatalf("speaker: %+v", s)
		}
		if s.Confidence >= 0.9 || s.Confidence <= 0 {
			t.Fatalf("look-back confidence out of band: %v", s.Confidence)
		}
	}
	if res.Unattributed != 0 {
		t.Fatalf("unattributed: %d", res.Unattributed)
	}
}

func TestLookBackWindowBounds(t *testing.T) {
	params := config.Defaults()
	params.LookBack = 2
	res := New(params).Run(doc(
		par("У двери стояла Настя, и молчала Настя."),
		par("Ветер стучал ставнями."),
		par("Дом скрипел и оседал."),
		dia("— Кто здесь?"),
	))
	if len(res.Speech) != 0 {
		t.Fatalf("speaker outside window still attributed: %+v", res.Speech)
	}
	if res.Unattributed != 1 {
		t.Fatalf("unattributed: %d", res.Unattributed)
	}
}

func TestAmbiguousParagraphIsNotSpeakerEvent(t *testing.T) {
	res := New(config.Defaults()).Run(doc(
		par("В саду сидели Иван и Мария. Возле пруда Иван о чём-то спорил, а Мария не слушала."),
		dia("— Ну и пусть."),
	))
	if len(res.Speech) != 0 {
		t.Fatalf("two-character paragraph used for attribution: %+v", res.Speech)
	}
	if res.Unattributed != 1 {
		t.Fatalf("unattributed: %d", res.Unattributed)
	}
}

func TestUnattributedCounting(t *testing.T) {
	res := New(config.Defaults()).Run(doc(
		par("В кабинете дремал Обломов, и в зале дремал Обломов."),
		head("Глава 2"),
		dia("— Чей это голос?"),
		dia("— И этот тоже ничей."),
	))
	if res.Attributed != len(res.Speech) {
		t.Fatalf("attributed=%d speech=%d", res.Attributed, len(res.Speech))
	}
	if res.Attributed+res.Unattributed != 2 {
		t.Fatalf("attributed=%d unattributed=%d", res.Attributed, res.Unattributed)
	}
}

func TestCastListDetection(t *testing.T) {
	ex := New(config.Defaults())
	entries := ex.detectCastList(doc(
		head("ДЕЙСТВУЮЩИЕ ЛИЦА"),
		caste("Аркадий — хозяин усадьбы."),
		caste("Елена, его жена."),
		par("Действие происходит в усадьбе."),
	).Elements)
	if len(entries) != 2 {
		t.Fatalf("entries: %+v", entries)
	}
	if entries[0].name != "Аркадий" || entries[0].description != "хозяин усадьбы." {
		t.Fatalf("first entry: %+v", entries[0])
	}
	if entries[1].name != "Елена" || entries[1].description != "его жена." {
		t.Fatalf("second entry: %+v", entries[1])
	}
}

func TestUnheadedCastListNeedsRun(t *testing.T) {
	ex := New(config.Defaults())
	// A single NAME — description line without a heading reads like an
	// ordinary sentence, not a cast list.
	one := ex.detectCastList(doc(
		par("ИРТЫШ — широкая река."),
		par("Дальше начинается рассказ о жизни в этом городе."),
	).Elements)
	if len(one) != 0 {
		t.Fatalf("lone line promoted to cast list: %+v", one)
	}

	run := ex.detectCastList(doc(
		par("ИВАН — хозяин."),
		par("МАРИЯ — гостья."),
		par("Дальше начинается первое действие."),
	).Elements)
	if len(run) != 2 {
		t.Fatalf("uppercase run not detected: %+v", run)
	}
}

func TestCastBeatsCapitalizedSource(t *testing.T) {
	res := New(config.Defaults()).Run(doc(
		head("ДЕЙСТВУЮЩИЕ ЛИЦА"),
		caste("Иван — хозяин дома."),
		caste("Мария — его гостья."),
		par("Вечером Иван зажёг свечи."),
		par("Потом Иван сел у окна."),
	))
	c := findChar(t, res, "Иван")
	if c.Source != SourceCastList {
		t.Fatalf("cast source lost in merge: %s", c.Source)
	}
	if c.Description != "хозяин дома." {
		t.Fatalf("description: %q", c.Description)
	}
	if res.Method != string(SourceCastList) {
		t.Fatalf("method: %q", res.Method)
	}
}

func TestValidName(t *testing.T) {
	good := []string{"Иван", "Иван Петрович", "Анна Павловна Шерер", "Mr. Darcy"}
	for _, n := range good {
		if !validName(n) {
			t.Errorf("%q rejected", n)
		}
	}
	bad := []string{"", "и", "иван", "Но", "Иван Пётр Сидор Козьма Демьян", "Потом"}
	for _, n := range bad {
		if validName(n) {
			t.Errorf("%q accepted", n)
		}
	}
}
