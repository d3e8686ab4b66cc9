package ingest

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"

	"personae/internal/normalize"
)

var headingPattern = regexp.MustCompile(`(?i)^\s*(глава|часть|действие|явление|акт|сцена|пролог|эпилог|chapter|part|act|scene|prologue|epilogue)(?:[\s.:]|$)`)
var castHeadingPattern = regexp.MustCompile(`(?i)^\s*(действующие\s+лица|лица|персонажи|dramatis\s+personae|cast|characters)\s*[:.]?\s*$`)
var castLinePattern = regexp.MustCompile(`^\p{Lu}[\p{L}\s.]{0,40}?\s*(—|,)\s+\S`)
var romanNumeral = regexp.MustCompile(`^[IVXLC]+\.?$`)

func parseTXT(path string, raw []byte) (*StructuredContent, error) {
	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}
	text = normalize.Normalize(text)

	sc := &StructuredContent{RawContent: text, Metadata: map[string]string{}}
	inCast := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		typ := classifyLine(trimmed)
		switch {
		case typ == ElementHeading:
			inCast = castHeadingPattern.MatchString(trimmed)
		case inCast && castLinePattern.MatchString(trimmed) && upperShare(trimmed) > 0:
			typ = ElementCastEntry
		default:
			inCast = false
		}
		sc.Elements = append(sc.Elements, Element{Type: typ, Text: trimmed, Position: len(sc.Elements)})
	}
	return sc, nil
}

// parseTXTLegacy keeps only the decode step: every non-blank line becomes a
// paragraph, no structural typing.
func parseTXTLegacy(path string, raw []byte) (*StructuredContent, error) {
	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}
	sc := &StructuredContent{RawContent: text, Metadata: map[string]string{}}
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			sc.Elements = append(sc.Elements, Element{Type: ElementParagraph, Text: t, Position: len(sc.Elements)})
		}
	}
	return sc, nil
}

func classifyLine(line string) ElementType {
	switch {
	case strings.HasPrefix(line, "—"), strings.HasPrefix(line, "- "), strings.HasPrefix(line, "\""):
		return ElementDialogue
	case isStageDirection(line):
		return ElementStage
	case isHeadingLine(line):
		return ElementHeading
	default:
		return ElementParagraph
	}
}

func isStageDirection(line string) bool {
	return len(line) > 2 &&
		((strings.HasPrefix(line, "(") && strings.HasSuffix(line, ")")) ||
			(strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")))
}

// isHeadingLine flags probable chapter or section headings: short lines
// without terminal punctuation, keyword-led lines, and bare numerals.
func isHeadingLine(line string) bool {
	if headingPattern.MatchString(line) || castHeadingPattern.MatchString(line) {
		return true
	}
	if romanNumeral.MatchString(line) {
		return true
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 8 || utf8.RuneCountInString(line) > 60 {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(line)
	if strings.ContainsRune(".!?,;:", last) {
		return false
	}
	return upperShare(line) >= 0.8 || len(words) <= 3 && beginsUpper(line)
}

func beginsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// upperShare is the fraction of letters in s that are uppercase.
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

// decodeText re-encodes raw bytes to UTF-8. UTF-8 and BOM-marked UTF-16
// pass through their decoders; anything else is assumed to be a legacy
// Cyrillic code page and the better-scoring of windows-1251 and koi8-r
// wins. Fails with ErrEncoding when no attempt yields sensible text.
func decodeText(raw []byte) (string, error) {
	raw = stripBOM(raw)
	if len(raw) == 0 {
		return "", nil
	}
	if bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) {
		dec := xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: utf-16: %v", ErrEncoding, err)
		}
		return string(out), nil
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	best := ""
	bestScore := -1.0
	for _, enc := range []encoding.Encoding{charmap.Windows1251, charmap.KOI8R, charmap.ISO8859_1} {
		out, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		if s := decodeScore(string(out)); s > bestScore {
			best, bestScore = string(out), s
		}
	}
	if bestScore < 0.5 {
		return "", fmt.Errorf("%w: best-effort transcoding failed", ErrEncoding)
	}
	return best, nil
}

// decodeScore rates a decoding attempt by the share of runes that look like
// natural text. Lowercase letters weigh extra: running text is mostly
// lowercase, and the Cyrillic code pages swap each other's case ranges, so
// the wrong one comes out shouting. Replacement runes count hard against it.
func decodeScore(s string) float64 {
	total, good := 0, 0
	for _, r := range s {
		total++
		switch {
		case r == utf8.RuneError:
			good -= 4
		case unicode.IsLower(r):
			good += 2
		case unicode.IsLetter(r), unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsDigit(r):
			good++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(good) / float64(total*2)
}
