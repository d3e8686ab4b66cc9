package normalize

import (
	"regexp"
	"strings"
)

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{4,}`)
	// A word split across a line break: letter, hyphen, newline, lowercase
	// letter. Rejoined without the hyphen.
	hyphenWrap = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
	dashRun    = regexp.MustCompile(`(^|[ \n])(?:--|–|―|‒)([ \n]|$)`)
	leadDash   = regexp.MustCompile(`(?m)^[-–]\s+`)
	innerSpace = regexp.MustCompile(`[ \t]+`)
)

var quoteReplacer = strings.NewReplacer(
	"«", `"`, "»", `"`,
	"„", `"`, "“", `"`, "”", `"`, "‟", `"`,
	"‘", "'", "’", "'", "‚", "'",
	"…", "...",
)

// Normalize collapses format artifacts into the canonical text shape the
// extraction patterns expect. Idempotent: applying it twice changes nothing.
//
// Passes, in order: line endings to LF, trailing whitespace stripped, runs
// of three or more blank lines reduced to two, words de-hyphenated across
// line breaks, typographic quotes and dash variants unified.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, " ", " ")
	text = trailingSpace.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n\n")
	text = fixpoint(hyphenWrap, "$1$2", text)
	text = quoteReplacer.Replace(text)
	text = fixpoint(dashRun, "$1—$2", text)
	text = leadDash.ReplaceAllString(text, "— ")
	return text
}

// fixpoint applies the replacement until the text stops changing. Needed
// where a match consumes the character that would start the next match
// (the letter after a hyphen wrap, the space between two dash runs):
// a single ReplaceAllString pass skips the survivor and a later pass would
// still find work to do.
func fixpoint(re *regexp.Regexp, repl, text string) string {
	for {
		next := re.ReplaceAllString(text, repl)
		if next == text {
			return next
		}
		text = next
	}
}

// Line normalizes a single element's text: quote and dash unification plus
// inner whitespace collapse. Newlines inside the element become spaces.
func Line(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = quoteReplacer.Replace(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = fixpoint(dashRun, "$1—$2", s)
	s = leadDash.ReplaceAllString(s, "— ")
	s = innerSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
