package ingest

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var pageNumberLine = regexp.MustCompile(`^[-—\s]*\d+[-—\s]*$`)

// parsePDF extracts text page by page, then suppresses running headers and
// footers: a line repeating identically across at least three pages and a
// third of the document is furniture, not prose. Bad pages are skipped.
func parsePDF(path string, _ []byte) (*StructuredContent, error) {
	pages, err := pdfPageLines(path)
	if err != nil {
		return nil, err
	}

	sc := &StructuredContent{Metadata: map[string]string{}}
	var doc strings.Builder
	for _, t := range contentLines(pages) {
		typ := classifyLine(t)
		sc.Elements = append(sc.Elements, Element{Type: typ, Text: t, Position: len(sc.Elements)})
		doc.WriteString(t)
		doc.WriteString("\n")
	}
	if len(sc.Elements) == 0 {
		return nil, fmt.Errorf("pdf: no extractable text")
	}
	sc.RawContent = doc.String()
	return sc, nil
}

// parsePDFLegacy is the plain concatenation path with no furniture
// suppression, kept for documents the structural pass mangles.
func parsePDFLegacy(path string, _ []byte) (*StructuredContent, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, pageErr := p.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("pdf: no extractable text")
	}

	sc := &StructuredContent{RawContent: b.String(), Metadata: map[string]string{}}
	for _, line := range strings.Split(b.String(), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			sc.Elements = append(sc.Elements, Element{Type: ElementParagraph, Text: t, Position: len(sc.Elements)})
		}
	}
	return sc, nil
}

// contentLines flattens pages into prose lines, dropping page furniture: a
// line repeating identically on at least three pages and a third of the
// document is a running header or footer, and bare page numbers go too.
// Words the PDF line breaker split with a hyphen are rejoined so each
// element carries the whole word, not half of it.
func contentLines(pages [][]string) []string {
	repeats := map[string]int{}
	for _, lines := range pages {
		seen := map[string]struct{}{}
		for _, line := range lines {
			key := strings.TrimSpace(line)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			repeats[key]++
		}
	}
	minRepeat := len(pages)/3 + 1
	if minRepeat < 3 {
		minRepeat = 3
	}

	var out []string
	for _, lines := range pages {
		for _, line := range lines {
			t := strings.TrimSpace(line)
			if t == "" {
				continue
			}
			if repeats[t] >= minRepeat || pageNumberLine.MatchString(t) {
				continue
			}
			if n := len(out); n > 0 && hyphenSplit(out[n-1], t) {
				out[n-1] = strings.TrimSuffix(out[n-1], "-") + t
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

// hyphenSplit reports whether prev ends mid-word and next continues it:
// a letter-hyphen line end followed by a lowercase start. An uppercase
// continuation is a real compound (Санкт-Петербург), kept as is.
func hyphenSplit(prev, next string) bool {
	if !strings.HasSuffix(prev, "-") {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(strings.TrimSuffix(prev, "-"))
	first, _ := utf8.DecodeRuneInString(next)
	return unicode.IsLetter(last) && unicode.IsLower(first)
}

func pdfPageLines(path string) ([][]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([][]string, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, pageErr := p.GetPlainText(nil)
		if pageErr != nil {
			log.Printf("ingest: pdf page %d skipped: %v", i, pageErr)
			continue
		}
		pages = append(pages, strings.Split(content, "\n"))
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf: no readable pages")
	}
	return pages, nil
}
