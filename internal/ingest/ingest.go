package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"personae/internal/normalize"
)

// Typed failures surfaced to the orchestrator. Match with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCorruptFile       = errors.New("unsupported or corrupt file")
	ErrEncoding          = errors.New("undecodable text encoding")
)

type ElementType string

const (
	ElementParagraph ElementType = "paragraph"
	ElementHeading   ElementType = "heading"
	ElementDialogue  ElementType = "dialogue"
	ElementStage     ElementType = "stage_direction"
	ElementCastEntry ElementType = "cast_entry"
)

// Element is one ordered text block of the source document.
type Element struct {
	Type     ElementType `json:"type"`
	Text     string      `json:"text"`
	Position int         `json:"position"`
}

// StructuredContent is the normalized form every parser produces: ordered
// elements plus the whole-document text and best-effort metadata.
type StructuredContent struct {
	Elements   []Element         `json:"elements"`
	RawContent string            `json:"raw_content"`
	Metadata   map[string]string `json:"metadata"`
	// Degraded is set when the primary structural parser failed and the
	// legacy raw-text path produced this content instead.
	Degraded bool `json:"degraded,omitempty"`
}

// strategy is the two-tier parse plan for one format: a cheap structural
// probe, the structural parser, and a legacy raw-text fallback.
type strategy struct {
	format   string
	probe    func(raw []byte) bool
	parse    func(path string, raw []byte) (*StructuredContent, error)
	fallback func(path string, raw []byte) (*StructuredContent, error)
}

var strategies = map[string]strategy{
	".txt":  {format: "txt", probe: probeText, parse: parseTXT, fallback: parseTXTLegacy},
	".fb2":  {format: "fb2", probe: probeXML, parse: parseFB2, fallback: parseFB2Legacy},
	".epub": {format: "epub", probe: probeZIP, parse: parseEPUB, fallback: parseEPUBLegacy},
	".pdf":  {format: "pdf", probe: probePDF, parse: parsePDF, fallback: parsePDFLegacy},
}

// Formats lists the supported file extensions.
func Formats() []string {
	return []string{".txt", ".fb2", ".epub", ".pdf"}
}

// Validate reports whether the file's structure matches its extension.
// Probe only, no parsing.
func Validate(path string) bool {
	st, ok := strategies[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return st.probe(raw)
}

// Parse converts a file into StructuredContent. Extension picks the format;
// the probe guards against mismatched magic bytes; a structural-parser
// failure falls back to the legacy path for the format, logged as degraded
// mode. Both tiers failing yields ErrCorruptFile.
func Parse(path string) (*StructuredContent, error) {
	ext := strings.ToLower(filepath.Ext(path))
	st, ok := strategies[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if !st.probe(raw) {
		return nil, fmt.Errorf("%w: %s signature mismatch", ErrCorruptFile, st.format)
	}

	sc, parseErr := st.parse(path, raw)
	if parseErr != nil {
		if errors.Is(parseErr, ErrEncoding) {
			return nil, parseErr
		}
		log.Printf("ingest: %s structural parse failed, using legacy path: %v", st.format, parseErr)
		sc, err = st.fallback(path, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFile, parseErr)
		}
		sc.Degraded = true
	}

	finishContent(sc, path, st.format, len(raw))
	if sc.RawContent == "" && len(raw) > 0 && st.format != "txt" {
		return nil, fmt.Errorf("%w: no extractable text", ErrCorruptFile)
	}
	return sc, nil
}

// finishContent applies the canonical normalization pass and fills the
// metadata keys every format shares.
func finishContent(sc *StructuredContent, path, format string, size int) {
	sc.RawContent = normalize.Normalize(sc.RawContent)
	kept := sc.Elements[:0]
	for _, el := range sc.Elements {
		el.Text = normalize.Line(el.Text)
		if el.Text == "" {
			continue
		}
		el.Position = len(kept)
		kept = append(kept, el)
	}
	sc.Elements = kept

	if sc.Metadata == nil {
		sc.Metadata = map[string]string{}
	}
	sc.Metadata["filename"] = filepath.Base(path)
	sc.Metadata["format"] = format
	sc.Metadata["size"] = strconv.Itoa(size)
	if sc.Metadata["title"] == "" {
		sc.Metadata["title"] = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
}

func probeText(raw []byte) bool {
	n := len(raw)
	if n > 4096 {
		n = 4096
	}
	return !bytes.ContainsRune(raw[:n], 0)
}

func probeXML(raw []byte) bool {
	if bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) {
		return true
	}
	trimmed := bytes.TrimLeft(stripBOM(raw), " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '<'
}

func probeZIP(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte("PK\x03\x04"))
}

func probePDF(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte("%PDF"))
}

func stripBOM(raw []byte) []byte {
	return bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
}
