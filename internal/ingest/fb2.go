package ingest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// parseFB2 walks the FB2 XML token stream: <title-info> yields metadata,
// every <p> inside a <body> becomes a paragraph element and every section
// <title> a heading. Inline markup (<emphasis>, <strong>) is dropped by
// collecting character data only.
func parseFB2(path string, raw []byte) (*StructuredContent, error) {
	dec := xml.NewDecoder(bytes.NewReader(stripBOM(raw)))
	dec.CharsetReader = charsetReader
	dec.Strict = false

	sc := &StructuredContent{Metadata: map[string]string{}}
	var doc strings.Builder

	depthBody := 0
	inTitleInfo := false
	inBodyTitle := false
	var textTag string // leaf tag we are collecting into, "" when idle
	var buf strings.Builder
	var authorParts []string

	flush := func(typ ElementType) {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return
		}
		sc.Elements = append(sc.Elements, Element{Type: typ, Text: text, Position: len(sc.Elements)})
		doc.WriteString(text)
		doc.WriteString("\n\n")
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode fb2: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "title-info":
				inTitleInfo = true
			case "book-title", "first-name", "middle-name", "last-name":
				if inTitleInfo {
					textTag = t.Name.Local
					buf.Reset()
				}
			case "body":
				depthBody++
			case "title":
				if depthBody > 0 {
					inBodyTitle = true
					buf.Reset()
				}
			case "p", "v", "subtitle":
				if depthBody > 0 && !inBodyTitle {
					textTag = t.Name.Local
					buf.Reset()
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "title-info":
				inTitleInfo = false
			case "book-title":
				if inTitleInfo {
					sc.Metadata["title"] = strings.TrimSpace(buf.String())
					buf.Reset()
				}
				textTag = ""
			case "first-name", "middle-name", "last-name":
				if inTitleInfo {
					if part := strings.TrimSpace(buf.String()); part != "" {
						authorParts = append(authorParts, part)
					}
					buf.Reset()
				}
				textTag = ""
			case "body":
				depthBody--
			case "title":
				if depthBody > 0 {
					inBodyTitle = false
					flush(ElementHeading)
				}
			case "p", "v", "subtitle":
				if depthBody > 0 && !inBodyTitle && textTag != "" {
					textTag = ""
					typ := ElementParagraph
					if text := buf.String(); strings.HasPrefix(strings.TrimSpace(text), "—") || strings.HasPrefix(strings.TrimSpace(text), "- ") {
						typ = ElementDialogue
					}
					flush(typ)
				}
			}
		case xml.CharData:
			if textTag != "" || inBodyTitle {
				buf.Write(t)
			}
		}
	}

	if len(authorParts) > 0 {
		sc.Metadata["author"] = strings.Join(authorParts, " ")
	}
	if len(sc.Elements) == 0 {
		return nil, fmt.Errorf("fb2: no body text found")
	}
	sc.RawContent = doc.String()
	return sc, nil
}

var fb2TagStrip = regexp.MustCompile(`<[^>]*>`)

// parseFB2Legacy strips every tag and keeps whatever text remains. Used
// only when the structural walk fails on malformed XML.
func parseFB2Legacy(path string, raw []byte) (*StructuredContent, error) {
	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}
	text = fb2TagStrip.ReplaceAllString(text, "\n")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&nbsp;", " ").Replace(text)

	sc := &StructuredContent{Metadata: map[string]string{}}
	var doc strings.Builder
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		sc.Elements = append(sc.Elements, Element{Type: ElementParagraph, Text: t, Position: len(sc.Elements)})
		doc.WriteString(t)
		doc.WriteString("\n\n")
	}
	if len(sc.Elements) == 0 {
		return nil, fmt.Errorf("fb2: no text after tag strip")
	}
	sc.RawContent = doc.String()
	return sc, nil
}

// charsetReader lets the XML decoder handle the legacy encodings FB2 files
// commonly declare.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return input, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "koi8-r":
		return charmap.KOI8R.NewDecoder().Reader(input), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "utf-16", "utf-16le", "utf-16be":
		return xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported charset: %s", charset)
	}
}
