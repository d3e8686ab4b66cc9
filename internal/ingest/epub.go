package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Metadata struct {
		Title   string `xml:"title"`
		Creator string `xml:"creator"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemrefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// parseEPUB resolves the OPF manifest and spine for reading order and
// extracts text from each content document in that order. A bad spine entry
// is skipped, not fatal.
func parseEPUB(_ string, raw []byte) (*StructuredContent, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open epub zip: %w", err)
	}
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}

	containerRaw, err := readZipEntry(files["META-INF/container.xml"])
	if err != nil {
		return nil, fmt.Errorf("container.xml: %w", err)
	}
	var container epubContainer
	if err := xml.Unmarshal(containerRaw, &container); err != nil {
		return nil, fmt.Errorf("parse container.xml: %w", err)
	}
	if len(container.Rootfiles) == 0 {
		return nil, fmt.Errorf("container.xml lists no rootfile")
	}

	opfPath := container.Rootfiles[0].FullPath
	opfRaw, err := readZipEntry(files[opfPath])
	if err != nil {
		return nil, fmt.Errorf("opf %s: %w", opfPath, err)
	}
	var pkg epubPackage
	if err := xml.Unmarshal(opfRaw, &pkg); err != nil {
		return nil, fmt.Errorf("parse opf: %w", err)
	}

	hrefByID := map[string]string{}
	for _, item := range pkg.Manifest.Items {
		if strings.Contains(item.MediaType, "html") || item.MediaType == "" {
			hrefByID[item.ID] = item.Href
		}
	}

	sc := &StructuredContent{Metadata: map[string]string{}}
	if t := strings.TrimSpace(pkg.Metadata.Title); t != "" {
		sc.Metadata["title"] = t
	}
	if a := strings.TrimSpace(pkg.Metadata.Creator); a != "" {
		sc.Metadata["author"] = a
	}

	opfDir := path.Dir(opfPath)
	var doc strings.Builder
	for _, ref := range pkg.Spine.Itemrefs {
		href, ok := hrefByID[ref.IDRef]
		if !ok {
			continue
		}
		entry := path.Clean(path.Join(opfDir, href))
		docRaw, err := readZipEntry(files[entry])
		if err != nil {
			log.Printf("ingest: epub spine entry %s skipped: %v", entry, err)
			continue
		}
		for _, block := range htmlBlocks(docRaw) {
			sc.Elements = append(sc.Elements, Element{Type: block.typ, Text: block.text, Position: len(sc.Elements)})
			doc.WriteString(block.text)
			doc.WriteString("\n\n")
		}
	}

	if len(sc.Elements) == 0 {
		return nil, fmt.Errorf("epub: no extractable text in spine")
	}
	sc.RawContent = doc.String()
	return sc, nil
}

// parseEPUBLegacy ignores the manifest and walks every HTML-looking archive
// entry in path order.
func parseEPUBLegacy(_ string, raw []byte) (*StructuredContent, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open epub zip: %w", err)
	}
	names := make([]string, 0, len(zr.File))
	byName := map[string]*zip.File{}
	for _, f := range zr.File {
		ext := strings.ToLower(path.Ext(f.Name))
		if ext == ".html" || ext == ".xhtml" || ext == ".htm" {
			names = append(names, f.Name)
			byName[f.Name] = f
		}
	}
	sort.Strings(names)

	sc := &StructuredContent{Metadata: map[string]string{}}
	var doc strings.Builder
	for _, name := range names {
		docRaw, err := readZipEntry(byName[name])
		if err != nil {
			continue
		}
		for _, block := range htmlBlocks(docRaw) {
			sc.Elements = append(sc.Elements, Element{Type: block.typ, Text: block.text, Position: len(sc.Elements)})
			doc.WriteString(block.text)
			doc.WriteString("\n\n")
		}
	}
	if len(sc.Elements) == 0 {
		return nil, fmt.Errorf("epub: no html entries with text")
	}
	sc.RawContent = doc.String()
	return sc, nil
}

type htmlBlock struct {
	typ  ElementType
	text string
}

var headingTags = map[string]struct{}{"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}}
var blockTags = map[string]struct{}{"p": {}, "div": {}, "li": {}, "blockquote": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "br": {}, "tr": {}}

// htmlBlocks tokenizes one content document into typed text blocks,
// skipping script and style subtrees.
func htmlBlocks(raw []byte) []htmlBlock {
	tz := html.NewTokenizer(bytes.NewReader(raw))
	var out []htmlBlock
	var buf strings.Builder
	curType := ElementParagraph
	skipDepth := 0

	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text != "" {
			out = append(out, htmlBlock{typ: curType, text: text})
		}
		curType = ElementParagraph
	}

	for {
		tt := tz.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if _, ok := blockTags[tag]; ok {
				flush()
				if _, heading := headingTags[tag]; heading {
					curType = ElementHeading
				}
			}
		case html.EndTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if _, ok := blockTags[tag]; ok {
				flush()
			}
		case html.TextToken:
			if skipDepth == 0 {
				buf.WriteString(string(tz.Text()))
			}
		}
	}
}

func readZipEntry(f *zip.File) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("entry missing")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	return raw, nil
}
