package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrNoTextLayer marks a PDF with no extractable text, typically a scan
var ErrNoTextLayer = errors.New("pdf has no text layer")

// Document is one named source text
type Document struct {
	Name string
	Text string
}

// LoadText reads a document from disk. HTML files are reduced to their
// visible text, PDFs to the text of their text layer; anything else is
// read as UTF-8 text. The document name is the file's base name.
func LoadText(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		_, text, err := TextFromHTML(bytes.NewReader(data))
		if err != nil {
			return Document{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return Document{Name: name, Text: text}, nil
	case ".pdf":
		text, err := TextFromPDF(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return Document{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if strings.TrimSpace(text) == "" {
			return Document{}, fmt.Errorf("%s: %w", path, ErrNoTextLayer)
		}
		return Document{Name: name, Text: text}, nil
	}

	if !utf8.Valid(data) {
		return Document{}, fmt.Errorf("%s is not UTF-8 text", path)
	}
	return Document{Name: name, Text: string(data)}, nil
}

// TextFromPDF returns the text of every page, one page per paragraph.
// Scanned pages contribute nothing.
func TextFromPDF(r io.ReaderAt, size int64) (text string, err error) {
	// the reader panics on some malformed files
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", err
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// TextFromHTML returns the page title and the visible text, skipping
// scripts and styles. Block elements start a new line.
func TextFromHTML(r io.Reader) (title, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}

		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
					buf.WriteString(" ")
				}
				buf.WriteString(t)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] && buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
			buf.WriteString("\n")
		}
	}

	walk(doc)
	return title, strings.TrimSpace(buf.String()), nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true, "table": true,
}
