// Package extract turns raw content files into plain text for chunking.
package extract

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Extractor converts a file's bytes into plain text.
type Extractor interface {
	Extract(path string, data []byte) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(path string, data []byte) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(path string, data []byte) (string, error) {
	return f(path, data)
}

// Registry maps lower-case file extensions (".md") to extractors.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns an empty registry. Files without an extractor are
// chunked as raw UTF-8 text.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// Register associates ext with e. The extension is matched case-insensitively.
func (r *Registry) Register(ext string, e Extractor) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.byExt[ext] = e
}

// Lookup returns the extractor for path, if any.
func (r *Registry) Lookup(path string) (Extractor, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return e, ok
}

// Markdown renders CommonMark documents to plain text: markup is dropped,
// block boundaries become newlines, code blocks are kept verbatim.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown returns a markdown extractor.
func NewMarkdown() *Markdown {
	return &Markdown{md: goldmark.New()}
}

// Extract implements Extractor.
func (m *Markdown) Extract(_ string, data []byte) (string, error) {
	doc := m.md.Parser().Parse(text.NewReader(data))

	var buf bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && buf.Len() > 0 {
				ensureNewline(&buf)
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(data))
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(data))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimRight(buf.String(), "\n")
	if out == "" {
		return "", nil
	}
	return out + "\n", nil
}

func ensureNewline(buf *bytes.Buffer) {
	b := buf.Bytes()
	if len(b) > 0 && b[len(b)-1] != '\n' {
		buf.WriteByte('\n')
	}
}
