package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

func init() {
	Register(".md", ExtractorFunc(extractMarkdown))
	Register(".markdown", ExtractorFunc(extractMarkdown))
}

// extractMarkdown drops markup and keeps one line per block. Table rows
// come out tab separated, like spreadsheet rows.
func extractMarkdown(_ context.Context, name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not utf-8", appErr.ErrMalformed, name)
	}
	reader := text.NewReader(data)
	doc := markdown.Parser().Parse(reader)
	src := reader.Source()

	var lines []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			if s := strings.TrimSpace(inlineText(n, src)); s != "" {
				lines = append(lines, s)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var b strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				seg := n.Lines().At(i)
				b.Write(seg.Value(src))
			}
			if s := strings.TrimRight(b.String(), "\n"); s != "" {
				lines = append(lines, s)
			}
			return ast.WalkSkipChildren, nil
		case *east.TableHeader, *east.TableRow:
			var cells []string
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, strings.TrimSpace(inlineText(c, src)))
			}
			lines = append(lines, strings.Join(cells, "\t"))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", appErr.ErrMalformed, name, err)
	}
	return strings.Join(lines, "\n"), nil
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
