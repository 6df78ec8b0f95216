package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

func init() {
	Register(".pdf", ExtractorFunc(extractPDF))
}

func extractPDF(ctx context.Context, name string, data []byte) (text string, err error) {
	// the pdf reader panics on some truncated xref tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: parse pdf %s: %v", appErr.ErrMalformed, name, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf %s: %v", appErr.ErrMalformed, name, err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d of %s: %v", appErr.ErrMalformed, i, name, err)
		}
		sb.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
