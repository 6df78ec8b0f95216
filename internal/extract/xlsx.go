package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

func init() {
	Register(".xlsx", ExtractorFunc(extractXLSX))
}

// extractXLSX renders every sheet as "Sheet: <name>" followed by one line per
// row with cells joined by tabs. Empty rows are dropped.
func extractXLSX(ctx context.Context, name string, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: open xlsx %s: %v", appErr.ErrMalformed, name, err)
	}
	defer f.Close()
	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("%w: read sheet %s of %s: %v", appErr.ErrMalformed, sheet, name, err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Sheet: ")
		sb.WriteString(sheet)
		sb.WriteString("\n")
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
