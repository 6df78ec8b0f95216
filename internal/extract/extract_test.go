package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"PO", "Supplier", "Qty"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"PO-1001", "Acme", 40}))
	_, err := f.NewSheet("Totals")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Totals", "A1", "total"))
	require.NoError(t, f.SetCellValue("Totals", "B1", 40))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestExtractXLSX(t *testing.T) {
	text, err := Extract(context.Background(), "po_dumps/po_1.XLSX", buildWorkbook(t))
	require.NoError(t, err)
	require.Equal(t, "Sheet: Sheet1\nPO\tSupplier\tQty\nPO-1001\tAcme\t40\n\nSheet: Totals\ntotal\t40\n", text)
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{name: "unsupported extension", file: "a.docx", data: []byte("x")},
		{name: "broken xlsx", file: "a.xlsx", data: []byte("not a zip")},
		{name: "broken pdf", file: "a.pdf", data: []byte("%PDF-1.4 truncated")},
		{name: "invalid utf8", file: "a.txt", data: []byte{0xff, 0xfe, 0xfd}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(context.Background(), tt.file, tt.data)
			require.Error(t, err)
			require.True(t, appErr.IsMalformed(err))
		})
	}
}

func TestExtractText(t *testing.T) {
	text, err := Extract(context.Background(), "notes.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", text)

	_, ok := Lookup("invoice.PDF")
	require.True(t, ok)
}

func TestExtractMarkdown(t *testing.T) {
	doc := "# Shipment week 12\n\n" +
		"Pallet **7** left\nthe Hamburg depot.\n\n" +
		"- copper pipes\n- valves\n\n" +
		"| PO | Qty |\n|----|-----|\n| PO-1001 | 40 |\n\n" +
		"```\nraw line\n```\n"
	out, err := Extract(context.Background(), "notes/week_12.md", []byte(doc))
	require.NoError(t, err)
	require.Contains(t, out, "Shipment week 12\n")
	require.Contains(t, out, "Pallet 7 left\nthe Hamburg depot.")
	require.Contains(t, out, "copper pipes\nvalves")
	require.Contains(t, out, "PO\tQty\nPO-1001\t40")
	require.Contains(t, out, "raw line")
	require.NotContains(t, out, "**")
	require.NotContains(t, out, "|")

	_, err = Extract(context.Background(), "bad.md", []byte{0xff, 0xfe})
	require.True(t, appErr.IsMalformed(err))
}
