package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const sample = `Proforma invoice PI-2024-017 issued by Acme Trading Co. for purchase order PO-1001.
Payment terms are 30% advance and 70% against bill of lading! Delivery is expected within six weeks.
Goods: 40 units of stainless steel valves, model SV-200, unit price USD 125.00. Is insurance included? No.
Bank details follow on the second page together with the beneficiary address and swift code.`

func TestChunkInvariants(t *testing.T) {
	tests := []struct {
		size    int
		overlap int
	}{
		{size: 500, overlap: 50},
		{size: 80, overlap: 10},
		{size: 40, overlap: 0},
		{size: 17, overlap: 16},
		{size: 1, overlap: 0},
	}
	for _, tt := range tests {
		chunks, err := Chunk("proforma_invoice/pi.pdf", sample, tt.size, tt.overlap)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		var rebuilt strings.Builder
		for i, c := range chunks {
			require.Equal(t, i, c.SequenceIndex)
			require.Equal(t, "proforma_invoice/pi.pdf", c.DocumentKey)
			require.LessOrEqual(t, utf8.RuneCountInString(c.Text), tt.size)
			if i == 0 {
				require.Empty(t, c.Overlap)
				rebuilt.WriteString(c.Text)
				continue
			}
			prev := []rune(chunks[i-1].Text)
			require.Equal(t, string(prev[len(prev)-tt.overlap:]), c.Overlap)
			require.True(t, strings.HasPrefix(c.Text, c.Overlap))
			rebuilt.WriteString(strings.TrimPrefix(c.Text, c.Overlap))
		}
		require.Equal(t, sample, rebuilt.String())

		again, err := Chunk("proforma_invoice/pi.pdf", sample, tt.size, tt.overlap)
		require.NoError(t, err)
		require.Equal(t, chunks, again)
	}
}

func TestChunkPrefersSentenceEnd(t *testing.T) {
	chunks, err := Chunk("k", "Alpha beta. Gamma delta epsilon", 20, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, "Alpha beta. ", chunks[0].Text)
	require.Equal(t, ". Gamma delta ", chunks[1].Text)
	require.Equal(t, "a epsilon", chunks[2].Text)
}

func TestChunkHardSplit(t *testing.T) {
	chunks, err := Chunk("k", "abcdefghij", 4, 1)
	require.NoError(t, err)
	got := make([]string, 0, len(chunks))
	for _, c := range chunks {
		got = append(got, c.Text)
	}
	require.Equal(t, []string{"abcd", "defg", "ghij"}, got)
}

func TestChunkRunes(t *testing.T) {
	chunks, err := Chunk("k", "发票金额一万二千元整", 4, 1)
	require.NoError(t, err)
	for _, c := range chunks {
		require.True(t, utf8.ValidString(c.Text))
		require.LessOrEqual(t, utf8.RuneCountInString(c.Text), 4)
	}
	require.Equal(t, "发票金额", chunks[0].Text)
}

func TestChunkEdgeCases(t *testing.T) {
	chunks, err := Chunk("k", " \n\t ", 10, 2)
	require.NoError(t, err)
	require.Empty(t, chunks)

	chunks, err = Chunk("k", "short", 500, 50)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "short", chunks[0].Text)

	for _, bad := range [][2]int{{0, 0}, {10, 10}, {10, -1}, {-5, 0}} {
		_, err := Chunk("k", "text", bad[0], bad[1])
		require.ErrorIs(t, err, ErrInvalidConfig)
		require.ErrorIs(t, err, appErr.ErrConfig)
	}
}
