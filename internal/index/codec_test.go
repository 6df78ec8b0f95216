package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

func sampleIndex() *VectorIndex {
	return &VectorIndex{
		Class:          "po_dump",
		Dimension:      3,
		BuildID:        "b-1",
		BuildTime:      time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Watermark:      2,
		EmbeddingModel: "test:hash",
		Records: []model.VectorRecord{
			{Chunk: model.TextChunk{DocumentKey: "po_dumps/a.xlsx", SequenceIndex: 0, Text: "PO-1001 Acme"}, Embedding: []float32{1, 0, 0}},
			{Chunk: model.TextChunk{DocumentKey: "po_dumps/a.xlsx", SequenceIndex: 1, Text: "me 40 units", Overlap: "me"}, Embedding: []float32{0, 1, 0}},
			{Chunk: model.TextChunk{DocumentKey: "po_dumps/b.xlsx", SequenceIndex: 0, Text: "PO-1002 発注"}, Embedding: []float32{0, 0.5, 0.5}},
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := sampleIndex()
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, in.Records, out.Records)
	require.Equal(t, in.Dimension, out.Dimension)
	require.Equal(t, in.BuildID, out.BuildID)
	require.True(t, in.BuildTime.Equal(out.BuildTime))
	require.Equal(t, in.Watermark, out.Watermark)
	require.Equal(t, in.EmbeddingModel, out.EmbeddingModel)
	require.False(t, out.IsEmpty())
}

func TestCodecRejects(t *testing.T) {
	_, err := Encode(Empty("po_dump", 0))
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = Decode([]byte("plain json is not zstd"))
	require.True(t, appErr.IsMalformed(err))

	bad := sampleIndex()
	bad.Records[1].Embedding = []float32{1, 2}
	data, err := Encode(bad)
	require.NoError(t, err)
	_, err = Decode(data)
	require.True(t, appErr.IsMalformed(err))

	raw := zstdEncoder.EncodeAll([]byte(`{"format_version":99,"dimension":1,"records":[{"embedding":[1]}]}`), nil)
	_, err = Decode(raw)
	require.True(t, appErr.IsMalformed(err))
}

func TestEmptySentinel(t *testing.T) {
	var missing *VectorIndex
	require.True(t, missing.IsEmpty())
	require.Zero(t, missing.Len())
	e := Empty("proforma_invoice", 0)
	require.True(t, e.IsEmpty())
	require.Equal(t, "proforma_invoice", e.Class)
}
