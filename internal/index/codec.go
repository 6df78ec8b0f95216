package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const FormatVersion = 1

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

type artifact struct {
	FormatVersion  int              `json:"format_version"`
	Class          string           `json:"class"`
	BuildID        string           `json:"build_id"`
	BuildTime      time.Time        `json:"build_time"`
	Dimension      int              `json:"dimension"`
	Watermark      int              `json:"watermark"`
	EmbeddingModel string           `json:"embedding_model"`
	Records        []artifactRecord `json:"records"`
}

type artifactRecord struct {
	DocumentKey   string    `json:"document_key"`
	SequenceIndex int       `json:"sequence_index"`
	Text          string    `json:"text"`
	Overlap       string    `json:"overlap,omitempty"`
	Embedding     []float32 `json:"embedding"`
}

// Encode serializes a ready index as zstd-compressed JSON.
func Encode(idx *VectorIndex) ([]byte, error) {
	if idx.IsEmpty() {
		return nil, fmt.Errorf("%w: refusing to encode empty index for %s", appErr.ErrInvalid, idx.Class)
	}
	a := artifact{
		FormatVersion:  FormatVersion,
		Class:          idx.Class,
		BuildID:        idx.BuildID,
		BuildTime:      idx.BuildTime,
		Dimension:      idx.Dimension,
		Watermark:      idx.Watermark,
		EmbeddingModel: idx.EmbeddingModel,
		Records:        make([]artifactRecord, 0, len(idx.Records)),
	}
	for _, r := range idx.Records {
		a.Records = append(a.Records, artifactRecord{
			DocumentKey:   r.Chunk.DocumentKey,
			SequenceIndex: r.Chunk.SequenceIndex,
			Text:          r.Chunk.Text,
			Overlap:       r.Chunk.Overlap,
			Embedding:     r.Embedding,
		})
	}
	raw, err := json.Marshal(&a)
	if err != nil {
		return nil, fmt.Errorf("encode index artifact: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func Decode(data []byte) (*VectorIndex, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress index artifact: %v", appErr.ErrMalformed, err)
	}
	var a artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: decode index artifact: %v", appErr.ErrMalformed, err)
	}
	if a.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: index format version %d, want %d", appErr.ErrMalformed, a.FormatVersion, FormatVersion)
	}
	if len(a.Records) == 0 || a.Dimension <= 0 {
		return nil, fmt.Errorf("%w: index artifact for %s has no records", appErr.ErrMalformed, a.Class)
	}
	idx := &VectorIndex{
		Class:          a.Class,
		Dimension:      a.Dimension,
		BuildID:        a.BuildID,
		BuildTime:      a.BuildTime,
		Watermark:      a.Watermark,
		EmbeddingModel: a.EmbeddingModel,
		Records:        make([]model.VectorRecord, 0, len(a.Records)),
	}
	for i, r := range a.Records {
		if len(r.Embedding) != a.Dimension {
			return nil, fmt.Errorf("%w: record %d has dimension %d, index has %d", appErr.ErrMalformed, i, len(r.Embedding), a.Dimension)
		}
		idx.Records = append(idx.Records, model.VectorRecord{
			Chunk: model.TextChunk{
				DocumentKey:   r.DocumentKey,
				SequenceIndex: r.SequenceIndex,
				Text:          r.Text,
				Overlap:       r.Overlap,
			},
			Embedding: r.Embedding,
		})
	}
	return idx, nil
}
