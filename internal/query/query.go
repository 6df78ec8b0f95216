// Package query answers questions against a vector index.
package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/ai"
	"github.com/xxxsen/mailrag/internal/index"
	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const (
	DefaultTopK = 4

	IndexNotFoundText = "Index not found. Please build the index first."
)

type Answer struct {
	Available bool                `json:"available"`
	Text      string              `json:"text"`
	Sources   []model.ScoredChunk `json:"sources,omitempty"`
}

type Engine struct {
	embedder ai.IEmbedder
	answerer ai.IAnswerer
	topK     int
}

func NewEngine(embedder ai.IEmbedder, answerer ai.IAnswerer, topK int) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{embedder: embedder, answerer: answerer, topK: topK}
}

// Answer retrieves the k chunks nearest to query and hands them to the
// answerer. A missing or empty index is reported through Available, not as an error.
func (e *Engine) Answer(ctx context.Context, idx *index.VectorIndex, query string, k int) (*Answer, error) {
	if idx.IsEmpty() {
		return &Answer{Available: false, Text: IndexNotFoundText}, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", appErr.ErrInvalid)
	}
	if k <= 0 {
		k = e.topK
	}
	qvec, err := e.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qvec) != idx.Dimension {
		return nil, fmt.Errorf("%w: query has %d, index %s has %d", appErr.ErrDimensionMismatch, len(qvec), idx.Class, idx.Dimension)
	}
	hits := Search(idx, qvec, k)
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Text)
	}
	text, err := e.answerer.Answer(ctx, query, strings.Join(texts, "\n\n"))
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	logutil.GetLogger(ctx).Debug("query answered",
		zap.String("class", idx.Class),
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
	)
	return &Answer{Available: true, Text: text, Sources: hits}, nil
}

// Search is an exact nearest-neighbour scan by cosine similarity. Ties go to
// the lower sequence index, then the smaller document key.
func Search(idx *index.VectorIndex, qvec []float32, k int) []model.ScoredChunk {
	qnorm := norm(qvec)
	scored := make([]model.ScoredChunk, 0, len(idx.Records))
	for _, r := range idx.Records {
		scored = append(scored, model.ScoredChunk{
			DocumentKey:   r.Chunk.DocumentKey,
			SequenceIndex: r.Chunk.SequenceIndex,
			Text:          r.Chunk.Text,
			Score:         cosine(qvec, qnorm, r.Embedding),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SequenceIndex != b.SequenceIndex {
			return a.SequenceIndex < b.SequenceIndex
		}
		return a.DocumentKey < b.DocumentKey
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

func cosine(q []float32, qnorm float64, v []float32) float32 {
	vnorm := norm(v)
	if qnorm == 0 || vnorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return float32(dot / (qnorm * vnorm))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
