package model

type TextChunk struct {
	DocumentKey   string `json:"document_key"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	Overlap       string `json:"overlap,omitempty"`
}

type VectorRecord struct {
	Chunk     TextChunk `json:"chunk"`
	Embedding []float32 `json:"embedding"`
}

type ScoredChunk struct {
	DocumentKey   string  `json:"document_key"`
	SequenceIndex int     `json:"sequence_index"`
	Text          string  `json:"text"`
	Score         float32 `json:"score"`
}

// CachedEmbedding is one persisted embedder result, keyed by model, task
// type and the hash of the embedded text.
type CachedEmbedding struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Dimension   int       `json:"dimension"`
	Embedding   []float32 `json:"embedding"`
	CreatedAt   int64     `json:"created_at"`
}
