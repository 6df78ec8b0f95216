// Package index builds, persists and caches per-class vector indexes.
package index

import (
	"time"

	"github.com/xxxsen/mailrag/internal/model"
)

// VectorIndex is an immutable set of embedded chunks for one document class.
// Records keep document listing order, then chunk order.
type VectorIndex struct {
	Class          string
	Records        []model.VectorRecord
	Dimension      int
	BuildID        string
	BuildTime      time.Time
	Watermark      int
	EmbeddingModel string

	empty bool
}

// Empty is the sentinel for a class with nothing indexable. It is never persisted.
func Empty(class string, watermark int) *VectorIndex {
	return &VectorIndex{Class: class, Watermark: watermark, empty: true}
}

func (v *VectorIndex) IsEmpty() bool {
	return v == nil || v.empty || len(v.Records) == 0
}

func (v *VectorIndex) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Records)
}
