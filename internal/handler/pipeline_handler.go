package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/pkg/errcode"
	"github.com/xxxsen/mailrag/internal/pkg/response"
	"github.com/xxxsen/mailrag/internal/service"
)

type PipelineHandler struct {
	pipeline *service.Pipeline
}

func NewPipelineHandler(pipeline *service.Pipeline) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline}
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (h *PipelineHandler) Classes(c *gin.Context) {
	response.Success(c, h.pipeline.Classes())
}

func (h *PipelineHandler) Documents(c *gin.Context) {
	docs, err := h.pipeline.Documents(c.Request.Context(), c.Param("class"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *PipelineHandler) Sync(c *gin.Context) {
	stored, err := h.pipeline.Sync(c.Request.Context(), c.Param("class"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"stored": stored})
}

func (h *PipelineHandler) Index(c *gin.Context) {
	h.indexStatus(c, h.pipeline.Index)
}

func (h *PipelineHandler) Rebuild(c *gin.Context) {
	h.indexStatus(c, h.pipeline.Rebuild)
}

// indexStatus reports a built index even when persisting it failed; the
// index is still served from memory.
func (h *PipelineHandler) indexStatus(c *gin.Context, fn func(ctx context.Context, class string) (*service.IndexStatus, error)) {
	st, err := fn(c.Request.Context(), c.Param("class"))
	if st == nil {
		handleError(c, err)
		return
	}
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("index built but not persisted",
			zap.String("class", st.Class), zap.Error(err))
	}
	response.Success(c, st)
}

func (h *PipelineHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.K < 0 {
		response.Fail(c, errcode.ErrInvalid, "k must not be negative")
		return
	}
	ans, err := h.pipeline.Ask(c.Request.Context(), c.Param("class"), req.Query, req.K)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ans)
}

func (h *PipelineHandler) Mirror(c *gin.Context) {
	n, err := h.pipeline.Mirror(c.Request.Context(), c.Param("class"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"mirrored": n})
}
