package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mailrag/internal/metrics"
	"github.com/xxxsen/mailrag/internal/middleware"
)

type RouterDeps struct {
	Pipeline       *PipelineHandler
	QueryRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/metrics", gin.WrapH(metrics.Handler()))
	api.GET("/classes", deps.Pipeline.Classes)

	classGroup := api.Group("/classes/:class")
	classGroup.GET("/documents", deps.Pipeline.Documents)
	classGroup.POST("/sync", deps.Pipeline.Sync)
	classGroup.POST("/index", deps.Pipeline.Index)
	classGroup.POST("/rebuild", deps.Pipeline.Rebuild)
	classGroup.POST("/mirror", deps.Pipeline.Mirror)
	classGroup.POST("/query", middleware.RateLimit(deps.QueryRateLimit), deps.Pipeline.Query)
}
