package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/mailrag/internal/ai"
	"github.com/xxxsen/mailrag/internal/ai/aitest"
	"github.com/xxxsen/mailrag/internal/config"
	"github.com/xxxsen/mailrag/internal/filestore"
	"github.com/xxxsen/mailrag/internal/handler"
	"github.com/xxxsen/mailrag/internal/index"
	"github.com/xxxsen/mailrag/internal/ingest"
	"github.com/xxxsen/mailrag/internal/mailbox/mailboxtest"
	"github.com/xxxsen/mailrag/internal/middleware"
	"github.com/xxxsen/mailrag/internal/model"
	"github.com/xxxsen/mailrag/internal/query"
	"github.com/xxxsen/mailrag/internal/service"
)

var notesClass = model.DocumentClass{
	Name:      "notes",
	Subject:   "Shipping Note",
	Extension: ".txt",
	Prefix:    "notes/",
	IndexKey:  "indexes/notes.idx",
	Limit:     10,
}

type apiResult struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	router http.Handler
	mail   *mailboxtest.Memory
	gen    *aitest.Generator
}

func setupRouter(t *testing.T, rateLimit time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := &testServer{
		mail: mailboxtest.NewMemory(),
		gen:  &aitest.Generator{Reply: "The pallet left on Monday."},
	}
	store := filestore.NewDurable(filestore.NewLocal(t.TempDir()), nil)
	embedder := aitest.NewEmbedder()
	builder := index.NewBuilder(store, embedder, index.BuilderConfig{ChunkSize: 120, ChunkOverlap: 10})
	pipeline := service.NewPipeline(
		[]model.DocumentClass{notesClass},
		ingest.NewSynchronizer(srv.mail.Opener(), store),
		store,
		index.NewRegistry(store, builder, config.StalenessNever),
		query.NewEngine(embedder, ai.NewAnswerer(srv.gen, ai.AnswererConfig{}), 2),
	)

	deps := handler.RouterDeps{
		Pipeline:       handler.NewPipelineHandler(pipeline),
		QueryRateLimit: rateLimit,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	srv.router = engine
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) apiResult {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var result apiResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return result
}
