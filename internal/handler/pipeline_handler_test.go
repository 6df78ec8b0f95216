package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailrag/internal/mailbox/mailboxtest"
	"github.com/xxxsen/mailrag/internal/model"
	"github.com/xxxsen/mailrag/internal/pkg/errcode"
	"github.com/xxxsen/mailrag/internal/query"
	"github.com/xxxsen/mailrag/internal/service"
)

func TestPipelineHandlersFlow(t *testing.T) {
	srv := setupRouter(t, 0)
	srv.mail.Add("Shipping Note", mailboxtest.BuildMessage("Shipping Note", mailboxtest.File{
		Name:    "week 12.txt",
		Content: []byte("Pallet 7 with copper pipes left the Hamburg depot on Monday."),
	}))

	res := srv.do(t, http.MethodGet, "/api/v1/classes", nil)
	require.Equal(t, 0, res.Code)
	var classes []model.DocumentClass
	require.NoError(t, json.Unmarshal(res.Data, &classes))
	require.Len(t, classes, 1)
	require.Equal(t, "notes", classes[0].Name)

	res = srv.do(t, http.MethodPost, "/api/v1/classes/notes/query", map[string]interface{}{"query": "When did pallet 7 leave?"})
	require.Equal(t, 0, res.Code)
	var ans query.Answer
	require.NoError(t, json.Unmarshal(res.Data, &ans))
	require.False(t, ans.Available)
	require.Equal(t, query.IndexNotFoundText, ans.Text)

	res = srv.do(t, http.MethodPost, "/api/v1/classes/notes/sync", nil)
	require.Equal(t, 0, res.Code)
	var synced struct {
		Stored int `json:"stored"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &synced))
	require.Equal(t, 1, synced.Stored)

	res = srv.do(t, http.MethodGet, "/api/v1/classes/notes/documents", nil)
	require.Equal(t, 0, res.Code)
	var docs []model.StoredDocument
	require.NoError(t, json.Unmarshal(res.Data, &docs))
	require.Len(t, docs, 1)
	require.Equal(t, "notes/week_12.txt", docs[0].Key)

	res = srv.do(t, http.MethodPost, "/api/v1/classes/notes/rebuild", nil)
	require.Equal(t, 0, res.Code)
	var st service.IndexStatus
	require.NoError(t, json.Unmarshal(res.Data, &st))
	require.True(t, st.Available)
	require.Equal(t, 1, st.Watermark)
	require.Positive(t, st.Records)

	res = srv.do(t, http.MethodPost, "/api/v1/classes/notes/index", nil)
	require.Equal(t, 0, res.Code)
	var again service.IndexStatus
	require.NoError(t, json.Unmarshal(res.Data, &again))
	require.Equal(t, st.BuildID, again.BuildID)

	res = srv.do(t, http.MethodPost, "/api/v1/classes/notes/query", map[string]interface{}{"query": "When did pallet 7 leave?", "k": 1})
	require.Equal(t, 0, res.Code)
	ans = query.Answer{}
	require.NoError(t, json.Unmarshal(res.Data, &ans))
	require.True(t, ans.Available)
	require.Equal(t, "The pallet left on Monday.", ans.Text)
	require.Len(t, ans.Sources, 1)
	require.Contains(t, srv.gen.Prompts()[0], "Hamburg depot")

	res = srv.do(t, http.MethodPost, "/api/v1/classes/notes/mirror", nil)
	require.Equal(t, 0, res.Code)
}

func TestPipelineHandlersErrors(t *testing.T) {
	srv := setupRouter(t, 0)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
	}{
		{name: "unknown class sync", method: http.MethodPost, path: "/api/v1/classes/receipts/sync", code: errcode.ErrUnknownClass},
		{name: "unknown class documents", method: http.MethodGet, path: "/api/v1/classes/receipts/documents", code: errcode.ErrUnknownClass},
		{name: "unknown class query", method: http.MethodPost, path: "/api/v1/classes/receipts/query", body: map[string]interface{}{"query": "x"}, code: errcode.ErrUnknownClass},
		{name: "negative k", method: http.MethodPost, path: "/api/v1/classes/notes/query", body: map[string]interface{}{"query": "x", "k": -1}, code: errcode.ErrInvalid},
		{name: "bad body", method: http.MethodPost, path: "/api/v1/classes/notes/query", body: "not an object", code: errcode.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := srv.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.code, res.Code)
		})
	}

	srv.mail.SetDown(true)
	res := srv.do(t, http.MethodPost, "/api/v1/classes/notes/sync", nil)
	require.Equal(t, errcode.ErrTransient, res.Code)
}

func TestQueryRateLimit(t *testing.T) {
	srv := setupRouter(t, time.Hour)
	body := map[string]interface{}{"query": "anything"}
	require.Equal(t, 0, srv.do(t, http.MethodPost, "/api/v1/classes/notes/query", body).Code)
	require.Equal(t, errcode.ErrTooMany, srv.do(t, http.MethodPost, "/api/v1/classes/notes/query", body).Code)
	require.Equal(t, 0, srv.do(t, http.MethodPost, "/api/v1/classes/notes/sync", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupRouter(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	resp := httptest.NewRecorder()
	srv.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "go_goroutines")
}
