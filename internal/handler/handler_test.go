package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"iclr-explorer/internal/evaluation"
	"iclr-explorer/internal/middleware"
	"iclr-explorer/internal/models"
	"iclr-explorer/internal/partition"
	"iclr-explorer/internal/prompt"
	"iclr-explorer/internal/repository"
	"iclr-explorer/internal/service"
	"iclr-explorer/internal/year"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const task = "# Task\nDecide whether the paper is accepted.\n\n# Prediction\nText: {{ text }}\nLabel:"

type stubLabeler struct {
	reply string
	err   error
}

func (s *stubLabeler) Label(ctx context.Context, p string) (string, error) {
	return s.reply, s.err
}

type testServer struct {
	router      *gin.Engine
	db          *sqlx.DB
	years       *year.Registry
	submissions repository.SubmissionRepository
	labeler     *stubLabeler
	seeded      []*models.Submission
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	db, err := repository.NewDB(repository.DBTypeSQLite, filepath.Join(t.TempDir(), "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.MigrateDB(db, repository.DBTypeSQLite, logger))

	years, err := year.NewRegistry([]string{"2024", "2025", "2026"}, "2024")
	require.NoError(t, err)
	resolver := partition.NewResolver(years, logger)

	subs := repository.NewSubmissionRepository(db, resolver, logger)
	preds := repository.NewPredictionRepository(db, resolver, logger)
	labeler := &stubLabeler{reply: "Yes"}

	h := NewHandler(Deps{
		Years:       years,
		Submissions: subs,
		Predictions: preds,
		Predictor:   service.NewPredictor(subs, preds, prompt.NewRenderer(prompt.ICLR), labeler, "gpt-4o-mini", logger),
		Evaluator:   service.NewEvaluator(preds, logger),
		Stats:       repository.NewStatsRepository(db, logger),
		DB:          db,
		Conference:  "ICLR",
	}, logger)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.YearOverride(years))
	h.RegisterRoutes(r)

	ts := &testServer{router: r, db: db, years: years, submissions: subs, labeler: labeler}

	seed := []*models.Submission{
		{SID: "a", Title: "Neural Fields", Authors: models.StringList{"Ada"}, Year: "2024", URL: "u-a", Decision: "Accept (poster)",
			MetaReviews: models.MetaReviews{{Values: models.ReviewValues{models.FieldRating: "8", models.FieldSummary: "Good."}}}},
		{SID: "b", Title: "Graph Kernels", Authors: models.StringList{"Bo Neural"}, Year: "2024", URL: "u-b", Decision: "Reject",
			MetaReviews: models.MetaReviews{{Values: models.ReviewValues{models.FieldRating: "3"}}}},
		{SID: "c", Title: "Optimal Transport", Authors: models.StringList{"Cy"}, Year: "2023", URL: "u-c", Decision: "Accept (oral)"},
	}
	_, err = subs.CreateMany(context.Background(), seed)
	require.NoError(t, err)
	ts.seeded = seed

	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestYearEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/iclr/year", gin.H{"year": "2025"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"currentYear":"2025"}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/iclr/year", nil)
	assert.JSONEq(t, `{"currentYear":"2025","availableYears":["2024","2025","2026"]}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/iclr/year", gin.H{"year": "1999"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decode(t, w, &resp)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, "2025", ts.years.Current())

	// The 2025 partition is empty; the override reads 2024 without touching the global.
	w = ts.do(t, http.MethodGet, "/api/iclr", nil)
	assert.JSONEq(t, `{"data":[],"name":"iclr_2025"}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/iclr?year=2024", nil)
	var list struct {
		Data []models.Submission `json:"data"`
		Name string              `json:"name"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Data, 3)
	assert.Equal(t, "iclr_2024", list.Name)
}

func TestPaginatedSearch(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/iclr/paginated?limit=10&skip=0&search=neural", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Data       []models.Submission `json:"data"`
		TotalCount int                 `json:"totalCount"`
		Name       string              `json:"name"`
	}
	decode(t, w, &page)
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Neural Fields", page.Data[0].Title)

	w = ts.do(t, http.MethodGet, "/api/iclr/paginated?limit=abc&skip=-4", nil)
	decode(t, w, &page)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Data, 3)
}

func TestSubmissionLookups(t *testing.T) {
	ts := newTestServer(t)
	a := ts.seeded[0]

	w := ts.do(t, http.MethodGet, "/api/iclr/title/neural", nil)
	var found []models.Submission
	decode(t, w, &found)
	assert.Len(t, found, 1)

	w = ts.do(t, http.MethodGet, "/api/iclr/id/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/iclr/id/9999", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/iclr/meta?url=u-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"rating":"8","summary":"Good."}]`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/iclr/random/2", nil)
	decode(t, w, &found)
	assert.Len(t, found, 2)

	w = ts.do(t, http.MethodPut, "/api/iclr/decision/"+itoa(a.ID), gin.H{"decision": "Reject"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/iclr/delete/"+itoa(a.ID), nil)
	assert.JSONEq(t, `{"deleted_count":1}`, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/iclr/delete/"+itoa(a.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted_count":0}`, w.Body.String())
}

func TestYearFieldAndBibliography(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/iclr/year/2023", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found []models.Submission
	decode(t, w, &found)
	require.Len(t, found, 1)
	assert.Equal(t, "Optimal Transport", found[0].Title)

	w = ts.do(t, http.MethodGet, "/api/iclr/year/2024", nil)
	decode(t, w, &found)
	assert.Len(t, found, 2)

	w = ts.do(t, http.MethodGet, "/api/iclr/bib", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bib []map[string]interface{}
	decode(t, w, &bib)
	require.Len(t, bib, 3)
	assert.Equal(t, "Neural Fields", bib[0]["title"])
	assert.Equal(t, []interface{}{"Ada"}, bib[0]["authors"])
	assert.Equal(t, "2024", bib[0]["year"])
	assert.NotContains(t, bib[0], "metareviews")
}

func TestPromptFlow(t *testing.T) {
	ts := newTestServer(t)
	a, b := ts.seeded[0], ts.seeded[1]

	w := ts.do(t, http.MethodPost, "/api/iclr/prompt/url", gin.H{"url": "u-a", "task": task, "rebuttal": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Accept", w.Body.String())

	ts.labeler.reply = "No."
	w = ts.do(t, http.MethodPost, "/api/iclr/prompt/url", gin.H{"url": "u-b", "task": task, "rebuttal": 1})
	assert.Equal(t, "Reject", w.Body.String())

	// Re-labeling the same key replaces the earlier row.
	w = ts.do(t, http.MethodPost, "/api/iclr/prompt/url", gin.H{"url": "u-b", "task": task, "rebuttal": 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/prompt/predictions_by_prompt_and_rebuttal", gin.H{"prompt": task, "rebuttal": 1})
	var preds []models.Prediction
	decode(t, w, &preds)
	assert.Len(t, preds, 2)

	w = ts.do(t, http.MethodPost, "/api/prompt/prediction", gin.H{"paperId": itoa(a.ID), "prompt": prompt.Key(task)})
	require.Equal(t, http.StatusOK, w.Code)
	var one models.Prediction
	decode(t, w, &one)
	assert.Equal(t, models.Accept, one.Prediction)
	assert.Equal(t, "Decide whether the paper is accepted.", one.Prompt)

	w = ts.do(t, http.MethodPost, "/api/prompt/predictions_by_paper_ids_and_prompt_and_rebuttal",
		gin.H{"paper_ids": []int64{a.ID, b.ID, 424242}, "prompt": task, "rebuttal": 1})
	var batch []batchEntry
	decode(t, w, &batch)
	require.Len(t, batch, 3)
	assert.Equal(t, "Accept", batch[0].Prediction)
	assert.Equal(t, "Reject", batch[1].Prediction)
	assert.Equal(t, "O", batch[2].Prediction)

	w = ts.do(t, http.MethodPost, "/api/metrics/confusion", gin.H{"prompt": task, "rebuttal": 1})
	var m evaluation.Metrics
	decode(t, w, &m)
	assert.Equal(t, 1, m.TruePositive)
	assert.Equal(t, 1, m.TrueNegative)
	assert.Equal(t, "100.0", m.Accuracy)

	w = ts.do(t, http.MethodGet, "/api/metrics/prompts", nil)
	var overview []service.RebuttalComparison
	decode(t, w, &overview)
	require.Len(t, overview, 1)
	assert.Equal(t, 2, overview[0].WithRebuttal.Total)
	assert.Equal(t, 0, overview[0].WithoutRebuttal.Total)

	w = ts.do(t, http.MethodDelete, "/api/prompt/prediction", gin.H{"paperId": a.ID, "prompt": task})
	assert.JSONEq(t, `{"deleted_count":1}`, w.Body.String())

	// Deleting again acknowledges zero rows like the submission delete does.
	w = ts.do(t, http.MethodDelete, "/api/prompt/prediction", gin.H{"paperId": a.ID, "prompt": task})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted_count":0}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/prompt/prediction", gin.H{"paperId": a.ID, "prompt": task})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/prompt/year/2024", nil)
	assert.JSONEq(t, `{"deleted_count":1,"year":"2024"}`, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/prompt/year/1999", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromptByURL_Errors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/iclr/prompt/url", gin.H{"url": "u-c", "task": task, "rebuttal": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code, "submission without reviews")

	w = ts.do(t, http.MethodPost, "/api/iclr/prompt/url", gin.H{"url": "missing", "task": task})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.labeler.err = errors.New("openai API returned status 503")
	w = ts.do(t, http.MethodPost, "/api/iclr/prompt/url", gin.H{"url": "u-a", "task": task, "rebuttal": 0})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "status 503"))

	w = ts.do(t, http.MethodPost, "/api/prompt/all_predictions_by_prompt", gin.H{"prompt": task})
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUnknownRebuttalFlagRejected(t *testing.T) {
	ts := newTestServer(t)
	a := ts.seeded[0]

	w := ts.do(t, http.MethodPost, "/api/iclr/prompt/url", gin.H{"url": "u-a", "task": task, "rebuttal": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "rebuttal")

	w = ts.do(t, http.MethodPost, "/api/prompt/all_predictions_by_prompt", gin.H{"prompt": task})
	assert.JSONEq(t, `[]`, w.Body.String())

	for _, tc := range []struct {
		path string
		body gin.H
	}{
		{"/api/prompt/predictions_by_prompt_and_rebuttal", gin.H{"prompt": task, "rebuttal": 2}},
		{"/api/prompt/predictions_by_paper_ids_and_prompt_and_rebuttal", gin.H{"paper_ids": []int64{a.ID}, "prompt": task, "rebuttal": -2}},
		{"/api/metrics/confusion", gin.H{"prompt": task, "rebuttal": 5}},
	} {
		w = ts.do(t, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.path)
	}

	w = ts.do(t, http.MethodPost, "/api/iclr/prompt/url", gin.H{"url": "u-a", "task": task, "rebuttal": -1})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPersistenceFailureMessage(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.db.Close())

	w := ts.do(t, http.MethodGet, "/api/iclr/bib", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"persistence failure: find bibliography"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "sql:")
}

func TestPredictionStatsRoutes(t *testing.T) {
	ts := newTestServer(t)

	record := gin.H{
		"prompt":      "Predict acceptance",
		"prompt_type": 1,
		"predictions": []gin.H{
			{"year": 2024, "conference": "ICLR", "number_of_predictions": 10, "rebuttal_in_review": 0, "TP": 4, "FP": 1, "FN": 1, "TN": 4},
			{"year": 2025, "number_of_predictions": 4, "rebuttal_in_review": 1, "TP": 2, "FP": 0, "FN": 2, "TN": 0},
		},
	}
	w := ts.do(t, http.MethodPost, "/api/predictionStats/create", record)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created models.PredictionStats
	decode(t, w, &created)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "ICLR", created.Predictions[1].Conference)

	w = ts.do(t, http.MethodPost, "/api/predictionStats/create", record)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/predictionStats/create", gin.H{"prompt": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/predictionStats/get", gin.H{"prompt": "Predict acceptance"})
	var got []models.PredictionStats
	decode(t, w, &got)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Predictions, 2)

	w = ts.do(t, http.MethodGet, "/api/predictionStats/type/1", nil)
	decode(t, w, &got)
	assert.Len(t, got, 1)

	w = ts.do(t, http.MethodGet, "/api/predictionStats/type/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/predictionStats/year/2025", nil)
	decode(t, w, &got)
	assert.Len(t, got, 1)

	w = ts.do(t, http.MethodGet, "/api/predictionStats/year/2026", nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/predictionStats/conference/NeurIPS", nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(t, http.MethodPut, "/api/predictionStats/update/Second%20prompt", gin.H{"prompt_type": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var upserted models.PredictionStats
	decode(t, w, &upserted)
	assert.Equal(t, 2, upserted.PromptType)
	assert.Empty(t, upserted.Predictions)

	w = ts.do(t, http.MethodGet, "/api/predictionStats/all", nil)
	decode(t, w, &got)
	assert.Len(t, got, 2)

	w = ts.do(t, http.MethodGet, "/api/predictionStats/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary []models.StatsSummary
	decode(t, w, &summary)
	require.Len(t, summary, 2)
	assert.Equal(t, 10, summary[0].TotalPapers)
	require.NotNil(t, summary[0].AvgAccuracy)
	assert.InDelta(t, 0.8, *summary[0].AvgAccuracy, 1e-9)

	w = ts.do(t, http.MethodDelete, "/api/predictionStats/delete/Predict%20acceptance", nil)
	assert.JSONEq(t, `{"deleted_count":1}`, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/predictionStats/deleteAll", nil)
	assert.JSONEq(t, `{"deleted_count":1}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/predictionStats/all", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "iclr_db_query_duration_seconds")
}
