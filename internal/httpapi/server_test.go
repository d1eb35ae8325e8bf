package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cel-labs/cel-translate/internal/config"
	"github.com/cel-labs/cel-translate/internal/content"
	"github.com/cel-labs/cel-translate/internal/jobs"
	"github.com/cel-labs/cel-translate/internal/persistence"
)

type stubTranslator struct {
	prefix string
	err    error
}

func (s *stubTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.prefix + text, nil
}

type stubTester struct {
	err error
}

func (s *stubTester) TestConnection(context.Context) error {
	return s.err
}

type fixture struct {
	server *Server
	docs   *persistence.DocumentStore
	queue  *jobs.Queue
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "translate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	docs := store.Documents()
	processor := jobs.NewProcessor(&stubTranslator{prefix: "FR:"}, store.Jobs(), docs, jobs.ProcessorConfig{})
	queue := jobs.NewQueue(jobs.Config{}, store.Jobs(), docs, processor)

	return &fixture{
		server: NewServer(queue, docs, opts...),
		docs:   docs,
		queue:  queue,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
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
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) seedDocument(t *testing.T, doc *content.Document) string {
	t.Helper()
	id, err := f.docs.Create(context.Background(), doc)
	require.NoError(t, err)
	return id
}

func TestTranslateEndpoint(t *testing.T) {
	f := newFixture(t)
	docID := f.seedDocument(t, &content.Document{Title: "Hello", Body: "Body text"})

	rec := f.do(t, http.MethodPost, "/api/translate", map[string]string{
		"document_id":     docID,
		"target_language": "fr",
		"mode":            "full",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	job := decodeBody[jobResponse](t, rec)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Equal(t, 2, job.Progress.Total)
	assert.Equal(t, 0, job.Progress.Percent)

	list := decodeBody[[]jobResponse](t, f.do(t, http.MethodGet, "/api/jobs", nil))
	require.Len(t, list, 1)
	assert.Equal(t, job.ID, list[0].ID)
}

func TestTranslateEndpoint_Validation(t *testing.T) {
	f := newFixture(t)
	docID := f.seedDocument(t, &content.Document{Body: "Body text"})

	rec := f.do(t, http.MethodPost, "/api/translate", map[string]string{"target_language": "fr"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/translate", map[string]string{"document_id": docID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/translate", map[string]string{
		"document_id":     "missing",
		"target_language": "fr",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/translate", map[string]string{
		"document_id":     docID,
		"target_language": "fr",
		"mode":            "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTickEndpoint_DrivesJobToCompletion(t *testing.T) {
	f := newFixture(t)
	docID := f.seedDocument(t, &content.Document{Body: "Body text"})

	created := decodeBody[jobResponse](t, f.do(t, http.MethodPost, "/api/translate", map[string]string{
		"document_id":     docID,
		"target_language": "fr",
		"mode":            "content-only",
	}))

	rec := f.do(t, http.MethodPost, "/api/tick", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody[jobResponse](t, f.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil))
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	assert.Equal(t, []string{"FR:Body text"}, got.Results)
	assert.Equal(t, 100, got.Progress.Percent)

	translations := decodeBody[map[string]string](t, f.do(t, http.MethodGet, "/api/documents/"+docID+"/translations", nil))
	assert.Contains(t, translations, "fr")
	assert.Contains(t, translations, "en")
}

func TestJobLifecycleEndpoints(t *testing.T) {
	f := newFixture(t)
	docID := f.seedDocument(t, &content.Document{Body: "Body text"})

	created := decodeBody[jobResponse](t, f.do(t, http.MethodPost, "/api/translate", map[string]string{
		"document_id":     docID,
		"target_language": "fr",
	}))

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Cancelling a terminal job conflicts.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", created.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%s/retry", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[jobResponse](t, f.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil))
	assert.Equal(t, jobs.StatusPending, got.Status)

	rec = f.do(t, http.MethodDelete, "/api/jobs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/jobs/nope/retry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearJobsEndpoint(t *testing.T) {
	f := newFixture(t)
	docID := f.seedDocument(t, &content.Document{Body: "Body text"})

	created := decodeBody[jobResponse](t, f.do(t, http.MethodPost, "/api/translate", map[string]string{
		"document_id":     docID,
		"target_language": "fr",
	}))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/jobs/"+created.ID+"/cancel", nil).Code)

	result := decodeBody[map[string]int](t, f.do(t, http.MethodPost, "/api/jobs/clear", nil))
	assert.Equal(t, 1, result["deleted"])

	list := decodeBody[[]jobResponse](t, f.do(t, http.MethodGet, "/api/jobs", nil))
	assert.Empty(t, list)
}

func TestDocumentsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/documents", map[string]string{
		"title": "Hello",
		"body":  "Body text",
		"type":  "post",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[content.Document](t, rec)
	require.NotEmpty(t, created.ID)

	got := decodeBody[content.Document](t, f.do(t, http.MethodGet, "/api/documents/"+created.ID, nil))
	assert.Equal(t, "Hello", got.Title)

	list := decodeBody[[]content.Document](t, f.do(t, http.MethodGet, "/api/documents", nil))
	assert.Len(t, list, 1)

	rec = f.do(t, http.MethodPost, "/api/documents", map[string]string{"excerpt": "only"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	initial := config.RuntimeSettings{
		AIAPIURL:       "https://openrouter.ai/api/v1",
		AIAPIKey:       "sk-test",
		AIModel:        "openai/gpt-4o-mini",
		CronExpr:       "* * * * *",
		SourceLanguage: "en",
	}
	store, err := config.NewRuntimeSettingsStore(filepath.Join(t.TempDir(), "settings.json"), initial)
	require.NoError(t, err)

	var applied []config.RuntimeSettings
	f := newFixture(t,
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = append(applied, next)
			return nil
		}),
	)

	got := decodeBody[config.RuntimeSettings](t, f.do(t, http.MethodGet, "/api/settings", nil))
	assert.Equal(t, initial, got)

	next := initial
	next.AIModel = "anthropic/claude-sonnet"
	rec := f.do(t, http.MethodPut, "/api/settings", next)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, applied, 1)
	assert.Equal(t, "anthropic/claude-sonnet", applied[0].AIModel)

	invalid := initial
	invalid.CronExpr = "whenever"
	rec = f.do(t, http.MethodPut, "/api/settings", invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestConnectionEndpoint(t *testing.T) {
	f := newFixture(t, WithConnectionTester(&stubTester{}))
	rec := f.do(t, http.MethodPost, "/api/test-connection", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	failing := newFixture(t, WithConnectionTester(&stubTester{err: fmt.Errorf("invalid API key")}))
	rec = failing.do(t, http.MethodPost, "/api/test-connection", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	unconfigured := newFixture(t)
	rec = unconfigured.do(t, http.MethodPost, "/api/test-connection", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, WithCronExpr(func() string { return "*/5 * * * *" }))
	docID := f.seedDocument(t, &content.Document{Body: "Body text"})
	_ = decodeBody[jobResponse](t, f.do(t, http.MethodPost, "/api/translate", map[string]string{
		"document_id":     docID,
		"target_language": "fr",
	}))

	rec := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status := decodeBody[statusResponse](t, rec)
	assert.Equal(t, 1, status.TotalJobs)
	assert.Equal(t, 1, status.Jobs[jobs.StatusPending])
	require.NotNil(t, status.Schedule)
	assert.Equal(t, "*/5 * * * *", status.Schedule.Expression)
}
