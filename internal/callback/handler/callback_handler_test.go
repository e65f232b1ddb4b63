package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videoauto/mps-callback/internal/callback/dispatch"
	"github.com/videoauto/mps-callback/internal/callback/domain"
	"github.com/videoauto/mps-callback/internal/callback/event"
	"github.com/videoauto/mps-callback/internal/callback/handler"
	"github.com/videoauto/mps-callback/internal/callback/router"
)

type fakeStore struct {
	mu      sync.Mutex
	err     error
	results map[string]*domain.JobResult
}

func (s *fakeStore) Upsert(ctx context.Context, result *domain.JobResult) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		s.results = map[string]*domain.JobResult{}
	}
	s.results[result.JobID] = result
	return nil
}

func (s *fakeStore) GetByJobID(ctx context.Context, jobID string) (*domain.JobResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[jobID]
	if !ok {
		return nil, domain.ErrResultNotFound
	}
	return result, nil
}

type fakeSubmitter struct {
	mu    sync.Mutex
	tasks []dispatch.Task
}

func (s *fakeSubmitter) Submit(task dispatch.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func newTestRouter(store *fakeStore, submitter *fakeSubmitter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return router.SetupRouter(&handler.Dependencies{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Normalizer: event.NewNormalizer("https://media-bucket.example.com"),
		Store:      store,
		Dispatcher: submitter,
	})
}

func postCallback(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mps/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const asrNotification = `{
	"EventType": "WorkflowTask",
	"SessionContext": "user-1",
	"WorkflowTaskEvent": {
		"TaskId": "T1",
		"Status": "SUCCESS",
		"InputInfo": {"UrlInputInfo": {"Url": "https://x/videos/show/ep1.mp4"}},
		"SmartSubtitlesTaskResult": [
			{"Type": "AsrFullTextRecognition", "AsrFullTextTask": {"Output": {"SubtitlePath": "https://x/cn.vtt"}}}
		]
	}
}`

func TestHandleCallback_StoresAndSubmits(t *testing.T) {
	store := &fakeStore{}
	submitter := &fakeSubmitter{}
	r := newTestRouter(store, submitter)

	w := postCallback(r, asrNotification)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"processed"`)

	result := store.results["T1"]
	require.NotNil(t, result)
	assert.Equal(t, domain.StatusSucceeded, result.Status)
	assert.Equal(t, "https://x/cn.vtt", result.SourceSubtitleURL)
	assert.Empty(t, result.TranslatedSubtitleURL)

	require.Len(t, submitter.tasks, 1)
	assert.Equal(t, "T1", submitter.tasks[0].JobID)
	assert.Equal(t, "https://x/cn.vtt", submitter.tasks[0].SourceSubtitleURL)
}

func TestHandleCallback_FailedJobStoredButNotSubmitted(t *testing.T) {
	store := &fakeStore{}
	submitter := &fakeSubmitter{}
	r := newTestRouter(store, submitter)

	body := strings.Replace(asrNotification, `"Status": "SUCCESS"`, `"Status": "FAIL"`, 1)
	w := postCallback(r, body)

	assert.Equal(t, http.StatusOK, w.Code)
	result := store.results["T1"]
	require.NotNil(t, result)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Empty(t, submitter.tasks)
}

func TestHandleCallback_IgnoredEventType(t *testing.T) {
	store := &fakeStore{}
	submitter := &fakeSubmitter{}
	r := newTestRouter(store, submitter)

	w := postCallback(r, `{"EventType": "ProcedureStateChanged"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ignored"`)
	assert.Empty(t, store.results)
	assert.Empty(t, submitter.tasks)
}

func TestHandleCallback_MalformedEventAcknowledged(t *testing.T) {
	store := &fakeStore{}
	submitter := &fakeSubmitter{}
	r := newTestRouter(store, submitter)

	w := postCallback(r, `{"EventType": "WorkflowTask", "WorkflowTaskEvent": {"Status": "SUCCESS"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"acknowledged"`)
	assert.Empty(t, store.results)
	assert.Empty(t, submitter.tasks)
}

func TestHandleCallback_InvalidJSONIsClientError(t *testing.T) {
	r := newTestRouter(&fakeStore{}, &fakeSubmitter{})

	w := postCallback(r, `{"EventType": `)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCallback_UpsertFailureStillAcknowledged(t *testing.T) {
	store := &fakeStore{err: domain.ErrPersistence}
	submitter := &fakeSubmitter{}
	r := newTestRouter(store, submitter)

	w := postCallback(r, asrNotification)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"acknowledged"`)
	// No submission when the initial write failed.
	assert.Empty(t, submitter.tasks)
}

func TestGetJobResult(t *testing.T) {
	store := &fakeStore{results: map[string]*domain.JobResult{
		"T1": {
			JobID:                 "T1",
			Status:                domain.StatusSucceeded,
			SourceSubtitleURL:     "https://x/cn.vtt",
			TranslatedSubtitleURL: "https://x/en_cn.vtt",
		},
	}}
	r := newTestRouter(store, &fakeSubmitter{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/T1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"T1"`)
	assert.Contains(t, w.Body.String(), `"translated_subtitle_url":"https://x/en_cn.vtt"`)
}

func TestGetJobResult_NotFound(t *testing.T) {
	r := newTestRouter(&fakeStore{}, &fakeSubmitter{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(&fakeStore{}, &fakeSubmitter{})

	for _, path := range []string{"/", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "path %s", path)
	}
}
