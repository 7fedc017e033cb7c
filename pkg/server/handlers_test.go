package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/classify"
	"github.com/kpolley/PIIDetective/pkg/decision"
	"github.com/kpolley/PIIDetective/pkg/scan"
	"github.com/kpolley/PIIDetective/pkg/store"
)

type fakeRunner struct {
	status   *store.ScanStatus
	startErr error
	latest   *store.ScanStatus
}

func (r *fakeRunner) Start(ctx context.Context) (*store.ScanStatus, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.status, nil
}

func (r *fakeRunner) Status(ctx context.Context) (*store.ScanStatus, error) {
	if r.latest == nil {
		return nil, store.ErrNotFound
	}
	return r.latest, nil
}

type fakePending struct {
	columns []store.PendingColumn
	err     error
}

func (p *fakePending) PendingColumns(ctx context.Context) ([]store.PendingColumn, error) {
	return p.columns, p.err
}

type fakeRecorder struct {
	calls []int64
	err   error
}

func (r *fakeRecorder) Record(ctx context.Context, columnID int64, d decision.Decision) error {
	r.calls = append(r.calls, columnID)
	return r.err
}

type fakeSampler struct {
	rows  []map[string]any
	err   error
	limit int
}

func (s *fakeSampler) SampleRows(ctx context.Context, datasetID, tableName string, limit int) ([]map[string]any, error) {
	s.limit = limit
	return s.rows, s.err
}

type testDeps struct {
	runner   *fakeRunner
	pending  *fakePending
	recorder *fakeRecorder
	sampler  *fakeSampler
}

func newTestServer(deps testDeps) *Server {
	if deps.runner == nil {
		deps.runner = &fakeRunner{}
	}
	if deps.pending == nil {
		deps.pending = &fakePending{}
	}
	if deps.recorder == nil {
		deps.recorder = &fakeRecorder{}
	}
	if deps.sampler == nil {
		deps.sampler = &fakeSampler{}
	}
	return NewServer(":0", deps.runner, deps.pending, deps.recorder, deps.sampler, 10, zap.NewNop())
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthcheck(t *testing.T) {
	rec := doRequest(t, newTestServer(testDeps{}), http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScanTrigger(t *testing.T) {
	t.Run("starts a scan", func(t *testing.T) {
		runner := &fakeRunner{status: &store.ScanStatus{
			ID:        "abc-123",
			Status:    store.ScanInProgress,
			ScanStart: time.Now().UTC(),
		}}
		rec := doRequest(t, newTestServer(testDeps{runner: runner}), http.MethodGet, "/scan", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "abc-123", body["id"])
		assert.Equal(t, string(store.ScanInProgress), body["status"])
	})

	t.Run("reports scan in progress", func(t *testing.T) {
		runner := &fakeRunner{startErr: scan.ErrScanInProgress}
		rec := doRequest(t, newTestServer(testDeps{runner: runner}), http.MethodGet, "/scan", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Scan in progress")
	})

	t.Run("store failure", func(t *testing.T) {
		runner := &fakeRunner{startErr: errors.New("connection refused")}
		rec := doRequest(t, newTestServer(testDeps{runner: runner}), http.MethodGet, "/scan", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestScanStatus(t *testing.T) {
	t.Run("no scans yet", func(t *testing.T) {
		rec := doRequest(t, newTestServer(testDeps{}), http.MethodGet, "/scan/status", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "{}", rec.Body.String())
	})

	t.Run("latest scan", func(t *testing.T) {
		runner := &fakeRunner{latest: &store.ScanStatus{
			ID:        "abc-123",
			Status:    store.ScanCompleted,
			ScanStart: time.Now().UTC(),
		}}
		rec := doRequest(t, newTestServer(testDeps{runner: runner}), http.MethodGet, "/scan/status", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), string(store.ScanCompleted))
	})
}

func TestColumns(t *testing.T) {
	pending := &fakePending{columns: []store.PendingColumn{{
		ID:              7,
		ColumnID:        1,
		Classification:  classify.ClassificationPersonEmail,
		ConfidenceScore: classify.ConfidenceHigh,
		Column: store.Column{
			ID:        1,
			Name:      "email",
			TableName: "customers",
			DatasetID: "sales",
		},
	}}}
	rec := doRequest(t, newTestServer(testDeps{pending: pending}), http.MethodGet, "/columns", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "PersonEmail", body[0]["classification"])
	column, ok := body[0]["column"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "customers", column["tableName"])
}

func TestDecision(t *testing.T) {
	t.Run("accept", func(t *testing.T) {
		recorder := &fakeRecorder{}
		rec := doRequest(t, newTestServer(testDeps{recorder: recorder}), http.MethodPost,
			"/decision", `{"columnId": 1, "decision": "accept"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int64{1}, recorder.calls)
		assert.Contains(t, rec.Body.String(), `"columnId":1`)
	})

	t.Run("missing fields", func(t *testing.T) {
		recorder := &fakeRecorder{}
		srv := newTestServer(testDeps{recorder: recorder})

		for _, body := range []string{`{}`, `{"columnId": 1}`, `{"decision": "accept"}`} {
			rec := doRequest(t, srv, http.MethodPost, "/decision", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		}
		assert.Empty(t, recorder.calls)
	})

	t.Run("unknown verdict rejected before the recorder runs", func(t *testing.T) {
		recorder := &fakeRecorder{}
		rec := doRequest(t, newTestServer(testDeps{recorder: recorder}), http.MethodPost,
			"/decision", `{"columnId": 1, "decision": "maybe"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, recorder.calls)
	})

	t.Run("unknown column", func(t *testing.T) {
		recorder := &fakeRecorder{err: store.ErrNotFound}
		rec := doRequest(t, newTestServer(testDeps{recorder: recorder}), http.MethodPost,
			"/decision", `{"columnId": 42, "decision": "reject"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("tag apply failure", func(t *testing.T) {
		recorder := &fakeRecorder{err: errors.New("tag service unavailable")}
		rec := doRequest(t, newTestServer(testDeps{recorder: recorder}), http.MethodPost,
			"/decision", `{"columnId": 1, "decision": "accept"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "tag service unavailable")
	})
}

func TestSample(t *testing.T) {
	t.Run("returns rows", func(t *testing.T) {
		sampler := &fakeSampler{rows: []map[string]any{{"email": "a@example.com"}}}
		rec := doRequest(t, newTestServer(testDeps{sampler: sampler}), http.MethodGet,
			"/sample?datasetId=sales&tableName=customers", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "a@example.com")
		assert.Equal(t, 10, sampler.limit)
	})

	t.Run("missing parameters", func(t *testing.T) {
		srv := newTestServer(testDeps{})
		for _, target := range []string{"/sample", "/sample?datasetId=sales", "/sample?tableName=customers"} {
			rec := doRequest(t, srv, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("platform failure", func(t *testing.T) {
		sampler := &fakeSampler{err: errors.New("table not found")}
		rec := doRequest(t, newTestServer(testDeps{sampler: sampler}), http.MethodGet,
			"/sample?datasetId=sales&tableName=missing", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "table not found")
	})
}
