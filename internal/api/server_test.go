// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaas/earshot/internal/cache"
	"github.com/khaas/earshot/internal/deliver"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/health"
)

type fakeReader struct {
	records []deliver.Record
	err     error
	lists   int
}

func (f *fakeReader) List(ctx context.Context, limit int) ([]deliver.Record, error) {
	f.lists++
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeReader) Get(ctx context.Context, id detect.EventID) (*deliver.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.records {
		if f.records[i].EventID == id {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func testRecords() []deliver.Record {
	return []deliver.Record{
		{EventID: "101", Labels: []string{"bento"}, Scores: []float64{0.9}, UploadStatus: deliver.StatusOK, CreatedAt: time.Now().UTC()},
		{EventID: "100", Labels: []string{"atori"}, Scores: []float64{0.7}, UploadStatus: deliver.StatusOK, CreatedAt: time.Now().UTC().Add(-time.Minute)},
	}
}

func newTestServer(records RecordReader, c cache.Cache, cfg Config) *Server {
	h := health.NewManager("test")
	return NewServer(cfg, records, c, h)
}

func TestListRecordings(t *testing.T) {
	reader := &fakeReader{records: testRecords()}
	srv := newTestServer(reader, cache.NewMemory(), Config{CacheTTL: time.Minute})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))

	var got []deliver.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, detect.EventID("101"), got[0].EventID)
}

func TestListRecordings_CacheHit(t *testing.T) {
	reader := &fakeReader{records: testRecords()}
	srv := newTestServer(reader, cache.NewMemory(), Config{CacheTTL: time.Minute})
	router := srv.Router()

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/recordings?limit=10", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/recordings?limit=10", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, reader.lists)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestListRecordings_LimitValidation(t *testing.T) {
	srv := newTestServer(&fakeReader{}, cache.NewNoop(), Config{})
	router := srv.Router()

	for _, bad := range []string{"0", "-1", "501", "abc"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}
}

func TestListRecordings_EmptyIsJSONArray(t *testing.T) {
	srv := newTestServer(&fakeReader{}, cache.NewNoop(), Config{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListRecordings_StoreError(t *testing.T) {
	srv := newTestServer(&fakeReader{err: errors.New("db locked")}, cache.NewNoop(), Config{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRecording(t *testing.T) {
	srv := newTestServer(&fakeReader{records: testRecords()}, cache.NewNoop(), Config{})
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings/100", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got deliver.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, detect.EventID("100"), got.EventID)
	assert.Equal(t, []string{"atori"}, got.Labels)

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/recordings/999", nil))
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestTriggerFeedPassthrough(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"feeds":[{"field2":"1"}]}`))
	}))
	defer feed.Close()

	srv := newTestServer(&fakeReader{}, cache.NewNoop(), Config{TriggerFeedURL: feed.URL})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trigger/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"feeds":[{"field2":"1"}]}`, rec.Body.String())
}

func TestTriggerFeed_NotConfigured(t *testing.T) {
	srv := newTestServer(&fakeReader{}, cache.NewNoop(), Config{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trigger/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerFeed_UpstreamFailure(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer feed.Close()

	srv := newTestServer(&fakeReader{}, cache.NewNoop(), Config{TriggerFeedURL: feed.URL})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trigger/latest", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	h := health.NewManager("test")
	h.Register(health.CheckerFunc{
		CheckName: "record_store",
		Fn: func(ctx context.Context) health.CheckResult {
			return health.CheckResult{Status: health.StatusHealthy}
		},
	})
	srv := NewServer(Config{}, &fakeReader{}, cache.NewNoop(), h)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusHealthy, resp.Status)

	ready := httptest.NewRecorder()
	router.ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, ready.Code)
}

func TestReadyz_UnhealthyDependency(t *testing.T) {
	h := health.NewManager("test")
	h.Register(health.CheckerFunc{
		CheckName: "record_store",
		Fn: func(ctx context.Context) health.CheckResult {
			return health.CheckResult{Status: health.StatusUnhealthy, Error: "db gone"}
		},
	})
	srv := NewServer(Config{}, &fakeReader{}, cache.NewNoop(), h)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(&fakeReader{}, cache.NewNoop(), Config{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	// A caller-supplied ID is echoed back.
	req := httptest.NewRequest(http.MethodGet, "/api/recordings", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req)
	assert.Equal(t, "abc-123", rec2.Header().Get("X-Request-Id"))
}
