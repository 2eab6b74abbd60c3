package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/fault"
	"dedupe/internal/indexer"
	"dedupe/internal/storage"
)

type stubIndex struct {
	groups []storage.DuplicateGroup
	status indexer.Status
	err    error
}

func (s stubIndex) Snapshot(context.Context) ([]storage.DuplicateGroup, error) {
	return s.groups, s.err
}

func (s stubIndex) Status(context.Context) (indexer.Status, error) {
	return s.status, s.err
}

func serve(t *testing.T, idx Index, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	New(idx, log.New(io.Discard)).Routes().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestDuplicatesEndpoint(t *testing.T) {
	idx := stubIndex{groups: []storage.DuplicateGroup{
		{Digest: "aa", Count: 2, Paths: []string{"/a", "/b"}},
		{Digest: "bb", Count: 3, Paths: []string{"/c", "/d", "/e"}},
	}}

	rec := serve(t, idx, http.MethodGet, "/api/duplicates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body duplicatesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, idx.groups, body.Groups)
	assert.Equal(t, 5, body.Files)
}

func TestDuplicatesEndpointEmptyIndex(t *testing.T) {
	rec := serve(t, stubIndex{}, http.MethodGet, "/api/duplicates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"groups":[],"files":0}`, rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	idx := stubIndex{status: indexer.Status{
		KnownFiles: 3,
		Groups:     1,
		LastScan:   &storage.ScanState{RootPath: "/data", FinishedAt: finished, Files: 3, Bytes: 2048},
	}}

	rec := serve(t, idx, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.EqualValues(t, 3, body["knownFiles"])
	assert.EqualValues(t, 1, body["groups"])
	assert.Equal(t, "2.0 kB", body["lastScanSize"])
	last, ok := body["lastScan"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/data", last["rootPath"])
}

func TestReadOnly(t *testing.T) {
	for _, target := range []string{"/api/duplicates", "/api/status"} {
		for _, method := range []string{http.MethodPost, http.MethodDelete} {
			rec := serve(t, stubIndex{}, method, target)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", method, target)
		}
	}
}

func TestIndexFailure(t *testing.T) {
	idx := stubIndex{err: fault.Store("query duplicate groups", errors.New("locked"))}
	for _, target := range []string{"/api/duplicates", "/api/status"} {
		rec := serve(t, idx, http.MethodGet, target)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(stubIndex{}, log.New(io.Discard)).Start(ctx, "127.0.0.1:0")
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartReportsBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	var logs bytes.Buffer
	err = New(stubIndex{}, log.New(&logs)).Start(context.Background(), taken.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), taken.Addr().String())
	assert.NotContains(t, logs.String(), "serving report")
}

func TestStartLogsBoundAddress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var logs bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- New(stubIndex{}, log.New(&logs)).Start(ctx, "127.0.0.1:0")
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Contains(t, logs.String(), "serving report")
	assert.Regexp(t, `address=127\.0\.0\.1:[1-9][0-9]*`, logs.String())
}
