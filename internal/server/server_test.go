package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ruwave_bot/internal/core"
	"ruwave_bot/internal/metrics"
	"ruwave_bot/pkg"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	out   *core.ProcessorOutput
	err   error
	panic bool
	last  core.ProcessorInput
}

func (f *fakeProcessor) Execute(ctx context.Context, input core.ProcessorInput) (*core.ProcessorOutput, error) {
	f.last = input
	if f.panic {
		panic("boom")
	}
	if strings.TrimSpace(input.UserMessage) == "" {
		return nil, pkg.ErrEmptyInput
	}
	return f.out, f.err
}

type fixedSnapshot struct {
	snapshot *pkg.PlaylistSnapshot
}

func (f fixedSnapshot) Snapshot() *pkg.PlaylistSnapshot {
	return f.snapshot
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return rec, payload
}

func TestChatReturnsReply(t *testing.T) {
	proc := &fakeProcessor{out: &core.ProcessorOutput{Reply: "💰 от €4", Intent: pkg.IntentPrice}}
	m := metrics.New()
	h := New(":0", proc, nil, m).Handler()

	rec, payload := post(t, h, `{"message":"сколько стоит реклама"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"reply": "💰 от €4"}, payload)
	assert.Equal(t, "сколько стоит реклама", proc.last.UserMessage)
	assert.False(t, proc.last.ReceivedAt.IsZero())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatRequests.WithLabelValues("price", "ok")))
}

func TestChatEmptyInputIsBadRequest(t *testing.T) {
	h := New(":0", &fakeProcessor{}, nil, nil).Handler()

	for _, body := range []string{`{"message":"   "}`, `{}`, ``} {
		rec, payload := post(t, h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, errEmpty, payload["error"], body)
		assert.NotEmpty(t, payload["detail"], body)
	}
}

func TestChatInvalidJSONIsBadRequest(t *testing.T) {
	h := New(":0", &fakeProcessor{}, nil, nil).Handler()

	rec, payload := post(t, h, `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errBadRequest, payload["error"])
}

func TestChatExternalFailureIsServerError(t *testing.T) {
	cause := fmt.Errorf("%w: chat completion: %v", pkg.ErrExternalFetch, errors.New("401 unauthorized"))
	h := New(":0", &fakeProcessor{err: cause}, nil, nil).Handler()

	rec, payload := post(t, h, `{"message":"привет"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Ошибка сервера", payload["error"])
	assert.Contains(t, payload["detail"], "401 unauthorized")
	assert.NotContains(t, payload, "reply")
}

func TestChatPanicIsRecovered(t *testing.T) {
	h := New(":0", &fakeProcessor{panic: true}, nil, nil).Handler()

	rec, payload := post(t, h, `{"message":"привет"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errServer, payload["error"])
}

func TestChatRejectsOtherMethods(t *testing.T) {
	h := New(":0", &fakeProcessor{}, nil, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := New(":0", &fakeProcessor{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://ruwave.net")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealthReportsSnapshot(t *testing.T) {
	fetched := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	snap := &pkg.PlaylistSnapshot{Records: make([]pkg.PlaylistRecord, 3), FetchedAt: fetched}
	h := New(":0", &fakeProcessor{}, fixedSnapshot{snap}, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload healthResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, 3, payload.PlaylistRecords)
	require.NotNil(t, payload.PlaylistFetchedAt)
	assert.True(t, fetched.Equal(*payload.PlaylistFetchedAt))
}

func TestHealthWithoutSnapshot(t *testing.T) {
	h := New(":0", &fakeProcessor{}, fixedSnapshot{}, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","playlist_records":0,"playlist_fetched_at":null}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveChat("fallback", "ok", time.Millisecond)
	h := New(":0", &fakeProcessor{}, nil, m).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ruwave_chat_requests_total{intent="fallback",status="ok"} 1`)
}
