package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnlboard/internal/config"
	"pnlboard/internal/domain"
	"pnlboard/internal/export"
	"pnlboard/internal/feed"
	"pnlboard/internal/store"
	"pnlboard/internal/summary"
)

const openFixture = `{"date":"2025-05-01","hour":0,"profit":100}
{"date":"2025-05-01","hour":20,"profit":-30}
{"date":"2025-05-02","hour":9,"profit":12.5}
`

type testEnv struct {
	srv      *Server
	handler  http.Handler
	public   string
	db       *store.SQLiteStore
	datasets *feed.Datasets
}

func newTestEnv(t *testing.T, serverCfg config.Server) *testEnv {
	t.Helper()
	dir := t.TempDir()
	public := filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(public, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(public, "profit_xauusd_hourly.json"), []byte(openFixture), 0o644))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := store.NewSQLiteStore(filepath.Join(dir, "pnlboard.db"), 5)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	paths := feed.DefaultPaths("XAUUSD")
	datasets := feed.NewDatasets(feed.NewDir(public, paths, log), log)
	metrics := NewMetrics()
	datasets.SetObserver(metrics.ObserveLoad)

	srv, err := NewServer(Options{
		Datasets:  datasets,
		Exporter:  export.New(db, store.NewParquetStore(filepath.Join(dir, "data")), public, log),
		Summary:   summary.New(db, log),
		Ranges:    db,
		PublicDir: public,
		Paths:     paths,
		Profit:    config.Default().Profit,
		Metrics:   metrics,
		Log:       log,
	})
	require.NoError(t, err)

	return &testEnv{srv: srv, handler: srv.Handler(serverCfg), public: public, db: db, datasets: datasets}
}

// loadAll loads both sources. Only the open fixture exists, so the close
// source always fails here.
func (e *testEnv) loadAll() {
	_ = e.datasets.ReloadAll(context.Background())
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthReflectsLoadState(t *testing.T) {
	env := newTestEnv(t, config.Server{})

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Error(t, env.datasets.ReloadAll(context.Background()), "close fixture is missing")
	health = decodeBody[HealthResponse](t, env.do(t, http.MethodGet, "/api/v1/health", nil))
	require.Len(t, health.Sources, 2)
	assert.True(t, health.Sources[0].Loaded)
	assert.Equal(t, 3, health.Sources[0].Records)
	assert.Contains(t, health.Sources[1].Error, "load failed")

	require.NoError(t, os.WriteFile(filepath.Join(env.public, "profit_xauusd_hourly_close.json"), []byte(openFixture), 0o644))
	rec = env.do(t, http.MethodPost, "/api/v1/profit/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	health = decodeBody[HealthResponse](t, env.do(t, http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, "ok", health.Status)
}

func TestProfitTimeline(t *testing.T) {
	env := newTestEnv(t, config.Server{})
	env.loadAll()

	rec := env.do(t, http.MethodGet, "/api/v1/profit?from=2025-05-01&to=2025-05-01&tz=%2B8", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[ProfitResponse](t, rec)
	assert.Equal(t, domain.ModeTimeline, resp.Mode)
	assert.Equal(t, "+3", resp.SourceOffset)
	assert.Equal(t, "+8", resp.DisplayOffset)
	assert.Equal(t, "2025-05-01", resp.From)
	// 05-01 20:00 at +3 is 05-02 01:00 at +8, outside the window.
	assert.Equal(t, []domain.Bucket{{Label: "05-01 05:00", Profit: 100}}, resp.Series)
	assert.Equal(t, domain.Totals{Gain: 100, Loss: 0, Net: 100}, resp.Totals)
	assert.Equal(t, 3, resp.Records)
	require.NotNil(t, resp.Range)
	assert.Equal(t, time.Date(2025, 4, 30, 16, 0, 0, 0, time.UTC), resp.Range.Start.UTC())
}

func TestProfitHourOfDayWithoutWindow(t *testing.T) {
	env := newTestEnv(t, config.Server{})
	env.loadAll()

	// A literal "+" in a query string decodes to a space.
	rec := env.do(t, http.MethodGet, "/api/v1/profit?mode=hourOfDay&tz=+3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[ProfitResponse](t, rec)
	require.Len(t, resp.Series, 24)
	assert.Equal(t, "+3", resp.DisplayOffset)
	assert.Equal(t, 100.0, resp.Series[0].Profit)
	assert.Equal(t, -30.0, resp.Series[20].Profit)
	assert.Equal(t, 12.5, resp.Series[9].Profit)
	assert.Equal(t, domain.Totals{Gain: 112.5, Loss: 30, Net: 82.5}, resp.Totals)
	assert.Nil(t, resp.Range)
}

func TestProfitRejectsBadQueries(t *testing.T) {
	env := newTestEnv(t, config.Server{})
	env.loadAll()

	for _, target := range []string{
		"/api/v1/profit?from=2025-02-30&to=2025-03-01",
		"/api/v1/profit?from=2025-05-01",
		"/api/v1/profit?to=2025-05-01",
		"/api/v1/profit?from=2025/05/01&to=2025-05-02",
		"/api/v1/profit?tz=%2B5",
		"/api/v1/profit?tz=banana",
		"/api/v1/profit?mode=weekly",
		"/api/v1/profit?source=mid",
	} {
		rec := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		errResp := decodeBody[ErrorResponse](t, rec)
		assert.NotEmpty(t, errResp.Error, target)
		assert.NotEmpty(t, errResp.RequestID, target)
	}
}

func TestProfitLoadFailure(t *testing.T) {
	env := newTestEnv(t, config.Server{})

	rec := env.do(t, http.MethodGet, "/api/v1/profit?source=open", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "not loaded")

	env.loadAll()
	rec = env.do(t, http.MethodGet, "/api/v1/profit?source=close", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "load failed")

	// A failed reload keeps serving the last good records with a warning.
	require.NoError(t, os.Remove(filepath.Join(env.public, "profit_xauusd_hourly.json")))
	rec = env.do(t, http.MethodPost, "/api/v1/profit/reload?source=open", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/profit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ProfitResponse](t, rec)
	assert.Equal(t, 3, resp.Records)
	assert.Contains(t, resp.Warning, "load failed")
}

func TestRangesLifecycle(t *testing.T) {
	env := newTestEnv(t, config.Server{})
	env.loadAll()

	rec := env.do(t, http.MethodPost, "/api/v1/ranges", RangeRequest{From: "2025-05-10", To: "2025-05-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ranges := decodeBody[RangesResponse](t, rec).Ranges
	require.Len(t, ranges, 1)
	assert.Equal(t, "2025-05-01", ranges[0].From, "saved in order")

	rec = env.do(t, http.MethodPost, "/api/v1/ranges", RangeRequest{From: "2025-02-30", To: "2025-03-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/profit?from=2025-06-01&to=2025-06-30&remember=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ranges = decodeBody[RangesResponse](t, env.do(t, http.MethodGet, "/api/v1/ranges", nil)).Ranges
	require.Len(t, ranges, 2)
	assert.Equal(t, "2025-06-01", ranges[0].From)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/ranges/2025-06-01/2025-06-30", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/v1/ranges/2025-06-01/2025-06-30", nil).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/ranges", nil).Code)
	assert.Empty(t, decodeBody[RangesResponse](t, env.do(t, http.MethodGet, "/api/v1/ranges", nil)).Ranges)
}

func seedTrades(t *testing.T, db *store.SQLiteStore) {
	t.Helper()
	at := func(s string) time.Time {
		v, err := time.Parse(store.TimeLayout, s)
		require.NoError(t, err)
		return v
	}
	require.NoError(t, db.InsertTrades(context.Background(), []domain.Trade{
		{Ticket: 1, Login: 7, Symbol: "XAUUSD", Volume: 100, OpenTime: at("2025-06-01 10:05:00"), CloseTime: at("2025-06-01 12:00:00"), Profit: 42},
		{Ticket: 2, Login: 7, Symbol: "XAUUSD", Cmd: 1, Volume: 30, OpenTime: at("2025-06-01 11:00:00"), CloseTime: domain.ZeroCloseTime, Profit: -3},
	}))
}

func TestExportReloadsSource(t *testing.T) {
	env := newTestEnv(t, config.Server{})
	env.loadAll()
	seedTrades(t, env.db)

	rec := env.do(t, http.MethodPost, "/api/v1/aggregate/to-json", map[string]string{
		"start": "2025-06-01", "end": "2025-06-30",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[export.Result](t, rec)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Rows)

	resp := decodeBody[ProfitResponse](t, env.do(t, http.MethodGet, "/api/v1/profit", nil))
	assert.Equal(t, 1, resp.Records, "open source reloaded from the new fixture")
	assert.Equal(t, 42.0, resp.Totals.Net)

	rec = env.do(t, http.MethodGet, "/profit_xauusd_hourly.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"date":"2025-06-01"`)
}

func TestExportValidation(t *testing.T) {
	env := newTestEnv(t, config.Server{})

	rec := env.do(t, http.MethodPost, "/api/v1/aggregate/to-json", map[string]string{"start": "2025-06-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "End")

	rec = env.do(t, http.MethodPost, "/api/v1/aggregate/to-json", map[string]string{
		"start": "2025-06-01", "end": "2025-06-02", "by": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/aggregate/to-json", map[string]string{
		"start": "2025-06-09", "end": "2025-06-02",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/aggregate/to-json", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTradeSummary(t *testing.T) {
	env := newTestEnv(t, config.Server{})
	seedTrades(t, env.db)

	rec := env.do(t, http.MethodPost, "/api/v1/trade-summary/query", summary.Request{Date: "2025-06-01", Symbol: "XAUUSD"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[summary.Response](t, rec)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, domain.GroupHolding, resp.Items[0].Group)
	assert.Equal(t, domain.GroupClosedToday, resp.Items[1].Group)
	assert.Equal(t, 42.0, resp.Items[1].TotalProfit)

	rec = env.do(t, http.MethodPost, "/api/v1/trade-summary/query", summary.Request{Date: "2025-06-31", Symbol: "XAUUSD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsAndRequestID(t *testing.T) {
	env := newTestEnv(t, config.Server{})
	env.loadAll()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	cfg := decodeBody[ConfigResponse](t, rec)
	assert.Equal(t, []string{"+3", "+8"}, cfg.DisplayOffsets)
	assert.Equal(t, "+8", cfg.DefaultDisplay)

	body := env.do(t, http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",route="GET /api/v1/config",status="200"} 1`)
	assert.Contains(t, body, `pnlboard_feed_loads_total{result="ok",source="open"} 1`)
	assert.Contains(t, body, `pnlboard_feed_records{source="open"} 3`)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, config.Server{RateLimit: 0.001, RateBurst: 2})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/health", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/health", nil).Code)
	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, config.Server{CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ranges", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProfitOverflowAnswersServerError(t *testing.T) {
	env := newTestEnv(t, config.Server{})
	huge := `{"date":"2025-05-01","hour":0,"profit":1e308}
{"date":"2025-05-01","hour":1,"profit":1e308}
`
	require.NoError(t, os.WriteFile(filepath.Join(env.public, "profit_xauusd_hourly.json"), []byte(huge), 0o644))
	env.loadAll()

	// Totals.Gain sums to +Inf, which JSON cannot represent.
	rec := env.do(t, http.MethodGet, "/api/v1/profit", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "response could not be encoded", errResp.Error)
	assert.NotEmpty(t, errResp.RequestID)
}
