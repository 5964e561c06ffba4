package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"pnlboard/internal/config"
	"pnlboard/internal/domain"
	"pnlboard/internal/export"
	"pnlboard/internal/feed"
	"pnlboard/internal/profit"
	"pnlboard/internal/store"
	"pnlboard/internal/summary"
	"pnlboard/internal/tz"
)

const maxBodyBytes = 1 << 20

// Options wires the server's collaborators. Exporter, Summary and Ranges may
// be nil, in which case their endpoints answer 503.
type Options struct {
	Datasets  *feed.Datasets
	Exporter  *export.Exporter
	Summary   *summary.Service
	Ranges    store.RangeStore
	PublicDir string
	Paths     feed.Paths
	Profit    config.Profit
	Metrics   *Metrics
	Log       *slog.Logger
}

// Server serves the profit dashboard API.
type Server struct {
	datasets  *feed.Datasets
	exporter  *export.Exporter
	summary   *summary.Service
	ranges    store.RangeStore
	publicDir string
	paths     feed.Paths
	profit    config.Profit
	offsets   config.Offsets
	metrics   *Metrics
	log       *slog.Logger
	validate  *validator.Validate
}

// NewServer creates a Server. The profit settings must already be valid.
func NewServer(opts Options) (*Server, error) {
	offsets, err := opts.Profit.Offsets()
	if err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Server{
		datasets:  opts.Datasets,
		exporter:  opts.Exporter,
		summary:   opts.Summary,
		ranges:    opts.Ranges,
		publicDir: opts.PublicDir,
		paths:     opts.Paths,
		profit:    opts.Profit,
		offsets:   offsets,
		metrics:   opts.Metrics,
		log:       opts.Log,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/config", s.handleConfig)
	mux.HandleFunc("GET /api/v1/profit", s.handleProfit)
	mux.HandleFunc("POST /api/v1/profit/reload", s.handleReload)
	mux.HandleFunc("POST /api/v1/aggregate/to-json", s.handleExport)
	mux.HandleFunc("POST /api/v1/trade-summary/query", s.handleSummary)
	mux.HandleFunc("GET /api/v1/ranges", s.handleListRanges)
	mux.HandleFunc("POST /api/v1/ranges", s.handleSaveRange)
	mux.HandleFunc("DELETE /api/v1/ranges", s.handleClearRanges)
	mux.HandleFunc("DELETE /api/v1/ranges/{from}/{to}", s.handleDeleteRange)
	mux.Handle("GET /metrics", s.metrics.Handler())

	if s.publicDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.publicDir))))
		mux.Handle("GET /favicon.ico", http.RedirectHandler("/static/favicon.svg", http.StatusMovedPermanently))
		for _, src := range domain.Sources {
			if p, ok := s.paths[src]; ok && p != "" {
				mux.HandleFunc("GET /"+strings.TrimLeft(p, "/"), s.fixtureHandler(p))
			}
		}
	}
}

// Handler returns the mux wrapped in recovery, request ID, logging, rate
// limiting and CORS middleware.
func (s *Server) Handler(cfg config.Server) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var h http.Handler = corsMiddleware(cfg.CORSOrigins)(mux)
	h = rateLimitMiddleware(cfg.RateLimit, cfg.RateBurst, s.log)(h)
	h = loggingMiddleware(s.log, s.metrics)(h)
	h = requestIDMiddleware(h)
	return recoverMiddleware(s.log)(h)
}

// ---------------------------------------------------------------------------
// Health and config
// ---------------------------------------------------------------------------

func (s *Server) sourceStatuses() []SourceStatus {
	states := s.datasets.States()
	out := make([]SourceStatus, 0, len(states))
	for _, st := range states {
		ss := SourceStatus{
			Source:  st.Source,
			Loaded:  st.Loaded(),
			Loading: st.Loading,
			Records: len(st.Records),
			Error:   st.ErrorText(),
		}
		if st.Loaded() {
			t := st.LoadedAt.UTC()
			ss.LoadedAt = &t
		}
		out = append(out, ss)
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.datasets.Ready() {
		status = "degraded"
	}
	writeJSON(w, HealthResponse{Status: status, Sources: s.sourceStatuses()})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := ConfigResponse{
		Symbol:         s.profit.Symbol,
		SourceOffset:   s.offsets.Source.String(),
		DefaultDisplay: s.offsets.Default.String(),
		DefaultFrom:    s.profit.DefaultFrom,
		DefaultTo:      s.profit.DefaultTo,
	}
	for _, o := range s.offsets.Allowed {
		resp.DisplayOffsets = append(resp.DisplayOffsets, o.String())
	}
	for _, src := range s.datasets.Sources() {
		resp.Sources = append(resp.Sources, string(src))
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Profit
// ---------------------------------------------------------------------------

func (s *Server) handleProfit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	src, err := domain.ParseSource(q.Get("source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := domain.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	display := s.offsets.Default
	if v := q.Get("tz"); v != "" {
		if display, err = tz.ParseOffset(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.offsets.IsAllowed(display) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("display offset %s is not offered", display))
			return
		}
	}
	window, err := profit.NewWindow(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loader, ok := s.datasets.Get(src)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("source %q is not configured", src))
		return
	}
	st := loader.Snapshot()
	if !st.Loaded() {
		msg := "source not loaded yet"
		if st.Err != nil {
			msg = st.ErrorText()
		}
		writeError(w, http.StatusServiceUnavailable, msg)
		return
	}

	res, err := profit.Run(st.Records, profit.Options{
		SourceOffset:  s.offsets.Source,
		DisplayOffset: display,
		Mode:          mode,
		Window:        window,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loadedAt := st.LoadedAt.UTC()
	resp := ProfitResponse{
		Source:        src,
		Mode:          res.Mode,
		SourceOffset:  s.offsets.Source.String(),
		DisplayOffset: display.String(),
		Range:         res.Range,
		Series:        res.Series,
		Totals:        res.Totals,
		Selected:      res.Selected,
		Dropped:       res.Dropped,
		Records:       len(st.Records),
		LoadedAt:      &loadedAt,
		Warning:       st.ErrorText(),
	}
	if window != nil {
		resp.From, resp.To = window.From.String(), window.To.String()
		if s.ranges != nil && isTrue(q.Get("remember")) {
			if err := s.ranges.SaveRange(r.Context(), resp.From, resp.To); err != nil {
				s.log.Warn("remembering range", "from", resp.From, "to", resp.To, "error", err)
			}
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var err error
	if v := r.URL.Query().Get("source"); v != "" {
		src, parseErr := domain.ParseSource(v)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		loader, ok := s.datasets.Get(src)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("source %q is not configured", src))
			return
		}
		_, err = loader.Load(r.Context())
	} else {
		err = s.datasets.ReloadAll(r.Context())
	}

	resp := ReloadResponse{OK: err == nil, Sources: s.sourceStatuses()}
	if err != nil {
		writeJSONStatus(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) fixtureHandler(path string) http.HandlerFunc {
	file := filepath.Join(s.publicDir, filepath.FromSlash(strings.TrimLeft(path, "/")))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, file)
	}
}

// ---------------------------------------------------------------------------
// Export and summary
// ---------------------------------------------------------------------------

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	req := export.Request{Symbol: s.profit.Symbol}
	if !s.decode(w, r, &req) {
		return
	}
	req.Symbol = strings.ToUpper(req.Symbol)

	res, err := s.exporter.Run(r.Context(), req)
	if err != nil {
		s.metrics.ObserveExport(req.By, err)
		status := http.StatusInternalServerError
		if errors.Is(err, export.ErrBadRequest) {
			status = http.StatusBadRequest
		}
		writeJSONStatus(w, status, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.metrics.ObserveExport(req.By, nil)

	// Serve the fresh fixture right away when it is the one being served.
	src := domain.Source(res.Source)
	if loader, ok := s.datasets.Get(src); ok && strings.EqualFold(req.Symbol, s.profit.Symbol) {
		if _, err := loader.Load(r.Context()); err != nil {
			s.log.Warn("reload after export failed", "source", src, "error", err)
		}
	}
	writeJSON(w, res)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.summary == nil {
		writeError(w, http.StatusServiceUnavailable, "trade summary is not configured")
		return
	}
	req := summary.Request{Symbol: s.profit.Symbol}
	if !s.decode(w, r, &req) {
		return
	}
	day, err := tz.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.summary.Query(r.Context(), req.Symbol, day)
	if err != nil {
		s.log.Error("trade summary failed", "symbol", req.Symbol, "date", req.Date, "error", err)
		writeError(w, http.StatusInternalServerError, "trade summary failed")
		return
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Range history
// ---------------------------------------------------------------------------

func (s *Server) requireRanges(w http.ResponseWriter) bool {
	if s.ranges == nil {
		writeError(w, http.StatusServiceUnavailable, "range history is not configured")
		return false
	}
	return true
}

func (s *Server) handleListRanges(w http.ResponseWriter, r *http.Request) {
	if !s.requireRanges(w) {
		return
	}
	ranges, err := s.ranges.ListRanges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, RangesResponse{Ranges: ranges})
}

func (s *Server) handleSaveRange(w http.ResponseWriter, r *http.Request) {
	if !s.requireRanges(w) {
		return
	}
	var req RangeRequest
	if !s.decode(w, r, &req) {
		return
	}
	window, err := profit.NewWindow(req.From, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ranges.SaveRange(r.Context(), window.From.String(), window.To.String()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ranges, err := s.ranges.ListRanges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONStatus(w, http.StatusCreated, RangesResponse{Ranges: ranges})
}

func (s *Server) handleDeleteRange(w http.ResponseWriter, r *http.Request) {
	if !s.requireRanges(w) {
		return
	}
	err := s.ranges.DeleteRange(r.Context(), r.PathValue("from"), r.PathValue("to"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "range not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleClearRanges(w http.ResponseWriter, r *http.Request) {
	if !s.requireRanges(w) {
		return
	}
	if err := s.ranges.ClearRanges(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// decode reads a JSON body into v and validates it, answering 400 itself on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v before writing the status, so an unencodable
// value (NaN, Inf) becomes a 500 instead of an empty 2xx.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "error", err)
		if _, isErr := v.(ErrorResponse); isErr {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeError(w, http.StatusInternalServerError, "response could not be encoded")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, ErrorResponse{Error: msg, RequestID: w.Header().Get(requestIDHeader)})
}

// since returns the elapsed time rounded for log output.
func since(start time.Time) time.Duration {
	return time.Since(start).Round(time.Microsecond)
}
