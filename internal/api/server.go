// Package api serves the estimation service's HTTP endpoints.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/db"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/httputil"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/monitoring"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/pipeline"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/serialmux"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/stateest"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/units"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/version"
)

var logf = monitoring.Prefixed("api")

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Estimator is the live filter the API reports on.
type Estimator interface {
	Latest() (imu.Estimate, bool)
	Processed() uint64
	Rejected() uint64
	TickPeriod() float64
	FilterConfig() stateest.FilterConfig
	Reset()
}

type Server struct {
	est       Estimator
	m         serialmux.SerialMuxInterface
	db        *db.DB
	publisher *pipeline.Publisher
	source    string
	started   time.Time
}

// Options carries the optional collaborators of a Server. Nil fields
// disable the endpoints that need them.
type Options struct {
	SerialMux serialmux.SerialMuxInterface
	DB        *db.DB
	Publisher *pipeline.Publisher
	Source    string
}

func NewServer(est Estimator, opts Options) *Server {
	return &Server{
		est:       est,
		m:         opts.SerialMux,
		db:        opts.DB,
		publisher: opts.Publisher,
		source:    opts.Source,
		started:   time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/reset", s.resetFilter)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.handleRun)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}

// stateResponse is the body of GET /api/state.
type stateResponse struct {
	Initialized bool          `json:"initialized"`
	Processed   uint64        `json:"processed"`
	Units       string        `json:"units"`
	Estimate    *imu.Estimate `json:"estimate"`
}

// convertEstimate returns est with every angle and rate in targetUnits.
func convertEstimate(est imu.Estimate, targetUnits string) imu.Estimate {
	est.Angle = units.ConvertVec3(est.Angle, targetUnits)
	est.Rate = units.ConvertVec3(est.Rate, targetUnits)
	est.Raw.Angle = units.ConvertVec3(est.Raw.Angle, targetUnits)
	est.Raw.Rate = units.ConvertVec3(est.Raw.Rate, targetUnits)
	return est
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	displayUnits := units.Rad
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.BadRequest(w, "Invalid 'units' parameter. Must be one of: "+units.GetValidUnitsString())
			return
		}
		displayUnits = u
	}
	resp := stateResponse{Processed: s.est.Processed(), Units: displayUnits}
	if est, ok := s.est.Latest(); ok {
		est = convertEstimate(est, displayUnits)
		resp.Initialized = true
		resp.Estimate = &est
	}
	httputil.WriteJSONOK(w, resp)
}

// configResponse is the body of GET /api/config.
type configResponse struct {
	TickPeriod float64               `json:"tick_period"`
	Filter     stateest.FilterConfig `json:"filter"`
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, configResponse{
		TickPeriod: s.est.TickPeriod(),
		Filter:     s.est.FilterConfig(),
	})
}

func (s *Server) resetFilter(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.est.Reset()
	logf("Filter reset requested by %s", r.RemoteAddr)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "reset queued"})
}

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	Version   string                   `json:"version"`
	Source    string                   `json:"source"`
	Uptime    float64                  `json:"uptime_s"`
	Processed uint64                   `json:"processed"`
	Rejected  uint64                   `json:"rejected"`
	Publisher *pipeline.PublisherStats `json:"publisher,omitempty"`
	Recording bool                     `json:"recording"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	resp := statusResponse{
		Version:   version.String(),
		Source:    s.source,
		Uptime:    time.Since(s.started).Seconds(),
		Processed: s.est.Processed(),
		Rejected:  s.est.Rejected(),
		Recording: s.db != nil,
	}
	if s.publisher != nil {
		stats := s.publisher.Stats()
		resp.Publisher = &stats
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.m == nil {
		httputil.ServiceUnavailable(w, "No serial device attached")
		return
	}

	command := strings.TrimSpace(r.FormValue("command"))
	if !serialmux.IsAllowedCommand(command) {
		httputil.BadRequest(w, "Command not allowed")
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		httputil.InternalServerError(w, "Failed to send command")
		return
	}
	io.WriteString(w, "Command sent successfully")
}

// requireDB writes 503 and returns false when recording is disabled.
func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "Recording database not configured")
		return false
	}
	return true
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.requireDB(w) {
		return
	}
	runs, err := s.db.Runs()
	if err != nil {
		httputil.InternalServerError(w, "Failed to list runs")
		return
	}
	httputil.WriteJSONOK(w, runs)
}

// handleRun routes /api/runs/{id} and /api/runs/{id}/{view}.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 {
		httputil.NotFound(w, "Not found")
		return
	}
	if !s.requireDB(w) {
		return
	}

	runID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.showRun(w, runID)
		case http.MethodPatch:
			s.updateRun(w, r, runID)
		case http.MethodDelete:
			s.deleteRun(w, runID)
		default:
			httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
		return
	}

	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	switch parts[1] {
	case "samples":
		s.showRunSamples(w, r, runID)
	case "summary":
		s.showRunSummary(w, r, runID)
	case "chart":
		s.showRunChart(w, r, runID)
	case "plot":
		s.showRunPlot(w, r, runID)
	default:
		httputil.NotFound(w, "Not found")
	}
}

// writeRunError maps db errors onto status codes.
func writeRunError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "Run not found")
		return
	}
	logf("%s: %v", what, err)
	httputil.InternalServerError(w, what)
}

func (s *Server) showRun(w http.ResponseWriter, runID string) {
	run, err := s.db.GetRun(runID)
	if err != nil {
		writeRunError(w, err, "Failed to load run")
		return
	}
	httputil.WriteJSONOK(w, run)
}

// runUpdate is the body of PATCH /api/runs/{id}.
type runUpdate struct {
	Notes *string `json:"notes"`
}

func (s *Server) updateRun(w http.ResponseWriter, r *http.Request, runID string) {
	var req runUpdate
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Notes == nil {
		httputil.BadRequest(w, "Nothing to update")
		return
	}
	if err := s.db.UpdateRunNotes(runID, *req.Notes); err != nil {
		writeRunError(w, err, "Failed to update run")
		return
	}
	s.showRun(w, runID)
}

func (s *Server) deleteRun(w http.ResponseWriter, runID string) {
	if err := s.db.DeleteRun(runID); err != nil {
		writeRunError(w, err, "Failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("Invalid '" + name + "' parameter")
	}
	return n, nil
}

// loadRunSamples checks the run exists and returns up to limit estimates.
func (s *Server) loadRunSamples(w http.ResponseWriter, runID string, limit int) ([]imu.Estimate, bool) {
	if _, err := s.db.GetRun(runID); err != nil {
		writeRunError(w, err, "Failed to load run")
		return nil, false
	}
	ests, err := s.db.RunSamples(runID, limit)
	if err != nil {
		writeRunError(w, err, "Failed to load samples")
		return nil, false
	}
	return ests, true
}
