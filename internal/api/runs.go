package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/httputil"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/report"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/security"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/trace"
)

func (s *Server) showRunSamples(w http.ResponseWriter, r *http.Request, runID string) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ests, ok := s.loadRunSamples(w, runID, limit)
	if !ok {
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		httputil.WriteJSONOK(w, ests)
	case "csv":
		var buf bytes.Buffer
		if err := trace.WriteEstimates(&buf, ests); err != nil {
			httputil.InternalServerError(w, "Failed to encode samples")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", security.AttachmentDisposition("run-"+runID, ".csv"))
		w.Write(buf.Bytes())
	default:
		httputil.BadRequest(w, "Invalid 'format' parameter")
	}
}

func (s *Server) showRunSummary(w http.ResponseWriter, r *http.Request, runID string) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ests, ok := s.loadRunSamples(w, runID, 0)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, trace.Summarize(ests, skip))
}

func (s *Server) showRunChart(w http.ResponseWriter, r *http.Request, runID string) {
	maxPoints, err := queryInt(r, "max_points", report.DefaultMaxPoints)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ests, ok := s.loadRunSamples(w, runID, 0)
	if !ok {
		return
	}
	if len(ests) == 0 {
		httputil.NotFound(w, "Run has no samples")
		return
	}

	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, "Run "+runID, ests, maxPoints); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) showRunPlot(w http.ResponseWriter, r *http.Request, runID string) {
	var kind report.Kind
	switch r.URL.Query().Get("kind") {
	case "", "angle":
		kind = report.KindAngle
	case "rate":
		kind = report.KindRate
	default:
		httputil.BadRequest(w, "Invalid 'kind' parameter")
		return
	}
	ests, ok := s.loadRunSamples(w, runID, 0)
	if !ok {
		return
	}
	if len(ests) == 0 {
		httputil.NotFound(w, "Run has no samples")
		return
	}

	var buf bytes.Buffer
	if err := report.WritePNG(&buf, "Run "+runID, kind, ests); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
