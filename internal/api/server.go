// Package api exposes the HTTP surface: event queries, pipeline statistics,
// frame ingest and the websocket event feed.
package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/db"
	"github.com/gatewatch-data/gatewatch/internal/events"
	"github.com/gatewatch-data/gatewatch/internal/httputil"
	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/pipeline"
	"github.com/gatewatch-data/gatewatch/internal/version"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Pipeline is the orchestrator surface the API needs.
type Pipeline interface {
	Submit(cameraID string, frame vision.Frame) error
	Stats() map[string]pipeline.CameraSnapshot
}

// Server serves the HTTP API for one running pipeline.
type Server struct {
	pipe  Pipeline
	store *db.DB
	hub   *Hub
}

// NewServer creates a server. The hub may be nil when the websocket feed is
// disabled.
func NewServer(pipe Pipeline, store *db.DB, hub *Hub) *Server {
	return &Server{pipe: pipe, store: store, hub: hub}
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
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", s.healthz)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/events/summary", s.eventSummary)
	mux.HandleFunc("/api/ingest/", s.ingestFrame)
	if s.hub != nil {
		mux.HandleFunc("/ws/events", s.hub.Serve)
	}
	return mux
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.pipe.Stats())
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	filter := db.EventFilter{
		CameraID: r.URL.Query().Get("camera"),
		Type:     events.Type(r.URL.Query().Get("type")),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.BadRequest(w, "invalid since timestamp: "+err.Error())
			return
		}
		filter.Since = t
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}

	evs, err := s.store.RecentEvents(r.Context(), filter)
	if err != nil {
		monitoring.Logf("list events: %v", err)
		httputil.InternalServerError(w, "query failed")
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": evs})
}

func (s *Server) eventSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var since time.Time
	if q := r.URL.Query().Get("since"); q != "" {
		t, err := time.Parse(time.RFC3339, q)
		if err != nil {
			httputil.BadRequest(w, "invalid since timestamp: "+err.Error())
			return
		}
		since = t
	}
	counts, err := s.store.CountByType(r.Context(), since)
	if err != nil {
		monitoring.Logf("event summary: %v", err)
		httputil.InternalServerError(w, "query failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"counts": counts})
}

// ingestFrame accepts POST /api/ingest/{camera} with the encoded frame as
// the body. Sequence and capture time come from headers so edge devices with
// buffered uplinks keep honest timestamps.
func (s *Server) ingestFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	cameraID := strings.TrimPrefix(r.URL.Path, "/api/ingest/")
	if cameraID == "" || strings.Contains(cameraID, "/") {
		httputil.BadRequest(w, "missing camera id")
		return
	}

	frame := vision.Frame{CameraID: cameraID, Timestamp: time.Now()}
	if seq := r.Header.Get("X-Frame-Seq"); seq != "" {
		n, err := strconv.ParseUint(seq, 10, 64)
		if err != nil {
			httputil.BadRequest(w, "invalid X-Frame-Seq")
			return
		}
		frame.Seq = n
	}
	if ts := r.Header.Get("X-Frame-Timestamp"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			httputil.BadRequest(w, "invalid X-Frame-Timestamp")
			return
		}
		frame.Timestamp = t
	}
	if q := r.URL.Query().Get("w"); q != "" {
		frame.Width, _ = strconv.Atoi(q)
	}
	if q := r.URL.Query().Get("h"); q != "" {
		frame.Height, _ = strconv.Atoi(q)
	}

	const maxFrameSize = 8 << 20
	data, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize+1))
	if err != nil {
		httputil.BadRequest(w, "read frame body: "+err.Error())
		return
	}
	if len(data) > maxFrameSize {
		httputil.BadRequest(w, "frame too large")
		return
	}
	frame.Data = data

	if err := s.pipe.Submit(cameraID, frame); err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"camera": cameraID,
		"seq":    frame.Seq,
	})
}
