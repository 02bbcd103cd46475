// Package api exposes the intersection state over HTTP: approach
// snapshots, phase timing, per-approach detections, and persisted
// history. Read-only; the pipeline is driven entirely by its producers
// and the controller.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/greenwave-data/crossflow/internal/config"
	"github.com/greenwave-data/crossflow/internal/store"
	"github.com/greenwave-data/crossflow/internal/traffic"
	"github.com/greenwave-data/crossflow/internal/vision"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	agg       *traffic.Aggregator
	ctrl      *traffic.PhaseController
	detectors map[traffic.Direction]*vision.Detector
	db        *store.DB
	cfg       *config.Config
}

// NewServer wires the HTTP surface over the live pipeline components.
// db may be nil when persistence is disabled; the history endpoints then
// report 503.
func NewServer(agg *traffic.Aggregator, ctrl *traffic.PhaseController, detectors map[traffic.Direction]*vision.Detector, db *store.DB, cfg *config.Config) *Server {
	return &Server{
		agg:       agg,
		ctrl:      ctrl,
		detectors: detectors,
		db:        db,
		cfg:       cfg,
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
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/phase", s.showPhase)
	mux.HandleFunc("/api/detections", s.showDetections)
	mux.HandleFunc("/api/history", s.showHistory)
	mux.HandleFunc("/api/events", s.showSignalEvents)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// requireGet sets the JSON content type and rejects non-GET methods.
func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// showStatus returns the four approach states plus the current phase.
func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	status := map[string]interface{}{
		"approaches": s.agg.Snapshot(),
		"phase":      s.ctrl.Info(),
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
	}
}

func (s *Server) showPhase(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	if err := json.NewEncoder(w).Encode(s.ctrl.Info()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write phase info")
	}
}

// showDetections returns the latest frame result for one approach.
func (s *Server) showDetections(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	dir := traffic.Direction(r.URL.Query().Get("direction"))
	if !dir.Valid() {
		s.writeJSONError(w, http.StatusBadRequest,
			"Invalid 'direction' parameter: want North, South, East, or West")
		return
	}
	det, ok := s.detectors[dir]
	if !ok {
		s.writeJSONError(w, http.StatusNotFound,
			fmt.Sprintf("No detector running for direction %s", dir))
		return
	}

	latest := det.Latest()
	resp := map[string]interface{}{
		"direction":    dir,
		"raw_count":    latest.RawCount,
		"stable_count": latest.StableCount,
		"warming":      latest.Warming,
		"detections":   latest.Detections,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write detections")
	}
}

// parseLimit reads a positive 'limit' query parameter, defaulting to 50.
func parseLimit(r *http.Request) (int, error) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			return 0, fmt.Errorf("invalid 'limit' parameter %q", l)
		}
		limit = parsed
	}
	return limit, nil
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Persistence is disabled")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := s.db.RecentDetections(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve detection history: %v", err))
		return
	}
	if recs == nil {
		recs = []store.DetectionRecord{}
	}
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write history")
	}
}

func (s *Server) showSignalEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Persistence is disabled")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := s.db.RecentSignalEvents(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve signal events: %v", err))
		return
	}
	if recs == nil {
		recs = []store.SignalEventRecord{}
	}
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write signal events")
	}
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Persistence is disabled")
		return
	}

	stats, err := s.db.GetStats()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
	}
}

// showConfig reports the effective tuning values after defaults and
// overrides were applied.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	cfg := map[string]interface{}{
		"camera_width":          s.cfg.GetCameraWidth(),
		"camera_height":         s.cfg.GetCameraHeight(),
		"camera_fps":            s.cfg.GetCameraFPS(),
		"min_vehicle_area":      s.cfg.GetMinVehicleArea(),
		"max_vehicle_area":      s.cfg.GetMaxVehicleArea(),
		"min_aspect_ratio":      s.cfg.GetMinAspectRatio(),
		"max_aspect_ratio":      s.cfg.GetMaxAspectRatio(),
		"stabilization_window":  s.cfg.GetStabilizationWindow(),
		"min_green_time":        s.cfg.GetMinGreenTime().Seconds(),
		"max_green_time":        s.cfg.GetMaxGreenTime().Seconds(),
		"base_green_time":       s.cfg.GetBaseGreenTime().Seconds(),
		"extension_per_vehicle": s.cfg.GetExtensionPerVehicle().Seconds(),
		"pair_aggregate":        s.cfg.GetPairAggregate(),
	}
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
	}
}
