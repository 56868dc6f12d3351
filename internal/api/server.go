package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/mindwave.report/internal/db"
	"github.com/banshee-data/mindwave.report/internal/headset"
	"github.com/banshee-data/mindwave.report/internal/monitoring"
	"github.com/banshee-data/mindwave.report/internal/serialport"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultLimit = 100
	maxLimit     = 5000
)

type Server struct {
	h  headset.Interface
	db *db.DB

	// ctx bounds acquisition loops started through POST /api/connect.
	ctx context.Context

	// ListPorts enumerates serial ports for /api/ports.
	ListPorts func() ([]serialport.PortInfo, error)
}

// NewServer creates a Server. store may be nil, in which case the
// persistence endpoints answer 503.
func NewServer(ctx context.Context, h headset.Interface, store *db.DB) *Server {
	return &Server{
		h:         h,
		db:        store,
		ctx:       ctx,
		ListPorts: serialport.ListPorts,
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
		monitoring.Logf(
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
	mux.HandleFunc("/api/connect", s.connect)
	mux.HandleFunc("/api/disconnect", s.disconnect)
	mux.HandleFunc("/api/history", s.showHistory)
	mux.HandleFunc("/api/history.png", s.historyPNG)
	mux.HandleFunc("/api/samples", s.listSamples)
	mux.HandleFunc("/api/blinks", s.listBlinks)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/ports", s.listPorts)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("failed to write response: %v", err)
	}
}

// limitParam parses ?limit=, defaulting to defaultLimit.
func limitParam(r *http.Request) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 1 || n > maxLimit {
		return 0, false
	}
	return n, true
}
